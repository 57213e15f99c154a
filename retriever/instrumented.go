package retriever

import (
	"context"
	"time"

	cr "github.com/gofhir/cqlretrieve"
)

// Instrumented records metrics for every call to the wrapped retriever.
type Instrumented struct {
	next    cr.Retriever
	name    string
	metrics *cr.Metrics
}

// NewInstrumented wraps next. A nil metrics disables recording.
func NewInstrumented(next cr.Retriever, name string, metrics *cr.Metrics) *Instrumented {
	return &Instrumented{next: next, name: name, metrics: metrics}
}

// Retrieve calls the wrapped retriever and records the outcome.
func (i *Instrumented) Retrieve(ctx context.Context, q cr.Query) (cr.ResultSet, error) {
	start := time.Now()
	result, err := i.next.Retrieve(ctx, q)
	i.metrics.RecordRetrieve(i.name, q.DataType, len(result), err, time.Since(start))
	return result, err
}

// Verify interface compliance
var _ cr.Retriever = (*Instrumented)(nil)
