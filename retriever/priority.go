package retriever

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	cr "github.com/gofhir/cqlretrieve"
)

// Priority tries its children in order and returns the first non-empty
// result. Later children are not invoked once a result is found.
type Priority struct {
	children []cr.Retriever
	logger   zerolog.Logger
	metrics  *cr.Metrics
}

// NewPriority creates a priority retriever. A nil list or a nil child is
// rejected with ErrValidation; an empty list is valid and always yields an
// empty result. The list is copied.
func NewPriority(children []cr.Retriever, opts ...cr.Option) (*Priority, error) {
	if children == nil {
		return nil, fmt.Errorf("%w: retriever list is required", cr.ErrValidation)
	}
	for i, c := range children {
		if c == nil {
			return nil, fmt.Errorf("%w: retriever %d is nil", cr.ErrValidation, i)
		}
	}

	o := cr.Apply(opts...)
	return &Priority{
		children: append([]cr.Retriever(nil), children...),
		logger:   o.Logger,
		metrics:  o.Metrics,
	}, nil
}

// Len returns the number of children.
func (p *Priority) Len() int { return len(p.children) }

// Retrieve returns the first non-empty child result. A child error stops
// the chain and is returned wrapped with the child index. A child that
// returns a nil result without an error fails with ErrContractViolation.
func (p *Priority) Retrieve(ctx context.Context, q cr.Query) (cr.ResultSet, error) {
	for i, child := range p.children {
		result, err := child.Retrieve(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("retriever %d: %w", i, err)
		}
		if result == nil {
			return nil, fmt.Errorf("%w: retriever %d returned a nil result", cr.ErrContractViolation, i)
		}
		if len(result) > 0 {
			return result, nil
		}

		p.metrics.RecordFallthrough()
		p.logger.Debug().Int("retriever", i).Str("data_type", q.DataType).Msg("no results, trying next retriever")
	}
	return cr.EmptyResult(), nil
}

// Verify interface compliance
var _ cr.Retriever = (*Priority)(nil)
