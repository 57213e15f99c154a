package worker

import (
	"fmt"
	"time"

	cr "github.com/gofhir/cqlretrieve"
)

// SubjectResult is the outcome of one retrieve for one context subject.
type SubjectResult struct {
	// Subject is the context value the query was scoped to.
	Subject string

	// Result is the retrieved data. Nil when Err is set.
	Result cr.ResultSet

	// Err is the retrieve error, if any.
	Err error

	// Duration is the time taken by the retrieve.
	Duration time.Duration
}

// BatchResult aggregates the per-subject results of a batch.
type BatchResult struct {
	// Results holds one entry per subject, in subject order.
	Results []*SubjectResult

	// TotalJobs is the number of subjects submitted.
	TotalJobs int

	// CompletedJobs is the number of retrieves that ran (including errors).
	CompletedJobs int

	// FailedJobs is the number of retrieves that returned an error.
	FailedJobs int

	// TotalDuration is the sum of the per-subject durations.
	TotalDuration time.Duration
}

// HasErrors returns true if any subject failed.
func (b *BatchResult) HasErrors() bool {
	return b.FailedJobs > 0
}

// FirstError returns the error of the first failed subject in subject
// order, annotated with the subject.
func (b *BatchResult) FirstError() error {
	for _, r := range b.Results {
		if r != nil && r.Err != nil {
			return fmt.Errorf("subject %q: %w", r.Subject, r.Err)
		}
	}
	return nil
}

// ResultSets returns the result sets in subject order.
func (b *BatchResult) ResultSets() []cr.ResultSet {
	sets := make([]cr.ResultSet, len(b.Results))
	for i, r := range b.Results {
		if r != nil {
			sets[i] = r.Result
		}
	}
	return sets
}
