package retriever

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	cr "github.com/gofhir/cqlretrieve"
)

// ContextFilter keeps the records related to the query's context subject.
type ContextFilter struct {
	eval    cr.PathEvaluator
	logger  zerolog.Logger
	metrics *cr.Metrics
}

// NewContextFilter creates a context filter.
func NewContextFilter(eval cr.PathEvaluator, logger zerolog.Logger, metrics *cr.Metrics) *ContextFilter {
	return &ContextFilter{eval: eval, logger: logger, metrics: metrics}
}

// Apply returns the records whose context path resolves to q.ContextValue.
// When the query has no context all records are returned unchanged.
// Exclusions are logged and never reported as errors.
func (f *ContextFilter) Apply(ctx context.Context, q cr.Query, records []*cr.Resource) ([]*cr.Resource, error) {
	if !q.HasContext() {
		f.logger.Info().
			Str("data_type", q.DataType).
			Str("context", q.Context).
			Str("context_path", q.ContextPath).
			Str("context_value", q.ContextValue).
			Msg("unable to relate data type to context, returning all resources")
		return records, nil
	}

	filtered := make([]*cr.Resource, 0, len(records))
	for _, r := range records {
		keep, err := f.matches(ctx, q, r)
		if err != nil {
			return nil, err
		}
		if keep {
			filtered = append(filtered, r)
		}
	}

	f.metrics.RecordExcluded(cr.FilterContext, q.DataType, len(records)-len(filtered))
	return filtered, nil
}

func (f *ContextFilter) matches(ctx context.Context, q cr.Query, r *cr.Resource) (bool, error) {
	values, err := f.eval.Evaluate(ctx, r, q.ContextPath)
	if err != nil {
		return false, fmt.Errorf("evaluate context path %q on %s/%s: %w", q.ContextPath, r.Type(), r.ID(), err)
	}

	var first *cr.Value
	if len(values) > 0 {
		first = &values[0]
	}

	switch {
	case first != nil && first.Kind == cr.KindID:
		id, _ := first.AsString()
		return f.compareID(q, id), nil

	case first != nil && first.Kind == cr.KindReference:
		ref, _ := first.Reference()
		return f.compareID(q, ref), nil
	}

	// Neither an id nor a reference: fall back to the record's own
	// reference element.
	refs, err := f.eval.Evaluate(ctx, r, "reference")
	if err != nil {
		return false, fmt.Errorf("evaluate reference on %s/%s: %w", r.Type(), r.ID(), err)
	}
	var reference string
	if len(refs) > 0 {
		reference, _ = refs[0].AsString()
	}
	if reference == "" {
		f.logger.Info().Str("data_type", q.DataType).Msg("found resource unrelated to context, skipping")
		return false, nil
	}

	if i := strings.Index(reference, "/"); i >= 0 {
		reference = reference[i+1:]
	}
	if reference != q.ContextValue {
		f.logger.Info().
			Str("data_type", q.DataType).
			Str("found", reference).
			Str("expected", q.ContextValue).
			Msg("found resource for another context value, skipping")
		return false, nil
	}
	return true, nil
}

func (f *ContextFilter) compareID(q cr.Query, id string) bool {
	if id == "" {
		f.logger.Info().Str("data_type", q.DataType).Msg("found null id, skipping")
		return false
	}
	id = idSegment(id)
	if id != q.ContextValue {
		f.logger.Info().Str("data_type", q.DataType).Str("id", id).Msg("found resource with another id, skipping")
		return false
	}
	return true
}

// idSegment returns the segment after the first "/" of a relative
// reference. "Patient/123" -> "123", "123" -> "123".
func idSegment(s string) string {
	if !strings.Contains(s, "/") {
		return s
	}
	parts := strings.Split(s, "/")
	return parts[1]
}
