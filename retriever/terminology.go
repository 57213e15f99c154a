package retriever

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	cr "github.com/gofhir/cqlretrieve"
)

// TerminologyFilter keeps the records whose coded element matches the
// requested codes or value set.
type TerminologyFilter struct {
	eval        cr.PathEvaluator
	extractor   cr.CodeExtractor
	terminology cr.TerminologyMembership
	logger      zerolog.Logger
	metrics     *cr.Metrics
}

// NewTerminologyFilter creates a terminology filter. terminology may be nil,
// in which case value set queries fail with ErrConfiguration.
func NewTerminologyFilter(eval cr.PathEvaluator, extractor cr.CodeExtractor, terminology cr.TerminologyMembership,
	logger zerolog.Logger, metrics *cr.Metrics) *TerminologyFilter {
	return &TerminologyFilter{
		eval:        eval,
		extractor:   extractor,
		terminology: terminology,
		logger:      logger,
		metrics:     metrics,
	}
}

// Apply returns the records matching the query's codes or value set.
// When neither is requested, or no code path is given, all records are
// returned unchanged.
func (f *TerminologyFilter) Apply(ctx context.Context, q cr.Query, records []*cr.Resource) ([]*cr.Resource, error) {
	if !q.HasTerminology() {
		return records, nil
	}

	filtered := make([]*cr.Resource, 0, len(records))
	for _, r := range records {
		keep, err := f.matches(ctx, q, r)
		if err != nil {
			return nil, err
		}
		if !keep {
			f.logger.Info().
				Str("data_type", q.DataType).
				Str("id", r.ID()).
				Msg("found resource outside requested codes, skipping")
			continue
		}
		filtered = append(filtered, r)
	}

	f.metrics.RecordExcluded(cr.FilterTerminology, q.DataType, len(records)-len(filtered))
	return filtered, nil
}

func (f *TerminologyFilter) matches(ctx context.Context, q cr.Query, r *cr.Resource) (bool, error) {
	values, err := f.eval.Evaluate(ctx, r, q.CodePath)
	if err != nil {
		return false, fmt.Errorf("evaluate code path %q on %s/%s: %w", q.CodePath, r.Type(), r.ID(), err)
	}

	// A single primitive is an id passed as a code.
	if len(values) == 1 && values[0].IsPrimitive() {
		return isPrimitiveMatch(q.DataType, values[0], q.Codes), nil
	}

	codes := f.extractor.ExtractCodes(values)
	if len(codes) == 0 {
		return false, nil
	}

	if anyCodeMatch(codes, q.Codes) {
		return true, nil
	}

	return f.anyCodeInValueSet(ctx, codes, q.ValueSet)
}

func (f *TerminologyFilter) anyCodeInValueSet(ctx context.Context, codes []cr.Code, valueSet string) (bool, error) {
	if valueSet == "" {
		return false, nil
	}
	if f.terminology == nil {
		return false, fmt.Errorf("%w: unable to check code membership in value set %s, no terminology configured",
			cr.ErrConfiguration, valueSet)
	}

	for _, code := range codes {
		member, err := f.terminology.IsMember(ctx, code, valueSet)
		if err != nil {
			return false, fmt.Errorf("check %s in value set %s: %w", code, valueSet, err)
		}
		if member {
			return true, nil
		}
	}
	return false, nil
}

// isPrimitiveMatch compares an id-like value against the literal codes.
// Every "<dataType>/" prefix is removed before comparing.
func isPrimitiveMatch(dataType string, v cr.Value, codes []cr.Code) bool {
	if codes == nil {
		return false
	}
	s, ok := v.AsString()
	if !ok {
		return false
	}
	s = strings.ReplaceAll(s, dataType+"/", "")
	for _, c := range codes {
		if c.IsLiteral() && c.Code == s {
			return true
		}
	}
	return false
}

func anyCodeMatch(left, right []cr.Code) bool {
	for _, l := range left {
		for _, r := range right {
			if l.Matches(r) {
				return true
			}
		}
	}
	return false
}
