package retriever

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	cr "github.com/gofhir/cqlretrieve"
	"github.com/gofhir/cqlretrieve/evaluator"
)

// SingleSource retrieves from one ResourceStore and applies the context
// and terminology filters. It is safe for concurrent use when the store
// and evaluator are.
type SingleSource struct {
	store       cr.ResourceStore
	name        string
	contexts    *ContextFilter
	terminology *TerminologyFilter
	logger      zerolog.Logger
}

// NewSingleSource creates a retriever over store.
func NewSingleSource(store cr.ResourceStore, eval cr.PathEvaluator, opts ...cr.Option) (*SingleSource, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", cr.ErrValidation)
	}
	if eval == nil {
		return nil, fmt.Errorf("%w: path evaluator is required", cr.ErrValidation)
	}

	o := cr.Apply(opts...)
	if o.Extractor == nil {
		o.Extractor = evaluator.CodeExtractor{}
	}
	logger := o.Logger.With().Str("retriever", o.Name).Logger()

	return &SingleSource{
		store:       store,
		name:        o.Name,
		contexts:    NewContextFilter(eval, logger, o.Metrics),
		terminology: NewTerminologyFilter(eval, o.Extractor, o.Terminology, logger, o.Metrics),
		logger:      logger,
	}, nil
}

// Name returns the retriever name.
func (s *SingleSource) Name() string { return s.name }

// Retrieve returns the stored resources of q.DataType that pass both filters.
// The result is never nil when err is nil.
func (s *SingleSource) Retrieve(ctx context.Context, q cr.Query) (cr.ResultSet, error) {
	all, err := s.store.AllOfType(ctx, q.DataType)
	if err != nil {
		return nil, fmt.Errorf("%s: load %s: %w", s.name, q.DataType, err)
	}

	records, err := s.contexts.Apply(ctx, q, all)
	if err != nil {
		return nil, fmt.Errorf("%s: context filter: %w", s.name, err)
	}

	records, err = s.terminology.Apply(ctx, q, records)
	if err != nil {
		return nil, fmt.Errorf("%s: terminology filter: %w", s.name, err)
	}

	s.logger.Debug().
		EmbedObject(q).
		Int("candidates", len(all)).
		Int("results", len(records)).
		Msg("retrieve completed")

	result := make(cr.ResultSet, len(records))
	copy(result, records)
	return result, nil
}

// Verify interface compliance
var _ cr.Retriever = (*SingleSource)(nil)
