// Package engine assembles a retrieve engine from configuration: one
// SingleSource per data source, tried in priority order, sharing a path
// evaluator, a cached terminology service and a library cache.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	cr "github.com/gofhir/cqlretrieve"
	"github.com/gofhir/cqlretrieve/cache"
	"github.com/gofhir/cqlretrieve/config"
	"github.com/gofhir/cqlretrieve/evaluator"
	"github.com/gofhir/cqlretrieve/library"
	"github.com/gofhir/cqlretrieve/retriever"
	"github.com/gofhir/cqlretrieve/store"
	"github.com/gofhir/cqlretrieve/terminology"
	"github.com/gofhir/cqlretrieve/worker"
)

// Engine owns the stores, caches and retrievers built from a Config.
type Engine struct {
	cfg    *config.Config
	logger zerolog.Logger

	// Services
	evaluator   *evaluator.FHIRPath
	vocabulary  terminology.Service
	membership  *terminology.Cached
	libraries   library.SourceProvider
	libraryData *library.Cache

	// Retrieval
	stores    []store.Store
	sources   []string
	retriever *retriever.Priority

	metrics *cr.Metrics
}

// Option configures New.
type Option func(*options)

type options struct {
	logger     zerolog.Logger
	registerer prometheus.Registerer
}

// WithLogger sets the logger used by the engine and its retrievers.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithRegisterer registers retrieval and cache metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// New validates cfg and opens every configured source. On error, anything
// already opened is closed.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Engine, error) {
	o := options{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", cr.ErrConfiguration, err)
	}

	e := &Engine{
		cfg:         cfg,
		logger:      o.logger,
		evaluator:   evaluator.New(),
		libraryData: library.NewCache(cfg.LibraryCacheSize),
	}
	if o.registerer != nil {
		e.metrics = cr.NewMetrics(o.registerer)
	}

	if err := e.openTerminology(); err != nil {
		return nil, err
	}
	if err := e.openSources(ctx); err != nil {
		e.Close()
		return nil, err
	}
	if err := e.openLibraries(ctx); err != nil {
		e.Close()
		return nil, err
	}

	if o.registerer != nil {
		o.registerer.MustRegister(cache.NewCollector("library", e.libraryData))
		if e.membership != nil {
			o.registerer.MustRegister(cache.NewCollector("membership", e.membership))
		}
	}

	return e, nil
}

func (e *Engine) openTerminology() error {
	vocab, stats, err := terminology.OpenChain(e.cfg.TerminologyURI)
	if err != nil {
		return fmt.Errorf("terminology: %w", err)
	}
	if vocab == nil {
		e.logger.Info().Msg("no terminology configured, value set filters are unavailable")
		return nil
	}

	e.logger.Info().
		Str("uri", e.cfg.TerminologyURI).
		Int("sources", vocab.Len()).
		Int("code_systems", stats.CodeSystemsLoaded).
		Int("value_sets", stats.ValueSetsLoaded).
		Int("errors", stats.Errors).
		Msg("terminology loaded")

	e.vocabulary = vocab
	e.membership = terminology.NewCached(vocab, e.cfg.MembershipCacheSize)
	return nil
}

func (e *Engine) openSources(ctx context.Context) error {
	children := make([]cr.Retriever, 0, len(e.cfg.DataSources))

	for i, uri := range e.cfg.DataSources {
		s, err := store.Open(ctx, uri, store.WithPoolSize(e.cfg.DBMaxConns, e.cfg.DBMinConns))
		if err != nil {
			return fmt.Errorf("data source %d: %w", i, err)
		}
		e.stores = append(e.stores, s)

		name := fmt.Sprintf("source-%d", i)
		opts := []cr.Option{
			cr.WithName(name),
			cr.WithLogger(e.logger),
			cr.WithMetrics(e.metrics),
		}
		if e.membership != nil {
			opts = append(opts, cr.WithTerminology(e.membership))
		}

		single, err := retriever.NewSingleSource(s, e.evaluator, opts...)
		if err != nil {
			return fmt.Errorf("data source %d: %w", i, err)
		}
		children = append(children, retriever.NewInstrumented(single, name, e.metrics))
		e.sources = append(e.sources, name)

		e.logger.Info().Str("retriever", name).Str("uri", redact(uri)).Msg("data source opened")
	}

	p, err := retriever.NewPriority(children, cr.WithLogger(e.logger), cr.WithMetrics(e.metrics))
	if err != nil {
		return err
	}
	e.retriever = p
	return nil
}

func (e *Engine) openLibraries(ctx context.Context) error {
	if e.cfg.LibraryURI == "" {
		return nil
	}
	s, err := store.Open(ctx, e.cfg.LibraryURI)
	if err != nil {
		return fmt.Errorf("libraries: %w", err)
	}
	e.stores = append(e.stores, s)
	e.libraries = library.NewCachingSourceProvider(library.NewBundleSourceProvider(s), e.libraryData)
	return nil
}

// Retriever returns the priority retriever over every data source.
func (e *Engine) Retriever() cr.Retriever { return e.retriever }

// Sources returns the retriever names in priority order.
func (e *Engine) Sources() []string {
	return append([]string(nil), e.sources...)
}

// Retrieve runs q against the data sources in priority order.
func (e *Engine) Retrieve(ctx context.Context, q cr.Query) (cr.ResultSet, error) {
	return e.retriever.Retrieve(ctx, q)
}

// RetrieveForSubjects runs q once per subject using the configured number
// of workers.
func (e *Engine) RetrieveForSubjects(ctx context.Context, q cr.Query, subjects []string) ([]cr.ResultSet, error) {
	return worker.RetrieveForSubjects(ctx, e.retriever, q, subjects, e.cfg.Workers)
}

// Batch returns a batch runner over the engine's retriever.
func (e *Engine) Batch() *worker.Batch {
	return worker.NewBatch(e.retriever, e.cfg.Workers)
}

// Expand lists the codes of a value set.
func (e *Engine) Expand(ctx context.Context, valueSet string) ([]cr.Code, error) {
	if e.vocabulary == nil {
		return nil, fmt.Errorf("%w: no terminology configured", cr.ErrConfiguration)
	}
	return e.vocabulary.Expand(ctx, valueSet)
}

// IsMember answers a membership question through the membership cache.
func (e *Engine) IsMember(ctx context.Context, code cr.Code, valueSet string) (bool, error) {
	if e.membership == nil {
		return false, fmt.Errorf("%w: no terminology configured", cr.ErrConfiguration)
	}
	return e.membership.IsMember(ctx, code, valueSet)
}

// LibrarySource returns the CQL source of a library.
func (e *Engine) LibrarySource(ctx context.Context, id library.VersionedIdentifier) ([]byte, error) {
	if e.libraries == nil {
		return nil, fmt.Errorf("%w: no library source configured", cr.ErrConfiguration)
	}
	return e.libraries.LibrarySource(ctx, id)
}

// Metrics returns the retrieval metrics, or nil when no registerer was set.
func (e *Engine) Metrics() *cr.Metrics { return e.metrics }

// Close releases every store and clears the caches.
func (e *Engine) Close() error {
	var errs []error
	for _, s := range e.stores {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	e.stores = nil
	e.libraryData.Clear()
	if e.membership != nil {
		e.membership.Clear()
	}
	e.evaluator.ClearCache()
	return errors.Join(errs...)
}

// redact hides the password of a database URI before it is logged.
func redact(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.User == nil {
		return uri
	}
	return u.Redacted()
}
