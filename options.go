package cqlretrieve

import "github.com/rs/zerolog"

// Option configures a retriever.
type Option func(*Options)

// Options holds the optional collaborators of a retriever.
type Options struct {
	// Name identifies the retriever in logs and metrics.
	Name string

	// Terminology answers value set membership. Nil disables value set
	// filtering; queries that need it fail with ErrConfiguration.
	Terminology TerminologyMembership

	// Extractor turns path results into codes.
	Extractor CodeExtractor

	Logger  zerolog.Logger
	Metrics *Metrics
}

// DefaultOptions returns the default configuration.
func DefaultOptions() *Options {
	return &Options{
		Name:   "source",
		Logger: zerolog.Nop(),
	}
}

// Apply returns DefaultOptions with opts applied in order.
func Apply(opts ...Option) *Options {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithName sets the retriever name.
func WithName(name string) Option {
	return func(o *Options) {
		o.Name = name
	}
}

// WithTerminology sets the value set membership service.
func WithTerminology(t TerminologyMembership) Option {
	return func(o *Options) {
		o.Terminology = t
	}
}

// WithCodeExtractor overrides the code extractor.
func WithCodeExtractor(e CodeExtractor) Option {
	return func(o *Options) {
		o.Extractor = e
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithMetrics enables metrics collection.
func WithMetrics(m *Metrics) Option {
	return func(o *Options) {
		o.Metrics = m
	}
}
