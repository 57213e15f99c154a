package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	cr "github.com/gofhir/cqlretrieve"
	"github.com/gofhir/cqlretrieve/store/postgres"
	"github.com/gofhir/cqlretrieve/store/sqlite"
)

// ErrUnsupportedSource is returned by Open for URIs with an unknown scheme.
var ErrUnsupportedSource = errors.New("unsupported data source")

// Store is a ResourceStore that holds resources which must be released.
type Store interface {
	cr.ResourceStore
	Close() error
}

// Writer is a Store that accepts new resources. Put replaces any stored
// resource with the same type and id.
type Writer interface {
	Store
	Put(ctx context.Context, r *cr.Resource) error
}

var schemeRE = regexp.MustCompile(`^\w+?://.*`)

// IsFileURI reports whether uri names a local file: either a file URI or
// anything without a "scheme://" prefix.
func IsFileURI(uri string) bool {
	return strings.HasPrefix(uri, "file") || !schemeRE.MatchString(uri)
}

// FilePath returns the local path of a file URI.
func FilePath(uri string) string {
	switch {
	case strings.HasPrefix(uri, "file://"):
		return strings.TrimPrefix(uri, "file://")
	case strings.HasPrefix(uri, "file:"):
		return strings.TrimPrefix(uri, "file:")
	}
	return uri
}

// OpenOption configures Open.
type OpenOption func(*openConfig)

type openConfig struct {
	maxConns int32
	minConns int32
}

// WithPoolSize sets the connection pool bounds of database sources.
func WithPoolSize(maxConns, minConns int32) OpenOption {
	return func(c *openConfig) {
		c.maxConns = maxConns
		c.minConns = minConns
	}
}

// Open returns the store named by uri.
func Open(ctx context.Context, uri string, opts ...OpenOption) (Store, error) {
	cfg := openConfig{maxConns: 4, minConns: 0}
	for _, opt := range opts {
		opt(&cfg)
	}

	switch {
	case uri == "":
		return nil, fmt.Errorf("%w: empty uri", ErrUnsupportedSource)

	case strings.HasPrefix(uri, "postgres://"), strings.HasPrefix(uri, "postgresql://"):
		s, err := postgres.Open(ctx, uri, cfg.maxConns, cfg.minConns)
		if err != nil {
			return nil, err
		}
		return s, nil

	case strings.HasPrefix(uri, "sqlite:"):
		s, err := sqlite.Open(ctx, sqlitePath(uri))
		if err != nil {
			return nil, err
		}
		return s, nil

	case IsFileURI(uri):
		path := FilePath(uri)
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", uri, err)
		}
		load := LoadFile
		if info.IsDir() {
			load = LoadDirectory
		}
		m, err := load(path)
		if err != nil {
			return nil, err
		}
		return m, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnsupportedSource, uri)
}

// OpenWriter returns a writable store for uri. Database sources get their
// schema created; file sources are read-only and rejected.
func OpenWriter(ctx context.Context, uri string, opts ...OpenOption) (Writer, error) {
	cfg := openConfig{maxConns: 4, minConns: 0}
	for _, opt := range opts {
		opt(&cfg)
	}

	switch {
	case strings.HasPrefix(uri, "postgres://"), strings.HasPrefix(uri, "postgresql://"):
		s, err := postgres.Open(ctx, uri, cfg.maxConns, cfg.minConns)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil

	case strings.HasPrefix(uri, "sqlite:"):
		s, err := sqlite.Open(ctx, sqlitePath(uri))
		if err != nil {
			return nil, err
		}
		return s, nil
	}

	return nil, fmt.Errorf("%w: %s is not writable", ErrUnsupportedSource, uri)
}

func sqlitePath(uri string) string {
	return strings.TrimPrefix(strings.TrimPrefix(uri, "sqlite:"), "//")
}

// Verify interface compliance
var (
	_ Writer = (*postgres.Store)(nil)
	_ Writer = (*sqlite.Store)(nil)
)
