// Package library resolves CQL library source text from FHIR Library
// resources.
package library

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	cr "github.com/gofhir/cqlretrieve"
	"github.com/gofhir/cqlretrieve/cache"
)

// ErrLibraryNotFound is returned when no library matches an identifier.
var ErrLibraryNotFound = errors.New("library not found")

// ContentTypeCQL is the attachment content type of CQL source.
const ContentTypeCQL = "text/cql"

// VersionedIdentifier names a library. An empty Version selects the
// highest available version.
type VersionedIdentifier struct {
	ID      string
	Version string
}

// String returns "id|version", or "id" when no version is set.
func (v VersionedIdentifier) String() string {
	if v.Version == "" {
		return v.ID
	}
	return v.ID + "|" + v.Version
}

// SourceProvider returns the CQL source of a library.
type SourceProvider interface {
	LibrarySource(ctx context.Context, id VersionedIdentifier) ([]byte, error)
}

// BundleSourceProvider reads Library resources from a ResourceStore,
// typically a bundle loaded with store.NewBundle.
type BundleSourceProvider struct {
	store cr.ResourceStore
}

// NewBundleSourceProvider creates a provider over the Library resources of s.
func NewBundleSourceProvider(s cr.ResourceStore) *BundleSourceProvider {
	return &BundleSourceProvider{store: s}
}

// LibrarySource returns the text/cql content of the library whose name
// (or id) matches. With no version requested the highest version wins.
func (p *BundleSourceProvider) LibrarySource(ctx context.Context, id VersionedIdentifier) ([]byte, error) {
	lib, err := p.Library(ctx, id)
	if err != nil {
		return nil, err
	}
	return cqlContent(lib, id)
}

// Library returns the matching Library resource.
func (p *BundleSourceProvider) Library(ctx context.Context, id VersionedIdentifier) (*cr.Resource, error) {
	if id.ID == "" {
		return nil, fmt.Errorf("%w: empty identifier", ErrLibraryNotFound)
	}

	libraries, err := p.store.AllOfType(ctx, "Library")
	if err != nil {
		return nil, fmt.Errorf("load libraries: %w", err)
	}

	var best *cr.Resource
	var bestVersion string
	for _, lib := range libraries {
		data := lib.Data()
		name, _ := data["name"].(string)
		if name != id.ID && lib.ID() != id.ID {
			continue
		}
		version, _ := data["version"].(string)

		if id.Version != "" {
			if version == id.Version {
				return lib, nil
			}
			continue
		}
		if best == nil || CompareVersions(version, bestVersion) > 0 {
			best, bestVersion = lib, version
		}
	}

	if best == nil {
		return nil, fmt.Errorf("%w: %s", ErrLibraryNotFound, id)
	}
	return best, nil
}

// cqlContent decodes the first text/cql attachment.
func cqlContent(lib *cr.Resource, id VersionedIdentifier) ([]byte, error) {
	contents, _ := lib.Data()["content"].([]any)
	for _, c := range contents {
		attachment, ok := c.(map[string]any)
		if !ok {
			continue
		}
		if contentType, _ := attachment["contentType"].(string); contentType != ContentTypeCQL {
			continue
		}
		encoded, _ := attachment["data"].(string)
		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("decode %s content: %w", id, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("%w: %s has no %s content", ErrLibraryNotFound, id, ContentTypeCQL)
}

// CompareVersions compares dotted versions segment by segment, numerically
// where both segments are numbers. It returns -1, 0 or 1.
func CompareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		var x, y string
		if i < len(as) {
			x = as[i]
		}
		if i < len(bs) {
			y = bs[i]
		}
		if c := compareSegment(x, y); c != 0 {
			return c
		}
	}
	return 0
}

func compareSegment(x, y string) int {
	xn, xerr := strconv.Atoi(x)
	yn, yerr := strconv.Atoi(y)
	switch {
	case xerr == nil && yerr == nil:
		switch {
		case xn < yn:
			return -1
		case xn > yn:
			return 1
		}
		return 0
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

// Cache holds library sources keyed by identifier. It is owned by the host
// and shared across providers.
type Cache struct {
	lru *cache.LRU[VersionedIdentifier, []byte]
}

// NewCache creates a cache holding up to size libraries.
func NewCache(size int) *Cache {
	return &Cache{lru: cache.New[VersionedIdentifier, []byte](size)}
}

// Stats returns the cache statistics.
func (c *Cache) Stats() cache.Stats { return c.lru.Stats() }

// Clear drops every cached library.
func (c *Cache) Clear() { c.lru.Clear() }

// CachingSourceProvider wraps a SourceProvider with a Cache.
// Lookups that fail are not cached.
type CachingSourceProvider struct {
	inner SourceProvider
	cache *Cache
}

// NewCachingSourceProvider creates a caching wrapper.
func NewCachingSourceProvider(inner SourceProvider, c *Cache) *CachingSourceProvider {
	return &CachingSourceProvider{inner: inner, cache: c}
}

// LibrarySource checks the cache first, then calls the wrapped provider.
func (p *CachingSourceProvider) LibrarySource(ctx context.Context, id VersionedIdentifier) ([]byte, error) {
	return p.cache.lru.GetOrLoad(id, func() ([]byte, error) {
		return p.inner.LibrarySource(ctx, id)
	})
}

// Verify interface compliance
var (
	_ SourceProvider = (*BundleSourceProvider)(nil)
	_ SourceProvider = (*CachingSourceProvider)(nil)
)
