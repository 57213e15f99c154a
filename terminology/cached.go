package terminology

import (
	"context"

	cr "github.com/gofhir/cqlretrieve"
	"github.com/gofhir/cqlretrieve/cache"
)

// memberKey identifies one membership question.
type memberKey struct {
	valueSet string
	system   string
	code     string
}

// Cached wraps a membership service with an LRU of answers.
// Errors are not cached.
type Cached struct {
	inner cr.TerminologyMembership
	cache *cache.LRU[memberKey, bool]
}

// NewCached creates a caching wrapper holding up to size answers.
func NewCached(inner cr.TerminologyMembership, size int) *Cached {
	return &Cached{
		inner: inner,
		cache: cache.New[memberKey, bool](size),
	}
}

// IsMember checks the cache first, then asks the wrapped service.
func (c *Cached) IsMember(ctx context.Context, code cr.Code, valueSet string) (bool, error) {
	key := memberKey{valueSet: valueSet, system: code.System, code: code.Code}
	return c.cache.GetOrLoad(key, func() (bool, error) {
		return c.inner.IsMember(ctx, code, valueSet)
	})
}

// Stats returns the cache statistics.
func (c *Cached) Stats() cache.Stats {
	return c.cache.Stats()
}

// Clear drops every cached answer.
func (c *Cached) Clear() {
	c.cache.Clear()
}

// Verify interface compliance
var _ cr.TerminologyMembership = (*Cached)(nil)
