package terminology

import (
	"context"
	"errors"
	"fmt"
	"strings"

	cr "github.com/gofhir/cqlretrieve"
)

// Service answers membership questions and expands value sets.
type Service interface {
	cr.TerminologyMembership
	Expand(ctx context.Context, url string) ([]cr.Code, error)
}

// Chain tries multiple services in order. The first service that knows the
// value set answers; ErrValueSetNotFound moves on to the next one.
type Chain struct {
	services []Service
}

// NewChain creates a chain over services.
func NewChain(services ...Service) *Chain {
	return &Chain{services: services}
}

// Add appends a service to the chain.
func (c *Chain) Add(service Service) {
	c.services = append(c.services, service)
}

// Len returns the number of services.
func (c *Chain) Len() int { return len(c.services) }

// IsMember asks each service until one knows the value set.
func (c *Chain) IsMember(ctx context.Context, code cr.Code, valueSet string) (bool, error) {
	for _, svc := range c.services {
		ok, err := svc.IsMember(ctx, code, valueSet)
		if err == nil {
			return ok, nil
		}
		// Continue to next service if not found
		if !errors.Is(err, ErrValueSetNotFound) {
			return false, err
		}
	}
	return false, fmt.Errorf("%w: %s", ErrValueSetNotFound, valueSet)
}

// Expand returns the expansion from the first service that knows the value
// set.
func (c *Chain) Expand(ctx context.Context, valueSet string) ([]cr.Code, error) {
	for _, svc := range c.services {
		codes, err := svc.Expand(ctx, valueSet)
		if err == nil {
			return codes, nil
		}
		if !errors.Is(err, ErrValueSetNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrValueSetNotFound, valueSet)
}

// OpenChain opens every comma separated uri with Open and chains the
// results in order. An empty uri returns nil.
func OpenChain(uris string) (*Chain, *LoadStats, error) {
	total := &LoadStats{}
	chain := NewChain()

	for _, uri := range strings.Split(uris, ",") {
		uri = strings.TrimSpace(uri)
		if uri == "" {
			continue
		}
		mem, stats, err := Open(uri)
		if err != nil {
			return nil, nil, err
		}
		chain.Add(mem)
		total.CodeSystemsLoaded += stats.CodeSystemsLoaded
		total.ValueSetsLoaded += stats.ValueSetsLoaded
		total.Errors += stats.Errors
	}

	if chain.Len() == 0 {
		return nil, nil, nil
	}
	return chain, total, nil
}

// Verify interface compliance
var (
	_ Service = (*Memory)(nil)
	_ Service = (*Chain)(nil)
)
