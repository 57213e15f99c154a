package retriever

import (
	"context"
	"testing"

	cr "github.com/gofhir/cqlretrieve"
)

// mockStore is a test implementation of ResourceStore
type mockStore struct {
	resources []*cr.Resource
	err       error
	calls     int
}

func (m *mockStore) AllOfType(ctx context.Context, dataType string) ([]*cr.Resource, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	var out []*cr.Resource
	for _, r := range m.resources {
		if r.Type() == dataType {
			out = append(out, r)
		}
	}
	return out, nil
}

// mockEvaluator returns fixed values per path.
type mockEvaluator struct {
	values map[string][]cr.Value
	err    error
}

func (m *mockEvaluator) Evaluate(ctx context.Context, r *cr.Resource, path string) ([]cr.Value, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.values[r.ID()+":"+path], nil
}

// mockMembership is a test implementation of TerminologyMembership
type mockMembership struct {
	members map[string]bool // key: valueSet + "|" + system|code
	err     error
	calls   int
}

func (m *mockMembership) IsMember(ctx context.Context, code cr.Code, valueSet string) (bool, error) {
	m.calls++
	if m.err != nil {
		return false, m.err
	}
	return m.members[valueSet+"|"+code.String()], nil
}

// stubRetriever returns a fixed result.
type stubRetriever struct {
	result cr.ResultSet
	err    error
	calls  int
}

func (s *stubRetriever) Retrieve(ctx context.Context, q cr.Query) (cr.ResultSet, error) {
	s.calls++
	return s.result, s.err
}

func mustResource(t *testing.T, raw string) *cr.Resource {
	t.Helper()
	r, err := cr.NewResource([]byte(raw))
	if err != nil {
		t.Fatalf("NewResource() error = %v", err)
	}
	return r
}

func patient(t *testing.T, id string) *cr.Resource {
	t.Helper()
	return mustResource(t, `{"resourceType":"Patient","id":"`+id+`"}`)
}

func assertIDs(t *testing.T, got cr.ResultSet, want ...string) {
	t.Helper()
	ids := got.IDs()
	if len(ids) != len(want) {
		t.Fatalf("got ids %v; want %v", ids, want)
	}
	for i := range ids {
		if ids[i] != want[i] {
			t.Fatalf("got ids %v; want %v", ids, want)
		}
	}
}
