package cqlretrieve

import (
	"context"
	"strconv"
)

// Retriever selects resources for a query.
//
// Implementations must return a non-nil ResultSet whenever the error is nil.
// An empty result means "no data here"; a nil result is a defect.
type Retriever interface {
	Retrieve(ctx context.Context, q Query) (ResultSet, error)
}

// RetrieverFunc adapts a function to the Retriever interface.
type RetrieverFunc func(ctx context.Context, q Query) (ResultSet, error)

// Retrieve calls f(ctx, q).
func (f RetrieverFunc) Retrieve(ctx context.Context, q Query) (ResultSet, error) {
	return f(ctx, q)
}

// --- Collaborators ---

// ResourceStore enumerates every stored resource of a type.
type ResourceStore interface {
	AllOfType(ctx context.Context, dataType string) ([]*Resource, error)
}

// PathEvaluator evaluates a path expression against a resource.
type PathEvaluator interface {
	Evaluate(ctx context.Context, r *Resource, path string) ([]Value, error)
}

// CodeExtractor converts path results into codes.
type CodeExtractor interface {
	ExtractCodes(values []Value) []Code
}

// TerminologyMembership answers value set membership questions.
type TerminologyMembership interface {
	IsMember(ctx context.Context, code Code, valueSet string) (bool, error)
}

// --- Values ---

// ValueKind classifies a path result.
type ValueKind int

const (
	// KindPrimitive is a scalar: string, boolean or number.
	KindPrimitive ValueKind = iota

	// KindID is a resource id.
	KindID

	// KindReference is a Reference element.
	KindReference

	// KindElement is any other complex element.
	KindElement
)

// String returns the kind name.
func (k ValueKind) String() string {
	switch k {
	case KindPrimitive:
		return "primitive"
	case KindID:
		return "id"
	case KindReference:
		return "reference"
	case KindElement:
		return "element"
	default:
		return "unknown"
	}
}

// Value is one item produced by a PathEvaluator.
// Raw holds a string, bool or float64 for scalars and a map[string]any for
// complex elements.
type Value struct {
	Kind ValueKind
	Raw  any
}

// IsPrimitive reports whether v is a scalar (ids included).
func (v Value) IsPrimitive() bool {
	return v.Kind == KindPrimitive || v.Kind == KindID
}

// AsString returns the scalar value as a string.
func (v Value) AsString() (string, bool) {
	switch raw := v.Raw.(type) {
	case string:
		return raw, true
	case bool:
		return strconv.FormatBool(raw), true
	case float64:
		return strconv.FormatFloat(raw, 'f', -1, 64), true
	case int:
		return strconv.Itoa(raw), true
	default:
		return "", false
	}
}

// Element returns the complex element.
func (v Value) Element() (map[string]any, bool) {
	m, ok := v.Raw.(map[string]any)
	return m, ok
}

// Reference returns the literal reference of a Reference element.
func (v Value) Reference() (string, bool) {
	m, ok := v.Raw.(map[string]any)
	if !ok {
		return "", false
	}
	ref, ok := m["reference"].(string)
	return ref, ok
}
