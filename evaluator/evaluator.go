package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/gofhir/fhirpath"
	"github.com/gofhir/fhirpath/types"

	cr "github.com/gofhir/cqlretrieve"
)

// FHIRPath implements cqlretrieve.PathEvaluator.
// It is safe for concurrent use.
type FHIRPath struct {
	// Cache of compiled FHIRPath expressions.
	exprCache   map[string]*fhirpath.Expression
	exprCacheMu sync.RWMutex
}

// New creates a FHIRPath evaluator.
func New() *FHIRPath {
	return &FHIRPath{
		exprCache: make(map[string]*fhirpath.Expression),
	}
}

// Evaluate evaluates path against r.
func (e *FHIRPath) Evaluate(ctx context.Context, r *cr.Resource, path string) ([]cr.Value, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if r == nil {
		return nil, nil
	}

	if isElementPath(path) {
		return navigate(r, path), nil
	}

	compiled, err := e.getCompiledExpression(path)
	if err != nil {
		return nil, fmt.Errorf("failed to compile FHIRPath expression '%s': %w", path, err)
	}

	result, err := compiled.Evaluate(r.Raw())
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate FHIRPath expression '%s': %w", path, err)
	}

	return fromCollection(result, lastSegment(path)), nil
}

// getCompiledExpression returns a cached compiled expression or compiles a new one.
func (e *FHIRPath) getCompiledExpression(expr string) (*fhirpath.Expression, error) {
	e.exprCacheMu.RLock()
	compiled, ok := e.exprCache[expr]
	e.exprCacheMu.RUnlock()
	if ok {
		return compiled, nil
	}

	compiled, err := fhirpath.Compile(expr)
	if err != nil {
		return nil, err
	}

	e.exprCacheMu.Lock()
	e.exprCache[expr] = compiled
	e.exprCacheMu.Unlock()

	return compiled, nil
}

// CacheSize returns the number of compiled expressions held.
func (e *FHIRPath) CacheSize() int {
	e.exprCacheMu.RLock()
	defer e.exprCacheMu.RUnlock()
	return len(e.exprCache)
}

// ClearCache drops all compiled expressions.
func (e *FHIRPath) ClearCache() {
	e.exprCacheMu.Lock()
	e.exprCache = make(map[string]*fhirpath.Expression)
	e.exprCacheMu.Unlock()
}

// fromCollection converts FHIRPath results. Objects are decoded from their
// JSON data; scalars keep their value and are never reparsed.
func fromCollection(result types.Collection, name string) []cr.Value {
	values := make([]cr.Value, 0, len(result))
	for _, item := range result {
		switch v := item.(type) {
		case types.Boolean:
			values = append(values, cr.Value{Kind: cr.KindPrimitive, Raw: v.Bool()})
		case types.String:
			values = append(values, classify(name, v.Value()))
		case types.Integer:
			values = append(values, cr.Value{Kind: cr.KindPrimitive, Raw: float64(v.Value())})
		case types.Decimal:
			f, _ := v.Value().Float64()
			values = append(values, cr.Value{Kind: cr.KindPrimitive, Raw: f})
		case *types.ObjectValue:
			var element map[string]any
			if err := json.Unmarshal(v.Data(), &element); err != nil {
				continue
			}
			values = append(values, classify(name, element))
		default:
			values = append(values, cr.Value{Kind: cr.KindPrimitive, Raw: item.String()})
		}
	}
	return values
}

// lastSegment returns the final member name of an expression, ignoring any
// trailing function call. "subject.reference" -> "reference", "id" -> "id".
func lastSegment(expr string) string {
	expr = strings.TrimSpace(expr)
	if i := strings.LastIndex(expr, "."); i >= 0 {
		expr = expr[i+1:]
	}
	if i := strings.IndexAny(expr, "(["); i >= 0 {
		expr = expr[:i]
	}
	return expr
}

// Verify interface compliance
var _ cr.PathEvaluator = (*FHIRPath)(nil)
