package evaluator

import (
	"strings"
	"unicode"

	cr "github.com/gofhir/cqlretrieve"
)

// isElementPath reports whether path is a plain dotted element path.
func isElementPath(path string) bool {
	if path == "" {
		return false
	}
	for _, seg := range strings.Split(path, ".") {
		if !isIdentifier(seg) {
			return false
		}
	}
	return true
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || unicode.IsLetter(r):
		case i > 0 && unicode.IsDigit(r):
		default:
			return false
		}
	}
	return true
}

// navigate resolves a plain element path. A leading segment equal to the
// resource type is skipped, arrays are flattened and choice elements
// ("value" -> "valueQuantity") are resolved by prefix.
func navigate(r *cr.Resource, path string) []cr.Value {
	segs := strings.Split(path, ".")
	if segs[0] == r.Type() {
		segs = segs[1:]
	}
	if len(segs) == 0 {
		return []cr.Value{{Kind: cr.KindElement, Raw: r.Data()}}
	}

	current := []any{r.Data()}
	for _, seg := range segs {
		var next []any
		for _, node := range current {
			m, ok := node.(map[string]any)
			if !ok {
				continue
			}
			v, found := lookup(m, seg)
			if !found {
				continue
			}
			next = flatten(next, v)
		}
		if len(next) == 0 {
			return nil
		}
		current = next
	}

	name := segs[len(segs)-1]
	values := make([]cr.Value, 0, len(current))
	for _, v := range current {
		if v == nil {
			continue
		}
		values = append(values, classify(name, v))
	}
	return values
}

func lookup(m map[string]any, name string) (any, bool) {
	if v, ok := m[name]; ok {
		return v, true
	}
	for key, v := range m {
		if len(key) > len(name) && strings.HasPrefix(key, name) && unicode.IsUpper(rune(key[len(name)])) {
			return v, true
		}
	}
	return nil, false
}

func flatten(dst []any, v any) []any {
	if arr, ok := v.([]any); ok {
		for _, item := range arr {
			dst = flatten(dst, item)
		}
		return dst
	}
	return append(dst, v)
}

// classify assigns a kind to a value found under the element name.
func classify(name string, v any) cr.Value {
	switch val := v.(type) {
	case map[string]any:
		if _, ok := val["reference"].(string); ok {
			return cr.Value{Kind: cr.KindReference, Raw: val}
		}
		return cr.Value{Kind: cr.KindElement, Raw: val}
	case string:
		if name == "id" {
			return cr.Value{Kind: cr.KindID, Raw: val}
		}
		return cr.Value{Kind: cr.KindPrimitive, Raw: val}
	default:
		return cr.Value{Kind: cr.KindPrimitive, Raw: val}
	}
}
