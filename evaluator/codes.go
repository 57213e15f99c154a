package evaluator

import (
	cr "github.com/gofhir/cqlretrieve"
)

// CodeExtractor implements cqlretrieve.CodeExtractor for CodeableConcept,
// Coding and primitive code values.
type CodeExtractor struct{}

// ExtractCodes returns the codes carried by values, in order.
func (CodeExtractor) ExtractCodes(values []cr.Value) []cr.Code {
	var codes []cr.Code
	for _, v := range values {
		switch v.Kind {
		case cr.KindElement:
			codes = appendElementCodes(codes, v.Raw)
		case cr.KindPrimitive:
			if s, ok := v.Raw.(string); ok && s != "" {
				codes = append(codes, cr.Code{Code: s})
			}
		}
	}
	return codes
}

func appendElementCodes(codes []cr.Code, raw any) []cr.Code {
	element, ok := raw.(map[string]any)
	if !ok {
		return codes
	}

	// CodeableConcept
	if coding, ok := element["coding"].([]any); ok {
		for _, c := range coding {
			if m, ok := c.(map[string]any); ok {
				if code, ok := toCode(m); ok {
					codes = append(codes, code)
				}
			}
		}
		return codes
	}

	// Coding
	if code, ok := toCode(element); ok {
		codes = append(codes, code)
	}
	return codes
}

func toCode(m map[string]any) (cr.Code, bool) {
	code, _ := m["code"].(string)
	if code == "" {
		return cr.Code{}, false
	}
	system, _ := m["system"].(string)
	version, _ := m["version"].(string)
	display, _ := m["display"].(string)
	return cr.Code{Code: code, System: system, Version: version, Display: display}, true
}

// Verify interface compliance
var _ cr.CodeExtractor = CodeExtractor{}
