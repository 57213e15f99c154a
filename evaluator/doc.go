// Package evaluator evaluates FHIRPath expressions against resources and
// extracts codes from the results.
//
// Plain element paths such as "code" or "Observation.subject" are resolved
// by walking the decoded resource directly. Every other expression is
// compiled with github.com/gofhir/fhirpath and cached.
//
//	eval := evaluator.New()
//	values, err := eval.Evaluate(ctx, resource, "code.coding.where(system = 'http://loinc.org')")
//
//	codes := evaluator.CodeExtractor{}.ExtractCodes(values)
package evaluator
