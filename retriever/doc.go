// Package retriever selects FHIR resources for a retrieve query.
//
// SingleSource reads every resource of the requested type from one
// ResourceStore and narrows the set in two steps: ContextFilter keeps the
// records that belong to the context subject, then TerminologyFilter keeps
// the records whose coded element matches the requested codes or value set.
//
// Priority composes retrievers in a chain of responsibility. Children are
// tried in order and the first non-empty result wins:
//
//	local, _ := retriever.NewSingleSource(bundleStore, eval)
//	remote, _ := retriever.NewSingleSource(pgStore, eval)
//	chain, _ := retriever.NewPriority([]cqlretrieve.Retriever{local, remote})
//	results, err := chain.Retrieve(ctx, query)
//
// Instrumented decorates any retriever with Prometheus metrics.
package retriever
