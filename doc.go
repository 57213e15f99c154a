// Package cqlretrieve provides the data retrieval layer used by clinical
// quality evaluation: selecting FHIR resources of a given type that belong
// to a clinical context and match a terminology filter.
//
// # Quick Start
//
//	import (
//	    cr "github.com/gofhir/cqlretrieve"
//	    "github.com/gofhir/cqlretrieve/evaluator"
//	    "github.com/gofhir/cqlretrieve/retriever"
//	    "github.com/gofhir/cqlretrieve/store"
//	)
//
//	bundle, err := store.NewBundle(bundleJSON)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	source, err := retriever.NewSingleSource(bundle, evaluator.New(),
//	    cr.WithTerminology(membership),
//	)
//
//	results, err := source.Retrieve(ctx, cr.Query{
//	    Context:      "Patient",
//	    ContextPath:  "subject",
//	    ContextValue: "patient-1",
//	    DataType:     "Observation",
//	    CodePath:     "code",
//	    Codes:        []cr.Code{{Code: "1234-5", System: "http://loinc.org"}},
//	})
//
// # Composition
//
// Retrievers share one interface, so sources can be layered. A Priority
// retriever asks each child in order and returns the first non-empty
// result without merging:
//
//	chain, err := retriever.NewPriority([]cr.Retriever{local, warehouse})
//
// # Engine
//
// The engine package builds the whole stack from a config.Config, one
// source per data source URI, with a cached terminology chain:
//
//	cfg, err := config.Load("cqlretrieve.yaml")
//	e, err := engine.New(ctx, cfg, engine.WithLogger(logger.New(os.Stderr, zerolog.InfoLevel, "json")))
//	defer e.Close()
//	results, err := e.Retrieve(ctx, q)
//
// # Contract
//
//   - Retrieve never returns a nil ResultSet together with a nil error.
//   - Filtering only selects; records and stores are never modified.
//   - Date range parameters are accepted and passed through unfiltered.
package cqlretrieve
