// Package worker runs a retrieve across many context subjects in parallel.
//
// A CQL evaluation in Patient context issues the same retrieve once per
// patient. Batch fans those retrieves out over a fixed number of goroutines
// and gathers the results back in subject order.
//
// Example usage:
//
//	q := cqlretrieve.Query{
//	    Context:     "Patient",
//	    ContextPath: "subject",
//	    DataType:    "Observation",
//	}
//
//	sets, err := worker.RetrieveForSubjects(ctx, retriever, q, patientIDs, 4)
//	if err != nil {
//	    // The first failing subject, in order
//	}
//	for i, rs := range sets {
//	    fmt.Println(patientIDs[i], len(rs))
//	}
package worker
