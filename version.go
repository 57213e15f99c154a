package cqlretrieve

// Version is the module release.
const Version = "0.1.0"

// FHIRVersion is the FHIR release whose resources and terminology
// structures are understood.
const FHIRVersion = "4.0.1"
