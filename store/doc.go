// Package store provides ResourceStore implementations and a URI based
// factory for them.
//
// Supported sources:
//
//	/data/bundle.json            FHIR Bundle or single resource file
//	file:///data/patients        directory of *.json resources and bundles
//	postgres://user@host/db      resource table read through pgx
//	sqlite:///var/lib/cql.db     resource table in a SQLite file
//	sqlite::memory:              in-memory SQLite database
package store
