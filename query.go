package cqlretrieve

import (
	"time"

	"github.com/rs/zerolog"
)

// Code is a coded value: a code and the system that defines it.
type Code struct {
	Code    string
	System  string
	Version string
	Display string
}

// Matches reports whether c and other denote the same concept.
// Both the code and the system must be present; a code without a system
// matches nothing.
func (c Code) Matches(other Code) bool {
	return c.Code != "" && c.System != "" &&
		c.Code == other.Code && c.System == other.System
}

// IsLiteral reports whether c carries a bare value with no coding system.
// Literal codes are used to filter by resource id.
func (c Code) IsLiteral() bool {
	return c.System == ""
}

// String returns the code in "system|code" form.
func (c Code) String() string {
	if c.System == "" {
		return c.Code
	}
	return c.System + "|" + c.Code
}

// Literal returns a literal code for value.
func Literal(value string) Code {
	return Code{Code: value}
}

// Interval is a date range. It is carried on a Query for collaborators that
// filter by date and is not interpreted by this package.
type Interval struct {
	Low        time.Time
	High       time.Time
	LowClosed  bool
	HighClosed bool
}

// Query describes one retrieve request.
//
// Empty strings mean "not specified". Codes distinguishes nil (no code
// filter) from an empty, non-nil slice (filter by an empty code list).
type Query struct {
	// Context is the name of the evaluation context, e.g. "Patient".
	Context string

	// ContextPath is the path from a record to the context reference.
	ContextPath string

	// ContextValue is the id of the context subject.
	ContextValue string

	// DataType is the resource type to retrieve.
	DataType string

	// TemplateID is the profile the data is expected to conform to.
	TemplateID string

	// CodePath is the path from a record to its coded element.
	CodePath string

	// Codes are the requested codes.
	Codes []Code

	// ValueSet is the canonical URL of a value set to filter by.
	ValueSet string

	DatePath     string
	DateLowPath  string
	DateHighPath string
	DateRange    *Interval
}

// HasContext reports whether the query is scoped to a context subject.
func (q Query) HasContext() bool {
	return q.Context != "" && q.ContextPath != "" && q.ContextValue != ""
}

// HasTerminology reports whether the query filters by codes or value set.
func (q Query) HasTerminology() bool {
	return (q.Codes != nil || q.ValueSet != "") && q.CodePath != ""
}

// WithContextValue returns a copy of q scoped to a different subject.
func (q Query) WithContextValue(value string) Query {
	q.ContextValue = value
	return q
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (q Query) MarshalZerologObject(e *zerolog.Event) {
	e.Str("data_type", q.DataType)
	if q.Context != "" {
		e.Str("context", q.Context)
	}
	if q.ContextPath != "" {
		e.Str("context_path", q.ContextPath)
	}
	if q.ContextValue != "" {
		e.Str("context_value", q.ContextValue)
	}
	if q.TemplateID != "" {
		e.Str("template_id", q.TemplateID)
	}
	if q.CodePath != "" {
		e.Str("code_path", q.CodePath)
	}
	if q.Codes != nil {
		e.Int("codes", len(q.Codes))
	}
	if q.ValueSet != "" {
		e.Str("value_set", q.ValueSet)
	}
}
