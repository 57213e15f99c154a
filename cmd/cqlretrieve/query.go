package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	cr "github.com/gofhir/cqlretrieve"
)

// queryFlags holds the flags that describe a retrieve.
type queryFlags struct {
	dataType     string
	context      string
	contextPath  string
	contextValue string
	templateID   string
	codePath     string
	codes        []string
	valueSet     string
}

func (f *queryFlags) bind(cmd *cobra.Command, withContextValue bool) {
	flags := cmd.Flags()
	flags.StringVarP(&f.dataType, "type", "t", "", "resource type to retrieve (required)")
	flags.StringVar(&f.context, "context", "Patient", "evaluation context")
	flags.StringVar(&f.contextPath, "context-path", "", "path from a record to its context reference")
	if withContextValue {
		flags.StringVar(&f.contextValue, "context-value", "", "context subject id")
	}
	flags.StringVar(&f.templateID, "template", "", "profile the data conforms to")
	flags.StringVar(&f.codePath, "code-path", "", "path from a record to its coded element")
	flags.StringArrayVar(&f.codes, "code", nil, "code as system|code, or a bare literal; repeatable")
	flags.StringVar(&f.valueSet, "value-set", "", "value set canonical URL")
	_ = cmd.MarkFlagRequired("type")
}

// query builds the Query. Without --code flags Codes stays nil, so no code
// list filter applies.
func (f *queryFlags) query() (cr.Query, error) {
	q := cr.Query{
		Context:      f.context,
		ContextPath:  f.contextPath,
		ContextValue: f.contextValue,
		DataType:     f.dataType,
		TemplateID:   f.templateID,
		CodePath:     f.codePath,
		ValueSet:     f.valueSet,
	}
	if (len(f.codes) > 0 || f.valueSet != "") && f.codePath == "" {
		return q, fmt.Errorf("--code-path is required with --code or --value-set")
	}
	for _, c := range f.codes {
		q.Codes = append(q.Codes, parseCode(c))
	}
	return q, nil
}

// parseCode splits "system|code". A value without "|" is a literal code.
func parseCode(s string) cr.Code {
	i := strings.LastIndex(s, "|")
	if i < 0 {
		return cr.Literal(s)
	}
	return cr.Code{System: s[:i], Code: s[i+1:]}
}
