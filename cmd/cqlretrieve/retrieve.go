package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	cr "github.com/gofhir/cqlretrieve"
)

// NewRetrieveCommand creates the retrieve command.
func NewRetrieveCommand(rootOpts *RootOptions) *cobra.Command {
	flags := &queryFlags{}

	cmd := &cobra.Command{
		Use:   "retrieve",
		Short: "Run one retrieve and print the matching resources",
		Example: `  cqlretrieve retrieve -s ./bundle.json -t Observation \
    --context-path subject --context-value 123 \
    --code-path code --code http://loinc.org|2345-7`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := flags.query()
			if err != nil {
				return err
			}

			e, err := openEngine(cmd.Context(), cmd, rootOpts)
			if err != nil {
				return err
			}
			defer e.Close()

			rs, err := e.Retrieve(cmd.Context(), q)
			if err != nil {
				return err
			}
			return writeResultSet(cmd.OutOrStdout(), rootOpts.Format, rs)
		},
	}
	flags.bind(cmd, true)

	return cmd
}

func writeResultSet(w io.Writer, format string, rs cr.ResultSet) error {
	if format == "json" {
		return writeJSON(w, rs)
	}
	for _, r := range rs {
		fmt.Fprintln(w, r.Reference())
	}
	fmt.Fprintf(w, "%d resource(s)\n", len(rs))
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
