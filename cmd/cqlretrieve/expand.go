package main

import (
	"fmt"

	"github.com/spf13/cobra"

	cr "github.com/gofhir/cqlretrieve"
	"github.com/gofhir/cqlretrieve/terminology"
)

// codeOutput is one code in JSON expand output.
type codeOutput struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code"`
	Display string `json:"display,omitempty"`
}

// NewExpandCommand creates the expand command.
func NewExpandCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expand <value-set-url>",
		Short: "List the codes of a value set",
		Long: `List the codes of a value set loaded from the terminology directory.
No data source is needed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			vocab, _, err := terminology.OpenChain(cfg.TerminologyURI)
			if err != nil {
				return err
			}
			if vocab == nil {
				return fmt.Errorf("%w: no terminology configured", cr.ErrConfiguration)
			}

			codes, err := vocab.Expand(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if rootOpts.Format == "json" {
				entries := make([]codeOutput, len(codes))
				for i, c := range codes {
					entries[i] = codeOutput{System: c.System, Code: c.Code, Display: c.Display}
				}
				return writeJSON(out, entries)
			}
			for _, c := range codes {
				if c.Display != "" {
					fmt.Fprintf(out, "%s\t%s\n", c, c.Display)
				} else {
					fmt.Fprintln(out, c)
				}
			}
			return nil
		},
	}

	return cmd
}
