package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	cr "github.com/gofhir/cqlretrieve"
)

// subjectOutput is one subject's entry in JSON batch output.
type subjectOutput struct {
	Subject   string       `json:"subject"`
	Count     int          `json:"count"`
	Resources cr.ResultSet `json:"resources,omitempty"`
	Error     string       `json:"error,omitempty"`
	Duration  string       `json:"duration"`
}

// NewBatchCommand creates the batch command.
func NewBatchCommand(rootOpts *RootOptions) *cobra.Command {
	flags := &queryFlags{}

	cmd := &cobra.Command{
		Use:   "batch <subject>...",
		Short: "Run one retrieve for each context subject in parallel",
		Example: `  cqlretrieve batch -s postgres://localhost/ehr -t Condition \
    --context-path subject --workers 8 p1 p2 p3`,
		Args: cobra.MinimumNArgs(1),
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

			result := e.Batch().Run(cmd.Context(), q, splitSubjects(args))

			out := cmd.OutOrStdout()
			if rootOpts.Format == "json" {
				entries := make([]subjectOutput, len(result.Results))
				for i, sr := range result.Results {
					entries[i] = subjectOutput{
						Subject:   sr.Subject,
						Count:     len(sr.Result),
						Resources: sr.Result,
						Duration:  sr.Duration.String(),
					}
					if sr.Err != nil {
						entries[i].Error = sr.Err.Error()
					}
				}
				if err := writeJSON(out, entries); err != nil {
					return err
				}
			} else {
				for _, sr := range result.Results {
					if sr.Err != nil {
						fmt.Fprintf(out, "%s: error: %v\n", sr.Subject, sr.Err)
						continue
					}
					fmt.Fprintf(out, "%s: %d resource(s)\n", sr.Subject, len(sr.Result))
				}
			}

			if result.HasErrors() {
				return fmt.Errorf("%d of %d subjects failed", result.FailedJobs, result.TotalJobs)
			}
			return nil
		},
	}
	flags.bind(cmd, false)

	return cmd
}

// splitSubjects accepts subjects as separate arguments or comma lists.
func splitSubjects(args []string) []string {
	var subjects []string
	for _, arg := range args {
		for _, s := range strings.Split(arg, ",") {
			if s = strings.TrimSpace(s); s != "" {
				subjects = append(subjects, s)
			}
		}
	}
	return subjects
}
