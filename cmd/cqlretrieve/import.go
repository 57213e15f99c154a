package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gofhir/cqlretrieve/store"
	"github.com/gofhir/cqlretrieve/stream"
)

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	var into string

	cmd := &cobra.Command{
		Use:   "import --into <uri> <bundle.json>...",
		Short: "Load bundles into a database data source",
		Long: `Stream the entries of FHIR Bundles into a PostgreSQL or SQLite data
source. Existing resources with the same type and id are replaced.`,
		Example: `  cqlretrieve import --into sqlite:///var/lib/ehr.db patients.json observations.json`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}

			w, err := store.OpenWriter(cmd.Context(), into, store.WithPoolSize(cfg.DBMaxConns, cfg.DBMinConns))
			if err != nil {
				return err
			}
			defer w.Close()

			decoder := stream.NewDecoder()
			out := cmd.OutOrStdout()
			failed := 0
			for _, path := range args {
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				result := decoder.Import(cmd.Context(), f, w)
				f.Close()

				fmt.Fprintf(out, "%s: %s\n", path, result.Summary())
				for _, err := range result.Errors {
					fmt.Fprintf(cmd.ErrOrStderr(), "  %v\n", err)
				}
				if result.HasErrors() {
					failed++
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d bundles had errors", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&into, "into", "", "database URI (postgres:// or sqlite:)")
	_ = cmd.MarkFlagRequired("into")

	return cmd
}
