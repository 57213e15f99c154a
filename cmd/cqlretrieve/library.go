package main

import (
	"github.com/spf13/cobra"

	"github.com/gofhir/cqlretrieve/library"
)

// NewLibraryCommand creates the library command.
func NewLibraryCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "library <name> [version]",
		Short: "Print the CQL source of a library",
		Long: `Print the text/cql content of a Library resource from the library
bundle. Without a version the highest available version is printed.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := library.VersionedIdentifier{ID: args[0]}
			if len(args) == 2 {
				id.Version = args[1]
			}

			e, err := openEngine(cmd.Context(), cmd, rootOpts)
			if err != nil {
				return err
			}
			defer e.Close()

			src, err := e.LibrarySource(cmd.Context(), id)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(src)
			return err
		},
	}

	return cmd
}
