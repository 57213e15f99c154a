package main

import (
	"context"
	"fmt"
	"slices"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	cr "github.com/gofhir/cqlretrieve"
	"github.com/gofhir/cqlretrieve/config"
	"github.com/gofhir/cqlretrieve/engine"
	"github.com/gofhir/cqlretrieve/pkg/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath  string
	Format      string // "json" | "text"
	Sources     []string
	Terminology string
	Libraries   string
	LogLevel    string
	Workers     int
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:     "cqlretrieve",
		Short:   "Retrieve clinical data for CQL evaluation",
		Version: cr.Version + " (FHIR " + cr.FHIRVersion + ")",
		Long: `Retrieve FHIR resources from one or more data sources, filtered by
evaluation context and by codes or value sets.

Sources are tried in order; the first source that returns data wins.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.ConfigPath, "config", "c", "", "config file (yaml, json or .env)")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringSliceVarP(&opts.Sources, "source", "s", nil, "data source URI, repeatable, in priority order")
	flags.StringVar(&opts.Terminology, "terminology", "", "terminology directory or file")
	flags.StringVar(&opts.Libraries, "libraries", "", "library bundle URI")
	flags.StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error|none)")
	flags.IntVar(&opts.Workers, "workers", 0, "parallel retrieves for batch (0 = configured or CPU count)")

	// Add subcommands
	cmd.AddCommand(NewRetrieveCommand(opts))
	cmd.AddCommand(NewBatchCommand(opts))
	cmd.AddCommand(NewExpandCommand(opts))
	cmd.AddCommand(NewLibraryCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))

	return cmd
}

// loadConfig reads the config file and environment, then applies flags.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if len(opts.Sources) > 0 {
		cfg.DataSources = opts.Sources
	}
	if opts.Terminology != "" {
		cfg.TerminologyURI = opts.Terminology
	}
	if opts.Libraries != "" {
		cfg.LibraryURI = opts.Libraries
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}
	if opts.Workers > 0 {
		cfg.Workers = opts.Workers
	}
	return cfg, nil
}

// openEngine builds an engine from opts. Logs go to stderr so JSON output
// on stdout stays clean.
func openEngine(ctx context.Context, cmd *cobra.Command, opts *RootOptions) (*engine.Engine, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := logger.New(cmd.ErrOrStderr(), level, cfg.LogFormat)
	logger.SetDefault(log)

	return engine.New(ctx, cfg, engine.WithLogger(log))
}
