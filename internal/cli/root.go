package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the regindex command tree and binds the global flags.
func NewRootCmd() *cobra.Command {
	var (
		configPath   string
		verbose      bool
		noColor      bool
		outputFormat string
	)

	cmd := &cobra.Command{
		Use:   "regindex",
		Short: "Query package registries through one cached index",
		Long: `regindex answers package metadata queries across many registries:
- bulk-download repositories (Debian, Alpine, ...) are fetched whole and cached
- API registries (npm, PyPI, crates.io, ...) are queried per package
- results from every repository are merged, deduplicated and ranked`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default: auto-detect)")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	cmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "", "output format (text, json, yaml)")

	ConfigPath = &configPath
	Verbose = &verbose
	NoColor = &noColor
	OutputFormat = &outputFormat

	cmd.AddCommand(
		NewSearchCmd(),
		NewGetCmd(),
		NewVersionOfCmd(),
		NewListCmd(),
		NewRefreshCmd(),
		NewStatsCmd(),
		NewReposCmd(),
		NewCacheCmd(),
		NewConfigCmd(),
		NewVersionCmd(),
	)

	return cmd
}
