package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/glorpus-work/regindex/pkg/config"
	"github.com/glorpus-work/regindex/pkg/repository"
)

// NewSearchCmd creates the search command.
func NewSearchCmd() *cobra.Command {
	var (
		platform   string
		repos      []string
		limit      int
		constraint string
	)

	cmd := &cobra.Command{
		Use:   "search <text>",
		Short: "Search for packages",
		Long: `Search for packages across all enabled repositories.

Names and descriptions are matched case-insensitively. Results from every
repository are merged, deduplicated and ranked according to the configured
ranking policy. Repositories that fail are reported next to the results of
the ones that answered.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := repository.Request{
				Repositories:      repos,
				Platform:          platform,
				Text:              args[0],
				VersionConstraint: constraint,
				Limit:             limit,
			}
			return runSearch(cmd, req)
		},
	}

	cmd.Flags().StringVarP(&platform, "platform", "p", "", "Only search repositories serving this platform")
	cmd.Flags().StringSliceVarP(&repos, "repo", "r", nil, "Only search the named repositories")
	cmd.Flags().IntVarP(&limit, "limit", "n", DefaultSearchLimit, "Maximum number of results (0 for no limit)")
	cmd.Flags().StringVar(&constraint, "constraint", "", `Version constraint, e.g. ">= 1.2, < 2"`)

	return cmd
}

func runSearch(cmd *cobra.Command, req repository.Request) error {
	if req.Text == "" {
		return repository.ErrEmptySearch
	}
	return withManager(cmd, "searching", func(cfg *config.Config, m *repository.Manager) error {
		res, err := m.Query(cmd.Context(), req)
		if err != nil && !errors.Is(err, repository.ErrQueryDeadline) {
			return err
		}
		if res != nil {
			if perr := printResult(cmd.OutOrStdout(), cmd.ErrOrStderr(), cfg.Settings.OutputFormat, res); perr != nil {
				return perr
			}
		}
		return err
	})
}
