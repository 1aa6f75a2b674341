package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/glorpus-work/regindex/internal/logger"
	"github.com/glorpus-work/regindex/pkg/config"
	"github.com/glorpus-work/regindex/pkg/repository"
)

// NewRefreshCmd creates the refresh command.
func NewRefreshCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "refresh [repository]",
		Short: "Refresh cached repository data",
		Long: `Refresh the cached data of one repository, or of all enabled repositories.

Bulk repositories download their listing again. API repositories refetch the
packages and searches that are already cached. Entries that are still fresh
are left alone unless --force is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			return withManager(cmd, "refreshing", func(_ *config.Config, m *repository.Manager) error {
				return runRefresh(cmd, m, name, force)
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Refetch entries that are still fresh")
	return cmd
}

func runRefresh(cmd *cobra.Command, m *repository.Manager, name string, force bool) error {
	logger.Debug("Refreshing repositories", logger.Fields{"repository": name, "force": force})

	err := m.RefreshCache(cmd.Context(), name, force)
	errs := repository.ErrorsOf(err)
	for _, e := range errs {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s %v\n", red("failed:"), e)
	}
	if err != nil {
		return fmt.Errorf("refresh failed for %d repositories", len(errs))
	}

	count := len(m.Repositories())
	if name != "" {
		count = 1
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s Refreshed %d repositories\n", green("✓"), count)
	return nil
}
