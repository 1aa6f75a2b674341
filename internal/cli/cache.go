package cli

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/glorpus-work/regindex/internal/logger"
	"github.com/glorpus-work/regindex/pkg/cache"
	"github.com/glorpus-work/regindex/pkg/config"
	"github.com/glorpus-work/regindex/pkg/errutils"
	"github.com/glorpus-work/regindex/pkg/repository"
)

// NewCacheCmd creates the cache command with subcommands.
func NewCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the metadata cache",
		Long:  "Clean, sweep and show information about the repository metadata cache",
	}

	cmd.AddCommand(
		newCacheCleanCmd(),
		newCacheInfoCmd(),
		newCacheSweepCmd(),
		newCacheDirCmd(),
	)

	return cmd
}

func newCacheCleanCmd() *cobra.Command {
	var opts cache.CleanOptions

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Clean the cache",
		Long: `Remove cached metadata to free up disk space.

Without flags everything is removed. --bulk and --api restrict the cleaning to
bulk listings or API entries, and --repo to a single repository.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCacheClean(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.All, "all", false, "Clean all cached data")
	cmd.Flags().BoolVar(&opts.Bulk, "bulk", false, "Clean only bulk listings")
	cmd.Flags().BoolVar(&opts.API, "api", false, "Clean only API entries")
	cmd.Flags().StringVar(&opts.Repository, "repo", "", "Clean only the named repository")

	return cmd
}

func newCacheInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show cache information",
		Long:  "Display the size and location of the metadata cache",
		Args:  cobra.NoArgs,
		RunE:  runCacheInfo,
	}
}

func newCacheSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Evict long-expired cache entries",
		Long: `Evict entries whose age exceeds the stale grace multiple of their TTL.
Entries that are still being served as stale data are kept.`,
		Args: cobra.NoArgs,
		RunE: runCacheSweep,
	}
}

func newCacheDirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dir",
		Short: "Show cache directory path",
		Long:  "Display the path to the cache directory",
		Args:  cobra.NoArgs,
		RunE:  runCacheDir,
	}
}

func cacheOperation() (*config.Config, *cache.CacheOperation, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	return cfg, cache.NewCacheOperation(cache.NewManager(cfg.Settings.CacheDir)), nil
}

func runCacheClean(cmd *cobra.Command, opts cache.CleanOptions) error {
	if opts.Repository != "" && !opts.Bulk && !opts.API {
		// goes through the store so every backend drops the entries
		return withManager(cmd, "", func(_ *config.Config, m *repository.Manager) error {
			if _, ok := m.Repository(opts.Repository); !ok {
				return errutils.ErrRepositoryNotFoundWithName(opts.Repository)
			}
			n := m.Store().InvalidateRepository(opts.Repository)
			fmt.Fprintf(cmd.OutOrStdout(), "%s Removed %d cached entries of %s\n", green("✓"), n, opts.Repository)
			return nil
		})
	}

	_, op, err := cacheOperation()
	if err != nil {
		return err
	}
	msg, err := op.Clean(opts)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), msg)
	return nil
}

func runCacheInfo(cmd *cobra.Command, _ []string) error {
	cfg, op, err := cacheOperation()
	if err != nil {
		return err
	}
	if cfg.Settings.OutputFormat == formatText {
		msg, err := op.GetInfo()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), msg)
		return nil
	}

	info, err := cache.NewManager(cfg.Settings.CacheDir).GetInfo()
	if err != nil {
		return fmt.Errorf("%w: %w", cache.ErrCacheInfo, err)
	}
	return render(cmd.OutOrStdout(), cfg.Settings.OutputFormat, info, nil)
}

func runCacheSweep(cmd *cobra.Command, _ []string) error {
	return withManager(cmd, "", func(cfg *config.Config, m *repository.Manager) error {
		before := m.Store().Stats().Bytes
		res := m.Sweep()
		freed := before - m.Store().Stats().Bytes
		logger.Debug("Cache sweep finished", logger.Fields{"evicted": len(res.Evicted), "protected": res.Protected})

		return render(cmd.OutOrStdout(), cfg.Settings.OutputFormat, res, func(w io.Writer) error {
			if len(res.Evicted) == 0 {
				fmt.Fprintln(w, "Nothing to sweep.")
			} else {
				fmt.Fprintf(w, "%s Evicted %d entries, freed %s\n", green("✓"), len(res.Evicted), humanize.IBytes(uint64(max(freed, 0))))
				for _, key := range res.Evicted {
					fmt.Fprintf(w, "  %s\n", dim(key))
				}
			}
			if res.Protected > 0 {
				fmt.Fprintf(w, "Kept %d entries that are being refreshed\n", res.Protected)
			}
			return nil
		})
	})
}

func runCacheDir(cmd *cobra.Command, _ []string) error {
	_, op, err := cacheOperation()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), op.GetDirectory())
	return nil
}
