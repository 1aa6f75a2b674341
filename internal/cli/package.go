package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/glorpus-work/regindex/pkg/config"
	"github.com/glorpus-work/regindex/pkg/model"
	"github.com/glorpus-work/regindex/pkg/repository"
)

// NewGetCmd creates the get command.
func NewGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <repository>/<name>[@version] | <purl> | <repository> <name>...",
		Short: "Show the details of a package",
		Long: `Show the newest record of a package.

The package can be addressed as "<repository>/<name>", optionally pinned with
"@<version>", as a package URL such as "pkg:npm/left-pad@1.3.0", or with the
repository and the name as separate arguments. Several names after the
repository are looked up together and printed as a table.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(cmd, "looking up", func(cfg *config.Config, m *repository.Manager) error {
				if len(args) > 2 {
					return runGetBatch(cmd, cfg, m, args[0], args[1:])
				}
				var (
					rec *model.PackageRecord
					err error
				)
				if len(args) == 2 {
					rec, err = m.GetPackage(cmd.Context(), args[0], args[1])
				} else {
					rec, err = m.Lookup(cmd.Context(), args[0])
				}
				if err != nil {
					return err
				}
				return printRecord(cmd.OutOrStdout(), cfg.Settings.OutputFormat, rec)
			})
		},
	}
	return cmd
}

type batchEntry struct {
	Name   string               `json:"name" yaml:"name"`
	Record *model.PackageRecord `json:"record,omitempty" yaml:"record,omitempty"`
	Error  string               `json:"error,omitempty" yaml:"error,omitempty"`
}

func runGetBatch(cmd *cobra.Command, cfg *config.Config, m *repository.Manager, repo string, names []string) error {
	results, err := m.GetPackages(cmd.Context(), repo, names)
	if err != nil {
		return err
	}

	view := make([]batchEntry, 0, len(names))
	failed := 0
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		res := results[name]
		entry := batchEntry{Name: name, Record: res.Record}
		if res.Err != nil {
			entry.Error = res.Err.Error()
			if res.Record == nil {
				failed++
			}
		}
		view = append(view, entry)
	}

	err = render(cmd.OutOrStdout(), cfg.Settings.OutputFormat, view, func(w io.Writer) error {
		fmt.Fprintln(w, bold("NAME")+"\t"+bold("VERSION")+"\t"+bold("STATUS"))
		for _, e := range view {
			switch {
			case e.Record != nil && e.Error != "":
				fmt.Fprintf(w, "%s\t%s\t%s\n", e.Name, e.Record.Version, yellow("stale"))
			case e.Record != nil:
				fmt.Fprintf(w, "%s\t%s\t%s\n", e.Name, e.Record.Version, green("ok"))
			default:
				fmt.Fprintf(w, "%s\t-\t%s\n", e.Name, red(e.Error))
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d packages could not be resolved", failed, len(view))
	}
	return nil
}

// NewVersionOfCmd creates the version-of command.
func NewVersionOfCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version-of <repository> <name>",
		Short: "Print the current version of a package",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(cmd, "looking up", func(cfg *config.Config, m *repository.Manager) error {
				v, err := m.GetCurrentVersion(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				view := struct {
					Repository string `json:"repository" yaml:"repository"`
					Name       string `json:"name" yaml:"name"`
					Version    string `json:"version" yaml:"version"`
				}{args[0], args[1], v}
				return render(cmd.OutOrStdout(), cfg.Settings.OutputFormat, view, func(w io.Writer) error {
					_, err := fmt.Fprintln(w, v)
					return err
				})
			})
		},
	}
	return cmd
}

// NewListCmd creates the list command.
func NewListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list <repository>",
		Short: "List the packages of a bulk repository",
		Long: `List every package of a bulk-download repository at its newest version.

API repositories cannot be enumerated and are rejected.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(cmd, "loading "+args[0], func(cfg *config.Config, m *repository.Manager) error {
				res, err := m.ListPackages(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if limit > 0 && len(res.Records) > limit {
					res.Records = res.Records[:limit]
				}
				return printResult(cmd.OutOrStdout(), cmd.ErrOrStderr(), cfg.Settings.OutputFormat, res)
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of packages to print (0 for all)")
	return cmd
}
