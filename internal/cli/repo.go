package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/glorpus-work/regindex/pkg/config"
	"github.com/glorpus-work/regindex/pkg/repository"
)

type repoView struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"`
	Platform    string `json:"platform,omitempty" yaml:"platform,omitempty"`
	QueryType   string `json:"query_type" yaml:"query_type"`
	Priority    int    `json:"priority" yaml:"priority"`
	EOL         bool   `json:"eol,omitempty" yaml:"eol,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Source      string `json:"source,omitempty" yaml:"source,omitempty"`
}

type reposView struct {
	Enabled  []repoView                `json:"enabled" yaml:"enabled"`
	Disabled []repository.DisabledInfo `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

// NewReposCmd creates the repos command.
func NewReposCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repos",
		Short: "List configured repositories",
		Long: `List the enabled repositories and the definitions that could not be
loaded, together with the reason they were disabled.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return printRepos(cmd.OutOrStdout(), cfg.Settings.OutputFormat, cfg.LoadRepositories())
		},
	}
	return cmd
}

func printRepos(out io.Writer, format string, repos *config.Repositories) error {
	view := reposView{Enabled: []repoView{}}
	for _, r := range repos.Enabled {
		view.Enabled = append(view.Enabled, repoView{
			Name:        r.Name,
			Type:        r.Type,
			Platform:    r.Platform,
			QueryType:   string(r.QueryType),
			Priority:    r.Priority,
			EOL:         r.EOL,
			Description: r.Description,
			Source:      r.Source,
		})
	}
	for _, d := range repos.Disabled {
		info := repository.DisabledInfo{Name: d.Name, Source: d.Source}
		if d.Reason != nil {
			info.Reason = d.Reason.Error()
		}
		view.Disabled = append(view.Disabled, info)
	}

	return render(out, format, view, func(w io.Writer) error {
		if len(view.Enabled) == 0 {
			fmt.Fprintln(w, "No repositories configured.")
		} else {
			fmt.Fprintln(w, bold("NAME")+"\t"+bold("TYPE")+"\t"+bold("PLATFORM")+"\t"+bold("QUERY")+"\t"+bold("PRIORITY")+"\t"+bold("DESCRIPTION"))
			for _, r := range view.Enabled {
				name := r.Name
				if r.EOL {
					name += " " + dim("(eol)")
				}
				platform := r.Platform
				if platform == "" {
					platform = "any"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", name, r.Type, platform, r.QueryType,
					strconv.Itoa(r.Priority), truncate(r.Description, MaxDescriptionLength))
			}
		}
		for _, d := range view.Disabled {
			fmt.Fprintf(w, "%s %s\t%s\n", red("disabled:"), d.Name, d.Reason)
		}
		return nil
	})
}
