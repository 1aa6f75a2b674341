package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/glorpus-work/regindex/pkg/config"
	"github.com/glorpus-work/regindex/pkg/repository"
)

// NewStatsCmd creates the stats command.
func NewStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache and repository statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withManager(cmd, "", func(cfg *config.Config, m *repository.Manager) error {
				return printStats(cmd.OutOrStdout(), cfg.Settings.OutputFormat, m.Statistics())
			})
		},
	}
	return cmd
}

func printStats(out io.Writer, format string, st repository.Stats) error {
	return render(out, format, st, func(w io.Writer) error {
		c := st.Cache
		fmt.Fprintf(w, "Cache entries:\t%d (%d expired)\n", c.Entries, c.Expired)
		fmt.Fprintf(w, "Cache size:\t%s\n", humanize.IBytes(uint64(c.Bytes)))
		fmt.Fprintf(w, "Hits / misses:\t%d / %d\n", c.Hits, c.Misses)
		fmt.Fprintf(w, "Evictions:\t%d\n", c.Evictions)
		fmt.Fprintln(w)

		fmt.Fprintln(w, bold("REPOSITORY")+"\t"+bold("ENTRIES")+"\t"+bold("RECORDS")+"\t"+bold("SIZE")+"\t"+bold("OLDEST")+"\t"+bold("FETCHES")+"\t"+bold("FAILURES")+"\t"+bold("RATE"))
		for _, r := range st.Repositories {
			oldest := "-"
			if r.Cache.OldestAge > 0 {
				oldest = humanize.RelTime(time.Now().Add(-r.Cache.OldestAge), time.Now(), "ago", "")
			}
			rate := "-"
			if r.Limiter != nil && r.Limiter.PerWindow > 0 {
				rate = fmt.Sprintf("%d/%d", r.Limiter.WindowRequests, r.Limiter.PerWindow)
			}
			name := r.Name
			if r.Refreshing {
				name += " " + yellow("(refreshing)")
			}
			failures := fmt.Sprint(r.Failures)
			if r.Failures > 0 {
				failures = red(failures)
			}
			fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\t%d\t%s\t%s\n", name, r.Cache.Entries, r.Cache.Records,
				humanize.IBytes(uint64(r.Cache.Bytes)), oldest, r.Fetches, failures, rate)
		}
		for _, r := range st.Repositories {
			if r.LastError != "" {
				fmt.Fprintf(w, "%s %s\t%s\t%s\n", red("last error:"), r.Name,
					humanize.Time(r.LastErrorAt), r.LastError)
			}
		}
		for _, d := range st.Disabled {
			fmt.Fprintf(w, "%s %s\t%s\n", red("disabled:"), d.Name, d.Reason)
		}
		return nil
	})
}
