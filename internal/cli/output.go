package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"gopkg.in/yaml.v3"

	"github.com/glorpus-work/regindex/pkg/config"
	"github.com/glorpus-work/regindex/pkg/model"
	"github.com/glorpus-work/regindex/pkg/repository"
)

// Output formats accepted by --output.
const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
	dim    = color.New(color.Faint).SprintFunc()
)

// render writes v as JSON or YAML, or calls text with a tabwriter for the
// text format.
func render(w io.Writer, format string, v any, text func(w io.Writer) error) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(config.YAMLIndent)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		tw := tabwriter.NewWriter(w, 0, 0, TabWidth, ' ', 0)
		if err := text(tw); err != nil {
			return err
		}
		return tw.Flush()
	}
}

// resultView is the serialized form of an aggregated result.
type resultView struct {
	Records    []model.PackageRecord `json:"records" yaml:"records"`
	Sources    []repository.Source   `json:"sources" yaml:"sources"`
	Errors     []string              `json:"errors,omitempty" yaml:"errors,omitempty"`
	Incomplete bool                  `json:"incomplete" yaml:"incomplete"`
}

func newResultView(res *repository.AggregatedResult) resultView {
	v := resultView{Records: res.Records, Sources: res.Sources, Incomplete: res.Incomplete}
	if v.Records == nil {
		v.Records = []model.PackageRecord{}
	}
	for _, e := range res.Errors {
		v.Errors = append(v.Errors, e.Error())
	}
	return v
}

// printResult renders a result. In text mode the per-repository errors and
// the incomplete marker go to errw so the table stays clean.
func printResult(out, errw io.Writer, format string, res *repository.AggregatedResult) error {
	if format != formatText {
		return render(out, format, newResultView(res), nil)
	}
	if len(res.Records) == 0 {
		fmt.Fprintln(out, "No packages found.")
	} else {
		err := render(out, format, nil, func(w io.Writer) error {
			fmt.Fprintln(w, bold("NAME")+"\t"+bold("VERSION")+"\t"+bold("REPOSITORY")+"\t"+bold("DESCRIPTION"))
			for _, r := range res.Records {
				name := r.Name
				if r.EOL {
					name += " " + dim("(eol)")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name, r.Version, r.RepositoryName, truncate(r.Description, MaxDescriptionLength))
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	for _, e := range res.Errors {
		fmt.Fprintf(errw, "%s %s\n", red("error:"), e.Error())
	}
	if res.Incomplete {
		fmt.Fprintln(errw, yellow("warning: result is incomplete, some repositories did not answer in time"))
	}
	return nil
}

// printRecord renders one package in detail.
func printRecord(out io.Writer, format string, r *model.PackageRecord) error {
	return render(out, format, r, func(w io.Writer) error {
		fmt.Fprintf(w, "Name:\t%s\n", bold(r.Name))
		fmt.Fprintf(w, "Version:\t%s\n", green(r.Version))
		fmt.Fprintf(w, "Repository:\t%s (%s)\n", r.RepositoryName, r.RepositoryType)
		if r.Description != "" {
			fmt.Fprintf(w, "Description:\t%s\n", r.Description)
		}
		if r.Homepage != "" {
			fmt.Fprintf(w, "Homepage:\t%s\n", r.Homepage)
		}
		if r.License != "" {
			fmt.Fprintf(w, "License:\t%s\n", r.License)
		}
		if r.Category != "" {
			fmt.Fprintf(w, "Category:\t%s\n", r.Category)
		}
		if purl := r.PURL(); purl != "" {
			fmt.Fprintf(w, "PURL:\t%s\n", purl)
		}
		if r.EOL {
			fmt.Fprintf(w, "Status:\t%s\n", yellow("end of life"))
		}
		return nil
	})
}

// progress shows a spinner on stderr while repositories are fetched. Events
// arrive from fetch goroutines.
type progress struct {
	mu  sync.Mutex
	bar *progressbar.ProgressBar
}

func (p *progress) start(ctx context.Context, w io.Writer, desc string) func() {
	if color.NoColor {
		return func() {}
	}
	p.mu.Lock()
	p.bar = progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
	p.mu.Unlock()

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(spinnerTick * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.mu.Lock()
				_ = p.bar.Add(1)
				p.mu.Unlock()
			}
		}
	}()

	return func() {
		close(done)
		wg.Wait()
		p.mu.Lock()
		_ = p.bar.Finish()
		p.bar = nil
		p.mu.Unlock()
	}
}

func (p *progress) onEvent(ev repository.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar == nil {
		return
	}
	switch ev.Phase {
	case repository.PhaseFetching:
		p.bar.Describe("fetching " + ev.Repository)
	case repository.PhaseStale:
		p.bar.Describe("refreshing " + ev.Repository + " in background")
	}
}
