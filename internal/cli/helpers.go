package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/glorpus-work/regindex/pkg/config"
	"github.com/glorpus-work/regindex/pkg/errutils"
	"github.com/glorpus-work/regindex/pkg/repository"
)

// Global flag values, bound by the root command.
var (
	ConfigPath   *string
	Verbose      *bool
	NoColor      *bool
	OutputFormat *string
)

func stringFlag(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func boolFlag(p *bool) bool {
	return p != nil && *p
}

// loadConfig reads the config file named by --config, or the default one,
// and applies the global flag overrides.
func loadConfig() (*config.Config, error) {
	path, err := getConfigPath()
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, errutils.Wrap(err, "failed to load config")
	}

	if outputFormat := stringFlag(OutputFormat); outputFormat != "" {
		format := strings.ToLower(outputFormat)
		switch format {
		case formatText, formatJSON, formatYAML:
			cfg.Settings.OutputFormat = format
		default:
			return nil, errutils.ErrInvalidOutputFormatWithDetails(outputFormat)
		}
	}
	if boolFlag(NoColor) {
		color.NoColor = true
	}
	initLogging(cfg)
	return cfg, nil
}

func getConfigPath() (string, error) {
	if path := stringFlag(ConfigPath); path != "" {
		return path, nil
	}
	path, err := config.GetDefaultConfigPath()
	if err != nil {
		return "", errutils.Wrap(err, "failed to get default config path")
	}
	return path, nil
}

// loadManager loads the configuration and builds a repository manager whose
// progress events drive p. The caller closes the manager.
func loadManager(p *progress) (*config.Config, *repository.Manager, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	hooks := repository.Hooks{}
	if p != nil {
		hooks.OnEvent = p.onEvent
	}
	manager, err := repository.NewFromConfig(cfg, hooks)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create repository manager: %w", err)
	}
	return cfg, manager, nil
}

// withManager runs fn with a manager and a spinner described by desc, and
// closes the manager afterwards.
func withManager(cmd *cobra.Command, desc string, fn func(cfg *config.Config, m *repository.Manager) error) error {
	p := &progress{}
	cfg, manager, err := loadManager(p)
	if err != nil {
		return err
	}
	defer func() { _ = manager.Close() }()

	if cfg.Settings.OutputFormat == formatText {
		stop := p.start(cmd.Context(), cmd.ErrOrStderr(), desc)
		defer stop()
	}
	return fn(cfg, manager)
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
