package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/glorpus-work/regindex/internal/logger"
	"github.com/glorpus-work/regindex/pkg/config"
	"github.com/glorpus-work/regindex/pkg/errutils"
	"github.com/glorpus-work/regindex/pkg/fsutil"
)

// NewConfigCmd creates the config command with subcommands.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long:  "View and initialize regindex configuration settings",
	}

	cmd.AddCommand(
		newConfigShowCmd(),
		newConfigGetCmd(),
		newConfigInitCmd(),
		newConfigPathCmd(),
	)

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Long:  "Display the effective configuration, defaults included, as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			data, err := cfg.ToYAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get KEY",
		Short: "Get a configuration value",
		Long: `Get the value of a configuration key. Keys are dotted YAML paths; the
"settings." prefix may be omitted, e.g. "cache_backend".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			value, err := configValue(cfg, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		},
	}
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration file",
		Long:  "Create a configuration file holding the default settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigInit(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration file")

	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := getConfigPath()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

func configValue(cfg *config.Config, key string) (string, error) {
	data, err := cfg.ToYAML()
	if err != nil {
		return "", err
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return "", errutils.Wrap(errutils.ErrConfigParse, err.Error())
	}

	path := strings.Split(key, ".")
	if _, ok := tree[path[0]]; !ok {
		path = append([]string{"settings"}, path...)
	}
	var node any = tree
	for _, part := range path {
		m, ok := node.(map[string]any)
		if !ok {
			return "", fmt.Errorf("%w: %s", errutils.ErrUnknownConfigKey, key)
		}
		if node, ok = m[part]; !ok {
			return "", fmt.Errorf("%w: %s", errutils.ErrUnknownConfigKey, key)
		}
	}

	if _, isMap := node.(map[string]any); isMap {
		out, err := yaml.Marshal(node)
		if err != nil {
			return "", err
		}
		return strings.TrimRight(string(out), "\n"), nil
	}
	return fmt.Sprint(node), nil
}

func runConfigInit(cmd *cobra.Command, force bool) error {
	path, err := getConfigPath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("configuration file already exists at %s (use --force to overwrite): %w", path, errutils.ErrConfigFileExists)
	}

	data, err := config.DefaultConfig().ToYAML()
	if err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(path, data, fsutil.FileModeDefault); err != nil {
		return fmt.Errorf("failed to save default configuration: %w", err)
	}

	logger.Success("Configuration file created", logger.Fields{"path": path})
	fmt.Fprintf(cmd.OutOrStdout(), "%s Configuration written to %s\n", green("✓"), path)
	return nil
}
