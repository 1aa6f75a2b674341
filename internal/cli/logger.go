package cli

import (
	"github.com/glorpus-work/regindex/internal/logger"
	"github.com/glorpus-work/regindex/pkg/config"
)

// initLogging configures the global logger from the settings and the
// --verbose flag. Structured output formats get JSON log lines on stderr.
func initLogging(cfg *config.Config) {
	level := cfg.Settings.LogLevel
	if boolFlag(Verbose) {
		level = "debug"
	}
	format := logger.FormatText
	if cfg.Settings.OutputFormat == formatJSON {
		format = logger.FormatJSON
	}
	logger.InitLogger(level, format)
}
