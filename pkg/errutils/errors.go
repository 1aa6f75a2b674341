// Package errutils holds the sentinel errors shared across regindex packages and
// small helpers for wrapping them with context.
//
// Domain packages keep their own typed errors (config.ConfigError,
// fetcher.FetchError, adapter.ParseError, cache.CapacityError); the sentinels
// here are what those types unwrap to, so callers can test with errors.Is
// without importing every package.
package errutils

import (
	"fmt"
)

// Common error types used throughout the application.
var (
	// Config errors.
	ErrEmptyConfigPath   = fmt.Errorf("config file path cannot be empty")
	ErrInvalidConfigPath = fmt.Errorf("invalid config file path")
	ErrConfigParse       = fmt.Errorf("failed to parse config")
	ErrConfigValidation  = fmt.Errorf("invalid configuration")
	ErrConfigEncode      = fmt.Errorf("failed to encode config")
	ErrConfigFileExists  = fmt.Errorf("config file already exists")
	ErrUnknownConfigKey  = fmt.Errorf("unknown config key")

	// ErrHTTPTimeoutNegative is returned when http_timeout is negative.
	ErrHTTPTimeoutNegative = fmt.Errorf("http_timeout cannot be negative")

	// ErrQueryTimeoutNegative is returned when query_timeout is negative.
	ErrQueryTimeoutNegative = fmt.Errorf("query_timeout cannot be negative")

	// ErrMaxConcurrentInvalid is returned when max_concurrent is less than 1.
	ErrMaxConcurrentInvalid = fmt.Errorf("max_concurrent must be at least 1")

	// ErrInvalidOutputFormat is returned when an invalid output format is specified.
	ErrInvalidOutputFormat = fmt.Errorf("invalid output format")

	// ErrInvalidLogLevel is returned when an invalid log level is specified.
	ErrInvalidLogLevel = fmt.Errorf("invalid log level")

	// Repository errors.
	ErrEmptyRepositoryName = fmt.Errorf("repository name cannot be empty")
	ErrRepositoryExists    = fmt.Errorf("repository already exists")
	ErrRepositoryNotFound  = fmt.Errorf("repository not found")
	ErrRepositoryDisabled  = fmt.Errorf("repository is disabled")
	ErrNoRepositories      = fmt.Errorf("no repositories configured")

	// Package errors.
	ErrPackageNotFound  = fmt.Errorf("package not found")
	ErrPackageNameEmpty = fmt.Errorf("package name cannot be empty")

	// ErrInvalidPath is returned when a file or directory path is invalid.
	ErrInvalidPath = fmt.Errorf("invalid path")

	// ErrFileHashMismatch is returned when persisted content does not match its recorded digest.
	ErrFileHashMismatch = fmt.Errorf("file hash mismatch")
)

// Wrap wraps an error with additional context.
// If the error is nil, Wrap returns nil.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf wraps an error with additional formatted context.
// If the error is nil, Wrapf returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// ErrRepositoryNotFoundWithName creates an error for when a repository with the given name is not found.
func ErrRepositoryNotFoundWithName(name string) error {
	return fmt.Errorf("%w: %s", ErrRepositoryNotFound, name)
}

// ErrRepositoryExistsWithName is a helper to create a wrapped error with the repository name.
func ErrRepositoryExistsWithName(name string) error {
	return fmt.Errorf("repository '%s': %w", name, ErrRepositoryExists)
}

// ErrPackageNotFoundIn reports a package missing from a specific repository.
func ErrPackageNotFoundIn(repository, name string) error {
	return fmt.Errorf("%w: %s in %s", ErrPackageNotFound, name, repository)
}

// ErrInvalidOutputFormatWithDetails is a helper to create a wrapped error with the invalid format and valid options.
func ErrInvalidOutputFormatWithDetails(format string) error {
	return fmt.Errorf("%w: '%s', must be one of: text, json, yaml", ErrInvalidOutputFormat, format)
}

// ErrInvalidLogLevelWithDetails is a helper to create a wrapped error with the invalid level and valid options.
func ErrInvalidLogLevelWithDetails(level string) error {
	return fmt.Errorf("%w: '%s', must be one of: error, warn, info, debug", ErrInvalidLogLevel, level)
}
