package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/glorpus-work/regindex/pkg/errutils"
)

// Repository definition errors.
var (
	ErrInvalidQueryType   = fmt.Errorf("invalid query_type")
	ErrMissingEndpoint    = fmt.Errorf("required endpoint missing")
	ErrInvalidEndpoint    = fmt.Errorf("invalid endpoint template")
	ErrInvalidFormat      = fmt.Errorf("invalid parsing format")
	ErrInvalidFieldPath   = fmt.Errorf("invalid field path")
	ErrMissingNameField   = fmt.Errorf("field mapping must include name")
	ErrInvalidCompression = fmt.Errorf("invalid compression")
	ErrInvalidLinkPattern = fmt.Errorf("invalid link_pattern")
	ErrInvalidPlatform    = fmt.Errorf("invalid platform")
	ErrInvalidArch        = fmt.Errorf("invalid architecture")
	ErrInvalidCache       = fmt.Errorf("invalid cache settings")
	ErrInvalidRateLimit   = fmt.Errorf("invalid rate_limiting settings")
	ErrInvalidAuth        = fmt.Errorf("invalid auth settings")
	ErrUnsupportedFile    = fmt.Errorf("unsupported definition file extension")
	ErrInvalidRanking     = fmt.Errorf("invalid ranking policy")
	ErrInvalidBackend     = fmt.Errorf("invalid cache_backend")
)

// ConfigError describes why one repository definition was rejected.
// Repository is empty for errors in the global settings.
type ConfigError struct {
	Repository string
	Field      string
	Err        error
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	if e.Repository != "" {
		fmt.Fprintf(&b, "repository %q", e.Repository)
	} else {
		b.WriteString("config")
	}
	if e.Field != "" {
		fmt.Fprintf(&b, ": %s", e.Field)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

// Unwrap exposes the cause; every ConfigError also matches errutils.ErrConfigValidation.
func (e *ConfigError) Unwrap() []error {
	return []error{e.Err, errutils.ErrConfigValidation}
}

func newConfigError(repository, field string, err error) *ConfigError {
	return &ConfigError{Repository: repository, Field: field, Err: err}
}

// AsConfigError is errors.As for *ConfigError.
func AsConfigError(err error) (*ConfigError, bool) {
	var ce *ConfigError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
