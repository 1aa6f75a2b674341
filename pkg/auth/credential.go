package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

var (
	// ErrInvalidConfig is returned for an auth section that cannot be used.
	ErrInvalidConfig = errors.New("invalid auth configuration")
	// ErrUnknownType is returned for an unsupported auth type.
	ErrUnknownType = errors.New("unknown auth type")
	// ErrLiteralCredential rejects secrets written directly into a definition.
	ErrLiteralCredential = errors.New("credential must be a reference (env:NAME or file:/path), not a literal secret")
	// ErrCredentialUnavailable is returned when a reference cannot be resolved.
	ErrCredentialUnavailable = errors.New("credential unavailable")
)

// Credential reference schemes.
const (
	SchemeEnv  = "env"
	SchemeFile = "file"
)

// CredentialRef points at a secret without containing it.
type CredentialRef struct {
	Scheme string
	Target string
}

// String renders the reference, never the secret.
func (c CredentialRef) String() string {
	return c.Scheme + ":" + c.Target
}

// ParseCredentialRef validates a reference such as "env:NPM_TOKEN".
func ParseCredentialRef(s string) (CredentialRef, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return CredentialRef{}, fmt.Errorf("%w: credential reference is required", ErrInvalidConfig)
	}
	scheme, target, ok := strings.Cut(s, ":")
	if !ok || target == "" {
		return CredentialRef{}, ErrLiteralCredential
	}
	switch strings.ToLower(scheme) {
	case SchemeEnv:
		return CredentialRef{Scheme: SchemeEnv, Target: target}, nil
	case SchemeFile:
		return CredentialRef{Scheme: SchemeFile, Target: target}, nil
	default:
		return CredentialRef{}, ErrLiteralCredential
	}
}

// Resolve reads the secret. File contents are trimmed of surrounding whitespace.
func (c CredentialRef) Resolve() (string, error) {
	switch c.Scheme {
	case SchemeEnv:
		v, ok := os.LookupEnv(c.Target)
		if !ok || v == "" {
			return "", fmt.Errorf("%w: environment variable %s is not set", ErrCredentialUnavailable, c.Target)
		}
		return v, nil
	case SchemeFile:
		data, err := os.ReadFile(c.Target)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrCredentialUnavailable, err)
		}
		v := strings.TrimSpace(string(data))
		if v == "" {
			return "", fmt.Errorf("%w: %s is empty", ErrCredentialUnavailable, c.Target)
		}
		return v, nil
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrCredentialUnavailable, c.Scheme)
	}
}
