// Package auth provides authentication support for registry HTTP requests.
//
// Secrets are never part of a repository definition. A definition names a
// credential reference ("env:NPM_TOKEN" or "file:/run/secrets/npm") and the
// secret is resolved each time a request is authenticated.
//
//go:generate mockgen -destination=./mocks/auth.go . Authenticator
package auth

import (
	"fmt"
	"net/http"
	"strings"
)

// Authenticator defines the interface for applying authentication to HTTP requests.
type Authenticator interface {
	Apply(req *http.Request) error
	Type() Type
}

// Type represents the type of authentication.
type Type string

// Authentication types.
const (
	// NoneAuthType sends requests unauthenticated.
	NoneAuthType Type = "none"
	// BasicAuthType represents HTTP Basic Authentication.
	BasicAuthType Type = "basic"
	// APIKeyAuthType sends a key in a header or query parameter.
	APIKeyAuthType Type = "apiKey"
	// BearerAuthType represents Bearer token authentication.
	BearerAuthType Type = "bearer"
)

// Config is the auth section of a repository definition.
type Config struct {
	Type       Type   `yaml:"type" toml:"type" json:"type"`
	Credential string `yaml:"credential,omitempty" toml:"credential" json:"credential,omitempty"`
	// Header carries the apiKey header name.
	Header string `yaml:"header,omitempty" toml:"header" json:"header,omitempty"`
	// Query carries the apiKey query parameter name.
	Query string `yaml:"query,omitempty" toml:"query" json:"query,omitempty"`
	// Username is the non-secret half of basic auth.
	Username string `yaml:"username,omitempty" toml:"username" json:"username,omitempty"`
}

// New validates cfg and builds its Authenticator. An empty type means none.
func New(cfg Config) (Authenticator, error) {
	typ := Type(strings.TrimSpace(string(cfg.Type)))
	if strings.EqualFold(string(typ), string(APIKeyAuthType)) || strings.EqualFold(string(typ), "api_key") {
		typ = APIKeyAuthType
	} else {
		typ = Type(strings.ToLower(string(typ)))
	}

	if typ == "" || typ == NoneAuthType {
		return NoneAuth{}, nil
	}

	ref, err := ParseCredentialRef(cfg.Credential)
	if err != nil {
		return nil, err
	}

	switch typ {
	case BearerAuthType:
		return BearerAuth{Token: ref}, nil
	case BasicAuthType:
		if cfg.Username == "" {
			return nil, fmt.Errorf("%w: basic auth requires a username", ErrInvalidConfig)
		}
		return BasicAuth{Username: cfg.Username, Password: ref}, nil
	case APIKeyAuthType:
		switch {
		case cfg.Header != "" && cfg.Query != "":
			return nil, fmt.Errorf("%w: apiKey auth takes either header or query, not both", ErrInvalidConfig)
		case cfg.Header == "" && cfg.Query == "":
			return nil, fmt.Errorf("%w: apiKey auth requires a header or query name", ErrInvalidConfig)
		}
		return APIKeyAuth{Header: cfg.Header, Query: cfg.Query, Key: ref}, nil
	default:
		return nil, fmt.Errorf("%w: %q (must be one of none, bearer, apiKey, basic)", ErrUnknownType, cfg.Type)
	}
}

// NoneAuth leaves requests untouched.
type NoneAuth struct{}

// Apply does nothing.
func (NoneAuth) Apply(*http.Request) error { return nil }

// Type returns NoneAuthType.
func (NoneAuth) Type() Type { return NoneAuthType }

// BasicAuth represents HTTP Basic Authentication credentials.
type BasicAuth struct {
	Username string
	Password CredentialRef
}

// Apply adds Basic Authentication headers to the HTTP request.
func (b BasicAuth) Apply(req *http.Request) error {
	password, err := b.Password.Resolve()
	if err != nil {
		return err
	}
	req.SetBasicAuth(b.Username, password)
	return nil
}

// Type returns the authentication type (BasicAuthType).
func (b BasicAuth) Type() Type { return BasicAuthType }

// APIKeyAuth sends a key in a header, or as a query parameter when Query is set.
type APIKeyAuth struct {
	Header string
	Query  string
	Key    CredentialRef
}

// Apply adds the key to the request.
func (a APIKeyAuth) Apply(req *http.Request) error {
	key, err := a.Key.Resolve()
	if err != nil {
		return err
	}
	if a.Query != "" {
		q := req.URL.Query()
		q.Set(a.Query, key)
		req.URL.RawQuery = q.Encode()
		return nil
	}
	req.Header.Set(a.Header, key)
	return nil
}

// Type returns the authentication type (APIKeyAuthType).
func (a APIKeyAuth) Type() Type { return APIKeyAuthType }

// BearerAuth represents Bearer token authentication.
type BearerAuth struct {
	Token CredentialRef
}

// Apply adds a Bearer token to the Authorization header of the HTTP request.
func (b BearerAuth) Apply(req *http.Request) error {
	token, err := b.Token.Resolve()
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

// Type returns the authentication type (BearerAuthType).
func (b BearerAuth) Type() Type { return BearerAuthType }
