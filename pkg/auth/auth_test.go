package auth_test

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glorpus-work/regindex/pkg/auth"
)

func newRequest(t *testing.T) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, "http://example.com/info/left-pad?x=1", nil)
	require.NoError(t, err)
	return req
}

func TestParseCredentialRef(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    auth.CredentialRef
		wantErr error
	}{
		{name: "env", input: "env:NPM_TOKEN", want: auth.CredentialRef{Scheme: "env", Target: "NPM_TOKEN"}},
		{name: "file", input: "file:/run/secrets/token", want: auth.CredentialRef{Scheme: "file", Target: "/run/secrets/token"}},
		{name: "upper scheme", input: "ENV:X", want: auth.CredentialRef{Scheme: "env", Target: "X"}},
		{name: "literal secret", input: "ghp_abcdef123456", wantErr: auth.ErrLiteralCredential},
		{name: "literal with colon", input: "user:password", wantErr: auth.ErrLiteralCredential},
		{name: "empty target", input: "env:", wantErr: auth.ErrLiteralCredential},
		{name: "empty", input: "", wantErr: auth.ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := auth.ParseCredentialRef(tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.Scheme+":"+tt.want.Target, got.String())
		})
	}
}

func TestCredentialRef_Resolve(t *testing.T) {
	t.Setenv("REGINDEX_TEST_TOKEN", "s3cret")
	v, err := auth.CredentialRef{Scheme: "env", Target: "REGINDEX_TEST_TOKEN"}.Resolve()
	require.NoError(t, err)
	assert.Equal(t, "s3cret", v)

	_, err = auth.CredentialRef{Scheme: "env", Target: "REGINDEX_TEST_UNSET_VARIABLE"}.Resolve()
	assert.ErrorIs(t, err, auth.ErrCredentialUnavailable)

	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte("from-file\n"), 0o600))
	v, err = auth.CredentialRef{Scheme: "file", Target: path}.Resolve()
	require.NoError(t, err)
	assert.Equal(t, "from-file", v)

	_, err = auth.CredentialRef{Scheme: "file", Target: filepath.Join(t.TempDir(), "missing")}.Resolve()
	assert.ErrorIs(t, err, auth.ErrCredentialUnavailable)
}

func TestNew(t *testing.T) {
	t.Setenv("REGINDEX_TEST_TOKEN", "test-token-123")

	tests := []struct {
		name    string
		cfg     auth.Config
		typ     auth.Type
		check   func(t *testing.T, req *http.Request)
		wantErr error
	}{
		{
			name: "none by default",
			cfg:  auth.Config{},
			typ:  auth.NoneAuthType,
			check: func(t *testing.T, req *http.Request) {
				assert.Empty(t, req.Header.Get("Authorization"))
			},
		},
		{
			name: "bearer",
			cfg:  auth.Config{Type: "bearer", Credential: "env:REGINDEX_TEST_TOKEN"},
			typ:  auth.BearerAuthType,
			check: func(t *testing.T, req *http.Request) {
				assert.Equal(t, "Bearer test-token-123", req.Header.Get("Authorization"))
			},
		},
		{
			name: "basic",
			cfg:  auth.Config{Type: "basic", Username: "user", Credential: "env:REGINDEX_TEST_TOKEN"},
			typ:  auth.BasicAuthType,
			check: func(t *testing.T, req *http.Request) {
				u, p, ok := req.BasicAuth()
				require.True(t, ok)
				assert.Equal(t, "user", u)
				assert.Equal(t, "test-token-123", p)
			},
		},
		{
			name: "api key header",
			cfg:  auth.Config{Type: "apiKey", Header: "X-API-Key", Credential: "env:REGINDEX_TEST_TOKEN"},
			typ:  auth.APIKeyAuthType,
			check: func(t *testing.T, req *http.Request) {
				assert.Equal(t, "test-token-123", req.Header.Get("X-Api-Key"))
			},
		},
		{
			name: "api key query",
			cfg:  auth.Config{Type: "api_key", Query: "key", Credential: "env:REGINDEX_TEST_TOKEN"},
			typ:  auth.APIKeyAuthType,
			check: func(t *testing.T, req *http.Request) {
				assert.Equal(t, "test-token-123", req.URL.Query().Get("key"))
				assert.Equal(t, "1", req.URL.Query().Get("x"))
			},
		},
		{name: "literal secret rejected", cfg: auth.Config{Type: "bearer", Credential: "hunter2"}, wantErr: auth.ErrLiteralCredential},
		{name: "basic without username", cfg: auth.Config{Type: "basic", Credential: "env:X"}, wantErr: auth.ErrInvalidConfig},
		{name: "api key without target", cfg: auth.Config{Type: "apiKey", Credential: "env:X"}, wantErr: auth.ErrInvalidConfig},
		{name: "api key with both targets", cfg: auth.Config{Type: "apiKey", Header: "H", Query: "q", Credential: "env:X"}, wantErr: auth.ErrInvalidConfig},
		{name: "unknown type", cfg: auth.Config{Type: "oauth2", Credential: "env:X"}, wantErr: auth.ErrUnknownType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := auth.New(tt.cfg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.typ, a.Type())

			req := newRequest(t)
			require.NoError(t, a.Apply(req))
			tt.check(t, req)
		})
	}
}

func TestApply_UnresolvableCredential(t *testing.T) {
	a, err := auth.New(auth.Config{Type: "bearer", Credential: "env:REGINDEX_TEST_UNSET_VARIABLE"})
	require.NoError(t, err)
	assert.ErrorIs(t, a.Apply(newRequest(t)), auth.ErrCredentialUnavailable)
}
