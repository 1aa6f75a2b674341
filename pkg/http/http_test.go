package http_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	authmocks "github.com/glorpus-work/regindex/pkg/auth/mocks"
	rhttp "github.com/glorpus-work/regindex/pkg/http"
)

func TestHTTPClient_Get(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Header().Set("X-UA", r.UserAgent())
			_, _ = w.Write([]byte("hello"))
		case "/missing":
			http.NotFound(w, r)
		case "/limited":
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	client := rhttp.NewHTTPClientWithOptions(rhttp.Options{Timeout: 5 * time.Second, UserAgent: "regindex-test"})

	tests := []struct {
		name   string
		path   string
		status int
		ok     bool
		body   string
	}{
		{name: "success", path: "/ok", status: http.StatusOK, ok: true, body: "hello"},
		{name: "not found is a response", path: "/missing", status: http.StatusNotFound},
		{name: "rate limited is a response", path: "/limited", status: http.StatusTooManyRequests},
		{name: "server error is a response", path: "/boom", status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := client.Get(context.Background(), srv.URL+tt.path, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.ok, resp.OK())
			if tt.body != "" {
				assert.Equal(t, tt.body, string(resp.Body))
				assert.Equal(t, "regindex-test", resp.Header.Get("X-UA"))
			}
		})
	}
}

func TestHTTPClient_GetAppliesAuthenticator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.Header.Get("Authorization")))
	}))
	defer srv.Close()

	ctrl := gomock.NewController(t)
	authenticator := authmocks.NewMockAuthenticator(ctrl)
	authenticator.EXPECT().Apply(gomock.Any()).DoAndReturn(func(req *http.Request) error {
		req.Header.Set("Authorization", "Bearer abc")
		return nil
	})

	resp, err := rhttp.NewHTTPClient(time.Second).Get(context.Background(), srv.URL, authenticator)
	require.NoError(t, err)
	assert.Equal(t, "Bearer abc", string(resp.Body))
}

func TestHTTPClient_GetAuthenticatorFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	authenticator := authmocks.NewMockAuthenticator(ctrl)
	authenticator.EXPECT().Apply(gomock.Any()).Return(errors.New("no token"))

	_, err := rhttp.NewHTTPClient(time.Second).Get(context.Background(), "http://127.0.0.1:1/", authenticator)
	assert.ErrorIs(t, err, rhttp.ErrAuthentication)
	assert.False(t, rhttp.IsConnectionError(err))
}

func TestHTTPClient_ConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := rhttp.NewHTTPClient(time.Second).Get(context.Background(), url, nil)
	require.Error(t, err)
	assert.True(t, rhttp.IsConnectionError(err))
}

func TestHTTPClient_CanceledContextIsNotConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := rhttp.NewHTTPClient(5*time.Second).Get(ctx, srv.URL, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, rhttp.IsConnectionError(err))
}

func TestHTTPClient_BodyCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer srv.Close()

	client := rhttp.NewHTTPClientWithOptions(rhttp.Options{MaxBodySize: 32})
	_, err := client.Get(context.Background(), srv.URL, nil)
	assert.ErrorIs(t, err, rhttp.ErrBodyTooLarge)
}

func TestHTTPClient_InvalidURL(t *testing.T) {
	_, err := rhttp.NewHTTPClient(time.Second).Get(context.Background(), "://bad", nil)
	assert.ErrorIs(t, err, rhttp.ErrInvalidURL)
}

func TestResponse_RetryAfter(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name   string
		header string
		want   time.Duration
		ok     bool
	}{
		{name: "absent", header: ""},
		{name: "seconds", header: "12", want: 12 * time.Second, ok: true},
		{name: "http date", header: now.Add(90 * time.Second).Format(http.TimeFormat), want: 90 * time.Second, ok: true},
		{name: "past date", header: now.Add(-time.Minute).Format(http.TimeFormat), want: 0, ok: true},
		{name: "garbage", header: "soon"},
		{name: "negative", header: "-3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &rhttp.Response{Header: http.Header{}}
			if tt.header != "" {
				resp.Header.Set("Retry-After", tt.header)
			}
			got, ok := resp.RetryAfter(now)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
