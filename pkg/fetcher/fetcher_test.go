package fetcher_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/glorpus-work/regindex/pkg/adapter"
	"github.com/glorpus-work/regindex/pkg/config"
	"github.com/glorpus-work/regindex/pkg/errutils"
	"github.com/glorpus-work/regindex/pkg/fetcher"
	rhttp "github.com/glorpus-work/regindex/pkg/http"
	httpmocks "github.com/glorpus-work/regindex/pkg/http/mocks"
	"github.com/glorpus-work/regindex/pkg/ratelimit"
	"github.com/glorpus-work/regindex/test/testutil"
)

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
	during func()
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	during := s.during
	s.mu.Unlock()
	if during != nil {
		during()
	}
	return ctx.Err()
}

func (s *sleepRecorder) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

func compile(t *testing.T, def *config.RepositoryConfig) *config.Repository {
	t.Helper()
	repo, err := config.Compile(def)
	require.NoError(t, err)
	return repo
}

func bulkRepo(t *testing.T, baseURL string) *config.Repository {
	return compile(t, &config.RepositoryConfig{
		Name:          "debian-main",
		Type:          "apt",
		Platform:      "linux",
		QueryType:     config.QueryBulk,
		Architectures: []string{"amd64", "arm64"},
		Endpoints:     config.EndpointsConfig{Packages: baseURL + "/dists/stable/main/binary-{arch}/Packages.gz"},
		Parsing:       config.ParsingConfig{Format: "debian_packages", Compression: "gzip"},
	})
}

func apiRepo(t *testing.T, baseURL string, attempts int) *config.Repository {
	return compile(t, &config.RepositoryConfig{
		Name:      "npm",
		Type:      "npm",
		QueryType: config.QueryAPI,
		Endpoints: config.EndpointsConfig{
			Info:     baseURL + "/info/{package}",
			Versions: baseURL + "/versions/{package}",
		},
		Parsing: config.ParsingConfig{
			Format: "json",
			Fields: map[string]string{"name": "name", "version": "version"},
		},
		RateLimiting: &config.RateLimitConfig{
			RequestsPerMinute:   100,
			ConcurrentRequests:  1,
			RetryAttempts:       &attempts,
			RetryBackoffSeconds: 1,
		},
	})
}

func newFetcher(sleeper *sleepRecorder, limiters *ratelimit.Registry) *fetcher.Fetcher {
	return fetcher.New(fetcher.Options{
		Client:   rhttp.NewHTTPClient(5 * time.Second),
		Limiters: limiters,
		Sleep:    sleeper.sleep,
	})
}

func TestFetchBulk_PerArchitecture(t *testing.T) {
	reg := testutil.NewRegistry(t)
	body := testutil.Gzip(t, []byte(testutil.DebianPackages))
	reg.Handle("/dists/stable/main/binary-amd64/Packages.gz", http.StatusOK, body)
	reg.Handle("/dists/stable/main/binary-arm64/Packages.gz", http.StatusOK, body)

	f := newFetcher(&sleepRecorder{}, nil)
	records, err := f.FetchBulk(context.Background(), bulkRepo(t, reg.URL))
	require.NoError(t, err)
	require.Len(t, records, 4)

	assert.Equal(t, "nginx", records[0].Name)
	assert.Equal(t, "1.24.0-1", records[0].Version)
	assert.Equal(t, "debian-main", records[0].RepositoryName)
	assert.Equal(t, "apt", records[0].RepositoryType)
	arch, _ := records[0].ExtraValue("arch")
	assert.Equal(t, "amd64", arch)
	arch, _ = records[3].ExtraValue("arch")
	assert.Equal(t, "arm64", arch)

	assert.Equal(t, 1, reg.Hits("/dists/stable/main/binary-amd64/Packages.gz"))
	assert.Equal(t, 1, reg.Hits("/dists/stable/main/binary-arm64/Packages.gz"))
}

func TestFetchBulk_Failures(t *testing.T) {
	tests := []struct {
		name    string
		arm64   func(reg *testutil.Registry, path string)
		status  int
		wantErr error
	}{
		{
			name:    "server error",
			arm64:   func(reg *testutil.Registry, path string) { reg.Handle(path, http.StatusInternalServerError, nil) },
			status:  http.StatusInternalServerError,
			wantErr: fetcher.ErrUnexpectedStatus,
		},
		{
			name:    "missing index",
			arm64:   func(reg *testutil.Registry, path string) {},
			status:  http.StatusNotFound,
			wantErr: fetcher.ErrUnexpectedStatus,
		},
		{
			name:    "corrupt payload",
			arm64:   func(reg *testutil.Registry, path string) { reg.Handle(path, http.StatusOK, []byte("not gzip at all")) },
			status:  http.StatusOK,
			wantErr: adapter.ErrDecompress,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := testutil.NewRegistry(t)
			reg.Handle("/dists/stable/main/binary-amd64/Packages.gz", http.StatusOK, testutil.Gzip(t, []byte(testutil.DebianPackages)))
			tt.arm64(reg, "/dists/stable/main/binary-arm64/Packages.gz")

			records, err := newFetcher(&sleepRecorder{}, nil).FetchBulk(context.Background(), bulkRepo(t, reg.URL))
			require.Error(t, err)
			assert.Nil(t, records)
			assert.ErrorIs(t, err, tt.wantErr)

			var fe *fetcher.FetchError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, "debian-main", fe.Repository)
			assert.Equal(t, tt.status, fe.StatusCode)
		})
	}
}

func TestFetchBulk_ParseErrorSurfacesAsFetchError(t *testing.T) {
	reg := testutil.NewRegistry(t)
	reg.HandleJSON("/formula.json", `[{"name": "jq"`)

	repo := compile(t, &config.RepositoryConfig{
		Name:      "homebrew",
		QueryType: config.QueryBulk,
		Endpoints: config.EndpointsConfig{Packages: reg.URL + "/formula.json"},
		Parsing:   config.ParsingConfig{Format: "json", Fields: map[string]string{"name": "name"}},
	})

	_, err := newFetcher(&sleepRecorder{}, nil).FetchBulk(context.Background(), repo)
	var pe *adapter.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "homebrew", pe.Repository)
}

func TestFetchPackage(t *testing.T) {
	reg := testutil.NewRegistry(t)
	reg.HandleJSON("/info/left-pad", `{"name":"left-pad","version":"1.3.0"}`)

	records, err := newFetcher(&sleepRecorder{}, nil).FetchPackage(context.Background(), apiRepo(t, reg.URL, 3), "left-pad")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "left-pad", records[0].Name)
	assert.Equal(t, "1.3.0", records[0].Version)
	assert.Equal(t, "npm", records[0].RepositoryName)
	assert.Equal(t, 1, reg.Hits("/info/left-pad"))
}

func TestFetchPackage_NotFoundIsNotRetried(t *testing.T) {
	reg := testutil.NewRegistry(t)
	sleeper := &sleepRecorder{}

	_, err := newFetcher(sleeper, nil).FetchPackage(context.Background(), apiRepo(t, reg.URL, 3), "ghost")
	require.Error(t, err)
	assert.ErrorIs(t, err, errutils.ErrPackageNotFound)

	var fe *fetcher.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "ghost", fe.Package)
	assert.Equal(t, http.StatusNotFound, fe.StatusCode)
	assert.Equal(t, 1, reg.Hits("/info/ghost"))
	assert.Empty(t, sleeper.recorded())
}

func TestFetchPackage_RetriesRateLimitWithBackoff(t *testing.T) {
	reg := testutil.NewRegistry(t)
	var mu sync.Mutex
	calls := 0
	reg.HandleFunc("/info/left-pad", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		switch n {
		case 1:
			w.WriteHeader(http.StatusTooManyRequests)
		case 2:
			w.Header().Set("Retry-After", "30")
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			_, _ = w.Write([]byte(`{"name":"left-pad","version":"1.3.0"}`))
		}
	})

	sleeper := &sleepRecorder{}
	records, err := newFetcher(sleeper, nil).FetchPackage(context.Background(), apiRepo(t, reg.URL, 3), "left-pad")
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, 3, reg.Hits("/info/left-pad"))
	// 1s * 2^0, then Retry-After raises 1s * 2^1 to 30s
	assert.Equal(t, []time.Duration{time.Second, 30 * time.Second}, sleeper.recorded())
}

func TestFetchPackage_RetriesExhausted(t *testing.T) {
	reg := testutil.NewRegistry(t)
	reg.Handle("/info/left-pad", http.StatusTooManyRequests, nil)

	sleeper := &sleepRecorder{}
	_, err := newFetcher(sleeper, nil).FetchPackage(context.Background(), apiRepo(t, reg.URL, 2), "left-pad")
	require.Error(t, err)
	assert.ErrorIs(t, err, fetcher.ErrRetriesExhausted)
	assert.ErrorIs(t, err, ratelimit.ErrRateLimitExceeded)

	var fe *fetcher.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 3, fe.Attempts)
	assert.Equal(t, http.StatusTooManyRequests, fe.StatusCode)
	assert.Equal(t, 3, reg.Hits("/info/left-pad"))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.recorded())
}

func TestFetchPackage_ConnectionFailureRetried(t *testing.T) {
	reg := testutil.NewRegistry(t)
	repo := apiRepo(t, reg.URL, 2)
	reg.Server.Close()

	sleeper := &sleepRecorder{}
	_, err := newFetcher(sleeper, nil).FetchPackage(context.Background(), repo, "left-pad")
	require.Error(t, err)
	assert.ErrorIs(t, err, fetcher.ErrRetriesExhausted)
	assert.ErrorIs(t, err, rhttp.ErrConnection)
	assert.Len(t, sleeper.recorded(), 2)
}

func TestFetch_TransportErrors(t *testing.T) {
	const registry = "https://registry.example.test"
	refused := fmt.Errorf("%w: dial tcp: connection refused", rhttp.ErrConnection)
	badCert := errors.New("tls: failed to verify certificate")

	t.Run("bulk fails on first transport error", func(t *testing.T) {
		client := httpmocks.NewMockClient(gomock.NewController(t))
		repo := bulkRepo(t, "https://mirror.example.test")
		client.EXPECT().Get(gomock.Any(), "https://mirror.example.test/dists/stable/main/binary-amd64/Packages.gz", gomock.Any()).
			Return(nil, refused).
			Times(1)

		f := fetcher.New(fetcher.Options{Client: client, Sleep: (&sleepRecorder{}).sleep})
		_, err := f.FetchBulk(context.Background(), repo)
		var ferr *fetcher.FetchError
		require.ErrorAs(t, err, &ferr)
		assert.Equal(t, 1, ferr.Attempts)
		assert.ErrorIs(t, err, rhttp.ErrConnection)
	})

	t.Run("package request retried after connection error", func(t *testing.T) {
		client := httpmocks.NewMockClient(gomock.NewController(t))
		repo := apiRepo(t, registry, 2)
		gomock.InOrder(
			client.EXPECT().Get(gomock.Any(), registry+"/info/left-pad", gomock.Any()).Return(nil, refused),
			client.EXPECT().Get(gomock.Any(), registry+"/info/left-pad", gomock.Any()).
				Return(&rhttp.Response{StatusCode: http.StatusOK, Body: []byte(`{"name":"left-pad","version":"1.3.0"}`)}, nil),
		)

		sleeper := &sleepRecorder{}
		f := fetcher.New(fetcher.Options{Client: client, Sleep: sleeper.sleep})
		records, err := f.FetchPackage(context.Background(), repo, "left-pad")
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "1.3.0", records[0].Version)
		assert.Equal(t, []time.Duration{time.Second}, sleeper.recorded())
	})

	t.Run("other transport errors are not retried", func(t *testing.T) {
		client := httpmocks.NewMockClient(gomock.NewController(t))
		repo := apiRepo(t, registry, 3)
		client.EXPECT().Get(gomock.Any(), registry+"/info/left-pad", gomock.Any()).
			Return(nil, badCert).
			Times(1)

		sleeper := &sleepRecorder{}
		f := fetcher.New(fetcher.Options{Client: client, Sleep: sleeper.sleep})
		_, err := f.FetchPackage(context.Background(), repo, "left-pad")
		var ferr *fetcher.FetchError
		require.ErrorAs(t, err, &ferr)
		assert.Equal(t, 1, ferr.Attempts)
		assert.ErrorIs(t, err, badCert)
		assert.Empty(t, sleeper.recorded())
	})
}

func TestFetchPackage_ServerErrorNotRetried(t *testing.T) {
	reg := testutil.NewRegistry(t)
	reg.Handle("/info/left-pad", http.StatusBadGateway, nil)

	_, err := newFetcher(&sleepRecorder{}, nil).FetchPackage(context.Background(), apiRepo(t, reg.URL, 3), "left-pad")
	assert.ErrorIs(t, err, fetcher.ErrUnexpectedStatus)
	assert.Equal(t, 1, reg.Hits("/info/left-pad"))
}

func TestFetchPackage_PermitReleasedDuringBackoff(t *testing.T) {
	reg := testutil.NewRegistry(t)
	reg.Handle("/info/left-pad", http.StatusTooManyRequests, nil)

	repo := apiRepo(t, reg.URL, 1)
	limiters := ratelimit.NewRegistry()
	limiter := limiters.Register(repo.Name, repo.Limits)

	var inFlight []int
	sleeper := &sleepRecorder{during: func() {
		inFlight = append(inFlight, limiter.State().InFlight)
	}}

	_, err := newFetcher(sleeper, limiters).FetchPackage(context.Background(), repo, "left-pad")
	require.Error(t, err)
	assert.Equal(t, []int{0}, inFlight)
	assert.Equal(t, 0, limiter.State().InFlight)
}

func TestFetchPackage_BackoffCapped(t *testing.T) {
	reg := testutil.NewRegistry(t)
	reg.HandleFunc("/info/left-pad", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3600")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	sleeper := &sleepRecorder{}
	f := fetcher.New(fetcher.Options{
		Client:     rhttp.NewHTTPClient(5 * time.Second),
		MaxBackoff: 90 * time.Second,
		Sleep:      sleeper.sleep,
	})
	_, err := f.FetchPackage(context.Background(), apiRepo(t, reg.URL, 1), "left-pad")
	require.Error(t, err)
	assert.Equal(t, []time.Duration{90 * time.Second}, sleeper.recorded())
}

func TestFetchPackage_CanceledDuringBackoff(t *testing.T) {
	reg := testutil.NewRegistry(t)
	reg.Handle("/info/left-pad", http.StatusTooManyRequests, nil)

	ctx, cancel := context.WithCancel(context.Background())
	sleeper := &sleepRecorder{during: cancel}

	_, err := newFetcher(sleeper, nil).FetchPackage(ctx, apiRepo(t, reg.URL, 5), "left-pad")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, reg.Hits("/info/left-pad"))
}

func TestFetchVersions(t *testing.T) {
	reg := testutil.NewRegistry(t)
	reg.HandleJSON("/versions/left-pad", `{"name":"left-pad","version":"1.3.0"}`)

	records, err := newFetcher(&sleepRecorder{}, nil).FetchVersions(context.Background(), apiRepo(t, reg.URL, 0), "left-pad")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 1, reg.Hits("/versions/left-pad"))
	assert.Equal(t, 0, reg.Hits("/info/left-pad"))
}

func TestSearch(t *testing.T) {
	reg := testutil.NewRegistry(t)
	reg.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") != "left pad" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"results":[{"name":"left-pad","version":"1.3.0"},{"name":"left-pad-ng","version":"0.1.0"}]}`))
	})

	repo := compile(t, &config.RepositoryConfig{
		Name:      "npm-search",
		Type:      "npm",
		QueryType: config.QueryAPI,
		Endpoints: config.EndpointsConfig{Search: reg.URL + "/search?q={query}"},
		Parsing: config.ParsingConfig{
			Format: "json",
			Fields: map[string]string{"name": "results[].name", "version": "results[].version"},
		},
	})

	f := newFetcher(&sleepRecorder{}, nil)
	records, err := f.Search(context.Background(), repo, "left pad")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "left-pad-ng", records[1].Name)

	// search-only repositories answer exact lookups through search
	reg.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[{"name":"left-pad","version":"1.3.0"},{"name":"left-pad-ng","version":"0.1.0"}]}`))
	})
	records, err = f.FetchPackage(context.Background(), repo, "left-pad-ng")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "0.1.0", records[0].Version)
}

func TestSearch_NoEndpoint(t *testing.T) {
	_, err := newFetcher(&sleepRecorder{}, nil).Search(context.Background(), apiRepo(t, "http://127.0.0.1:1", 0), "x")
	assert.ErrorIs(t, err, fetcher.ErrNoEndpoint)
}

func TestFetchPackage_BulkRepositoryRejected(t *testing.T) {
	_, err := newFetcher(&sleepRecorder{}, nil).FetchPackage(context.Background(), compile(t, &config.RepositoryConfig{
		Name:      "bulk",
		QueryType: config.QueryBulk,
		Endpoints: config.EndpointsConfig{Packages: "http://127.0.0.1:1/Packages", Info: "http://127.0.0.1:1/{package}"},
		Parsing:   config.ParsingConfig{Format: "debian_packages"},
	}), "x")
	assert.ErrorIs(t, err, fetcher.ErrNotAPIRepository)
}
