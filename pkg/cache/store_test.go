package cache_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/glorpus-work/regindex/pkg/cache"
	cachemocks "github.com/glorpus-work/regindex/pkg/cache/mocks"
	"github.com/glorpus-work/regindex/pkg/model"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func records(names ...string) []model.PackageRecord {
	out := make([]model.PackageRecord, 0, len(names))
	for _, n := range names {
		out = append(out, model.PackageRecord{Name: n, Version: "1.0.0", RepositoryName: "debian-main"})
	}
	return out
}

func TestStore_GetExpiryAndSweep(t *testing.T) {
	clock := newClock()
	s := cache.NewStore(cache.Options{Now: clock.Now})

	require.NoError(t, s.Put(cache.PutSpec{
		Key:        cache.BulkKey("debian-main"),
		Kind:       cache.KindBulk,
		Repository: "debian-main",
		Records:    records("nginx", "curl"),
		TTL:        time.Hour,
	}))

	e, found, expired := s.Get("debian-main")
	require.True(t, found)
	assert.False(t, expired)
	assert.Len(t, e.Records, 2)
	assert.NotEmpty(t, e.Digest)
	assert.Positive(t, e.Size)

	fresh, ok := s.Fresh("debian-main")
	require.True(t, ok)
	assert.Len(t, fresh.Records, 2)

	clock.Advance(time.Hour + time.Second)
	_, found, expired = s.Get("debian-main")
	assert.True(t, found)
	assert.True(t, expired)
	_, ok = s.Fresh("debian-main")
	assert.False(t, ok)

	// expired but within grace: sweep keeps it for stale serving
	res := s.Sweep()
	assert.Empty(t, res.Evicted)

	clock.Advance(time.Hour)
	res = s.Sweep()
	assert.Equal(t, []string{"debian-main"}, res.Evicted)
	_, found, _ = s.Get("debian-main")
	assert.False(t, found)
	assert.Equal(t, uint64(1), s.Stats().Evictions)
}

func TestStore_SweepSkipsRefreshingRepository(t *testing.T) {
	clock := newClock()
	s := cache.NewStore(cache.Options{Now: clock.Now})
	require.NoError(t, s.Put(cache.PutSpec{Key: "npm:left-pad", Kind: cache.KindPackage, Repository: "npm", Package: "left-pad", Records: records("left-pad"), TTL: time.Minute}))

	clock.Advance(time.Hour)
	s.BeginRefresh("npm")
	assert.True(t, s.IsRefreshing("npm"))
	res := s.Sweep()
	assert.Empty(t, res.Evicted)
	assert.Equal(t, 1, res.Protected)

	s.EndRefresh("npm")
	assert.False(t, s.IsRefreshing("npm"))
	res = s.Sweep()
	assert.Equal(t, []string{"npm:left-pad"}, res.Evicted)
}

func TestStore_CustomGrace(t *testing.T) {
	clock := newClock()
	s := cache.NewStore(cache.Options{Now: clock.Now, Grace: 1})
	require.NoError(t, s.Put(cache.PutSpec{Key: "k", Repository: "r", TTL: time.Minute}))
	clock.Advance(time.Minute + time.Second)
	assert.Len(t, s.Sweep().Evicted, 1)
}

func TestStore_CapacityError(t *testing.T) {
	s := cache.NewStore(cache.Options{})
	big := make([]model.PackageRecord, 0, 20000)
	for i := 0; i < 20000; i++ {
		big = append(big, model.PackageRecord{Name: "package-with-a-long-name", Version: "1.2.3", Description: "padding padding padding"})
	}

	err := s.Put(cache.PutSpec{Key: "huge", Kind: cache.KindBulk, Repository: "huge", Records: big, TTL: time.Hour, MaxSizeMB: 1})
	var capErr *cache.CapacityError
	require.ErrorAs(t, err, &capErr)
	assert.ErrorIs(t, err, cache.ErrCapacity)
	assert.Equal(t, "huge", capErr.Repository)
	assert.Greater(t, capErr.Size, capErr.Limit)

	_, found, _ := s.Get("huge")
	assert.False(t, found)
}

func TestStore_PutReplacesAndIsolates(t *testing.T) {
	s := cache.NewStore(cache.Options{})
	in := records("a")
	require.NoError(t, s.Put(cache.PutSpec{Key: "k", Repository: "r", Records: in, TTL: time.Hour}))
	in[0].Name = "mutated"

	e, _, _ := s.Get("k")
	assert.Equal(t, "a", e.Records[0].Name)
	e.Records[0].Name = "mutated-again"

	e2, _, _ := s.Get("k")
	assert.Equal(t, "a", e2.Records[0].Name)

	require.NoError(t, s.Put(cache.PutSpec{Key: "k", Repository: "r", Records: records("b", "c"), TTL: time.Hour}))
	e3, _, _ := s.Get("k")
	assert.Len(t, e3.Records, 2)
}

func TestStore_InvalidateAndStats(t *testing.T) {
	s := cache.NewStore(cache.Options{})
	require.NoError(t, s.Put(cache.PutSpec{Key: "npm:a", Repository: "npm", Records: records("a"), TTL: time.Hour}))
	require.NoError(t, s.Put(cache.PutSpec{Key: "npm:b", Repository: "npm", Records: records("b"), TTL: time.Hour}))
	require.NoError(t, s.Put(cache.PutSpec{Key: "debian-main", Repository: "debian-main", Records: records("x", "y"), TTL: time.Hour}))

	s.Get("npm:a")
	s.Get("missing")

	st := s.Stats()
	assert.Equal(t, 3, st.Entries)
	assert.Equal(t, 2, st.Repositories["npm"].Entries)
	assert.Equal(t, 2, st.Repositories["debian-main"].Records)
	assert.Equal(t, uint64(1), st.Hits)
	assert.Equal(t, uint64(1), st.Misses)

	s.Invalidate("npm:a")
	s.Invalidate("never-there")
	assert.Equal(t, []string{"debian-main", "npm:b"}, s.Keys())

	assert.Equal(t, 1, s.InvalidateRepository("npm"))
	assert.Equal(t, []string{"debian-main"}, s.Keys())
}

func TestStore_EmptyKeyAndClosed(t *testing.T) {
	s := cache.NewStore(cache.Options{})
	assert.ErrorIs(t, s.Put(cache.PutSpec{}), cache.ErrEmptyKey)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Put(cache.PutSpec{Key: "k"}), cache.ErrStoreClosed)
}

func TestStore_PersistFailureKeepsMemoryEntry(t *testing.T) {
	ctrl := gomock.NewController(t)
	p := cachemocks.NewMockPersister(ctrl)
	p.EXPECT().Save(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))

	s := cache.NewStore(cache.Options{Persister: p})
	err := s.Put(cache.PutSpec{Key: "k", Repository: "r", Records: records("a"), TTL: time.Hour})
	assert.ErrorIs(t, err, cache.ErrPersist)

	_, found, _ := s.Get("k")
	assert.True(t, found)
}

func TestStore_OpenDropsDigestMismatch(t *testing.T) {
	ctrl := gomock.NewController(t)
	p := cachemocks.NewMockPersister(ctrl)

	good := []byte(`[{"name":"nginx","version":"1.24.0-1","repository":"debian-main"}]`)
	// the digest below belongs to a different payload
	bad := &cache.Entry{Key: "tampered", Repository: "r", Digest: "00", TTL: time.Hour}

	seed := cache.NewStore(cache.Options{})
	require.NoError(t, seed.Put(cache.PutSpec{Key: "debian-main", Repository: "debian-main", Records: []model.PackageRecord{{Name: "nginx", Version: "1.24.0-1", RepositoryName: "debian-main"}}, TTL: time.Hour}))
	ref, _, _ := seed.Get("debian-main")

	p.EXPECT().Load().Return([]cache.Stored{
		{Entry: &cache.Entry{Key: "debian-main", Repository: "debian-main", Digest: ref.Digest, TTL: time.Hour, FetchedAt: time.Now()}, Payload: good},
		{Entry: bad, Payload: []byte(`[]`)},
	}, nil)
	p.EXPECT().Delete(bad).Return(nil)

	s := cache.NewStore(cache.Options{Persister: p})
	require.NoError(t, s.Open())
	assert.Equal(t, []string{"debian-main"}, s.Keys())
	e, found, expired := s.Get("debian-main")
	require.True(t, found)
	assert.False(t, expired)
	assert.Equal(t, "nginx", e.Records[0].Name)
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := cache.NewStore(cache.Options{})
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = s.Put(cache.PutSpec{Key: "shared", Repository: "r", Records: records("a"), TTL: time.Hour})
		}()
		go func() {
			defer wg.Done()
			s.Get("shared")
			s.Sweep()
		}()
	}
	wg.Wait()
	_, found, _ := s.Get("shared")
	assert.True(t, found)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "npm", cache.BulkKey("npm"))
	assert.Equal(t, "npm:left-pad", cache.PackageKey("npm", "left-pad"))
	assert.Equal(t, "npm?q=pad", cache.SearchKey("npm", "pad"))
}

func TestStore_EntriesDoesNotCountHits(t *testing.T) {
	s := cache.NewStore(cache.Options{})
	require.NoError(t, s.Put(cache.PutSpec{Key: cache.PackageKey("npm", "b"), Kind: cache.KindPackage, Repository: "npm", Package: "b", Records: records("b")}))
	require.NoError(t, s.Put(cache.PutSpec{Key: cache.PackageKey("npm", "a"), Kind: cache.KindPackage, Repository: "npm", Package: "a", Records: records("a")}))
	require.NoError(t, s.Put(cache.PutSpec{Key: "debian-main", Kind: cache.KindBulk, Repository: "debian-main", Records: records("nginx")}))

	entries := s.Entries("npm")
	require.Len(t, entries, 2)
	assert.Equal(t, "npm:a", entries[0].Key)
	assert.Equal(t, "b", entries[1].Package)

	_, ok := s.Fresh("npm:a")
	assert.True(t, ok)
	_, ok = s.Fresh("npm:missing")
	assert.False(t, ok)

	st := s.Stats()
	assert.Zero(t, st.Hits)
	assert.Zero(t, st.Misses)
}
