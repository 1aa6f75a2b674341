package cache_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glorpus-work/regindex/pkg/cache"
)

func TestNewDefaultManager(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "rc")
	t.Setenv("REGINDEX_CACHE_DIR", dir)

	mgr, err := cache.NewDefaultManager()
	require.NoError(t, err)
	assert.Equal(t, dir, mgr.GetDirectory())
	assert.DirExists(t, dir)
}

func TestSetDirectory(t *testing.T) {
	tests := []struct {
		name        string
		directory   string
		expectError bool
	}{
		{name: "valid directory", directory: t.TempDir()},
		{name: "empty directory", directory: "", expectError: true},
		{name: "non-existent directory", directory: filepath.Join(t.TempDir(), "nonexistent")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mgr := cache.NewManager(t.TempDir())
			err := mgr.SetDirectory(tt.directory)
			if tt.expectError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.directory, mgr.GetDirectory())
		})
	}
}

func populatedDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	p, err := cache.NewDiskPersister(dir)
	require.NoError(t, err)
	s := cache.NewStore(cache.Options{Persister: p})
	fillStore(t, s)
	return dir
}

func TestManager_GetInfo(t *testing.T) {
	dir := populatedDir(t)
	info, err := cache.NewManager(dir).GetInfo()
	require.NoError(t, err)

	assert.Equal(t, dir, info.Directory)
	assert.Equal(t, 2, info.Repositories)
	assert.Equal(t, 2, info.BulkFiles)
	assert.Equal(t, 4, info.APIFiles)
	assert.Positive(t, info.BulkSize)
	assert.Positive(t, info.APISize)
	assert.Equal(t, info.BulkSize+info.APISize, info.TotalSize)
	assert.WithinDuration(t, time.Now(), info.LastModified, time.Minute)
}

func TestManager_GetInfo_MissingDirectory(t *testing.T) {
	info, err := cache.NewManager(filepath.Join(t.TempDir(), "none")).GetInfo()
	require.NoError(t, err)
	assert.Zero(t, info.TotalSize)
}

func TestManager_Clean(t *testing.T) {
	t.Run("api only", func(t *testing.T) {
		dir := populatedDir(t)
		res, err := cache.NewManager(dir).Clean(cache.CleanOptions{API: true})
		require.NoError(t, err)
		assert.Zero(t, res.BulkFreed)
		assert.Positive(t, res.APIFreed)
		assert.NoDirExists(t, filepath.Join(dir, "npm"))
		assert.FileExists(t, filepath.Join(dir, "debian-main", "bulk.payload.json"))
	})

	t.Run("single repository", func(t *testing.T) {
		dir := populatedDir(t)
		res, err := cache.NewManager(dir).Clean(cache.CleanOptions{Repository: "debian-main"})
		require.NoError(t, err)
		assert.Positive(t, res.BulkFreed)
		assert.NoDirExists(t, filepath.Join(dir, "debian-main"))
		assert.DirExists(t, filepath.Join(dir, "npm"))
	})

	t.Run("everything", func(t *testing.T) {
		dir := populatedDir(t)
		require.NoError(t, os.WriteFile(filepath.Join(dir, cache.SQLiteFile), []byte("db"), 0o600))
		res, err := cache.NewManager(dir).Clean(cache.CleanOptions{})
		require.NoError(t, err)
		assert.Equal(t, res.BulkFreed+res.APIFreed, res.TotalFreed)
		assert.NoFileExists(t, filepath.Join(dir, cache.SQLiteFile))

		info, err := cache.NewManager(dir).GetInfo()
		require.NoError(t, err)
		assert.Zero(t, info.TotalSize)
	})
}

func TestCacheOperation(t *testing.T) {
	dir := populatedDir(t)
	op := cache.NewCacheOperation(cache.NewManager(dir))

	info, err := op.GetInfo()
	require.NoError(t, err)
	assert.Contains(t, info, "Cache directory: "+dir)
	assert.Contains(t, info, "Repositories: 2")

	msg, err := op.Clean(cache.CleanOptions{All: true})
	require.NoError(t, err)
	assert.Contains(t, msg, "Successfully cleaned cache")

	msg, err = op.Clean(cache.CleanOptions{All: true})
	require.NoError(t, err)
	assert.Equal(t, "No files were removed from the cache.", msg)
	assert.Equal(t, dir, op.GetDirectory())
}
