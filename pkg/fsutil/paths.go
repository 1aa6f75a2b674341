package fsutil

import (
	"os"
	"path/filepath"
)

// GetCacheDir returns the platform-specific cache directory for the application
// On Linux: ~/.cache/regindex/
// On macOS: ~/Library/Caches/regindex/
// On Windows: %LOCALAPPDATA%\regindex\
// REGINDEX_CACHE_DIR overrides all of them.
func GetCacheDir() (string, error) {
	if dir := os.Getenv("REGINDEX_CACHE_DIR"); dir != "" {
		return dir, nil
	}
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, AppName), nil
}

// GetConfigDir returns the platform-specific configuration directory.
// REGINDEX_CONFIG_DIR overrides it.
func GetConfigDir() (string, error) {
	if dir := os.Getenv("REGINDEX_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, AppName), nil
}

// GetConfigFilePath returns <config_dir>/config.yaml.
func GetConfigFilePath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName), nil
}

// GetProvidersDir returns <config_dir>/providers.d.
func GetProvidersDir() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ProvidersDirName), nil
}
