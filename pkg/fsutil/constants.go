// Package fsutil resolves regindex's on-disk locations and provides the small
// file helpers the cache and config layers share.
package fsutil

// File and directory permission constants.
const (
	FileModeDefault = 0o644 // -rw-r--r--: Default for regular files
	FileModeSecure  = 0o600 // -rw-------: Credential files and the sqlite cache

	DirModeDefault = 0o755 // drwxr-xr-x: Default for directories
	DirModePrivate = 0o700 // drwx------: Cache root
)

const (
	// AppName is the name of the application used in paths
	AppName = "regindex"

	// ConfigFileName is the default config file under the config directory.
	ConfigFileName = "config.yaml"

	// ProvidersDirName holds one repository definition per file.
	ProvidersDirName = "providers.d"
)
