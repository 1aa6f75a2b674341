// Package platform names the operating-system families a repository serves and
// normalizes CPU architecture names used in endpoint templates.
package platform

const (
	// Linux repositories (apt, dnf, pacman, ...).
	Linux = "linux"
	// MacOS repositories (brew, macports).
	MacOS = "macos"
	// Windows repositories (winget, chocolatey, scoop).
	Windows = "windows"
	// Universal repositories serve every platform (npm, PyPI, crates.io).
	Universal = "universal"

	// ArchAMD64 represents the AMD64 (x86_64) architecture.
	ArchAMD64 = "amd64"
	// Arch386 represents the 32-bit x86 architecture.
	Arch386 = "386"
	// ArchARM represents the ARM architecture (32-bit).
	ArchARM = "arm"
	// ArchARM64 represents the ARM64 (AArch64) architecture.
	ArchARM64 = "arm64"
	// AnyArch represents architecture-independent indexes ("all" in Debian terms).
	AnyArch = "all"
)

// ValidPlatforms returns the platform names accepted in repository definitions.
func ValidPlatforms() []string {
	return []string{Linux, MacOS, Windows, Universal}
}

// ValidArch returns a list of valid architecture values.
func ValidArch() []string {
	return []string{
		ArchAMD64,
		Arch386,
		ArchARM,
		ArchARM64,
		AnyArch,
	}
}
