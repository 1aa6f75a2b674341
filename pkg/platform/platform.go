package platform

import (
	"runtime"
	"slices"
	"strings"
)

// Current returns the platform name of the running host.
func Current() string {
	return Normalize(runtime.GOOS)
}

// CurrentArch returns the normalized architecture of the running host.
func CurrentArch() string {
	return NormalizeArch(runtime.GOARCH)
}

// Normalize maps OS spellings onto the platform names used by repository
// definitions. Unknown values are lowercased and returned as-is.
func Normalize(os string) string {
	os = strings.ToLower(strings.TrimSpace(os))
	switch os {
	case "darwin", "osx", "mac", "macos":
		return MacOS
	case "win", "win32", "windows":
		return Windows
	case "linux", "freebsd", "openbsd", "netbsd":
		// BSD ports are grouped with linux for query targeting
		return Linux
	case "any", "all", "universal", "":
		return Universal
	default:
		return os
	}
}

// IsValid reports whether name is one of ValidPlatforms after normalization.
func IsValid(name string) bool {
	return slices.Contains(ValidPlatforms(), Normalize(name))
}

// Matches reports whether a repository serving repoPlatform should answer a
// query targeting target. Universal repositories match every target and an
// empty target matches every repository.
func Matches(repoPlatform, target string) bool {
	if strings.TrimSpace(target) == "" {
		return true
	}
	rp := Normalize(repoPlatform)
	tp := Normalize(target)
	return rp == Universal || tp == Universal || rp == tp
}

// NormalizeArch normalizes architecture names to a common format
func NormalizeArch(arch string) string {
	arch = strings.ToLower(strings.TrimSpace(arch))
	switch arch {
	case "x86_64", "x64", "amd64":
		return ArchAMD64
	case "x86", "i386", "i686", "386":
		return Arch386
	case "arm64", "aarch64":
		return ArchARM64
	case "arm", "armhf", "armel", "armv7", "armv7l":
		return ArchARM
	case "any", "noarch", "all":
		return AnyArch
	default:
		return arch
	}
}

// DebianArch returns the Debian spelling of a normalized architecture, which is
// what most apt mirrors expect in the {arch} placeholder.
func DebianArch(arch string) string {
	switch NormalizeArch(arch) {
	case Arch386:
		return "i386"
	case ArchARM:
		return "armhf"
	default:
		return NormalizeArch(arch)
	}
}
