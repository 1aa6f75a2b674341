package platform

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCurrent(t *testing.T) {
	assert.Equal(t, Normalize(runtime.GOOS), Current())
	assert.Equal(t, NormalizeArch(runtime.GOARCH), CurrentArch())
	assert.NotEmpty(t, CurrentArch())
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"darwin", MacOS},
		{"macOS", MacOS},
		{"Windows", Windows},
		{"win32", Windows},
		{"linux", Linux},
		{"freebsd", Linux},
		{"", Universal},
		{"any", Universal},
		{"plan9", "plan9"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, Normalize(tt.input))
		})
	}
}

func TestIsValid(t *testing.T) {
	assert.True(t, IsValid("linux"))
	assert.True(t, IsValid("darwin"))
	assert.True(t, IsValid("universal"))
	assert.False(t, IsValid("plan9"))
}

func TestMatches(t *testing.T) {
	tests := []struct {
		name     string
		repo     string
		target   string
		expected bool
	}{
		{"same platform", Linux, Linux, true},
		{"different platform", Linux, Windows, false},
		{"universal repository", Universal, MacOS, true},
		{"universal target", Windows, Universal, true},
		{"empty target", MacOS, "", true},
		{"aliases normalized", MacOS, "darwin", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Matches(tt.repo, tt.target))
		})
	}
}

func TestNormalizeArch(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"x86_64", ArchAMD64},
		{"amd64", ArchAMD64},
		{"i686", Arch386},
		{"aarch64", ArchARM64},
		{"armhf", ArchARM},
		{"noarch", AnyArch},
		{"riscv64", "riscv64"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeArch(tt.input))
		})
	}
}

func TestDebianArch(t *testing.T) {
	assert.Equal(t, "i386", DebianArch("x86"))
	assert.Equal(t, "armhf", DebianArch("armv7l"))
	assert.Equal(t, "amd64", DebianArch("x86_64"))
	assert.Equal(t, "arm64", DebianArch("aarch64"))
}
