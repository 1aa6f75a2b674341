package adapter

import (
	"bytes"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"

	"github.com/glorpus-work/regindex/pkg/fieldpath"
)

const debianPackages = `Package: nginx
Version: 1.24.0-1
Architecture: amd64
Section: httpd
Homepage: https://nginx.org
Description: small, powerful, scalable web/proxy server
 Nginx ("engine X") is a high-performance web and reverse proxy server.
 .
 This is a dependency package.

Package: curl
Version: 8.5.0-2
Section: web
Description: command line tool for transferring data with URL syntax
`

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestParse_DebianStanza(t *testing.T) {
	records, err := Parse([]byte(debianPackages), ParsingSpec{Repository: "debian-main", Format: FormatDebianPackages})
	require.NoError(t, err)
	require.Len(t, records, 2)

	nginx := records[0]
	assert.Equal(t, "nginx", nginx.Name)
	assert.Equal(t, "1.24.0-1", nginx.Version)
	assert.Equal(t, "small, powerful, scalable web/proxy server", nginx.Description)
	assert.Equal(t, "https://nginx.org", nginx.Homepage)
	assert.Equal(t, "httpd", nginx.Category)
	arch, ok := nginx.ExtraValue("Architecture")
	require.True(t, ok)
	assert.Equal(t, "amd64", arch)

	assert.Equal(t, "curl", records[1].Name)
	assert.Equal(t, "8.5.0-2", records[1].Version)
}

func TestParse_DebianMinimalStanza(t *testing.T) {
	records, err := Parse([]byte("Package: nginx\nVersion: 1.24.0-1\n"), ParsingSpec{Format: FormatDebianPackages})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "nginx", records[0].Name)
	assert.Equal(t, "1.24.0-1", records[0].Version)
}

func TestParse_DebianSkipsStanzaWithoutPackage(t *testing.T) {
	raw := "Version: 1.0\nSection: misc\n\nPackage: ok\nVersion: 2.0\n"
	records, err := Parse([]byte(raw), ParsingSpec{Format: FormatDebianPackages})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "ok", records[0].Name)
}

func TestParse_DebianSkipsMalformedStanza(t *testing.T) {
	raw := "Package: nginx\nVersion: 1.24.0-1\n\n" +
		"Package: broken\nthis line has no colon\nVersion: 0.1\n\n" +
		" continuation before any field\nPackage: orphan\n\n" +
		"Package: curl\nVersion: 8.5.0-2\n"
	records, err := Parse([]byte(raw), ParsingSpec{Repository: "r", Format: FormatDebianPackages})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "nginx", records[0].Name)
	assert.Equal(t, "curl", records[1].Name)
	assert.Equal(t, "8.5.0-2", records[1].Version)
}

func TestParse_DebianMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"leading continuation", " leading continuation\n"},
		{"every stanza broken", "Package: a\nno colon\n\nPackage: b\n: empty key\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.raw), ParsingSpec{Repository: "r", Format: FormatDebianPackages})
			var perr *ParseError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, "r", perr.Repository)
			assert.ErrorIs(t, err, ErrMalformedDocument)
		})
	}
}

func TestParse_GzipDebian(t *testing.T) {
	records, err := Parse(gzipBytes(t, []byte(debianPackages)), ParsingSpec{
		Format:      FormatDebianPackages,
		Compression: CompressionGzip,
	})
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestDecompress(t *testing.T) {
	payload := []byte(`{"name":"left-pad","version":"1.3.0"}`)

	var br bytes.Buffer
	bw := brotli.NewWriter(&br)
	_, err := bw.Write(payload)
	require.NoError(t, err)
	require.NoError(t, bw.Close())

	var xzBuf bytes.Buffer
	xw, err := xz.NewWriter(&xzBuf)
	require.NoError(t, err)
	_, err = xw.Write(payload)
	require.NoError(t, err)
	require.NoError(t, xw.Close())

	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	zst := enc.EncodeAll(payload, nil)
	require.NoError(t, enc.Close())

	tests := []struct {
		name        string
		input       []byte
		compression Compression
	}{
		{"none", payload, CompressionNone},
		{"empty means none", payload, ""},
		{"gzip", gzipBytes(t, payload), CompressionGzip},
		{"brotli", br.Bytes(), CompressionBrotli},
		{"xz", xzBuf.Bytes(), CompressionXZ},
		{"zstd", zst, CompressionZstd},
		{"auto gzip", gzipBytes(t, payload), CompressionAuto},
		{"auto xz", xzBuf.Bytes(), CompressionAuto},
		{"auto plain", payload, CompressionAuto},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Decompress(tt.input, tt.compression)
			require.NoError(t, err)
			assert.Equal(t, payload, out)
		})
	}
}

func TestParse_CorruptGzipIsParseError(t *testing.T) {
	raw := []byte(strings.Repeat("not gzip at all ", 20))
	_, err := Parse(raw, ParsingSpec{Repository: "debian-main", Format: FormatDebianPackages, Compression: CompressionGzip})

	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, ErrDecompress)
	assert.Equal(t, FormatDebianPackages, perr.Format)
	assert.Len(t, perr.Excerpt, excerptLimit)
	assert.Contains(t, err.Error(), "debian-main")
}

func TestParseCompression(t *testing.T) {
	c, err := ParseCompression("")
	require.NoError(t, err)
	assert.Equal(t, CompressionNone, c)

	c, err = ParseCompression("GZ")
	require.NoError(t, err)
	assert.Equal(t, CompressionGzip, c)

	_, err = ParseCompression("lzma")
	assert.ErrorIs(t, err, ErrUnknownCompression)
}

func TestParse_UnknownFormat(t *testing.T) {
	_, err := Parse([]byte("x"), ParsingSpec{Format: "yaml"})
	assert.ErrorIs(t, err, ErrUnknownFormat)
	assert.False(t, IsKnownFormat("yaml"))
	assert.True(t, IsKnownFormat("JSON"))
	assert.Len(t, Formats(), 5)
}

func paths(t *testing.T, m map[string]string) map[string]fieldpath.Path {
	t.Helper()
	out := make(map[string]fieldpath.Path, len(m))
	for k, v := range m {
		p, err := fieldpath.Compile(v)
		require.NoError(t, err)
		out[k] = p
	}
	return out
}

func TestParse_JSON(t *testing.T) {
	t.Run("single object", func(t *testing.T) {
		records, err := Parse([]byte(`{"name":"left-pad","version":"1.3.0","license":"WTFPL"}`), ParsingSpec{Format: FormatJSON})
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "left-pad", records[0].Name)
		assert.Equal(t, "1.3.0", records[0].Version)
		assert.Equal(t, "WTFPL", records[0].License)
		assert.Empty(t, records[0].Homepage)
	})

	t.Run("inferred root from shared prefix", func(t *testing.T) {
		raw := `{"crates":[
			{"name":"serde","max_version":"1.0.200","downloads":12},
			{"name":"tokio","max_version":"1.37.0","downloads":34}
		],"meta":{"total":2}}`
		records, err := Parse([]byte(raw), ParsingSpec{
			Format: FormatJSON,
			Fields: paths(t, map[string]string{
				"name":      "crates[].name",
				"version":   "crates[].max_version",
				"downloads": "crates[].downloads",
			}),
		})
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "tokio", records[1].Name)
		assert.Equal(t, "1.37.0", records[1].Version)
		d, ok := records[1].ExtraValue("downloads")
		require.True(t, ok)
		assert.Equal(t, int64(34), d)
	})

	t.Run("explicit root", func(t *testing.T) {
		raw := `{"results":{"items":[{"id":"a","v":"1"},{"id":"b","v":"2"},{"v":"3"}]}}`
		records, err := Parse([]byte(raw), ParsingSpec{
			Format: FormatJSON,
			Root:   fieldpath.MustCompile("results.items"),
			Fields: paths(t, map[string]string{"name": "id", "version": "v"}),
		})
		require.NoError(t, err)
		require.Len(t, records, 2, "items without a name are skipped")
		assert.Equal(t, "b", records[1].Name)
	})

	t.Run("license list", func(t *testing.T) {
		records, err := Parse([]byte(`[{"name":"x","license":["MIT","Apache-2.0"]}]`), ParsingSpec{Format: FormatJSON})
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "MIT, Apache-2.0", records[0].License)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := Parse([]byte(`{"name":`), ParsingSpec{Repository: "npm", Format: FormatJSON})
		var perr *ParseError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, `{"name":`, perr.Excerpt)
	})
}

func TestParse_XML(t *testing.T) {
	raw := `<?xml version="1.0"?>
<packages>
  <package id="7zip" version="23.01"><summary>File archiver</summary><url href="https://7-zip.org"/></package>
  <package id="git" version="2.44.0"><summary>VCS</summary></package>
  <package version="0.0"/>
</packages>`

	records, err := Parse([]byte(raw), ParsingSpec{
		Format: FormatXML,
		Root:   fieldpath.MustCompile("packages/package"),
		Fields: paths(t, map[string]string{
			"name":        "@id",
			"version":     "@version",
			"description": "summary",
			"homepage":    "url/@href",
		}),
	})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "7zip", records[0].Name)
	assert.Equal(t, "23.01", records[0].Version)
	assert.Equal(t, "File archiver", records[0].Description)
	assert.Equal(t, "https://7-zip.org", records[0].Homepage)
	assert.Equal(t, "git", records[1].Name)

	// root without the document element resolves the same items
	records, err = Parse([]byte(raw), ParsingSpec{
		Format: FormatXML,
		Root:   fieldpath.MustCompile("package"),
		Fields: paths(t, map[string]string{"name": "@id"}),
	})
	require.NoError(t, err)
	assert.Len(t, records, 2)

	_, err = Parse([]byte("<a><b>"), ParsingSpec{Format: FormatXML})
	assert.ErrorIs(t, err, ErrMalformedDocument)
}

func TestParse_HTML(t *testing.T) {
	raw := `<html><body>
<a href="../">Parent</a>
<a href="?C=N;O=D">Name</a>
<a href="https://elsewhere.example/">off-site</a>
<a href="/simple/requests/">requests</a>
<a href="flask/">flask</a>
<a href="flask/">flask again</a>
<a href="zope.interface/">zope.interface</a>
</body></html>`

	records, err := Parse([]byte(raw), ParsingSpec{Format: FormatHTML})
	require.NoError(t, err)
	names := make([]string, 0, len(records))
	for _, r := range records {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"requests", "flask", "zope.interface"}, names)
}

func TestParse_HTMLLinkPattern(t *testing.T) {
	raw := `<a href="nginx_1.24.0-1_amd64.deb">x</a><a href="README">r</a><a href="curl_8.5.0_amd64.deb">y</a>`
	records, err := Parse([]byte(raw), ParsingSpec{
		Format:      FormatHTML,
		LinkPattern: regexp.MustCompile(`^(?P<name>[a-z0-9.+-]+)_(?P<version>[^_]+)_`),
	})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "nginx", records[0].Name)
	assert.Equal(t, "1.24.0-1", records[0].Version)
	assert.Equal(t, "curl", records[1].Name)
}

func TestParse_GenericLines(t *testing.T) {
	raw := "# comment\nripgrep 14.1.0\n\nfd\n"
	records, err := Parse([]byte(raw), ParsingSpec{Format: FormatGeneric})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "ripgrep", records[0].Name)
	assert.Equal(t, "14.1.0", records[0].Version)
	assert.Equal(t, "fd", records[1].Name)
	assert.Empty(t, records[1].Version)
}

func TestParse_GenericScript(t *testing.T) {
	script := `
text := import("text")
lines := text.split(body, "\n")
for line in lines {
	parts := text.split(line, "=")
	if len(parts) == 2 {
		records = append(records, {name: parts[0], version: parts[1], source: repository})
	}
}
`
	records, err := Parse([]byte("jq=1.7.1\nbad line\nyq=4.40.5"), ParsingSpec{
		Repository: "custom",
		Format:     FormatGeneric,
		Script:     script,
	})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "jq", records[0].Name)
	assert.Equal(t, "1.7.1", records[0].Version)
	src, ok := records[1].ExtraValue("source")
	require.True(t, ok)
	assert.Equal(t, "custom", src)
}

func TestParse_GenericScriptErrors(t *testing.T) {
	_, err := Parse([]byte(""), ParsingSpec{Format: FormatGeneric, Script: `err = "upstream changed format"`})
	assert.ErrorIs(t, err, ErrScript)
	assert.Contains(t, err.Error(), "upstream changed format")

	_, err = Parse([]byte(""), ParsingSpec{Format: FormatGeneric, Script: `records = "nope"`})
	assert.ErrorIs(t, err, ErrScript)

	_, err = Parse([]byte(""), ParsingSpec{Format: FormatGeneric, Script: `this is not tengo`})
	var perr *ParseError
	assert.True(t, errors.As(err, &perr))
}

func TestExcerptKeepsRunesWhole(t *testing.T) {
	raw := []byte(strings.Repeat("a", excerptLimit-1) + "é")
	ex := excerpt(raw)
	assert.Equal(t, strings.Repeat("a", excerptLimit-1), ex)
}
