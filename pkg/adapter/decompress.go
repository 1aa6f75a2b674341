package adapter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/mholt/archives"
	"github.com/ulikunitz/xz"
)

// Compression names a payload compression.
type Compression string

// Supported compressions.
const (
	CompressionNone   Compression = "none"
	CompressionGzip   Compression = "gzip"
	CompressionBrotli Compression = "brotli"
	CompressionXZ     Compression = "xz"
	CompressionZstd   Compression = "zstd"
	// CompressionAuto sniffs the payload's magic bytes.
	CompressionAuto Compression = "auto"
)

// maxDecompressedSize caps the output of any decompressor.
const maxDecompressedSize = 1 << 30

// ParseCompression normalizes a configured compression name. Empty means none.
func ParseCompression(s string) (Compression, error) {
	switch c := Compression(strings.ToLower(strings.TrimSpace(s))); c {
	case "":
		return CompressionNone, nil
	case "gz":
		return CompressionGzip, nil
	case "br":
		return CompressionBrotli, nil
	case "zst":
		return CompressionZstd, nil
	case CompressionNone, CompressionGzip, CompressionBrotli, CompressionXZ, CompressionZstd, CompressionAuto:
		return c, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCompression, s)
	}
}

// Decompress returns raw decoded according to c.
func Decompress(raw []byte, c Compression) ([]byte, error) {
	var (
		r   io.Reader
		err error
	)
	src := bytes.NewReader(raw)

	switch c {
	case "", CompressionNone:
		return raw, nil
	case CompressionGzip:
		var gz *gzip.Reader
		gz, err = gzip.NewReader(src)
		if err == nil {
			defer gz.Close()
			r = gz
		}
	case CompressionBrotli:
		r = brotli.NewReader(src)
	case CompressionXZ:
		r, err = xz.NewReader(src)
	case CompressionZstd:
		var dec *zstd.Decoder
		dec, err = zstd.NewReader(src)
		if err == nil {
			defer dec.Close()
			r = dec
		}
	case CompressionAuto:
		return decompressAuto(raw)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCompression, c)
	}
	if err != nil {
		return nil, fmt.Errorf("%w (%s): %w", ErrDecompress, c, err)
	}
	return readAllLimited(r, c)
}

// decompressAuto identifies the stream by its header. Payloads matching no
// known compression are returned unchanged.
func decompressAuto(raw []byte) ([]byte, error) {
	format, stream, err := archives.Identify(context.Background(), "", bytes.NewReader(raw))
	if err != nil {
		if errors.Is(err, archives.NoMatch) {
			return raw, nil
		}
		return nil, fmt.Errorf("%w (auto): %w", ErrDecompress, err)
	}
	dec, ok := format.(archives.Decompressor)
	if !ok {
		return nil, fmt.Errorf("%w (auto): %s is an archive, not a compressed document", ErrDecompress, format.Extension())
	}
	rc, err := dec.OpenReader(stream)
	if err != nil {
		return nil, fmt.Errorf("%w (auto): %w", ErrDecompress, err)
	}
	defer rc.Close()
	return readAllLimited(rc, CompressionAuto)
}

func readAllLimited(r io.Reader, c Compression) ([]byte, error) {
	out, err := io.ReadAll(io.LimitReader(r, maxDecompressedSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w (%s): %w", ErrDecompress, c, err)
	}
	if len(out) > maxDecompressedSize {
		return nil, fmt.Errorf("%w (%s): output exceeds %d bytes", ErrDecompress, c, maxDecompressedSize)
	}
	return out, nil
}
