package adapter

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// excerptLimit bounds how much of a corrupt payload is quoted back in errors.
const excerptLimit = 120

var (
	// ErrUnknownFormat is returned for a format with no registered parser.
	ErrUnknownFormat = errors.New("unknown parsing format")
	// ErrUnknownCompression is returned for an unsupported compression name.
	ErrUnknownCompression = errors.New("unknown compression")
	// ErrDecompress wraps failures of the decompression stage.
	ErrDecompress = errors.New("failed to decompress payload")
	// ErrMalformedDocument marks a document-level parse failure.
	ErrMalformedDocument = errors.New("malformed document")
	// ErrScript marks a failure raised by a generic-format script.
	ErrScript = errors.New("parser script failed")
)

// ParseError reports a payload that could not be turned into records. Excerpt
// holds at most the first 120 bytes of the offending input.
type ParseError struct {
	Repository string
	Format     Format
	Excerpt    string
	Err        error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("parse %s payload", e.Format)
	if e.Repository != "" {
		msg = fmt.Sprintf("repository %s: %s", e.Repository, msg)
	}
	if e.Excerpt != "" {
		msg = fmt.Sprintf("%s (near %q)", msg, e.Excerpt)
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func newParseError(spec ParsingSpec, raw []byte, err error) *ParseError {
	return &ParseError{
		Repository: spec.Repository,
		Format:     spec.Format,
		Excerpt:    excerpt(raw),
		Err:        err,
	}
}

func excerpt(raw []byte) string {
	if len(raw) > excerptLimit {
		raw = raw[:excerptLimit]
		// do not cut a multi-byte rune in half
		for len(raw) > 0 && !utf8.Valid(raw) {
			raw = raw[:len(raw)-1]
		}
	}
	return string(raw)
}
