// Package wire provides DNS wire-format parsing and response construction
// for the query-processing pipeline (RFC 1035 Section 4).
//
// The parser produces a zero-copy question view: it never copies the
// original datagram, only slices and decodes the fixed-size header and the
// single question it expects. Response builders either mutate the inbound
// buffer in place (NXDOMAIN, SERVFAIL) or emit a small, newly allocated
// buffer (the synthesized A-record response for alt-naming hits).
package wire

import "errors"

// ErrWire is the sentinel wrapped by every parse failure in this package.
// Wrap with fmt.Errorf("...: %w", ErrWire) to add context.
var ErrWire = errors.New("dns wire error")

var (
	// ErrTruncated is returned when a label or record overruns the buffer.
	ErrTruncated = errors.New("truncated message")
	// ErrInvalidLabel is returned when a label exceeds 63 bytes.
	ErrInvalidLabel = errors.New("invalid label")
	// ErrEmptyName is returned when the question name has no labels.
	ErrEmptyName = errors.New("empty name")
	// ErrCompressedQuestion is returned when a question name uses a
	// compression pointer; spec requires rejecting these outright since
	// questions never use compression in practice.
	ErrCompressedQuestion = errors.New("compression pointer in question")
)
