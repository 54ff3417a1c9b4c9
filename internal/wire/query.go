package wire

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// QueryView is a zero-copy view over a parsed inbound query. It never
// copies the original datagram; Raw aliases the caller's buffer for the
// lifetime of one pipeline pass.
type QueryView struct {
	ID     uint16
	Flags  uint16
	QName  string // normalized (lowercase) dotted form
	QType  uint16
	QClass uint16
	Raw    []byte // the original datagram, unmodified
}

// maxLabelLen is the RFC 1035 label length ceiling.
const maxLabelLen = 63

// isPointerByte reports whether the top two bits of a label-length byte are
// set, the compression-pointer indicator (RFC 1035 Section 4.1.4). The
// parser rejects any such byte in the question section outright; questions
// never use compression in practice.
func isPointerByte(b byte) bool {
	return b&0xC0 == 0xC0
}

// Parse validates and decodes an inbound query datagram into a QueryView.
// It reads only the header and the first question; it does not walk
// answer/authority/additional sections (the core never needs them for an
// inbound query).
func Parse(msg []byte) (QueryView, error) {
	h, err := parseHeader(msg)
	if err != nil {
		return QueryView{}, err
	}
	if h.qdCount == 0 {
		return QueryView{}, fmt.Errorf("%w: no question: %w", ErrEmptyName, ErrWire)
	}

	off := HeaderSize
	name, err := decodeQuestionName(msg, &off)
	if err != nil {
		return QueryView{}, err
	}
	if off+4 > len(msg) {
		return QueryView{}, fmt.Errorf("%w: truncated question: %w", ErrTruncated, ErrWire)
	}
	qtype := binary.BigEndian.Uint16(msg[off : off+2])
	qclass := binary.BigEndian.Uint16(msg[off+2 : off+4])

	return QueryView{
		ID:     h.id,
		Flags:  h.flags,
		QName:  name,
		QType:  qtype,
		QClass: qclass,
		Raw:    msg,
	}, nil
}

// decodeQuestionName walks a sequence of length-prefixed labels starting at
// *off, terminated by a zero-length label. Compression pointers are
// rejected (ErrCompressedQuestion) rather than followed, per spec.
func decodeQuestionName(msg []byte, off *int) (string, error) {
	var b strings.Builder
	labels := 0

	for {
		if *off >= len(msg) {
			return "", fmt.Errorf("%w: %w", ErrTruncated, ErrWire)
		}
		labelLen := msg[*off]
		if labelLen == 0 {
			*off++
			break
		}
		if isPointerByte(labelLen) {
			return "", fmt.Errorf("%w: %w", ErrCompressedQuestion, ErrWire)
		}
		if labelLen > maxLabelLen {
			return "", fmt.Errorf("%w: label length %d: %w", ErrInvalidLabel, labelLen, ErrWire)
		}
		*off++
		if *off+int(labelLen) > len(msg) {
			return "", fmt.Errorf("%w: %w", ErrTruncated, ErrWire)
		}
		if labels > 0 {
			b.WriteByte('.')
		}
		b.WriteString(strings.ToLower(string(msg[*off : *off+int(labelLen)])))
		*off += int(labelLen)
		labels++
	}

	if labels == 0 {
		return "", fmt.Errorf("%w: %w", ErrEmptyName, ErrWire)
	}
	return b.String(), nil
}
