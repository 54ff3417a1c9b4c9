package wire

import "encoding/binary"

// AnswerCount returns the ANCOUNT field of a DNS message header, or 0 if
// the message is too short to contain one.
func AnswerCount(msg []byte) int {
	if len(msg) < HeaderSize {
		return 0
	}
	return int(binary.BigEndian.Uint16(msg[6:8]))
}

// ResponseCode returns the RCODE field of a DNS message header. A message
// too short to contain a header reads back as RCodeServFail, matching how
// the caller should treat it.
func ResponseCode(msg []byte) RCode {
	if len(msg) < HeaderSize {
		return RCodeServFail
	}
	return RCodeFromFlags(binary.BigEndian.Uint16(msg[2:4]))
}

// FirstAnswerTTL walks past the question section and returns the TTL field
// of the first answer record, used to seed cache expiry for upstream
// responses. It returns false if the message has no question, no answers,
// or can't be walked.
func FirstAnswerTTL(msg []byte) (uint32, bool) {
	h, err := parseHeader(msg)
	if err != nil || h.qdCount == 0 || h.anCount == 0 {
		return 0, false
	}

	off := HeaderSize
	for i := 0; i < int(h.qdCount); i++ {
		if _, err := decodeQuestionName(msg, &off); err != nil {
			return 0, false
		}
		off += 4
		if off > len(msg) {
			return 0, false
		}
	}

	off, ok := skipName(msg, off)
	if !ok {
		return 0, false
	}
	if off+8 > len(msg) {
		return 0, false
	}
	ttl := binary.BigEndian.Uint32(msg[off+4 : off+8])
	return ttl, true
}
