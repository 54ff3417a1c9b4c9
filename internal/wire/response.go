package wire

import (
	"encoding/binary"
	"fmt"
	"net"
)

// RewriteID copies a two-byte transaction id into the first two bytes of
// buffer. The response id must always equal the request id.
func RewriteID(buf []byte, id uint16) {
	if len(buf) < 2 {
		return
	}
	binary.BigEndian.PutUint16(buf[0:2], id)
}

// BuildNXDomainInPlace turns a query buffer into an NXDOMAIN response
// without allocating: it sets QR=1, RCODE=3, and zeroes the answer/
// authority/additional counts, leaving the id and question untouched.
func BuildNXDomainInPlace(buf []byte) []byte {
	return buildErrorInPlace(buf, RCodeNXDomain)
}

// BuildServfailInPlace turns a query buffer into a SERVFAIL response in
// place, used when every upstream candidate has been exhausted.
func BuildServfailInPlace(buf []byte) []byte {
	return buildErrorInPlace(buf, RCodeServFail)
}

func buildErrorInPlace(buf []byte, rcode RCode) []byte {
	if len(buf) < HeaderSize {
		return buf
	}
	flags := binary.BigEndian.Uint16(buf[2:4])
	flags |= QRFlag
	flags = (flags &^ RCodeMask) | uint16(rcode)
	binary.BigEndian.PutUint16(buf[2:4], flags)
	binary.BigEndian.PutUint16(buf[6:8], 0)  // ANCOUNT
	binary.BigEndian.PutUint16(buf[8:10], 0) // NSCOUNT
	binary.BigEndian.PutUint16(buf[10:12], 0) // ARCOUNT
	return buf
}

// BuildARecordResponse emits the query unchanged as a prefix, sets QR=1
// and ANCOUNT=1, and appends one answer RR using a name-compression
// pointer to offset 12 (the question's name), TYPE=A, CLASS=IN, the given
// TTL, and the four RDATA octets of ipv4.
func BuildARecordResponse(queryBytes []byte, ipv4 net.IP, ttl uint32) ([]byte, error) {
	v4 := ipv4.To4()
	if v4 == nil {
		return nil, fmt.Errorf("%w: not an IPv4 address: %v", ErrWire, ipv4)
	}
	if len(queryBytes) < HeaderSize {
		return nil, fmt.Errorf("%w: query too short", ErrWire)
	}

	out := make([]byte, len(queryBytes), len(queryBytes)+12+4)
	copy(out, queryBytes)

	flags := binary.BigEndian.Uint16(out[2:4])
	flags |= QRFlag
	flags = (flags &^ RCodeMask) | uint16(RCodeNoError)
	binary.BigEndian.PutUint16(out[2:4], flags)
	binary.BigEndian.PutUint16(out[6:8], 1) // ANCOUNT=1

	// Answer RR: name is a compression pointer to the question at offset 12.
	var rr [2 + 2 + 2 + 4 + 2 + 4]byte
	binary.BigEndian.PutUint16(rr[0:2], 0xC000|uint16(HeaderSize))
	binary.BigEndian.PutUint16(rr[2:4], TypeA)
	binary.BigEndian.PutUint16(rr[4:6], ClassIN)
	binary.BigEndian.PutUint32(rr[6:10], ttl)
	binary.BigEndian.PutUint16(rr[10:12], 4)
	copy(rr[12:16], v4)

	out = append(out, rr[:]...)
	return out, nil
}

// IsTruncated reports whether a response datagram has the TC bit set.
func IsTruncated(msg []byte) bool {
	if len(msg) < 4 {
		return false
	}
	flags := binary.BigEndian.Uint16(msg[2:4])
	return flags&TCFlag != 0
}

// TruncateToBuffer marks a built response as truncated (TC=1, all section
// counts beyond the question zeroed) when it would exceed maxSize, the
// client's advertised EDNS buffer size (or 512 when absent). It cuts the
// response just after the question section when that fits in maxSize, and
// at maxSize bytes otherwise; the caller is expected to send only the
// returned slice.
func TruncateToBuffer(resp []byte, maxSize int) []byte {
	if maxSize <= 0 {
		maxSize = 512
	}
	if len(resp) <= maxSize {
		return resp
	}
	if len(resp) < HeaderSize {
		return resp
	}

	flags := binary.BigEndian.Uint16(resp[2:4])
	flags |= QRFlag | TCFlag
	binary.BigEndian.PutUint16(resp[2:4], flags)
	binary.BigEndian.PutUint16(resp[6:8], 0)
	binary.BigEndian.PutUint16(resp[8:10], 0)
	binary.BigEndian.PutUint16(resp[10:12], 0)

	qEnd := questionSectionEnd(resp)
	if qEnd > 0 && qEnd <= len(resp) && qEnd <= maxSize {
		return resp[:qEnd]
	}
	if maxSize <= len(resp) {
		return resp[:maxSize]
	}
	return resp
}

// questionSectionEnd returns the byte offset immediately after the first
// question's QTYPE/QCLASS, or 0 if the question cannot be parsed.
func questionSectionEnd(msg []byte) int {
	if _, err := Parse(msg); err != nil {
		return 0
	}
	o := HeaderSize
	for {
		if o >= len(msg) {
			return 0
		}
		labelLen := int(msg[o])
		if labelLen == 0 {
			o++
			break
		}
		o += 1 + labelLen
	}
	return o + 4
}
