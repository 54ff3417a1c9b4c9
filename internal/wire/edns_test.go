package wire

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

func buildQueryWithOPT(t *testing.T, udpSize uint16) []byte {
	t.Helper()
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint16(buf[4:6], 1) // QDCOUNT
	binary.BigEndian.PutUint16(buf[10:12], 1) // ARCOUNT

	buf = append(buf, 7, 'e', 'x', 'a', 'm', 'p', 'l', 'e', 3, 'c', 'o', 'm', 0)
	var qtail [4]byte
	binary.BigEndian.PutUint16(qtail[0:2], TypeA)
	binary.BigEndian.PutUint16(qtail[2:4], ClassIN)
	buf = append(buf, qtail[:]...)

	// OPT RR: root name, TYPE=41, CLASS=udpSize, TTL=0, RDLENGTH=0.
	buf = append(buf, 0)
	var opt [10]byte
	binary.BigEndian.PutUint16(opt[0:2], optType)
	binary.BigEndian.PutUint16(opt[2:4], udpSize)
	buf = append(buf, opt[:]...)
	return buf
}

func TestClientMaxUDPSizeNoEDNS(t *testing.T) {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint16(buf[4:6], 1)
	buf = append(buf, 3, 'f', 'o', 'o', 0)
	var qtail [4]byte
	binary.BigEndian.PutUint16(qtail[0:2], TypeA)
	binary.BigEndian.PutUint16(qtail[2:4], ClassIN)
	buf = append(buf, qtail[:]...)

	assert.Equal(t, DefaultUDPPayloadSize, ClientMaxUDPSize(buf))
}

func TestClientMaxUDPSizeWithOPT(t *testing.T) {
	buf := buildQueryWithOPT(t, 4096)
	assert.Equal(t, 4096, ClientMaxUDPSize(buf))
}

func TestClientMaxUDPSizeClampsBelowDefault(t *testing.T) {
	buf := buildQueryWithOPT(t, 100)
	assert.Equal(t, DefaultUDPPayloadSize, ClientMaxUDPSize(buf))
}

func TestClientMaxUDPSizeClampsAboveMax(t *testing.T) {
	buf := buildQueryWithOPT(t, 65000)
	assert.Equal(t, EDNSMaxUDPPayloadSize, ClientMaxUDPSize(buf))
}
