package upstream

import (
	"context"
	"encoding/binary"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildQuery(t *testing.T, id uint16, name string) []byte {
	t.Helper()
	buf := make([]byte, 12)
	binary.BigEndian.PutUint16(buf[0:2], id)
	binary.BigEndian.PutUint16(buf[4:6], 1)
	for _, label := range strings.Split(name, ".") {
		buf = append(buf, byte(len(label)))
		buf = append(buf, label...)
	}
	buf = append(buf, 0)
	var tail [4]byte
	binary.BigEndian.PutUint16(tail[0:2], 1) // A
	binary.BigEndian.PutUint16(tail[2:4], 1) // IN
	return append(buf, tail[:]...)
}

// startEchoUpstream starts a UDP server on loopback that immediately
// replies with the datagram it received, with QR set.
func startEchoUpstream(t *testing.T) (host string, port int, stop func()) {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		buf := make([]byte, 4096)
		for {
			n, addr, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			resp := append([]byte(nil), buf[:n]...)
			binary.BigEndian.PutUint16(resp[2:4], binary.BigEndian.Uint16(resp[2:4])|0x8000)
			_, _ = conn.WriteToUDP(resp, addr)
		}
	}()
	go func() { <-done }()

	addr := conn.LocalAddr().(*net.UDPAddr)
	return "127.0.0.1", addr.Port, func() {
		close(done)
		_ = conn.Close()
	}
}

func newTestBalancer(t *testing.T, upstreams []UpstreamSpec, strategy Strategy) *Balancer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	b := NewBalancer(ctx, Config{
		Upstreams:  upstreams,
		Strategy:   strategy,
		MaxRetries: 3,
		UDPTimeout: 300 * time.Millisecond,
	})
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestBalancerExecuteSucceedsAgainstHealthyUpstream(t *testing.T) {
	host, port, stop := startEchoUpstream(t)
	defer stop()

	b := newTestBalancer(t, []UpstreamSpec{{ID: "u1", Address: host, Port: port}}, StrategyIntelligent)

	query := buildQuery(t, 0x1234, "example.com")
	resp, err := b.Execute(context.Background(), query, QueryContext{QType: 1})
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), binary.BigEndian.Uint16(resp[0:2]))
}

func TestBalancerExecuteFailsOverToSecondUpstream(t *testing.T) {
	// "dead" is a closed port (connection refused / no responder); "alive" echoes.
	deadConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	require.NoError(t, err)
	deadPort := deadConn.LocalAddr().(*net.UDPAddr).Port
	require.NoError(t, deadConn.Close()) // nothing listens here now

	host, port, stop := startEchoUpstream(t)
	defer stop()

	b := newTestBalancer(t, []UpstreamSpec{
		{ID: "dead", Address: "127.0.0.1", Port: deadPort},
		{ID: "alive", Address: host, Port: port},
	}, StrategyLeastLatency)

	query := buildQuery(t, 0xBEEF, "example.com")
	resp, err := b.Execute(context.Background(), query, QueryContext{QType: 1})
	require.NoError(t, err)
	assert.Equal(t, uint16(0xBEEF), binary.BigEndian.Uint16(resp[0:2]))
}

func TestBalancerExecuteAllUpstreamsFailed(t *testing.T) {
	deadConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	require.NoError(t, err)
	deadPort := deadConn.LocalAddr().(*net.UDPAddr).Port
	require.NoError(t, deadConn.Close())

	b := newTestBalancer(t, []UpstreamSpec{{ID: "dead", Address: "127.0.0.1", Port: deadPort}}, StrategyIntelligent)
	b.records[0].timeout.current = 50 * time.Millisecond

	query := buildQuery(t, 1, "example.com")
	_, err = b.Execute(context.Background(), query, QueryContext{QType: 1})
	assert.ErrorIs(t, err, ErrAllUpstreamsFailed)
}

func TestValidateResponseRejectsMismatchedQName(t *testing.T) {
	req := buildQuery(t, 1, "example.com")
	resp := buildQuery(t, 1, "evil.com")
	binary.BigEndian.PutUint16(resp[2:4], 0x8000)

	err := validateResponse(req, resp)
	assert.Error(t, err)
}

func TestValidateResponseAcceptsMatchingQuestion(t *testing.T) {
	req := buildQuery(t, 1, "example.com")
	resp := append([]byte(nil), req...)
	binary.BigEndian.PutUint16(resp[2:4], 0x8000)

	assert.NoError(t, validateResponse(req, resp))
}

func TestPortStringDefaultsTo53(t *testing.T) {
	assert.Equal(t, "53", portString(0))
	assert.Equal(t, strconv.Itoa(5353), portString(5353))
}
