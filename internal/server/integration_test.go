package server

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostferry/resolver/internal/altnaming"
	"github.com/ghostferry/resolver/internal/blocklist"
	"github.com/ghostferry/resolver/internal/cache"
	"github.com/ghostferry/resolver/internal/upstream"
	"github.com/ghostferry/resolver/internal/wire"
)

// startFakeUpstream answers every query with an A record for 203.0.113.7.
func startFakeUpstream(t *testing.T) (host string, port int, stop func()) {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		buf := make([]byte, 4096)
		for {
			n, peer, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			resp, err := wire.BuildARecordResponse(buf[:n], net.IPv4(203, 0, 113, 7), 300)
			if err != nil {
				continue
			}
			_, _ = conn.WriteToUDP(resp, peer)
		}
	}()
	go func() { <-done }()

	addr := conn.LocalAddr().(*net.UDPAddr)
	return "127.0.0.1", addr.Port, func() {
		close(done)
		_ = conn.Close()
	}
}

func buildIntegrationQuery(t *testing.T, id uint16, name string) []byte {
	t.Helper()
	buf := make([]byte, 12)
	binary.BigEndian.PutUint16(buf[0:2], id)
	binary.BigEndian.PutUint16(buf[2:4], wire.RDFlag)
	binary.BigEndian.PutUint16(buf[4:6], 1)
	for _, label := range splitLabels(name) {
		buf = append(buf, byte(len(label)))
		buf = append(buf, label...)
	}
	buf = append(buf, 0)
	var tail [4]byte
	binary.BigEndian.PutUint16(tail[0:2], wire.TypeA)
	binary.BigEndian.PutUint16(tail[2:4], wire.ClassIN)
	return append(buf, tail[:]...)
}

func splitLabels(name string) []string {
	var labels []string
	start := 0
	for i := 0; i <= len(name); i++ {
		if i == len(name) || name[i] == '.' {
			labels = append(labels, name[start:i])
			start = i + 1
		}
	}
	return labels
}

func newIntegrationPipeline(t *testing.T, upstreamHost string, upstreamPort int) *Pipeline {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	bal := upstream.NewBalancer(ctx, upstream.Config{
		Upstreams: []upstream.UpstreamSpec{{ID: "fake", Address: upstreamHost, Port: upstreamPort}},
		Strategy:  upstream.StrategyIntelligent,
		UDPTimeout: 2 * time.Second,
	})
	t.Cleanup(func() { _ = bal.Close() })

	bl := blocklist.New(blocklist.Config{Patterns: []string{"blocked.example"}})

	return &Pipeline{
		Blocklist: bl,
		AltNaming: altnaming.NewDispatcher(),
		Cache:     cache.New(cache.Sizes{Total: 100}),
		Upstream:  bal,
	}
}

func TestUDPServerBlocklistPath(t *testing.T) {
	upHost, upPort, stopUp := startFakeUpstream(t)
	defer stopUp()

	pipeline := newIntegrationPipeline(t, upHost, upPort)
	h := &QueryHandler{Pipeline: pipeline, Timeout: 2 * time.Second}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)
	addr := conn.LocalAddr().(*net.UDPAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := &UDPServer{Handler: h, WorkersPerSocket: 8}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.RunOnConn(ctx, conn) }()
	defer func() {
		_ = srv.Stop(2 * time.Second)
		cancel()
		<-errCh
	}()

	client, err := net.DialUDP("udp", nil, &net.UDPAddr{IP: addr.IP, Port: addr.Port})
	require.NoError(t, err)
	defer client.Close()

	req := buildIntegrationQuery(t, 0xABCD, "blocked.example")
	_ = client.SetDeadline(time.Now().Add(2 * time.Second))
	_, err = client.Write(req)
	require.NoError(t, err)

	buf := make([]byte, 512)
	n, err := client.Read(buf)
	require.NoError(t, err)

	resp := buf[:n]
	assert.Equal(t, uint16(0xABCD), binary.BigEndian.Uint16(resp[0:2]))
	assert.Equal(t, wire.RCodeNXDomain, wire.RCodeFromFlags(binary.BigEndian.Uint16(resp[2:4])))
}

func TestUDPServerUpstreamAndCacheHitPath(t *testing.T) {
	upHost, upPort, stopUp := startFakeUpstream(t)

	pipeline := newIntegrationPipeline(t, upHost, upPort)
	h := &QueryHandler{Pipeline: pipeline, Timeout: 2 * time.Second}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)
	addr := conn.LocalAddr().(*net.UDPAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := &UDPServer{Handler: h, WorkersPerSocket: 8}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.RunOnConn(ctx, conn) }()
	defer func() {
		_ = srv.Stop(2 * time.Second)
		cancel()
		<-errCh
	}()

	client, err := net.DialUDP("udp", nil, &net.UDPAddr{IP: addr.IP, Port: addr.Port})
	require.NoError(t, err)
	defer client.Close()

	req := buildIntegrationQuery(t, 0x1111, "good.example")
	_ = client.SetDeadline(time.Now().Add(2 * time.Second))
	_, err = client.Write(req)
	require.NoError(t, err)

	buf := make([]byte, 512)
	n, err := client.Read(buf)
	require.NoError(t, err)
	firstResp := append([]byte(nil), buf[:n]...)
	assert.Equal(t, wire.RCodeNoError, wire.RCodeFromFlags(binary.BigEndian.Uint16(firstResp[2:4])))

	// The upstream is now stopped; a second identical query must still
	// succeed if and only if the response was cached on the first pass.
	stopUp()

	req2 := buildIntegrationQuery(t, 0x2222, "good.example")
	_, err = client.Write(req2)
	require.NoError(t, err)

	n2, err := client.Read(buf)
	require.NoError(t, err, "expected a cached response even with upstream down")
	secondResp := buf[:n2]
	assert.Equal(t, uint16(0x2222), binary.BigEndian.Uint16(secondResp[0:2]), "cache hit must rewrite the id to the new query")
}
