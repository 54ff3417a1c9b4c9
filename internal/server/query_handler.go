// Package server implements DNS protocol servers for UDP and TCP.
//
// Goroutine Model:
//
// The server spawns multiple goroutines for handling incoming queries:
//   - UDPServer: 1 receiver + N workers per CPU core
//   - TCPServer: 1 listener per CPU core + 1 handler per active connection
//
// All goroutines are coordinated through a shared context:
//   - Context is cancelled on shutdown signal (SIGINT/SIGTERM)
//   - All goroutines check context regularly and exit cleanly
//   - No long-lived blocking operations without context awareness
//
// Error Handling:
//
// Errors are wrapped with context using fmt.Errorf("...: %w", err) throughout.
// This preserves error chains while adding operational context.
package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/ghostferry/resolver/internal/wire"
)

// QueryHandler drives a Pipeline with a per-query timeout and emits debug
// logging, mirroring the concerns a protocol-level server needs regardless
// of transport.
type QueryHandler struct {
	Logger   *slog.Logger
	Pipeline Processor
	Timeout  time.Duration // Maximum time for query resolution (default: 4s)
	Stats    *DNSStats     // optional; nil disables counter updates
}

// HandleResult contains the outcome of query processing.
type HandleResult struct {
	ResponseBytes []byte
	Outcome       Outcome
	QName         string
	QType         uint16
}

// Handle processes a DNS request and returns a response.
//
// Processing steps:
//  1. Run the query through the pipeline with a timeout.
//  2. On timeout or shutdown, reply SERVFAIL from the raw query bytes.
//  3. Log request details at debug level.
func (h *QueryHandler) Handle(ctx context.Context, transport string, src string, reqBytes []byte) HandleResult {
	start := time.Now()
	result := h.runWithTimeout(ctx, reqBytes)
	h.recordStats(transport, result, time.Since(start))
	h.logRequest(ctx, transport, src, reqBytes, result)
	return result
}

func (h *QueryHandler) recordStats(transport string, result HandleResult, elapsed time.Duration) {
	if h.Stats == nil {
		return
	}
	h.Stats.RecordQuery(transport)
	h.Stats.RecordLatency(elapsed.Nanoseconds())
	switch result.Outcome {
	case OutcomeBlocked:
		h.Stats.RecordNXDOMAIN()
	case OutcomeServfail:
		h.Stats.RecordError()
	}
}

// runWithTimeout spawns the pipeline in a background goroutine so a slow
// upstream can't block the calling worker goroutine past Timeout. An
// alternative design would make Pipeline itself context-aware and give up
// internally, but that pushes timeout discipline into every component the
// pipeline composes; keeping it here is simpler to reason about.
func (h *QueryHandler) runWithTimeout(ctx context.Context, reqBytes []byte) HandleResult {
	resCh := make(chan Result, 1)
	go func() {
		resCh <- h.Pipeline.Handle(ctx, reqBytes)
	}()

	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return h.servfailResult(reqBytes)
	case <-timer.C:
		return h.servfailResult(reqBytes)
	case r := <-resCh:
		return HandleResult{ResponseBytes: r.ResponseBytes, Outcome: r.Outcome, QName: r.QName, QType: r.QType}
	}
}

func (h *QueryHandler) servfailResult(reqBytes []byte) HandleResult {
	return HandleResult{ResponseBytes: wire.BuildServfailInPlace(reqBytes), Outcome: OutcomeServfail}
}

func (h *QueryHandler) logRequest(ctx context.Context, transport, src string, reqBytes []byte, result HandleResult) {
	if h.Logger == nil || !h.Logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	h.Logger.DebugContext(
		ctx,
		"dns request",
		"transport", transport,
		"src", src,
		"qname", result.QName,
		"qtype", result.QType,
		"bytes", len(reqBytes),
		"outcome", string(result.Outcome),
	)
}
