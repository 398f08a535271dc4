// Copyright 2026 The SimpleX Bot Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/stephenmkbrady/simplex-bot/lib/clock"
)

// Registry tracks in-flight correlated requests. Each request is
// registered before its frame is written to the socket, so a reply
// can never arrive for an unregistered id through normal operation.
// Every pending request resolves exactly once: with its reply, with
// ErrCorrelationTimeout when its deadline passes, or with the error
// given to FailAll on connection loss.
type Registry struct {
	clock   clock.Clock
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	pending map[string]*Pending
}

// RegistryConfig configures a Registry. Zero values get defaults:
// real clock, 30s timeout, slog.Default().
type RegistryConfig struct {
	Clock   clock.Clock
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewRegistry returns an empty Registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Registry{
		clock:   cfg.Clock,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
		pending: make(map[string]*Pending),
	}
}

// Pending is one in-flight request. Wait blocks until the request
// resolves.
type Pending struct {
	id       string
	deadline time.Time
	result   chan pendingResult
}

type pendingResult struct {
	frame InboundFrame
	err   error
}

// Wait blocks until the request resolves or ctx is done.
func (p *Pending) Wait(ctx context.Context) (InboundFrame, error) {
	select {
	case result := <-p.result:
		return result.frame, result.err
	case <-ctx.Done():
		return InboundFrame{}, ctx.Err()
	}
}

// ID returns the correlation id.
func (p *Pending) ID() string { return p.id }

// Register adds a pending request with the default timeout. Call
// Register BEFORE writing the request frame: registering after the
// write races the reply.
func (r *Registry) Register(id string) *Pending {
	return r.RegisterWithTimeout(id, r.timeout)
}

// RegisterWithTimeout adds a pending request with a per-request
// timeout override.
func (r *Registry) RegisterWithTimeout(id string, timeout time.Duration) *Pending {
	pending := &Pending{
		id:       id,
		deadline: r.clock.Now().Add(timeout),
		result:   make(chan pendingResult, 1),
	}

	r.mu.Lock()
	r.pending[id] = pending
	r.mu.Unlock()
	return pending
}

// Resolve delivers a reply frame to the pending request with the
// given id. Returns false when no such request is pending (already
// resolved, timed out, or never registered); the frame is then
// dropped and the caller logs it at debug level.
func (r *Registry) Resolve(id string, frame InboundFrame) bool {
	pending := r.take(id)
	if pending == nil {
		return false
	}
	pending.result <- pendingResult{frame: frame}
	return true
}

// Fail resolves the pending request with an error. Returns false
// when no such request is pending.
func (r *Registry) Fail(id string, err error) bool {
	pending := r.take(id)
	if pending == nil {
		return false
	}
	pending.result <- pendingResult{err: err}
	return true
}

// FailAll resolves every pending request with the given error. Used
// on connection loss so no waiter hangs for a reply that can never
// arrive.
func (r *Registry) FailAll(err error) {
	r.mu.Lock()
	failed := make([]*Pending, 0, len(r.pending))
	for id, pending := range r.pending {
		failed = append(failed, pending)
		delete(r.pending, id)
	}
	r.mu.Unlock()

	for _, pending := range failed {
		pending.result <- pendingResult{err: err}
	}
	if len(failed) > 0 {
		r.logger.Warn("failed all pending requests", "count", len(failed), "error", err)
	}
}

// take removes and returns the pending request with the given id,
// or nil. Removal under the lock is what makes resolution
// exactly-once: the second resolver finds nothing.
func (r *Registry) take(id string) *Pending {
	r.mu.Lock()
	defer r.mu.Unlock()
	pending := r.pending[id]
	if pending != nil {
		delete(r.pending, id)
	}
	return pending
}

// Sweep fails every pending request whose deadline has passed.
// Returns the number of requests expired.
func (r *Registry) Sweep() int {
	now := r.clock.Now()

	r.mu.Lock()
	var expired []*Pending
	for id, pending := range r.pending {
		if !pending.deadline.After(now) {
			expired = append(expired, pending)
			delete(r.pending, id)
		}
	}
	r.mu.Unlock()

	for _, pending := range expired {
		pending.result <- pendingResult{err: ErrCorrelationTimeout}
		r.logger.Warn("request timed out", "corr_id", pending.id)
	}
	return len(expired)
}

// Run sweeps expired requests on the given interval until ctx is
// done. One shared ticker serves all pending requests; there is no
// per-request timer.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := r.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// PendingCount returns the number of in-flight requests.
func (r *Registry) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
