// Copyright 2026 The SimpleX Bot Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stephenmkbrady/simplex-bot/lib/clock"
)

// State is the channel's connection state.
type State int32

const (
	// StateDisconnected means no live connection exists.
	StateDisconnected State = iota
	// StateConnecting means a dial or backend wait is in progress.
	StateConnecting
	// StateReady means the connection is established and sends are
	// accepted.
	StateReady
	// StateDegraded means the connection is established but nothing
	// has been read within the idle window.
	StateDegraded
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	default:
		return "disconnected"
	}
}

// Backend coordinates the channel with whatever manages the CLI
// process. The channel waits for readiness before dialing and reports
// connection losses so the backend can check process health. A nil
// Backend means the endpoint is assumed always available.
type Backend interface {
	// AwaitReady blocks until the backend endpoint accepts
	// connections, or returns an error when it never will.
	AwaitReady(ctx context.Context) error

	// ReportDisconnect tells the backend the channel lost its
	// connection.
	ReportDisconnect()
}

// ChannelConfig configures a Channel.
type ChannelConfig struct {
	// URL is the websocket address, e.g. ws://localhost:3030.
	URL string

	// Registry receives pending requests and their replies.
	// Required.
	Registry *Registry

	// Backend is consulted around connection attempts. Optional.
	Backend Backend

	// ReconnectMaxAttempts bounds consecutive failed connection
	// attempts before Run gives up. Default: 10.
	ReconnectMaxAttempts int

	// ReconnectBaseDelay is the first backoff delay; it doubles per
	// attempt. Default: 2s.
	ReconnectBaseDelay time.Duration

	// ReconnectMaxDelay caps the backoff. Default: 60s.
	ReconnectMaxDelay time.Duration

	// IdleTimeout marks the connection degraded when nothing has been
	// read for this long, and recycles it after twice this. The CLI
	// emits events on any activity, so a silent connection is suspect.
	// Zero disables idle tracking.
	IdleTimeout time.Duration

	// Clock defaults to the real clock.
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Channel owns the single websocket connection to the CLI. One
// goroutine (Run) reads frames and reconnects; writes from any
// goroutine are serialized by a mutex. Classified non-reply frames
// are delivered on Events.
type Channel struct {
	url      string
	registry *Registry
	backend  Backend
	clock    clock.Clock
	logger   *slog.Logger

	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	idleTimeout time.Duration

	state        atomic.Int32
	lastActivity atomic.Int64
	events       chan Event

	connMu sync.Mutex
	conn   *websocket.Conn

	writeMu sync.Mutex

	corrCounter atomic.Uint64
}

// NewChannel returns a Channel ready for Run. It does not connect.
func NewChannel(cfg ChannelConfig) (*Channel, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("transport: channel URL is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("transport: channel registry is required")
	}
	if cfg.ReconnectMaxAttempts <= 0 {
		cfg.ReconnectMaxAttempts = 10
	}
	if cfg.ReconnectBaseDelay <= 0 {
		cfg.ReconnectBaseDelay = 2 * time.Second
	}
	if cfg.ReconnectMaxDelay <= 0 {
		cfg.ReconnectMaxDelay = 60 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Channel{
		url:         cfg.URL,
		registry:    cfg.Registry,
		backend:     cfg.Backend,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
		maxAttempts: cfg.ReconnectMaxAttempts,
		baseDelay:   cfg.ReconnectBaseDelay,
		maxDelay:    cfg.ReconnectMaxDelay,
		idleTimeout: cfg.IdleTimeout,
		events:      make(chan Event, 128),
	}, nil
}

// Events delivers classified non-reply frames: messages, contact
// events, file events, and unknowns. The channel is closed when Run
// returns.
func (c *Channel) Events() <-chan Event { return c.events }

// State returns the current connection state. A ready connection that
// has read nothing within the idle window reports StateDegraded.
func (c *Channel) State() State {
	state := State(c.state.Load())
	if state == StateReady && c.idleTimeout > 0 {
		last := time.Unix(0, c.lastActivity.Load())
		if c.clock.Now().Sub(last) > c.idleTimeout {
			return StateDegraded
		}
	}
	return state
}

// touchActivity records the time of the last successful read.
func (c *Channel) touchActivity() {
	c.lastActivity.Store(c.clock.Now().UnixNano())
}

// Run connects and reads frames until ctx is done or reconnection
// attempts are exhausted. On connection loss it fails all pending
// requests, notifies the backend, and reconnects with exponential
// backoff.
func (c *Channel) Run(ctx context.Context) error {
	defer close(c.events)
	defer c.state.Store(int32(StateDisconnected))

	attempt := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		c.state.Store(int32(StateConnecting))
		if c.backend != nil {
			if err := c.backend.AwaitReady(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("transport: backend never became ready: %w", err)
			}
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			attempt++
			if attempt >= c.maxAttempts {
				c.logger.Error("connection attempts exhausted",
					"url", c.url, "attempts", attempt, "error", err)
				return fmt.Errorf("%w: %d attempts to %s", ErrReconnectExhausted, attempt, c.url)
			}
			delay := c.backoffDelay(attempt)
			c.logger.Warn("connection failed, backing off",
				"url", c.url, "attempt", attempt, "delay", delay, "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-c.clock.After(delay):
			}
			continue
		}

		attempt = 0
		c.setConn(conn)
		c.touchActivity()
		c.state.Store(int32(StateReady))
		c.logger.Info("connected", "url", c.url)

		// ReadMessage does not watch ctx; closing the connection is
		// what unblocks the read loop on shutdown.
		stopWatch := context.AfterFunc(ctx, func() { conn.Close() })
		readErr := c.readLoop(ctx, conn)
		stopWatch()
		c.setConn(nil)
		c.state.Store(int32(StateDisconnected))
		conn.Close()

		if ctx.Err() != nil {
			c.registry.FailAll(ErrChannelClosed)
			return nil
		}

		c.logger.Warn("connection lost", "url", c.url, "error", readErr)
		c.registry.FailAll(ErrConnectionLost)
		if c.backend != nil {
			c.backend.ReportDisconnect()
		}
	}
}

// backoffDelay returns the delay before reconnect attempt n (1-based):
// base, 2*base, 4*base, ... capped at the configured maximum.
func (c *Channel) backoffDelay(attempt int) time.Duration {
	delay := c.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.maxDelay {
			return c.maxDelay
		}
	}
	if delay > c.maxDelay {
		return c.maxDelay
	}
	return delay
}

// readLoop reads and dispatches frames until the connection fails. A
// connection silent past twice the idle window is treated the same as
// a read failure and recycled.
func (c *Channel) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		if c.idleTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(2 * c.idleTimeout))
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.touchActivity()

		frame, err := DecodeFrame(data)
		if err != nil {
			c.logger.Warn("undecodable frame", "error", err)
			continue
		}

		event := Classify(frame)
		if event.Kind == KindReply {
			if !c.registry.Resolve(frame.CorrID, frame) {
				// Late reply for a timed-out or failed-over request.
				c.logger.Debug("reply for unknown correlation id", "corr_id", frame.CorrID)
			}
			continue
		}

		select {
		case c.events <- event:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Channel) setConn(conn *websocket.Conn) {
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
}

func (c *Channel) currentConn() *websocket.Conn {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.conn
}

// nextCorrID returns the next correlation id. IDs are unique for the
// life of the process: a wall-clock second plus a monotonic counter.
func (c *Channel) nextCorrID() string {
	return fmt.Sprintf("bot_req_%d_%d", c.clock.Now().Unix(), c.corrCounter.Add(1))
}

// writeFrame serializes one frame to the socket. Fails fast with
// ErrNotConnected when no connection is live.
func (c *Channel) writeFrame(frame OutboundFrame) error {
	conn := c.currentConn()
	if conn == nil || c.State() != StateReady {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("transport: writing frame: %w", err)
	}
	return nil
}

// Send writes a command without waiting for its reply. The command
// still carries a correlation id, but no pending request is
// registered: a reply is dropped by the read loop as unknown.
func (c *Channel) Send(ctx context.Context, cmd string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return c.writeFrame(OutboundFrame{CorrID: c.nextCorrID(), Cmd: cmd})
}

// SendAndWait writes a command and blocks until its reply arrives,
// the request times out, or the connection drops. The pending request
// is registered before the frame is written, so the reply cannot race
// the registration.
func (c *Channel) SendAndWait(ctx context.Context, cmd string) (InboundFrame, error) {
	return c.sendAndWait(ctx, cmd, 0)
}

// SendAndWaitTimeout is SendAndWait with a per-request timeout
// overriding the registry default.
func (c *Channel) SendAndWaitTimeout(ctx context.Context, cmd string, timeout time.Duration) (InboundFrame, error) {
	return c.sendAndWait(ctx, cmd, timeout)
}

func (c *Channel) sendAndWait(ctx context.Context, cmd string, timeout time.Duration) (InboundFrame, error) {
	id := c.nextCorrID()
	var pending *Pending
	if timeout > 0 {
		pending = c.registry.RegisterWithTimeout(id, timeout)
	} else {
		pending = c.registry.Register(id)
	}

	if err := c.writeFrame(OutboundFrame{CorrID: id, Cmd: cmd}); err != nil {
		c.registry.Fail(id, err)
		// Drain our own failure so the pending slot is consumed.
		<-pending.result
		return InboundFrame{}, err
	}

	frame, err := pending.Wait(ctx)
	if err != nil {
		return InboundFrame{}, fmt.Errorf("transport: command %q: %w", cmd, err)
	}
	if frame.Err != nil {
		return frame, frame.Err
	}
	return frame, nil
}
