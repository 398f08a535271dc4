// Copyright 2026 The SimpleX Bot Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/stephenmkbrady/simplex-bot/lib/clock"
)

var (
	// ErrNotReady means the endpoint never accepted a connection
	// within the probe budget.
	ErrNotReady = errors.New("supervisor: backend not ready")

	// ErrFatal means the supervisor exhausted its restart budget and
	// gave up. The process is not restarted again.
	ErrFatal = errors.New("supervisor: restart budget exhausted")
)

// State is the supervisor's lifecycle state.
type State int32

const (
	// StateStopped means Run has not started or has returned.
	StateStopped State = iota
	// StateStarting means the process is launching or being probed.
	StateStarting
	// StateReady means the endpoint accepts connections.
	StateReady
	// StateFatal means the restart budget is exhausted.
	StateFatal
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateFatal:
		return "fatal"
	default:
		return "stopped"
	}
}

// Config configures a Supervisor.
type Config struct {
	// Command is the simplex-chat binary. Empty enables external
	// mode: the process is managed elsewhere and only probed.
	Command string

	// Args are extra arguments placed before the derived ones.
	Args []string

	// DatabasePath is passed to the CLI as -d.
	DatabasePath string

	// Port is the websocket port, passed to the CLI as -p and
	// probed for readiness.
	Port int

	// Host is the probe host. Default: localhost.
	Host string

	// ProbeInterval is the delay between readiness probes.
	// Default: 2s.
	ProbeInterval time.Duration

	// ProbeAttempts bounds probes per startup. Default: 30.
	ProbeAttempts int

	// StopGracePeriod is the SIGTERM-to-SIGKILL window.
	// Default: 10s.
	StopGracePeriod time.Duration

	// MaxRestarts bounds consecutive failures before the supervisor
	// goes fatal. Default: 5.
	MaxRestarts int

	// Clock defaults to the real clock.
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Supervisor runs and monitors the CLI process. It implements the
// transport's Backend interface: the channel waits on AwaitReady
// before dialing and calls ReportDisconnect when the connection
// drops, which makes the supervisor re-verify process health.
type Supervisor struct {
	command         string
	args            []string
	databasePath    string
	host            string
	port            int
	probeInterval   time.Duration
	probeAttempts   int
	stopGracePeriod time.Duration
	maxRestarts     int
	clock           clock.Clock
	logger          *slog.Logger

	state atomic.Int32

	mu      sync.Mutex
	ready   bool
	readyCh chan struct{}

	disconnects chan struct{}
}

// New returns a Supervisor ready for Run.
func New(cfg Config) (*Supervisor, error) {
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("supervisor: port is required")
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = 2 * time.Second
	}
	if cfg.ProbeAttempts <= 0 {
		cfg.ProbeAttempts = 30
	}
	if cfg.StopGracePeriod <= 0 {
		cfg.StopGracePeriod = 10 * time.Second
	}
	if cfg.MaxRestarts <= 0 {
		cfg.MaxRestarts = 5
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Supervisor{
		command:         cfg.Command,
		args:            cfg.Args,
		databasePath:    cfg.DatabasePath,
		host:            cfg.Host,
		port:            cfg.Port,
		probeInterval:   cfg.ProbeInterval,
		probeAttempts:   cfg.ProbeAttempts,
		stopGracePeriod: cfg.StopGracePeriod,
		maxRestarts:     cfg.MaxRestarts,
		clock:           cfg.Clock,
		logger:          cfg.Logger,
		readyCh:         make(chan struct{}),
		disconnects:     make(chan struct{}, 1),
	}, nil
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State { return State(s.state.Load()) }

// Run launches and monitors the process until ctx is done or the
// restart budget is exhausted. In external mode it probes the
// endpoint and waits for disconnect reports instead of managing a
// process.
func (s *Supervisor) Run(ctx context.Context) error {
	defer s.state.Store(int32(StateStopped))

	failures := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		s.state.Store(int32(StateStarting))

		process, exited, err := s.startProcess()
		if err != nil {
			s.logger.Error("process start failed", "command", s.command, "error", err)
			failures++
			if failures >= s.maxRestarts {
				return s.goFatal(failures, err)
			}
			continue
		}

		if err := s.probe(ctx); err != nil {
			if ctx.Err() != nil {
				s.stopProcess(process, exited)
				return nil
			}
			s.logger.Error("backend never became ready", "error", err)
			s.stopProcess(process, exited)
			failures++
			if failures >= s.maxRestarts {
				return s.goFatal(failures, err)
			}
			continue
		}

		failures = 0
		s.markReady()
		s.logger.Info("backend ready", "host", s.host, "port", s.port,
			"managed", process != nil)

		select {
		case <-ctx.Done():
			s.clearReady()
			s.stopProcess(process, exited)
			return nil

		case err := <-exitedOrNever(exited):
			s.clearReady()
			s.logger.Warn("process exited", "error", err)
			failures++
			if failures >= s.maxRestarts {
				return s.goFatal(failures, err)
			}

		case <-s.disconnects:
			s.clearReady()
			s.logger.Warn("transport reported disconnect, re-verifying backend")
			// A quick probe distinguishes a transient socket drop
			// from a dead process. Healthy again: no restart.
			if s.probeOnce(ctx) == nil {
				failures = 0
				s.markReady()
				continue
			}
			s.stopProcess(process, exited)
			failures++
			if failures >= s.maxRestarts {
				return s.goFatal(failures, ErrNotReady)
			}
		}
	}
}

// goFatal marks the supervisor fatal and wakes all readiness waiters.
func (s *Supervisor) goFatal(failures int, cause error) error {
	s.state.Store(int32(StateFatal))
	s.mu.Lock()
	close(s.readyCh)
	s.readyCh = nil
	s.mu.Unlock()
	s.logger.Error("giving up after consecutive failures", "failures", failures, "cause", cause)
	if cause != nil {
		return fmt.Errorf("%w: after %d failures: %v", ErrFatal, failures, cause)
	}
	return fmt.Errorf("%w: after %d failures", ErrFatal, failures)
}

// exitedOrNever returns the given channel, or one that never fires
// for external mode.
func exitedOrNever(exited chan error) <-chan error {
	if exited == nil {
		return make(chan error)
	}
	return exited
}

// startProcess launches the CLI. Returns a nil process in external
// mode.
func (s *Supervisor) startProcess() (*exec.Cmd, chan error, error) {
	if s.command == "" {
		return nil, nil, nil
	}

	args := append(append([]string{}, s.args...),
		"-d", s.databasePath, "-p", strconv.Itoa(s.port))
	process := exec.Command(s.command, args...)
	if err := process.Start(); err != nil {
		return nil, nil, fmt.Errorf("supervisor: starting %s: %w", s.command, err)
	}

	exited := make(chan error, 1)
	go func() { exited <- process.Wait() }()
	s.logger.Info("process started", "command", s.command, "pid", process.Process.Pid)
	return process, exited, nil
}

// stopProcess terminates the process: SIGTERM, grace period, SIGKILL.
// No-op in external mode.
func (s *Supervisor) stopProcess(process *exec.Cmd, exited chan error) {
	if process == nil || process.Process == nil {
		return
	}

	if err := process.Process.Signal(syscall.SIGTERM); err != nil {
		// Already gone.
		return
	}

	select {
	case <-exited:
		return
	case <-s.clock.After(s.stopGracePeriod):
	}

	s.logger.Warn("process ignored SIGTERM, killing", "pid", process.Process.Pid)
	_ = process.Process.Kill()
	<-exited
}

// probe waits for the endpoint to accept a TCP connection, trying up
// to ProbeAttempts times with ProbeInterval between attempts.
func (s *Supervisor) probe(ctx context.Context) error {
	for attempt := 1; attempt <= s.probeAttempts; attempt++ {
		if err := s.probeOnce(ctx); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt == s.probeAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(s.probeInterval):
		}
	}
	return fmt.Errorf("%w: %s after %d probes",
		ErrNotReady, s.address(), s.probeAttempts)
}

// probeOnce makes a single TCP connection attempt.
func (s *Supervisor) probeOnce(ctx context.Context) error {
	dialer := net.Dialer{Timeout: time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", s.address())
	if err != nil {
		return err
	}
	conn.Close()
	return nil
}

func (s *Supervisor) address() string {
	return net.JoinHostPort(s.host, strconv.Itoa(s.port))
}

// markReady signals readiness to AwaitReady waiters.
func (s *Supervisor) markReady() {
	s.state.Store(int32(StateReady))
	s.mu.Lock()
	if !s.ready {
		s.ready = true
		if s.readyCh != nil {
			close(s.readyCh)
		}
	}
	s.mu.Unlock()
}

// clearReady resets the readiness gate so AwaitReady blocks again.
func (s *Supervisor) clearReady() {
	s.state.Store(int32(StateStarting))
	s.mu.Lock()
	if s.ready {
		s.ready = false
		s.readyCh = make(chan struct{})
	}
	s.mu.Unlock()
}

// AwaitReady blocks until the backend accepts connections, ctx is
// done, or the supervisor goes fatal.
func (s *Supervisor) AwaitReady(ctx context.Context) error {
	for {
		if s.State() == StateFatal {
			return ErrFatal
		}
		s.mu.Lock()
		ready := s.ready
		waitCh := s.readyCh
		s.mu.Unlock()
		if ready {
			return nil
		}
		if waitCh == nil {
			return ErrFatal
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-waitCh:
		}
	}
}

// ReportDisconnect tells the supervisor the transport lost its
// connection. Coalesced: overlapping reports trigger one health
// check.
func (s *Supervisor) ReportDisconnect() {
	select {
	case s.disconnects <- struct{}{}:
	default:
	}
}
