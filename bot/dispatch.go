// Copyright 2026 The SimpleX Bot Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stephenmkbrady/simplex-bot/lib/clock"
	"github.com/stephenmkbrady/simplex-bot/message"
	"github.com/stephenmkbrady/simplex-bot/plugin"
)

// Dispatcher routes parsed commands to plugin handlers. Each
// invocation runs in its own goroutine, so one slow handler never
// blocks the event loop or other commands. Per invocation, order is
// preserved: whatever the handler sends through the adapter arrives
// before the final result, which is only sent after the handler
// returns.
type Dispatcher struct {
	plugins *plugin.Registry
	gate    *AdminGate
	sender  *Sender
	clock   clock.Clock
	logger  *slog.Logger
	budget  time.Duration

	invocations sync.WaitGroup
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	// Plugins resolves command names. Required.
	Plugins *plugin.Registry

	// Gate decides permissions. Required.
	Gate *AdminGate

	// Sender delivers replies. Required.
	Sender *Sender

	// Budget bounds one handler invocation's wall-clock time. Zero
	// disables the budget.
	Budget time.Duration

	// Clock defaults to the real clock.
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// NewDispatcher returns a Dispatcher.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Plugins == nil || cfg.Gate == nil || cfg.Sender == nil {
		return nil, fmt.Errorf("bot: dispatcher needs plugins, gate, and sender")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dispatcher{
		plugins: cfg.Plugins,
		gate:    cfg.Gate,
		sender:  cfg.Sender,
		clock:   cfg.Clock,
		logger:  cfg.Logger,
		budget:  cfg.Budget,
	}, nil
}

// Dispatch routes one command. Unknown commands reply only in direct
// conversations; in groups they are suppressed so the bot does not
// answer chatter that happens to start with the prefix. Dispatch
// returns immediately; the handler runs on its own goroutine under
// ctx.
func (d *Dispatcher) Dispatch(ctx context.Context, command message.Command) {
	invocation := uuid.NewString()[:8]
	logger := d.logger.With(
		"invocation", invocation,
		"command", command.Name,
		"sender", command.Message.Sender,
		"chat", command.Message.Target.Kind.String(),
	)

	handler, owner, ok := d.plugins.Lookup(command.Name)
	if !ok {
		if command.Message.Target.Kind == message.DirectChat {
			logger.Info("unknown command")
			d.replyAsync(ctx, logger, command,
				fmt.Sprintf("Unknown command: %s%s. Try %shelp.",
					message.CommandPrefix, command.Name, message.CommandPrefix))
		} else {
			logger.Debug("unknown command in group, suppressed")
		}
		return
	}

	if !d.gate.Allowed(command.Message.Sender, command.Name) {
		logger.Warn("permission denied")
		d.replyAsync(ctx, logger, command,
			fmt.Sprintf("You don't have permission to run %s%s.",
				message.CommandPrefix, command.Name))
		return
	}

	logger.Info("dispatching", "plugin", owner)
	d.invocations.Add(1)
	go func() {
		defer d.invocations.Done()
		d.invoke(ctx, logger, handler, command)
	}()
}

// invoke runs one handler with panic recovery and the optional
// wall-clock budget. The handler runs on an inner goroutine so the
// budget can fire even against a handler that ignores cancellation:
// when it expires, the timeout failure is sent immediately and
// whatever the handler eventually returns is dropped.
func (d *Dispatcher) invoke(ctx context.Context, logger *slog.Logger, handler plugin.Plugin, command message.Command) {
	runCtx := ctx
	var cancel context.CancelFunc
	var budgetExpired <-chan time.Time
	if d.budget > 0 {
		runCtx, cancel = context.WithCancel(ctx)
		defer cancel()
		budgetExpired = d.clock.After(d.budget)
	}

	type outcome struct {
		result   string
		err      error
		panicked bool
	}
	// Buffered so a handler finishing after the budget fired can still
	// exit.
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if recovered := recover(); recovered != nil {
				logger.Error("handler panicked", "panic", recovered)
				done <- outcome{panicked: true}
			}
		}()
		result, err := handler.Handle(runCtx, command)
		done <- outcome{result: result, err: err}
	}()

	select {
	case <-budgetExpired:
		cancel()
		logger.Warn("handler exceeded budget", "budget", d.budget)
		d.reply(ctx, logger, command,
			fmt.Sprintf("Command %s%s timed out.", message.CommandPrefix, command.Name))
	case out := <-done:
		switch {
		case out.panicked:
			d.reply(ctx, logger, command,
				fmt.Sprintf("Command %s%s failed: internal error.",
					message.CommandPrefix, command.Name))
		case out.err != nil:
			if ctx.Err() != nil {
				// Shutdown or reload cancellation: no further output.
				logger.Info("invocation cancelled")
				return
			}
			logger.Error("handler failed", "error", out.err)
			d.reply(ctx, logger, command,
				fmt.Sprintf("Command %s%s failed: %v", message.CommandPrefix, command.Name, out.err))
		case out.result != "":
			d.reply(ctx, logger, command, out.result)
		}
	}
}

// replyAsync delivers a dispatch-level reply off the caller's
// goroutine so the event loop never waits on a transport write. The
// goroutine is tracked like an invocation, so Wait covers it.
func (d *Dispatcher) replyAsync(ctx context.Context, logger *slog.Logger, command message.Command, text string) {
	d.invocations.Add(1)
	go func() {
		defer d.invocations.Done()
		d.reply(ctx, logger, command, text)
	}()
}

// reply sends text back to the originating conversation. Delivery
// failures are logged, not propagated; there is nowhere else to
// report them.
func (d *Dispatcher) reply(ctx context.Context, logger *slog.Logger, command message.Command, text string) {
	if err := d.sender.SendText(ctx, command.Message.Target, text); err != nil {
		logger.Warn("reply delivery failed", "error", err)
	}
}

// Wait blocks until all in-flight invocations finish. Used at
// shutdown after the event loop stops.
func (d *Dispatcher) Wait() {
	d.invocations.Wait()
}
