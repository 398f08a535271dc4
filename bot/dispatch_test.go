// Copyright 2026 The SimpleX Bot Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stephenmkbrady/simplex-bot/lib/clock"
	"github.com/stephenmkbrady/simplex-bot/lib/config"
	"github.com/stephenmkbrady/simplex-bot/message"
	"github.com/stephenmkbrady/simplex-bot/plugin"
	"github.com/stephenmkbrady/simplex-bot/transport"
)

// fakeTransport records sent commands in order. failAt > 0 makes the
// n-th Send fail; a non-nil gate makes every Send wait on it first.
type fakeTransport struct {
	mu     sync.Mutex
	sent   []string
	failAt int
	gate   chan struct{}
	reply  func(cmd string) (transport.InboundFrame, error)
}

func (f *fakeTransport) Send(ctx context.Context, cmd string) error {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAt > 0 && len(f.sent)+1 == f.failAt {
		return errors.New("write failed")
	}
	f.sent = append(f.sent, cmd)
	return nil
}

func (f *fakeTransport) SendAndWait(ctx context.Context, cmd string) (transport.InboundFrame, error) {
	f.mu.Lock()
	f.sent = append(f.sent, cmd)
	reply := f.reply
	f.mu.Unlock()
	if reply != nil {
		return reply(cmd)
	}
	return transport.InboundFrame{}, nil
}

func (f *fakeTransport) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.sent)
}

// fakePlugin serves a fixed command list through a test handler.
type fakePlugin struct {
	name     string
	commands []string
	adapter  plugin.Adapter
	handle   func(ctx context.Context, command message.Command) (string, error)
}

func (p *fakePlugin) Name() string        { return p.name }
func (p *fakePlugin) Version() string     { return "1.0.0" }
func (p *fakePlugin) Commands() []string  { return p.commands }
func (p *fakePlugin) Platforms() []string { return nil }

func (p *fakePlugin) Initialize(adapter plugin.Adapter) error {
	p.adapter = adapter
	return nil
}

func (p *fakePlugin) Handle(ctx context.Context, command message.Command) (string, error) {
	return p.handle(ctx, command)
}

func (p *fakePlugin) Cleanup() error { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type dispatchHarness struct {
	transport  *fakeTransport
	sender     *Sender
	adapter    *Adapter
	registry   *plugin.Registry
	dispatcher *Dispatcher
}

func newDispatchHarness(t *testing.T, admin config.AdminConfig, budget time.Duration, clk clock.Clock, plugins ...*fakePlugin) *dispatchHarness {
	t.Helper()

	logger := discardLogger()
	ft := &fakeTransport{}
	sender := NewSender(ft, 4096, nil)
	adapter := NewAdapter(ft, sender, "testbot")

	registry, err := plugin.NewRegistry(plugin.RegistryConfig{Adapter: adapter, Logger: logger})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	for _, p := range plugins {
		instance := p
		err := registry.RegisterFactory(p.name, func(map[string]any) (plugin.Plugin, error) {
			return instance, nil
		})
		if err != nil {
			t.Fatalf("RegisterFactory(%s): %v", p.name, err)
		}
	}
	registry.LoadAll()

	dispatcher, err := NewDispatcher(DispatcherConfig{
		Plugins: registry,
		Gate:    NewAdminGate(admin),
		Sender:  sender,
		Budget:  budget,
		Clock:   clk,
		Logger:  logger,
	})
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}

	return &dispatchHarness{
		transport:  ft,
		sender:     sender,
		adapter:    adapter,
		registry:   registry,
		dispatcher: dispatcher,
	}
}

func directCommand(name string, args ...string) message.Command {
	return message.Command{
		Name: name,
		Args: args,
		Message: message.Context{
			Sender: "alice",
			Target: message.RouteTarget{Kind: message.DirectChat, Name: "alice"},
			Text:   message.CommandPrefix + name,
		},
	}
}

func TestDispatchDeliversResult(t *testing.T) {
	ping := &fakePlugin{
		name:     "core",
		commands: []string{"ping"},
		handle: func(ctx context.Context, command message.Command) (string, error) {
			return "pong", nil
		},
	}
	h := newDispatchHarness(t, config.AdminConfig{}, 0, nil, ping)

	h.dispatcher.Dispatch(context.Background(), directCommand("ping"))
	h.dispatcher.Wait()

	sent := h.transport.commands()
	if len(sent) != 1 || sent[0] != "@alice pong" {
		t.Errorf("sent = %v, want [@alice pong]", sent)
	}
}

func TestDispatchStatusBeforeResult(t *testing.T) {
	work := &fakePlugin{name: "worker", commands: []string{"work"}}
	work.handle = func(ctx context.Context, command message.Command) (string, error) {
		err := work.adapter.SendMessage(ctx, command.Message.Target, "working on it")
		if err != nil {
			return "", err
		}
		return "done", nil
	}
	h := newDispatchHarness(t, config.AdminConfig{}, 0, nil, work)

	h.dispatcher.Dispatch(context.Background(), directCommand("work"))
	h.dispatcher.Wait()

	sent := h.transport.commands()
	want := []string{"@alice working on it", "@alice done"}
	if !slices.Equal(sent, want) {
		t.Errorf("sent = %v, want %v", sent, want)
	}
}

func TestDispatchUnknownCommandRepliesInDirect(t *testing.T) {
	h := newDispatchHarness(t, config.AdminConfig{}, 0, nil)

	h.dispatcher.Dispatch(context.Background(), directCommand("nope"))
	h.dispatcher.Wait()

	sent := h.transport.commands()
	if len(sent) != 1 || !strings.Contains(sent[0], "Unknown command: !nope") {
		t.Errorf("sent = %v, want one unknown-command reply", sent)
	}
}

func TestDispatchUnknownCommandSuppressedInGroup(t *testing.T) {
	h := newDispatchHarness(t, config.AdminConfig{}, 0, nil)

	command := message.Command{
		Name: "nope",
		Message: message.Context{
			Sender: "bob",
			Target: message.RouteTarget{Kind: message.GroupChat, Name: "general"},
		},
	}
	h.dispatcher.Dispatch(context.Background(), command)
	h.dispatcher.Wait()

	if sent := h.transport.commands(); len(sent) != 0 {
		t.Errorf("sent = %v, want no group reply for an unknown command", sent)
	}
}

func TestDispatchPermissionDenied(t *testing.T) {
	restart := &fakePlugin{
		name:     "admin",
		commands: []string{"restart"},
		handle: func(ctx context.Context, command message.Command) (string, error) {
			return "restarted", nil
		},
	}
	admin := config.AdminConfig{Admins: config.AdminList{"root": {"*"}}}
	h := newDispatchHarness(t, admin, 0, nil, restart)

	h.dispatcher.Dispatch(context.Background(), directCommand("restart"))
	h.dispatcher.Wait()

	sent := h.transport.commands()
	if len(sent) != 1 || !strings.Contains(sent[0], "permission") {
		t.Errorf("sent = %v, want one permission denial", sent)
	}
}

func TestDispatchPublicCommandBypassesGate(t *testing.T) {
	help := &fakePlugin{
		name:     "core",
		commands: []string{"help"},
		handle: func(ctx context.Context, command message.Command) (string, error) {
			return "commands: help", nil
		},
	}
	admin := config.AdminConfig{
		Admins:         config.AdminList{"root": {"*"}},
		PublicCommands: []string{"help"},
	}
	h := newDispatchHarness(t, admin, 0, nil, help)

	h.dispatcher.Dispatch(context.Background(), directCommand("help"))
	h.dispatcher.Wait()

	sent := h.transport.commands()
	if len(sent) != 1 || sent[0] != "@alice commands: help" {
		t.Errorf("sent = %v, want the help reply", sent)
	}
}

func TestDispatchPanicRecovery(t *testing.T) {
	boom := &fakePlugin{
		name:     "broken",
		commands: []string{"boom"},
		handle: func(ctx context.Context, command message.Command) (string, error) {
			panic("handler bug")
		},
	}
	h := newDispatchHarness(t, config.AdminConfig{}, 0, nil, boom)

	h.dispatcher.Dispatch(context.Background(), directCommand("boom"))
	h.dispatcher.Wait()

	sent := h.transport.commands()
	if len(sent) != 1 || !strings.Contains(sent[0], "internal error") {
		t.Errorf("sent = %v, want one internal error reply", sent)
	}
}

func TestDispatchBudgetTimeout(t *testing.T) {
	fake := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	slow := &fakePlugin{
		name:     "slow",
		commands: []string{"slow"},
		handle: func(ctx context.Context, command message.Command) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
	h := newDispatchHarness(t, config.AdminConfig{}, 5*time.Second, fake, slow)

	h.dispatcher.Dispatch(context.Background(), directCommand("slow"))
	fake.WaitForTimers(1)
	fake.Advance(5 * time.Second)
	h.dispatcher.Wait()

	sent := h.transport.commands()
	if len(sent) != 1 || !strings.Contains(sent[0], "timed out") {
		t.Errorf("sent = %v, want one timeout reply", sent)
	}
}

func TestDispatchBudgetSuppressesLateSuccess(t *testing.T) {
	fake := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	slow := &fakePlugin{
		name:     "slow",
		commands: []string{"slow"},
		handle: func(ctx context.Context, command message.Command) (string, error) {
			<-ctx.Done()
			return "finished anyway", nil
		},
	}
	h := newDispatchHarness(t, config.AdminConfig{}, 5*time.Second, fake, slow)

	h.dispatcher.Dispatch(context.Background(), directCommand("slow"))
	fake.WaitForTimers(1)
	fake.Advance(5 * time.Second)
	h.dispatcher.Wait()

	sent := h.transport.commands()
	if len(sent) != 1 || !strings.Contains(sent[0], "timed out") {
		t.Errorf("sent = %v, want only the timeout reply", sent)
	}
}

func TestDispatchBudgetFiresOnStuckHandler(t *testing.T) {
	fake := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	stuck := &fakePlugin{
		name:     "stuck",
		commands: []string{"stuck"},
		handle: func(ctx context.Context, command message.Command) (string, error) {
			<-release
			return "too late", nil
		},
	}
	h := newDispatchHarness(t, config.AdminConfig{}, time.Second, fake, stuck)

	h.dispatcher.Dispatch(context.Background(), directCommand("stuck"))
	fake.WaitForTimers(1)
	fake.Advance(time.Second)
	// Wait must return even though the handler has not.
	h.dispatcher.Wait()

	sent := h.transport.commands()
	if len(sent) != 1 || !strings.Contains(sent[0], "timed out") {
		t.Errorf("sent = %v, want the timeout reply", sent)
	}
}

func TestDispatchReturnsWhileReplyBlocks(t *testing.T) {
	h := newDispatchHarness(t, config.AdminConfig{}, 0, nil)
	gate := make(chan struct{})
	h.transport.gate = gate

	returned := make(chan struct{})
	go func() {
		h.dispatcher.Dispatch(context.Background(), directCommand("nope"))
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(5 * time.Second):
		t.Fatal("Dispatch blocked on the transport write")
	}

	close(gate)
	h.dispatcher.Wait()
	sent := h.transport.commands()
	if len(sent) != 1 || !strings.Contains(sent[0], "Unknown command") {
		t.Errorf("sent = %v, want the unknown-command reply", sent)
	}
}

func TestDispatchShutdownSuppressesReply(t *testing.T) {
	started := make(chan struct{})
	slow := &fakePlugin{
		name:     "slow",
		commands: []string{"slow"},
		handle: func(ctx context.Context, command message.Command) (string, error) {
			close(started)
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
	h := newDispatchHarness(t, config.AdminConfig{}, 0, nil, slow)

	ctx, cancel := context.WithCancel(context.Background())
	h.dispatcher.Dispatch(ctx, directCommand("slow"))
	<-started
	cancel()
	h.dispatcher.Wait()

	if sent := h.transport.commands(); len(sent) != 0 {
		t.Errorf("sent = %v, want nothing after shutdown", sent)
	}
}
