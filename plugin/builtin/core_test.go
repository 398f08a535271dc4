// Copyright 2026 The SimpleX Bot Authors
// SPDX-License-Identifier: Apache-2.0

package builtin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stephenmkbrady/simplex-bot/message"
	"github.com/stephenmkbrady/simplex-bot/plugin"
)

// fakeAdapter satisfies plugin.Adapter for handler tests.
type fakeAdapter struct {
	sent     []string
	requests []string
	reply    func(command string) (json.RawMessage, error)
}

func (a *fakeAdapter) Platform() string { return "simplex" }
func (a *fakeAdapter) BotName() string  { return "testbot" }

func (a *fakeAdapter) SendMessage(ctx context.Context, target message.RouteTarget, text string) error {
	a.sent = append(a.sent, target.SendCommand(text))
	return nil
}

func (a *fakeAdapter) SendFile(ctx context.Context, target message.RouteTarget, path string) error {
	a.sent = append(a.sent, "/f "+target.SendRef()+" "+path)
	return nil
}

func (a *fakeAdapter) NormalizeContext(raw json.RawMessage) (message.Context, error) {
	var envelope message.ChatItemEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return message.Context{}, err
	}
	return message.Normalize(envelope)
}

func (a *fakeAdapter) Request(ctx context.Context, command string) (json.RawMessage, error) {
	a.requests = append(a.requests, command)
	if a.reply != nil {
		return a.reply(command)
	}
	return nil, errors.New("no reply configured")
}

func (a *fakeAdapter) Send(ctx context.Context, command string) error {
	a.sent = append(a.sent, command)
	return nil
}

func newCoreRegistry(t *testing.T) (*plugin.Registry, plugin.Plugin) {
	t.Helper()
	registry, err := plugin.NewRegistry(plugin.RegistryConfig{
		Adapter: &fakeAdapter{},
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	factory := NewCoreFactory(CoreDeps{Registry: registry})
	if err := registry.RegisterFactory("core", factory); err != nil {
		t.Fatalf("RegisterFactory: %v", err)
	}
	registry.LoadAll()

	core, _, ok := registry.Lookup("help")
	if !ok {
		t.Fatal("core plugin did not activate")
	}
	return registry, core
}

func coreCommand(name string, args ...string) message.Command {
	return message.Command{
		Name:      name,
		Args:      args,
		ArgString: strings.Join(args, " "),
		Message: message.Context{
			Sender: "alice",
			Target: message.RouteTarget{Kind: message.DirectChat, Name: "alice"},
		},
	}
}

func TestCoreHelpListsCommands(t *testing.T) {
	_, core := newCoreRegistry(t)

	result, err := core.Handle(context.Background(), coreCommand("help"))
	if err != nil {
		t.Fatalf("Handle(help): %v", err)
	}
	for _, name := range []string{"!help", "!echo", "!ping", "!status", "!plugins", "!reload"} {
		if !strings.Contains(result, name) {
			t.Errorf("help output missing %s:\n%s", name, result)
		}
	}
}

func TestCoreEcho(t *testing.T) {
	_, core := newCoreRegistry(t)

	result, err := core.Handle(context.Background(), coreCommand("echo", "hello", "world"))
	if err != nil {
		t.Fatalf("Handle(echo): %v", err)
	}
	if result != "hello world" {
		t.Errorf("echo = %q, want %q", result, "hello world")
	}
}

func TestCoreEchoWithoutArgsShowsUsage(t *testing.T) {
	_, core := newCoreRegistry(t)

	result, err := core.Handle(context.Background(), coreCommand("echo"))
	if err != nil {
		t.Fatalf("Handle(echo): %v", err)
	}
	if !strings.Contains(result, "Usage") {
		t.Errorf("echo without args = %q, want usage text", result)
	}
}

func TestCorePing(t *testing.T) {
	_, core := newCoreRegistry(t)

	result, err := core.Handle(context.Background(), coreCommand("ping"))
	if err != nil {
		t.Fatalf("Handle(ping): %v", err)
	}
	if result != "pong" {
		t.Errorf("ping = %q, want pong", result)
	}
}

func TestCoreStatusUsesHook(t *testing.T) {
	registry, err := plugin.NewRegistry(plugin.RegistryConfig{
		Adapter: &fakeAdapter{},
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	factory := NewCoreFactory(CoreDeps{
		Registry: registry,
		Status:   func() string { return "connected, uptime 5m" },
	})
	if err := registry.RegisterFactory("core", factory); err != nil {
		t.Fatalf("RegisterFactory: %v", err)
	}
	registry.LoadAll()
	core, _, _ := registry.Lookup("status")

	result, err := core.Handle(context.Background(), coreCommand("status"))
	if err != nil {
		t.Fatalf("Handle(status): %v", err)
	}
	if result != "connected, uptime 5m" {
		t.Errorf("status = %q, want the hook's report", result)
	}
}

func TestCorePluginsReportsState(t *testing.T) {
	_, core := newCoreRegistry(t)

	result, err := core.Handle(context.Background(), coreCommand("plugins"))
	if err != nil {
		t.Fatalf("Handle(plugins): %v", err)
	}
	if !strings.Contains(result, "core 1.0.0 [active]") {
		t.Errorf("plugins output = %q, want core listed active", result)
	}
}

func TestCoreReload(t *testing.T) {
	_, core := newCoreRegistry(t)

	result, err := core.Handle(context.Background(), coreCommand("reload", "core"))
	if err != nil {
		t.Fatalf("Handle(reload core): %v", err)
	}
	if !strings.Contains(result, "reloaded") {
		t.Errorf("reload = %q, want confirmation", result)
	}

	if _, err := core.Handle(context.Background(), coreCommand("reload", "ghost")); err == nil {
		t.Error("reload of an unknown plugin should fail")
	}
}
