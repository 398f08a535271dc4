// Copyright 2026 The SimpleX Bot Authors
// SPDX-License-Identifier: Apache-2.0

package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/stephenmkbrady/simplex-bot/message"
	"github.com/stephenmkbrady/simplex-bot/plugin"
)

// CoreDeps are the host hooks the core plugin needs beyond the
// adapter.
type CoreDeps struct {
	// Registry answers help, plugins, and reload.
	Registry *plugin.Registry

	// Status reports the bot's runtime status. Nil yields a minimal
	// status line.
	Status func() string
}

// NewCoreFactory returns the factory for the core plugin.
func NewCoreFactory(deps CoreDeps) plugin.Factory {
	return func(config map[string]any) (plugin.Plugin, error) {
		if deps.Registry == nil {
			return nil, fmt.Errorf("builtin: core plugin needs the registry")
		}
		return &corePlugin{deps: deps}, nil
	}
}

type corePlugin struct {
	deps    CoreDeps
	adapter plugin.Adapter
}

func (p *corePlugin) Name() string    { return "core" }
func (p *corePlugin) Version() string { return "1.0.0" }

func (p *corePlugin) Commands() []string {
	return []string{"help", "echo", "ping", "status", "plugins", "reload"}
}

func (p *corePlugin) Platforms() []string { return nil }

func (p *corePlugin) Initialize(adapter plugin.Adapter) error {
	p.adapter = adapter
	return nil
}

func (p *corePlugin) Cleanup() error { return nil }

func (p *corePlugin) Handle(ctx context.Context, command message.Command) (string, error) {
	switch command.Name {
	case "help":
		return p.help(), nil
	case "echo":
		if command.ArgString == "" {
			return fmt.Sprintf("Usage: %secho <text>", message.CommandPrefix), nil
		}
		return command.ArgString, nil
	case "ping":
		return "pong", nil
	case "status":
		if p.deps.Status != nil {
			return p.deps.Status(), nil
		}
		return fmt.Sprintf("%s is running.", p.adapter.BotName()), nil
	case "plugins":
		return p.plugins(), nil
	case "reload":
		return p.reload(command)
	default:
		return "", fmt.Errorf("builtin: core plugin got unexpected command %q", command.Name)
	}
}

func (p *corePlugin) help() string {
	commands := p.deps.Registry.Commands()
	var builder strings.Builder
	fmt.Fprintf(&builder, "%s commands:\n", p.adapter.BotName())
	for _, name := range commands {
		fmt.Fprintf(&builder, "  %s%s\n", message.CommandPrefix, name)
	}
	return strings.TrimRight(builder.String(), "\n")
}

func (p *corePlugin) plugins() string {
	descriptors := p.deps.Registry.Descriptors()
	var builder strings.Builder
	for _, descriptor := range descriptors {
		fmt.Fprintf(&builder, "%s %s [%s]", descriptor.Name, descriptor.Version, descriptor.State)
		if len(descriptor.Commands) > 0 {
			fmt.Fprintf(&builder, " commands: %s", strings.Join(descriptor.Commands, ", "))
		}
		if descriptor.Err != nil {
			fmt.Fprintf(&builder, " error: %v", descriptor.Err)
		}
		builder.WriteByte('\n')
	}
	return strings.TrimRight(builder.String(), "\n")
}

func (p *corePlugin) reload(command message.Command) (string, error) {
	if len(command.Args) != 1 {
		return fmt.Sprintf("Usage: %sreload <plugin>", message.CommandPrefix), nil
	}
	name := command.Args[0]
	if err := p.deps.Registry.Reload(name); err != nil {
		return "", fmt.Errorf("reloading %q: %w", name, err)
	}
	return fmt.Sprintf("Plugin %s reloaded.", name), nil
}
