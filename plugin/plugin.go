// Copyright 2026 The SimpleX Bot Authors
// SPDX-License-Identifier: Apache-2.0

package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stephenmkbrady/simplex-bot/message"
)

// Plugin is one compiled-in command provider. Implementations are
// constructed by a Factory, initialized with the host Adapter, and
// invoked once per matching command.
//
// Handle returns the command's result text, which the dispatcher
// delivers to the originating conversation after any intermediate
// messages the handler sent through the adapter. An empty result
// sends nothing.
type Plugin interface {
	// Name is the unique plugin name.
	Name() string

	// Version is the plugin version string.
	Version() string

	// Commands lists the command names this plugin serves, without
	// the prefix.
	Commands() []string

	// Platforms lists the chat platforms the plugin supports. Empty
	// means all platforms.
	Platforms() []string

	// Initialize prepares the plugin for use. Called once per
	// instance, before any Handle call.
	Initialize(adapter Adapter) error

	// Handle executes one command invocation.
	Handle(ctx context.Context, command message.Command) (string, error)

	// Cleanup releases the plugin's resources. Called when the
	// instance is replaced by a reload or the bot shuts down.
	Cleanup() error
}

// Adapter is the host surface given to plugins: message delivery and
// raw CLI access. Plugins never touch the websocket directly.
type Adapter interface {
	// Platform identifies the chat platform, e.g. "simplex".
	Platform() string

	// BotName is the bot's configured display name.
	BotName() string

	// SendMessage delivers text to a conversation. Long text is
	// split automatically. Use this for intermediate status output;
	// the final result is returned from Handle.
	SendMessage(ctx context.Context, target message.RouteTarget, text string) error

	// SendFile sends a local file to a conversation.
	SendFile(ctx context.Context, target message.RouteTarget, path string) error

	// NormalizeContext builds the canonical message context from a
	// raw chat item envelope. The same routine decides direct versus
	// group everywhere; plugins must not re-derive routing from raw
	// payloads.
	NormalizeContext(raw json.RawMessage) (message.Context, error)

	// Request sends a correlated CLI command and returns the reply
	// payload.
	Request(ctx context.Context, command string) (json.RawMessage, error)

	// Send sends a CLI command without waiting for a reply.
	Send(ctx context.Context, command string) error
}

// Factory constructs a plugin instance from its decoded YAML config.
// A fresh instance is constructed for every load and reload.
type Factory func(config map[string]any) (Plugin, error)

// LifecycleState tracks a plugin through its lifecycle.
type LifecycleState int

const (
	// StateDiscovered means the factory is registered but nothing
	// is constructed.
	StateDiscovered LifecycleState = iota
	// StateLoaded means an instance is constructed but not
	// initialized.
	StateLoaded
	// StateInitialized means Initialize succeeded.
	StateInitialized
	// StateActive means the plugin's commands are routable.
	StateActive
	// StateDisabled means the plugin is loaded but not routable.
	StateDisabled
	// StateFailed means construction, initialization, or activation
	// failed. Failed plugins stay listed for diagnostics.
	StateFailed
)

// String returns the state name.
func (s LifecycleState) String() string {
	switch s {
	case StateLoaded:
		return "loaded"
	case StateInitialized:
		return "initialized"
	case StateActive:
		return "active"
	case StateDisabled:
		return "disabled"
	case StateFailed:
		return "failed"
	default:
		return "discovered"
	}
}

// Descriptor is a point-in-time view of one plugin's status.
type Descriptor struct {
	Name     string
	Version  string
	State    LifecycleState
	Commands []string

	// Err explains a Failed state.
	Err error
}

// ErrUnknownPlugin is returned for operations naming a plugin that
// was never registered.
var ErrUnknownPlugin = errors.New("plugin: unknown plugin")

// CollisionError reports a command name claimed by two plugins. The
// earlier registration keeps the command; the later plugin fails.
type CollisionError struct {
	Command  string
	Existing string
	Incoming string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("plugin: command %q already provided by %q, rejecting %q",
		e.Command, e.Existing, e.Incoming)
}
