// Copyright 2026 The SimpleX Bot Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stephenmkbrady/simplex-bot/message"
)

// Adapter is the host surface handed to plugins. It narrows the
// transport to message delivery and raw CLI access.
type Adapter struct {
	transport Transport
	sender    *Sender
	botName   string
}

// NewAdapter returns the plugin adapter.
func NewAdapter(t Transport, sender *Sender, botName string) *Adapter {
	return &Adapter{transport: t, sender: sender, botName: botName}
}

// Platform identifies the chat platform.
func (a *Adapter) Platform() string { return "simplex" }

// BotName is the bot's configured display name.
func (a *Adapter) BotName() string { return a.botName }

// SendMessage delivers text to a conversation with splitting and
// audit logging.
func (a *Adapter) SendMessage(ctx context.Context, target message.RouteTarget, text string) error {
	return a.sender.SendText(ctx, target, text)
}

// SendFile sends a local file to a conversation via the CLI's /f
// command.
func (a *Adapter) SendFile(ctx context.Context, target message.RouteTarget, path string) error {
	return a.transport.Send(ctx, fmt.Sprintf("/f %s %s", target.SendRef(), path))
}

// NormalizeContext builds the canonical message context from a raw
// chat item envelope.
func (a *Adapter) NormalizeContext(raw json.RawMessage) (message.Context, error) {
	var envelope message.ChatItemEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return message.Context{}, fmt.Errorf("bot: decoding chat item: %w", err)
	}
	return message.Normalize(envelope)
}

// Request sends a correlated CLI command and returns the reply
// payload.
func (a *Adapter) Request(ctx context.Context, command string) (json.RawMessage, error) {
	frame, err := a.transport.SendAndWait(ctx, command)
	if err != nil {
		return nil, err
	}
	return frame.Payload, nil
}

// Send sends a CLI command without waiting for a reply.
func (a *Adapter) Send(ctx context.Context, command string) error {
	return a.transport.Send(ctx, command)
}
