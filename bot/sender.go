// Copyright 2026 The SimpleX Bot Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stephenmkbrady/simplex-bot/message"
	"github.com/stephenmkbrady/simplex-bot/transport"
)

// Transport is the outbound surface of the websocket channel. It is
// satisfied by *transport.Channel.
type Transport interface {
	Send(ctx context.Context, cmd string) error
	SendAndWait(ctx context.Context, cmd string) (transport.InboundFrame, error)
}

// Sender delivers chat messages: splits long text, issues the CLI
// send commands, and records the message audit log.
type Sender struct {
	transport Transport
	maxLength int
	audit     *slog.Logger
}

// NewSender returns a Sender. audit may be nil to disable the audit
// log; maxLength <= 0 defaults to 4096.
func NewSender(t Transport, maxLength int, audit *slog.Logger) *Sender {
	if maxLength <= 0 {
		maxLength = 4096
	}
	return &Sender{transport: t, maxLength: maxLength, audit: audit}
}

// SendText delivers text to a conversation, splitting it into parts
// when it exceeds the message length limit. Parts are sent in order;
// the first failed part aborts the rest.
func (s *Sender) SendText(ctx context.Context, target message.RouteTarget, text string) error {
	parts := transport.SplitMessage(text, s.maxLength)
	for i, part := range parts {
		if err := s.transport.Send(ctx, target.SendCommand(part)); err != nil {
			return fmt.Errorf("bot: sending part %d/%d to %s: %w", i+1, len(parts), target.SendRef(), err)
		}
	}
	if s.audit != nil {
		s.audit.Info("message sent",
			"to", target.Name, "chat", target.Kind.String(), "length", len(text), "parts", len(parts))
	}
	return nil
}

// RecordInbound writes the audit record for a received message.
func (s *Sender) RecordInbound(context message.Context) {
	if s.audit == nil {
		return
	}
	s.audit.Info("message received",
		"from", context.Sender, "chat", context.Target.Kind.String(),
		"conversation", context.Target.Name, "length", len(context.Text))
}
