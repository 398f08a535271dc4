// Copyright 2026 The SimpleX Bot Authors
// SPDX-License-Identifier: Apache-2.0

package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/stephenmkbrady/simplex-bot/message"
	"github.com/stephenmkbrady/simplex-bot/plugin"
)

// invitationLink matches the one-time invitation URL in a /connect
// reply. The CLI embeds it in free text, so it is extracted from the
// raw payload rather than a structured field.
var invitationLink = regexp.MustCompile(`https://simplex\.chat/invitation[^\s"\\]*`)

// NewAdminFactory returns the factory for the admin plugin.
func NewAdminFactory() plugin.Factory {
	return func(config map[string]any) (plugin.Plugin, error) {
		return &adminPlugin{}, nil
	}
}

type adminPlugin struct {
	adapter plugin.Adapter
}

func (p *adminPlugin) Name() string        { return "admin" }
func (p *adminPlugin) Version() string     { return "1.0.0" }
func (p *adminPlugin) Commands() []string  { return []string{"invite", "contacts"} }
func (p *adminPlugin) Platforms() []string { return []string{"simplex"} }

func (p *adminPlugin) Initialize(adapter plugin.Adapter) error {
	p.adapter = adapter
	return nil
}

func (p *adminPlugin) Cleanup() error { return nil }

func (p *adminPlugin) Handle(ctx context.Context, command message.Command) (string, error) {
	switch command.Name {
	case "invite":
		return p.invite(ctx)
	case "contacts":
		return p.contacts(ctx)
	default:
		return "", fmt.Errorf("builtin: admin plugin got unexpected command %q", command.Name)
	}
}

// invite creates a one-time invitation link.
func (p *adminPlugin) invite(ctx context.Context) (string, error) {
	payload, err := p.adapter.Request(ctx, "/connect")
	if err != nil {
		return "", fmt.Errorf("creating invitation: %w", err)
	}
	link := invitationLink.Find(payload)
	if link == nil {
		return "", fmt.Errorf("no invitation link in /connect reply")
	}
	return fmt.Sprintf("One-time invitation link:\n%s", link), nil
}

// contacts lists the bot's connected contacts.
func (p *adminPlugin) contacts(ctx context.Context) (string, error) {
	payload, err := p.adapter.Request(ctx, "/contacts")
	if err != nil {
		return "", fmt.Errorf("listing contacts: %w", err)
	}

	var reply struct {
		Contacts []struct {
			LocalDisplayName string `json:"localDisplayName"`
		} `json:"contacts"`
	}
	if err := json.Unmarshal(payload, &reply); err != nil {
		return "", fmt.Errorf("decoding contact list: %w", err)
	}
	if len(reply.Contacts) == 0 {
		return "No contacts.", nil
	}

	names := make([]string, 0, len(reply.Contacts))
	for _, contact := range reply.Contacts {
		names = append(names, contact.LocalDisplayName)
	}
	return fmt.Sprintf("Contacts (%d):\n%s", len(names), strings.Join(names, "\n")), nil
}
