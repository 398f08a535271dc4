// Copyright 2026 The SimpleX Bot Authors
// SPDX-License-Identifier: Apache-2.0

package message

import "strings"

// ChatKind distinguishes direct and group conversations.
type ChatKind int

const (
	// DirectChat is a one-to-one conversation with a contact.
	DirectChat ChatKind = iota
	// GroupChat is a group conversation.
	GroupChat
)

// String returns "direct" or "group".
func (k ChatKind) String() string {
	if k == GroupChat {
		return "group"
	}
	return "direct"
}

// RouteTarget identifies a conversation for outbound messages.
type RouteTarget struct {
	Kind ChatKind
	Name string
}

// SendRef returns the CLI reference for this conversation: @name for
// direct chats, #name for groups. Names containing whitespace are
// wrapped in single quotes, as the CLI requires.
func (t RouteTarget) SendRef() string {
	prefix := "@"
	if t.Kind == GroupChat {
		prefix = "#"
	}
	name := t.Name
	if strings.ContainsAny(name, " \t") {
		name = "'" + name + "'"
	}
	return prefix + name
}

// SendCommand returns the CLI command that sends text to this
// conversation.
func (t RouteTarget) SendCommand(text string) string {
	return t.SendRef() + " " + text
}
