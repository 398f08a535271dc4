// Copyright 2026 The SimpleX Bot Authors
// SPDX-License-Identifier: Apache-2.0

package message

import (
	"encoding/json"
	"fmt"
)

// ChatItemEnvelope is one received chat item as the CLI delivers it:
// the conversation it belongs to plus the item itself.
type ChatItemEnvelope struct {
	ChatInfo ChatInfo `json:"chatInfo"`
	Item     ChatItem `json:"chatItem"`
}

// ChatInfo identifies the conversation. Exactly one of Contact or
// GroupInfo is set depending on the conversation type.
type ChatInfo struct {
	Type      string     `json:"type"`
	Contact   *Contact   `json:"contact,omitempty"`
	GroupInfo *GroupInfo `json:"groupInfo,omitempty"`

	// GroupName appears on some older event shapes that carry the
	// group name without a full groupInfo object.
	GroupName string `json:"groupName,omitempty"`
}

// Contact is a direct-message peer.
type Contact struct {
	ContactID        int64  `json:"contactId"`
	LocalDisplayName string `json:"localDisplayName"`
}

// GroupInfo describes a group conversation.
type GroupInfo struct {
	GroupID          int64  `json:"groupId"`
	LocalDisplayName string `json:"localDisplayName"`
	GroupName        string `json:"groupName,omitempty"`
}

// ChatItem is a single message within a conversation.
type ChatItem struct {
	ChatDir ChatDir     `json:"chatDir"`
	Content ItemContent `json:"content"`
	File    *FileRef    `json:"file,omitempty"`
}

// ChatDir records the direction and, for groups, the sending member.
type ChatDir struct {
	Type        string       `json:"type"`
	GroupMember *GroupMember `json:"groupMember,omitempty"`
}

// GroupMember is the sender of a group message.
type GroupMember struct {
	GroupMemberID    int64  `json:"groupMemberId"`
	LocalDisplayName string `json:"localDisplayName"`
}

// ItemContent holds the message content.
type ItemContent struct {
	Type       string      `json:"type"`
	MsgContent *MsgContent `json:"msgContent,omitempty"`
}

// MsgContent is the user-visible content of a message.
type MsgContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// FileRef describes a file attached to a chat item.
type FileRef struct {
	FileID   int64  `json:"fileId"`
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
}

// Context is the normalized view of one inbound message: who sent it,
// which conversation to reply to, and what it said. All routing
// decisions downstream (dispatch, replies, permission checks) read
// from this struct and never from the raw payload.
type Context struct {
	// Sender is the display name of the message author. For group
	// messages this is the group member, not the group.
	Sender string

	// Target is the conversation the message arrived in, and
	// therefore the conversation replies go to.
	Target RouteTarget

	// Text is the message text. Empty for non-text content.
	Text string

	// File is set when the item carries a file attachment.
	File *FileRef
}

// DecodeChatItems decodes the chat items carried by a newChatItem or
// newChatItems event payload. Both shapes are accepted: a single
// "chatItem" object or a "chatItems" array.
func DecodeChatItems(payload json.RawMessage) ([]ChatItemEnvelope, error) {
	var event struct {
		ChatItem  *ChatItemEnvelope  `json:"chatItem"`
		ChatItems []ChatItemEnvelope `json:"chatItems"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("message: decoding chat items: %w", err)
	}
	if event.ChatItem != nil {
		return []ChatItemEnvelope{*event.ChatItem}, nil
	}
	return event.ChatItems, nil
}

// Normalize builds the canonical Context for a received chat item.
//
// This is the only place that decides direct versus group and picks
// the conversation identifier: a conversation is a group exactly when
// groupInfo is present, the group identifier is the group's
// localDisplayName (falling back to groupName), and the sender of a
// group message comes from the chatDir's groupMember.
func Normalize(envelope ChatItemEnvelope) (Context, error) {
	info := envelope.ChatInfo
	item := envelope.Item

	context := Context{File: item.File}
	if item.Content.MsgContent != nil {
		context.Text = item.Content.MsgContent.Text
	}

	switch {
	case info.GroupInfo != nil:
		name := info.GroupInfo.LocalDisplayName
		if name == "" {
			name = info.GroupInfo.GroupName
		}
		if name == "" {
			name = info.GroupName
		}
		if name == "" {
			return Context{}, fmt.Errorf("message: group chat item without a group name")
		}
		context.Target = RouteTarget{Kind: GroupChat, Name: name}
		if item.ChatDir.GroupMember != nil {
			context.Sender = item.ChatDir.GroupMember.LocalDisplayName
		}
		if context.Sender == "" {
			return Context{}, fmt.Errorf("message: group chat item without a sending member")
		}
	case info.Contact != nil:
		if info.Contact.LocalDisplayName == "" {
			return Context{}, fmt.Errorf("message: direct chat item without a contact name")
		}
		context.Sender = info.Contact.LocalDisplayName
		context.Target = RouteTarget{Kind: DirectChat, Name: info.Contact.LocalDisplayName}
	default:
		return Context{}, fmt.Errorf("message: chat item without contact or group info")
	}

	return context, nil
}
