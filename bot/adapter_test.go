// Copyright 2026 The SimpleX Bot Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stephenmkbrady/simplex-bot/message"
)

func TestAdapterSendFile(t *testing.T) {
	ft := &fakeTransport{}
	adapter := NewAdapter(ft, NewSender(ft, 4096, nil), "testbot")

	target := message.RouteTarget{Kind: message.DirectChat, Name: "alice"}
	if err := adapter.SendFile(context.Background(), target, "/tmp/photo.jpg"); err != nil {
		t.Fatalf("SendFile: %v", err)
	}

	sent := ft.commands()
	if len(sent) != 1 || sent[0] != "/f @alice /tmp/photo.jpg" {
		t.Errorf("sent = %v, want [/f @alice /tmp/photo.jpg]", sent)
	}
}

func TestAdapterNormalizeContext(t *testing.T) {
	ft := &fakeTransport{}
	adapter := NewAdapter(ft, NewSender(ft, 4096, nil), "testbot")

	raw := json.RawMessage(`{
		"chatInfo": {"type": "direct", "contact": {"localDisplayName": "alice"}},
		"chatItem": {"content": {"msgContent": {"type": "text", "text": "hi"}}}
	}`)
	context, err := adapter.NormalizeContext(raw)
	if err != nil {
		t.Fatalf("NormalizeContext: %v", err)
	}
	if context.Sender != "alice" || context.Text != "hi" {
		t.Errorf("context = %+v, want sender alice with text hi", context)
	}

	if _, err := adapter.NormalizeContext(json.RawMessage(`not json`)); err == nil {
		t.Error("NormalizeContext should reject malformed payloads")
	}
}
