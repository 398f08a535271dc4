// Copyright 2026 The SimpleX Bot Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stephenmkbrady/simplex-bot/files"
	"github.com/stephenmkbrady/simplex-bot/lib/config"
	"github.com/stephenmkbrady/simplex-bot/message"
	"github.com/stephenmkbrady/simplex-bot/transport"
)

type botHarness struct {
	transport *fakeTransport
	events    chan transport.Event
	done      chan error
}

type botHarnessOptions struct {
	autoAccept bool
	files      *files.Manager
	plugins    []*fakePlugin
}

func newBotHarness(t *testing.T, opts botHarnessOptions) *botHarness {
	t.Helper()

	dispatch := newDispatchHarness(t, config.AdminConfig{}, 0, nil, opts.plugins...)
	events := make(chan transport.Event, 16)

	bot, err := New(Options{
		Name:               "testbot",
		Events:             events,
		Transport:          dispatch.transport,
		Dispatcher:         dispatch.dispatcher,
		Sender:             dispatch.sender,
		Files:              opts.files,
		AutoAcceptContacts: opts.autoAccept,
		Logger:             discardLogger(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- bot.Run(context.Background()) }()

	return &botHarness{transport: dispatch.transport, events: events, done: done}
}

// finish closes the event stream and waits for the run loop (and all
// in-flight invocations) to drain.
func (h *botHarness) finish(t *testing.T) {
	t.Helper()
	close(h.events)
	select {
	case err := <-h.done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after the event stream closed")
	}
}

func chatItemEvent(t *testing.T, envelope message.ChatItemEnvelope) transport.Event {
	t.Helper()
	payload, err := json.Marshal(struct {
		Type     string                   `json:"type"`
		ChatItem message.ChatItemEnvelope `json:"chatItem"`
	}{"newChatItem", envelope})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	return transport.Event{
		Kind:  transport.KindMessage,
		Frame: transport.InboundFrame{Type: "newChatItem", Payload: payload},
	}
}

func directItem(text string, file *message.FileRef) message.ChatItemEnvelope {
	return message.ChatItemEnvelope{
		ChatInfo: message.ChatInfo{
			Type:    "direct",
			Contact: &message.Contact{ContactID: 1, LocalDisplayName: "alice"},
		},
		Item: message.ChatItem{
			ChatDir: message.ChatDir{Type: "directRcv"},
			Content: message.ItemContent{
				Type:       "rcvMsgContent",
				MsgContent: &message.MsgContent{Type: "text", Text: text},
			},
			File: file,
		},
	}
}

func contactEvent(eventType string, body string) transport.Event {
	payload := fmt.Sprintf(`{"type": %q, %s}`, eventType, body)
	return transport.Event{
		Kind:  transport.KindContact,
		Frame: transport.InboundFrame{Type: eventType, Payload: json.RawMessage(payload)},
	}
}

func TestBotDispatchesCommandMessage(t *testing.T) {
	echo := &fakePlugin{
		name:     "core",
		commands: []string{"echo"},
		handle: func(ctx context.Context, command message.Command) (string, error) {
			return command.ArgString, nil
		},
	}
	h := newBotHarness(t, botHarnessOptions{plugins: []*fakePlugin{echo}})

	h.events <- chatItemEvent(t, directItem("!echo hello there", nil))
	h.finish(t)

	sent := h.transport.commands()
	if len(sent) != 1 || sent[0] != "@alice hello there" {
		t.Errorf("sent = %v, want [@alice hello there]", sent)
	}
}

func TestBotIgnoresPlainChatter(t *testing.T) {
	h := newBotHarness(t, botHarnessOptions{})

	h.events <- chatItemEvent(t, directItem("just chatting, no command", nil))
	h.finish(t)

	if sent := h.transport.commands(); len(sent) != 0 {
		t.Errorf("sent = %v, want nothing for a non-command message", sent)
	}
}

func TestBotSkipsOwnMessages(t *testing.T) {
	h := newBotHarness(t, botHarnessOptions{})

	envelope := directItem("!echo should never dispatch", nil)
	envelope.Item.ChatDir.Type = "directSnd"
	h.events <- chatItemEvent(t, envelope)
	h.finish(t)

	if sent := h.transport.commands(); len(sent) != 0 {
		t.Errorf("sent = %v, want nothing for the bot's own message", sent)
	}
}

func TestBotAutoAcceptsContactRequest(t *testing.T) {
	h := newBotHarness(t, botHarnessOptions{autoAccept: true})

	h.events <- contactEvent("contactRequest",
		`"contactRequest": {"contactRequestId": 7, "localDisplayName": "bob"}`)
	h.finish(t)

	sent := h.transport.commands()
	if len(sent) != 1 || sent[0] != "/ac 7" {
		t.Errorf("sent = %v, want [/ac 7]", sent)
	}
}

func TestBotIgnoresContactRequestWhenDisabled(t *testing.T) {
	h := newBotHarness(t, botHarnessOptions{autoAccept: false})

	h.events <- contactEvent("contactRequest",
		`"contactRequest": {"contactRequestId": 7, "localDisplayName": "bob"}`)
	h.finish(t)

	if sent := h.transport.commands(); len(sent) != 0 {
		t.Errorf("sent = %v, want no accept command", sent)
	}
}

func TestBotGreetsConnectedContact(t *testing.T) {
	h := newBotHarness(t, botHarnessOptions{})

	h.events <- contactEvent("contactConnected",
		`"contact": {"localDisplayName": "bob"}`)
	h.finish(t)

	sent := h.transport.commands()
	if len(sent) != 1 || !strings.HasPrefix(sent[0], "@bob Hello! I'm testbot") {
		t.Errorf("sent = %v, want a greeting to bob", sent)
	}
}

func TestBotRequestsValidAttachment(t *testing.T) {
	manager, err := files.NewManager(files.Config{Root: t.TempDir(), MaxSize: 1024})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	h := newBotHarness(t, botHarnessOptions{files: manager})

	file := &message.FileRef{FileID: 42, FileName: "photo.jpg", FileSize: 512}
	h.events <- chatItemEvent(t, directItem("", file))
	h.finish(t)

	sent := h.transport.commands()
	if len(sent) != 1 || sent[0] != "/freceive 42" {
		t.Errorf("sent = %v, want [/freceive 42]", sent)
	}
}

func TestBotRejectsOversizedAttachment(t *testing.T) {
	manager, err := files.NewManager(files.Config{Root: t.TempDir(), MaxSize: 100})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	h := newBotHarness(t, botHarnessOptions{files: manager})

	file := &message.FileRef{FileID: 42, FileName: "big.bin", FileSize: 5000}
	h.events <- chatItemEvent(t, directItem("", file))
	h.finish(t)

	sent := h.transport.commands()
	if len(sent) != 1 || !strings.Contains(sent[0], "rejected") {
		t.Errorf("sent = %v, want one rejection notice", sent)
	}
	for _, command := range sent {
		if strings.HasPrefix(command, "/freceive") {
			t.Errorf("sent %q, oversize file must not be received", command)
		}
	}
}

func TestBotIgnoresAttachmentWithoutFileHandling(t *testing.T) {
	h := newBotHarness(t, botHarnessOptions{})

	file := &message.FileRef{FileID: 42, FileName: "photo.jpg", FileSize: 512}
	h.events <- chatItemEvent(t, directItem("", file))
	h.finish(t)

	if sent := h.transport.commands(); len(sent) != 0 {
		t.Errorf("sent = %v, want nothing with file handling disabled", sent)
	}
}
