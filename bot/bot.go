// Copyright 2026 The SimpleX Bot Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/stephenmkbrady/simplex-bot/files"
	"github.com/stephenmkbrady/simplex-bot/message"
	"github.com/stephenmkbrady/simplex-bot/transport"
)

// Bot consumes classified transport events and routes them: messages
// to the command dispatcher, contact events to auto-accept handling,
// file events to the download manager.
type Bot struct {
	name       string
	events     <-chan transport.Event
	transport  Transport
	dispatcher *Dispatcher
	sender     *Sender
	files      *files.Manager
	autoAccept bool
	logger     *slog.Logger
}

// Options configures a Bot.
type Options struct {
	// Name is the bot's display name.
	Name string

	// Events is the transport's classified event stream. Required.
	Events <-chan transport.Event

	// Transport issues CLI commands. Required.
	Transport Transport

	// Dispatcher routes commands. Required.
	Dispatcher *Dispatcher

	// Sender delivers chat messages. Required.
	Sender *Sender

	// Files handles downloads. Nil disables file handling.
	Files *files.Manager

	// AutoAcceptContacts accepts incoming contact requests.
	AutoAcceptContacts bool

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// New returns a Bot.
func New(opts Options) (*Bot, error) {
	if opts.Events == nil || opts.Transport == nil || opts.Dispatcher == nil || opts.Sender == nil {
		return nil, fmt.Errorf("bot: events, transport, dispatcher, and sender are required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Bot{
		name:       opts.Name,
		events:     opts.Events,
		transport:  opts.Transport,
		dispatcher: opts.Dispatcher,
		sender:     opts.Sender,
		files:      opts.Files,
		autoAccept: opts.AutoAcceptContacts,
		logger:     opts.Logger,
	}, nil
}

// Run consumes events until ctx is done or the event stream closes,
// then waits for in-flight command invocations to finish.
func (b *Bot) Run(ctx context.Context) error {
	defer b.dispatcher.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-b.events:
			if !ok {
				return nil
			}
			switch event.Kind {
			case transport.KindMessage:
				b.handleMessage(ctx, event.Frame)
			case transport.KindContact:
				b.handleContact(ctx, event.Frame)
			case transport.KindFile:
				b.handleFile(ctx, event.Frame)
			default:
				b.logger.Warn("unrecognized event", "type", event.Frame.Type)
			}
		}
	}
}

// handleMessage fans a chat item batch out to the dispatcher. Items
// the bot itself sent are skipped.
func (b *Bot) handleMessage(ctx context.Context, frame transport.InboundFrame) {
	envelopes, err := message.DecodeChatItems(frame.Payload)
	if err != nil {
		b.logger.Warn("undecodable chat items", "error", err)
		return
	}

	for _, envelope := range envelopes {
		if strings.HasSuffix(envelope.Item.ChatDir.Type, "Snd") {
			continue
		}

		context, err := message.Normalize(envelope)
		if err != nil {
			b.logger.Warn("unroutable chat item", "error", err)
			continue
		}
		b.sender.RecordInbound(context)

		if context.File != nil {
			b.acceptAttachment(ctx, context)
		}

		command, ok := message.ParseCommand(context)
		if !ok {
			continue
		}
		b.dispatcher.Dispatch(ctx, command)
	}
}

// acceptAttachment requests the transfer of a message's file
// attachment when it passes policy.
func (b *Bot) acceptAttachment(ctx context.Context, context message.Context) {
	if b.files == nil {
		b.logger.Debug("file handling disabled, ignoring attachment",
			"file", context.File.FileName)
		return
	}
	if err := b.files.Validate(*context.File); err != nil {
		b.logger.Warn("attachment rejected", "file", context.File.FileName, "error", err)
		text := fmt.Sprintf("File %s rejected: %v", context.File.FileName, err)
		if sendErr := b.sender.SendText(ctx, context.Target, text); sendErr != nil {
			b.logger.Warn("rejection notice failed", "error", sendErr)
		}
		return
	}
	command := "/freceive " + strconv.FormatInt(context.File.FileID, 10)
	if err := b.transport.Send(ctx, command); err != nil {
		b.logger.Warn("file receive request failed", "file", context.File.FileName, "error", err)
	}
}

// handleContact processes contact lifecycle events: accept incoming
// requests when configured, greet newly connected contacts.
func (b *Bot) handleContact(ctx context.Context, frame transport.InboundFrame) {
	var event struct {
		ContactRequest struct {
			ContactRequestID int64  `json:"contactRequestId"`
			LocalDisplayName string `json:"localDisplayName"`
		} `json:"contactRequest"`
		Contact struct {
			LocalDisplayName string `json:"localDisplayName"`
		} `json:"contact"`
	}
	if err := json.Unmarshal(frame.Payload, &event); err != nil {
		b.logger.Warn("undecodable contact event", "type", frame.Type, "error", err)
		return
	}

	switch frame.Type {
	case "contactRequest", "receivedContactRequest":
		name := event.ContactRequest.LocalDisplayName
		if !b.autoAccept {
			b.logger.Info("contact request ignored (auto-accept disabled)", "contact", name)
			return
		}
		command := "/ac " + strconv.FormatInt(event.ContactRequest.ContactRequestID, 10)
		if err := b.transport.Send(ctx, command); err != nil {
			b.logger.Warn("contact accept failed", "contact", name, "error", err)
			return
		}
		b.logger.Info("contact request accepted", "contact", name)

	case "contactConnected":
		name := event.Contact.LocalDisplayName
		b.logger.Info("contact connected", "contact", name)
		if name == "" {
			return
		}
		greeting := fmt.Sprintf("Hello! I'm %s. Send %shelp to see what I can do.",
			b.name, message.CommandPrefix)
		target := message.RouteTarget{Kind: message.DirectChat, Name: name}
		if err := b.sender.SendText(ctx, target, greeting); err != nil {
			b.logger.Warn("greeting failed", "contact", name, "error", err)
		}
	}
}

// handleFile processes file transfer events. XFTP downloads run on
// their own goroutine; a multi-minute transfer must not stall the
// event loop.
func (b *Bot) handleFile(ctx context.Context, frame transport.InboundFrame) {
	if b.files == nil {
		b.logger.Debug("file handling disabled, ignoring event", "type", frame.Type)
		return
	}

	switch frame.Type {
	case "rcvFileDescrReady":
		payload := frame.Payload
		go func() {
			stored, err := b.files.HandleDescrReady(ctx, payload)
			if err != nil {
				b.logger.Warn("file download failed", "error", err)
				return
			}
			if stored != "" {
				b.logger.Info("file downloaded", "path", stored)
			}
		}()

	case "rcvFileComplete":
		b.logger.Info("file transfer complete")

	default:
		b.logger.Debug("file event", "type", frame.Type)
	}
}
