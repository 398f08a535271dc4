// Copyright 2026 The SimpleX Bot Authors
// SPDX-License-Identifier: Apache-2.0

package transport

// EventKind is the coarse category of an inbound frame. Classification
// decides which subsystem consumes the frame; interpreting the payload
// is the consumer's job.
type EventKind int

const (
	// KindReply is a correlated response to a request the bot sent.
	KindReply EventKind = iota
	// KindMessage is an incoming chat message (new chat items).
	KindMessage
	// KindContact is a contact lifecycle event (request, connected).
	KindContact
	// KindFile is a file transfer event.
	KindFile
	// KindUnknown is any frame the classifier does not recognize.
	// Unknown frames are surfaced for logging, never dropped silently.
	KindUnknown
)

// String returns the kind name for logging.
func (k EventKind) String() string {
	switch k {
	case KindReply:
		return "reply"
	case KindMessage:
		return "message"
	case KindContact:
		return "contact"
	case KindFile:
		return "file"
	default:
		return "unknown"
	}
}

// Event is a classified inbound frame.
type Event struct {
	Kind  EventKind
	Frame InboundFrame
}

// Classify assigns an inbound frame to its consumer. A non-empty
// corrId always means a reply, regardless of the payload type;
// everything else is classified by the payload's type discriminator.
// Classify is a pure function of the frame.
func Classify(frame InboundFrame) Event {
	if frame.CorrID != "" {
		return Event{Kind: KindReply, Frame: frame}
	}

	switch frame.Type {
	case "newChatItem", "newChatItems":
		return Event{Kind: KindMessage, Frame: frame}
	case "contactRequest", "receivedContactRequest", "contactConnected":
		return Event{Kind: KindContact, Frame: frame}
	case "rcvFileComplete", "rcvFileDescrReady", "rcvFileStart", "rcvFileAccepted":
		return Event{Kind: KindFile, Frame: frame}
	default:
		return Event{Kind: KindUnknown, Frame: frame}
	}
}
