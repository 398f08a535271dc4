// Copyright 2026 The SimpleX Bot Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"encoding/json"
	"fmt"
)

// OutboundFrame is one command sent to the CLI.
type OutboundFrame struct {
	CorrID string `json:"corrId"`
	Cmd    string `json:"cmd"`
}

// InboundFrame is one decoded frame received from the CLI. The CLI
// wraps response payloads in an Either: {"resp": {"Right": {...}}}
// for success and {"resp": {"Left": {...}}} for errors. Unsolicited
// events arrive the same way with an empty corrId.
type InboundFrame struct {
	// CorrID is non-empty for replies to correlated requests.
	CorrID string

	// Type is the payload's "type" discriminator, e.g. "newChatItem".
	Type string

	// Payload is the unwrapped response payload.
	Payload json.RawMessage

	// Err is set when the CLI reported an error (a Left payload).
	Err *CLIError
}

// CLIError is an error payload reported by the CLI.
type CLIError struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"-"`
}

func (e *CLIError) Error() string {
	if e.Type == "" {
		return "transport: CLI error"
	}
	return fmt.Sprintf("transport: CLI error: %s", e.Type)
}

// DecodeFrame parses one websocket message into an InboundFrame,
// unwrapping the Either layer. Frames whose resp carries no Either
// wrapper (older CLI versions) are treated as Right payloads.
func DecodeFrame(data []byte) (InboundFrame, error) {
	var raw struct {
		CorrID string          `json:"corrId"`
		Resp   json.RawMessage `json:"resp"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return InboundFrame{}, fmt.Errorf("transport: decoding frame: %w", err)
	}

	frame := InboundFrame{CorrID: raw.CorrID}
	if len(raw.Resp) == 0 {
		return frame, nil
	}

	var either struct {
		Right json.RawMessage `json:"Right"`
		Left  json.RawMessage `json:"Left"`
	}
	if err := json.Unmarshal(raw.Resp, &either); err != nil {
		return InboundFrame{}, fmt.Errorf("transport: decoding response: %w", err)
	}

	switch {
	case len(either.Left) != 0:
		cliError := &CLIError{Payload: either.Left}
		var discriminator struct {
			Type string `json:"type"`
		}
		// Best effort: an unparseable error payload still errors.
		_ = json.Unmarshal(either.Left, &discriminator)
		cliError.Type = discriminator.Type
		frame.Err = cliError
		frame.Payload = either.Left
	case len(either.Right) != 0:
		frame.Payload = either.Right
	default:
		frame.Payload = raw.Resp
	}

	if frame.Err == nil {
		var discriminator struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(frame.Payload, &discriminator); err != nil {
			return InboundFrame{}, fmt.Errorf("transport: decoding payload type: %w", err)
		}
		frame.Type = discriminator.Type
	}

	return frame, nil
}
