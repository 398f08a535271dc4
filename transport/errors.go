// Copyright 2026 The SimpleX Bot Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import "errors"

var (
	// ErrConnectionLost fails pending requests when the websocket
	// connection drops before their replies arrive.
	ErrConnectionLost = errors.New("transport: connection lost")

	// ErrCorrelationTimeout fails a pending request whose reply did
	// not arrive within the request timeout.
	ErrCorrelationTimeout = errors.New("transport: request timed out")

	// ErrChannelClosed is returned by operations on a channel that
	// has shut down.
	ErrChannelClosed = errors.New("transport: channel closed")

	// ErrNotConnected is returned by sends attempted while the
	// channel has no live connection.
	ErrNotConnected = errors.New("transport: not connected")

	// ErrReconnectExhausted is returned by Run when the bounded
	// reconnection attempts are used up.
	ErrReconnectExhausted = errors.New("transport: reconnect attempts exhausted")
)
