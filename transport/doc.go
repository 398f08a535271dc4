// Copyright 2026 The SimpleX Bot Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport maintains the websocket control channel to the
// simplex-chat CLI: frame encoding, the correlation registry that
// pairs replies with requests, inbound event classification, and
// reconnection with exponential backoff.
package transport
