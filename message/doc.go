// Copyright 2026 The SimpleX Bot Authors
// SPDX-License-Identifier: Apache-2.0

// Package message defines the normalized message model shared by the
// transport, dispatcher, and plugins: chat item wire structures, the
// single Normalize routine that decides direct versus group routing,
// the RouteTarget for outbound delivery, and the command parser.
package message
