// Copyright 2026 The SimpleX Bot Authors
// SPDX-License-Identifier: Apache-2.0

// Package builtin provides the plugins compiled into the bot: core
// chat commands (help, echo, ping, status, plugins, reload) and admin
// commands for contact management (invite, contacts).
package builtin
