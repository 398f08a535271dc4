// Copyright 2026 The SimpleX Bot Authors
// SPDX-License-Identifier: Apache-2.0

// simplex-bot is a chat bot for the SimpleX messaging network. It
// supervises (or attaches to) a simplex-chat CLI process, speaks the
// CLI's websocket protocol, and routes !-prefixed chat commands to
// compiled-in plugins.
package main
