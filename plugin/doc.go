// Copyright 2026 The SimpleX Bot Authors
// SPDX-License-Identifier: Apache-2.0

// Package plugin manages the bot's command plugins: the Plugin
// interface, the registry with its command index, lifecycle states,
// hot reload by instance replacement, and the config-file watcher
// that triggers reloads.
package plugin
