// Copyright 2026 The SimpleX Bot Authors
// SPDX-License-Identifier: Apache-2.0

// Package bot wires the runtime together: the event loop consuming
// classified transport events, the command dispatcher, the outbound
// sender with message splitting and audit logging, the plugin
// adapter, and the admin permission gate.
package bot
