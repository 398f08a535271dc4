// Copyright 2026 The SimpleX Bot Authors
// SPDX-License-Identifier: Apache-2.0

// Package supervisor manages the simplex-chat CLI process: launch,
// readiness probing, restart with bounded failures, and graceful
// shutdown. In external mode (no command configured) it only probes
// the endpoint and signals readiness.
package supervisor
