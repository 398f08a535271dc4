// Copyright 2026 The SimpleX Bot Authors
// SPDX-License-Identifier: Apache-2.0

// Package files handles incoming file transfers: validation against
// size and type policy, collision-safe filenames, per-kind storage
// directories, and XFTP downloads driven through the xftp CLI.
package files
