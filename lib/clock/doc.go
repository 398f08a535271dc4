// Copyright 2026 The SimpleX Bot Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides a time abstraction with real and fake
// implementations. Components that sleep, tick, or check deadlines
// accept a Clock so tests can drive time deterministically.
package clock
