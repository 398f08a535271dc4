// Copyright 2026 The SimpleX Bot Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"github.com/stephenmkbrady/simplex-bot/lib/config"
)

// AdminGate decides who may run which command. With no admins
// configured every command is public. Otherwise a command is allowed
// when it is listed as public, or when the sender's admin entry
// grants it (directly or via the "*" wildcard).
type AdminGate struct {
	admins map[string]map[string]bool
	public map[string]bool
}

// NewAdminGate builds a gate from the admin config section.
func NewAdminGate(cfg config.AdminConfig) *AdminGate {
	gate := &AdminGate{
		admins: make(map[string]map[string]bool, len(cfg.Admins)),
		public: make(map[string]bool, len(cfg.PublicCommands)),
	}
	for name, commands := range cfg.Admins {
		granted := make(map[string]bool, len(commands))
		for _, command := range commands {
			granted[command] = true
		}
		gate.admins[name] = granted
	}
	for _, command := range cfg.PublicCommands {
		gate.public[command] = true
	}
	return gate
}

// Allowed reports whether sender may run command.
func (g *AdminGate) Allowed(sender, command string) bool {
	if len(g.admins) == 0 {
		return true
	}
	if g.public[command] {
		return true
	}
	granted, isAdmin := g.admins[sender]
	if !isAdmin {
		return false
	}
	return granted["*"] || granted[command]
}

// IsAdmin reports whether sender has any admin entry.
func (g *AdminGate) IsAdmin(sender string) bool {
	_, ok := g.admins[sender]
	return ok
}
