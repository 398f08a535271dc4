// Copyright 2026 The SimpleX Bot Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"testing"

	"github.com/stephenmkbrady/simplex-bot/lib/config"
)

func TestAdminGateNoAdminsAllowsEveryone(t *testing.T) {
	gate := NewAdminGate(config.AdminConfig{})
	if !gate.Allowed("anyone", "invite") {
		t.Error("with no admins configured, every command should be allowed")
	}
}

func TestAdminGateWildcard(t *testing.T) {
	gate := NewAdminGate(config.AdminConfig{
		Admins: config.AdminList{"alice": {"*"}},
	})
	if !gate.Allowed("alice", "invite") {
		t.Error("wildcard admin should run any command")
	}
	if gate.Allowed("mallory", "invite") {
		t.Error("non-admin should be denied once admins are configured")
	}
}

func TestAdminGateCommandList(t *testing.T) {
	gate := NewAdminGate(config.AdminConfig{
		Admins: config.AdminList{"bob": {"invite", "contacts"}},
	})
	if !gate.Allowed("bob", "invite") {
		t.Error("listed command should be allowed")
	}
	if gate.Allowed("bob", "admin") {
		t.Error("unlisted command should be denied")
	}
}

func TestAdminGatePublicCommands(t *testing.T) {
	gate := NewAdminGate(config.AdminConfig{
		Admins:         config.AdminList{"alice": {"*"}},
		PublicCommands: []string{"help", "echo"},
	})
	if !gate.Allowed("mallory", "help") {
		t.Error("public command should be allowed for anyone")
	}
	if gate.Allowed("mallory", "invite") {
		t.Error("non-public command should be denied for non-admins")
	}
}

func TestAdminGateIsAdmin(t *testing.T) {
	gate := NewAdminGate(config.AdminConfig{
		Admins: config.AdminList{"alice": {"*"}},
	})
	if !gate.IsAdmin("alice") {
		t.Error("alice should be an admin")
	}
	if gate.IsAdmin("bob") {
		t.Error("bob should not be an admin")
	}
}
