// Copyright 2026 The SimpleX Bot Authors
// SPDX-License-Identifier: Apache-2.0

package plugin

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/stephenmkbrady/simplex-bot/lib/clock"
)

// Registry holds the bot's plugins and routes command names to live
// instances. Loading is ordered by factory registration, so command
// collisions resolve deterministically in favor of the earlier
// plugin.
type Registry struct {
	adapter   Adapter
	platform  string
	configDir string
	disabled  map[string]bool
	clock     clock.Clock
	logger    *slog.Logger

	mu       sync.RWMutex
	order    []string
	entries  map[string]*entry
	commands map[string]*entry
}

type entry struct {
	name     string
	factory  Factory
	plugin   Plugin
	state    LifecycleState
	commands []string
	err      error
}

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	// Adapter is handed to every plugin at initialization. Required.
	Adapter Adapter

	// Platform is matched against Plugin.Platforms. Default:
	// "simplex".
	Platform string

	// ConfigDir holds per-plugin YAML config files (<name>.yml). A
	// missing file means an empty config.
	ConfigDir string

	// Disabled lists plugins that load but stay Disabled.
	Disabled []string

	// Clock defaults to the real clock.
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// NewRegistry returns an empty Registry.
func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	if cfg.Adapter == nil {
		return nil, fmt.Errorf("plugin: registry adapter is required")
	}
	if cfg.Platform == "" {
		cfg.Platform = "simplex"
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	disabled := make(map[string]bool, len(cfg.Disabled))
	for _, name := range cfg.Disabled {
		disabled[name] = true
	}

	return &Registry{
		adapter:   cfg.Adapter,
		platform:  cfg.Platform,
		configDir: cfg.ConfigDir,
		disabled:  disabled,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
		entries:   make(map[string]*entry),
		commands:  make(map[string]*entry),
	}, nil
}

// RegisterFactory adds a plugin factory under its name. Factories
// must be registered before LoadAll.
func (r *Registry) RegisterFactory(name string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("plugin: factory %q registered twice", name)
	}
	r.entries[name] = &entry{name: name, factory: factory, state: StateDiscovered}
	r.order = append(r.order, name)
	return nil
}

// LoadAll constructs, initializes, and activates every registered
// plugin in registration order. Individual failures mark that plugin
// Failed and do not abort the rest.
func (r *Registry) LoadAll() {
	r.mu.Lock()
	names := slices.Clone(r.order)
	r.mu.Unlock()

	for _, name := range names {
		if err := r.load(name); err != nil {
			r.logger.Error("plugin load failed", "plugin", name, "error", err)
		} else {
			r.logger.Info("plugin loaded", "plugin", name)
		}
	}
}

// load constructs and activates one plugin, replacing any live
// instance on success. The previous instance (if any) keeps running
// until the new one has initialized, so a failed load never takes a
// working plugin down.
func (r *Registry) load(name string) error {
	r.mu.RLock()
	target := r.entries[name]
	r.mu.RUnlock()
	if target == nil {
		return fmt.Errorf("%w: %q", ErrUnknownPlugin, name)
	}

	config, err := r.loadConfig(name)
	if err != nil {
		r.fail(name, err)
		return err
	}

	instance, err := target.factory(config)
	if err != nil {
		err = fmt.Errorf("plugin: constructing %q: %w", name, err)
		r.fail(name, err)
		return err
	}

	platforms := instance.Platforms()
	if len(platforms) > 0 && !slices.Contains(platforms, r.platform) {
		err := fmt.Errorf("plugin: %q supports platforms %v, not %q", name, platforms, r.platform)
		r.fail(name, err)
		return err
	}

	if err := instance.Initialize(r.adapter); err != nil {
		err = fmt.Errorf("plugin: initializing %q: %w", name, err)
		r.fail(name, err)
		return err
	}

	return r.activate(name, instance)
}

// activate swaps the initialized instance in under the lock: claim
// commands, replace the old instance, then clean the old one up
// outside the lock. In-flight invocations that already looked up the
// old instance finish against it.
func (r *Registry) activate(name string, instance Plugin) error {
	commands := instance.Commands()

	r.mu.Lock()
	target := r.entries[name]

	for _, command := range commands {
		if owner, taken := r.commands[command]; taken && owner.name != name {
			collision := &CollisionError{Command: command, Existing: owner.name, Incoming: name}
			if target.plugin == nil || target.state != StateActive {
				target.state = StateFailed
			}
			target.err = collision
			r.mu.Unlock()
			// The new instance never went live; tear it down.
			if cleanupErr := instance.Cleanup(); cleanupErr != nil {
				r.logger.Warn("cleanup of rejected instance failed", "plugin", name, "error", cleanupErr)
			}
			return collision
		}
	}

	previous := target.plugin
	for _, command := range target.commands {
		delete(r.commands, command)
	}

	target.plugin = instance
	target.commands = commands
	target.err = nil
	if r.disabled[name] {
		target.state = StateDisabled
	} else {
		target.state = StateActive
		for _, command := range commands {
			r.commands[command] = target
		}
	}
	r.mu.Unlock()

	if previous != nil {
		if err := previous.Cleanup(); err != nil {
			r.logger.Warn("cleanup of replaced instance failed", "plugin", name, "error", err)
		}
	}
	return nil
}

// fail marks a plugin Failed without touching a live instance: a
// failed reload leaves the previous instance serving its commands.
func (r *Registry) fail(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	target := r.entries[name]
	if target == nil {
		return
	}
	if target.plugin != nil && target.state == StateActive {
		// Keep the live instance; record the failed reload.
		target.err = err
		return
	}
	target.state = StateFailed
	target.err = err
}

// loadConfig reads configDir/<name>.yml. A missing file or
// unconfigured dir yields an empty config.
func (r *Registry) loadConfig(name string) (map[string]any, error) {
	if r.configDir == "" {
		return map[string]any{}, nil
	}

	path := filepath.Join(r.configDir, name+".yml")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		path = filepath.Join(r.configDir, name+".yaml")
		data, err = os.ReadFile(path)
	}
	if os.IsNotExist(err) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("plugin: reading config for %q: %w", name, err)
	}

	config := map[string]any{}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("plugin: parsing %s: %w", path, err)
	}
	return config, nil
}

// Reload hot-swaps one plugin: construct and initialize a fresh
// instance, atomically replace the command index entries, then tear
// down the old instance. On failure the old instance keeps serving.
func (r *Registry) Reload(name string) error {
	r.mu.RLock()
	_, known := r.entries[name]
	r.mu.RUnlock()
	if !known {
		return fmt.Errorf("%w: %q", ErrUnknownPlugin, name)
	}
	return r.load(name)
}

// Lookup resolves a command name to its active plugin.
func (r *Registry) Lookup(command string) (Plugin, string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	owner, ok := r.commands[command]
	if !ok || owner.plugin == nil {
		return nil, "", false
	}
	return owner.plugin, owner.name, true
}

// Commands returns the routable command names, sorted.
func (r *Registry) Commands() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.commands))
	for command := range r.commands {
		names = append(names, command)
	}
	slices.Sort(names)
	return names
}

// Descriptors returns a snapshot of every plugin's status in
// registration order, Failed plugins included.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descriptors := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		target := r.entries[name]
		descriptor := Descriptor{
			Name:     name,
			State:    target.state,
			Commands: slices.Clone(target.commands),
			Err:      target.err,
		}
		if target.plugin != nil {
			descriptor.Version = target.plugin.Version()
		}
		descriptors = append(descriptors, descriptor)
	}
	return descriptors
}

// Disable removes a plugin's commands from routing, keeping the
// instance alive.
func (r *Registry) Disable(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	target := r.entries[name]
	if target == nil {
		return fmt.Errorf("%w: %q", ErrUnknownPlugin, name)
	}
	if target.state != StateActive {
		return fmt.Errorf("plugin: %q is %s, not active", name, target.state)
	}
	for _, command := range target.commands {
		delete(r.commands, command)
	}
	target.state = StateDisabled
	r.disabled[name] = true
	return nil
}

// Enable restores a disabled plugin's commands to routing, subject
// to the same collision rule as loading.
func (r *Registry) Enable(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	target := r.entries[name]
	if target == nil {
		return fmt.Errorf("%w: %q", ErrUnknownPlugin, name)
	}
	if target.state != StateDisabled {
		return fmt.Errorf("plugin: %q is %s, not disabled", name, target.state)
	}
	for _, command := range target.commands {
		if owner, taken := r.commands[command]; taken {
			return &CollisionError{Command: command, Existing: owner.name, Incoming: name}
		}
	}
	for _, command := range target.commands {
		r.commands[command] = target
	}
	target.state = StateActive
	delete(r.disabled, name)
	return nil
}

// CleanupAll tears down every live instance. Used at shutdown.
func (r *Registry) CleanupAll() {
	r.mu.Lock()
	var live []*entry
	for _, target := range r.entries {
		if target.plugin != nil {
			live = append(live, target)
		}
	}
	r.mu.Unlock()

	for _, target := range live {
		if err := target.plugin.Cleanup(); err != nil {
			r.logger.Warn("plugin cleanup failed", "plugin", target.name, "error", err)
		}
	}
}
