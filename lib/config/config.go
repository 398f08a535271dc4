// Copyright 2026 The SimpleX Bot Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the bot.
//
// Configuration is loaded from a single file specified by:
//   - BOT_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This ensures deterministic,
// auditable configuration with no hidden overrides. The only expansion
// performed on values is ${VAR} and ${VAR:-default} substitution.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration for the bot.
type Config struct {
	// Name is the bot's display name, used in status replies and the
	// message audit log.
	Name string `yaml:"name"`

	// WebsocketURL is the address of the simplex-chat CLI websocket
	// server, e.g. ws://localhost:3030.
	WebsocketURL string `yaml:"websocket_url"`

	// AutoAcceptContacts enables automatic acceptance of incoming
	// contact requests.
	AutoAcceptContacts bool `yaml:"auto_accept_contacts"`

	// MessageLog is the path of the message audit log. Empty disables
	// the audit log.
	MessageLog string `yaml:"message_log"`

	// Server configures the supervised simplex-chat process.
	Server ServerConfig `yaml:"server"`

	// Transport configures the websocket channel and correlation
	// registry.
	Transport TransportConfig `yaml:"transport"`

	// Dispatcher configures command dispatch.
	Dispatcher DispatcherConfig `yaml:"dispatcher"`

	// Plugins configures the plugin registry.
	Plugins PluginsConfig `yaml:"plugins"`

	// Admin configures command permissions.
	Admin AdminConfig `yaml:"admin"`

	// Media configures file downloads.
	Media MediaConfig `yaml:"media"`
}

// ServerConfig configures the supervised simplex-chat CLI process.
// When Command is empty the process is managed externally (a container
// sidecar) and the supervisor only probes for readiness.
type ServerConfig struct {
	// Command is the simplex-chat binary. Empty means the process is
	// managed outside the bot.
	Command string `yaml:"command"`

	// Args are additional arguments passed to Command. The database
	// path and port are always appended from the fields below.
	Args []string `yaml:"args"`

	// DatabasePath is the simplex-chat database prefix.
	DatabasePath string `yaml:"database_path"`

	// Port is the websocket port the CLI listens on.
	Port int `yaml:"port"`

	// ProbeInterval is the delay between readiness probes.
	// Default: 2s.
	ProbeInterval Duration `yaml:"probe_interval"`

	// ProbeAttempts is the number of readiness probes before startup
	// fails. Default: 30.
	ProbeAttempts int `yaml:"probe_attempts"`

	// StopGracePeriod is how long to wait after SIGTERM before
	// sending SIGKILL. Default: 10s.
	StopGracePeriod Duration `yaml:"stop_grace_period"`

	// MaxRestarts is the number of consecutive restart failures
	// tolerated before the supervisor gives up. Default: 5.
	MaxRestarts int `yaml:"max_restarts"`
}

// TransportConfig configures the websocket channel.
type TransportConfig struct {
	// RequestTimeout is how long a correlated request waits for its
	// reply before failing. Default: 30s.
	RequestTimeout Duration `yaml:"request_timeout"`

	// SweepInterval is how often the correlation registry scans for
	// expired pending requests. Default: 1s.
	SweepInterval Duration `yaml:"sweep_interval"`

	// MaxMessageLength is the longest chat message sent as a single
	// frame; longer messages are split. Default: 4096.
	MaxMessageLength int `yaml:"max_message_length"`

	// ReconnectMaxAttempts bounds reconnection attempts after a
	// connection loss. Default: 10.
	ReconnectMaxAttempts int `yaml:"reconnect_max_attempts"`

	// ReconnectBaseDelay is the first reconnect backoff delay; the
	// delay doubles per attempt. Default: 2s.
	ReconnectBaseDelay Duration `yaml:"reconnect_base_delay"`

	// ReconnectMaxDelay caps the reconnect backoff. Default: 60s.
	ReconnectMaxDelay Duration `yaml:"reconnect_max_delay"`

	// IdleTimeout marks the connection degraded when nothing has been
	// read for this long. Zero disables idle tracking. Default: 5m.
	IdleTimeout Duration `yaml:"idle_timeout"`
}

// DispatcherConfig configures command dispatch.
type DispatcherConfig struct {
	// CommandTimeout bounds a single handler invocation's wall-clock
	// time. Zero disables the budget.
	CommandTimeout Duration `yaml:"command_timeout"`
}

// PluginsConfig configures the plugin registry.
type PluginsConfig struct {
	// ConfigDir holds per-plugin YAML config files (<name>.yml).
	ConfigDir string `yaml:"config_dir"`

	// Disabled lists plugin names that are constructed but not
	// activated.
	Disabled []string `yaml:"disabled"`

	// HotReload enables watching ConfigDir for config changes and
	// reloading the affected plugin.
	HotReload bool `yaml:"hot_reload"`
}

// AdminConfig configures command permissions.
type AdminConfig struct {
	// Admins maps a display name to the commands that user may run.
	// A "*" entry grants every command. In YAML the value accepts
	// either a plain list of names (each granted "*") or a map of
	// name to command list.
	Admins AdminList `yaml:"admins"`

	// PublicCommands may be run by anyone regardless of the admin
	// list. When no admins are configured, every command is public.
	PublicCommands []string `yaml:"public_commands"`
}

// AdminList maps admin display names to allowed commands.
//
// Two YAML shapes are accepted:
//
//	admins: [alice, bob]          # both granted all commands
//	admins:
//	  alice: ["*"]
//	  bob: [invite, contacts]
type AdminList map[string][]string

// UnmarshalYAML accepts the list and map shapes described above.
func (a *AdminList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var names []string
		if err := value.Decode(&names); err != nil {
			return err
		}
		result := make(AdminList, len(names))
		for _, name := range names {
			result[name] = []string{"*"}
		}
		*a = result
		return nil
	case yaml.MappingNode:
		var byName map[string][]string
		if err := value.Decode(&byName); err != nil {
			return err
		}
		*a = AdminList(byName)
		return nil
	default:
		return fmt.Errorf("config: admins must be a list of names or a map of name to commands")
	}
}

// MediaConfig configures file downloads.
type MediaConfig struct {
	// Enabled turns file downloading on. When false, incoming files
	// are acknowledged but not fetched.
	Enabled bool `yaml:"enabled"`

	// DownloadPath is the root directory for downloaded files.
	DownloadPath string `yaml:"download_path"`

	// MaxFileSize is the largest accepted file. Accepts "100MB"
	// style values. Default: 100MB.
	MaxFileSize Size `yaml:"max_file_size"`

	// AllowedTypes lists the accepted file kinds: image, video,
	// audio, document. Empty means all kinds.
	AllowedTypes []string `yaml:"allowed_types"`

	// XFTPCommand is the xftp CLI binary used to receive files.
	// Default: xftp.
	XFTPCommand string `yaml:"xftp_command"`

	// XFTPTimeout bounds a single xftp receive. Default: 5m.
	XFTPTimeout Duration `yaml:"xftp_timeout"`
}

// Duration wraps time.Duration with YAML unmarshalling from "30s"
// style strings.
type Duration time.Duration

// UnmarshalYAML parses a time.ParseDuration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Size is a byte count with YAML unmarshalling from "100MB" style
// strings. Plain integers are taken as bytes.
type Size int64

var sizePattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*([KMGT]?B)?$`)

var sizeUnits = map[string]int64{
	"":   1,
	"B":  1,
	"KB": 1 << 10,
	"MB": 1 << 20,
	"GB": 1 << 30,
	"TB": 1 << 40,
}

// ParseSize parses "100MB" style size strings.
func ParseSize(raw string) (Size, error) {
	match := sizePattern.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(raw)))
	if match == nil {
		return 0, fmt.Errorf("config: invalid size %q", raw)
	}
	var value float64
	if _, err := fmt.Sscanf(match[1], "%g", &value); err != nil {
		return 0, fmt.Errorf("config: invalid size %q: %w", raw, err)
	}
	return Size(value * float64(sizeUnits[match[2]])), nil
}

// UnmarshalYAML parses a size string or plain byte count.
func (s *Size) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := ParseSize(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Default returns the default configuration. These defaults are used
// as a base before loading the config file; the file is still
// required for anything deployment-specific.
func Default() *Config {
	return &Config{
		Name:         "simplex-bot",
		WebsocketURL: "ws://localhost:3030",
		Server: ServerConfig{
			DatabasePath:    "./simplex_bot_data",
			Port:            3030,
			ProbeInterval:   Duration(2 * time.Second),
			ProbeAttempts:   30,
			StopGracePeriod: Duration(10 * time.Second),
			MaxRestarts:     5,
		},
		Transport: TransportConfig{
			RequestTimeout:       Duration(30 * time.Second),
			SweepInterval:        Duration(time.Second),
			MaxMessageLength:     4096,
			ReconnectMaxAttempts: 10,
			ReconnectBaseDelay:   Duration(2 * time.Second),
			ReconnectMaxDelay:    Duration(60 * time.Second),
			IdleTimeout:          Duration(5 * time.Minute),
		},
		Plugins: PluginsConfig{
			ConfigDir: "./plugin_config",
			HotReload: true,
		},
		Media: MediaConfig{
			DownloadPath: "./media",
			MaxFileSize:  Size(100 << 20),
			XFTPCommand:  "xftp",
			XFTPTimeout:  Duration(5 * time.Minute),
		},
	}
}

// Load loads configuration from the BOT_CONFIG environment variable.
//
// There are no fallbacks: if BOT_CONFIG is not set, this fails.
func Load() (*Config, error) {
	configPath := os.Getenv("BOT_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("BOT_CONFIG environment variable not set; " +
			"set it to the path of your config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment
// variables do not override config values; the only expansion
// performed is ${VAR} and ${VAR:-default} substitution in string
// values, for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in
// string-valued fields.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.WebsocketURL = expandVars(c.WebsocketURL, vars)
	c.MessageLog = expandVars(c.MessageLog, vars)
	c.Server.Command = expandVars(c.Server.Command, vars)
	c.Server.DatabasePath = expandVars(c.Server.DatabasePath, vars)
	c.Plugins.ConfigDir = expandVars(c.Plugins.ConfigDir, vars)
	c.Media.DownloadPath = expandVars(c.Media.DownloadPath, vars)
	c.Media.XFTPCommand = expandVars(c.Media.XFTPCommand, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.Name == "" {
		errs = append(errs, fmt.Errorf("name is required"))
	}
	if c.WebsocketURL == "" {
		errs = append(errs, fmt.Errorf("websocket_url is required"))
	} else if !strings.HasPrefix(c.WebsocketURL, "ws://") && !strings.HasPrefix(c.WebsocketURL, "wss://") {
		errs = append(errs, fmt.Errorf("websocket_url must start with ws:// or wss://"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be in 1..65535"))
	}
	if c.Server.ProbeAttempts <= 0 {
		errs = append(errs, fmt.Errorf("server.probe_attempts must be positive"))
	}
	if c.Transport.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("transport.request_timeout must be positive"))
	}
	if c.Transport.SweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("transport.sweep_interval must be positive"))
	}
	if c.Transport.MaxMessageLength <= 0 {
		errs = append(errs, fmt.Errorf("transport.max_message_length must be positive"))
	}
	if c.Transport.ReconnectBaseDelay <= 0 {
		errs = append(errs, fmt.Errorf("transport.reconnect_base_delay must be positive"))
	}
	if c.Transport.ReconnectMaxDelay < c.Transport.ReconnectBaseDelay {
		errs = append(errs, fmt.Errorf("transport.reconnect_max_delay must be >= reconnect_base_delay"))
	}
	if c.Media.Enabled && c.Media.DownloadPath == "" {
		errs = append(errs, fmt.Errorf("media.download_path is required when media.enabled"))
	}
	for _, kind := range c.Media.AllowedTypes {
		switch kind {
		case "image", "video", "audio", "document":
		default:
			errs = append(errs, fmt.Errorf("media.allowed_types: unknown kind %q", kind))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates configured directories if they don't exist.
func (c *Config) EnsurePaths() error {
	paths := []string{
		c.Plugins.ConfigDir,
	}
	if c.Media.Enabled {
		paths = append(paths, c.Media.DownloadPath)
	}
	if c.MessageLog != "" {
		paths = append(paths, filepath.Dir(c.MessageLog))
	}

	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("config: creating %s: %w", path, err)
		}
	}
	return nil
}
