// Package config provides configuration management for the macro recorder.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ErrInvalid is returned by Validate for settings the engine cannot run with.
var ErrInvalid = errors.New("invalid configuration")

// Config represents the application configuration
type Config struct {
	// Device selects the input device loaded at startup
	Device DeviceConfig `json:"device"`

	// Playback contains replay pacing settings
	Playback PlaybackConfig `json:"playback"`

	// Recording contains capture settings
	Recording RecordingConfig `json:"recording"`

	// API contains the HTTP/websocket control server settings
	API APIConfig `json:"api"`

	// Logging contains log output settings
	Logging LoggingConfig `json:"logging"`

	// UI selects the local front-ends
	UI UIConfig `json:"ui"`
}

// DeviceConfig selects the startup device
type DeviceConfig struct {
	// Path is an evdev node such as /dev/input/event3 (optional)
	Path string `json:"path,omitempty"`

	// Virtual loads the synthetic replay-only device when Path is empty
	Virtual bool `json:"virtual"`
}

// PlaybackConfig contains replay pacing settings
type PlaybackConfig struct {
	// TickIntervalMS is the period of the host loop in milliseconds
	TickIntervalMS int `json:"tick_interval_ms"`

	// SkipMarginMS drops events emitted later than their delay plus this
	// margin. Zero never drops events.
	SkipMarginMS int `json:"skip_margin_ms"`

	// TrailingSync writes an EV_SYN/SYN_REPORT after the last replayed event
	TrailingSync bool `json:"trailing_sync"`
}

// RecordingConfig contains capture settings
type RecordingConfig struct {
	// MaxEvents bounds the captured sequence. Zero means unbounded.
	MaxEvents int `json:"max_events"`
}

// APIConfig contains the control server settings
type APIConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port"`
	Token   string `json:"token,omitempty"`
}

// LoggingConfig contains log output settings
type LoggingConfig struct {
	// Level is debug, info, warn or error
	Level string `json:"level"`

	// Format is text or json
	Format string `json:"format"`
}

// UIConfig selects the local front-ends
type UIConfig struct {
	// Tray shows the system tray menu
	Tray bool `json:"tray"`

	// ConsoleBindings enables single-key commands on the controlling terminal
	ConsoleBindings bool `json:"console_bindings"`
}

// DefaultConfig returns a new Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Playback: PlaybackConfig{
			TickIntervalMS: 5,
			TrailingSync:   true,
		},
		Recording: RecordingConfig{
			MaxEvents: 1_000_000,
		},
		API: APIConfig{
			Port: 18090,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		UI: UIConfig{
			Tray: true,
		},
	}
}

// TickInterval returns the host loop period.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Playback.TickIntervalMS) * time.Millisecond
}

// SkipMargin returns the late-event margin. Zero disables dropping.
func (c *Config) SkipMargin() time.Duration {
	return time.Duration(c.Playback.SkipMarginMS) * time.Millisecond
}

// Validate rejects settings the host cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Playback.TickIntervalMS <= 0:
		return errors.Wrapf(ErrInvalid, "playback.tick_interval_ms must be positive, got %d", c.Playback.TickIntervalMS)
	case c.Playback.SkipMarginMS < 0:
		return errors.Wrapf(ErrInvalid, "playback.skip_margin_ms must not be negative, got %d", c.Playback.SkipMarginMS)
	case c.Recording.MaxEvents < 0:
		return errors.Wrapf(ErrInvalid, "recording.max_events must not be negative, got %d", c.Recording.MaxEvents)
	case c.API.Enabled && (c.API.Port <= 0 || c.API.Port > 65535):
		return errors.Wrapf(ErrInvalid, "api.port out of range: %d", c.API.Port)
	}
	return nil
}

// Manager handles loading and saving configuration
type Manager struct {
	mu         sync.Mutex
	configPath string
	config     *Config
	onChanged  func()
	log        *logrus.Entry
}

// NewManager creates a configuration manager for the per-user config file
func NewManager() (*Manager, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}
	return NewManagerAt(configPath), nil
}

// NewManagerAt creates a configuration manager for the file at path
func NewManagerAt(path string) *Manager {
	return &Manager{
		configPath: path,
		config:     DefaultConfig(),
		log:        logrus.WithField("component", "config"),
	}
}

// getConfigPath returns the path to the configuration file
func getConfigPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "locate config directory")
	}
	return filepath.Join(base, "linuxmacro", "config.json"), nil
}

// SetLogger replaces the logger used for config messages
func (m *Manager) SetLogger(log *logrus.Entry) {
	m.mu.Lock()
	m.log = log
	m.mu.Unlock()
}

// Path returns the configuration file location
func (m *Manager) Path() string {
	return m.configPath
}

// Load reads the configuration from disk. Settings missing from the file
// keep their defaults.
func (m *Manager) Load() error {
	m.mu.Lock()

	data, err := os.ReadFile(m.configPath)
	if os.IsNotExist(err) {
		// No config file, use defaults
		m.mu.Unlock()
		return nil
	}
	if err != nil {
		m.mu.Unlock()
		return errors.Wrap(err, "read config")
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		m.mu.Unlock()
		return errors.Wrapf(err, "parse %s", m.configPath)
	}
	if err := cfg.Validate(); err != nil {
		m.mu.Unlock()
		return err
	}
	m.config = cfg
	fn := m.onChanged
	m.mu.Unlock()

	if fn != nil {
		fn()
	}
	return nil
}

// Save writes the configuration to disk
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := json.MarshalIndent(m.config, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode config")
	}

	if err := os.MkdirAll(filepath.Dir(m.configPath), 0755); err != nil {
		return errors.Wrap(err, "create config directory")
	}

	m.log.Infof("Saving configuration to %s (%d bytes)", m.configPath, len(data))
	return errors.Wrap(os.WriteFile(m.configPath, data, 0644), "write config")
}

// Get returns a copy of the current configuration
func (m *Manager) Get() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.config
}

// Set validates and replaces the configuration
func (m *Manager) Set(config Config) error {
	if err := config.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.config = &config
	fn := m.onChanged
	m.mu.Unlock()
	if fn != nil {
		fn()
	}
	return nil
}

// RegisterChangeCallback registers a function to be called when config changes
func (m *Manager) RegisterChangeCallback(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChanged = fn
}
