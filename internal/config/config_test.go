package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5*time.Millisecond, cfg.TickInterval())
	assert.Zero(t, cfg.SkipMargin())
	assert.True(t, cfg.Playback.TrailingSync)
	assert.Equal(t, 1_000_000, cfg.Recording.MaxEvents)
	assert.Equal(t, 18090, cfg.API.Port)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"zero tick":       func(c *Config) { c.Playback.TickIntervalMS = 0 },
		"negative margin": func(c *Config) { c.Playback.SkipMarginMS = -1 },
		"negative limit":  func(c *Config) { c.Recording.MaxEvents = -5 },
		"bad port":        func(c *Config) { c.API.Enabled = true; c.API.Port = 70000 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			assert.True(t, errors.Is(cfg.Validate(), ErrInvalid))
		})
	}
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	m := NewManagerAt(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, m.Load())
	assert.Equal(t, *DefaultConfig(), m.Get())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	m := NewManagerAt(path)

	cfg := m.Get()
	cfg.Device.Path = "/dev/input/event4"
	cfg.Playback.SkipMarginMS = 25
	require.NoError(t, m.Set(cfg))
	require.NoError(t, m.Save())

	other := NewManagerAt(path)
	require.NoError(t, other.Load())
	assert.Equal(t, cfg, other.Get())
}

func TestLoadPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"playback":{"tick_interval_ms":20}}`), 0644))

	m := NewManagerAt(path)
	require.NoError(t, m.Load())
	cfg := m.Get()
	assert.Equal(t, 20*time.Millisecond, cfg.TickInterval())
	assert.Equal(t, 1_000_000, cfg.Recording.MaxEvents)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"playback":{"tick_interval_ms":-1}}`), 0644))

	m := NewManagerAt(path)
	assert.True(t, errors.Is(m.Load(), ErrInvalid))
	assert.Equal(t, *DefaultConfig(), m.Get())
}

func TestChangeCallback(t *testing.T) {
	m := NewManagerAt(filepath.Join(t.TempDir(), "config.json"))
	calls := 0
	m.RegisterChangeCallback(func() { calls++ })

	cfg := m.Get()
	cfg.UI.Tray = false
	require.NoError(t, m.Set(cfg))
	assert.Equal(t, 1, calls)

	cfg.Playback.TickIntervalMS = 0
	assert.Error(t, m.Set(cfg))
	assert.Equal(t, 1, calls)
}
