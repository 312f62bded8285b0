// Package config loads Retrace settings: the embedded defaults, then an
// optional YAML file, then RETRACE_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"Retrace/assets"
	"Retrace/input"
)

// Config is the complete application configuration.
type Config struct {
	Quantum      time.Duration `yaml:"quantum"       env:"RETRACE_QUANTUM"`
	TickInterval time.Duration `yaml:"tick_interval" env:"RETRACE_TICK_INTERVAL"`
	Hotkeys      Hotkeys       `yaml:"hotkeys"`
	Devices      Devices       `yaml:"devices"`
	Audio        Audio         `yaml:"audio"`
	Log          Log           `yaml:"log"`
}

// Hotkeys are single letters.
type Hotkeys struct {
	Record   string `yaml:"record"   env:"RETRACE_HOTKEY_RECORD"`
	Playback string `yaml:"playback" env:"RETRACE_HOTKEY_PLAYBACK"`
	Stop     string `yaml:"stop"     env:"RETRACE_HOTKEY_STOP"`
}

// Devices are glob patterns for the Linux evdev nodes.
type Devices struct {
	Mouse    string `yaml:"mouse"    env:"RETRACE_MOUSE_DEVICE"`
	Keyboard string `yaml:"keyboard" env:"RETRACE_KEYBOARD_DEVICE"`
}

type Audio struct {
	Enabled bool    `yaml:"enabled" env:"RETRACE_AUDIO"`
	Volume  float64 `yaml:"volume"  env:"RETRACE_AUDIO_VOLUME"`
}

type Log struct {
	Level  string `yaml:"level"  env:"RETRACE_LOG_LEVEL"`
	Format string `yaml:"format" env:"RETRACE_LOG_FORMAT"`
}

// Default returns the embedded defaults.
func Default() (Config, error) {
	var cfg Config
	if err := decode(assets.DefaultConfig, &cfg); err != nil {
		return Config{}, fmt.Errorf("embedded defaults: %w", err)
	}
	return cfg, nil
}

// Load layers the file at path (if any) and the environment over the
// defaults and validates the result.
func Load(path string) (Config, error) {
	cfg, err := Default()
	if err != nil {
		return Config{}, err
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := decode(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// decode overlays data onto cfg. Keys that do not exist are rejected so
// typos do not go unnoticed.
func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Quantum <= 0 {
		return fmt.Errorf("quantum must be positive, got %s", c.Quantum)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be positive, got %s", c.TickInterval)
	}
	if c.TickInterval <= c.Quantum {
		return fmt.Errorf("tick_interval %s must be coarser than quantum %s", c.TickInterval, c.Quantum)
	}
	if _, err := c.Hotkeys.Parse(); err != nil {
		return err
	}
	if c.Audio.Volume < 0 || c.Audio.Volume > 1 {
		return fmt.Errorf("audio.volume must be between 0 and 1, got %g", c.Audio.Volume)
	}
	return nil
}

// Parse converts the letters into input.Hotkeys. A letter may be bound to
// one action only.
func (h Hotkeys) Parse() (input.Hotkeys, error) {
	var out input.Hotkeys
	seen := map[byte]string{}
	for _, k := range []struct {
		name   string
		letter string
		dst    *byte
	}{
		{"record", h.Record, &out.Record},
		{"playback", h.Playback, &out.Playback},
		{"stop", h.Stop, &out.Stop},
	} {
		letter, err := input.ParseHotkey(k.letter)
		if err != nil {
			return input.Hotkeys{}, fmt.Errorf("hotkeys.%s: %w", k.name, err)
		}
		if other, dup := seen[letter]; dup {
			return input.Hotkeys{}, fmt.Errorf("hotkeys.%s: %c is already bound to %s", k.name, letter, other)
		}
		seen[letter] = k.name
		*k.dst = letter
	}
	return out, nil
}
