package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"
)

const (
	appName      = "overlay-hotkeys"
	fileName     = "config.toml"
	bindingsFile = "bindings.yaml"
)

type Config struct {
	LogLevel string         `toml:"log_level"`
	Bindings BindingsConfig `toml:"bindings"`
	Hyprland HyprlandConfig `toml:"hyprland"`
	IPC      IPCConfig      `toml:"ipc"`

	// path is where the config was read from, or would be.
	path string
}

type BindingsConfig struct {
	Path string `toml:"path"` // empty: <config dir>/bindings.yaml
}

type HyprlandConfig struct {
	ConfigDir        string `toml:"config_dir"` // empty: $XDG_CONFIG_HOME/hypr
	MainConfig       string `toml:"main_config"`
	BindFile         string `toml:"bind_file"`
	DispatchCommand  string `toml:"dispatch_command"`
	ReloadAfterApply bool   `toml:"reload_after_apply"`
	ProbeTimeoutMS   int    `toml:"probe_timeout_ms"`
}

type IPCConfig struct {
	SocketPath string `toml:"socket_path"` // empty: $XDG_RUNTIME_DIR/overlay-hotkeys.sock
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Hyprland: HyprlandConfig{
			MainConfig:       "hyprland.conf",
			BindFile:         "overlay-hotkeys.conf",
			ReloadAfterApply: true,
			ProbeTimeoutMS:   250,
		},
	}
}

// Load reads path, or the platform config file when path is empty. A
// missing file yields the defaults. Keys in the file override defaults one
// by one.
func Load(path string) (*Config, error) {
	if path == "" {
		path = Path()
	}
	cfg := Default()
	cfg.path = path

	md, err := toml.DecodeFile(path, cfg)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if c.Hyprland.ProbeTimeoutMS < 0 {
		return fmt.Errorf("hyprland.probe_timeout_ms must not be negative")
	}
	return nil
}

// File returns the path the config was loaded from.
func (c *Config) File() string { return c.path }

// BindingsPath returns the binding store file.
func (c *Config) BindingsPath() string {
	if c.Bindings.Path != "" {
		return ExpandHome(c.Bindings.Path)
	}
	return filepath.Join(Dir(), bindingsFile)
}

// HyprlandConfigDir returns the configured Hyprland directory, or "" for
// the compositor's default.
func (c *Config) HyprlandConfigDir() string {
	if c.Hyprland.ConfigDir == "" {
		return ""
	}
	return ExpandHome(c.Hyprland.ConfigDir)
}

// ProbeTimeout bounds the Hyprland socket probe.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Hyprland.ProbeTimeoutMS) * time.Millisecond
}

// SocketPath returns the configured trigger socket, or "" for the default.
func (c *Config) SocketPath() string {
	return ExpandHome(c.IPC.SocketPath)
}

// Dir returns the platform-specific config directory
func Dir() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("APPDATA")
	default: // linux
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.config"
		}
	}

	return filepath.Join(base, appName)
}

// Path returns the platform-specific config file path
func Path() string {
	return filepath.Join(Dir(), fileName)
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, _ := os.UserHomeDir()
	if path == "~" {
		return home
	}
	return filepath.Join(home, path[2:])
}
