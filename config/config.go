// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package config loads and stores the user configuration from the XDG
// config directory. The format orchestrator itself reads none of this; it
// only drives the CLI and the view layer.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

const (
	dirName  = "diskfmt"
	fileName = "config.toml"
)

// Config is the persisted user configuration.
//
// Unknown keys in the file are ignored; a missing file yields the zero
// Config.
type Config struct {
	// Theme is the view color theme.
	Theme string `toml:"theme,omitempty"`
	// Scheme is the view widget scheme.
	Scheme string `toml:"scheme,omitempty"`
	// DefaultFS overrides the detected default filesystem.
	DefaultFS string `toml:"default_fs,omitempty"`
}

// Dir returns the configuration directory: $XDG_CONFIG_HOME/diskfmt, or
// $HOME/.config/diskfmt when XDG_CONFIG_HOME is unset.
func Dir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, dirName)
	}

	return filepath.Join(os.Getenv("HOME"), ".config", dirName)
}

// Path returns the configuration file path.
func Path() string {
	return filepath.Join(Dir(), fileName)
}

// Load reads the configuration file.
//
// A missing file is not an error: it yields the zero Config.
func Load() (Config, error) {
	var cfg Config

	if _, err := toml.DecodeFile(Path(), &cfg); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}

		return Config{}, fmt.Errorf("failed to read config %s: %w", Path(), err)
	}

	return cfg, nil
}

// Save writes the configuration file, creating the directory if needed.
func (c Config) Save() error {
	if err := os.MkdirAll(Dir(), 0o755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	f, err := os.Create(Path())
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	defer f.Close() //nolint:errcheck

	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return nil
}

// Init creates a default configuration file and returns its path.
//
// An existing file is left alone unless force is set.
func Init(force bool) (string, error) {
	path := Path()

	if !force {
		if _, err := os.Stat(path); err == nil {
			return path, fmt.Errorf("config file already exists: %s", path)
		}
	}

	if err := (Config{}).Save(); err != nil {
		return path, err
	}

	return path, nil
}

// Effective merges command-line overrides over the stored configuration;
// non-empty CLI values win.
func (c Config) Effective(cliTheme, cliScheme string) Config {
	out := c

	if cliTheme != "" {
		out.Theme = cliTheme
	}

	if cliScheme != "" {
		out.Scheme = cliScheme
	}

	return out
}
