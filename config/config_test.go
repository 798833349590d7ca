// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package config_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diskfmt/diskfmt/config"
)

func TestDirResolution(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	assert.Equal(t, "/tmp/xdg/diskfmt", config.Dir())

	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("HOME", "/home/user")
	assert.Equal(t, "/home/user/.config/diskfmt", config.Dir())
}

func TestLoadMissing(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Zero(t, cfg)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	saved := config.Config{Theme: "dark", Scheme: "gtk", DefaultFS: "ext4"}
	require.NoError(t, saved.Save())

	loaded, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, saved, loaded)
}

func TestInit(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	path, err := config.Init(false)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "diskfmt", "config.toml"), path)

	_, err = config.Init(false)
	require.Error(t, err, "existing config must not be overwritten without force")

	_, err = config.Init(true)
	require.NoError(t, err)
}

func TestEffective(t *testing.T) {
	cfg := config.Config{Theme: "dark", Scheme: "gtk"}

	merged := cfg.Effective("light", "")

	assert.Equal(t, "light", merged.Theme)
	assert.Equal(t, "gtk", merged.Scheme)
}
