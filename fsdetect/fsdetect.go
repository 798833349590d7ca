// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package fsdetect probes which mkfs tools are installed on the host and
// picks a sensible default filesystem from them.
package fsdetect

import (
	"context"

	"github.com/siderolabs/go-cmd/pkg/cmd"
)

// mkfs tool candidates per filesystem; any present tool marks the
// filesystem as supported.
var mkfsTools = map[string][]string{
	"vfat":  {"mkfs.vfat"},
	"exfat": {"mkfs.exfat"},
	"ntfs":  {"mkfs.ntfs", "mkntfs"},
	"ext4":  {"mkfs.ext4", "mke2fs"},
	"xfs":   {"mkfs.xfs"},
	"btrfs": {"mkfs.btrfs"},
}

// preference order for the default filesystem pick.
var preferred = []string{"exfat", "vfat", "ext4", "ntfs", "xfs", "btrfs"}

// Supported returns the filesystems whose mkfs tool is installed.
//
// The order matches the preference order used by Default.
func Supported(ctx context.Context) []string {
	var out []string

	for _, fs := range preferred {
		if toolPresent(ctx, mkfsTools[fs]) {
			out = append(out, fs)
		}
	}

	return out
}

// Default picks the preferred filesystem out of the supported set.
func Default(supported []string) (string, bool) {
	for _, pref := range preferred {
		for _, fs := range supported {
			if fs == pref {
				return fs, true
			}
		}
	}

	return "", false
}

func toolPresent(ctx context.Context, tools []string) bool {
	for _, tool := range tools {
		if _, err := cmd.RunContext(ctx, "which", tool); err == nil {
			return true
		}
	}

	return false
}
