// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package format_test

import (
	"strings"
	"testing"

	"github.com/siderolabs/go-pointer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diskfmt/diskfmt/backend"
	"github.com/diskfmt/diskfmt/format"
)

func TestFilesystems(t *testing.T) {
	assert.Equal(t, []string{"vfat", "exfat", "ntfs", "ext4", "xfs", "btrfs"}, format.Filesystems())
}

func TestBuildSpecLabels(t *testing.T) {
	for _, test := range []struct {
		name  string
		fs    string
		label string

		expectedError string
	}{
		{
			name:  "vfat at limit",
			fs:    "vfat",
			label: strings.Repeat("A", 11),
		},
		{
			name:          "vfat over limit",
			fs:            "vfat",
			label:         strings.Repeat("A", 12),
			expectedError: "vfat: max 11 bytes",
		},
		{
			name:          "vfat star",
			fs:            "vfat",
			label:         "BAD*LABEL",
			expectedError: "vfat: invalid characters",
		},
		{
			name:          "vfat control char",
			fs:            "vfat",
			label:         "BAD\x01",
			expectedError: "vfat: invalid characters",
		},
		{
			name:  "ntfs star accepted",
			fs:    "ntfs",
			label: "BAD*LABEL",
		},
		{
			name:  "exfat at limit",
			fs:    "exfat",
			label: strings.Repeat("x", 15),
		},
		{
			name:          "exfat over limit",
			fs:            "exfat",
			label:         strings.Repeat("x", 16),
			expectedError: "exfat: max 15 characters",
		},
		{
			name:  "ntfs at limit",
			fs:    "ntfs",
			label: strings.Repeat("x", 32),
		},
		{
			name:          "ntfs over limit",
			fs:            "ntfs",
			label:         strings.Repeat("x", 33),
			expectedError: "ntfs: max 32 characters",
		},
		{
			name:  "ext4 at limit",
			fs:    "ext4",
			label: strings.Repeat("x", 16),
		},
		{
			name:          "ext4 over limit",
			fs:            "ext4",
			label:         strings.Repeat("x", 17),
			expectedError: "ext4: max 16 bytes",
		},
		{
			name:          "ext4 slash",
			fs:            "ext4",
			label:         "a/b",
			expectedError: "ext4: invalid characters",
		},
		{
			name:  "xfs at limit",
			fs:    "xfs",
			label: strings.Repeat("x", 12),
		},
		{
			name:          "xfs over limit",
			fs:            "xfs",
			label:         strings.Repeat("x", 13),
			expectedError: "xfs: max 12 bytes",
		},
		{
			name:  "btrfs at limit",
			fs:    "btrfs",
			label: strings.Repeat("x", 255),
		},
		{
			name:          "btrfs over limit",
			fs:            "btrfs",
			label:         strings.Repeat("x", 256),
			expectedError: "btrfs: max 255 bytes",
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			spec, err := format.BuildSpec(format.Request{FS: test.fs, Label: test.label})

			if test.expectedError != "" {
				require.Error(t, err)

				var invalid *format.InvalidRequestError

				require.ErrorAs(t, err, &invalid)
				assert.Equal(t, test.expectedError, invalid.Reason)

				return
			}

			require.NoError(t, err)
			require.NotNil(t, spec.Label())
			assert.Equal(t, test.label, *spec.Label())
		})
	}
}

func TestBuildSpecEmptyLabel(t *testing.T) {
	spec, err := format.BuildSpec(format.Request{FS: "vfat"})
	require.NoError(t, err)

	assert.Nil(t, spec.Label(), "empty label should be absent, not empty string")
}

func TestBuildSpecVariants(t *testing.T) {
	for fs, expected := range map[string]string{
		"vfat":  "vfat",
		"exfat": "exfat",
		"ntfs":  "ntfs",
		"ext4":  "ext4",
		"xfs":   "xfs",
		"btrfs": "btrfs",
	} {
		spec, err := format.BuildSpec(format.Request{FS: fs, Quick: true, AllocationUnit: pointer.To(uint64(4096))})
		require.NoError(t, err)

		assert.Equal(t, expected, spec.Filesystem())
		assert.True(t, spec.Quick())
		require.NotNil(t, spec.AllocationUnit())
		assert.EqualValues(t, 4096, *spec.AllocationUnit())
	}

	var spec backend.FormatSpec

	spec, err := format.BuildSpec(format.Request{FS: "vfat"})
	require.NoError(t, err)
	assert.IsType(t, backend.VFATSpec{}, spec)

	spec, err = format.BuildSpec(format.Request{FS: "btrfs"})
	require.NoError(t, err)
	assert.IsType(t, backend.BtrfsSpec{}, spec)
}

func TestBuildSpecRejects(t *testing.T) {
	var invalid *format.InvalidRequestError

	_, err := format.BuildSpec(format.Request{FS: "zfs"})
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "unsupported filesystem: zfs", invalid.Reason)

	_, err = format.BuildSpec(format.Request{FS: "ext4", AllocationUnit: pointer.To(uint64(0))})
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "ext4: allocation unit must be positive", invalid.Reason)
}

func TestParseSizeChoice(t *testing.T) {
	assert.Nil(t, format.ParseSizeChoice("Auto"))
	assert.Nil(t, format.ParseSizeChoice(""))
	assert.Nil(t, format.ParseSizeChoice("lots of bytes"))

	require.NotNil(t, format.ParseSizeChoice("4096 bytes"))
	assert.EqualValues(t, 4096, *format.ParseSizeChoice("4096 bytes"))

	require.NotNil(t, format.ParseSizeChoice("8 sectors"))
	assert.EqualValues(t, 8, *format.ParseSizeChoice("8 sectors"))

	require.NotNil(t, format.ParseSizeChoice("512"))
	assert.EqualValues(t, 512, *format.ParseSizeChoice("512"))
}
