// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package fsdetect_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/diskfmt/diskfmt/fsdetect"
)

func TestDefault(t *testing.T) {
	for _, test := range []struct {
		name      string
		expected  string
		supported []string
		ok        bool
	}{
		{
			name:      "preferred first",
			supported: []string{"btrfs", "vfat", "exfat"},
			expected:  "exfat",
			ok:        true,
		},
		{
			name:      "fallback order",
			supported: []string{"xfs", "ntfs"},
			expected:  "ntfs",
			ok:        true,
		},
		{
			name:      "nothing installed",
			supported: nil,
			ok:        false,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			actual, ok := fsdetect.Default(test.supported)

			assert.Equal(t, test.ok, ok)
			assert.Equal(t, test.expected, actual)
		})
	}
}
