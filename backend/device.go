// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package backend

import (
	"fmt"
	"strings"
)

// BlockDevice is a snapshot of one candidate format target.
//
// It is produced by Adapter.ListDevices and consumed immediately; it is not
// refreshed across operations. Two snapshots refer to the same device iff
// their ObjectPath values are equal.
type BlockDevice struct {
	// DevPath is the device node, e.g. /dev/sdc1.
	DevPath string
	// ObjectPath is the stable service-side identifier of the device.
	ObjectPath string
	// FSType is the current filesystem type, if any.
	FSType *string
	// Label is the current filesystem label, if any.
	Label *string
	// SizeBytes is the device size, if known.
	SizeBytes *uint64
	// VendorModel is the combined vendor/model string, if known.
	VendorModel *string
	// IsPartition distinguishes a partition from a whole disk.
	IsPartition bool
}

// String renders the one-line display form used by device listings.
func (d BlockDevice) String() string {
	extras := make([]string, 0, 5)

	if d.IsPartition {
		extras = append(extras, "Partition")
	} else {
		extras = append(extras, "Disk")
	}

	if d.SizeBytes != nil {
		extras = append(extras, HumanSize(*d.SizeBytes))
	}

	if d.VendorModel != nil {
		extras = append(extras, *d.VendorModel)
	}

	if d.FSType != nil && *d.FSType != "" {
		extras = append(extras, *d.FSType)
	}

	if d.Label != nil && *d.Label != "" {
		extras = append(extras, fmt.Sprintf("%q", *d.Label))
	}

	base := d.DevPath
	if base == "" {
		base = d.ObjectPath
	}

	return fmt.Sprintf("%s (%s)", base, strings.Join(extras, ", "))
}

// HumanSize formats a byte count using SI units with one decimal.
func HumanSize(size uint64) string {
	units := []string{"B", "KB", "MB", "GB", "TB"}

	const base = 1000.0

	s := float64(size)
	i := 0

	for s >= base && i < len(units)-1 {
		s /= base
		i++
	}

	if i == 0 {
		return fmt.Sprintf("%d B", size)
	}

	return fmt.Sprintf("%.1f %s", s, units[i])
}
