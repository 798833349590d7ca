// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package backend

import (
	"fmt"
	"strings"
)

// PartitionTable is the partition table kind written on a whole-disk format.
type PartitionTable int

const (
	// TableGPT is the GUID partition table.
	TableGPT PartitionTable = iota
	// TableDOS is the legacy DOS/MBR partition table.
	TableDOS
)

// String returns the canonical name of the partition table kind.
func (t PartitionTable) String() string {
	switch t {
	case TableDOS:
		return "DOS"
	case TableGPT:
		fallthrough
	default:
		return "GPT"
	}
}

// ParseTable converts a user-supplied partition table name.
func ParseTable(s string) (PartitionTable, error) {
	switch strings.ToUpper(s) {
	case "GPT":
		return TableGPT, nil
	case "DOS", "MBR", "DOS/MBR":
		return TableDOS, nil
	}

	return 0, fmt.Errorf("unknown partition table kind %q", s)
}

// FormatSpec is a validated, filesystem-typed format request.
//
// The set of implementations is closed: one per supported filesystem. The
// meaning of the optional allocation-unit field differs per filesystem and
// is carried to the backend unchanged.
type FormatSpec interface {
	// Filesystem returns the filesystem type name, e.g. "vfat".
	Filesystem() string

	// Label returns the volume label, or nil when the backend default
	// applies.
	Label() *string

	// Quick reports whether the surface wipe should be skipped.
	Quick() bool

	// AllocationUnit returns the filesystem-specific allocation unit, or
	// nil to let the backend choose.
	AllocationUnit() *uint64

	formatSpec()
}

type baseSpec struct {
	label *string
	unit  *uint64
	quick bool
}

func (s baseSpec) Label() *string          { return s.label }
func (s baseSpec) Quick() bool             { return s.quick }
func (s baseSpec) AllocationUnit() *uint64 { return s.unit }
func (s baseSpec) formatSpec()             {}

// VFATSpec formats as FAT32; the allocation unit is sectors per cluster.
type VFATSpec struct{ baseSpec }

// ExFATSpec formats as exFAT; the allocation unit is the cluster size in bytes.
type ExFATSpec struct{ baseSpec }

// NTFSSpec formats as NTFS; the allocation unit is the cluster size in bytes.
type NTFSSpec struct{ baseSpec }

// Ext4Spec formats as ext4; the allocation unit is the block size in bytes.
type Ext4Spec struct{ baseSpec }

// XFSSpec formats as XFS; the allocation unit is the block size in bytes.
type XFSSpec struct{ baseSpec }

// BtrfsSpec formats as btrfs; the allocation unit is the nodesize in bytes.
type BtrfsSpec struct{ baseSpec }

// Filesystem implements FormatSpec.
func (VFATSpec) Filesystem() string { return "vfat" }

// Filesystem implements FormatSpec.
func (ExFATSpec) Filesystem() string { return "exfat" }

// Filesystem implements FormatSpec.
func (NTFSSpec) Filesystem() string { return "ntfs" }

// Filesystem implements FormatSpec.
func (Ext4Spec) Filesystem() string { return "ext4" }

// Filesystem implements FormatSpec.
func (XFSSpec) Filesystem() string { return "xfs" }

// Filesystem implements FormatSpec.
func (BtrfsSpec) Filesystem() string { return "btrfs" }

// NewSpec assembles the typed spec for the given filesystem name.
//
// It performs no validation beyond selecting the variant; callers are
// expected to go through the option builder.
func NewSpec(fs string, label *string, unit *uint64, quick bool) (FormatSpec, error) {
	base := baseSpec{label: label, unit: unit, quick: quick}

	switch fs {
	case "vfat":
		return VFATSpec{base}, nil
	case "exfat":
		return ExFATSpec{base}, nil
	case "ntfs":
		return NTFSSpec{base}, nil
	case "ext4":
		return Ext4Spec{base}, nil
	case "xfs":
		return XFSSpec{base}, nil
	case "btrfs":
		return BtrfsSpec{base}, nil
	}

	return nil, fmt.Errorf("unsupported filesystem: %s", fs)
}
