// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package format

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/siderolabs/go-pointer"
	"golang.org/x/text/encoding/unicode"

	"github.com/diskfmt/diskfmt/backend"
)

// Filesystems returns the closed set of supported filesystem types.
func Filesystems() []string {
	return []string{"vfat", "exfat", "ntfs", "ext4", "xfs", "btrfs"}
}

// Request is the raw user intent for a format operation.
type Request struct {
	// FS is the filesystem type name.
	FS string
	// Label is the volume label; empty means no label.
	Label string
	// AllocationUnit is the filesystem-specific allocation unit; nil lets
	// the backend choose.
	AllocationUnit *uint64
	// Table is the partition table to write on a whole-disk target; nil
	// defaults to GPT. Ignored when the target is a partition.
	Table *backend.PartitionTable
	// Quick skips the surface wipe.
	Quick bool
}

// InvalidRequestError rejects a Request during preflight validation.
type InvalidRequestError struct {
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return e.Reason
}

func invalidRequest(format string, args ...any) error {
	return &InvalidRequestError{Reason: fmt.Sprintf(format, args...)}
}

// BuildSpec validates a Request and produces the typed backend spec.
//
// It is pure: no I/O, no backend calls. Allocation units are range-checked
// only for positivity; the backend rejects unsupported values.
func BuildSpec(req Request) (backend.FormatSpec, error) {
	supported := false

	for _, fs := range Filesystems() {
		if fs == req.FS {
			supported = true

			break
		}
	}

	if !supported {
		return nil, invalidRequest("unsupported filesystem: %s", req.FS)
	}

	if req.AllocationUnit != nil && *req.AllocationUnit == 0 {
		return nil, invalidRequest("%s: allocation unit must be positive", req.FS)
	}

	var label *string

	if req.Label != "" {
		if err := validateLabel(req.Label, req.FS); err != nil {
			return nil, err
		}

		label = pointer.To(req.Label)
	}

	spec, err := backend.NewSpec(req.FS, label, req.AllocationUnit, req.Quick)
	if err != nil {
		return nil, invalidRequest("%s", err)
	}

	return spec, nil
}

// ParseSizeChoice parses an allocation-unit choice string.
//
// "Auto" (or an empty string) selects the backend default. Otherwise the
// first whitespace-delimited token is read as a base-10 unsigned integer;
// the unit word is disregarded, its meaning depends on the filesystem.
func ParseSizeChoice(s string) *uint64 {
	if s == "" || s == "Auto" {
		return nil
	}

	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil
	}

	v, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return nil
	}

	return pointer.To(v)
}

const fatInvalidChars = `"*/:<>?\|` + "\x00"

func hasFATInvalidChars(label string) bool {
	for _, c := range label {
		if strings.ContainsRune(fatInvalidChars, c) || c < 0x20 || c == 0x7f {
			return true
		}
	}

	return false
}

// utf16Units returns the number of UTF-16 code units the label occupies
// on-disk for filesystems with UTF-16 labels (exfat, ntfs).
func utf16Units(label string) int {
	encoded, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().Bytes([]byte(label))
	if err != nil {
		// unencodable labels count pessimistically as their byte length
		return len(label)
	}

	return len(encoded) / 2
}

//nolint:cyclop
func validateLabel(label, fs string) error {
	switch fs {
	case "vfat":
		if len(label) > 11 {
			return invalidRequest("vfat: max 11 bytes")
		}

		if hasFATInvalidChars(label) {
			return invalidRequest("vfat: invalid characters")
		}
	case "exfat":
		if utf16Units(label) > 15 {
			return invalidRequest("exfat: max 15 characters")
		}

		if hasFATInvalidChars(label) {
			return invalidRequest("exfat: invalid characters")
		}
	case "ntfs":
		if utf16Units(label) > 32 {
			return invalidRequest("ntfs: max 32 characters")
		}

		if strings.ContainsRune(label, 0) {
			return invalidRequest("ntfs: invalid characters")
		}
	case "ext4":
		if len(label) > 16 {
			return invalidRequest("ext4: max 16 bytes")
		}

		if strings.ContainsRune(label, 0) || strings.ContainsRune(label, '/') {
			return invalidRequest("ext4: invalid characters")
		}
	case "xfs":
		if len(label) > 12 {
			return invalidRequest("xfs: max 12 bytes")
		}

		if strings.ContainsRune(label, 0) {
			return invalidRequest("xfs: invalid characters")
		}
	case "btrfs":
		if len(label) > 255 {
			return invalidRequest("btrfs: max 255 bytes")
		}

		if strings.ContainsRune(label, 0) {
			return invalidRequest("btrfs: invalid characters")
		}
	}

	return nil
}
