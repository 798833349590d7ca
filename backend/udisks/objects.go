// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build linux

package udisks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/siderolabs/go-pointer"
	"golang.org/x/sys/unix"

	"github.com/diskfmt/diskfmt/backend"
)

type jobHandle struct {
	id     string
	events chan backend.JobEvent
}

func (h *jobHandle) ID() string { return h.id }

func (h *jobHandle) Events() <-chan backend.JobEvent { return h.events }

// finishedHandle represents a format that completed before the daemon
// announced a job object; its stream is just a successful completion.
func finishedHandle(objectPath string) backend.JobHandle {
	h := &jobHandle{
		id:     string(basePath) + "/jobs/finished_" + filepath.Base(objectPath),
		events: make(chan backend.JobEvent, 1),
	}

	h.events <- backend.CompletedEvent{}
	close(h.events)

	return h
}

// jobAnnouncement recognizes an InterfacesAdded signal announcing a format
// job bound to the target object.
func jobAnnouncement(sig *dbus.Signal, target dbus.ObjectPath) (dbus.ObjectPath, bool) {
	if sig.Name != objectManagerIface+".InterfacesAdded" || len(sig.Body) < 2 {
		return "", false
	}

	jobPath, ok := sig.Body[0].(dbus.ObjectPath)
	if !ok {
		return "", false
	}

	ifaces, ok := sig.Body[1].(map[string]map[string]dbus.Variant)
	if !ok {
		return "", false
	}

	job, ok := ifaces[jobIface]
	if !ok {
		return "", false
	}

	if op, ok := job["Operation"].Value().(string); ok && !strings.HasPrefix(op, "format-") {
		return "", false
	}

	objects, ok := job["Objects"].Value().([]dbus.ObjectPath)
	if !ok {
		return "", false
	}

	for _, obj := range objects {
		if obj == target {
			return jobPath, true
		}
	}

	return "", false
}

// completionBody unpacks the Job.Completed signal body.
func completionBody(sig *dbus.Signal) (success bool, message string, ok bool) {
	if len(sig.Body) < 2 {
		return false, "", false
	}

	success, sok := sig.Body[0].(bool)
	message, mok := sig.Body[1].(string)

	return success, message, sok && mok
}

// deviceFromObject builds the device snapshot for a block object.
func deviceFromObject(path dbus.ObjectPath, objects managedObjects) backend.BlockDevice {
	block := objects[path][blockIface]

	devPath := byteString(block["Device"])

	_, isPartition := objects[path][partitionIface]

	d := backend.BlockDevice{
		DevPath:     devPath,
		ObjectPath:  string(path),
		IsPartition: isPartition,
	}

	if fstype, ok := block["IdType"].Value().(string); ok && fstype != "" {
		d.FSType = pointer.To(fstype)
	}

	if label, ok := block["IdLabel"].Value().(string); ok && label != "" {
		d.Label = pointer.To(label)
	}

	if size, ok := block["Size"].Value().(uint64); ok && size > 0 {
		d.SizeBytes = pointer.To(size)
	}

	drivePath, _ := block["Drive"].Value().(dbus.ObjectPath) //nolint:errcheck
	if drive, ok := objects[drivePath][driveIface]; ok {
		vendor, _ := drive["Vendor"].Value().(string) //nolint:errcheck
		model, _ := drive["Model"].Value().(string)   //nolint:errcheck

		if vm := strings.TrimSpace(vendor + " " + model); vm != "" {
			d.VendorModel = pointer.To(vm)
		}
	}

	if d.VendorModel == nil {
		if model := sysfsModel(devPath); model != "" {
			d.VendorModel = pointer.To(model)
		}
	}

	return d
}

// formatCallOptions maps the typed spec to the daemon's format call
// arguments.
func formatCallOptions(spec backend.FormatSpec) (string, map[string]dbus.Variant) {
	options := map[string]dbus.Variant{
		"update-partition-type": dbus.MakeVariant(true),
	}

	if label := spec.Label(); label != nil {
		options["label"] = dbus.MakeVariant(*label)
	}

	if !spec.Quick() {
		options["erase"] = dbus.MakeVariant("zero")
	}

	if unit := spec.AllocationUnit(); unit != nil {
		options[allocationUnitOption(spec)] = dbus.MakeVariant(*unit)
	}

	return spec.Filesystem(), options
}

func allocationUnitOption(spec backend.FormatSpec) string {
	switch spec.(type) {
	case backend.VFATSpec:
		return "sectors-per-cluster"
	case backend.ExFATSpec, backend.NTFSSpec:
		return "cluster-size"
	case backend.BtrfsSpec:
		return "nodesize"
	default:
		return "block-size"
	}
}

// waitForPartition waits until the freshly created partition's device node
// exists and is a block device.
func (a *Adapter) waitForPartition(ctx context.Context, partitionPath dbus.ObjectPath) error {
	deadline := time.Now().Add(partitionSettleTimeout)

	for {
		objects, err := a.managedObjects(ctx)
		if err != nil {
			return err
		}

		if block, ok := objects[partitionPath][blockIface]; ok {
			devPath := byteString(block["Device"])

			var st unix.Stat_t

			if err = unix.Stat(devPath, &st); err == nil && st.Mode&unix.S_IFMT == unix.S_IFBLK {
				return nil
			}
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for partition %s to settle", partitionPath)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(250 * time.Millisecond):
		}
	}
}

// sysfsModel reads the device model from /sys/block when the daemon's drive
// properties are empty.
func sysfsModel(devPath string) string {
	name := filepath.Base(devPath)
	if name == "." || name == "/" {
		return ""
	}

	for _, sysPath := range []string{
		fmt.Sprintf("/sys/block/%s/device/model", name),
		fmt.Sprintf("/sys/class/block/%s/device/model", name),
	} {
		if data, err := os.ReadFile(sysPath); err == nil {
			return strings.TrimSpace(string(data))
		}
	}

	return ""
}

// byteString converts an ay property (NUL-terminated byte array) to a Go
// string.
func byteString(v dbus.Variant) string {
	data, ok := v.Value().([]byte)
	if !ok {
		return ""
	}

	return strings.TrimRight(string(data), "\x00")
}

func boolProp(v dbus.Variant) bool {
	b, ok := v.Value().(bool)

	return ok && b
}
