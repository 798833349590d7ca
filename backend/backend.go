// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package backend defines the disk service adapter: the capability set the
// format orchestrator requires from a privileged disk-management daemon.
package backend

import (
	"context"
)

// Adapter is the set of disk-management operations the orchestrator drives.
//
// Implementations are safe for concurrent use; all blocking calls honor the
// passed context.
type Adapter interface {
	// ListDevices returns a snapshot of candidate target devices.
	//
	// Real implementations filter out optical drives and non-removable
	// devices.
	ListDevices(ctx context.Context) ([]BlockDevice, error)

	// IsPartition reports whether the object identifies a partition rather
	// than a whole disk.
	IsPartition(ctx context.Context, objectPath string) (bool, error)

	// FormatPartition starts formatting an existing partition and returns a
	// handle to the running job.
	FormatPartition(ctx context.Context, objectPath string, spec FormatSpec) (JobHandle, error)

	// FormatWholeDisk writes a new partition table to the disk, creates a
	// single partition spanning it, waits for the partition to appear and
	// starts formatting it.
	//
	// It returns the object path of the new partition along with the job
	// handle for the format.
	FormatWholeDisk(ctx context.Context, objectPath string, table PartitionTable, spec FormatSpec) (string, JobHandle, error)

	// Cancel requests termination of a running job.
	//
	// A successful cancel does not short-circuit the job's event stream: the
	// stream still delivers its own terminal completion.
	Cancel(ctx context.Context, jobID string) error
}

// JobHandle is a running format job.
type JobHandle interface {
	// ID returns the backend-assigned job identifier, stable for the job's
	// lifetime.
	ID() string

	// Events returns the job's event stream.
	//
	// The channel is closed when the job ends; a well-behaved backend
	// delivers at most one CompletedEvent as the last event before close.
	Events() <-chan JobEvent
}

// JobEvent is a progress event delivered by a job's event stream.
//
// The set of implementations is closed: PercentEvent, RateEvent and
// CompletedEvent.
type JobEvent interface {
	jobEvent()
}

// PercentEvent reports job progress in percent.
type PercentEvent float64

// RateEvent reports the current throughput in bytes per second.
type RateEvent uint64

// CompletedEvent terminates the event stream; a nil Err means success.
type CompletedEvent struct {
	Err error
}

func (PercentEvent) jobEvent()   {}
func (RateEvent) jobEvent()      {}
func (CompletedEvent) jobEvent() {}
