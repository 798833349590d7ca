// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package mock provides a deterministic disk service adapter used when the
// disk-management daemon is unavailable and in unit tests.
package mock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/siderolabs/go-pointer"
	"go.uber.org/zap"

	"github.com/diskfmt/diskfmt/backend"
)

// JobID is the fixed identifier assigned to every mock format job.
const JobID = "mock_job_123"

// ErrJobCancelled is the terminal error of a job stopped via Cancel when
// cancellable jobs are enabled.
var ErrJobCancelled = errors.New("job cancelled by request")

const (
	quickOperationDelay = 100 * time.Millisecond
	defaultStepDelay    = time.Second
)

var percentScript = []float64{25, 50, 75, 100}

// Adapter is the mock disk service adapter.
//
// It publishes a single synthetic removable device and formats it with a
// fixed progress script.
type Adapter struct {
	logger      *zap.Logger
	cancelled   map[string]bool
	stepDelay   time.Duration
	cancellable bool

	mu sync.Mutex
}

// Option configures the mock adapter.
type Option func(*Adapter)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// WithStepDelay sets the delay between progress steps of a format job.
//
// Tests use zero to run the script synchronously fast.
func WithStepDelay(d time.Duration) Option {
	return func(a *Adapter) {
		a.stepDelay = d
	}
}

// WithCancellableJobs makes Cancel stop the running job script early with
// ErrJobCancelled instead of letting it run to completion.
func WithCancellableJobs() Option {
	return func(a *Adapter) {
		a.cancellable = true
	}
}

// New creates a mock adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{
		logger:    zap.NewNop(),
		stepDelay: defaultStepDelay,
		cancelled: map[string]bool{},
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// ListDevices implements backend.Adapter.
func (a *Adapter) ListDevices(ctx context.Context) ([]backend.BlockDevice, error) {
	if err := sleepCtx(ctx, quickOperationDelay); err != nil {
		return nil, err
	}

	return []backend.BlockDevice{
		{
			DevPath:     "/dev/sdc1",
			ObjectPath:  "0",
			FSType:      pointer.To("vfat"),
			Label:       pointer.To("MOCK"),
			SizeBytes:   pointer.To(uint64(64 * 1_000_000_000)),
			VendorModel: pointer.To("Mock USB"),
			IsPartition: true,
		},
	}, nil
}

// IsPartition implements backend.Adapter.
//
// The synthetic device "0" is a partition; object paths that look like bare
// disks ("disk-..." without a partition suffix) are whole disks.
func (a *Adapter) IsPartition(_ context.Context, objectPath string) (bool, error) {
	if objectPath == "0" {
		return true, nil
	}

	// "disk-1" is a whole disk, "disk-1p1" is its first partition.
	i := len(objectPath)

	for i > 0 && objectPath[i-1] >= '0' && objectPath[i-1] <= '9' {
		i--
	}

	return i > 0 && i < len(objectPath) && objectPath[i-1] == 'p', nil
}

// FormatPartition implements backend.Adapter.
func (a *Adapter) FormatPartition(ctx context.Context, objectPath string, spec backend.FormatSpec) (backend.JobHandle, error) {
	a.logger.Debug("mock format",
		zap.String("object_path", objectPath),
		zap.String("fs", spec.Filesystem()),
	)

	a.mu.Lock()
	delete(a.cancelled, JobID)
	a.mu.Unlock()

	h := &jobHandle{
		id:     JobID,
		events: make(chan backend.JobEvent),
	}

	go a.runJob(ctx, h)

	return h, nil
}

// FormatWholeDisk implements backend.Adapter.
func (a *Adapter) FormatWholeDisk(ctx context.Context, objectPath string, table backend.PartitionTable, spec backend.FormatSpec) (string, backend.JobHandle, error) {
	a.logger.Debug("mock whole-disk format",
		zap.String("object_path", objectPath),
		zap.Stringer("table", table),
	)

	if err := sleepCtx(ctx, quickOperationDelay); err != nil {
		return "", nil, err
	}

	h, err := a.FormatPartition(ctx, objectPath, spec)
	if err != nil {
		return "", nil, err
	}

	return partitionName(objectPath, 1), h, nil
}

// Cancel implements backend.Adapter.
//
// It succeeds after a small delay; unless cancellable jobs are enabled it
// does not short-circuit an in-flight job.
func (a *Adapter) Cancel(ctx context.Context, jobID string) error {
	if err := sleepCtx(ctx, quickOperationDelay); err != nil {
		return err
	}

	if a.cancellable {
		a.mu.Lock()
		a.cancelled[jobID] = true
		a.mu.Unlock()
	}

	return nil
}

func (a *Adapter) runJob(ctx context.Context, h *jobHandle) {
	defer close(h.events)

	for _, p := range percentScript {
		if err := sleepCtx(ctx, a.stepDelay); err != nil {
			h.events <- backend.CompletedEvent{Err: err}

			return
		}

		if a.isCancelled(h.id) {
			h.events <- backend.CompletedEvent{Err: ErrJobCancelled}

			return
		}

		h.events <- backend.PercentEvent(p)
	}

	h.events <- backend.CompletedEvent{}
}

func (a *Adapter) isCancelled(jobID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.cancelled[jobID]
}

type jobHandle struct {
	id     string
	events chan backend.JobEvent
}

func (h *jobHandle) ID() string { return h.id }

func (h *jobHandle) Events() <-chan backend.JobEvent { return h.events }

// partitionName derives the device name of the Nth partition on a disk.
func partitionName(disk string, part uint) string {
	if len(disk) > 0 && disk[len(disk)-1] >= '0' && disk[len(disk)-1] <= '9' {
		disk += "p"
	}

	return fmt.Sprintf("%s%d", disk, part)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d == 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
