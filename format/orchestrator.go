// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package format implements the format orchestrator: it translates a format
// request into disk service operations, runs them as a cancellable
// background job and relays progress onto a message bus.
package format

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/diskfmt/diskfmt/backend"
)

// ErrBusy rejects Start while another job is active.
var ErrBusy = errors.New("a format job is already running")

// State is the orchestrator lifecycle state.
type State int

const (
	// StateIdle means no job is active.
	StateIdle State = iota
	// StateStarting means preflight is running but no job id is assigned yet.
	StateStarting
	// StateFormatting means a job is running.
	StateFormatting
)

// Orchestrator drives format jobs against a disk service adapter.
//
// At most one job is active per orchestrator. Observers consume the bus;
// they never read orchestrator state directly.
type Orchestrator struct {
	adapter backend.Adapter
	bus     *Bus
	logger  *zap.Logger

	mu    sync.Mutex
	state State
	jobID string
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// New creates an orchestrator bound to an adapter and a bus.
func New(adapter backend.Adapter, bus *Bus, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		adapter: adapter,
		bus:     bus,
		logger:  zap.NewNop(),
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// StartResult is the successful outcome of Start.
type StartResult struct {
	// JobID is the backend-assigned job identifier.
	JobID string
	// ResultPath is the formatted object: the new partition on a whole-disk
	// format, the target itself otherwise.
	ResultPath string
	// Done is closed once the terminal Completed event has been emitted and
	// the orchestrator is Idle again.
	Done <-chan struct{}
}

// Start validates the request and launches a format job on the target.
//
// On success the job's events flow onto the bus: JobStarted first, then
// Percent/Rate/Message, then exactly one terminal Completed. Start may
// return before or after JobStarted is observable; callers order themselves
// by events, not by the return.
//
// It fails with ErrBusy when a job is already active, with
// *InvalidRequestError when preflight validation rejects the request, and
// with the adapter's error when the backend refuses the job; in the last
// case the failure is also emitted as Completed.
func (o *Orchestrator) Start(ctx context.Context, targetID string, req Request) (StartResult, error) {
	o.mu.Lock()

	if o.state != StateIdle {
		o.mu.Unlock()

		return StartResult{}, ErrBusy
	}

	o.state = StateStarting

	o.mu.Unlock()

	res, err := o.launch(ctx, targetID, req)
	if err != nil {
		o.mu.Lock()
		o.state = StateIdle
		o.mu.Unlock()

		return StartResult{}, err
	}

	return res, nil
}

func (o *Orchestrator) launch(ctx context.Context, targetID string, req Request) (StartResult, error) {
	logger := o.logger.With(
		zap.String("run_id", uuid.NewString()),
		zap.String("target", targetID),
	)

	spec, err := BuildSpec(req)
	if err != nil {
		return StartResult{}, err
	}

	logger.Info("starting format",
		zap.String("fs", spec.Filesystem()),
		zap.Bool("quick", spec.Quick()),
	)

	isPartition, err := o.adapter.IsPartition(ctx, targetID)
	if err != nil {
		return StartResult{}, o.reject(logger, fmt.Errorf("failed to check target type: %w", err))
	}

	var (
		handle     backend.JobHandle
		resultPath string
	)

	if isPartition {
		handle, err = o.adapter.FormatPartition(ctx, targetID, spec)
		if err != nil {
			return StartResult{}, o.reject(logger, fmt.Errorf("failed to start format: %w", err))
		}

		resultPath = targetID
	} else {
		table := backend.TableGPT
		if req.Table != nil {
			table = *req.Table
		}

		o.bus.Emit(ProgressMsg{Event: Message("Creating partition table...")})

		resultPath, handle, err = o.adapter.FormatWholeDisk(ctx, targetID, table, spec)
		if err != nil {
			return StartResult{}, o.reject(logger, fmt.Errorf("failed to start whole-disk format: %w", err))
		}

		o.bus.Emit(ProgressMsg{Event: Message("Formatting partition...")})
	}

	jobID := handle.ID()

	o.mu.Lock()
	o.state = StateFormatting
	o.jobID = jobID
	o.mu.Unlock()

	o.bus.Emit(ProgressMsg{Event: JobStarted(jobID)})

	logger.Info("job started", zap.String("job_id", jobID))

	done := make(chan struct{})

	go o.forward(logger, handle, done)

	return StartResult{
		JobID:      jobID,
		ResultPath: resultPath,
		Done:       done,
	}, nil
}

// reject emits a terminal Completed for a job the backend refused after
// preflight and passes the error through.
func (o *Orchestrator) reject(logger *zap.Logger, err error) error {
	logger.Error("format rejected", zap.Error(err))

	o.bus.Emit(ProgressMsg{Event: Completed{Err: err}})

	return err
}

// forward drains the job's event stream onto the bus.
//
// It guarantees exactly one terminal Completed per JobStarted: a stream that
// closes without completion gets one synthesized, and a panic is converted
// into a failure completion.
func (o *Orchestrator) forward(logger *zap.Logger, handle backend.JobHandle, done chan struct{}) {
	defer close(done)

	completed := false

	defer func() {
		if r := recover(); r != nil {
			logger.Error("forwarder panicked", zap.Any("panic", r))

			if !completed {
				o.finish(logger, fmt.Errorf("internal error: %v", r))
			}
		}
	}()

	for ev := range handle.Events() {
		switch ev := ev.(type) {
		case backend.PercentEvent:
			o.bus.Emit(ProgressMsg{Event: Percent(clampPercent(float64(ev)))})
		case backend.RateEvent:
			o.bus.Emit(ProgressMsg{Event: Rate(ev)})
		case backend.CompletedEvent:
			completed = true

			o.finish(logger, ev.Err)
		}
	}

	if !completed {
		o.finish(logger, errors.New("backend ended job without completion"))
	}
}

func (o *Orchestrator) finish(logger *zap.Logger, err error) {
	if err != nil {
		logger.Error("job finished", zap.Error(err))
	} else {
		logger.Info("job finished")
	}

	o.bus.Emit(ProgressMsg{Event: Completed{Err: err}})

	o.mu.Lock()
	o.state = StateIdle
	o.jobID = ""
	o.mu.Unlock()
}

// Cancel requests termination of the active job.
//
// It is idempotent: a no-op when no job id is assigned. A successful cancel
// does not change state; the job's own stream delivers the terminal
// Completed. A failed cancel emits a status line and re-emits JobStarted so
// observers can reconcile their view.
func (o *Orchestrator) Cancel(ctx context.Context) error {
	o.mu.Lock()
	state, jobID := o.state, o.jobID
	o.mu.Unlock()

	if state != StateFormatting || jobID == "" {
		return nil
	}

	if err := o.adapter.Cancel(ctx, jobID); err != nil {
		o.logger.Error("cancel failed", zap.String("job_id", jobID), zap.Error(err))

		o.bus.Emit(StatusMsg("Cancel failed: " + err.Error()))
		o.bus.Emit(ProgressMsg{Event: JobStarted(jobID)})

		return fmt.Errorf("failed to cancel job %s: %w", jobID, err)
	}

	return nil
}

// ListDevices returns the adapter's device snapshot.
func (o *Orchestrator) ListDevices(ctx context.Context) ([]backend.BlockDevice, error) {
	devices, err := o.adapter.ListDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	return devices, nil
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.state
}

func clampPercent(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}
