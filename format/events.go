// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package format

import (
	"github.com/diskfmt/diskfmt/backend"
)

// ProgressEvent is one event in the lifecycle of a format job as observed on
// the bus.
//
// The set of implementations is closed: JobStarted, Percent, Rate, Message
// and Completed. For every JobStarted exactly one Completed follows; all
// other events of the job appear in between.
type ProgressEvent interface {
	progressEvent()
}

// JobStarted is the first event of a job; it carries the job id.
type JobStarted string

// Percent reports job progress; the orchestrator keeps it within [0, 100].
type Percent float64

// Rate reports the current throughput in bytes per second.
type Rate uint64

// Message is a human-readable status line scoped to the running operation.
type Message string

// Completed is the terminal event of a job; a nil Err means success.
type Completed struct {
	Err error
}

func (JobStarted) progressEvent() {}
func (Percent) progressEvent()    {}
func (Rate) progressEvent()       {}
func (Message) progressEvent()    {}
func (Completed) progressEvent()  {}

// Msg is a message delivered over the bus to the observer.
//
// The set of implementations is closed: StatusMsg, ProgressMsg, DevicesMsg
// and ClosedMsg.
type Msg interface {
	msg()
}

// StatusMsg is a free-form status line not tied to a job.
type StatusMsg string

// ProgressMsg wraps a job progress event.
type ProgressMsg struct {
	Event ProgressEvent
}

// DevicesMsg carries a refreshed device list to a view layer.
type DevicesMsg []backend.BlockDevice

// ClosedMsg asks the view layer to shut down.
type ClosedMsg struct{}

func (StatusMsg) msg()   {}
func (ProgressMsg) msg() {}
func (DevicesMsg) msg()  {}
func (ClosedMsg) msg()   {}
