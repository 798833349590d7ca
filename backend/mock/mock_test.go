// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package mock_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/diskfmt/diskfmt/backend"
	"github.com/diskfmt/diskfmt/backend/mock"
)

func vfatSpec(t *testing.T) backend.FormatSpec {
	t.Helper()

	spec, err := backend.NewSpec("vfat", nil, nil, true)
	require.NoError(t, err)

	return spec
}

func drain(t *testing.T, h backend.JobHandle) []backend.JobEvent {
	t.Helper()

	var events []backend.JobEvent

	timeout := time.After(5 * time.Second)

	for {
		select {
		case ev, ok := <-h.Events():
			if !ok {
				return events
			}

			events = append(events, ev)
		case <-timeout:
			t.Fatal("timed out draining job events")
		}
	}
}

func TestListDevices(t *testing.T) {
	a := mock.New(mock.WithLogger(zaptest.NewLogger(t)))

	devices, err := a.ListDevices(context.Background())
	require.NoError(t, err)

	require.Len(t, devices, 1)

	d := devices[0]

	assert.Equal(t, "/dev/sdc1", d.DevPath)
	assert.Equal(t, "0", d.ObjectPath)
	assert.True(t, d.IsPartition)

	require.NotNil(t, d.FSType)
	assert.Equal(t, "vfat", *d.FSType)

	require.NotNil(t, d.Label)
	assert.Equal(t, "MOCK", *d.Label)

	require.NotNil(t, d.VendorModel)
	assert.Equal(t, "Mock USB", *d.VendorModel)
}

func TestIsPartition(t *testing.T) {
	a := mock.New()

	for objectPath, expected := range map[string]bool{
		"0":        true,
		"disk-1":   false,
		"disk-1p1": true,
	} {
		actual, err := a.IsPartition(context.Background(), objectPath)
		require.NoError(t, err)

		assert.Equal(t, expected, actual, "object %q", objectPath)
	}
}

func TestFormatScript(t *testing.T) {
	a := mock.New(mock.WithStepDelay(0), mock.WithLogger(zaptest.NewLogger(t)))

	h, err := a.FormatPartition(context.Background(), "0", vfatSpec(t))
	require.NoError(t, err)

	assert.Equal(t, mock.JobID, h.ID())

	assert.Equal(t, []backend.JobEvent{
		backend.PercentEvent(25),
		backend.PercentEvent(50),
		backend.PercentEvent(75),
		backend.PercentEvent(100),
		backend.CompletedEvent{},
	}, drain(t, h))
}

func TestFormatWholeDisk(t *testing.T) {
	a := mock.New(mock.WithStepDelay(0))

	newPart, h, err := a.FormatWholeDisk(context.Background(), "disk-1", backend.TableGPT, vfatSpec(t))
	require.NoError(t, err)

	assert.Equal(t, "disk-1p1", newPart)

	events := drain(t, h)

	require.NotEmpty(t, events)
	assert.Equal(t, backend.CompletedEvent{}, events[len(events)-1])
}

func TestCancelDoesNotShortCircuit(t *testing.T) {
	a := mock.New(mock.WithStepDelay(0))

	h, err := a.FormatPartition(context.Background(), "0", vfatSpec(t))
	require.NoError(t, err)

	require.NoError(t, a.Cancel(context.Background(), h.ID()))

	events := drain(t, h)

	assert.Equal(t, backend.CompletedEvent{}, events[len(events)-1])
}

func TestCancellableJobs(t *testing.T) {
	a := mock.New(mock.WithStepDelay(300*time.Millisecond), mock.WithCancellableJobs())

	h, err := a.FormatPartition(context.Background(), "0", vfatSpec(t))
	require.NoError(t, err)

	// the cancel flag lands well before the first progress step fires
	require.NoError(t, a.Cancel(context.Background(), h.ID()))

	events := drain(t, h)

	require.NotEmpty(t, events)

	completed, ok := events[len(events)-1].(backend.CompletedEvent)
	require.True(t, ok)

	assert.ErrorIs(t, completed.Err, mock.ErrJobCancelled)
}
