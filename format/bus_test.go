// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package format_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diskfmt/diskfmt/format"
)

func TestBusOrdering(t *testing.T) {
	bus := format.NewBus(16)

	bus.Emit(format.StatusMsg("first"))
	bus.Emit(format.StatusMsg("second"))
	bus.Emit(format.ProgressMsg{Event: format.Percent(50)})

	assert.Equal(t, format.StatusMsg("first"), <-bus.Receive())
	assert.Equal(t, format.StatusMsg("second"), <-bus.Receive())
	assert.Equal(t, format.ProgressMsg{Event: format.Percent(50)}, <-bus.Receive())
}

func TestBusDropsOnOverflow(t *testing.T) {
	bus := format.NewBus(1)

	bus.Emit(format.StatusMsg("kept"))
	bus.Emit(format.StatusMsg("dropped"))
	bus.Emit(format.ProgressMsg{Event: format.Percent(10)}) // dropped too

	assert.Equal(t, format.StatusMsg("kept"), <-bus.Receive())

	select {
	case msg := <-bus.Receive():
		t.Fatalf("unexpected message: %v", msg)
	default:
	}
}

func TestBusNeverDropsCompleted(t *testing.T) {
	bus := format.NewBus(1)

	bus.Emit(format.StatusMsg("filler"))

	delivered := make(chan struct{})

	go func() {
		bus.Emit(format.ProgressMsg{Event: format.Completed{}})
		close(delivered)
	}()

	select {
	case <-delivered:
		t.Fatal("terminal event should block until the bus has room")
	case <-time.After(50 * time.Millisecond):
	}

	assert.Equal(t, format.StatusMsg("filler"), <-bus.Receive())

	require.Equal(t, format.ProgressMsg{Event: format.Completed{}}, <-bus.Receive())

	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("terminal emit did not finish")
	}
}

func TestBusWaker(t *testing.T) {
	var wakes atomic.Int64

	bus := format.NewBus(1, format.WithWaker(func() { wakes.Add(1) }))

	bus.Emit(format.StatusMsg("one"))
	bus.Emit(format.StatusMsg("overflow, no wake"))

	assert.EqualValues(t, 1, wakes.Load())
}
