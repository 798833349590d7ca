// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build linux

// Package udisks binds the disk service adapter to the UDisks2 daemon over
// the system D-Bus.
package udisks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/siderolabs/gen/xslices"
	"go.uber.org/zap"

	"github.com/diskfmt/diskfmt/backend"
)

const (
	service = "org.freedesktop.UDisks2"

	blockIface     = "org.freedesktop.UDisks2.Block"
	driveIface     = "org.freedesktop.UDisks2.Drive"
	partitionIface = "org.freedesktop.UDisks2.Partition"
	tableIface     = "org.freedesktop.UDisks2.PartitionTable"
	jobIface       = "org.freedesktop.UDisks2.Job"

	objectManagerIface = "org.freedesktop.DBus.ObjectManager"
	propertiesIface    = "org.freedesktop.DBus.Properties"

	basePath = dbus.ObjectPath("/org/freedesktop/UDisks2")
)

const (
	// jobDiscoveryTimeout bounds the wait for the daemon to announce the
	// job object after a format call is issued.
	jobDiscoveryTimeout = 10 * time.Second
	// completionGrace bounds the wait for the job's Completed signal after
	// the format call itself has returned success.
	completionGrace = 5 * time.Second
	// partitionSettleTimeout bounds the wait for a freshly created
	// partition's device node to appear.
	partitionSettleTimeout = 15 * time.Second
)

type managedObjects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// Adapter is the UDisks2-backed disk service adapter.
type Adapter struct {
	conn   *dbus.Conn
	logger *zap.Logger

	mu      sync.Mutex
	subs    map[uint64]*subscription
	nextSub uint64
}

// Option configures the adapter.
type Option func(*Adapter)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// New connects to the system bus and verifies the UDisks2 daemon answers.
func New(ctx context.Context, opts ...Option) (*Adapter, error) {
	a := &Adapter{
		logger: zap.NewNop(),
		subs:   map[uint64]*subscription{},
	}

	for _, opt := range opts {
		opt(a)
	}

	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}

	a.conn = conn

	matches := [][]dbus.MatchOption{
		{
			dbus.WithMatchSender(service),
			dbus.WithMatchInterface(objectManagerIface),
			dbus.WithMatchMember("InterfacesAdded"),
		},
		{
			dbus.WithMatchSender(service),
			dbus.WithMatchInterface(propertiesIface),
			dbus.WithMatchMember("PropertiesChanged"),
			dbus.WithMatchArg(0, jobIface),
		},
		{
			dbus.WithMatchSender(service),
			dbus.WithMatchInterface(jobIface),
			dbus.WithMatchMember("Completed"),
		},
	}

	for _, match := range matches {
		if err = conn.AddMatchSignalContext(ctx, match...); err != nil {
			return nil, fmt.Errorf("failed to subscribe to UDisks2 signals: %w", err)
		}
	}

	signals := make(chan *dbus.Signal, 128)
	conn.Signal(signals)

	go a.dispatch(signals)

	// quietly check we actually have a running udisks2 service
	if _, err = a.managedObjects(ctx); err != nil {
		return nil, fmt.Errorf("failed to reach UDisks2: %w", err)
	}

	return a, nil
}

// ListDevices implements backend.Adapter.
//
// Optical drives and non-removable devices are filtered out.
func (a *Adapter) ListDevices(ctx context.Context) ([]backend.BlockDevice, error) {
	objects, err := a.managedObjects(ctx)
	if err != nil {
		return nil, err
	}

	var paths []dbus.ObjectPath

	for path, ifaces := range objects {
		block, ok := ifaces[blockIface]
		if !ok {
			continue
		}

		devPath := byteString(block["Device"])

		if strings.HasPrefix(devPath, "/dev/sr") || strings.HasPrefix(devPath, "/dev/loop") {
			continue
		}

		if boolProp(block["HintIgnore"]) {
			continue
		}

		drivePath, _ := block["Drive"].Value().(dbus.ObjectPath) //nolint:errcheck
		drive, ok := objects[drivePath][driveIface]

		if !ok || boolProp(drive["Optical"]) || !boolProp(drive["Removable"]) {
			continue
		}

		paths = append(paths, path)
	}

	return xslices.Map(paths, func(path dbus.ObjectPath) backend.BlockDevice {
		return deviceFromObject(path, objects)
	}), nil
}

// IsPartition implements backend.Adapter.
func (a *Adapter) IsPartition(ctx context.Context, objectPath string) (bool, error) {
	objects, err := a.managedObjects(ctx)
	if err != nil {
		return false, err
	}

	ifaces, ok := objects[dbus.ObjectPath(objectPath)]
	if !ok {
		return false, fmt.Errorf("no such object: %s", objectPath)
	}

	_, isPartition := ifaces[partitionIface]

	return isPartition, nil
}

// FormatPartition implements backend.Adapter.
func (a *Adapter) FormatPartition(ctx context.Context, objectPath string, spec backend.FormatSpec) (backend.JobHandle, error) {
	sub := a.subscribe()

	fstype, options := formatCallOptions(spec)

	a.logger.Debug("formatting",
		zap.String("object_path", objectPath),
		zap.String("fs", fstype),
	)

	callErr := make(chan error, 1)

	go func() {
		obj := a.conn.Object(service, dbus.ObjectPath(objectPath))
		callErr <- obj.CallWithContext(ctx, blockIface+".Format", 0, fstype, options).Err
	}()

	jobPath, err := a.awaitJob(ctx, sub, dbus.ObjectPath(objectPath), callErr)
	if err != nil {
		a.unsubscribe(sub)

		return nil, err
	}

	if jobPath == "" {
		// the format finished before the daemon announced a job object
		a.unsubscribe(sub)

		return finishedHandle(objectPath), nil
	}

	h := &jobHandle{
		id:     string(jobPath),
		events: make(chan backend.JobEvent, 16),
	}

	go a.streamJob(h, sub, jobPath, callErr)

	return h, nil
}

// FormatWholeDisk implements backend.Adapter.
//
// It writes a fresh partition table, creates a single partition spanning the
// disk, waits for its device node to settle and formats it.
func (a *Adapter) FormatWholeDisk(ctx context.Context, objectPath string, table backend.PartitionTable, spec backend.FormatSpec) (string, backend.JobHandle, error) {
	tableType := "gpt"
	if table == backend.TableDOS {
		tableType = "dos"
	}

	obj := a.conn.Object(service, dbus.ObjectPath(objectPath))

	err := obj.CallWithContext(ctx, blockIface+".Format", 0, tableType, map[string]dbus.Variant{}).Err
	if err != nil {
		return "", nil, fmt.Errorf("failed to create partition table: %w", err)
	}

	var partitionPath dbus.ObjectPath

	// offset/size zero selects maximal placement
	err = obj.CallWithContext(ctx, tableIface+".CreatePartition", 0,
		uint64(0), uint64(0), "", "", map[string]dbus.Variant{},
	).Store(&partitionPath)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create partition: %w", err)
	}

	if err = a.waitForPartition(ctx, partitionPath); err != nil {
		return "", nil, err
	}

	handle, err := a.FormatPartition(ctx, string(partitionPath), spec)
	if err != nil {
		return "", nil, err
	}

	return string(partitionPath), handle, nil
}

// Cancel implements backend.Adapter.
//
// The job id is the job's object path; the outcome for a job that already
// completed is whatever the daemon reports and is passed through verbatim.
func (a *Adapter) Cancel(ctx context.Context, jobID string) error {
	obj := a.conn.Object(service, dbus.ObjectPath(jobID))

	if err := obj.CallWithContext(ctx, jobIface+".Cancel", 0, map[string]dbus.Variant{}).Err; err != nil {
		return fmt.Errorf("failed to cancel job %s: %w", jobID, err)
	}

	return nil
}

// Close releases the bus connection.
func (a *Adapter) Close() error {
	return a.conn.Close()
}

func (a *Adapter) managedObjects(ctx context.Context) (managedObjects, error) {
	var objects managedObjects

	obj := a.conn.Object(service, basePath)

	if err := obj.CallWithContext(ctx, objectManagerIface+".GetManagedObjects", 0).Store(&objects); err != nil {
		return nil, fmt.Errorf("failed to enumerate UDisks2 objects: %w", err)
	}

	return objects, nil
}

// awaitJob waits for the daemon to announce a job object bound to the
// target. An empty path with nil error means the format call finished
// without a visible job.
func (a *Adapter) awaitJob(ctx context.Context, sub *subscription, target dbus.ObjectPath, callErr chan error) (dbus.ObjectPath, error) {
	timeout := time.NewTimer(jobDiscoveryTimeout)
	defer timeout.Stop()

	for {
		select {
		case sig := <-sub.ch:
			if jobPath, ok := jobAnnouncement(sig, target); ok {
				return jobPath, nil
			}
		case err := <-callErr:
			if err != nil {
				return "", fmt.Errorf("format call failed: %w", err)
			}

			return "", nil
		case <-timeout.C:
			return "", errors.New("timed out waiting for UDisks2 job")
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// streamJob forwards the job's progress onto the handle's event channel
// until the Completed signal arrives.
func (a *Adapter) streamJob(h *jobHandle, sub *subscription, jobPath dbus.ObjectPath, callErr chan error) {
	defer a.unsubscribe(sub)
	defer close(h.events)

	var grace <-chan time.Time

	for {
		select {
		case sig := <-sub.ch:
			if sig.Path != jobPath {
				continue
			}

			switch sig.Name {
			case propertiesIface + ".PropertiesChanged":
				a.forwardProperties(h, sig)
			case jobIface + ".Completed":
				var err error

				if success, message, ok := completionBody(sig); ok && !success {
					err = errors.New(message)
				}

				h.events <- backend.CompletedEvent{Err: err}

				return
			}
		case err := <-callErr:
			if err != nil {
				h.events <- backend.CompletedEvent{Err: err}

				return
			}

			// the call returned success; give the Completed signal a
			// bounded window to arrive
			callErr = nil
			grace = time.After(completionGrace)
		case <-grace:
			h.events <- backend.CompletedEvent{}

			return
		}
	}
}

func (a *Adapter) forwardProperties(h *jobHandle, sig *dbus.Signal) {
	if len(sig.Body) < 2 {
		return
	}

	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return
	}

	if v, ok := changed["Progress"]; ok {
		if progress, ok := v.Value().(float64); ok {
			h.events <- backend.PercentEvent(progress * 100)
		}
	}

	if v, ok := changed["Rate"]; ok {
		if rate, ok := v.Value().(uint64); ok && rate > 0 {
			h.events <- backend.RateEvent(rate)
		}
	}
}

func (a *Adapter) dispatch(signals chan *dbus.Signal) {
	for sig := range signals {
		a.mu.Lock()
		subs := make([]*subscription, 0, len(a.subs))

		for _, sub := range a.subs {
			subs = append(subs, sub)
		}
		a.mu.Unlock()

		for _, sub := range subs {
			select {
			case sub.ch <- sig:
			case <-sub.done:
			}
		}
	}
}

type subscription struct {
	ch   chan *dbus.Signal
	done chan struct{}
	id   uint64
}

func (a *Adapter) subscribe() *subscription {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.nextSub++

	sub := &subscription{
		ch:   make(chan *dbus.Signal, 128),
		done: make(chan struct{}),
		id:   a.nextSub,
	}

	a.subs[sub.id] = sub

	return sub
}

func (a *Adapter) unsubscribe(sub *subscription) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.subs[sub.id]; ok {
		delete(a.subs, sub.id)
		close(sub.done)
	}
}
