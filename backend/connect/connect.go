// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package connect selects the disk service adapter for this host: the
// UDisks2 binding when the daemon answers, the mock otherwise.
package connect

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/diskfmt/diskfmt/backend"
	"github.com/diskfmt/diskfmt/backend/mock"
)

// Options configures adapter selection.
type Options struct {
	// Logger for the chosen adapter.
	Logger *zap.Logger
	// Status receives one-line warnings about fallback decisions; may be
	// nil.
	Status func(string)
	// UseMock forces the mock adapter.
	UseMock bool
	// MockOptions are extra options applied when the mock is chosen.
	MockOptions []mock.Option
}

// New returns a ready adapter.
//
// When the real backend is unavailable it falls back to the mock with a
// warning instead of refusing to run.
func New(ctx context.Context, opts Options) backend.Adapter {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	status := opts.Status
	if status == nil {
		status = func(string) {}
	}

	if !opts.UseMock {
		adapter, err := dial(ctx, logger)
		if err == nil {
			return adapter
		}

		logger.Warn("disk service unavailable", zap.Error(err))

		status(fmt.Sprintf("Warning: Failed to connect to UDisks2: %v", err))
		status("Falling back to mock backend (no actual disk operations will be performed)")
	} else {
		status("Warning: Using mock backend. UDisks2 unavailable.")
	}

	mockOpts := append([]mock.Option{mock.WithLogger(logger)}, opts.MockOptions...)

	return mock.New(mockOpts...)
}
