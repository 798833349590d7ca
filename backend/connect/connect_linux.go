// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build linux

package connect

import (
	"context"

	"go.uber.org/zap"

	"github.com/diskfmt/diskfmt/backend"
	"github.com/diskfmt/diskfmt/backend/udisks"
)

func dial(ctx context.Context, logger *zap.Logger) (backend.Adapter, error) {
	return udisks.New(ctx, udisks.WithLogger(logger))
}
