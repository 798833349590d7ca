// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build !linux

package connect

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/diskfmt/diskfmt/backend"
)

func dial(context.Context, *zap.Logger) (backend.Adapter, error) {
	return nil, errors.New("UDisks2 backend requires linux")
}
