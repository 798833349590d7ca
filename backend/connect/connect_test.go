// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package connect_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/diskfmt/diskfmt/backend/connect"
	"github.com/diskfmt/diskfmt/backend/mock"
)

func TestForcedMock(t *testing.T) {
	var statuses []string

	adapter := connect.New(context.Background(), connect.Options{
		UseMock: true,
		Logger:  zaptest.NewLogger(t),
		Status:  func(line string) { statuses = append(statuses, line) },
	})

	require.IsType(t, &mock.Adapter{}, adapter)

	require.Len(t, statuses, 1)
	assert.Contains(t, statuses[0], "mock backend")
}
