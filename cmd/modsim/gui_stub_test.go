//go:build !gui

package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRun_DesktopWithoutSupport(t *testing.T) {
	sim, err := newSimulator(testConfig(freeURL(t)), newEventLog(10), zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.ErrorIs(t, run(context.Background(), sim, frontEndDesktop), errNoDesktop)
}
