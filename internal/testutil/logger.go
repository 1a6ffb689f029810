// Package testutil provides shared test helpers for ipscope packages.
package testutil

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// Logger returns a logger that writes through t.Log, so module output only
// shows up for failing or verbose runs. Debug entries are dropped; sweeps
// log one per probe.
func Logger(t testing.TB) *zap.Logger {
	return zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))
}
