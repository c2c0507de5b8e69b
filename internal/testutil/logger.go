// Package testutil provides deterministic fakes for model-dependent tests.
package testutil

import "log/slog"

// DiscardLogger returns a slog.Logger that discards all output.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
