// Package buildlog sets up the shared btclog backend used by every
// subsystem in the node, following the same one-backend-many-loggers
// layout the daemon used upstream: each package owns a package-scoped
// btclog.Logger that is wired at process start via UseLogger.
package buildlog

import (
	"os"

	"github.com/btcsuite/btclog"
)

// Backend is the single btclog.Backend all subsystem loggers are
// derived from. It is created once, when this package is initialised,
// and cmd/relaynoded hands loggers derived from it (via NewSubLogger)
// to every package's UseLogger.
var Backend = btclog.NewBackend(os.Stdout)

// NewSubLogger creates a subsystem logger tagged with the given short
// name (e.g. "PKTH", "NEGO") at the given level.
func NewSubLogger(tag string, level btclog.Level) btclog.Logger {
	logger := Backend.Logger(tag)
	logger.SetLevel(level)
	return logger
}

// ParseLevel maps the textual log levels accepted by RELAY_LOG_LEVEL
// onto btclog.Level, defaulting to Info for anything unrecognized.
func ParseLevel(s string) btclog.Level {
	level, ok := btclog.LevelFromString(s)
	if !ok {
		return btclog.LevelInfo
	}
	return level
}
