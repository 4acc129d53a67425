package events

import (
	"github.com/btcsuite/btclog"

	"github.com/agentpay/relaynode/internal/buildlog"
)

const Subsystem = "EVNT"

var log btclog.Logger = buildlog.NewSubLogger(Subsystem, btclog.LevelInfo)

// UseLogger lets cmd/relaynoded wire this package's logger to the
// process-wide backend at a chosen level.
func UseLogger(logger btclog.Logger) {
	log = logger
}
