package relaymonitor

import (
	"github.com/btcsuite/btclog"

	"github.com/agentpay/relaynode/internal/buildlog"
)

const Subsystem = "RLMN"

var log btclog.Logger = buildlog.NewSubLogger(Subsystem, btclog.LevelInfo)

func UseLogger(logger btclog.Logger) {
	log = logger
}
