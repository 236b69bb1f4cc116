package build

import (
	"github.com/btcsuite/btclog"
	btclogv2 "github.com/btcsuite/btclog/v2"
)

// SubLoggerGenerator carves out per-subsystem loggers from a shared
// btclog/v2 handler set, tagging each with a short subsystem code (e.g.
// "ACTR", "BASP", "MUX "). This mirrors the sub-logger pattern used
// throughout the lnd/btcsuite ecosystem so every subsystem's level can be
// tuned independently at runtime.
type SubLoggerGenerator struct {
	handler btclogv2.Handler
}

// NewSubLoggerGenerator wraps a handler set (typically the one fanning out
// to stdout and a rotating log file) so subsystem loggers can be derived
// from it on demand.
func NewSubLoggerGenerator(handler btclogv2.Handler) *SubLoggerGenerator {
	return &SubLoggerGenerator{handler: handler}
}

// Logger returns a new logger tagged with the given subsystem code.
func (g *SubLoggerGenerator) Logger(subsystem string) btclog.Logger {
	return btclogv2.NewSLogger(g.handler.SubSystem(subsystem), subsystem)
}

// SetLevel adjusts the logging level for every subsystem sharing this
// generator's handler set.
func (g *SubLoggerGenerator) SetLevel(level btclog.Level) {
	g.handler.SetLevel(level)
}
