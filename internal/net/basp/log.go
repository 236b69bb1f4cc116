package basp

import "github.com/btcsuite/btclog/v2"

// log is the package-level logger used by the BASP broker/header codec. It
// defaults to a disabled logger so importing this package has no side
// effects until the host binary installs a real one via UseLogger.
var log btclog.Logger = btclog.Disabled

// UseLogger sets the package-level logger used by this package. Host
// binaries should call this once during startup, typically with a
// sub-logger tagged "BASP" carved out of a shared btclog.Handler set.
func UseLogger(logger btclog.Logger) {
	log = logger
}
