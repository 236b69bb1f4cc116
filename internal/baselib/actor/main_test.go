package actor

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain verifies that no test in this package leaks a goroutine past its
// own completion; actors, mailboxes, and the scheduled-behavior timer all
// spawn goroutines that must be torn down on Stop/Close.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
