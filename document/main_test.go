package document

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain guards against goroutine leaks from SplitWorker's ticker loop.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
