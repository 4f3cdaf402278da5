package segment

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain guards against goroutine leaks from the cache's singleflight
// groups.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
