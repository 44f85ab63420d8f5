package app

import (
	"os"
	"sync"
	"sync/atomic"
)

var (
	testMode     atomic.Bool
	testModeOnce sync.Once
)

// InTestMode reports whether OPTISASS_TEST_MODE is enabled. The flag is read
// once and cached for the lifetime of the process.
func InTestMode() bool {
	testModeOnce.Do(func() {
		testMode.Store(os.Getenv("OPTISASS_TEST_MODE") == "1")
	})
	return testMode.Load()
}

// RefreshTestMode re-reads the environment flag. Only tests should call this.
func RefreshTestMode() {
	testMode.Store(os.Getenv("OPTISASS_TEST_MODE") == "1")
}
