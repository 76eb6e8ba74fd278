package app

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// testModeEnv short-circuits both binaries before they dial Redis or
// PostgreSQL. The guard package sets it for every test binary.
const testModeEnv = "PAYABLES_TEST_MODE"

var testMode struct {
	once sync.Once
	on   atomic.Bool
}

// InTestMode reads PAYABLES_TEST_MODE once and caches the answer.
func InTestMode() bool {
	testMode.once.Do(RefreshTestMode)
	return testMode.on.Load()
}

// RefreshTestMode re-reads the variable. Anything strconv.ParseBool rejects
// counts as off.
func RefreshTestMode() {
	on, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(testModeEnv)))
	testMode.on.Store(err == nil && on)
}
