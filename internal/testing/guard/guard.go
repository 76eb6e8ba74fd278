// Package guard switches the process into test mode when imported for side
// effects, so routers and entrypoints skip request logging and external
// connections.
package guard

import (
	"os"
	"sync"
)

// TestModeEnv names the variable read by app.InTestMode.
const TestModeEnv = "PAYABLES_TEST_MODE"

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv(TestModeEnv) == "" {
			_ = os.Setenv(TestModeEnv, "1")
		}
	})
}
