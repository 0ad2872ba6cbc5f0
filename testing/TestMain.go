package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

// Setup flags the process as a test run so commands and the router skip
// runtime side effects, and points external services at dead addresses.
func Setup() {
	once.Do(func() {
		_ = os.Setenv("HR_ANALYTICS_TEST_MODE", "1")
		if os.Getenv("GOTENBERG_URL") == "" {
			_ = os.Setenv("GOTENBERG_URL", "http://127.0.0.1:0")
		}
		if os.Getenv("REDIS_ADDR") == "" {
			_ = os.Setenv("REDIS_ADDR", "127.0.0.1:0")
		}
	})
}

// Main is a drop-in TestMain body.
func Main(m *stdtesting.M) {
	Setup()
	os.Exit(m.Run())
}
