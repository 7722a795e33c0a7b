// Package testing switches the console into test mode for every package that imports it.
package testing

import (
	"os"
	stdtesting "testing"
)

// defaults apply only when the variable is unset, so a developer can still point a test
// run at real services.
var defaults = map[string]string{
	"LEARNHUB_TEST_MODE":        "1",
	"LEARNHUB_SIGNAL_TRANSPORT": "memory",
	"LEARNHUB_BACKEND_URL":      "http://127.0.0.1:0/api/v1",
}

func init() {
	for key, value := range defaults {
		if _, ok := os.LookupEnv(key); !ok {
			_ = os.Setenv(key, value)
		}
	}
}

// TestMain runs m with the defaults applied.
func TestMain(m *stdtesting.M) {
	os.Exit(m.Run())
}
