package app

import (
	"os"
	"runtime/debug"
)

const testModeEnv = "LEARNHUB_TEST_MODE"

// InTestMode reports whether LEARNHUB_TEST_MODE=1. The binaries return before dialing
// Postgres or Redis in that mode.
func InTestMode() bool {
	return os.Getenv(testModeEnv) == "1"
}

// Version returns the module version and VCS revision baked into the binary.
func Version() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	version := info.Main.Version
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" && len(setting.Value) >= 7 {
			return version + "+" + setting.Value[:7]
		}
	}
	return version
}
