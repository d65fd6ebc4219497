package app

import (
	"os"
	"testing"

	"github.com/vk/calcgrid/internal/hcl"
	"github.com/vk/calcgrid/internal/testutil"
)

// SetupAppTest creates a new app instance for system testing. Its logs are
// captured at debug level and printed when CALCGRID_TEST_LOGS is "true".
func SetupAppTest(t *testing.T, appConfig *Config) (*App, *testutil.SafeBuffer) {
	t.Helper()

	logBuffer := &testutil.SafeBuffer{}
	if appConfig.LogLevel == "" {
		appConfig.LogLevel = "debug"
	}
	testApp := NewApp(logBuffer, appConfig, hcl.NewLoader())

	t.Cleanup(func() {
		if err := testApp.Close(testApp.Context()); err != nil {
			t.Errorf("closing app: %v", err)
		}
		if os.Getenv("CALCGRID_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})

	return testApp, logBuffer
}
