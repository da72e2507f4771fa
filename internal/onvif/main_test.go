package onvif

import (
	"fmt"
	"os"
	"testing"

	"go.uber.org/goleak"

	"github.com/BigTonyTones/onvif-gateway/internal/onvif/soap"
)

// TestMain stops soap's nonce-cleanup goroutine, which otherwise runs for
// the life of the process, before checking that no goroutine was left
// behind by the tests.
func TestMain(m *testing.M) {
	code := m.Run()
	soap.StopCleanup()
	if code == 0 {
		if err := goleak.Find(); err != nil {
			fmt.Fprintf(os.Stderr, "goleak: errors on successful test run: %v\n", err)
			code = 1
		}
	}
	os.Exit(code)
}
