package mediaserver

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// TestControllerFiresDeadCallbackOnBudgetExceeded exercises spec.md §9's
// crash-restart budget together with the dead callback New wires into the
// Supervisor (spec.md §8: "on the 6th failure, status transitions to
// failed for all affected cameras"): a process that exits immediately,
// every time, must exhaust the 5-restarts/60s budget and notify.
func TestControllerFiresDeadCallbackOnBudgetExceeded(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "mediaserver.yaml")
	ctrl := New("/bin/sh", []string{"-c", "exit 1"}, configPath, "http://127.0.0.1:0", 19600, 19601, 19602, "", "", zerolog.Nop())

	var mu sync.Mutex
	fired := false
	done := make(chan struct{})
	ctrl.SetDeadCallback(func() {
		mu.Lock()
		defer mu.Unlock()
		if !fired {
			fired = true
			close(done)
		}
	})

	require.NoError(t, ctrl.Apply(context.Background(), nil))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("dead callback was not invoked within the crash-restart budget window")
	}

	require.Equal(t, StateCrashed, ctrl.StatusSnapshot().State)
}
