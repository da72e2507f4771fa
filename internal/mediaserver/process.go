// process.go supervises the external media-server binary itself. The
// start/stop escalation is grounded on the pack's resilient RTSP connection
// manager: exec.Command plus SysProcAttr{Setpgid: true} so the binary (and
// anything it forks) lives in its own process group, then SIGTERM with a
// bounded wait before escalating to SIGKILL.
package mediaserver

import (
	"context"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

type processHandle struct {
	cmd     *exec.Cmd
	startedAt time.Time
	exited  chan struct{}
	exitErr error
}

func spawnProcess(ctx context.Context, binary string, args []string, log zerolog.Logger) (*processHandle, error) {
	cmd := exec.Command(binary, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", binary, err)
	}

	h := &processHandle{cmd: cmd, startedAt: time.Now(), exited: make(chan struct{})}
	go func() {
		h.exitErr = cmd.Wait()
		close(h.exited)
	}()

	log.Info().Str("binary", binary).Int("pid", cmd.Process.Pid).Msg("media server process started")
	return h, nil
}

// stop sends SIGTERM to the process group, waits up to timeout, then
// escalates to SIGKILL -- the same two-stage shutdown the pack's RTSP
// connection manager uses for its own child processes.
func (h *processHandle) stop(timeout time.Duration) error {
	if h == nil || h.cmd.Process == nil {
		return nil
	}

	pgid := h.cmd.Process.Pid
	_ = syscall.Kill(-pgid, syscall.SIGTERM)

	select {
	case <-h.exited:
		return nil
	case <-time.After(timeout):
	}

	_ = syscall.Kill(-pgid, syscall.SIGKILL)
	<-h.exited
	return nil
}

func (h *processHandle) running() bool {
	if h == nil {
		return false
	}
	select {
	case <-h.exited:
		return false
	default:
		return true
	}
}
