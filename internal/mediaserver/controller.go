// Package mediaserver implements the Media Server Controller (spec.md
// §4.5): it owns the external media-server process handle, gates every
// caller through a single lifecycle lock, and applies the crash-restart
// budget spec.md §9 requires.
package mediaserver

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/BigTonyTones/onvif-gateway/internal/apperr"
	"github.com/BigTonyTones/onvif-gateway/internal/metrics"
	"github.com/BigTonyTones/onvif-gateway/internal/recipe"
)

const (
	restartBudget       = 5
	restartWindow       = 60 * time.Second
	stopGrace           = 10 * time.Second
	readinessPollPeriod = 250 * time.Millisecond
	readinessBudget     = 20 * time.Second
)

// State is the coarse status reported by StatusSnapshot.
type State string

const (
	StateNotStarted State = "not_started"
	StateRunning    State = "running"
	StateCrashed    State = "crashed"
)

// Status is the Media Server Controller's externally visible state
// (spec.md §4.5: "status(): {not_started, running(pid, since),
// crashed(exit_code)}").
type Status struct {
	State    State
	PID      int
	Since    time.Time
	ExitCode int
}

// Controller owns the external media-server binary, its generated
// configuration file, and the crash-restart budget that protects against
// flapping.
type Controller struct {
	// mu is the single lifecycle lock: "at most one apply may be in
	// flight; a second caller blocks on a fair queue" (spec.md §4.5).
	mu sync.Mutex

	binary     string
	args       []string
	configPath string

	rtspPort, hlsPort, apiPort int

	client *apiClient
	log    zerolog.Logger

	proc         *processHandle
	expectedStop bool
	dead         bool

	restarts []time.Time

	// onDead is invoked (asynchronously, off the lock) the moment the
	// crash-restart budget is exceeded, so the Supervisor can flip every
	// affected camera to failed (spec.md §8/§9).
	onDead func()
}

// New builds a Controller. digestUsername/digestPassword, if set,
// authenticate against the control API with HTTP Digest the way the
// teacher's pkg/digest transport does for upstream camera calls.
func New(binary string, args []string, configPath, apiBaseURL string, rtspPort, hlsPort, apiPort int, digestUsername, digestPassword string, log zerolog.Logger) *Controller {
	return &Controller{
		binary:     binary,
		args:       args,
		configPath: configPath,
		rtspPort:   rtspPort,
		hlsPort:    hlsPort,
		apiPort:    apiPort,
		client:     newAPIClient(apiBaseURL, digestUsername, digestPassword),
		log:        log.With().Str("component", "mediaserver").Logger(),
	}
}

// SetDeadCallback registers fn to run when the controller marks itself
// dead, whether from a respawn failure or from exceeding the
// crash-restart budget. fn runs on its own goroutine so it can safely
// call back into the Supervisor without risking a deadlock on mu.
func (c *Controller) SetDeadCallback(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDead = fn
}

// Apply writes paths to the configuration file and either starts the
// process (first call) or reloads/respawns it (subsequent calls).
func (c *Controller) Apply(ctx context.Context, paths map[string]recipe.Path) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dead {
		return apperr.New(apperr.MediaDead, "media server exceeded its restart budget; call Stop to reset")
	}

	if err := writeConfig(c.configPath, paths, c.rtspPort, c.hlsPort, c.apiPort); err != nil {
		return err
	}

	if c.proc.running() {
		if err := c.client.reload(ctx); err == nil {
			return nil
		}
		c.log.Warn().Msg("media server does not support reload; killing and respawning")
		c.expectedStop = true
		_ = c.proc.stop(stopGrace)
	}

	return c.spawnLocked(ctx)
}

// spawnLocked starts the process and launches the goroutine that reacts to
// an unexpected exit. Caller must hold mu.
func (c *Controller) spawnLocked(ctx context.Context) error {
	proc, err := spawnProcess(ctx, c.binary, append(c.args, "--config", c.configPath), c.log)
	if err != nil {
		return apperr.Wrap(apperr.Internal, err, "start media server")
	}
	c.proc = proc
	c.expectedStop = false

	go c.watch(proc)
	return nil
}

// watch reacts to the process dying on its own, applying the rolling
// restart-budget policy (spec.md §4.5, §9).
func (c *Controller) watch(proc *processHandle) {
	<-proc.exited

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.expectedStop || c.proc != proc {
		return
	}

	now := time.Now()
	cutoff := now.Add(-restartWindow)
	fresh := c.restarts[:0]
	for _, t := range c.restarts {
		if t.After(cutoff) {
			fresh = append(fresh, t)
		}
	}
	c.restarts = append(fresh, now)

	if len(c.restarts) > restartBudget {
		c.dead = true
		metrics.MediaServerDeadTotal.Inc()
		c.log.Error().Msg("media server crash-restart budget exceeded; marking dead")
		c.notifyDeadLocked()
		return
	}

	c.log.Warn().Int("restart_count", len(c.restarts)).Msg("media server exited unexpectedly, restarting")
	metrics.MediaServerRestartsTotal.Inc()
	if err := c.spawnLocked(context.Background()); err != nil {
		c.log.Error().Err(err).Msg("failed to respawn media server")
		c.dead = true
		metrics.MediaServerDeadTotal.Inc()
		c.notifyDeadLocked()
	}
}

// notifyDeadLocked fires the registered dead callback, if any, on its own
// goroutine. Caller must hold mu; onDead must not call back into the
// Controller synchronously or it will deadlock against that hold.
func (c *Controller) notifyDeadLocked() {
	if c.onDead != nil {
		go c.onDead()
	}
}

// WaitReady polls the control API until every path in names reports ready,
// or the 20s budget (spec.md §4.7 step 4) elapses.
func (c *Controller) WaitReady(ctx context.Context, names []string) error {
	deadline := time.Now().Add(readinessBudget)
	ticker := time.NewTicker(readinessPollPeriod)
	defer ticker.Stop()

	for {
		allReady := true
		for _, name := range names {
			if !c.client.pathReady(ctx, name) {
				allReady = false
				break
			}
		}
		if allReady {
			return nil
		}
		if time.Now().After(deadline) {
			return apperr.New(apperr.Timeout, "media server did not report %v ready within %s", names, readinessBudget)
		}
		select {
		case <-ctx.Done():
			return apperr.Wrap(apperr.Cancelled, ctx.Err(), "waiting for media server readiness")
		case <-ticker.C:
		}
	}
}

// Stop terminates the media server (SIGTERM, then escalate to SIGKILL
// after stopGrace) and resets the crash-restart budget, undoing any
// E_MEDIA_DEAD lockout.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.expectedStop = true
	if c.proc.running() {
		_ = c.proc.stop(stopGrace)
	}
	c.restarts = nil
	c.dead = false
	return nil
}

// StatusSnapshot returns the controller's current externally visible
// state.
func (c *Controller) StatusSnapshot() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.proc == nil {
		return Status{State: StateNotStarted}
	}
	if !c.dead && c.proc.running() {
		return Status{State: StateRunning, PID: c.proc.cmd.Process.Pid, Since: c.proc.startedAt}
	}
	st := Status{State: StateCrashed}
	if !c.proc.running() && c.proc.cmd.ProcessState != nil {
		st.ExitCode = c.proc.cmd.ProcessState.ExitCode()
	}
	return st
}
