// Package supervisor implements the Supervisor (spec.md §4.7): the single
// component the UI and API layer call to start, stop, update, and delete
// virtual cameras. It orchestrates the Config Store, Virtual NIC Manager,
// Media Recipe Compiler, Media Server Controller, and per-camera ONVIF
// Endpoints into the transactional start sequence and best-effort stop
// sequence spec.md §4.7 defines, grounded on the teacher's
// cmd/onvif-relay/main.go bootstrap (which wires the same components, just
// once at startup instead of per camera on demand).
package supervisor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/BigTonyTones/onvif-gateway/internal/apperr"
	"github.com/BigTonyTones/onvif-gateway/internal/mediaserver"
	"github.com/BigTonyTones/onvif-gateway/internal/metrics"
	"github.com/BigTonyTones/onvif-gateway/internal/model"
	"github.com/BigTonyTones/onvif-gateway/internal/notify"
	"github.com/BigTonyTones/onvif-gateway/internal/onvif"
	"github.com/BigTonyTones/onvif-gateway/internal/recipe"
	"github.com/BigTonyTones/onvif-gateway/internal/store"
	"github.com/BigTonyTones/onvif-gateway/internal/vnic"
)

// stopAllDeadline bounds stop_all's parallel fan-out (spec.md §4.7).
const stopAllDeadline = 15 * time.Second

// CameraStatus is the status_snapshot() element shape spec.md §4.7 names.
type CameraStatus struct {
	ID         int
	Status     model.Status
	AssignedIP string
	LastError  string
}

// Supervisor is the external contract the UI/API layer calls.
type Supervisor struct {
	// globalMu implements spec.md §5's ordering rule with a plain
	// sync.RWMutex: per-camera operations hold it for read (so many can run
	// concurrently), fleet-wide operations (start_all/stop_all) take it for
	// write, which blocks new per-camera acquisitions but drains any already
	// in flight -- exactly "excludes new per-id acquisitions but drains
	// existing ones".
	globalMu sync.RWMutex

	camLocksMu sync.Mutex
	camLocks   map[int]*sync.Mutex

	store      *store.Store
	vnicMgr    vnic.Manager
	controller *mediaserver.Controller
	notifier   *notify.Notifier

	endpointsMu sync.Mutex
	endpoints   map[int]*onvif.Endpoint

	log zerolog.Logger
}

// New builds a Supervisor and wires it as the Media Server Controller's
// dead callback, so a crash-restart-budget exhaustion (spec.md §9) flips
// every running/starting camera to failed (spec.md §8) without the caller
// having to poll StatusSnapshot themselves.
func New(st *store.Store, vnicMgr vnic.Manager, controller *mediaserver.Controller, notifier *notify.Notifier, log zerolog.Logger) *Supervisor {
	sv := &Supervisor{
		camLocks:   make(map[int]*sync.Mutex),
		endpoints:  make(map[int]*onvif.Endpoint),
		store:      st,
		vnicMgr:    vnicMgr,
		controller: controller,
		notifier:   notifier,
		log:        log.With().Str("component", "supervisor").Logger(),
	}
	controller.SetDeadCallback(func() {
		sv.MarkAllFailed("media server exceeded its restart budget")
	})
	return sv
}

// MarkAllFailed marks every running/starting camera as failed with reason.
// The Media Server Controller calls this (via the callback New registers)
// the moment its crash-restart budget is exhausted: at that point no
// further Apply call can succeed until an operator calls Stop, so every
// camera that depended on the dead process is affected (spec.md §8: "on
// the 6th failure, status transitions to failed for all affected
// cameras").
func (sv *Supervisor) MarkAllFailed(reason string) {
	sv.globalMu.Lock()
	defer sv.globalMu.Unlock()

	for _, cam := range sv.store.ListCameras() {
		if !isActive(cam.Status) {
			continue
		}
		cam.Status = model.StatusFailed
		cam.LastError = reason
		if err := sv.store.PutCamera(cam); err != nil {
			sv.log.Error().Err(err).Int("camera_id", cam.ID).Msg("failed to persist failed status after media server death")
			continue
		}
		sv.notifier.Publish(&cam, timeNow())
	}
	sv.refreshStatusMetrics()
	sv.log.Error().Str("reason", reason).Msg("media server dead; marked affected cameras failed")
}

// refreshStatusMetrics recomputes the cameras-by-status gauge from the
// store's current contents.
func (sv *Supervisor) refreshStatusMetrics() {
	counts := make(map[string]int)
	for _, c := range sv.store.ListCameras() {
		counts[string(c.Status)]++
	}
	metrics.SetCameraStatusCounts(counts)
}

func (sv *Supervisor) camLock(id int) *sync.Mutex {
	sv.camLocksMu.Lock()
	defer sv.camLocksMu.Unlock()
	l, ok := sv.camLocks[id]
	if !ok {
		l = &sync.Mutex{}
		sv.camLocks[id] = l
	}
	return l
}

// StartCamera runs the per-camera start sequence (spec.md §4.7), reversing
// every completed step if any later step fails.
func (sv *Supervisor) StartCamera(ctx context.Context, id int) error {
	sv.globalMu.RLock()
	defer sv.globalMu.RUnlock()

	lock := sv.camLock(id)
	lock.Lock()
	defer lock.Unlock()

	return sv.startCameraLocked(ctx, id)
}

// startCameraLocked runs the start sequence. Callers must already hold
// globalMu (for read) and the per-id lock for id.
func (sv *Supervisor) startCameraLocked(ctx context.Context, id int) error {
	cam, err := sv.store.GetCamera(id)
	if err != nil {
		return err
	}

	// Step 1: persist the starting status.
	cam.Status = model.StatusStarting
	cam.LastError = ""
	if err := sv.store.PutCamera(*cam); err != nil {
		return err
	}
	sv.notifier.Publish(cam, timeNow())
	sv.refreshStatusMetrics()

	fail := func(stage string, cause error) error {
		cam.Status = model.StatusFailed
		cam.LastError = fmt.Sprintf("%s: %v", stage, cause)
		_ = sv.store.PutCamera(*cam)
		sv.notifier.Publish(cam, timeNow())
		sv.refreshStatusMetrics()
		sv.log.Error().Err(cause).Int("camera_id", id).Str("stage", stage).Msg("start_camera failed, reversed")
		return apperr.WithCamera(id, apperr.Wrap(apperr.Internal, cause, "start camera at stage %s", stage))
	}

	// Step 2: virtual NIC.
	var createdVNIC bool
	if cam.VNIC.Enabled {
		address, err := sv.vnicMgr.Create(ctx, cam)
		if err != nil {
			return fail("vnic_create", err)
		}
		cam.VNIC.AssignedAddress = address
		createdVNIC = true
	}

	reverseVNIC := func() {
		if createdVNIC {
			_ = sv.vnicMgr.Destroy(context.Background(), cam)
		}
	}

	// Step 3: recompile recipes and apply.
	settings := sv.store.Settings()
	paths, names := sv.recipesFor(cam, settings)
	if err := sv.controller.Apply(ctx, paths); err != nil {
		reverseVNIC()
		return fail("recipe_apply", err)
	}

	// reverseApply drops this camera's recipes again by reapplying the
	// configuration of the other running/starting cameras.
	reverseApply := func() {
		others := make([]model.Camera, 0)
		for _, c := range sv.store.ListCameras() {
			if c.ID != id && isActive(c.Status) {
				others = append(others, c)
			}
		}
		_ = sv.controller.Apply(context.Background(), recipe.Compile(others, settings.MediaRTSPPort))
	}

	// Step 4: wait for readiness.
	if err := sv.controller.WaitReady(ctx, names); err != nil {
		reverseApply()
		reverseVNIC()
		return fail("wait_ready", err)
	}

	// Step 5: start the ONVIF endpoint.
	bindAddr := cam.BindAddress(settings.BindAddress)
	ep := onvif.NewEndpoint(cam, settings.BindAddress, settings.MediaRTSPPort, bindAddr, cam.OnvifPort, sv.store, sv.log)
	if err := ep.Listen(bindAddr, cam.OnvifPort); err != nil {
		reverseApply()
		reverseVNIC()
		return fail("onvif_listen", err)
	}
	sv.endpointsMu.Lock()
	sv.endpoints[id] = ep
	sv.endpointsMu.Unlock()

	// Step 6: mark running.
	cam.Status = model.StatusRunning
	cam.LastError = ""
	if err := sv.store.PutCamera(*cam); err != nil {
		_ = ep.Shutdown(context.Background())
		sv.endpointsMu.Lock()
		delete(sv.endpoints, id)
		sv.endpointsMu.Unlock()
		reverseApply()
		reverseVNIC()
		return fail("persist_running", err)
	}
	sv.notifier.Publish(cam, timeNow())
	sv.refreshStatusMetrics()
	sv.log.Info().Int("camera_id", id).Str("bind_address", bindAddr).Msg("camera started")
	return nil
}

// StopCamera runs the best-effort per-camera stop sequence (spec.md §4.7).
// It collects teardown errors but only returns the first.
func (sv *Supervisor) StopCamera(ctx context.Context, id int) error {
	sv.globalMu.RLock()
	defer sv.globalMu.RUnlock()

	lock := sv.camLock(id)
	lock.Lock()
	defer lock.Unlock()

	return sv.stopCameraLocked(ctx, id)
}

func (sv *Supervisor) stopCameraLocked(ctx context.Context, id int) error {
	cam, err := sv.store.GetCamera(id)
	if err != nil {
		return err
	}

	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	// Step 1: mark stopping.
	cam.Status = model.StatusStopping
	record(sv.store.PutCamera(*cam))
	sv.notifier.Publish(cam, timeNow())
	sv.refreshStatusMetrics()

	// Step 2: drain and close the ONVIF endpoint.
	sv.endpointsMu.Lock()
	ep := sv.endpoints[id]
	delete(sv.endpoints, id)
	sv.endpointsMu.Unlock()
	if ep != nil {
		record(ep.Shutdown(ctx))
	}

	// Step 3: remove this camera's recipes and reapply. Only running/
	// starting cameras contribute a recipe (spec.md §3: the media-server
	// config is a pure function of the running/starting set).
	settings := sv.store.Settings()
	remaining := make([]model.Camera, 0)
	for _, c := range sv.store.ListCameras() {
		if c.ID != id && isActive(c.Status) {
			remaining = append(remaining, c)
		}
	}
	paths := recipe.Compile(remaining, settings.MediaRTSPPort)
	record(sv.controller.Apply(ctx, paths))

	// Step 4: tear down the virtual NIC.
	if cam.VNIC.Enabled {
		record(sv.vnicMgr.Destroy(ctx, cam))
		cam.VNIC.AssignedAddress = ""
	}

	// Step 5: mark stopped.
	cam.Status = model.StatusStopped
	if firstErr != nil {
		cam.LastError = firstErr.Error()
	} else {
		cam.LastError = ""
	}
	record(sv.store.PutCamera(*cam))
	sv.notifier.Publish(cam, timeNow())
	sv.refreshStatusMetrics()

	if firstErr != nil {
		sv.log.Warn().Err(firstErr).Int("camera_id", id).Msg("stop_camera completed with teardown errors")
	} else {
		sv.log.Info().Int("camera_id", id).Msg("camera stopped")
	}
	return firstErr
}

// UpdateCamera applies patch to the stored record. If the camera is
// currently running, it is stopped and restarted so recipes, the ONVIF
// endpoint, and the virtual NIC all reflect the new configuration
// (spec.md §5 invariant O2: concurrent updates to the same camera
// linearize; the per-id lock enforces it here).
func (sv *Supervisor) UpdateCamera(ctx context.Context, id int, patch func(*model.Camera)) error {
	sv.globalMu.RLock()
	defer sv.globalMu.RUnlock()

	lock := sv.camLock(id)
	lock.Lock()
	defer lock.Unlock()

	cam, err := sv.store.GetCamera(id)
	if err != nil {
		return err
	}

	wasRunning := cam.Status == model.StatusRunning
	if wasRunning {
		if err := sv.stopCameraLocked(ctx, id); err != nil {
			return err
		}
		cam, err = sv.store.GetCamera(id)
		if err != nil {
			return err
		}
	}

	patch(cam)
	if err := sv.store.PutCamera(*cam); err != nil {
		return err
	}

	if wasRunning {
		return sv.startCameraLocked(ctx, id)
	}
	return nil
}

// DeleteCamera stops the camera if running, then removes its record.
func (sv *Supervisor) DeleteCamera(ctx context.Context, id int) error {
	sv.globalMu.RLock()
	defer sv.globalMu.RUnlock()

	lock := sv.camLock(id)
	lock.Lock()
	defer lock.Unlock()

	cam, err := sv.store.GetCamera(id)
	if err != nil {
		return err
	}
	if isActive(cam.Status) {
		if err := sv.stopCameraLocked(ctx, id); err != nil {
			sv.log.Warn().Err(err).Int("camera_id", id).Msg("delete_camera: stop before delete had teardown errors")
		}
	}

	sv.camLocksMu.Lock()
	delete(sv.camLocks, id)
	sv.camLocksMu.Unlock()

	return sv.store.DeleteCamera(id)
}

// StartAll starts every camera flagged AutoStart, ordered by id and
// sequential, to avoid a thundering herd on the media server.
func (sv *Supervisor) StartAll(ctx context.Context) error {
	sv.globalMu.Lock()
	defer sv.globalMu.Unlock()

	cameras := sv.store.ListCameras()
	sort.Slice(cameras, func(i, j int) bool { return cameras[i].ID < cameras[j].ID })

	var firstErr error
	for _, cam := range cameras {
		if !cam.AutoStart {
			continue
		}
		lock := sv.camLock(cam.ID)
		lock.Lock()
		err := sv.startCameraLocked(ctx, cam.ID)
		lock.Unlock()
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// StopAll stops every running camera in parallel under a shared 15-second
// deadline (spec.md §4.7), via golang.org/x/sync/errgroup rather than a
// hand-rolled WaitGroup+channel (SPEC_FULL §4.7).
func (sv *Supervisor) StopAll(ctx context.Context) error {
	sv.globalMu.Lock()
	defer sv.globalMu.Unlock()

	deadlineCtx, cancel := context.WithTimeout(ctx, stopAllDeadline)
	defer cancel()

	cameras := sv.store.ListCameras()

	g, gctx := errgroup.WithContext(deadlineCtx)
	for _, cam := range cameras {
		id := cam.ID
		if !isActive(cam.Status) {
			continue
		}
		g.Go(func() error {
			lock := sv.camLock(id)
			lock.Lock()
			defer lock.Unlock()
			return sv.stopCameraLocked(gctx, id)
		})
	}
	return g.Wait()
}

// StatusSnapshot returns {id, status, assignedIp, lastError} for every
// camera (spec.md §4.7).
func (sv *Supervisor) StatusSnapshot() []CameraStatus {
	cameras := sv.store.ListCameras()
	out := make([]CameraStatus, 0, len(cameras))
	for _, c := range cameras {
		out = append(out, CameraStatus{
			ID:         c.ID,
			Status:     c.Status,
			AssignedIP: c.VNIC.AssignedAddress,
			LastError:  c.LastError,
		})
	}
	return out
}

// recipesFor compiles the running/starting fleet's recipes (spec.md §3: the
// media-server config is a pure function of the running/starting set) plus
// cam itself, and returns the path map alongside the names belonging to
// cam, for the readiness poll.
func (sv *Supervisor) recipesFor(cam *model.Camera, settings model.Settings) (map[string]recipe.Path, []string) {
	active := make([]model.Camera, 0)
	for _, c := range sv.store.ListCameras() {
		if c.ID != cam.ID && isActive(c.Status) {
			active = append(active, c)
		}
	}
	active = append(active, *cam)

	paths := recipe.Compile(active, settings.MediaRTSPPort)
	names := []string{
		fmt.Sprintf("%s_main", cam.PathName),
	}
	if cam.Sub.Width > 0 && cam.Sub.Height > 0 {
		names = append(names, fmt.Sprintf("%s_sub", cam.PathName))
	}
	return paths, names
}

// timeNow is a thin indirection so tests could stub it if ever needed; it
// otherwise just calls time.Now.
func timeNow() time.Time { return time.Now() }

// isActive reports whether a camera in this status should contribute a
// recipe to the media-server configuration (spec.md §3).
func isActive(s model.Status) bool {
	return s == model.StatusRunning || s == model.StatusStarting
}
