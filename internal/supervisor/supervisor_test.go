package supervisor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/BigTonyTones/onvif-gateway/internal/mediaserver"
	"github.com/BigTonyTones/onvif-gateway/internal/model"
	"github.com/BigTonyTones/onvif-gateway/internal/notify"
	"github.com/BigTonyTones/onvif-gateway/internal/recipe"
	"github.com/BigTonyTones/onvif-gateway/internal/store"
	"github.com/BigTonyTones/onvif-gateway/internal/vnic"
)

// fakeVNIC is a no-op vnic.Manager stub: Supervisor tests exercise the
// sequencing around VNIC creation/teardown, not the platform shell-out.
type fakeVNIC struct {
	address string
}

func (f *fakeVNIC) Supported() bool { return true }
func (f *fakeVNIC) Create(ctx context.Context, cam *model.Camera) (string, error) {
	return f.address, nil
}
func (f *fakeVNIC) Destroy(ctx context.Context, cam *model.Camera) error { return nil }

var _ vnic.Manager = (*fakeVNIC)(nil)

func fakeControlAPI(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]bool{"ready": true})
	}))
}

func newTestSupervisor(t *testing.T, binary string, args []string, apiBaseURL string) (*Supervisor, *store.Store, string) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "store.json"), zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, st.PutSettings(model.Settings{
		BindAddress:   "127.0.0.1",
		MediaRTSPPort: 19500,
		MediaHLSPort:  19501,
		MediaAPIPort:  19502,
	}))

	configPath := filepath.Join(t.TempDir(), "mediaserver.yaml")
	ctrl := mediaserver.New(binary, args, configPath, apiBaseURL, 19500, 19501, 19502, "", "", zerolog.Nop())
	sv := New(st, &fakeVNIC{address: "10.10.0.5"}, ctrl, notify.New(zerolog.Nop()), zerolog.Nop())
	return sv, st, configPath
}

func TestStartThenStopCameraFullSequence(t *testing.T) {
	api := fakeControlAPI(t)
	defer api.Close()

	sv, st, _ := newTestSupervisor(t, "/bin/sh", []string{"-c", "sleep 30"}, api.URL)

	id := st.NextID()
	cam := model.Camera{
		ID:               id,
		Name:             "front-door",
		PathName:         "front-door",
		UpstreamHost:     "192.0.2.10",
		UpstreamRTSPPort: 554,
		UpstreamMainPath: "stream1",
		Main:             model.StreamSpec{Width: 1920, Height: 1080, FrameRate: 15},
		OnvifPort:        19700,
		OnvifUsername:    "admin",
		OnvifPassword:    "secret",
	}
	require.NoError(t, st.PutCamera(cam))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, sv.StartCamera(ctx, id))

	got, err := st.GetCamera(id)
	require.NoError(t, err)
	require.Equal(t, model.StatusRunning, got.Status)

	snapshot := sv.StatusSnapshot()
	require.Len(t, snapshot, 1)
	require.Equal(t, model.StatusRunning, snapshot[0].Status)

	require.NoError(t, sv.StopCamera(ctx, id))

	got, err = st.GetCamera(id)
	require.NoError(t, err)
	require.Equal(t, model.StatusStopped, got.Status)
}

func TestStartCameraReversesOnMediaServerApplyFailure(t *testing.T) {
	api := fakeControlAPI(t)
	defer api.Close()

	sv, st, _ := newTestSupervisor(t, "/no/such/binary", nil, api.URL)

	id := st.NextID()
	cam := model.Camera{
		ID:               id,
		Name:             "front-door",
		PathName:         "front-door",
		UpstreamHost:     "192.0.2.10",
		UpstreamRTSPPort: 554,
		UpstreamMainPath: "stream1",
		Main:             model.StreamSpec{Width: 1920, Height: 1080, FrameRate: 15},
		OnvifPort:        19701,
		OnvifUsername:    "admin",
		OnvifPassword:    "secret",
	}
	require.NoError(t, st.PutCamera(cam))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := sv.StartCamera(ctx, id)
	require.Error(t, err)

	got, gerr := st.GetCamera(id)
	require.NoError(t, gerr)
	require.Equal(t, model.StatusFailed, got.Status)
}

func TestDeleteCameraStopsRunningCameraFirst(t *testing.T) {
	api := fakeControlAPI(t)
	defer api.Close()

	sv, st, _ := newTestSupervisor(t, "/bin/sh", []string{"-c", "sleep 30"}, api.URL)

	id := st.NextID()
	cam := model.Camera{
		ID:               id,
		Name:             "front-door",
		PathName:         "front-door",
		UpstreamHost:     "192.0.2.10",
		UpstreamRTSPPort: 554,
		UpstreamMainPath: "stream1",
		Main:             model.StreamSpec{Width: 1920, Height: 1080, FrameRate: 15},
		OnvifPort:        19702,
		OnvifUsername:    "admin",
		OnvifPassword:    "secret",
	}
	require.NoError(t, st.PutCamera(cam))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sv.StartCamera(ctx, id))

	require.NoError(t, sv.DeleteCamera(ctx, id))

	_, err := st.GetCamera(id)
	require.Error(t, err)
}

// TestStoppedCameraRecipeRemovedFromConfig exercises spec.md §3's invariant
// that the media-server configuration is a pure function of the running/
// starting camera set: once camB is stopped, its recipe entries must vanish
// from the compiled config even though camA is still running.
func TestStoppedCameraRecipeRemovedFromConfig(t *testing.T) {
	api := fakeControlAPI(t)
	defer api.Close()

	sv, st, configPath := newTestSupervisor(t, "/bin/sh", []string{"-c", "sleep 30"}, api.URL)

	idA := st.NextID()
	camA := model.Camera{
		ID:               idA,
		Name:             "front-door",
		PathName:         "front-door",
		UpstreamHost:     "192.0.2.10",
		UpstreamRTSPPort: 554,
		UpstreamMainPath: "stream1",
		Main:             model.StreamSpec{Width: 1920, Height: 1080, FrameRate: 15},
		OnvifPort:        19703,
		OnvifUsername:    "admin",
		OnvifPassword:    "secret",
	}
	require.NoError(t, st.PutCamera(camA))

	idB := st.NextID()
	camB := model.Camera{
		ID:               idB,
		Name:             "back-yard",
		PathName:         "back-yard",
		UpstreamHost:     "192.0.2.11",
		UpstreamRTSPPort: 554,
		UpstreamMainPath: "stream1",
		Main:             model.StreamSpec{Width: 1920, Height: 1080, FrameRate: 15},
		OnvifPort:        19704,
		OnvifUsername:    "admin",
		OnvifPassword:    "secret",
	}
	require.NoError(t, st.PutCamera(camB))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, sv.StartCamera(ctx, idA))
	require.NoError(t, sv.StartCamera(ctx, idB))
	require.NoError(t, sv.StopCamera(ctx, idB))

	raw, err := os.ReadFile(configPath)
	require.NoError(t, err)

	var doc struct {
		Paths map[string]recipe.Path `yaml:"paths"`
	}
	require.NoError(t, yaml.Unmarshal(raw, &doc))

	require.Contains(t, doc.Paths, "front-door_main")
	require.NotContains(t, doc.Paths, "back-yard_main")
}

// TestMarkAllFailedAffectsRunningCamerasOnly exercises the propagation path
// the Media Server Controller's dead callback drives (spec.md §8): only
// running/starting cameras flip to failed, already-stopped ones are left
// alone.
func TestMarkAllFailedAffectsRunningCamerasOnly(t *testing.T) {
	api := fakeControlAPI(t)
	defer api.Close()

	sv, st, _ := newTestSupervisor(t, "/bin/sh", []string{"-c", "sleep 30"}, api.URL)

	runningID := st.NextID()
	running := model.Camera{
		ID:               runningID,
		Name:             "front-door",
		PathName:         "front-door",
		UpstreamHost:     "192.0.2.10",
		UpstreamRTSPPort: 554,
		UpstreamMainPath: "stream1",
		Main:             model.StreamSpec{Width: 1920, Height: 1080, FrameRate: 15},
		OnvifPort:        19705,
		OnvifUsername:    "admin",
		OnvifPassword:    "secret",
	}
	require.NoError(t, st.PutCamera(running))

	stoppedID := st.NextID()
	stopped := model.Camera{
		ID:               stoppedID,
		Name:             "back-yard",
		PathName:         "back-yard",
		UpstreamHost:     "192.0.2.11",
		UpstreamRTSPPort: 554,
		UpstreamMainPath: "stream1",
		Main:             model.StreamSpec{Width: 1920, Height: 1080, FrameRate: 15},
		OnvifPort:        19706,
		OnvifUsername:    "admin",
		OnvifPassword:    "secret",
		Status:           model.StatusStopped,
	}
	require.NoError(t, st.PutCamera(stopped))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sv.StartCamera(ctx, runningID))

	sv.MarkAllFailed("media server exceeded its restart budget")

	gotRunning, err := st.GetCamera(runningID)
	require.NoError(t, err)
	require.Equal(t, model.StatusFailed, gotRunning.Status)
	require.NotEmpty(t, gotRunning.LastError)

	gotStopped, err := st.GetCamera(stoppedID)
	require.NoError(t, err)
	require.Equal(t, model.StatusStopped, gotStopped.Status)
}
