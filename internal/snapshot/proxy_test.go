package snapshot

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/BigTonyTones/onvif-gateway/internal/model"
	"github.com/BigTonyTones/onvif-gateway/internal/store"
)

func testStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "store.json"), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, st.PutCamera(model.Camera{
		ID:               1,
		Name:             "front-door",
		PathName:         "front-door",
		UpstreamHost:     "192.0.2.10",
		UpstreamRTSPPort: 554,
		UpstreamMainPath: "stream1",
		Main:             model.StreamSpec{Width: 1920, Height: 1080, FrameRate: 15},
		OnvifPort:        8100,
		OnvifUsername:    "admin",
		OnvifPassword:    "secret",
	}))
	return st
}

func TestHandlerRejectsMissingAuth(t *testing.T) {
	p := NewProxy(testStore(t), "127.0.0.1", 8554, "admin", "secret", zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/snapshot/front-door", nil)
	rec := httptest.NewRecorder()
	p.Handler()(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandlerRejectsPathTraversal(t *testing.T) {
	p := NewProxy(testStore(t), "127.0.0.1", 8554, "admin", "secret", zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/snapshot/../etc/passwd", nil)
	req.SetBasicAuth("admin", "secret")
	rec := httptest.NewRecorder()
	p.Handler()(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerRejectsUnknownCamera(t *testing.T) {
	p := NewProxy(testStore(t), "127.0.0.1", 8554, "admin", "secret", zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/snapshot/nope", nil)
	req.SetBasicAuth("admin", "secret")
	rec := httptest.NewRecorder()
	p.Handler()(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}
