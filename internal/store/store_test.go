package store

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/BigTonyTones/onvif-gateway/internal/apperr"
	"github.com/BigTonyTones/onvif-gateway/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cameras.json")
	s, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	return s
}

func baseCamera(id int) model.Camera {
	return model.Camera{
		ID:               id,
		Name:             "Front Door",
		PathName:         "front-door",
		UpstreamHost:     "192.0.2.10",
		UpstreamRTSPPort: 554,
		UpstreamMainPath: "stream1",
		UpstreamSubPath:  "stream2",
		OnvifPort:        8001,
		OnvifUsername:    "admin",
		OnvifPassword:    "admin",
	}
}

func TestCreateCameraAllocatesIDAndPort(t *testing.T) {
	s := newTestStore(t)

	c := baseCamera(0)
	c.OnvifPort = 0
	c.PathName = "back-yard"

	created, err := s.CreateCamera(c)
	require.NoError(t, err)
	require.NotZero(t, created.ID)
	require.True(t, created.OnvifPort >= 8001 && created.OnvifPort <= 8100)

	second := baseCamera(0)
	second.OnvifPort = 0
	second.PathName = "garage"
	secondCreated, err := s.CreateCamera(second)
	require.NoError(t, err)
	require.NotEqual(t, created.ID, secondCreated.ID)
	require.NotEqual(t, created.OnvifPort, secondCreated.OnvifPort)
}

func TestGetCameraByPathName(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.PutCamera(baseCamera(1)))

	got, err := s.GetCameraByPathName("front-door")
	require.NoError(t, err)
	require.Equal(t, 1, got.ID)

	_, err = s.GetCameraByPathName("no-such-camera")
	require.Error(t, err)
}

func TestCreateCameraDerivesPathNameFromName(t *testing.T) {
	s := newTestStore(t)

	c := baseCamera(0)
	c.OnvifPort = 0
	c.PathName = ""
	c.Name = "Back Yard Cam!"

	created, err := s.CreateCamera(c)
	require.NoError(t, err)
	require.Equal(t, "back-yard-cam", created.PathName)
}

func TestCreateCameraResolvesPathNameCollisionBySuffix(t *testing.T) {
	s := newTestStore(t)

	first := baseCamera(0)
	first.OnvifPort = 0
	first.PathName = ""
	first.Name = "Garage"
	firstCreated, err := s.CreateCamera(first)
	require.NoError(t, err)
	require.Equal(t, "garage", firstCreated.PathName)

	second := baseCamera(0)
	second.OnvifPort = 0
	second.PathName = ""
	second.Name = "Garage"
	secondCreated, err := s.CreateCamera(second)
	require.NoError(t, err)
	require.Equal(t, "garage-2", secondCreated.PathName)
}

func TestRenameCameraRederivesPathName(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.PutCamera(baseCamera(1)))

	renamed := baseCamera(1)
	renamed.Name = "Back Yard"
	require.NoError(t, s.PutCamera(renamed))

	got, err := s.GetCamera(1)
	require.NoError(t, err)
	require.Equal(t, "back-yard", got.PathName)
}

func TestPutCameraWithoutNameChangeKeepsPathNameStable(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.PutCamera(baseCamera(1)))

	updated := baseCamera(1)
	updated.UpstreamRTSPPort = 555
	require.NoError(t, s.PutCamera(updated))

	got, err := s.GetCamera(1)
	require.NoError(t, err)
	require.Equal(t, "front-door", got.PathName)
}

func TestPutAndGetCamera(t *testing.T) {
	s := newTestStore(t)
	c := baseCamera(1)
	require.NoError(t, s.PutCamera(c))

	got, err := s.GetCamera(1)
	require.NoError(t, err)
	require.Equal(t, "front-door", got.PathName)
}

func TestDuplicatePathRejected(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.PutCamera(baseCamera(1)))

	dup := baseCamera(2)
	dup.OnvifPort = 8002
	err := s.PutCamera(dup)
	require.Error(t, err)
	require.True(t, apperr.Is(err, apperr.DuplicatePath))
}

func TestDuplicatePortRejected(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.PutCamera(baseCamera(1)))

	dup := baseCamera(2)
	dup.PathName = "back-door"
	err := s.PutCamera(dup)
	require.Error(t, err)
	require.True(t, apperr.Is(err, apperr.PortInUse))
}

func TestInvalidMACRejected(t *testing.T) {
	s := newTestStore(t)
	c := baseCamera(1)
	c.VNIC = model.VNIC{Enabled: true, MAC: "not-a-mac", ParentInterface: "eth0"}
	err := s.PutCamera(c)
	require.Error(t, err)
	require.True(t, apperr.Is(err, apperr.BadMAC))
}

func TestDeleteCameraFreesPath(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.PutCamera(baseCamera(1)))
	require.NoError(t, s.DeleteCamera(1))

	_, err := s.GetCamera(1)
	require.Error(t, err)
	require.True(t, apperr.Is(err, apperr.NotFound))

	// pathName and port are now free for reuse.
	require.NoError(t, s.PutCamera(baseCamera(2)))
}

func TestRoundTripPersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cameras.json")
	s1, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, s1.PutCamera(baseCamera(1)))

	s2, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	got, err := s2.GetCamera(1)
	require.NoError(t, err)
	require.Equal(t, "Front Door", got.Name)
}

func TestListCamerasReturnsIndependentCopies(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.PutCamera(baseCamera(1)))

	cams := s.ListCameras()
	cams[0].Name = "mutated"

	got, err := s.GetCamera(1)
	require.NoError(t, err)
	require.Equal(t, "Front Door", got.Name)
}
