package mediaserver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/BigTonyTones/onvif-gateway/internal/recipe"
)

func TestWriteConfigRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mediaserver.yaml")
	paths := map[string]recipe.Path{
		"front-door_main": {Source: "rtsp://192.0.2.10:554/stream1", SourceProtocol: "tcp"},
	}

	require.NoError(t, writeConfig(path, paths, 8554, 8888, 9997))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc document
	require.NoError(t, yaml.Unmarshal(data, &doc))
	require.Equal(t, 8554, doc.RTSPPort)
	require.Contains(t, doc.Paths, "front-door_main")
}

func TestWriteConfigEmptyPathsClearsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mediaserver.yaml")
	paths := map[string]recipe.Path{"a_main": {Source: "x"}}
	require.NoError(t, writeConfig(path, paths, 8554, 8888, 9997))
	require.NoError(t, writeConfig(path, map[string]recipe.Path{}, 8554, 8888, 9997))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc document
	require.NoError(t, yaml.Unmarshal(data, &doc))
	require.Empty(t, doc.Paths)
}
