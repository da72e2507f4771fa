package recipe

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/BigTonyTones/onvif-gateway/internal/model"
)

func camera(id int, pathName string, transcodeSub bool) model.Camera {
	return model.Camera{
		ID:               id,
		PathName:         pathName,
		UpstreamHost:     "192.0.2.10",
		UpstreamRTSPPort: 554,
		UpstreamMainPath: "stream1",
		UpstreamSubPath:  "stream2",
		Sub:              model.StreamSpec{Transcode: transcodeSub},
	}
}

func TestCompilePassThrough(t *testing.T) {
	out := Compile([]model.Camera{camera(1, "front-door", false)}, 8554)
	main := out["front-door_main"]
	require.Equal(t, "rtsp://192.0.2.10:554/stream1", main.Source)
	require.False(t, main.SourceOnDemand)
	require.False(t, main.RunOnInitRestart)
	require.Empty(t, main.RunOnInit)
}

func TestCompileTranscodeContainsShellLoop(t *testing.T) {
	out := Compile([]model.Camera{camera(2, "back-door", true)}, 8554)
	sub := out["back-door_sub"]
	require.Contains(t, sub.RunOnInit, "while true")
	require.Contains(t, sub.RunOnInit, "sleep 2")
	require.False(t, sub.RunOnInitRestart, "on-init restart must stay disabled or the media server races the shell loop")
}

func TestCompileDeterministicRegardlessOfOrder(t *testing.T) {
	a := Compile([]model.Camera{camera(1, "a", false), camera(2, "b", false)}, 8554)
	b := Compile([]model.Camera{camera(2, "b", false), camera(1, "a", false)}, 8554)
	require.Equal(t, a, b)
}

func TestCompileKeysByPathName(t *testing.T) {
	out := Compile([]model.Camera{camera(1, "front-door", false)}, 8554)
	var keys []string
	for k := range out {
		keys = append(keys, k)
	}
	for _, k := range keys {
		require.True(t, strings.HasPrefix(k, "front-door_"))
	}
}
