// Package recipe implements the Media Recipe Compiler (spec.md §4.4): a
// pure function from the active camera set to a media-server path map.
// The path shape is grounded on the teacher's mediamtx.PathConfig and its
// BuildFFmpegCommand helper, generalized from a single hard-coded ffmpeg
// invocation to the main/sub, pass-through/transcode product spec.md
// requires.
package recipe

import (
	"fmt"
	"sort"

	"github.com/BigTonyTones/onvif-gateway/internal/model"
)

// Path is one entry of the compiled media-server configuration, shaped
// after mediamtx's own `paths` map.
type Path struct {
	Source             string `yaml:"source,omitempty"`
	SourceOnDemand     bool   `yaml:"sourceOnDemand"`
	SourceProtocol     string `yaml:"sourceProtocol,omitempty"`
	RunOnInit          string `yaml:"runOnInit,omitempty"`
	RunOnInitRestart   bool   `yaml:"runOnInitRestart"`
}

// restartSleep is the minimum pause the shell loop takes between encoder
// restarts (spec.md §5 backpressure: "pinned to a minimum 2-second sleep").
const restartSleep = 2

// Compile produces the path map for every stream of every camera in
// cameras, keyed by "<pathName>_main" and "<pathName>_sub". It is a pure
// function of cameras and settings: given the same input (in any order,
// since it sorts by id internally) it returns byte-identical output.
func Compile(cameras []model.Camera, mediaRTSPPort int) map[string]Path {
	sorted := make([]model.Camera, len(cameras))
	copy(sorted, cameras)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	out := make(map[string]Path, len(sorted)*2)
	for _, cam := range sorted {
		out[cam.PathName+"_main"] = compileStream(&cam, cam.Main, cam.UpstreamMainPath, mediaRTSPPort)
		out[cam.PathName+"_sub"] = compileStream(&cam, cam.Sub, cam.UpstreamSubPath, mediaRTSPPort)
	}
	return out
}

func compileStream(cam *model.Camera, spec model.StreamSpec, upstreamPath string, mediaRTSPPort int) Path {
	upstreamURL := upstreamRTSPURL(cam, upstreamPath)

	if !spec.Transcode {
		return Path{
			Source:           upstreamURL,
			SourceOnDemand:   false,
			SourceProtocol:   "tcp",
			RunOnInitRestart: false,
		}
	}

	return Path{
		Source:           "publisher",
		SourceOnDemand:   false,
		SourceProtocol:   "tcp",
		RunOnInit:        encoderLoopCommand(upstreamURL, mediaRTSPPort),
		RunOnInitRestart: false,
	}
}

func upstreamRTSPURL(cam *model.Camera, path string) string {
	if cam.UpstreamUsername != "" {
		return fmt.Sprintf("rtsp://%s:%s@%s:%d/%s", cam.UpstreamUsername, cam.UpstreamPassword, cam.UpstreamHost, cam.UpstreamRTSPPort, path)
	}
	return fmt.Sprintf("rtsp://%s:%d/%s", cam.UpstreamHost, cam.UpstreamRTSPPort, path)
}

// encoderLoopCommand builds the shell-level auto-restart loop
// (spec.md §4.4, §9): the encoder is always a direct child of the shell
// (C1), and the shell re-invokes it on any exit until the shell itself is
// killed (C2). $MTX_PATH is substituted by the media server at spawn time.
func encoderLoopCommand(upstreamURL string, mediaRTSPPort int) string {
	encoder := fmt.Sprintf(
		"ffmpeg -fflags +genpts -rtsp_transport tcp -i %s -map 0:v:0 -c:v copy -c:a aac -f rtsp rtsp://127.0.0.1:%d/$MTX_PATH",
		upstreamURL, mediaRTSPPort,
	)
	return fmt.Sprintf("sh -c 'while true; do %s; sleep %d; done'", encoder, restartSleep)
}
