// Package snapshot serves the JPEG a GetSnapshotUri response points at.
// Adapted from the teacher's internal/snapshot/proxy.go: the Basic-auth
// handler and path-traversal guard are kept close to the original, but the
// camera lookup now goes through the Config Store (by pathName) instead of
// a live camera.Registry, and the image itself is grabbed on demand with a
// single-frame ffmpeg invocation against the media server's own RTSP
// output rather than an upstream AtomCam HTTP snapshot endpoint.
package snapshot

import (
	"bytes"
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/BigTonyTones/onvif-gateway/internal/store"
)

const grabTimeout = 5 * time.Second

// Proxy is an HTTP handler that serves /snapshot/{pathName}.
type Proxy struct {
	store         *store.Store
	mediaHost     string
	mediaRTSPPort int
	username      string
	password      string
	log           zerolog.Logger
}

// NewProxy builds a Proxy. username/password gate every request with HTTP
// Basic auth; the ONVIF Endpoint passes its camera's ONVIF credentials.
func NewProxy(st *store.Store, mediaHost string, mediaRTSPPort int, username, password string, log zerolog.Logger) *Proxy {
	return &Proxy{
		store:         st,
		mediaHost:     mediaHost,
		mediaRTSPPort: mediaRTSPPort,
		username:      username,
		password:      password,
		log:           log.With().Str("component", "snapshot").Logger(),
	}
}

// Handler returns the /snapshot/ route handler.
func (p *Proxy) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		username, password, ok := r.BasicAuth()
		if !ok || !p.authOK(username, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="onvif-gateway snapshot"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		pathName := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/snapshot/"), "/")
		if pathName == "" {
			http.Error(w, "camera path required", http.StatusBadRequest)
			return
		}
		if strings.ContainsAny(pathName, "/\\") || strings.Contains(pathName, "..") {
			http.Error(w, "invalid camera path", http.StatusBadRequest)
			return
		}

		cam, err := p.store.GetCameraByPathName(pathName)
		if err != nil {
			http.Error(w, "camera not found", http.StatusNotFound)
			return
		}

		data, err := p.grabFrame(r.Context(), pathName)
		if err != nil {
			p.log.Warn().Err(err).Str("path_name", pathName).Int("camera_id", cam.ID).Msg("snapshot grab failed")
			http.Error(w, "failed to capture snapshot", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Content-Length", fmt.Sprintf("%d", len(data)))
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	}
}

func (p *Proxy) authOK(username, password string) bool {
	userMatch := subtle.ConstantTimeCompare([]byte(username), []byte(p.username)) == 1
	passMatch := subtle.ConstantTimeCompare([]byte(password), []byte(p.password)) == 1
	return userMatch && passMatch
}

// grabFrame pulls a single JPEG frame from the camera's main stream as
// republished by the media server, via one-shot ffmpeg invocation.
func (p *Proxy) grabFrame(ctx context.Context, pathName string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, grabTimeout)
	defer cancel()

	rtspURL := fmt.Sprintf("rtsp://%s:%d/%s_main", p.mediaHost, p.mediaRTSPPort, pathName)
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-rtsp_transport", "tcp",
		"-i", rtspURL,
		"-frames:v", "1",
		"-f", "image2",
		"-",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg snapshot grab: %w: %s", err, stderr.String())
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg produced no frame data")
	}
	return stdout.Bytes(), nil
}
