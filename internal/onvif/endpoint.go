// Package onvif implements the per-camera ONVIF Endpoint (spec.md §4.6):
// one HTTP server bound to a single camera's own (bind address, onvif
// port), exposing Device, Media, and Media2 SOAP services behind
// WS-UsernameToken authentication. It is adapted from the teacher's
// internal/onvif/server.go, which multiplexed every camera behind one
// shared mux; here every running camera gets its own Endpoint instance
// and its own listening socket, since an NVR discovers each virtual
// camera at a distinct address. PTZ and Imaging are dropped along with
// their dispatch branches -- this gateway exposes no camera-side control
// channel.
package onvif

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/BigTonyTones/onvif-gateway/internal/apperr"
	"github.com/BigTonyTones/onvif-gateway/internal/metrics"
	"github.com/BigTonyTones/onvif-gateway/internal/model"
	"github.com/BigTonyTones/onvif-gateway/internal/onvif/device"
	"github.com/BigTonyTones/onvif-gateway/internal/onvif/media"
	"github.com/BigTonyTones/onvif-gateway/internal/onvif/media2"
	"github.com/BigTonyTones/onvif-gateway/internal/onvif/soap"
	"github.com/BigTonyTones/onvif-gateway/internal/snapshot"
	"github.com/BigTonyTones/onvif-gateway/internal/store"
)

// State is the Endpoint's lifecycle state (spec.md §4.6:
// "idle -> listening -> serving -> draining -> closed").
type State string

const (
	StateIdle      State = "idle"
	StateListening State = "listening"
	StateServing   State = "serving"
	StateDraining  State = "draining"
	StateClosed    State = "closed"
)

const drainTimeout = 2 * time.Second

// Endpoint serves ONVIF Device/Media/Media2 for exactly one camera.
type Endpoint struct {
	mu    sync.Mutex
	state State

	cameraID int
	username string
	password string

	deviceService *device.Service
	mediaService  *media.Service
	media2Service *media2.Service
	snapshotProxy *snapshot.Proxy

	httpServer *http.Server
	log        zerolog.Logger
}

// NewEndpoint builds an Endpoint for cam, ready to Listen. mediaHost and
// mediaRTSPPort identify the media server's RTSP listener that backs the
// camera's two recipe paths; snapshotHost/snapshotPort identify this same
// Endpoint's own /snapshot/ route, backed by st (used to resolve a path
// name back to a camera record when the route is hit).
func NewEndpoint(cam *model.Camera, mediaHost string, mediaRTSPPort int, snapshotHost string, snapshotPort int, st *store.Store, log zerolog.Logger) *Endpoint {
	baseURL := fmt.Sprintf("http://%s:%d", cam.BindAddress(mediaHost), cam.OnvifPort)
	serial := fmt.Sprintf("VCAM-%06d", cam.ID)
	endpointLog := log.With().Str("component", "onvif.endpoint").Int("camera_id", cam.ID).Logger()

	return &Endpoint{
		state:         StateIdle,
		cameraID:      cam.ID,
		username:      cam.OnvifUsername,
		password:      cam.OnvifPassword,
		deviceService: device.NewService(cam.Name, serial, baseURL),
		mediaService:  media.NewService(cam, mediaHost, mediaRTSPPort, snapshotHost, snapshotPort),
		media2Service: media2.NewService(cam, mediaHost, mediaRTSPPort, snapshotHost, snapshotPort),
		snapshotProxy: snapshot.NewProxy(st, mediaHost, mediaRTSPPort, cam.OnvifUsername, cam.OnvifPassword, endpointLog),
		log:           endpointLog,
	}
}

// State returns the Endpoint's current lifecycle state.
func (e *Endpoint) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Listen binds the Endpoint's socket and starts serving. It transitions
// idle -> listening -> serving, or returns apperr.Bind if the socket
// cannot be acquired (surfaced by the Supervisor as a start failure,
// spec.md §4.7).
func (e *Endpoint) Listen(bindAddress string, port int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateIdle {
		return apperr.New(apperr.Invalid, "endpoint for camera %d is not idle", e.cameraID)
	}
	e.state = StateListening

	mux := http.NewServeMux()
	mux.HandleFunc("/onvif/device_service", e.handleDeviceService)
	mux.HandleFunc("/onvif/media_service", e.handleMediaService)
	mux.HandleFunc("/onvif/media2_service", e.handleMedia2Service)
	mux.HandleFunc("/snapshot/", e.snapshotProxy.Handler())

	e.httpServer = &http.Server{
		Addr:           fmt.Sprintf("%s:%d", bindAddress, port),
		Handler:        mux,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	ln, err := net.Listen("tcp", e.httpServer.Addr)
	if err != nil {
		e.state = StateIdle
		return apperr.Wrap(apperr.Bind, err, "listen for camera %d on %s", e.cameraID, e.httpServer.Addr)
	}

	e.state = StateServing
	go func() {
		if err := e.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			e.log.Error().Err(err).Msg("onvif endpoint serve exited unexpectedly")
		}
	}()
	e.log.Info().Str("addr", e.httpServer.Addr).Msg("onvif endpoint serving")
	return nil
}

// Shutdown drains in-flight requests (up to drainTimeout, spec.md §4.7
// stop sequence step 2) then closes the listener, transitioning
// serving -> draining -> closed.
func (e *Endpoint) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateServing {
		e.state = StateClosed
		e.mu.Unlock()
		return nil
	}
	e.state = StateDraining
	server := e.httpServer
	e.mu.Unlock()

	drainCtx, cancel := context.WithTimeout(ctx, drainTimeout)
	defer cancel()

	err := server.Shutdown(drainCtx)

	e.mu.Lock()
	e.state = StateClosed
	e.mu.Unlock()

	if err != nil {
		return apperr.Wrap(apperr.Internal, err, "drain onvif endpoint for camera %d", e.cameraID)
	}
	return nil
}

func (e *Endpoint) handleDeviceService(w http.ResponseWriter, r *http.Request) {
	body, action, ok := e.readRequest(w, r)
	if !ok {
		return
	}

	metrics.OnvifRequestsTotal.WithLabelValues("device", action).Inc()

	if action != "GetSystemDateAndTime" {
		if err := e.validateAuth(body); err != nil {
			e.log.Warn().Err(err).Str("action", action).Msg("authentication failed")
			metrics.OnvifAuthFailuresTotal.WithLabelValues("device").Inc()
			e.sendFault(w, soap.NewNotAuthorizedFault())
			return
		}
	}

	var response interface{}
	switch action {
	case "GetDeviceInformation":
		response = e.deviceService.GetDeviceInformation()
	case "GetSystemDateAndTime":
		response = e.deviceService.GetSystemDateAndTime()
	case "GetCapabilities":
		bodyContent, err := soap.GetBodyContent(body)
		if err != nil {
			e.sendFault(w, soap.NewInvalidArgsFault("invalid request"))
			return
		}
		var req device.GetCapabilitiesRequest
		if err := xml.Unmarshal(bodyContent, &req); err != nil {
			e.sendFault(w, soap.NewInvalidArgsFault("invalid request"))
			return
		}
		response = e.deviceService.GetCapabilities(req.Category)
	case "GetServices":
		response = e.deviceService.GetServices()
	default:
		e.sendFault(w, soap.NewActionFailedFault(fmt.Sprintf("unknown action: %s", action)))
		return
	}

	e.sendResponse(w, response)
}

func (e *Endpoint) handleMediaService(w http.ResponseWriter, r *http.Request) {
	body, action, ok := e.readRequest(w, r)
	if !ok {
		return
	}

	metrics.OnvifRequestsTotal.WithLabelValues("media", action).Inc()

	if err := e.validateAuth(body); err != nil {
		e.log.Warn().Err(err).Str("action", action).Msg("authentication failed")
		metrics.OnvifAuthFailuresTotal.WithLabelValues("media").Inc()
		e.sendFault(w, soap.NewNotAuthorizedFault())
		return
	}

	var response interface{}
	switch action {
	case "GetProfiles":
		response = e.mediaService.GetProfiles()
	case "GetStreamUri":
		bodyContent, err := soap.GetBodyContent(body)
		if err != nil {
			e.sendFault(w, soap.NewInvalidArgsFault("invalid request"))
			return
		}
		var req media.GetStreamUriRequest
		if err := xml.Unmarshal(bodyContent, &req); err != nil {
			e.sendFault(w, soap.NewInvalidArgsFault("invalid request"))
			return
		}
		resp, err := e.mediaService.GetStreamUri(req.ProfileToken)
		if err != nil {
			e.sendFault(w, soap.NewInvalidArgsFault(err.Error()))
			return
		}
		response = resp
	case "GetSnapshotUri":
		bodyContent, err := soap.GetBodyContent(body)
		if err != nil {
			e.sendFault(w, soap.NewInvalidArgsFault("invalid request"))
			return
		}
		var req media.GetSnapshotUriRequest
		if err := xml.Unmarshal(bodyContent, &req); err != nil {
			e.sendFault(w, soap.NewInvalidArgsFault("invalid request"))
			return
		}
		resp, err := e.mediaService.GetSnapshotUri(req.ProfileToken)
		if err != nil {
			e.sendFault(w, soap.NewInvalidArgsFault(err.Error()))
			return
		}
		response = resp
	default:
		e.sendFault(w, soap.NewActionFailedFault(fmt.Sprintf("unknown action: %s", action)))
		return
	}

	e.sendResponse(w, response)
}

func (e *Endpoint) handleMedia2Service(w http.ResponseWriter, r *http.Request) {
	body, action, ok := e.readRequest(w, r)
	if !ok {
		return
	}

	metrics.OnvifRequestsTotal.WithLabelValues("media2", action).Inc()

	if err := e.validateAuth(body); err != nil {
		e.log.Warn().Err(err).Str("action", action).Msg("authentication failed")
		metrics.OnvifAuthFailuresTotal.WithLabelValues("media2").Inc()
		e.sendFault(w, soap.NewNotAuthorizedFault())
		return
	}

	bodyContent, err := soap.GetBodyContent(body)
	if err != nil {
		e.sendFault(w, soap.NewInvalidArgsFault("invalid request"))
		return
	}

	var response interface{}
	switch action {
	case "GetProfiles":
		var req media2.GetProfilesRequest
		if err := xml.Unmarshal(bodyContent, &req); err != nil {
			e.sendFault(w, soap.NewInvalidArgsFault("invalid request"))
			return
		}
		resp, err := e.media2Service.GetProfiles(req.Token)
		if err != nil {
			e.sendFault(w, soap.NewInvalidArgsFault(err.Error()))
			return
		}
		response = resp
	case "GetStreamUri":
		var req media2.GetStreamUriRequest
		if err := xml.Unmarshal(bodyContent, &req); err != nil {
			e.sendFault(w, soap.NewInvalidArgsFault("invalid request"))
			return
		}
		resp, err := e.media2Service.GetStreamUri(req.Token)
		if err != nil {
			e.sendFault(w, soap.NewInvalidArgsFault(err.Error()))
			return
		}
		response = resp
	case "GetSnapshotUri":
		var req media2.GetSnapshotUriRequest
		if err := xml.Unmarshal(bodyContent, &req); err != nil {
			e.sendFault(w, soap.NewInvalidArgsFault("invalid request"))
			return
		}
		resp, err := e.media2Service.GetSnapshotUri(req.Token)
		if err != nil {
			e.sendFault(w, soap.NewInvalidArgsFault(err.Error()))
			return
		}
		response = resp
	default:
		e.sendFault(w, soap.NewActionFailedFault(fmt.Sprintf("unknown action: %s", action)))
		return
	}

	e.sendResponse(w, response)
}

func (e *Endpoint) readRequest(w http.ResponseWriter, r *http.Request) ([]byte, string, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return nil, "", false
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		e.sendFault(w, soap.NewActionFailedFault("failed to read request body"))
		return nil, "", false
	}
	defer r.Body.Close()

	action, err := soap.GetAction(body)
	if err != nil {
		e.sendFault(w, soap.NewActionFailedFault("failed to parse SOAP action"))
		return nil, "", false
	}

	return body, action, true
}

func (e *Endpoint) validateAuth(body []byte) error {
	var envelope soap.Envelope
	if err := xml.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("parse SOAP envelope: %w", err)
	}

	if envelope.Header == nil || envelope.Header.Security == nil {
		return fmt.Errorf("missing security header")
	}

	return soap.ValidateUsernameToken(envelope.Header.Security, e.username, e.password)
}

func (e *Endpoint) sendResponse(w http.ResponseWriter, response interface{}) {
	data, err := soap.MarshalEnvelope(response)
	if err != nil {
		e.log.Error().Err(err).Msg("failed to marshal response")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/soap+xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (e *Endpoint) sendFault(w http.ResponseWriter, fault *soap.Fault) {
	data, err := soap.MarshalFault(fault)
	if err != nil {
		e.log.Error().Err(err).Msg("failed to marshal fault")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/soap+xml; charset=utf-8")
	w.WriteHeader(http.StatusInternalServerError)
	w.Write(data)
}
