package onvif

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/BigTonyTones/onvif-gateway/internal/model"
	"github.com/BigTonyTones/onvif-gateway/internal/store"
)

func testEndpointCamera(port int) *model.Camera {
	return &model.Camera{
		ID:               7,
		Name:             "front-door",
		PathName:         "front-door",
		UpstreamHost:     "192.0.2.10",
		UpstreamRTSPPort: 554,
		UpstreamMainPath: "stream1",
		OnvifPort:        port,
		OnvifUsername:    "admin",
		OnvifPassword:    "secret",
		Main:             model.StreamSpec{Width: 1920, Height: 1080, FrameRate: 15},
	}
}

func testEndpointStore(t *testing.T, cam *model.Camera) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "store.json"), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, st.PutCamera(*cam))
	return st
}

func TestEndpointLifecycleAndSystemDateAndTime(t *testing.T) {
	port := 18734
	cam := testEndpointCamera(port)
	st := testEndpointStore(t, cam)
	ep := NewEndpoint(cam, "127.0.0.1", 8554, "127.0.0.1", 8100, st, zerolog.Nop())

	require.Equal(t, StateIdle, ep.State())
	require.NoError(t, ep.Listen("127.0.0.1", port))
	require.Equal(t, StateServing, ep.State())

	time.Sleep(50 * time.Millisecond)

	body := []byte(`<?xml version="1.0"?>
<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope">
  <s:Body>
    <GetSystemDateAndTime xmlns="http://www.onvif.org/ver10/device/wsdl"/>
  </s:Body>
</s:Envelope>`)

	resp, err := http.Post(fmt.Sprintf("http://127.0.0.1:%d/onvif/device_service", port), "application/soap+xml", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, ep.Shutdown(ctx))
	require.Equal(t, StateClosed, ep.State())
}

func TestEndpointRejectsUnauthenticatedMediaRequest(t *testing.T) {
	port := 18735
	cam := testEndpointCamera(port)
	st := testEndpointStore(t, cam)
	ep := NewEndpoint(cam, "127.0.0.1", 8554, "127.0.0.1", 8100, st, zerolog.Nop())
	require.NoError(t, ep.Listen("127.0.0.1", port))
	defer ep.Shutdown(context.Background())

	time.Sleep(50 * time.Millisecond)

	body := []byte(`<?xml version="1.0"?>
<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope">
  <s:Body>
    <GetProfiles xmlns="http://www.onvif.org/ver10/media/wsdl"/>
  </s:Body>
</s:Envelope>`)

	resp, err := http.Post(fmt.Sprintf("http://127.0.0.1:%d/onvif/media_service", port), "application/soap+xml", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestEndpointGetServicesListsAllXAddrs(t *testing.T) {
	port := 18737
	cam := testEndpointCamera(port)
	st := testEndpointStore(t, cam)
	ep := NewEndpoint(cam, "127.0.0.1", 8554, "127.0.0.1", 8100, st, zerolog.Nop())
	require.NoError(t, ep.Listen("127.0.0.1", port))
	defer ep.Shutdown(context.Background())

	time.Sleep(50 * time.Millisecond)

	body := []byte(`<?xml version="1.0"?>
<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope" xmlns:wsse="http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd">
  <s:Header>
    <wsse:Security>
      <wsse:UsernameToken>
        <wsse:Username>admin</wsse:Username>
        <wsse:Password>secret</wsse:Password>
      </wsse:UsernameToken>
    </wsse:Security>
  </s:Header>
  <s:Body>
    <GetServices xmlns="http://www.onvif.org/ver10/device/wsdl"/>
  </s:Body>
</s:Envelope>`)

	resp, err := http.Post(fmt.Sprintf("http://127.0.0.1:%d/onvif/device_service", port), "application/soap+xml", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	respBody := make([]byte, 4096)
	n, _ := resp.Body.Read(respBody)
	payload := string(respBody[:n])

	require.Contains(t, payload, "/onvif/device_service")
	require.Contains(t, payload, "/onvif/media_service")
	require.Contains(t, payload, "/onvif/media2_service")
}

func TestValidateAuthRejectsMissingSecurityHeader(t *testing.T) {
	cam := testEndpointCamera(18736)
	st := testEndpointStore(t, cam)
	ep := NewEndpoint(cam, "127.0.0.1", 8554, "127.0.0.1", 8100, st, zerolog.Nop())

	body := []byte(`<?xml version="1.0"?><s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope"><s:Body><GetProfiles/></s:Body></s:Envelope>`)
	err := ep.validateAuth(body)
	require.Error(t, err)
}
