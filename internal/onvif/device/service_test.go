package device

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetDeviceInformationReportsCameraName(t *testing.T) {
	svc := NewService("front-door", "SN-1", "http://192.0.2.10:8001")
	info := svc.GetDeviceInformation()

	require.Equal(t, "front-door", info.Model)
	require.Equal(t, "SN-1", info.SerialNumber)
	require.NotEqual(t, "AtomCam", info.Manufacturer)
}

func TestGetCapabilitiesAllIncludesDeviceMediaAndMedia2(t *testing.T) {
	svc := NewService("front-door", "SN-1", "http://192.0.2.10:8001")
	caps := svc.GetCapabilities(nil)

	require.NotNil(t, caps.Capabilities.Device)
	require.NotNil(t, caps.Capabilities.Media)
	require.Equal(t, "http://192.0.2.10:8001/onvif/device_service", caps.Capabilities.Device.XAddr)
	require.NotNil(t, caps.Capabilities.Extension)
	require.NotNil(t, caps.Capabilities.Extension.Media2)
}

func TestGetCapabilitiesFilterByCategory(t *testing.T) {
	svc := NewService("front-door", "SN-1", "http://192.0.2.10:8001")
	caps := svc.GetCapabilities([]string{"Media"})

	require.Nil(t, caps.Capabilities.Device)
	require.NotNil(t, caps.Capabilities.Media)
}

func TestGetServicesListsDeviceMediaAndMedia2(t *testing.T) {
	svc := NewService("front-door", "SN-1", "http://192.0.2.10:8001")
	resp := svc.GetServices()

	require.Len(t, resp.Service, 3)

	byNamespace := make(map[string]ServiceEntry, len(resp.Service))
	for _, entry := range resp.Service {
		byNamespace[entry.Namespace] = entry
	}

	device, ok := byNamespace["http://www.onvif.org/ver10/device/wsdl"]
	require.True(t, ok)
	require.Equal(t, "http://192.0.2.10:8001/onvif/device_service", device.XAddr)

	media2, ok := byNamespace["http://www.onvif.org/ver20/media/wsdl"]
	require.True(t, ok)
	require.Equal(t, "http://192.0.2.10:8001/onvif/media2_service", media2.XAddr)
}
