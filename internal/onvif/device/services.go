package device

import (
	"encoding/xml"
)

// GetServicesRequest represents GetServices request
type GetServicesRequest struct {
	XMLName           xml.Name `xml:"GetServices"`
	IncludeCapability bool     `xml:"IncludeCapability,omitempty"`
}

// GetServicesResponse represents GetServices response
type GetServicesResponse struct {
	XMLName xml.Name       `xml:"tds:GetServicesResponse"`
	Service []ServiceEntry `xml:"Service"`
}

// ServiceEntry describes one ONVIF service endpoint (spec.md:94).
type ServiceEntry struct {
	Namespace string       `xml:"Namespace"`
	XAddr     string       `xml:"XAddr"`
	Version   OnvifVersion `xml:"Version"`
}

// OnvifVersion represents the Major/Minor ONVIF version pair a service
// implements.
type OnvifVersion struct {
	Major int `xml:"Major"`
	Minor int `xml:"Minor"`
}

// GetServices handles GetServices request: the discovery-free alternative
// to GetCapabilities an NVR can call to enumerate every service XAddr this
// Endpoint exposes (spec.md:94). IncludeCapability is accepted but ignored
// -- this gateway's capability payloads are small enough to always return
// via GetCapabilities, so there is no cheaper "Namespace + XAddr only"
// response to fall back to.
func (s *Service) GetServices() *GetServicesResponse {
	return &GetServicesResponse{
		Service: []ServiceEntry{
			{
				Namespace: "http://www.onvif.org/ver10/device/wsdl",
				XAddr:     s.baseURL + "/onvif/device_service",
				Version:   OnvifVersion{Major: 2, Minor: 0},
			},
			{
				Namespace: "http://www.onvif.org/ver10/media/wsdl",
				XAddr:     s.baseURL + "/onvif/media_service",
				Version:   OnvifVersion{Major: 2, Minor: 0},
			},
			{
				Namespace: "http://www.onvif.org/ver20/media/wsdl",
				XAddr:     s.baseURL + "/onvif/media2_service",
				Version:   OnvifVersion{Major: 2, Minor: 0},
			},
		},
	}
}
