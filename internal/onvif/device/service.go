// Package device implements the ONVIF Device service (ver10/device/wsdl)
// for a single camera's Endpoint. It is adapted from the teacher's
// internal/onvif/device package: the request/response shapes and the
// GetSystemDateAndTime clock logic are unchanged, but GetDeviceInformation
// now reports this gateway's own identity instead of a hardcoded AtomCam
// manufacturer string, since one Endpoint can front any upstream camera.
package device

import (
	"encoding/xml"
	"time"
)

// GetDeviceInformationRequest represents GetDeviceInformation request
type GetDeviceInformationRequest struct {
	XMLName xml.Name `xml:"GetDeviceInformation"`
}

// GetDeviceInformationResponse represents GetDeviceInformation response
type GetDeviceInformationResponse struct {
	XMLName         xml.Name `xml:"tds:GetDeviceInformationResponse"`
	Manufacturer    string   `xml:"Manufacturer"`
	Model           string   `xml:"Model"`
	FirmwareVersion string   `xml:"FirmwareVersion"`
	SerialNumber    string   `xml:"SerialNumber"`
	HardwareId      string   `xml:"HardwareId"`
}

// GetSystemDateAndTimeRequest represents GetSystemDateAndTime request
type GetSystemDateAndTimeRequest struct {
	XMLName xml.Name `xml:"GetSystemDateAndTime"`
}

// GetSystemDateAndTimeResponse represents GetSystemDateAndTime response
type GetSystemDateAndTimeResponse struct {
	XMLName           xml.Name          `xml:"tds:GetSystemDateAndTimeResponse"`
	SystemDateAndTime SystemDateAndTime `xml:"SystemDateAndTime"`
}

// SystemDateAndTime represents system date and time
type SystemDateAndTime struct {
	DateTimeType      string   `xml:"DateTimeType"`
	DaylightSavings   bool     `xml:"DaylightSavings"`
	TimeZone          TimeZone `xml:"TimeZone"`
	UTCDateTime       DateTime `xml:"UTCDateTime"`
	LocalDateTime     DateTime `xml:"LocalDateTime"`
}

// TimeZone represents timezone information
type TimeZone struct {
	TZ string `xml:"TZ"`
}

// DateTime represents date and time
type DateTime struct {
	Time Time `xml:"Time"`
	Date Date `xml:"Date"`
}

// Time represents time
type Time struct {
	Hour   int `xml:"Hour"`
	Minute int `xml:"Minute"`
	Second int `xml:"Second"`
}

// Date represents date
type Date struct {
	Year  int `xml:"Year"`
	Month int `xml:"Month"`
	Day   int `xml:"Day"`
}

// Service implements the Device service for one camera's Endpoint.
type Service struct {
	cameraName string
	serial     string
	baseURL    string
}

// NewService creates a new Device service. serial should be stable for a
// given camera id so an NVR that polls GetDeviceInformation repeatedly
// does not see it change across restarts.
func NewService(cameraName, serial, baseURL string) *Service {
	return &Service{
		cameraName: cameraName,
		serial:     serial,
		baseURL:    baseURL,
	}
}

// GetDeviceInformation handles GetDeviceInformation request
func (s *Service) GetDeviceInformation() *GetDeviceInformationResponse {
	return &GetDeviceInformationResponse{
		Manufacturer:    "vcam-onvif-gateway",
		Model:           s.cameraName,
		FirmwareVersion: "1.0.0",
		SerialNumber:    s.serial,
		HardwareId:      "VCAM-GATEWAY",
	}
}

// GetSystemDateAndTime handles GetSystemDateAndTime request
func (s *Service) GetSystemDateAndTime() *GetSystemDateAndTimeResponse {
	now := time.Now()
	utc := now.UTC()

	return &GetSystemDateAndTimeResponse{
		SystemDateAndTime: SystemDateAndTime{
			DateTimeType:    "Manual",
			DaylightSavings: false,
			TimeZone: TimeZone{
				TZ: "UTC",
			},
			UTCDateTime: DateTime{
				Time: Time{
					Hour:   utc.Hour(),
					Minute: utc.Minute(),
					Second: utc.Second(),
				},
				Date: Date{
					Year:  utc.Year(),
					Month: int(utc.Month()),
					Day:   utc.Day(),
				},
			},
			LocalDateTime: DateTime{
				Time: Time{
					Hour:   now.Hour(),
					Minute: now.Minute(),
					Second: now.Second(),
				},
				Date: Date{
					Year:  now.Year(),
					Month: int(now.Month()),
					Day:   now.Day(),
				},
			},
		},
	}
}
