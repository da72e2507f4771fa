// Package media implements the ONVIF ver10 Media service (trt) for a
// single camera's Endpoint. Adapted from the teacher's internal/onvif/media
// package: the Profile/VideoSourceConfiguration/VideoEncoderConfiguration
// shapes are unchanged, but profiles are now built directly from a
// model.Camera's Main/Sub streams rather than a shared camera.Registry, and
// PTZConfiguration is dropped since this gateway has no camera-side
// control channel.
package media

import (
	"encoding/xml"
	"fmt"

	"github.com/BigTonyTones/onvif-gateway/internal/apperr"
	"github.com/BigTonyTones/onvif-gateway/internal/model"
)

// GetProfilesRequest represents GetProfiles request
type GetProfilesRequest struct {
	XMLName xml.Name `xml:"GetProfiles"`
}

// GetProfilesResponse represents GetProfiles response
type GetProfilesResponse struct {
	XMLName  xml.Name  `xml:"trt:GetProfilesResponse"`
	Profiles []Profile `xml:"Profiles"`
}

// Profile represents a media profile
type Profile struct {
	Token                     string                     `xml:"token,attr"`
	Fixed                     bool                       `xml:"fixed,attr"`
	Name                      string                     `xml:"Name"`
	VideoSourceConfiguration  *VideoSourceConfiguration  `xml:"VideoSourceConfiguration,omitempty"`
	VideoEncoderConfiguration *VideoEncoderConfiguration `xml:"VideoEncoderConfiguration,omitempty"`
}

// VideoSourceConfiguration represents video source configuration
type VideoSourceConfiguration struct {
	Token       string `xml:"token,attr"`
	Name        string `xml:"Name"`
	SourceToken string `xml:"SourceToken"`
	Bounds      Bounds `xml:"Bounds"`
}

// Bounds represents bounds
type Bounds struct {
	X      int `xml:"x,attr"`
	Y      int `xml:"y,attr"`
	Width  int `xml:"width,attr"`
	Height int `xml:"height,attr"`
}

// VideoEncoderConfiguration represents video encoder configuration
type VideoEncoderConfiguration struct {
	Token       string      `xml:"token,attr"`
	Name        string      `xml:"Name"`
	Encoding    string      `xml:"Encoding"`
	Resolution  Resolution  `xml:"Resolution"`
	Quality     float64     `xml:"Quality"`
	RateControl RateControl `xml:"RateControl,omitempty"`
}

// Resolution represents resolution
type Resolution struct {
	Width  int `xml:"Width"`
	Height int `xml:"Height"`
}

// RateControl represents rate control
type RateControl struct {
	FrameRateLimit   int `xml:"FrameRateLimit"`
	EncodingInterval int `xml:"EncodingInterval"`
	BitrateLimit     int `xml:"BitrateLimit"`
}

// GetStreamUriRequest represents GetStreamUri request
type GetStreamUriRequest struct {
	XMLName      xml.Name    `xml:"GetStreamUri"`
	StreamSetup  StreamSetup `xml:"StreamSetup"`
	ProfileToken string      `xml:"ProfileToken"`
}

// StreamSetup represents stream setup
type StreamSetup struct {
	Stream    string    `xml:"Stream"`
	Transport Transport `xml:"Transport"`
}

// Transport represents transport
type Transport struct {
	Protocol string `xml:"Protocol"`
}

// GetStreamUriResponse represents GetStreamUri response
type GetStreamUriResponse struct {
	XMLName  xml.Name `xml:"trt:GetStreamUriResponse"`
	MediaUri MediaUri `xml:"MediaUri"`
}

// MediaUri represents media URI
type MediaUri struct {
	Uri                 string `xml:"Uri"`
	InvalidAfterConnect bool   `xml:"InvalidAfterConnect"`
	InvalidAfterReboot  bool   `xml:"InvalidAfterReboot"`
	Timeout             string `xml:"Timeout"`
}

// GetSnapshotUriRequest represents GetSnapshotUri request
type GetSnapshotUriRequest struct {
	XMLName      xml.Name `xml:"GetSnapshotUri"`
	ProfileToken string   `xml:"ProfileToken"`
}

// GetSnapshotUriResponse represents GetSnapshotUri response
type GetSnapshotUriResponse struct {
	XMLName  xml.Name `xml:"trt:GetSnapshotUriResponse"`
	MediaUri MediaUri `xml:"MediaUri"`
}

const (
	mainToken = "main"
	subToken  = "sub"
)

// Service implements the Media service for one camera.
type Service struct {
	camera       *model.Camera
	mediaHost    string
	mediaRTSPPort int
	snapshotHost string
	snapshotPort int
}

// NewService creates a new Media service scoped to a single camera.
func NewService(cam *model.Camera, mediaHost string, mediaRTSPPort int, snapshotHost string, snapshotPort int) *Service {
	return &Service{
		camera:        cam,
		mediaHost:     mediaHost,
		mediaRTSPPort: mediaRTSPPort,
		snapshotHost:  snapshotHost,
		snapshotPort:  snapshotPort,
	}
}

// GetProfiles handles GetProfiles request
func (s *Service) GetProfiles() *GetProfilesResponse {
	resp := &GetProfilesResponse{Profiles: make([]Profile, 0, 2)}
	resp.Profiles = append(resp.Profiles, s.buildProfile(mainToken, s.camera.Main))
	if s.camera.Sub.Width > 0 && s.camera.Sub.Height > 0 {
		resp.Profiles = append(resp.Profiles, s.buildProfile(subToken, s.camera.Sub))
	}
	return resp
}

// GetStreamUri handles GetStreamUri request
func (s *Service) GetStreamUri(profileToken string) (*GetStreamUriResponse, error) {
	pathSuffix, err := s.pathSuffix(profileToken)
	if err != nil {
		return nil, err
	}

	rtspURL := fmt.Sprintf("rtsp://%s:%d/%s_%s", s.mediaHost, s.mediaRTSPPort, s.camera.PathName, pathSuffix)

	return &GetStreamUriResponse{
		MediaUri: MediaUri{
			Uri:                 rtspURL,
			InvalidAfterConnect: false,
			InvalidAfterReboot:  false,
			Timeout:             "PT1H",
		},
	}, nil
}

// GetSnapshotUri handles GetSnapshotUri request
func (s *Service) GetSnapshotUri(profileToken string) (*GetSnapshotUriResponse, error) {
	if _, err := s.pathSuffix(profileToken); err != nil {
		return nil, err
	}

	snapshotURL := fmt.Sprintf("http://%s:%d/snapshot/%s", s.snapshotHost, s.snapshotPort, s.camera.PathName)

	return &GetSnapshotUriResponse{
		MediaUri: MediaUri{
			Uri:                 snapshotURL,
			InvalidAfterConnect: false,
			InvalidAfterReboot:  false,
			Timeout:             "PT1H",
		},
	}, nil
}

func (s *Service) pathSuffix(profileToken string) (string, error) {
	switch profileToken {
	case mainToken:
		return mainToken, nil
	case subToken:
		if s.camera.Sub.Width == 0 {
			return "", apperr.New(apperr.Invalid, "profile %q has no sub stream configured", profileToken)
		}
		return subToken, nil
	default:
		return "", apperr.New(apperr.Invalid, "unknown profile token %q", profileToken)
	}
}

func (s *Service) buildProfile(token string, spec model.StreamSpec) Profile {
	return Profile{
		Token: token,
		Fixed: true,
		Name:  s.camera.Name + " " + token,
		VideoSourceConfiguration: &VideoSourceConfiguration{
			Token:       token + "_VSC",
			Name:        token + " Video Source",
			SourceToken: "VideoSource_1",
			Bounds: Bounds{
				Width:  spec.Width,
				Height: spec.Height,
			},
		},
		VideoEncoderConfiguration: &VideoEncoderConfiguration{
			Token:    token + "_VEC",
			Name:     token + " Video Encoder",
			Encoding: "H264",
			Resolution: Resolution{
				Width:  spec.Width,
				Height: spec.Height,
			},
			Quality: 4.0,
			RateControl: RateControl{
				FrameRateLimit:   spec.FrameRate,
				EncodingInterval: 1,
				BitrateLimit:     4096,
			},
		},
	}
}
