// Package media2 implements the subset of the ONVIF ver20 Media2 service
// (tr2) that NVRs probe when they prefer it over ver10 Media: GetProfiles,
// GetStreamUri, and GetSnapshotUri. It mirrors internal/onvif/media's
// shapes under the tr2 namespace and the flattened Media2 profile schema,
// which folds configuration references directly onto the profile rather
// than nesting VideoSourceConfiguration/VideoEncoderConfiguration blocks.
package media2

import (
	"encoding/xml"
	"fmt"

	"github.com/BigTonyTones/onvif-gateway/internal/apperr"
	"github.com/BigTonyTones/onvif-gateway/internal/model"
)

// GetProfilesRequest represents a ver20 GetProfiles request.
type GetProfilesRequest struct {
	XMLName xml.Name `xml:"GetProfiles"`
	Token   string   `xml:"Token,omitempty"`
}

// GetProfilesResponse represents a ver20 GetProfiles response.
type GetProfilesResponse struct {
	XMLName  xml.Name  `xml:"tr2:GetProfilesResponse"`
	Profiles []Profile `xml:"Profiles"`
}

// Profile is the Media2 flattened profile shape.
type Profile struct {
	Token       string      `xml:"token,attr"`
	Fixed       bool        `xml:"fixed,attr"`
	Name        string      `xml:"Name"`
	Configurations Configurations `xml:"Configurations"`
}

// Configurations lists the configuration references a Media2 profile
// carries inline instead of through separate Get*Configuration calls.
type Configurations struct {
	VideoSource  VideoSourceConfiguration  `xml:"VideoSource"`
	VideoEncoder VideoEncoderConfiguration `xml:"VideoEncoder"`
}

// VideoSourceConfiguration represents the ver20 video source configuration.
type VideoSourceConfiguration struct {
	Token    string `xml:"token,attr"`
	Name     string `xml:"Name"`
	Bounds   Bounds `xml:"Bounds"`
}

// Bounds represents the video source bounds.
type Bounds struct {
	X      int `xml:"x,attr"`
	Y      int `xml:"y,attr"`
	Width  int `xml:"width,attr"`
	Height int `xml:"height,attr"`
}

// VideoEncoderConfiguration represents the ver20 video encoder configuration.
type VideoEncoderConfiguration struct {
	Token      string     `xml:"token,attr"`
	Name       string     `xml:"Name"`
	Encoding   string     `xml:"Encoding"`
	Resolution Resolution `xml:"Resolution"`
	RateControl RateControl `xml:"RateControl"`
}

// Resolution represents the encoder resolution.
type Resolution struct {
	Width  int `xml:"Width"`
	Height int `xml:"Height"`
}

// RateControl represents the ver20 rate control block.
type RateControl struct {
	FrameRateLimit   int `xml:"FrameRateLimit"`
	BitrateLimit     int `xml:"BitrateLimit"`
}

// GetStreamUriRequest represents a ver20 GetStreamUri request.
type GetStreamUriRequest struct {
	XMLName  xml.Name `xml:"GetStreamUri"`
	Protocol string   `xml:"Protocol"`
	Token    string   `xml:"Token"`
}

// GetStreamUriResponse represents a ver20 GetStreamUri response.
type GetStreamUriResponse struct {
	XMLName xml.Name `xml:"tr2:GetStreamUriResponse"`
	Uri     string   `xml:"Uri"`
}

// GetSnapshotUriRequest represents a ver20 GetSnapshotUri request.
type GetSnapshotUriRequest struct {
	XMLName xml.Name `xml:"GetSnapshotUri"`
	Token   string    `xml:"Token"`
}

// GetSnapshotUriResponse represents a ver20 GetSnapshotUri response.
type GetSnapshotUriResponse struct {
	XMLName xml.Name `xml:"tr2:GetSnapshotUriResponse"`
	Uri     string   `xml:"Uri"`
}

const (
	mainToken = "main"
	subToken  = "sub"
)

// Service implements the Media2 service for one camera.
type Service struct {
	camera        *model.Camera
	mediaHost     string
	mediaRTSPPort int
	snapshotHost  string
	snapshotPort  int
}

// NewService creates a Media2 service scoped to a single camera.
func NewService(cam *model.Camera, mediaHost string, mediaRTSPPort int, snapshotHost string, snapshotPort int) *Service {
	return &Service{
		camera:        cam,
		mediaHost:     mediaHost,
		mediaRTSPPort: mediaRTSPPort,
		snapshotHost:  snapshotHost,
		snapshotPort:  snapshotPort,
	}
}

// GetProfiles handles a ver20 GetProfiles request. token, when non-empty,
// restricts the response to the single matching profile.
func (s *Service) GetProfiles(token string) (*GetProfilesResponse, error) {
	resp := &GetProfilesResponse{}

	candidates := []string{mainToken}
	if s.camera.Sub.Width > 0 && s.camera.Sub.Height > 0 {
		candidates = append(candidates, subToken)
	}

	for _, t := range candidates {
		if token != "" && token != t {
			continue
		}
		resp.Profiles = append(resp.Profiles, s.buildProfile(t))
	}

	if token != "" && len(resp.Profiles) == 0 {
		return nil, apperr.New(apperr.Invalid, "unknown profile token %q", token)
	}
	return resp, nil
}

// GetStreamUri handles a ver20 GetStreamUri request.
func (s *Service) GetStreamUri(token string) (*GetStreamUriResponse, error) {
	suffix, err := s.pathSuffix(token)
	if err != nil {
		return nil, err
	}
	return &GetStreamUriResponse{
		Uri: fmt.Sprintf("rtsp://%s:%d/%s_%s", s.mediaHost, s.mediaRTSPPort, s.camera.PathName, suffix),
	}, nil
}

// GetSnapshotUri handles a ver20 GetSnapshotUri request.
func (s *Service) GetSnapshotUri(token string) (*GetSnapshotUriResponse, error) {
	if _, err := s.pathSuffix(token); err != nil {
		return nil, err
	}
	return &GetSnapshotUriResponse{
		Uri: fmt.Sprintf("http://%s:%d/snapshot/%s", s.snapshotHost, s.snapshotPort, s.camera.PathName),
	}, nil
}

func (s *Service) pathSuffix(token string) (string, error) {
	switch token {
	case mainToken:
		return mainToken, nil
	case subToken:
		if s.camera.Sub.Width == 0 {
			return "", apperr.New(apperr.Invalid, "profile %q has no sub stream configured", token)
		}
		return subToken, nil
	default:
		return "", apperr.New(apperr.Invalid, "unknown profile token %q", token)
	}
}

func (s *Service) buildProfile(token string) Profile {
	spec := s.camera.Main
	if token == subToken {
		spec = s.camera.Sub
	}
	return Profile{
		Token: token,
		Fixed: true,
		Name:  s.camera.Name + " " + token,
		Configurations: Configurations{
			VideoSource: VideoSourceConfiguration{
				Token:  token + "_VSC",
				Name:   token + " Video Source",
				Bounds: Bounds{Width: spec.Width, Height: spec.Height},
			},
			VideoEncoder: VideoEncoderConfiguration{
				Token:      token + "_VEC",
				Name:       token + " Video Encoder",
				Encoding:   "H264",
				Resolution: Resolution{Width: spec.Width, Height: spec.Height},
				RateControl: RateControl{
					FrameRateLimit: spec.FrameRate,
					BitrateLimit:   4096,
				},
			},
		},
	}
}
