// Package model holds the persisted data shapes shared across the gateway:
// the Camera record, global settings, and the status enum the Supervisor
// drives. It has no behaviour of its own beyond small accessors; validation
// lives in internal/store and derivation lives in internal/slug.
package model

// Status is a camera's lifecycle state as tracked by the Supervisor.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusFailed   Status = "failed"
)

// IPMode selects how a camera's virtual NIC acquires an address.
type IPMode string

const (
	IPModeDHCP   IPMode = "dhcp"
	IPModeStatic IPMode = "static"
)

// StreamSpec describes one declared stream (main or sub) of a camera.
type StreamSpec struct {
	Width      int  `json:"width"`
	Height     int  `json:"height"`
	FrameRate  int  `json:"frameRate"`
	Transcode  bool `json:"transcode"`
}

// VNIC is the optional virtual-NIC block of a camera record.
type VNIC struct {
	Enabled         bool   `json:"enabled"`
	MAC             string `json:"mac,omitempty"`
	ParentInterface string `json:"parentInterface,omitempty"`
	IPMode          IPMode `json:"ipMode,omitempty"`
	StaticAddress   string `json:"staticAddress,omitempty"`
	StaticPrefix    int    `json:"staticPrefix,omitempty"`
	Gateway         string `json:"gateway,omitempty"`

	// AssignedAddress is populated at runtime once DHCP completes or the
	// static address is applied. It is never persisted (spec.md §4.3: "do
	// not persist -- the lease is transient").
	AssignedAddress string `json:"-"`
}

// Notify is the optional MQTT status-notification block (SPEC_FULL §4.6.1).
type Notify struct {
	Enabled bool   `json:"enabled"`
	Broker  string `json:"broker,omitempty"`
	Topic   string `json:"topic,omitempty"`
}

// Camera is the persisted record for one virtual camera.
type Camera struct {
	ID   int    `json:"id"`
	Name string `json:"name"`

	// PathName is derived from Name (internal/slug) when left blank, and
	// persisted so it stays stable across restarts. Renaming re-derives it
	// (spec.md:172), collision-resolved by suffix.
	PathName string `json:"pathName"`

	UpstreamHost     string `json:"upstreamHost"`
	UpstreamRTSPPort int    `json:"upstreamRtspPort"`
	UpstreamUsername string `json:"upstreamUsername,omitempty"`
	UpstreamPassword string `json:"upstreamPassword,omitempty"`
	UpstreamMainPath string `json:"upstreamMainPath"`
	UpstreamSubPath  string `json:"upstreamSubPath"`

	Main StreamSpec `json:"main"`
	Sub  StreamSpec `json:"sub"`

	OnvifPort     int    `json:"onvifPort"`
	OnvifUsername string `json:"onvifUsername"`
	OnvifPassword string `json:"onvifPassword"`

	VNIC   VNIC   `json:"vnic"`
	Notify Notify `json:"notify,omitempty"`

	AutoStart bool `json:"autoStart"`

	Status    Status `json:"status"`
	LastError string `json:"lastError,omitempty"`

	// Unknown carries any top-level keys this build doesn't recognize, so
	// a save() round-trip preserves them (spec.md §6 forward compatibility).
	Unknown map[string]any `json:"-"`
}

// BindAddress returns the address an ONVIF Endpoint and the republished
// streams should be reachable at for this camera: its virtual-NIC address
// if one has been assigned, otherwise the host-wide bind address passed in.
func (c *Camera) BindAddress(hostBindAddress string) string {
	if c.VNIC.Enabled && c.VNIC.AssignedAddress != "" {
		return c.VNIC.AssignedAddress
	}
	return hostBindAddress
}

// Clone returns a deep-enough copy of c for safe concurrent reads: every
// field is a value or an independently-owned map, so mutating the clone
// never affects the original (spec.md §4.1 "readers obtain a cheap deep
// copy").
func (c *Camera) Clone() *Camera {
	cp := *c
	if c.Unknown != nil {
		cp.Unknown = make(map[string]any, len(c.Unknown))
		for k, v := range c.Unknown {
			cp.Unknown[k] = v
		}
	}
	return &cp
}

// Settings holds the global, non-per-camera configuration.
type Settings struct {
	BindAddress    string `json:"bindAddress"`
	MediaRTSPPort  int    `json:"mediaRtspPort"`
	MediaHLSPort   int    `json:"mediaHlsPort"`
	MediaAPIPort   int    `json:"mediaApiPort"`
	WebUIPort      int    `json:"webUiPort,omitempty"`
	GridColumns    int    `json:"gridColumns,omitempty"`
	Theme          string `json:"theme,omitempty"`

	MediaAPIUsername string `json:"mediaApiUsername,omitempty"`
	MediaAPIPassword string `json:"mediaApiPassword,omitempty"`

	Unknown map[string]any `json:"-"`
}

// ReservedPorts returns the set of ports the Port Allocator must never hand
// out: the media server's own fixed ports plus the web UI port, where set.
func (s *Settings) ReservedPorts() map[int]bool {
	reserved := map[int]bool{}
	for _, p := range []int{s.MediaRTSPPort, s.MediaHLSPort, s.MediaAPIPort, s.WebUIPort} {
		if p != 0 {
			reserved[p] = true
		}
	}
	return reserved
}

// Document is the top-level persisted shape: the camera list plus settings.
type Document struct {
	Cameras  []Camera `json:"cameras"`
	Settings Settings `json:"settings"`
}
