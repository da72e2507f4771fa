// Package store implements the Config Store: the single JSON document that
// holds the camera list and global settings (spec.md §4.1). Persistence is
// grounded on the teacher pack's renameio-based atomic write pattern; the
// validation rules mirror the teacher's config.Validate family, generalized
// from the teacher's static YAML camera list to this gateway's mutable,
// per-camera JSON records.
package store

import (
	"encoding/json"
	"net"
	"os"
	"regexp"
	"sync"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"github.com/BigTonyTones/onvif-gateway/internal/apperr"
	"github.com/BigTonyTones/onvif-gateway/internal/model"
	"github.com/BigTonyTones/onvif-gateway/internal/portalloc"
	"github.com/BigTonyTones/onvif-gateway/internal/slug"
)

var validNamePattern = regexp.MustCompile(`^[a-zA-Z0-9 _-]+$`)

// Store owns the persisted document and serializes every mutation behind a
// single lock, exactly as spec.md §4.1 requires ("the store is serialized
// by a single lock; readers obtain a cheap deep copy").
type Store struct {
	mu   sync.Mutex
	path string
	log  zerolog.Logger
	doc  model.Document
	next int // next id to assign, monotonic (I1)
}

// Open loads path if it exists, or starts from an empty document (one
// camera-less settings block) if it does not -- first-run behaviour a
// fresh install needs that a bare load() wouldn't provide.
func Open(path string, log zerolog.Logger) (*Store, error) {
	s := &Store{path: path, log: log.With().Str("component", "store").Logger(), next: 1}
	if err := s.load(); err != nil {
		if os.IsNotExist(err) {
			s.log.Info().Str("path", path).Msg("no existing config document, starting empty")
			return s, nil
		}
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	var raw struct {
		Cameras  []json.RawMessage `json:"cameras"`
		Settings json.RawMessage  `json:"settings"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return apperr.Wrap(apperr.Internal, err, "parse config document")
	}

	doc := model.Document{Cameras: make([]model.Camera, 0, len(raw.Cameras))}
	for _, rc := range raw.Cameras {
		cam, err := unmarshalWithUnknown(rc, func() any { return &model.Camera{} })
		if err != nil {
			return apperr.Wrap(apperr.Internal, err, "parse camera record")
		}
		c := cam.(*model.Camera)
		if c.ID >= s.next {
			s.next = c.ID + 1
		}
		doc.Cameras = append(doc.Cameras, *c)
	}
	if len(raw.Settings) > 0 {
		st, err := unmarshalWithUnknown(raw.Settings, func() any { return &model.Settings{} })
		if err != nil {
			return apperr.Wrap(apperr.Internal, err, "parse settings")
		}
		doc.Settings = *st.(*model.Settings)
	}

	s.doc = doc
	return nil
}

// unmarshalWithUnknown decodes data into a fresh T via newT, additionally
// capturing any key it doesn't recognize into the type's Unknown map so a
// later save() writes it back (spec.md §6 forward compatibility).
func unmarshalWithUnknown(data []byte, newT func() any) (any, error) {
	v := newT()
	if err := json.Unmarshal(data, v); err != nil {
		return nil, err
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	known := map[string]bool{}
	marshaled, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var knownFields map[string]json.RawMessage
	if err := json.Unmarshal(marshaled, &knownFields); err != nil {
		return nil, err
	}
	for k := range knownFields {
		known[k] = true
	}

	unknown := map[string]any{}
	for k, raw := range all {
		if known[k] {
			continue
		}
		var val any
		if err := json.Unmarshal(raw, &val); err != nil {
			continue
		}
		unknown[k] = val
	}

	switch t := v.(type) {
	case *model.Camera:
		if len(unknown) > 0 {
			t.Unknown = unknown
		}
	case *model.Settings:
		if len(unknown) > 0 {
			t.Unknown = unknown
		}
	}
	return v, nil
}

// save atomically replaces the document on disk: temp file, fsync, rename,
// via github.com/google/renameio/v2 -- never leaves a partially written
// file (spec.md §4.1).
func (s *Store) save() error {
	merged := struct {
		Cameras  []mergedCamera `json:"cameras"`
		Settings map[string]any `json:"settings"`
	}{}

	for _, c := range s.doc.Cameras {
		merged.Cameras = append(merged.Cameras, mergeCamera(c))
	}
	merged.Settings = mergeSettings(s.doc.Settings)

	data, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return apperr.Wrap(apperr.Internal, err, "marshal config document")
	}

	t, err := renameio.NewPendingFile(s.path)
	if err != nil {
		return apperr.Wrap(apperr.Internal, err, "open temp config file")
	}
	defer t.Cleanup()

	if _, err := t.Write(data); err != nil {
		return apperr.Wrap(apperr.Internal, err, "write temp config file")
	}
	if err := t.CloseAtomicallyReplace(); err != nil {
		return apperr.Wrap(apperr.Internal, err, "replace config document")
	}
	return nil
}

type mergedCamera map[string]any

func mergeCamera(c model.Camera) mergedCamera {
	out := mergedCamera{}
	data, _ := json.Marshal(c)
	_ = json.Unmarshal(data, (*map[string]any)(&out))
	for k, v := range c.Unknown {
		if _, exists := out[k]; !exists {
			out[k] = v
		}
	}
	return out
}

func mergeSettings(s model.Settings) map[string]any {
	out := map[string]any{}
	data, _ := json.Marshal(s)
	_ = json.Unmarshal(data, &out)
	for k, v := range s.Unknown {
		if _, exists := out[k]; !exists {
			out[k] = v
		}
	}
	return out
}

// ListCameras returns a deep copy of every camera, ordered by id.
func (s *Store) ListCameras() []model.Camera {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Camera, len(s.doc.Cameras))
	for i, c := range s.doc.Cameras {
		out[i] = *c.Clone()
	}
	return out
}

// GetCamera returns a deep copy of the camera with the given id.
func (s *Store) GetCamera(id int) (*model.Camera, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.doc.Cameras {
		if s.doc.Cameras[i].ID == id {
			return s.doc.Cameras[i].Clone(), nil
		}
	}
	return nil, apperr.New(apperr.NotFound, "camera %d not found", id)
}

// GetCameraByPathName returns a deep copy of the camera with the given
// pathName, used by the snapshot proxy to resolve a /snapshot/{pathName}
// request without exposing numeric ids.
func (s *Store) GetCameraByPathName(pathName string) (*model.Camera, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.doc.Cameras {
		if s.doc.Cameras[i].PathName == pathName {
			return s.doc.Cameras[i].Clone(), nil
		}
	}
	return nil, apperr.New(apperr.NotFound, "camera with path name %q not found", pathName)
}

// Settings returns a copy of the current global settings.
func (s *Store) Settings() model.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := s.doc.Settings
	if s.doc.Settings.Unknown != nil {
		cp.Unknown = make(map[string]any, len(s.doc.Settings.Unknown))
		for k, v := range s.doc.Settings.Unknown {
			cp.Unknown[k] = v
		}
	}
	return cp
}

// NextID reserves and returns the next monotonic camera id (I1), without
// creating a camera record for it.
func (s *Store) NextID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	return id
}

// CreateCamera allocates an id (if c.ID is zero) and an ONVIF port (if
// c.OnvifPort is zero) via internal/portalloc, then validates and persists
// the record exactly as PutCamera would. This is the entry point a camera-
// creation caller should use instead of picking ports itself (spec.md
// §4.2: the Port Allocator, not the caller, owns the pool).
func (s *Store) CreateCamera(c model.Camera) (*model.Camera, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == 0 {
		c.ID = s.next
	}

	if c.OnvifPort == 0 {
		used := make(map[int]bool, len(s.doc.Cameras))
		for _, existing := range s.doc.Cameras {
			used[existing.OnvifPort] = true
		}
		port, err := portalloc.Allocate(used, s.doc.Settings.ReservedPorts())
		if err != nil {
			return nil, err
		}
		c.OnvifPort = port
	}

	if err := s.putLocked(c); err != nil {
		return nil, err
	}
	return c.Clone(), nil
}

// PutCamera validates c against the rest of the camera set and, if valid,
// persists it (insert or replace by id). Validation failures leave the
// store untouched.
func (s *Store) PutCamera(c model.Camera) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putLocked(c)
}

// putLocked is PutCamera's body; callers must already hold mu. It also
// derives c.PathName via internal/slug when the caller leaves it blank
// (spec.md:34/188: "Derived: pathName ... a deterministic, filesystem-safe
// slug derived from name"), and re-derives it on a rename so the slug
// keeps tracking the camera's name rather than silently going stale
// (spec.md:172).
func (s *Store) putLocked(c model.Camera) error {
	taken := make(map[string]bool, len(s.doc.Cameras))
	var existing *model.Camera
	for i := range s.doc.Cameras {
		if s.doc.Cameras[i].ID == c.ID {
			existing = &s.doc.Cameras[i]
			continue
		}
		taken[s.doc.Cameras[i].PathName] = true
	}

	switch {
	case existing != nil && existing.Name != c.Name:
		c.PathName = slug.Resolve(c.Name, taken)
	case c.PathName == "":
		if existing != nil {
			c.PathName = existing.PathName
		} else {
			c.PathName = slug.Resolve(c.Name, taken)
		}
	}

	if err := validateCamera(&c); err != nil {
		return err
	}

	idx := -1
	for i := range s.doc.Cameras {
		if s.doc.Cameras[i].ID == c.ID {
			idx = i
			continue
		}
		if s.doc.Cameras[i].PathName == c.PathName {
			return apperr.New(apperr.DuplicatePath, "pathName %q already used by camera %d", c.PathName, s.doc.Cameras[i].ID)
		}
		if s.doc.Cameras[i].OnvifPort == c.OnvifPort {
			return apperr.New(apperr.PortInUse, "onvif port %d already used by camera %d", c.OnvifPort, s.doc.Cameras[i].ID)
		}
	}

	if c.ID >= s.next {
		s.next = c.ID + 1
	}

	var prev model.Camera
	if idx >= 0 {
		prev = s.doc.Cameras[idx]
		s.doc.Cameras[idx] = c
	} else {
		s.doc.Cameras = append(s.doc.Cameras, c)
	}

	if err := s.save(); err != nil {
		// Reverse the in-memory mutation so a failed save never leaves the
		// in-memory view ahead of disk.
		if idx >= 0 {
			s.doc.Cameras[idx] = prev
		} else {
			s.doc.Cameras = s.doc.Cameras[:len(s.doc.Cameras)-1]
		}
		return err
	}
	return nil
}

// DeleteCamera removes the camera with the given id, if present.
func (s *Store) DeleteCamera(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i := range s.doc.Cameras {
		if s.doc.Cameras[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return apperr.New(apperr.NotFound, "camera %d not found", id)
	}

	removed := s.doc.Cameras[idx]
	s.doc.Cameras = append(s.doc.Cameras[:idx], s.doc.Cameras[idx+1:]...)
	if err := s.save(); err != nil {
		s.doc.Cameras = append(s.doc.Cameras, model.Camera{})
		copy(s.doc.Cameras[idx+1:], s.doc.Cameras[idx:])
		s.doc.Cameras[idx] = removed
		return err
	}
	return nil
}

// PutSettings validates and persists the global settings.
func (s *Store) PutSettings(settings model.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.doc.Settings
	s.doc.Settings = settings
	if err := s.save(); err != nil {
		s.doc.Settings = prev
		return err
	}
	return nil
}

func validateCamera(c *model.Camera) error {
	if c.Name == "" {
		return apperr.New(apperr.Invalid, "name is required")
	}
	if c.PathName == "" {
		// putLocked always derives a non-empty pathName before calling here;
		// this only guards against validateCamera being called directly.
		return apperr.New(apperr.Invalid, "pathName is required")
	}
	if !validNamePattern.MatchString(c.PathName) {
		return apperr.New(apperr.Invalid, "pathName %q contains unsupported characters", c.PathName)
	}
	if c.UpstreamHost == "" {
		return apperr.New(apperr.Invalid, "upstreamHost is required")
	}
	if c.UpstreamRTSPPort <= 0 || c.UpstreamRTSPPort > 65535 {
		return apperr.New(apperr.Invalid, "invalid upstreamRtspPort %d", c.UpstreamRTSPPort)
	}
	if c.OnvifPort <= 0 || c.OnvifPort > 65535 {
		return apperr.New(apperr.Invalid, "invalid onvifPort %d", c.OnvifPort)
	}
	if c.OnvifUsername == "" || c.OnvifPassword == "" {
		return apperr.New(apperr.Invalid, "onvif credentials are required")
	}
	if c.VNIC.Enabled {
		hw, err := net.ParseMAC(c.VNIC.MAC)
		if err != nil {
			return apperr.New(apperr.BadMAC, "invalid MAC %q: %v", c.VNIC.MAC, err)
		}
		if hw[0]&0x03 != 0x02 {
			return apperr.New(apperr.BadMAC, "MAC %q is not locally administered", c.VNIC.MAC)
		}
		if c.VNIC.ParentInterface == "" {
			return apperr.New(apperr.Invalid, "parentInterface is required when vnic is enabled")
		}
		if c.VNIC.IPMode == model.IPModeStatic {
			if c.VNIC.StaticAddress == "" || c.VNIC.Gateway == "" {
				return apperr.New(apperr.Invalid, "static ip mode requires staticAddress and gateway")
			}
		}
	}
	return nil
}
