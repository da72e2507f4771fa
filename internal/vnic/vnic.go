// Package vnic implements the Virtual NIC Manager (spec.md §4.3). The
// capability is platform-conditional: vnic_linux.go shells out to the `ip`
// CLI the way the pack's Firecracker network manager shells out to `ip
// netns`, vnic_unsupported.go reports the capability absent on every other
// host.
package vnic

import (
	"context"
	"crypto/sha1"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/BigTonyTones/onvif-gateway/internal/model"
)

// Manager creates, configures and tears down per-camera virtual network
// interfaces. All operations are idempotent: calling Create twice for the
// same camera yields the same interface without error.
type Manager interface {
	// Supported reports whether this host can create virtual interfaces at
	// all (spec.md §9: "treat the Virtual NIC Manager as a capability
	// probed at startup").
	Supported() bool

	// Create brings up camera's virtual interface and returns the address
	// it ends up with (DHCP lease or the configured static address).
	Create(ctx context.Context, cam *model.Camera) (address string, err error)

	// Destroy reverses Create, releasing any DHCP lease.
	Destroy(ctx context.Context, cam *model.Camera) error
}

// InterfaceName returns the deterministic tagged name for a camera's child
// interface (spec.md §4.3: "tag vcam<id> for traceability").
func InterfaceName(id int) string {
	return fmt.Sprintf("vcam%d", id)
}

// GenerateMAC derives a stable, locally-administered MAC address from a
// camera id when the operator hasn't supplied one explicitly. Grounded on
// the pack's Firecracker network manager's deterministic per-VM MAC
// derivation: hash the identity, then force the locally-administered bit
// (0x02) on the first octet so the address never collides with a
// manufacturer-assigned one.
func GenerateMAC(id int) string {
	h := sha1.Sum([]byte(fmt.Sprintf("vcam%d", id)))
	mac := make([]byte, 6)
	copy(mac, h[:6])
	mac[0] = (mac[0] & 0xfe) | 0x02
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", mac[0], mac[1], mac[2], mac[3], mac[4], mac[5])
}

// New returns the platform Manager, logging which capability it detected.
func New(log zerolog.Logger) Manager {
	m := newPlatform(log.With().Str("component", "vnic").Logger())
	if !m.Supported() {
		log.Warn().Msg("virtual NIC management is not supported on this host")
	}
	return m
}
