// Package portalloc implements the Port Allocator (spec.md §4.2): it hands
// out the lowest free ONVIF port in a fixed pool, respecting the media
// server's reserved ports.
package portalloc

import "github.com/BigTonyTones/onvif-gateway/internal/apperr"

const (
	poolStart = 8001
	poolEnd   = 8100
)

// Allocate returns the lowest port in [poolStart, poolEnd] that is neither
// already assigned to a camera (used) nor reserved by global settings
// (reserved). It fails with E_PORT_EXHAUSTED when the pool is full.
func Allocate(used map[int]bool, reserved map[int]bool) (int, error) {
	for p := poolStart; p <= poolEnd; p++ {
		if used[p] || reserved[p] {
			continue
		}
		return p, nil
	}
	return 0, apperr.New(apperr.PortExhausted, "no free onvif port in [%d, %d]", poolStart, poolEnd)
}

// InPool reports whether port lies within the allocatable pool.
func InPool(port int) bool {
	return port >= poolStart && port <= poolEnd
}
