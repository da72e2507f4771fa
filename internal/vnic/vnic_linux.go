//go:build linux

package vnic

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/BigTonyTones/onvif-gateway/internal/apperr"
	"github.com/BigTonyTones/onvif-gateway/internal/model"
)

// linuxManager shells out to the `ip` tool, the convention the example
// corpus's own network managers use in place of a netlink library. A mutex
// guards the kernel networking namespace as a shared resource (spec.md §5).
type linuxManager struct {
	mu  sync.Mutex
	log zerolog.Logger
}

func newPlatform(log zerolog.Logger) Manager {
	return &linuxManager{log: log}
}

func (m *linuxManager) Supported() bool { return true }

func (m *linuxManager) Create(ctx context.Context, cam *model.Camera) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ifName := InterfaceName(cam.ID)
	mac := cam.VNIC.MAC
	if mac == "" {
		mac = GenerateMAC(cam.ID)
	}

	if !m.interfaceExists(ctx, ifName) {
		if err := m.run(ctx, "link", "add", ifName, "link", cam.VNIC.ParentInterface,
			"address", mac, "type", "macvlan", "mode", "bridge"); err != nil {
			return "", apperr.Wrap(apperr.NICCreate, err, "create macvlan interface %s", ifName)
		}
	}

	if err := m.run(ctx, "link", "set", ifName, "up"); err != nil {
		_ = m.run(ctx, "link", "delete", ifName)
		return "", apperr.Wrap(apperr.NICCreate, err, "bring up interface %s", ifName)
	}

	switch cam.VNIC.IPMode {
	case model.IPModeStatic:
		cidr := fmt.Sprintf("%s/%d", cam.VNIC.StaticAddress, cam.VNIC.StaticPrefix)
		if err := m.run(ctx, "addr", "replace", cidr, "dev", ifName); err != nil {
			m.teardownBestEffort(ctx, ifName)
			return "", apperr.Wrap(apperr.NICStatic, err, "assign static address %s to %s", cidr, ifName)
		}
		if cam.VNIC.Gateway != "" {
			if err := m.run(ctx, "route", "replace", "default", "via", cam.VNIC.Gateway, "dev", ifName); err != nil {
				m.teardownBestEffort(ctx, ifName)
				return "", apperr.Wrap(apperr.NICStatic, err, "install default route via %s on %s", cam.VNIC.Gateway, ifName)
			}
		}
		return cam.VNIC.StaticAddress, nil

	default: // dhcp
		addr, err := m.leaseDHCP(ctx, ifName)
		if err != nil {
			m.teardownBestEffort(ctx, ifName)
			return "", apperr.Wrap(apperr.NICLease, err, "obtain DHCP lease on %s", ifName)
		}
		return addr, nil
	}
}

func (m *linuxManager) Destroy(ctx context.Context, cam *model.Camera) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ifName := InterfaceName(cam.ID)
	if !m.interfaceExists(ctx, ifName) {
		return nil
	}
	if cam.VNIC.IPMode == model.IPModeDHCP {
		_ = exec.CommandContext(ctx, "pkill", "-f", "udhcpc.*"+ifName).Run()
	}
	if err := m.run(ctx, "link", "delete", ifName); err != nil {
		return apperr.Wrap(apperr.Internal, err, "delete interface %s", ifName)
	}
	return nil
}

func (m *linuxManager) teardownBestEffort(ctx context.Context, ifName string) {
	_ = m.run(ctx, "link", "delete", ifName)
}

func (m *linuxManager) interfaceExists(ctx context.Context, ifName string) bool {
	return exec.CommandContext(ctx, "ip", "link", "show", ifName).Run() == nil
}

func (m *linuxManager) run(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "ip", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ip %v: %w: %s", args, err, out)
	}
	return nil
}

// leaseDHCP spawns a DHCP client bound to ifName and waits up to 15s for a
// lease (spec.md §4.3), preferring udhcpc and falling back to dhclient.
func (m *linuxManager) leaseDHCP(ctx context.Context, ifName string) (string, error) {
	leaseCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	client := "udhcpc"
	args := []string{"-i", ifName, "-n", "-q"}
	if _, err := exec.LookPath(client); err != nil {
		client = "dhclient"
		args = []string{"-1", "-q", ifName}
	}

	if err := exec.CommandContext(leaseCtx, client, args...).Run(); err != nil {
		return "", fmt.Errorf("%s on %s: %w", client, ifName, err)
	}

	addr, err := m.currentAddress(leaseCtx, ifName)
	if err != nil {
		return "", err
	}
	return addr, nil
}

func (m *linuxManager) currentAddress(ctx context.Context, ifName string) (string, error) {
	out, err := exec.CommandContext(ctx, "ip", "-4", "-o", "addr", "show", "dev", ifName).Output()
	if err != nil {
		return "", fmt.Errorf("read address of %s: %w", ifName, err)
	}
	var idx int
	var family, cidr string
	if _, err := fmt.Sscanf(string(out), "%d: %s inet %s", &idx, &family, &cidr); err != nil {
		return "", fmt.Errorf("no lease address found on %s", ifName)
	}
	host, _, err := splitCIDR(cidr)
	if err != nil {
		return "", err
	}
	return host, nil
}

func splitCIDR(cidr string) (string, int, error) {
	for i, r := range cidr {
		if r == '/' {
			prefix, err := strconv.Atoi(cidr[i+1:])
			return cidr[:i], prefix, err
		}
	}
	return cidr, 0, nil
}
