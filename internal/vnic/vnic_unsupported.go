//go:build !linux

package vnic

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/BigTonyTones/onvif-gateway/internal/apperr"
	"github.com/BigTonyTones/onvif-gateway/internal/model"
)

// unsupportedManager reports the capability absent on non-Linux hosts
// (spec.md §9: "reject camera records that enable the feature with
// E_INVALID rather than silently ignoring").
type unsupportedManager struct{}

func newPlatform(zerolog.Logger) Manager {
	return &unsupportedManager{}
}

func (unsupportedManager) Supported() bool { return false }

func (unsupportedManager) Create(context.Context, *model.Camera) (string, error) {
	return "", apperr.New(apperr.Invalid, "virtual NIC management is not supported on this host")
}

func (unsupportedManager) Destroy(context.Context, *model.Camera) error {
	return apperr.New(apperr.Invalid, "virtual NIC management is not supported on this host")
}
