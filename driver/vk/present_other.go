// Copyright 2022 Gustavo C. Viegas. All rights reserved.

//go:build !linux

package vk

import (
	"github.com/pkg/errors"

	"github.com/gviegas/vkdemo/driver"
)

func (i *instance) NewSurface(win driver.NativeWindow) (driver.Surface, error) {
	return nil, errors.Wrapf(driver.ErrCannotPresent, "vk: platform %v", win.Platform)
}
