// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/gviegas/vkdemo/driver"
	"github.com/gviegas/vkdemo/internal/logging"
)

// LoadDriver returns the first registered driver whose
// name contains the provided name string and that can be
// opened. It is case-sensitive.
// If name is the empty string, all drivers are considered.
// The probing instance is destroyed before returning.
func LoadDriver(name string) (driver.Driver, error) {
	err := errors.Wrapf(driver.ErrNotInstalled, "engine: no driver matching %q", name)
	for _, d := range driver.Drivers() {
		if !strings.Contains(d.Name(), name) {
			continue
		}
		inst, oerr := d.Open(driver.Config{AppName: "probe"})
		if oerr != nil {
			logging.Logger().Debug("driver unusable", "driver", d.Name(), "err", oerr)
			err = oerr
			continue
		}
		inst.Destroy()
		return d, nil
	}
	return nil, err
}
