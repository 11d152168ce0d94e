// Package ctxt holds the GPU driver used by the rest of the core.
//
// The core never selects a backend itself: the host process opens
// a driver.Driver (the "soft" backend for headless use, or a real
// one when a window is available) and calls Attach once before
// touching any other package.
package ctxt

import (
	"errors"

	"github.com/m3core/real3d/driver"
)

var (
	drv    driver.Driver
	gpu    driver.GPU
	limits driver.Limits
)

var errNoGPU = errors.New("ctxt: no GPU attached")

// Attach installs the driver and GPU instance that the core will
// use for all subsequent resource creation. It is not safe to call
// while any other goroutine is using the context, matching the
// rest of the core's single-threaded, cooperative scheduling model.
func Attach(d driver.Driver, g driver.GPU) {
	drv = d
	gpu = g
	limits = g.Limits()
}

// Open selects the registered driver.Driver named name, opens it,
// and attaches the resulting GPU in one step. The host process
// should still prefer Attach directly when it already holds a GPU
// (e.g. one shared with a window toolkit); Open exists for the
// common case of running entirely against a named backend, such as
// the "soft" driver the core falls back to when headless.
func Open(name string) error {
	d, err := driver.Select(name)
	if err != nil {
		return err
	}
	g, err := d.Open()
	if err != nil {
		return err
	}
	Attach(d, g)
	return nil
}

// Attached reports whether a GPU has been installed.
func Attached() bool { return gpu != nil }

// Driver returns the attached driver.Driver.
func Driver() driver.Driver { return drv }

// GPU returns the attached driver.GPU.
// It panics if no GPU has been attached; callers are expected to
// have called Attach during initialization.
func GPU() driver.GPU {
	if gpu == nil {
		panic(errNoGPU)
	}
	return gpu
}

// Limits returns the driver.Limits of the attached GPU.
// This value is cached at Attach time and must not be changed
// by the caller.
func Limits() *driver.Limits { return &limits }

// Detach clears the attached GPU. It exists mainly so tests can
// reset global state between cases.
func Detach() {
	drv = nil
	gpu = nil
	limits = driver.Limits{}
}
