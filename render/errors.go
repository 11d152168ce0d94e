package render

import (
	"errors"
	"fmt"
)

// Init-time errors: fatal, propagated to the caller (spec.md §7).
var (
	ErrInitNoTextureMap = errors.New("render: init: no texture map could be allocated")
	ErrInitNoShader     = errors.New("render: init: vertex/fragment shader could not be compiled")
	ErrInitNoMemory     = errors.New("render: init: a required GPU resource could not be allocated")
)

// ErrUnableToCache mirrors scenegraph.ErrUnableToCache for callers that
// only import render, carrying the model address that could not be
// cached even after a drain-and-retry (spec.md §7 "UnableToCache(addr)").
type ErrUnableToCache struct{ Addr uint32 }

func (e *ErrUnableToCache) Error() string {
	return fmt.Sprintf("render: unable to cache model at address %06X", e.Addr)
}
