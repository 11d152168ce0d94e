// Copyright 2022 Gustavo C. Viegas. All rights reserved.

// Package soft implements an in-process, CPU-only driver.GPU.
//
// It backs driver.Buffer with plain byte slices and driver.Image
// with one byte slice per layer/level, and executes every copy
// and draw command synchronously at record time rather than
// queuing work for later submission. This is a deliberate
// simplification: the core this driver serves runs a single
// render thread with no suspension points (see the renderer's
// concurrency notes), so there is nothing to gain from deferring
// command execution the way a real GPU backend must. It exists
// so the rest of the module can be exercised without a window,
// a GPU, or cgo, and so tests can assert on exactly what was
// uploaded and drawn.
package soft

import (
	"errors"

	"github.com/m3core/real3d/driver"
)

const driverName = "soft"

func init() {
	driver.Register(&Driver{})
}

// Driver implements driver.Driver using the in-process backend.
type Driver struct {
	gpu *GPU
}

// Open implements driver.Driver.
func (d *Driver) Open() (driver.GPU, error) {
	if d.gpu == nil {
		d.gpu = &GPU{drv: d}
	}
	return d.gpu, nil
}

// Name implements driver.Driver.
func (d *Driver) Name() string { return driverName }

// Close implements driver.Driver.
func (d *Driver) Close() { d.gpu = nil }

// GPU implements driver.GPU over host memory.
type GPU struct {
	drv driver.Driver
}

// Driver implements driver.GPU.
func (g *GPU) Driver() driver.Driver { return g.drv }

// Commit implements driver.GPU.
// Every command was already executed when it was recorded, so
// this only has to report success (or the first recording error,
// were command buffers allowed to fail silently, which they are
// not in this backend).
func (g *GPU) Commit(cb []driver.CmdBuffer, ch chan<- error) {
	for _, c := range cb {
		c.(*CmdBuffer).recording = false
	}
	if ch != nil {
		ch <- nil
	}
}

// NewCmdBuffer implements driver.GPU.
func (g *GPU) NewCmdBuffer() (driver.CmdBuffer, error) {
	return &CmdBuffer{}, nil
}

// NewRenderPass implements driver.GPU.
func (g *GPU) NewRenderPass(att []driver.Attachment, sub []driver.Subpass) (driver.RenderPass, error) {
	a := make([]driver.Attachment, len(att))
	copy(a, att)
	s := make([]driver.Subpass, len(sub))
	copy(s, sub)
	return &RenderPass{att: a, sub: s}, nil
}

// NewShaderCode implements driver.GPU.
func (g *GPU) NewShaderCode(data []byte) (driver.ShaderCode, error) {
	cp := make([]byte, len(data))
	copy(cp, data)
	return &ShaderCode{data: cp}, nil
}

// NewDescHeap implements driver.GPU.
func (g *GPU) NewDescHeap(ds []driver.Descriptor) (driver.DescHeap, error) {
	d := make([]driver.Descriptor, len(ds))
	copy(d, ds)
	return &DescHeap{descs: d}, nil
}

// NewDescTable implements driver.GPU.
func (g *GPU) NewDescTable(dh []driver.DescHeap) (driver.DescTable, error) {
	h := make([]driver.DescHeap, len(dh))
	copy(h, dh)
	return &DescTable{heaps: h}, nil
}

// NewPipeline implements driver.GPU.
func (g *GPU) NewPipeline(state any) (driver.Pipeline, error) {
	switch state.(type) {
	case *driver.GraphState, *driver.CompState:
		return &Pipeline{state: state}, nil
	default:
		return nil, errors.New("soft: NewPipeline: state must be *driver.GraphState or *driver.CompState")
	}
}

// NewBuffer implements driver.GPU.
func (g *GPU) NewBuffer(size int64, visible bool, usg driver.Usage) (driver.Buffer, error) {
	if size < 1 {
		return nil, errors.New("soft: NewBuffer: size must be positive")
	}
	return &Buffer{data: make([]byte, size), visible: visible, usage: usg}, nil
}

// NewImage implements driver.GPU.
func (g *GPU) NewImage(pf driver.PixelFmt, size driver.Dim3D, layers, levels, samples int, usg driver.Usage) (driver.Image, error) {
	if layers < 1 || levels < 1 || samples < 1 {
		return nil, errors.New("soft: NewImage: invalid layers/levels/samples")
	}
	psz := PixelSize(pf)
	img := &Image{
		pf: pf, dim: size, layers: layers, levels: levels, samples: samples, usage: usg,
		data: make([][]byte, layers*levels),
	}
	for l := 0; l < levels; l++ {
		w, h := mipSize(size.Width, l), mipSize(size.Height, l)
		n := w * h * psz
		if n < 1 {
			n = psz
		}
		for a := 0; a < layers; a++ {
			img.data[a*levels+l] = make([]byte, n)
		}
	}
	return img, nil
}

// NewSampler implements driver.GPU.
func (g *GPU) NewSampler(spln *driver.Sampling) (driver.Sampler, error) {
	s := *spln
	return &Sampler{param: s}, nil
}

// Limits implements driver.GPU.
// The values reported are generous enough that no package in this
// module has to special-case the soft backend.
func (g *GPU) Limits() driver.Limits {
	return driver.Limits{
		MaxImage1D:        16384,
		MaxImage2D:        16384,
		MaxImageCube:      16384,
		MaxImage3D:        2048,
		MaxLayers:         2048,
		MaxDescHeaps:      8,
		MaxDBuffer:        64,
		MaxDImage:         64,
		MaxDConstant:      64,
		MaxDTexture:       64,
		MaxDSampler:       64,
		MaxDBufferRange:   1 << 30,
		MaxDConstantRange: 1 << 16,
		MaxColorTargets:   8,
		MaxFBSize:         [2]int{16384, 16384},
		MaxFBLayers:       2048,
		MaxPointSize:      64,
		MaxViewports:      16,
		MaxVertexIn:       16,
		MaxFragmentIn:     16,
		MaxDispatch:       [3]int{65535, 65535, 65535},
	}
}

func mipSize(n, level int) int {
	for i := 0; i < level; i++ {
		n /= 2
		if n < 1 {
			n = 1
		}
	}
	return n
}

// PixelSize returns the size in bytes of a single texel of the
// given format, per driver.PixelFmt.Size.
func PixelSize(pf driver.PixelFmt) int { return pf.Size() }
