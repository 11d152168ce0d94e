// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package soft

import (
	"github.com/m3core/real3d/driver"
)

// Buffer implements driver.Buffer as a plain byte slice.
type Buffer struct {
	data    []byte
	visible bool
	usage   driver.Usage
}

func (b *Buffer) Destroy()          { b.data = nil }
func (b *Buffer) Visible() bool     { return b.visible }
func (b *Buffer) Bytes() []byte     { return b.data }
func (b *Buffer) Cap() int64        { return int64(len(b.data)) }
func (b *Buffer) Usage() driver.Usage { return b.usage }

// Image implements driver.Image as one byte slice per layer/level.
type Image struct {
	pf      driver.PixelFmt
	dim     driver.Dim3D
	layers  int
	levels  int
	samples int
	usage   driver.Usage
	data    [][]byte // indexed by layer*levels+level
	views   []*ImageView
}

func (img *Image) Destroy() {
	for _, v := range img.views {
		v.img = nil
	}
	img.data = nil
}

// NewView implements driver.Image.
func (img *Image) NewView(typ driver.ViewType, layer, layers, level, levels int) (driver.ImageView, error) {
	v := &ImageView{
		img: img, typ: typ,
		layer: layer, layers: layers,
		level: level, levels: levels,
	}
	img.views = append(img.views, v)
	return v, nil
}

// Bytes returns the backing storage of a given layer/level, for
// use by copy commands. It is soft-backend specific and is not
// part of driver.Image.
func (img *Image) Bytes(layer, level int) []byte {
	return img.data[layer*img.levels+level]
}

// LevelSize returns the width and height of the given mip level.
func (img *Image) LevelSize(level int) (w, h int) {
	return mipSize(img.dim.Width, level), mipSize(img.dim.Height, level)
}

// PixelFmt returns the image's pixel format. Soft-backend specific.
func (img *Image) PixelFmt() driver.PixelFmt { return img.pf }

// ImageView implements driver.ImageView.
type ImageView struct {
	img            *Image
	typ            driver.ViewType
	layer, layers  int
	level, levels  int
}

func (v *ImageView) Destroy() { v.img = nil }

// Image returns the driver.Image this view was created from.
// Soft-backend specific; matches the accessor that vk.ImageView
// exposes internally for use by Transition/copy commands.
func (v *ImageView) Image() driver.Image { return v.img }

// RenderPass implements driver.RenderPass.
type RenderPass struct {
	att []driver.Attachment
	sub []driver.Subpass
}

func (p *RenderPass) Destroy() {}

// NewFB implements driver.RenderPass.
func (p *RenderPass) NewFB(iv []driver.ImageView, width, height, layers int) (driver.Framebuf, error) {
	v := make([]driver.ImageView, len(iv))
	copy(v, iv)
	return &Framebuf{views: v, width: width, height: height, layers: layers}, nil
}

// Framebuf implements driver.Framebuf.
type Framebuf struct {
	views                 []driver.ImageView
	width, height, layers int
}

func (f *Framebuf) Destroy() {}

// ShaderCode implements driver.ShaderCode.
type ShaderCode struct{ data []byte }

func (s *ShaderCode) Destroy() { s.data = nil }

// DescHeap implements driver.DescHeap.
type DescHeap struct {
	descs   []driver.Descriptor
	copies  int
	buffers [][]driver.Buffer
	images  [][]driver.ImageView
	samplrs [][]driver.Sampler
}

func (h *DescHeap) Destroy() { *h = DescHeap{} }

func (h *DescHeap) New(n int) error {
	if n == h.copies {
		return nil
	}
	h.copies = n
	h.buffers = make([][]driver.Buffer, n)
	h.images = make([][]driver.ImageView, n)
	h.samplrs = make([][]driver.Sampler, n)
	return nil
}

func (h *DescHeap) SetBuffer(cpy, nr, start int, buf []driver.Buffer, off, size []int64) {
	h.buffers[cpy] = growSlice(h.buffers[cpy], start+len(buf))
	copy(h.buffers[cpy][start:], buf)
}

func (h *DescHeap) SetImage(cpy, nr, start int, iv []driver.ImageView) {
	h.images[cpy] = growSlice(h.images[cpy], start+len(iv))
	copy(h.images[cpy][start:], iv)
}

func (h *DescHeap) SetSampler(cpy, nr, start int, splr []driver.Sampler) {
	h.samplrs[cpy] = growSlice(h.samplrs[cpy], start+len(splr))
	copy(h.samplrs[cpy][start:], splr)
}

func (h *DescHeap) Count() int { return h.copies }

func growSlice[T any](s []T, n int) []T {
	if len(s) >= n {
		return s
	}
	grown := make([]T, n)
	copy(grown, s)
	return grown
}

// DescTable implements driver.DescTable.
type DescTable struct{ heaps []driver.DescHeap }

func (t *DescTable) Destroy() {}

// Pipeline implements driver.Pipeline.
type Pipeline struct{ state any }

func (p *Pipeline) Destroy() {}

// Sampler implements driver.Sampler.
type Sampler struct{ param driver.Sampling }

func (s *Sampler) Destroy() {}
