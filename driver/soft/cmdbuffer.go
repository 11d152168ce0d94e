// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package soft

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/m3core/real3d/driver"
)

// DrawCall records the parameters of a single Draw/DrawIndexed
// command. It is soft-backend specific: tests use it to assert on
// exactly what the display-list renderer issued, in order, without
// needing a real rasterizer.
type DrawCall struct {
	Indexed                                   bool
	VertCount, InstCount, BaseVert, BaseInst   int
	IdxCount, BaseIdx, VertOff                 int
	Viewport                                   []driver.Viewport
	Pipeline                                   driver.Pipeline
	StencilRef                                 uint32
}

// CmdBuffer implements driver.CmdBuffer by executing every command
// synchronously as it is recorded.
type CmdBuffer struct {
	recording bool
	inPass    bool
	inWork    bool
	inBlit    bool

	pass driver.RenderPass
	fb   *Framebuf

	viewport   []driver.Viewport
	scissor    []driver.Scissor
	blendColor [4]float32
	stencilRef uint32
	pipeline   driver.Pipeline
	vertexBuf  []driver.Buffer
	indexBuf   driver.Buffer
	indexFmt   driver.IndexFmt

	// DrawCalls accumulates every Draw/DrawIndexed issued since
	// the command buffer was last reset.
	DrawCalls []DrawCall
	// Cleared counts how many attachments were cleared by
	// BeginPass across every pass recorded since reset.
	Cleared int
}

func (c *CmdBuffer) Destroy() { *c = CmdBuffer{} }

func (c *CmdBuffer) IsRecording() bool { return c.recording }

func (c *CmdBuffer) Begin() error {
	if c.recording {
		return errors.New("soft: CmdBuffer.Begin: already recording")
	}
	c.recording = true
	return nil
}

func (c *CmdBuffer) BeginPass(pass driver.RenderPass, fb driver.Framebuf, clear []driver.ClearValue) {
	c.inPass = true
	c.pass = pass
	c.fb, _ = fb.(*Framebuf)
	rp, _ := pass.(*RenderPass)
	if c.fb == nil || rp == nil {
		return
	}
	for i, att := range rp.att {
		if i >= len(c.fb.views) || i >= len(clear) {
			break
		}
		if att.Load[0] != driver.LClear && att.Load[1] != driver.LClear {
			continue
		}
		v, _ := c.fb.views[i].(*ImageView)
		if v == nil || v.img == nil {
			continue
		}
		clearImage(v.img, v.layer, v.level, att, clear[i])
		c.Cleared++
	}
}

func (c *CmdBuffer) NextSubpass() {}

func (c *CmdBuffer) EndPass() {
	c.inPass = false
	c.pass = nil
	c.fb = nil
}

func (c *CmdBuffer) BeginWork(wait bool) { c.inWork = true }
func (c *CmdBuffer) EndWork()            { c.inWork = false }
func (c *CmdBuffer) BeginBlit(wait bool) { c.inBlit = true }
func (c *CmdBuffer) EndBlit()            { c.inBlit = false }

func (c *CmdBuffer) SetPipeline(pl driver.Pipeline) { c.pipeline = pl }

func (c *CmdBuffer) SetViewport(vp []driver.Viewport) {
	c.viewport = append(c.viewport[:0], vp...)
}

func (c *CmdBuffer) SetScissor(sciss []driver.Scissor) {
	c.scissor = append(c.scissor[:0], sciss...)
}

func (c *CmdBuffer) SetBlendColor(r, g, b, a float32) { c.blendColor = [4]float32{r, g, b, a} }
func (c *CmdBuffer) SetStencilRef(value uint32)       { c.stencilRef = value }

func (c *CmdBuffer) SetVertexBuf(start int, buf []driver.Buffer, off []int64) {
	for len(c.vertexBuf) < start+len(buf) {
		c.vertexBuf = append(c.vertexBuf, nil)
	}
	copy(c.vertexBuf[start:], buf)
}

func (c *CmdBuffer) SetIndexBuf(format driver.IndexFmt, buf driver.Buffer, off int64) {
	c.indexBuf = buf
	c.indexFmt = format
}

func (c *CmdBuffer) SetDescTableGraph(table driver.DescTable, start int, heapCopy []int) {}
func (c *CmdBuffer) SetDescTableComp(table driver.DescTable, start int, heapCopy []int)  {}

func (c *CmdBuffer) Draw(vertCount, instCount, baseVert, baseInst int) {
	vp := make([]driver.Viewport, len(c.viewport))
	copy(vp, c.viewport)
	c.DrawCalls = append(c.DrawCalls, DrawCall{
		VertCount: vertCount, InstCount: instCount, BaseVert: baseVert, BaseInst: baseInst,
		Viewport: vp, Pipeline: c.pipeline, StencilRef: c.stencilRef,
	})
}

func (c *CmdBuffer) DrawIndexed(idxCount, instCount, baseIdx, vertOff, baseInst int) {
	vp := make([]driver.Viewport, len(c.viewport))
	copy(vp, c.viewport)
	c.DrawCalls = append(c.DrawCalls, DrawCall{
		Indexed: true, IdxCount: idxCount, InstCount: instCount, BaseIdx: baseIdx, VertOff: vertOff, BaseInst: baseInst,
		Viewport: vp, Pipeline: c.pipeline, StencilRef: c.stencilRef,
	})
}

func (c *CmdBuffer) Dispatch(grpCountX, grpCountY, grpCountZ int) {}

func (c *CmdBuffer) CopyBuffer(param *driver.BufferCopy) {
	from := param.From.(*Buffer)
	to := param.To.(*Buffer)
	copy(to.data[param.ToOff:param.ToOff+param.Size], from.data[param.FromOff:param.FromOff+param.Size])
}

func (c *CmdBuffer) CopyImage(param *driver.ImageCopy) {
	from := param.From.(*Image)
	to := param.To.(*Image)
	for l := 0; l < param.Layers; l++ {
		src := from.Bytes(param.FromLayer+l, param.FromLevel)
		dst := to.Bytes(param.ToLayer+l, param.ToLevel)
		n := len(src)
		if len(dst) < n {
			n = len(dst)
		}
		copy(dst[:n], src[:n])
	}
}

func (c *CmdBuffer) CopyBufToImg(param *driver.BufImgCopy) {
	buf := param.Buf.(*Buffer)
	img := param.Img.(*Image)
	psz := PixelSize(img.pf)
	w, h := img.LevelSize(param.Level)
	rowLen := param.Stride[0]
	if rowLen == 0 {
		rowLen = int64(param.Size.Width)
	}
	dst := img.Bytes(param.Layer, param.Level)
	src := buf.data[param.BufOff:]
	rows := param.Size.Height
	cols := param.Size.Width
	for y := 0; y < rows; y++ {
		srcOff := int64(y) * rowLen * int64(psz)
		dstOff := ((param.ImgOff.Y+y)*w + param.ImgOff.X) * psz
		n := cols * psz
		if int(srcOff)+n > len(src) || dstOff+n > len(dst) {
			continue
		}
		copy(dst[dstOff:dstOff+n], src[srcOff:int(srcOff)+n])
	}
	_ = h
}

func (c *CmdBuffer) CopyImgToBuf(param *driver.BufImgCopy) {
	buf := param.Buf.(*Buffer)
	img := param.Img.(*Image)
	psz := PixelSize(img.pf)
	w, _ := img.LevelSize(param.Level)
	rowLen := param.Stride[0]
	if rowLen == 0 {
		rowLen = int64(param.Size.Width)
	}
	src := img.Bytes(param.Layer, param.Level)
	dst := buf.data[param.BufOff:]
	rows := param.Size.Height
	cols := param.Size.Width
	for y := 0; y < rows; y++ {
		dstOff := int64(y) * rowLen * int64(psz)
		srcOff := ((param.ImgOff.Y+y)*w + param.ImgOff.X) * psz
		n := cols * psz
		if int(dstOff)+n > len(dst) || srcOff+n > len(src) {
			continue
		}
		copy(dst[dstOff:int(dstOff)+n], src[srcOff:srcOff+n])
	}
}

func (c *CmdBuffer) Fill(buf driver.Buffer, off int64, value byte, size int64) {
	b := buf.(*Buffer)
	for i := off; i < off+size; i++ {
		b.data[i] = value
	}
}

func (c *CmdBuffer) Barrier(b []driver.Barrier)         {}
func (c *CmdBuffer) Transition(t []driver.Transition)   {}

func (c *CmdBuffer) End() error {
	if !c.recording {
		return errors.New("soft: CmdBuffer.End: not recording")
	}
	return nil
}

func (c *CmdBuffer) Reset() error {
	*c = CmdBuffer{}
	return nil
}

// clearImage writes a ClearValue into a single layer/level of img.
// Only the common 8-bit-per-channel color formats and the 32-bit
// float depth format are given an exact byte pattern; every other
// format is simply zeroed, which is enough fidelity for a backend
// whose purpose is to exercise resource management, not pixels.
func clearImage(img *Image, layer, level int, att driver.Attachment, cv driver.ClearValue) {
	dst := img.Bytes(layer, level)
	switch img.pf {
	case driver.RGBA8un, driver.RGBA8sRGB, driver.BGRA8un, driver.BGRA8sRGB:
		r := byte(clamp01(cv.Color[0]) * 255)
		g := byte(clamp01(cv.Color[1]) * 255)
		b := byte(clamp01(cv.Color[2]) * 255)
		a := byte(clamp01(cv.Color[3]) * 255)
		px := [4]byte{r, g, b, a}
		for i := 0; i+4 <= len(dst); i += 4 {
			copy(dst[i:i+4], px[:])
		}
	case driver.D32f:
		var px [4]byte
		binary.LittleEndian.PutUint32(px[:], math.Float32bits(cv.Depth))
		for i := 0; i+4 <= len(dst); i += 4 {
			copy(dst[i:i+4], px[:])
		}
	default:
		for i := range dst {
			dst[i] = 0
		}
	}
}

func clamp01(f float32) float32 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
