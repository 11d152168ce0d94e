package scenegraph

import (
	"math"

	"github.com/chewxy/math32"

	"github.com/m3core/real3d/linear"
	"github.com/m3core/real3d/mem"
	"github.com/m3core/real3d/modelcache"
)

// spotlightPalette is the fixed 8-entry spotlight color table indexed
// by (vpnode[0x20]>>11)&7, reproduced from Legacy3D.cpp's RenderViewport
// (spec.md §4.4 "3-bit index into a fixed 8-entry palette").
var spotlightPalette = [8][3]float32{
	{0, 0, 0},
	{0, 0, 1},
	{0, 1, 0},
	{0, 1, 1},
	{1, 0, 0},
	{1, 0, 1},
	{1, 1, 0},
	{1, 1, 1},
}

// referenceWidth/referenceHeight are the physical screen dimensions
// spotlight ellipse size and the whole-screen WideScreen test are
// measured against, per spec.md §9 Open Question (b): the fixed
// constants, not the runtime viewport rect.
const (
	referenceWidth  = 496
	referenceHeight = 384
)

// screenMapping carries the viewport scaling ratios established by
// the renderer's init() against the reference 496x384 screen
// (spec.md §6 "init establishes viewport scaling ratios").
type screenMapping struct {
	XOffs, YOffs   float32
	XRatio, YRatio float32
	TotalXRes      float32
	WideScreen     bool
}

// viewportNode holds a decoded 0x26-word viewport node: the chain
// links and priority traverse.go needs, plus the modelcache.Viewport
// a display list can drain.
type viewportNode struct {
	nextAddr, nodeAddr uint32
	priority           int
	matrixBase         uint32

	vp modelcache.Viewport
}

// readCullingWords reads n consecutive culling-RAM words starting at
// addr, matching the original's pointer-arithmetic indexing into a
// translated node pointer.
func readCullingWords(regions *mem.Regions, addr uint32, n int) ([]uint32, bool) {
	out := make([]uint32, n)
	for i := 0; i < n; i++ {
		w, err := regions.CullingWord(addr + uint32(i))
		if err != nil {
			return nil, false
		}
		out[i] = w
	}
	return out, true
}

// perspective builds the column-major projection matrix
// gluPerspective(fovYDeg, aspect, near, far) would load.
func perspective(fovYDeg, aspect, near, far float32) linear.M4 {
	f := 1 / math32.Tan(fovYDeg*(math32.Pi/180)/2)
	var m linear.M4
	m[0][0] = f / aspect
	m[1][1] = f
	m[2][2] = (far + near) / (near - far)
	m[2][3] = -1
	m[3][2] = (2 * far * near) / (near - far)
	return m
}

// decodeViewportNode reproduces RenderViewport's field extraction:
// chain links, priority, matrix base, viewport rect/FOV, lighting,
// spotlight and fog parameters. The recursive next-viewport walk and
// priority filtering are traverse.go's responsibility.
func decodeViewportNode(regions *mem.Regions, addr uint32, mapping screenMapping) (viewportNode, bool) {
	n, ok := readCullingWords(regions, addr, 0x26)
	if !ok {
		return viewportNode{}, false
	}

	var out viewportNode
	out.nextAddr = n[0x01]
	out.nodeAddr = n[0x02]
	out.priority = int((n[0x00] >> 3) & 3)
	out.matrixBase = n[0x16] & 0xFFFFFF

	vpX := float32((n[0x1A] & 0xFFFF) >> 4)
	vpY := float32((n[0x1A] >> 20) & 0xFFF)
	vpWidth := float32((n[0x14] & 0xFFFF) >> 2)
	vpHeight := float32((n[0x14] >> 18) & 0x3FFF)

	topAngle := math32.Asin(math.Float32frombits(n[0x0E]))
	botAngle := math32.Asin(math.Float32frombits(n[0x12]))
	fovYDeg := (topAngle + botAngle) * (180 / math32.Pi)

	var vx, vy, vw, vh, aspect float32
	if mapping.WideScreen && vpX == 0 && vpWidth >= referenceWidth-1 && vpY == 0 && vpHeight >= referenceHeight-1 {
		vx = 0
		vy = mapping.YOffs + (referenceHeight-(vpY+vpHeight))*mapping.YRatio
		vw = mapping.TotalXRes
		vh = vpHeight * mapping.YRatio
		aspect = vw / vh
	} else {
		vx = mapping.XOffs + vpX*mapping.XRatio
		vy = mapping.YOffs + (referenceHeight-(vpY+vpHeight))*mapping.YRatio
		vw = vpWidth * mapping.XRatio
		vh = vpHeight * mapping.YRatio
		aspect = vpWidth / vpHeight
	}
	out.vp.X, out.vp.Y, out.vp.Width, out.vp.Height = vx, vy, vw, vh
	out.vp.Projection = perspective(fovYDeg, aspect, 0.1, 1e5)

	out.vp.SunDir = linear.V3{
		math.Float32frombits(n[0x05]),
		math.Float32frombits(n[0x06]),
		math.Float32frombits(n[0x04]),
	}
	out.vp.SunIntensity = math.Float32frombits(n[0x07])
	out.vp.Ambient = float32((n[0x24]>>8)&0xFF) / 255

	spotIdx := (n[0x20] >> 11) & 7
	ellipseX := float32((n[0x1E] >> 3) & 0x1FFF)
	ellipseY := float32((n[0x1D] >> 3) & 0x1FFF)
	sizeX := float32((n[0x1E] >> 16) & 0xFFFF)
	sizeY := float32((n[0x1D] >> 16) & 0xFFFF)
	spotStart := 1 / math.Float32frombits(n[0x21])
	spotExtent := math.Float32frombits(n[0x1F])

	ellipseY = referenceHeight - ellipseY
	spotFar := spotExtent + spotStart
	// Spotlight size is specified against the fixed physical
	// resolution regardless of the configured viewport rect (Open
	// Question (b), decided per original_source/'s literal
	// 496.0f/384.0f constants).
	sizeXScaled := referenceWidth / math32.Sqrt(sizeX)
	sizeYScaled := referenceHeight / math32.Sqrt(sizeY)

	out.vp.SpotCenter = [2]float32{
		ellipseX*mapping.XRatio + mapping.XOffs,
		ellipseY*mapping.YRatio + mapping.YOffs,
	}
	out.vp.SpotSize = [2]float32{sizeXScaled * mapping.XRatio, sizeYScaled * mapping.YRatio}
	out.vp.SpotNear = spotStart
	out.vp.SpotFar = spotFar
	out.vp.SpotColor = spotlightPalette[spotIdx]

	fogDensity := math.Float32frombits(n[0x23])
	fogStart := float32(int16(n[0x25]&0xFFFF)) / 255
	if math32.IsInf(fogDensity, 0) || math32.IsNaN(fogDensity) || math32.IsInf(fogStart, 0) || math32.IsNaN(fogStart) {
		fogDensity, fogStart = 0, 0
	}
	out.vp.FogColor = [3]float32{
		float32((n[0x22]>>16)&0xFF) / 255,
		float32((n[0x22]>>8)&0xFF) / 255,
		float32((n[0x22]>>0)&0xFF) / 255,
	}
	out.vp.FogDensity = fogDensity
	out.vp.FogStart = fogStart

	return out, true
}
