package texture

import (
	"errors"
	"image"
	"image/color"

	ximage "golang.org/x/image/draw"

	"github.com/m3core/real3d/driver"
	"github.com/m3core/real3d/mem"
)

// NumFormats is the number of source pixel formats the hardware can
// tag a texture with (0..7); anything else decodes as "unknown".
const NumFormats = 8

// sheetExtent is the logical side, in texels, of every texture
// sheet: one per source format, addressed on a 32-texel tile grid.
const sheetExtent = 2048

// tileGrid is the number of 32-texel tiles per side of a sheet.
const tileGrid = sheetExtent / 32

// ErrNoTextureMap is a fatal init error: the device could not
// allocate even a single 2048x2048 texture map.
var ErrNoTextureMap = errors.New("texture: device could not allocate a 2048x2048 texture map")

// sheet tracks, for one logical 2048x2048 sheet, which physical map
// backs it and the decoded-ness of its 32-texel tile grid.
type sheet struct {
	mapNum  int
	xOffset int
	yOffset int

	// Decoded-ness per 32-texel tile: -1 means undecoded/invalid.
	format [tileGrid][tileGrid]int32
	width  [tileGrid][tileGrid]int32
	height [tileGrid][tileGrid]int32
}

func newSheet() *sheet {
	s := &sheet{}
	for y := 0; y < tileGrid; y++ {
		for x := 0; x < tileGrid; x++ {
			s.format[y][x] = -1
			s.width[y][x] = -1
			s.height[y][x] = -1
		}
	}
	return s
}

// Manager is the Texture Sheet Manager (§4.1): eight (NumFormats)
// logical 2048x2048 sheets, one per source format, backed by at most
// eight physical GPU texture maps.
type Manager struct {
	gpu driver.GPU
	mem *mem.Regions

	sheets    [NumFormats]*sheet
	maps      []driver.Image
	mapExtent int // side of a physical map, in multiples of 2048

	scratch *image.RGBA // reused decode staging buffer, 1024x1024 max

	// Uploads counts every successful (non-idempotent) decode; tests
	// use it as the "observable upload counter" of spec.md §8.
	Uploads int
}

// NewManager constructs an unresolved Manager; call ResolveLayout
// before any Decode.
func NewManager(gpu driver.GPU, regions *mem.Regions) *Manager {
	return &Manager{
		gpu:     gpu,
		mem:     regions,
		scratch: image.NewRGBA(image.Rect(0, 0, 1024, 1024)),
	}
}

// ResolveLayout negotiates how many physical texture maps of what
// extent to allocate, backing as many of the NumFormats logical
// sheets as the device can support. It backs maxMapsHint/maxSizeHint
// off until allocation succeeds, and fails only if not even a single
// 2048x2048 map can be created.
func (m *Manager) ResolveLayout(maxMapsHint, maxSizeHintIn2048s int, limits driver.Limits) error {
	if maxMapsHint < 1 {
		maxMapsHint = 1
	}
	maxMaps := maxMapsHint
	if limits.MaxDTexture > 0 && maxMaps > limits.MaxDTexture {
		maxMaps = limits.MaxDTexture
	}

	extent := maxSizeHintIn2048s
	if extent < 1 {
		extent = 1
	}
	maxDevSize := limits.MaxImage2D
	if maxDevSize == 0 {
		maxDevSize = sheetExtent * extent
	}
	for extent*sheetExtent > maxDevSize && extent > 1 {
		extent--
	}

	var maps []driver.Image
	for extent >= 1 {
		side := sheetExtent * extent
		img, err := m.gpu.NewImage(driver.RGBA8un, driver.Dim3D{Width: side, Height: side, Depth: 1}, 1, 1, 1, driver.UShaderSample)
		if err == nil {
			maps = append(maps, img)
			break
		}
		extent--
	}
	if len(maps) == 0 {
		return ErrNoTextureMap
	}

	// Fill out further maps of the same extent up to maxMaps, or
	// until allocation fails (device ran low on memory).
	for len(maps) < maxMaps && len(maps) < 8 {
		side := sheetExtent * extent
		img, err := m.gpu.NewImage(driver.RGBA8un, driver.Dim3D{Width: side, Height: side, Depth: 1}, 1, 1, 1, driver.UShaderSample)
		if err != nil {
			break
		}
		maps = append(maps, img)
	}

	m.maps = maps
	m.mapExtent = extent

	perMap := extent * extent
	for fmt := 0; fmt < NumFormats; fmt++ {
		idx := fmt
		mapNum := idx / perMap
		if mapNum >= len(maps) {
			mapNum = len(maps) - 1 // degrade: share the last map
		}
		posInMap := idx % perMap
		m.sheets[fmt] = newSheet()
		m.sheets[fmt].mapNum = mapNum
		m.sheets[fmt].xOffset = sheetExtent * (posInMap % extent)
		m.sheets[fmt].yOffset = sheetExtent * (posInMap / extent)
	}
	return nil
}

// SheetLocation returns the physical map index and pixel offset
// within that map backing the logical sheet for format, for callers
// that must place an already-known sub-texture position (scenegraph's
// vertex assembly) without going through Decode.
func (m *Manager) SheetLocation(format uint32) (mapNum, xOffset, yOffset int) {
	sh := m.sheets[fmtIndex(format)]
	if sh == nil {
		return 0, 0, 0
	}
	return sh.mapNum, sh.xOffset, sh.yOffset
}

func fmtIndex(format uint32) int {
	if format < NumFormats {
		return int(format)
	}
	return 0 // "unknown" decodes into the format-0 sheet, matching the original's default mapping
}

// Decode implements the RefSet.Decoder interface and is the
// `decode(fmt, x, y, w, h)` operation of spec.md §4.1: idempotent,
// clamps x/y to 0..2047, rejects oversized or boundary-crossing
// regions.
func (m *Manager) Decode(format, x, y, w, h uint32) error {
	if x > 2047 {
		x = 2047
	}
	if y > 2047 {
		y = 2047
	}
	if x+w > sheetExtent || y+h > sheetExtent {
		return nil
	}
	if w > 1024 || h > 1024 {
		return nil
	}

	sh := m.sheets[fmtIndex(format)]
	if sh == nil {
		return nil
	}
	tx, ty := x/32, y/32
	if sh.format[ty][tx] == int32(format) && sh.width[ty][tx] >= int32(w) && sh.height[ty][tx] >= int32(h) {
		return nil // already decoded at this or a larger extent: idempotent no-op
	}

	rect := image.Rect(0, 0, int(w), int(h))
	dst := m.scratch
	if dst.Bounds() != rect {
		dst = image.NewRGBA(rect)
		m.scratch = dst
	}
	decodePixels(dst, format, x, y, w, h, m.mem.TextureRAM)

	if m.mapExtent > 0 && int(sh.mapNum) < len(m.maps) {
		img := m.maps[sh.mapNum]
		buf, err := m.gpu.NewBuffer(int64(w*h*4), true, driver.UGeneric)
		if err == nil {
			// Composite the decoded tile onto a buffer-backed RGBA
			// view so the upload path always goes through the same
			// CopyBufToImg, matching how a real glTexSubImage2D
			// upload stages through a pixel-unpack buffer.
			staged := &image.RGBA{Pix: buf.Bytes(), Stride: int(w) * 4, Rect: rect}
			ximage.Draw(staged, rect, dst, image.Point{}, ximage.Src)

			cb, _ := m.gpu.NewCmdBuffer()
			cb.Begin()
			cb.BeginBlit(true)
			cb.CopyBufToImg(&driver.BufImgCopy{
				Buf:    buf,
				Img:    img,
				ImgOff: driver.Off3D{X: sh.xOffset + int(x), Y: sh.yOffset + int(y)},
				Size:   driver.Dim3D{Width: int(w), Height: int(h), Depth: 1},
			})
			cb.EndBlit()
			cb.End()
			buf.Destroy()
		}
	}

	sh.format[ty][tx] = int32(format)
	sh.width[ty][tx] = int32(w)
	sh.height[ty][tx] = int32(h)
	m.Uploads++
	return nil
}

// Invalidate clears the tile-grid entries covering the region in
// every sheet, forcing the next Decode over the same area to
// re-upload. Called whenever the external system uploads new source
// texture data (the `upload_textures` operation of spec.md §6).
func (m *Manager) Invalidate(x, y, w, h uint32) {
	x0, x1 := x/32, (x+w)/32
	y0, y1 := y/32, (y+h)/32
	if x1 > tileGrid {
		x1 = tileGrid
	}
	if y1 > tileGrid {
		y1 = tileGrid
	}
	for _, sh := range m.sheets {
		if sh == nil {
			continue
		}
		for yi := y0; yi < y1; yi++ {
			for xi := x0; xi < x1; xi++ {
				sh.format[yi][xi] = -1
				sh.width[yi][xi] = -1
				sh.height[yi][xi] = -1
			}
		}
	}
}

// decodePixels fills dst (w x h, origin 0,0) by interpreting the
// (x,y,w,h) region of textureRAM according to the format table of
// spec.md §4.1.
func decodePixels(dst *image.RGBA, format, x, y, w, h uint32, textureRAM []uint16) {
	for yi := uint32(0); yi < h; yi++ {
		for xi := uint32(0); xi < w; xi++ {
			srcOff := (y+yi)*sheetExtent + (x + xi)
			var texel uint16
			if int(srcOff) < len(textureRAM) {
				texel = textureRAM[srcOff]
			}
			r, g, b, a := decodeTexel(format, texel)
			dst.SetRGBA(int(xi), int(yi), color.RGBA{
				R: uint8(r * 255), G: uint8(g * 255), B: uint8(b * 255), A: uint8(a * 255),
			})
		}
	}
}

// decodeTexel returns r,g,b,a in 0..1 for a single source word,
// per the format table of spec.md §4.1.
func decodeTexel(format uint32, texel uint16) (r, g, b, a float32) {
	switch format {
	case 0: // T1RGB5
		r = float32((texel>>10)&0x1F) / 31
		g = float32((texel>>5)&0x1F) / 31
		b = float32((texel>>0)&0x1F) / 31
		if texel&0x8000 != 0 {
			a = 0
		} else {
			a = 1
		}
	case 1: // 8-bit A4L4, low byte
		lo := texel & 0xFF
		c := float32(lo&0xF) / 15
		r, g, b = c, c, c
		a = float32(lo>>4) / 15
	case 2: // 8-bit L4A4, low byte
		lo := texel & 0xFF
		c := float32(lo>>4) / 15
		r, g, b = c, c, c
		a = float32(lo&0xF) / 15
	case 3: // 8-bit A4L4, high byte
		hi := texel >> 8
		c := float32(hi&0xF) / 15
		r, g, b = c, c, c
		a = float32(hi>>4) / 15
	case 4: // 8-bit L4A4, high byte
		hi := texel >> 8
		c := float32(hi>>4) / 15
		r, g, b = c, c, c
		a = float32(hi&0xF) / 15
	case 5: // 8-bit grayscale, low byte
		lo := texel & 0xFF
		c := float32(lo) / 255
		r, g, b = c, c, c
		if lo == 0xFF {
			a = 0
		} else {
			a = 1
		}
	case 6: // 8-bit grayscale, high byte
		hi := texel >> 8
		c := float32(hi) / 255
		r, g, b = c, c, c
		if hi == 0xFF {
			a = 0
		} else {
			a = 1
		}
	case 7: // RGBA4
		r = float32((texel>>12)&0xF) / 15
		g = float32((texel>>8)&0xF) / 15
		b = float32((texel>>4)&0xF) / 15
		a = float32((texel>>0)&0xF) / 15
	default: // unknown: opaque blue
		r, g, b, a = 0, 0, 1, 1
	}
	return
}

