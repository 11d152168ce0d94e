package tilegen

import (
	"image"
	"image/color"
)

// drawTile rasterises one 8x8 tile at (px,py) in img, reproducing
// draw_tile_8bit_16/draw_tile_4bit_16's byte/nibble extraction order:
// row-major, most-significant unit first.
func (g *Generator) drawTile(img *image.RGBA, px, py int, tile uint32, mode4 bool) {
	if mode4 {
		g.drawTile4(img, px, py, tile)
	} else {
		g.drawTile8(img, px, py, tile)
	}
}

// drawTile8 draws an 8-bit tile: 64 bytes (two 32-bit words per row,
// one byte per pixel), with a 7-bit palette bank taken from the tile
// word's upper bits.
func (g *Generator) drawTile8(img *image.RGBA, px, py int, tile uint32) {
	wordOff := (tile & 0x3FFF) * 16 // 64 bytes/tile == 16 words/tile
	palBits := uint16(tile & 0x7F00)

	for row := 0; row < 8; row++ {
		w0 := g.vramWord(wordOff + uint32(row)*2)
		w1 := g.vramWord(wordOff + uint32(row)*2 + 1)
		bytes := [8]byte{
			byte(w0 >> 24), byte(w0 >> 16), byte(w0 >> 8), byte(w0),
			byte(w1 >> 24), byte(w1 >> 16), byte(w1 >> 8), byte(w1),
		}
		for col, b := range bytes {
			img.SetRGBA(px+col, py+row, decodePaletteEntry(g.pal[uint16(b)|palBits]))
		}
	}
}

// drawTile4 draws a 4-bit tile: 32 bytes (one 32-bit word per row,
// one nibble per pixel), with an 11-bit palette bank taken from the
// tile word's upper bits.
func (g *Generator) drawTile4(img *image.RGBA, px, py int, tile uint32) {
	wordOff := (((tile & 0x3FFF) << 1) | ((tile >> 15) & 1)) * 8 // 32 bytes/tile == 8 words/tile
	palBits := uint16(tile & 0x7FF0)

	for row := 0; row < 8; row++ {
		w := g.vramWord(wordOff + uint32(row))
		nibbles := [8]byte{
			byte(w >> 28 & 0xF), byte(w >> 24 & 0xF), byte(w >> 20 & 0xF), byte(w >> 16 & 0xF),
			byte(w >> 12 & 0xF), byte(w >> 8 & 0xF), byte(w >> 4 & 0xF), byte(w & 0xF),
		}
		for col, n := range nibbles {
			img.SetRGBA(px+col, py+row, decodePaletteEntry(g.pal[uint16(n)|palBits]))
		}
	}
}

// vramWord reads a tile-pattern word by word index, zero if out of
// range.
func (g *Generator) vramWord(idx uint32) uint32 {
	if int(idx) < len(g.vram) {
		return g.vram[idx]
	}
	return 0
}

// decodePaletteEntry converts a 16-bit ABBBBBGGGGGRRRRR palette entry
// (A inverted: clear means opaque) into RGBA8, per spec.md §6.
func decodePaletteEntry(v uint16) color.RGBA {
	r5 := v & 0x1F
	g5 := (v >> 5) & 0x1F
	b5 := (v >> 10) & 0x1F
	a := uint8(0xFF)
	if v&0x8000 != 0 {
		a = 0
	}
	expand := func(c uint16) uint8 { return uint8(c<<3 | c>>2) }
	return color.RGBA{R: expand(r5), G: expand(g5), B: expand(b5), A: a}
}
