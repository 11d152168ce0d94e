// Package tilegen implements the 2D tile generator: four overlapping
// tile layers plus a shared 65536-entry color palette, composited
// behind and in front of the 3D scene (spec.md §4.5).
//
// The generator owns its VRAM outright (unlike the read-only views in
// package mem): the external bus writes tile patterns, tilemap words
// and palette entries into it directly, and old-data comparison on
// each write is what drives the dirty tracking below.
package tilegen

import (
	"image"

	"github.com/m3core/real3d/internal/bitvec"
)

// NumLayers is the number of independent tile layers.
const NumLayers = 4

// TileCols/TileRows are the addressable tile grid dimensions per
// layer (spec.md §3 "per-tile dirty bit (64x64)"). VisibleRows is the
// number of rows actually rasterised into a layer's pixel buffer;
// rows at or beyond it are tracked (for dirty-bit bookkeeping) but
// never drawn, since a layer's visible extent is 64 columns by 48
// rows (spec.md §4.5, first sentence).
const (
	TileCols    = 64
	TileRows    = 64
	VisibleRows = 48
	TileSize    = 8

	LayerWidth  = TileCols * TileSize
	LayerHeight = VisibleRows * TileSize
)

// VRAM layout, in bytes. Tile patterns occupy the low region, the
// four tilemaps follow at a fixed stride, and the palette follows
// that. These three byte ranges and their widths are exact: the
// palette window is precisely 65536 entries of 2 bytes each
// (0x120000-0x100000 == 65536*2), which is what fixes this module's
// palette granularity at the native 16-bit pixel format rather than
// the 32-bit-word-with-discarded-half scheme of the original PowerPC
// bus access.
const (
	tilemapBase      = 0xF8000
	tilemapLayerSize = 0x2000
	paletteBase      = 0x100000
	paletteSize      = 0x20000

	// VRAMSize is the total addressable VRAM window.
	VRAMSize = paletteBase + paletteSize

	vramWords          = paletteBase / 4
	tilemapBaseWordIdx = tilemapBase / 4
	tilemapLayerWords  = tilemapLayerSize / 4 // words per layer; 2 tiles per word
)

// Register byte offsets within the tilemap generator's register file.
const (
	regLayerColors = 0x20
	regIRQAck      = 0x10
)

// layerColorBit returns register 0x20's depth-mode bit for a layer:
// clear selects 8-bit color, set selects 4-bit (spec.md §4.5).
func layerColorBit(layer int) uint32 { return 0x100000 << uint(layer) }

// IRQAcknowledger is the narrow external collaborator register 0x10
// forwards its acknowledgement mask to; sound/IRQ/bus wiring proper
// is out of scope for this module (spec.md §1).
type IRQAcknowledger interface {
	AckIRQ(mask uint8)
}

// layerState tracks one tile layer's dirty bookkeeping and its
// rasterised output. The per-tile dirty flags and the per-slot
// color-depth bits of a 64x64 tile grid are exactly the kind of
// dense, fixed-size bitset internal/bitvec was built for, so both
// ride one there instead of a pair of [4096]bool arrays.
type layerState struct {
	img *image.RGBA

	dirty   bitvec.V[uint64]
	oldMode bitvec.V[uint64]

	layerDirty bool // some tile (or the whole layer) needs re-rasterisation
	redrawAll  bool // a depth-mode change invalidated every tile
}

func newLayerState() *layerState {
	ls := &layerState{img: image.NewRGBA(image.Rect(0, 0, LayerWidth, LayerHeight))}
	ls.dirty.Grow((TileRows*TileCols + 63) / 64)
	ls.oldMode.Grow((tilemapLayerWords + 63) / 64)
	return ls
}

// Generator is the Tile Generator of spec.md §4.5.
type Generator struct {
	vram [vramWords]uint32
	pal  [65536]uint16

	layerColors uint32 // register 0x20's cached value
	irq         IRQAcknowledger

	layers [NumLayers]*layerState

	// Draws counts every 8x8 tile actually rasterised; tests use it
	// as the "no additional rasterization" idempotence observable of
	// spec.md §8.
	Draws int
}

// NewGenerator constructs a Generator with all layers clean.
func NewGenerator() *Generator {
	g := &Generator{}
	for i := range g.layers {
		g.layers[i] = newLayerState()
	}
	return g
}

// SetIRQAcknowledger installs the collaborator that register 0x10
// writes forward their acknowledgement mask to.
func (g *Generator) SetIRQAcknowledger(a IRQAcknowledger) { g.irq = a }

// WriteVRAM writes a 32-bit word to the VRAM window, dispatching by
// address range exactly as spec.md §4.5 describes: raw tile-pattern
// writes below the tilemap window, old-data/old-depth compared
// tilemap writes in the middle window (marking the layer and the two
// affected tile positions dirty on change), and 16-bit-granularity
// palette writes in the top window (each 32-bit write updates the two
// consecutive palette entries it spans).
func (g *Generator) WriteVRAM(addr uint32, data uint32) {
	addr &^= 3
	switch {
	case addr < tilemapBase:
		if idx := addr / 4; int(idx) < len(g.vram) {
			g.vram[idx] = data
		}
	case addr < paletteBase:
		g.writeTilemap(addr, data)
	case addr < VRAMSize:
		idx := (addr - paletteBase) / 2
		g.pal[idx] = uint16(data)
		g.pal[idx+1] = uint16(data >> 16)
	}
}

func (g *Generator) writeTilemap(addr, data uint32) {
	layer := int((addr - tilemapBase) / tilemapLayerSize)
	wordIdx := addr / 4
	slot := int(wordIdx) - tilemapBaseWordIdx - layer*tilemapLayerWords

	li := g.layers[layer]
	mode4 := g.layerColors&layerColorBit(layer) != 0
	old := g.vram[wordIdx]
	if old == data && li.oldMode.IsSet(slot) == mode4 {
		return
	}
	g.vram[wordIdx] = data
	if mode4 {
		li.oldMode.Set(slot)
	} else {
		li.oldMode.Unset(slot)
	}

	tile0 := slot * 2
	if tile0 < li.dirty.Len() {
		li.dirty.Set(tile0)
	}
	if tile0+1 < li.dirty.Len() {
		li.dirty.Set(tile0 + 1)
	}
	li.layerDirty = true
}

// ReadVRAM reads a 32-bit word back from the VRAM window, mirroring
// WriteVRAM's address decode.
func (g *Generator) ReadVRAM(addr uint32) uint32 {
	addr &^= 3
	switch {
	case addr < paletteBase:
		if idx := addr / 4; int(idx) < len(g.vram) {
			return g.vram[idx]
		}
	case addr < VRAMSize:
		idx := (addr - paletteBase) / 2
		return uint32(g.pal[idx]) | uint32(g.pal[idx+1])<<16
	}
	return 0
}

// WriteReg writes a 32-bit register. Only 0x20 (layer color depth)
// and 0x10 (IRQ acknowledge) have any effect; every other offset is
// accepted and ignored, matching the original's register file.
func (g *Generator) WriteReg(addr uint32, data uint32) {
	switch addr & 0xFF {
	case regIRQAck:
		if g.irq != nil {
			g.irq.AckIRQ(uint8(data >> 24))
		}
	case regLayerColors:
		old := g.layerColors
		g.layerColors = data
		for layer, li := range g.layers {
			bit := layerColorBit(layer)
			if old&bit != data&bit {
				li.layerDirty = true
				li.redrawAll = true
			}
		}
	}
}

// ReadReg reads a 32-bit register.
func (g *Generator) ReadReg(addr uint32) uint32 {
	if addr&0xFF == regLayerColors {
		return g.layerColors
	}
	return 0
}

// Update re-rasterises every layer whose dirty flag is set, redrawing
// only the tiles whose per-tile dirty bit is set (or every tile, if a
// depth-mode change set redrawAll), per spec.md §4.5's per-frame
// description. Clears the layer dirty flag and per-tile bits for
// tiles it redraws (or, for rows beyond the visible 48, without
// drawing them).
func (g *Generator) Update() {
	for layer, li := range g.layers {
		if !li.layerDirty {
			continue
		}
		mode4 := g.layerColors&layerColorBit(layer) != 0
		base := tilemapBaseWordIdx + layer*tilemapLayerWords

		for ty := 0; ty < TileRows; ty++ {
			for tx := 0; tx < TileCols; tx++ {
				idx := ty*TileCols + tx
				if !li.redrawAll && !li.dirty.IsSet(idx) {
					continue
				}
				li.dirty.Unset(idx)
				if ty >= VisibleRows {
					continue // tracked, never drawn
				}
				word := g.vram[base+idx/2]
				var tile uint32
				if tx%2 == 0 {
					tile = word >> 16
				} else {
					tile = word & 0xFFFF
				}
				g.drawTile(li.img, tx*TileSize, ty*TileSize, tile, mode4)
				g.Draws++
			}
		}
		li.layerDirty = false
		li.redrawAll = false
	}
}

// Layer returns the rasterised RGBA buffer for a layer (0..3). The
// returned image is owned by the generator and is only valid until
// the next Update call.
func (g *Generator) Layer(layer int) *image.RGBA { return g.layers[layer].img }
