package tilegen

import "testing"

// tilemapAddr computes the byte address of tilemap word wordIdx (two
// tiles per word) within a layer.
func tilemapAddr(layer, wordIdx int) uint32 {
	return tilemapBase + uint32(layer)*tilemapLayerSize + uint32(wordIdx)*4
}

func TestWriteVRAMIdempotent(t *testing.T) {
	g := NewGenerator()
	addr := tilemapAddr(0, 0)

	g.WriteVRAM(addr, 0x00010002)
	g.Update()
	if g.Draws == 0 {
		t.Fatalf("expected at least one draw after first write")
	}
	draws := g.Draws

	g.WriteVRAM(addr, 0x00010002) // same value: no additional dirt
	g.Update()
	if g.Draws != draws {
		t.Fatalf("idempotent write triggered rasterization: have %d draws, want %d", g.Draws, draws)
	}
}

func TestWriteVRAMChangeMarksDirty(t *testing.T) {
	g := NewGenerator()
	addr := tilemapAddr(1, 5)

	g.WriteVRAM(addr, 0x00030004)
	g.Update()
	draws := g.Draws

	g.WriteVRAM(addr, 0x00030005)
	g.Update()
	if g.Draws == draws {
		t.Fatalf("changed tilemap word did not trigger rasterization")
	}
}

func TestLayerColorChangeForcesFullRedraw(t *testing.T) {
	g := NewGenerator()

	// Populate every tile-pair word of layer 2's visible rows.
	for ty := 0; ty < VisibleRows; ty++ {
		for tx := 0; tx < TileCols; tx += 2 {
			g.WriteVRAM(tilemapAddr(2, (ty*TileCols+tx)/2), 0x00070008)
		}
	}
	g.Update()
	firstPass := g.Draws

	// No tilemap data changed, but the depth mode for layer 2 flips.
	g.WriteReg(regLayerColors, layerColorBit(2))
	g.Update()
	secondPass := g.Draws - firstPass

	wantTiles := VisibleRows * TileCols
	if secondPass != wantTiles {
		t.Fatalf("mode change redraw count: have %d, want %d", secondPass, wantTiles)
	}
}

func TestRowsBeyondVisibleAreNeverDrawn(t *testing.T) {
	g := NewGenerator()
	addr := tilemapAddr(3, (VisibleRows*TileCols)/2) // first word of row 48 (out of visible range)

	g.WriteVRAM(addr, 0xAAAABBBB)
	g.Update()
	if g.Draws != 0 {
		t.Fatalf("row beyond VisibleRows was rasterized: %d draws", g.Draws)
	}
}

func TestPaletteRoundTrip(t *testing.T) {
	g := NewGenerator()
	// Write two consecutive palette entries via one 32-bit write:
	// low halfword (index 0) is opaque white, high halfword (index 1)
	// is the same color bits but with the inverted-alpha bit set
	// (transparent).
	g.WriteVRAM(paletteBase, 0x00007FFF|0xFFFF0000)

	got := decodePaletteEntry(g.pal[0])
	if got.A != 0xFF || got.R != 0xFF || got.G != 0xFF || got.B != 0xFF {
		t.Fatalf("palette entry 0 decode: have %+v", got)
	}
	got1 := decodePaletteEntry(g.pal[1])
	if got1.A != 0 { // bit 15 set: inverted alpha means transparent
		t.Fatalf("palette entry 1 alpha: have %d, want 0 (inverted)", got1.A)
	}
}

func TestIRQAckForwarded(t *testing.T) {
	var got uint8
	g := NewGenerator()
	g.SetIRQAcknowledger(ackFunc(func(mask uint8) { got = mask }))
	g.WriteReg(regIRQAck, 0x40000000)
	if got != 0x40 {
		t.Fatalf("AckIRQ mask: have %#x, want 0x40", got)
	}
}

type ackFunc func(uint8)

func (f ackFunc) AckIRQ(mask uint8) { f(mask) }
