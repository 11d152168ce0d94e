package texture

import (
	"testing"

	"github.com/m3core/real3d/driver"
	"github.com/m3core/real3d/driver/soft"
	"github.com/m3core/real3d/mem"
)

func newManager(t *testing.T) (*Manager, driver.GPU) {
	t.Helper()
	d := &soft.Driver{}
	gpu, err := d.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	var regions mem.Regions
	regions.Attach(
		make([]uint32, mem.CullingLoWords),
		make([]uint32, mem.CullingHiWords),
		make([]uint32, mem.PolygonRAMWords),
		make([]uint32, mem.VROMWords),
		make([]uint16, mem.TextureRAMHalfs),
	)
	regions.TextureRAM[0] = 0xFFFF // fmt 7: opaque white at (0,0)
	m := NewManager(gpu, &regions)
	if err := m.ResolveLayout(9, 1, gpu.Limits()); err != nil {
		t.Fatalf("ResolveLayout: %v", err)
	}
	return m, gpu
}

func TestDecodeIdempotent(t *testing.T) {
	m, _ := newManager(t)
	if err := m.Decode(7, 0, 0, 64, 64); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if m.Uploads != 1 {
		t.Fatalf("Uploads after first decode: have %d, want 1", m.Uploads)
	}
	if err := m.Decode(7, 0, 0, 64, 64); err != nil {
		t.Fatalf("Decode (repeat): %v", err)
	}
	if m.Uploads != 1 {
		t.Fatalf("Uploads after repeat decode: have %d, want 1 (idempotent)", m.Uploads)
	}

	m.Invalidate(0, 0, 32, 32)
	if err := m.Decode(7, 0, 0, 64, 64); err != nil {
		t.Fatalf("Decode (after invalidate): %v", err)
	}
	if m.Uploads != 2 {
		t.Fatalf("Uploads after invalidate+decode: have %d, want 2", m.Uploads)
	}
}

func TestDecodeRejectsOversizeAndBoundaryCrossing(t *testing.T) {
	m, _ := newManager(t)
	if err := m.Decode(0, 0, 0, 2048, 32); err != nil {
		t.Fatalf("Decode oversize: %v", err)
	}
	if m.Uploads != 0 {
		t.Fatal("oversize decode must not upload")
	}
	if err := m.Decode(0, 2000, 0, 64, 32); err != nil {
		t.Fatalf("Decode boundary-crossing: %v", err)
	}
	if m.Uploads != 0 {
		t.Fatal("boundary-crossing decode must not upload")
	}
}
