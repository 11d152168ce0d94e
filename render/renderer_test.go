package render

import (
	"image"
	"testing"

	"github.com/m3core/real3d/driver"
	"github.com/m3core/real3d/driver/soft"
	"github.com/m3core/real3d/mem"
)

func newGPU(t *testing.T) driver.GPU {
	t.Helper()
	d := &soft.Driver{}
	g, err := d.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return g
}

func newAttachedRenderer(t *testing.T, cfg Config) *Renderer {
	t.Helper()
	gpu := newGPU(t)
	r, err := New(gpu, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.AttachMemory(
		make([]uint32, mem.CullingLoWords),
		make([]uint32, mem.CullingHiWords),
		make([]uint32, mem.PolygonRAMWords),
		make([]uint32, mem.VROMWords),
		make([]uint16, mem.TextureRAMHalfs),
	)
	if !r.SetStepping(mem.Step21) {
		t.Fatal("SetStepping: rejected a known stepping code")
	}
	return r
}

func TestInitTwiceFails(t *testing.T) {
	r := newAttachedRenderer(t, Config{})
	if err := r.Init(0, 0, 496, 384, 496, 384, nil); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer r.Destroy()
	if err := r.Init(0, 0, 496, 384, 496, 384, nil); err == nil {
		t.Fatal("second Init must fail")
	}
}

func TestFrameLifecycleWithEmptyScene(t *testing.T) {
	r := newAttachedRenderer(t, Config{})
	if err := r.Init(0, 0, 496, 384, 496, 384, nil); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer r.Destroy()

	if err := r.BeginFrame(); err != nil {
		t.Fatalf("BeginFrame: %v", err)
	}
	if err := r.RenderFrame(); err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}
	if err := r.EndFrame(); err != nil {
		t.Fatalf("EndFrame: %v", err)
	}

	cb := r.cb.(*soft.CmdBuffer)
	// An empty culling database has a root viewport node whose
	// nextAddr reads as zero, so RenderPriority never establishes a
	// viewport and no model is drawn; the frame still issues five
	// cleared passes (one color-clear pass at frame start, one
	// depth/stencil clear per of the four priority passes).
	if cb.Cleared == 0 {
		t.Fatal("expected at least one cleared attachment across the frame")
	}
	if len(cb.DrawCalls) != 0 {
		t.Fatalf("DrawCalls: have %d, want 0 for an empty scene", len(cb.DrawCalls))
	}
}

func TestRenderFrameBeforeInitFails(t *testing.T) {
	r := newAttachedRenderer(t, Config{})
	if err := r.RenderFrame(); err == nil {
		t.Fatal("RenderFrame before Init must fail")
	}
	if err := r.BeginFrame(); err == nil {
		t.Fatal("BeginFrame before Init must fail")
	}
}

type recordingSink struct {
	layers []int
}

func (s *recordingSink) DrawTileLayer(layer int, img *image.RGBA) {
	s.layers = append(s.layers, layer)
}

func TestRenderFrameTileLayerOrder(t *testing.T) {
	r := newAttachedRenderer(t, Config{})
	if err := r.Init(0, 0, 496, 384, 496, 384, nil); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer r.Destroy()

	sink := &recordingSink{}
	r.SetTileSink(sink)

	if err := r.BeginFrame(); err != nil {
		t.Fatalf("BeginFrame: %v", err)
	}
	if err := r.RenderFrame(); err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}
	if err := r.EndFrame(); err != nil {
		t.Fatalf("EndFrame: %v", err)
	}

	want := []int{3, 2, 1, 0}
	if len(sink.layers) != len(want) {
		t.Fatalf("layer count: have %d, want %d", len(sink.layers), len(want))
	}
	for i, l := range want {
		if sink.layers[i] != l {
			t.Fatalf("layer order[%d]: have %d, want %d", i, sink.layers[i], l)
		}
	}
}

func TestUploadTexturesDelegatesToManager(t *testing.T) {
	r := newAttachedRenderer(t, Config{})
	if err := r.Init(0, 0, 496, 384, 496, 384, nil); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer r.Destroy()

	// Must not panic; Invalidate is idempotent on an untouched grid.
	r.UploadTextures(0, 0, 0, 32, 32)
}

func TestSetIRQAcknowledger(t *testing.T) {
	r := newAttachedRenderer(t, Config{})

	var got uint8
	ackFn := ackFunc(func(mask uint8) { got = mask })
	r.SetIRQAcknowledger(ackFn)
	r.Tile().WriteReg(0x10, 0xAB000000)
	if got != 0xAB {
		t.Fatalf("AckIRQ mask: have %#x, want 0xAB", got)
	}
}

type ackFunc func(mask uint8)

func (f ackFunc) AckIRQ(mask uint8) { f(mask) }
