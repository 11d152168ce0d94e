package modelcache

import (
	"testing"

	"github.com/m3core/real3d/driver"
	"github.com/m3core/real3d/driver/soft"
	"github.com/m3core/real3d/linear"
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

func triangle(state State) *Polygon {
	return &Polygon{State: state, Verts: make([]Vertex, 3)}
}

func TestLookupMissAndHit(t *testing.T) {
	gpu := newGPU(t)
	c, err := New(gpu, false, 1024, 64, 16, 64, 64)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, ok := c.Lookup(0x1234, 0); ok {
		t.Fatal("Lookup on empty cache must miss")
	}

	m, err := c.BeginModel()
	if err != nil {
		t.Fatalf("BeginModel: %v", err)
	}
	if err := c.InsertPolygon(triangle(Opaque)); err != nil {
		t.Fatalf("InsertPolygon: %v", err)
	}
	if err := c.EndModel(m, 0x1234, 7, false); err != nil {
		t.Fatalf("EndModel: %v", err)
	}

	got, ok := c.Lookup(0x1234, 7)
	if !ok {
		t.Fatal("Lookup must hit after EndModel")
	}
	if got != m {
		t.Fatal("Lookup returned a different entry than the one just cached")
	}
	if _, ok := c.Lookup(0x1234, 8); ok {
		t.Fatal("Lookup with a different texture-offset state must miss")
	}
}

func TestVertexCountsAndOrdering(t *testing.T) {
	gpu := newGPU(t)
	c, err := New(gpu, false, 1024, 64, 16, 64, 64)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	m, _ := c.BeginModel()
	c.InsertPolygon(triangle(Opaque))
	c.InsertPolygon(triangle(Alpha))
	c.InsertPolygon(triangle(Alpha))
	if err := c.EndModel(m, 0x10, 0, false); err != nil {
		t.Fatalf("EndModel: %v", err)
	}

	if m.NumVerts[Opaque] != 3 {
		t.Fatalf("NumVerts[Opaque]: have %d, want 3", m.NumVerts[Opaque])
	}
	if m.NumVerts[Alpha] != 6 {
		t.Fatalf("NumVerts[Alpha]: have %d, want 6", m.NumVerts[Alpha])
	}
	if m.Index[Alpha] != m.Index[Opaque]+m.NumVerts[Opaque] {
		t.Fatal("alpha range must immediately follow the opaque range")
	}
}

func TestClearInvalidatesLUT(t *testing.T) {
	gpu := newGPU(t)
	c, err := New(gpu, false, 1024, 64, 16, 64, 64)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	m, _ := c.BeginModel()
	c.InsertPolygon(triangle(Opaque))
	c.EndModel(m, 0x20, 0, false)

	c.Clear()

	if _, ok := c.Lookup(0x20, 0); ok {
		t.Fatal("Lookup must miss after Clear")
	}
	if c.UsedVerts() != 0 {
		t.Fatalf("UsedVerts after Clear: have %d, want 0", c.UsedVerts())
	}
	if c.numModels != 0 {
		t.Fatalf("numModels after Clear: have %d, want 0", c.numModels)
	}
}

func TestInsertPolygonLocalOverflow(t *testing.T) {
	gpu := newGPU(t)
	c, err := New(gpu, false, 1024, 4, 16, 64, 64)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.BeginModel()
	if err := c.InsertPolygon(triangle(Opaque)); err != nil {
		t.Fatalf("first InsertPolygon: %v", err)
	}
	if err := c.InsertPolygon(triangle(Opaque)); err != ErrLocalOverflow {
		t.Fatalf("InsertPolygon overflow: have %v, want ErrLocalOverflow", err)
	}
}

// TestCacheOverflowRecovery exercises scenario 4 of spec.md §8: populate a
// cache until one polygon before VBOFull; inserting a model that would
// overflow must fail EndModel, and after the caller drains+clears both
// caches, a retry must succeed with exactly one model present.
func TestCacheOverflowRecovery(t *testing.T) {
	gpu := newGPU(t)
	// Global VBO holds exactly 6 vertices (two triangles' worth).
	vrom, err := New(gpu, false, 6, 64, 16, 64, 64)
	if err != nil {
		t.Fatalf("New vrom: %v", err)
	}
	poly, err := New(gpu, true, 6, 64, 16, 64, 64)
	if err != nil {
		t.Fatalf("New poly: %v", err)
	}

	m1, _ := vrom.BeginModel()
	vrom.InsertPolygon(triangle(Opaque))
	if err := vrom.EndModel(m1, 0x100000, 0, false); err != nil {
		t.Fatalf("EndModel m1: %v", err)
	}

	m2, err := vrom.BeginModel()
	if err != nil {
		t.Fatalf("BeginModel m2: %v", err)
	}
	vrom.InsertPolygon(triangle(Opaque))
	vrom.InsertPolygon(triangle(Opaque)) // 6 verts total: would need 9, overflow
	if err := vrom.EndModel(m2, 0x100001, 0, false); err != ErrVBOFull {
		t.Fatalf("EndModel m2: have %v, want ErrVBOFull", err)
	}

	// Recovery: drain (no-op here, no Drainer needed since display lists are
	// empty) and clear both caches, then retry the model that overflowed.
	vrom.Clear()
	poly.Clear()

	m3, err := vrom.BeginModel()
	if err != nil {
		t.Fatalf("BeginModel retry: %v", err)
	}
	vrom.InsertPolygon(triangle(Opaque))
	vrom.InsertPolygon(triangle(Opaque))
	if err := vrom.EndModel(m3, 0x100001, 0, false); err != nil {
		t.Fatalf("EndModel retry: %v", err)
	}
	if vrom.numModels != 1 {
		t.Fatalf("numModels after recovery: have %d, want 1", vrom.numModels)
	}
}

func TestAppendModelSkipsEmptyState(t *testing.T) {
	gpu := newGPU(t)
	c, err := New(gpu, false, 1024, 64, 16, 64, 64)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	m, _ := c.BeginModel()
	c.InsertPolygon(triangle(Opaque))
	c.EndModel(m, 0x30, 0, false)

	var mv linear.M4
	mv.I()
	if err := c.AppendModel(m, Opaque, mv, CW); err != nil {
		t.Fatalf("AppendModel Opaque: %v", err)
	}
	if err := c.AppendModel(m, Alpha, mv, CW); err != nil {
		t.Fatalf("AppendModel Alpha: %v", err)
	}

	var drained []ModelInstance
	rec := drainerFunc{model: func(mi ModelInstance) { drained = append(drained, mi) }}
	c.Drain(Opaque, rec)
	if len(drained) != 1 {
		t.Fatalf("Drain(Opaque): have %d nodes, want 1 (Alpha state must not append an empty node)", len(drained))
	}
	drained = nil
	c.Drain(Alpha, rec)
	if len(drained) != 0 {
		t.Fatalf("Drain(Alpha): have %d nodes, want 0", len(drained))
	}
}

type drainerFunc struct {
	viewport func(Viewport)
	model    func(ModelInstance)
}

func (d drainerFunc) DrawViewport(vp Viewport) {
	if d.viewport != nil {
		d.viewport(vp)
	}
}

func (d drainerFunc) DrawModel(mi ModelInstance) {
	if d.model != nil {
		d.model(mi)
	}
}
