package modelcache

import (
	"errors"

	"github.com/m3core/real3d/internal/bitm"
	"github.com/m3core/real3d/linear"
)

// ErrListFull is returned by AppendViewport/AppendModel when the
// display-list node pool is exhausted. The current model is aborted
// and the error logged.
var ErrListFull = errors.New("modelcache: display list is full")

// Winding selects the front-face convention a ModelInstance node
// draws with, or disables culling entirely (spec.md §3's
// "winding mode ∈ {CW, CCW, disable-culling}").
type Winding int

const (
	CW Winding = iota
	CCW
	NoCull
)

// Viewport carries the per-viewport uniforms a display-list Viewport
// node applies before drawing the models nested under it (spec.md
// §4.4's viewport fields).
type Viewport struct {
	Projection linear.M4

	X, Y, Width, Height float32

	SunDir       linear.V3
	SunIntensity float32
	Ambient      float32

	SpotCenter    [2]float32
	SpotSize      [2]float32
	SpotNear      float32
	SpotFar       float32
	SpotColor     [3]float32

	FogColor   [3]float32
	FogDensity float32
	FogStart   float32
}

// ModelInstance is a single cached-model draw within a display list.
type ModelInstance struct {
	ModelView  linear.M4
	VertStart  int64
	VertCount  int64
	Winding    Winding
	UseStencil bool
}

// node is one slot of the arena-backed display-list pool. Exactly
// one of Viewport/Model is meaningful, selected by IsViewport.
type node struct {
	IsViewport bool
	Viewport   Viewport
	Model      ModelInstance
	next       int32 // index into the pool, or -1
}

// displayList owns the node pool and the two per-state (opaque,
// alpha) singly-linked lists that reference it. Viewport nodes are
// appended to both lists (spec.md §3: "viewport nodes appear on
// both").
type displayList struct {
	pool    []node
	freeMap bitm.Bitm[uint32]

	head [numStates]int32
	tail [numStates]int32
	used int
}

func newDisplayList(capacity int) *displayList {
	d := &displayList{pool: make([]node, capacity)}
	d.freeMap.Grow((capacity + 31) / 32)
	d.head[Opaque], d.tail[Opaque] = -1, -1
	d.head[Alpha], d.tail[Alpha] = -1, -1
	return d
}

func (d *displayList) clear() {
	d.freeMap.Clear()
	d.head[Opaque], d.tail[Opaque] = -1, -1
	d.head[Alpha], d.tail[Alpha] = -1, -1
	d.used = 0
}

func (d *displayList) allocNode() (int32, bool) {
	i, ok := d.freeMap.Alloc()
	if !ok || i >= len(d.pool) {
		return 0, false
	}
	d.used++
	return int32(i), true
}

func (d *displayList) link(state State, idx int32) {
	d.pool[idx].next = -1
	if d.tail[state] < 0 {
		d.head[state] = idx
	} else {
		d.pool[d.tail[state]].next = idx
	}
	d.tail[state] = idx
}

// AppendViewport appends a Viewport node to both per-state lists.
func (d *displayList) AppendViewport(vp Viewport) error {
	for _, s := range [2]State{Opaque, Alpha} {
		idx, ok := d.allocNode()
		if !ok {
			return ErrListFull
		}
		d.pool[idx] = node{IsViewport: true, Viewport: vp}
		d.link(s, idx)
	}
	return nil
}

// AppendModel appends a ModelInstance node to the per-state list
// for state, if m has any vertices.
func (d *displayList) AppendModel(state State, m ModelInstance) error {
	if m.VertCount <= 0 {
		return nil
	}
	idx, ok := d.allocNode()
	if !ok {
		return ErrListFull
	}
	d.pool[idx] = node{IsViewport: false, Model: m}
	d.link(state, idx)
	return nil
}

// Drainer receives the nodes of a drained per-state list, in list
// order, via DrawViewport/DrawModel.
type Drainer interface {
	DrawViewport(Viewport)
	DrawModel(ModelInstance)
}

// Drain walks the state's list front-to-back, invoking d on every
// node (the `drain(state)` operation of spec.md §4.3).
func (dl *displayList) Drain(state State, d Drainer) {
	for i := dl.head[state]; i >= 0; i = dl.pool[i].next {
		n := &dl.pool[i]
		if n.IsViewport {
			d.DrawViewport(n.Viewport)
		} else {
			d.DrawModel(n.Model)
		}
	}
}
