package modelcache

import (
	"errors"

	"github.com/m3core/real3d/driver"
	"github.com/m3core/real3d/linear"
	"github.com/m3core/real3d/texture"
)

// ErrTooManyModels is returned by BeginModel when the model array is
// full. The caller should treat this exactly like ErrVBOFull: drain
// and clear both caches, then retry once.
var ErrTooManyModels = errors.New("modelcache: too many cached models")

// Model is a cache entry (the "VBORef" of spec.md §3): the vertex
// ranges a cached model occupies per state, its LUT linkage, and the
// texture references it samples at draw time.
type Model struct {
	Index    [numStates]int64
	NumVerts [numStates]int64

	LUTIdx         int
	Next           *Model // chain of entries sharing LUTIdx with a different TexOffsetState
	TexOffsetState uint16
	UseStencil     bool

	TexRefs texture.RefSet
}

func (m *Model) clear() {
	*m = Model{}
}

// Cache is the Model Cache of spec.md §4.3: a bump-allocated vertex
// buffer, a model array, a direct-indexed LUT (model address ->
// model-array index, following the original's plain array rather
// than a hashed lookup, since the address space is bounded and known
// at construction), and a per-frame display list.
type Cache struct {
	dynamic bool

	vbo *vbo

	scratch [numStates][]Vertex

	models    []Model
	numModels int

	lut []int32 // -1 sentinel; indexed by address & (len(lut)-1)

	dl *displayList
}

// New constructs a Cache. vboMaxVerts is the requested global vertex
// buffer capacity, halved on allocation failure down to
// scratchVerts (spec.md §4.3's construction rule); scratchVerts also
// sizes the per-state local scratch buffers a single model's polygon
// stream is decoded into; maxModels bounds the model array; lutSize
// must be a power of two and bounds the direct-indexed LUT;
// dlCapacity bounds the display-list node pool.
func New(gpu driver.GPU, dynamic bool, vboMaxVerts, scratchVerts, maxModels, lutSize, dlCapacity int) (*Cache, error) {
	v, err := newVBO(gpu, vboMaxVerts, scratchVerts)
	if err != nil {
		return nil, err
	}
	c := &Cache{
		dynamic: dynamic,
		vbo:     v,
		models:  make([]Model, maxModels),
		lut:     make([]int32, lutSize),
		dl:      newDisplayList(dlCapacity),
	}
	c.scratch[Opaque] = make([]Vertex, 0, scratchVerts)
	c.scratch[Alpha] = make([]Vertex, 0, scratchVerts)
	for i := range c.lut {
		c.lut[i] = -1
	}
	return c, nil
}

// Dynamic reports whether this is the dynamic (polygon-RAM) cache as
// opposed to the static (VROM) cache.
func (c *Cache) Dynamic() bool { return c.dynamic }

// Clear invalidates every model and empties the vertex buffer and
// display list. Dynamic caches are cleared at the start of every
// frame; static caches only clear on overflow or on demand.
func (c *Cache) Clear() {
	c.vbo.clear()
	c.numModels = 0
	for i := range c.lut {
		c.lut[i] = -1
	}
	c.dl.clear()
}

// ClearDisplayList empties the per-frame display list without
// touching cached models, for the "clear display lists" step that
// runs between priority passes while cached geometry persists across
// the whole frame.
func (c *Cache) ClearDisplayList() { c.dl.clear() }

func (c *Cache) lutIndex(addr uint32) int {
	return int(addr) & (len(c.lut) - 1)
}

// Lookup implements the `lookup(addr, tex_offset_state)` operation:
// the LUT yields the chain head for addr, which is walked for a
// matching TexOffsetState.
func (c *Cache) Lookup(addr uint32, texOffsetState uint16) (*Model, bool) {
	i := c.lut[c.lutIndex(addr)]
	if i < 0 {
		return nil, false
	}
	for model := &c.models[i]; model != nil; model = model.Next {
		if model.TexOffsetState == texOffsetState {
			return model, true
		}
	}
	return nil, false
}

// BeginModel reserves one model slot and resets the scratch write
// cursors, recording the vertex-buffer start offset for the opaque
// state (the `begin_model()` operation of spec.md §4.3).
func (c *Cache) BeginModel() (*Model, error) {
	if c.numModels >= len(c.models) {
		return nil, ErrTooManyModels
	}
	m := &c.models[c.numModels]
	m.clear()
	c.scratch[Opaque] = c.scratch[Opaque][:0]
	c.scratch[Alpha] = c.scratch[Alpha][:0]
	return m, nil
}

// InsertPolygon appends poly's already-triangulated vertices to the
// scratch buffer matching poly.State. Winding and double-sided
// expansion are the scene traversal's responsibility; InsertPolygon
// only does bounds-checked bulk append.
func (c *Cache) InsertPolygon(poly *Polygon) error {
	s := c.scratch[poly.State]
	if len(s)+len(poly.Verts) > cap(s) {
		return ErrLocalOverflow
	}
	c.scratch[poly.State] = append(s, poly.Verts...)
	return nil
}

// EndModel finalises the model being built: uploads the scratch
// buffers to the vertex buffer (opaque immediately followed by
// alpha, per spec.md §3's ordering invariant), records numVerts per
// state, and links the model into the LUT chain for addr.
//
// On ErrVBOFull the model slot reserved by BeginModel is left
// uninitialized; the caller is expected to drain and Clear both
// caches and retry the whole model exactly once.
func (c *Cache) EndModel(m *Model, addr uint32, texOffsetState uint16, useStencil bool) error {
	nOpaque := int64(len(c.scratch[Opaque]))
	nAlpha := int64(len(c.scratch[Alpha]))

	combined := make([]Vertex, 0, nOpaque+nAlpha)
	combined = append(combined, c.scratch[Opaque]...)
	combined = append(combined, c.scratch[Alpha]...)

	start, err := c.vbo.append(combined)
	if err != nil {
		return err
	}

	m.Index[Opaque] = start
	m.NumVerts[Opaque] = nOpaque
	m.Index[Alpha] = start + nOpaque
	m.NumVerts[Alpha] = nAlpha

	lutIdx := c.lutIndex(addr)
	m.LUTIdx = lutIdx
	m.TexOffsetState = texOffsetState
	m.UseStencil = useStencil

	if head := c.lut[lutIdx]; head >= 0 {
		m.Next = &c.models[head]
	}
	c.lut[lutIdx] = int32(c.numModels)
	c.numModels++
	return nil
}

// AppendViewport appends a Viewport node to both per-state display
// lists.
func (c *Cache) AppendViewport(vp Viewport) error { return c.dl.AppendViewport(vp) }

// AppendModel appends a ModelInstance node referencing m's vertex
// range for state to the matching per-state display list. It is a
// no-op if the model has no vertices in that state.
func (c *Cache) AppendModel(m *Model, state State, modelView linear.M4, winding Winding) error {
	if m.NumVerts[state] <= 0 {
		return nil
	}
	return c.dl.AppendModel(state, ModelInstance{
		ModelView:  modelView,
		VertStart:  m.Index[state],
		VertCount:  m.NumVerts[state],
		Winding:    winding,
		UseStencil: m.UseStencil,
	})
}

// Drain walks the state's display list, invoking d for every node.
func (c *Cache) Drain(state State, d Drainer) { c.dl.Drain(state, d) }

// VertexBuffer returns the underlying GPU buffer backing the cache's
// vertices, for binding as a vertex source before Drain's draw calls.
func (c *Cache) VertexBuffer() driver.Buffer { return c.vbo.buf }

// UsedVerts returns the number of vertices currently occupying the
// vertex buffer.
func (c *Cache) UsedVerts() int64 { return c.vbo.usedVerts() }
