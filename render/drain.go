package render

import (
	"encoding/binary"
	"math"

	"github.com/m3core/real3d/driver"
	"github.com/m3core/real3d/linear"
	"github.com/m3core/real3d/modelcache"
)

// uniformSlotSize is the per-draw constant-buffer slot size, aligned
// to the 256-byte range DescHeap.SetBuffer requires. It is large
// enough to hold a Viewport node's uniforms (projection matrix, sun/
// ambient/spotlight/fog parameters) followed by a ModelInstance's
// model-view matrix.
const uniformSlotSize = 512

// uniformSlots is the ring-buffer depth of the per-frame constant
// buffer: enough draws-in-flight that a slot is never overwritten
// before the soft backend (which executes synchronously) consumes it.
const uniformSlots = 4096

// cmdDrainer implements modelcache.Drainer, issuing the state and
// draw commands a drained display-list node requires (spec.md §4.3
// `drain(state)`: "for each viewport node update uniforms and
// glViewport-equivalent; for each model node set winding, optionally
// enable stencil, upload the model-view matrix, and draw the vertex
// range").
type cmdDrainer struct {
	cb    driver.CmdBuffer
	pipes *pipelineSet
	desc  driver.DescTable
	heap  driver.DescHeap
	unif  driver.Buffer

	state modelcache.State
	slot  int

	curVP modelcache.Viewport
}

func newCmdDrainer(gpu driver.GPU, cb driver.CmdBuffer, pipes *pipelineSet, desc driver.DescTable, heap driver.DescHeap) (*cmdDrainer, error) {
	unif, err := gpu.NewBuffer(uniformSlotSize*uniformSlots, true, driver.UShaderConst)
	if err != nil {
		return nil, err
	}
	return &cmdDrainer{cb: cb, pipes: pipes, desc: desc, heap: heap, unif: unif}, nil
}

func (d *cmdDrainer) Destroy() { d.unif.Destroy() }

// begin records which state (Opaque/Alpha) the upcoming Drain call is
// for, so DrawModel picks the matching pipeline variant. The ring
// cursor is left where it is.
func (d *cmdDrainer) begin(state modelcache.State) {
	d.state = state
}

func putM4(dst []byte, m linear.M4) {
	n := 0
	for i := range m {
		for j := range m[i] {
			binary.LittleEndian.PutUint32(dst[n:], math.Float32bits(m[i][j]))
			n += 4
		}
	}
}

func putF32(dst []byte, off int, v float32) {
	binary.LittleEndian.PutUint32(dst[off:], math.Float32bits(v))
}

// DrawViewport caches the viewport's projection and lighting/fog
// uniforms (DrawModel folds them into each draw's own ring slot
// alongside its model-view matrix, since the table exposes only one
// bound copy at a time and a draw needs both simultaneously) and
// issues the glViewport-equivalent SetViewport call. Model nodes that
// follow in the same per-state list reuse curVP until the next
// Viewport node.
func (d *cmdDrainer) DrawViewport(vp modelcache.Viewport) {
	d.curVP = vp
	d.cb.SetViewport([]driver.Viewport{{X: vp.X, Y: vp.Y, Width: vp.Width, Height: vp.Height, Znear: 0, Zfar: 1}})
}

// modelViewOffset is the byte offset of the model-view matrix within
// a uniform slot, past the projection matrix (64 bytes) and the
// lighting/fog block (32 bytes), rounded up for alignment.
const modelViewOffset = 128

// DrawModel sets winding/stencil state via the matching pipeline
// variant, writes the current viewport's uniforms together with this
// instance's model-view matrix into a fresh ring slot, binds it, and
// issues the draw call.
func (d *cmdDrainer) DrawModel(mi modelcache.ModelInstance) {
	pl := d.pipes.get(d.state, mi.Winding, mi.UseStencil)
	if pl == nil {
		return
	}
	d.cb.SetPipeline(pl)
	if mi.UseStencil {
		d.cb.SetStencilRef(1)
	}

	slot := d.slot % uniformSlots
	d.slot++
	dst := d.unif.Bytes()[slot*uniformSlotSize : (slot+1)*uniformSlotSize]

	putM4(dst, d.curVP.Projection)
	off := 64
	putF32(dst, off+0, d.curVP.SunDir[0])
	putF32(dst, off+4, d.curVP.SunDir[1])
	putF32(dst, off+8, d.curVP.SunDir[2])
	putF32(dst, off+12, d.curVP.SunIntensity)
	putF32(dst, off+16, d.curVP.Ambient)
	putF32(dst, off+20, d.curVP.FogDensity)
	putF32(dst, off+24, d.curVP.FogStart)
	putM4(dst[modelViewOffset:], mi.ModelView)

	if d.heap != nil {
		d.heap.SetBuffer(slot, 0, 0, []driver.Buffer{d.unif}, []int64{int64(slot) * uniformSlotSize}, []int64{uniformSlotSize})
	}
	if d.desc != nil {
		d.cb.SetDescTableGraph(d.desc, 0, []int{slot})
	}

	d.cb.Draw(int(mi.VertCount), 1, int(mi.VertStart), 0)
}

// bindVBO sets the vertex buffer source for the cache about to be
// drained; called once per cache before Drain(state, d).
func (d *cmdDrainer) bindVBO(buf driver.Buffer) {
	d.cb.SetVertexBuf(0, []driver.Buffer{buf}, []int64{0})
}
