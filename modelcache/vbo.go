package modelcache

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/m3core/real3d/driver"
)

// vertexFloats is the number of float32 fields encoded per Vertex;
// vertexSize is that count in bytes.
const vertexFloats = 26
const vertexSize = vertexFloats * 4

// VertexStride is vertexSize exported for callers (the render
// package's vertex buffer binding) that need the byte stride of one
// encoded Vertex without duplicating the field count.
const VertexStride = vertexSize

// ErrLocalOverflow is returned by InsertPolygon when the per-state
// scratch buffer would overflow. The scratch buffers are sized so
// this should never happen in practice; it is logged once per frame
// and the offending polygon is dropped.
var ErrLocalOverflow = errors.New("modelcache: local vertex buffer overflow")

// ErrVBOFull is returned by EndModel when the global vertex
// buffer would overflow. Recoverable: the caller drains and clears
// both caches and retries the whole model exactly once.
var ErrVBOFull = errors.New("modelcache: vertex buffer is full")

// Encode writes v's fields, in declaration order, as little-endian
// float32s into dst, which must be at least vertexSize bytes.
func (v *Vertex) Encode(dst []byte) {
	fs := [vertexFloats]float32{
		v.X, v.Y, v.Z,
		v.NX, v.NY, v.NZ,
		v.R, v.G, v.B,
		v.Translucence, v.LightEnable, v.Specular, v.Shininess, v.FogIntensity,
		v.U, v.V,
		v.TexBaseX, v.TexBaseY, v.TexWidth, v.TexHeight,
		v.TexEnable, v.TexTrans, v.TexUWrap, v.TexVWrap, v.TexFormat, v.TexSheet,
	}
	for i, f := range fs {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(f))
	}
}

// vbo is a bump-allocated GPU vertex buffer: vertices are appended
// sequentially by EndModel and never reused in place, matching
// spec.md §4.3's "used-byte counter" model (as opposed to the
// general span-reuse allocator a retained-geometry renderer needs).
type vbo struct {
	gpu       driver.GPU
	buf       driver.Buffer
	usedBytes int64
	capBytes  int64
}

// newVBO allocates a vertex buffer of the requested vertex capacity,
// halving the request on failure down to minVerts before giving up,
// per spec.md §4.3's construction rule.
func newVBO(gpu driver.GPU, maxVerts, minVerts int) (*vbo, error) {
	n := maxVerts
	for {
		size := int64(n) * vertexSize
		buf, err := gpu.NewBuffer(size, true, driver.UVertexData)
		if err == nil {
			return &vbo{gpu: gpu, buf: buf, capBytes: size}, nil
		}
		if n <= minVerts {
			return nil, err
		}
		n /= 2
		if n < minVerts {
			n = minVerts
		}
	}
}

func (b *vbo) capVerts() int64 { return b.capBytes / vertexSize }

func (b *vbo) usedVerts() int64 { return b.usedBytes / vertexSize }

// clear resets the used-byte counter; previously written bytes are
// left in place but are no longer addressable by any live VBORef.
func (b *vbo) clear() { b.usedBytes = 0 }

// append writes verts sequentially, advancing the used-byte counter.
// It fails with ErrVBOFull rather than wrapping or growing.
func (b *vbo) append(verts []Vertex) (startVert int64, err error) {
	need := int64(len(verts)) * vertexSize
	if b.usedBytes+need > b.capBytes {
		return 0, ErrVBOFull
	}
	dst := b.buf.Bytes()[b.usedBytes:]
	for i := range verts {
		verts[i].Encode(dst[i*vertexSize:])
	}
	startVert = b.usedBytes / vertexSize
	b.usedBytes += need
	return startVert, nil
}
