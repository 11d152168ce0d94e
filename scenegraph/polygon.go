package scenegraph

import (
	"github.com/m3core/real3d/linear"
	"github.com/m3core/real3d/mem"
	"github.com/m3core/real3d/modelcache"
)

// polyHeader is the seven-word source wire format of a polygon,
// decoded per spec.md §4.4's polygon-header table.
type polyHeader [7]uint32

func (h polyHeader) valid() bool { return h[0]&0x300 != 0x300 }
func (h polyHeader) isQuad() bool { return h[0]&0x40 != 0 }
func (h polyHeader) numVerts() int {
	if h.isQuad() {
		return 4
	}
	return 3
}
func (h polyHeader) reuseMask() uint32   { return h[0] & 0xF }
func (h polyHeader) isLast() bool        { return h[1]&4 != 0 }
func (h polyHeader) doubleSided() bool   { return h[1]&0x10 != 0 }
func (h polyHeader) fixedShading() bool  { return h[1]&0x20 != 0 }
func (h polyHeader) smoothShading() bool { return h[1]&0x08 != 0 }
func (h polyHeader) usesPalette() bool   { return h[1]&2 == 0 }
func (h polyHeader) uWrap() bool         { return h[2]&2 != 0 }
func (h polyHeader) vWrap() bool         { return h[2]&1 != 0 }

func (h polyHeader) texFormat() uint32  { return (h[6] >> 7) & 7 }
func (h polyHeader) texWidth() float32  { return float32(32 << ((h[3] >> 3) & 7)) }
func (h polyHeader) texHeight() float32 { return float32(32 << (h[3] & 7)) }
func (h polyHeader) texEnable() bool    { return h[6]&0x400 != 0 }

func (h polyHeader) uvScale() float32 {
	if h[1]&0x40 != 0 {
		return 1
	}
	return 1.0 / 8
}

func (h polyHeader) opaqueFlag() bool       { return h[6]&0x00800000 != 0 }
func (h polyHeader) lightingDisabled() bool { return h[6]&0x00010000 != 0 }
func (h polyHeader) layered() bool          { return h[6]&8 != 0 }
func (h polyHeader) contourEnable() bool    { return h[6]&0x80000000 != 0 }
func (h polyHeader) translucenceBits() uint32 { return (h[6] >> 18) & 0x1F }
func (h polyHeader) shinyBits() uint32        { return (h[6] >> 5) & 3 }
func (h polyHeader) specularEnable() bool     { return h[0]&0x80 != 0 }
func (h polyHeader) specularCoefficient() float32 {
	return float32((h[0]>>26)&0x3F) * (1.0 / 63)
}
func (h polyHeader) fogIntensity() float32 { return float32((h[6]>>11)&0x1F) * (1.0 / 15) }

func (h polyHeader) paletteIndex() uint32 { return (h[4] >> 8) & 0xFFF }

func (h polyHeader) directColor() (r, g, b float32) {
	r = float32(h[4]>>24) / 255
	g = float32((h[4]>>16)&0xFF) / 255
	b = float32((h[4]>>8)&0xFF) / 255
	return
}

// modulationDisabled implements the spec.md §9 Open Question (a)
// decision: the original's own working approximation
// `!(header[4] & 0x80)`, reproduced exactly rather than the fuller
// (and still unresolved) heuristic documented in Models.cpp.
func (h polyHeader) modulationDisabled() bool { return h[4]&0x80 != 0 }

// normal decodes the polygon normal from header[1..3]'s upper 24
// bits as signed 2.22 fixed point.
func (h polyHeader) normal() (x, y, z float32) {
	x = float32(int32(h[1])>>8) * (1.0 / 4194304)
	y = float32(int32(h[2])>>8) * (1.0 / 4194304)
	z = float32(int32(h[3])>>8) * (1.0 / 4194304)
	return
}

// state implements the Alpha/Opaque classification of spec.md §4.4.
func (h polyHeader) state() modelcache.State {
	fmt := h.texFormat()
	alpha := !h.opaqueFlag() || fmt == 7 || fmt == 4
	switch fmt {
	case 1:
		alpha = alpha || h[6]&2 != 0
	case 3:
		alpha = alpha || h[6]&4 != 0
	}
	if alpha {
		return modelcache.Alpha
	}
	return modelcache.Opaque
}

// useStencil reports this polygon's contribution to the model-wide
// stencil heuristic of spec.md §4.4.
func (h polyHeader) useStencil() bool {
	translucent := !h.opaqueFlag()
	probablyShadow := h.lightingDisabled() && translucent && !h.texEnable()
	return h.layered() || probablyShadow
}

// textureBaseX/textureBaseY select the sub-texture base position
// within the format's sheet, corrected by the running texture-offset
// state (spec.md §4.4 "header[4]/[5] select sub-texture base
// position").
func (h polyHeader) textureBaseX(off textureOffset) int {
	x := 32 * (((h[4] & 0x7F) << 1) | ((h[5] >> 7) & 1))
	return int(x+uint32(off.X)) & 2047
}

func (h polyHeader) textureBaseY(off textureOffset) int {
	y := 32 * int(h[5]&0x7F)
	bank := int(h[4]&0x40) << 4
	return ((y + off.Y) & 1023) + (bank ^ off.SwitchBank)
}

// materialColor resolves the polygon's base color: a palette lookup
// into polygon RAM at colorTableAddr when header[1] bit 1 is clear,
// otherwise direct RGB carried in header[4]'s upper 24 bits.
func (h polyHeader) materialColor(regions *mem.Regions, colorTableAddr uint32) (r, g, b float32) {
	if !h.usesPalette() {
		return h.directColor()
	}
	word, err := regions.ModelWord(colorTableAddr + h.paletteIndex())
	if err != nil {
		return 1, 1, 1
	}
	b = float32(word&0xFF) / 255
	g = float32((word>>8)&0xFF) / 255
	r = float32((word>>16)&0xFF) / 255
	return
}

// rawVertex is a single 4-word vertex record, decoded but not yet
// assembled into a modelcache.Vertex (that requires per-polygon
// state this type doesn't carry).
type rawVertex struct {
	X, Y, Z    float32
	NX, NY, NZ float32
	U, V       float32
	Intensity  float32
}

// decodeVertex reads one 4-word vertex record at words[0:4], scaling
// position by vertexFactor and UV by uvScale, normalizing the signed
// per-vertex normal and deriving the fixed-shading intensity from the
// X word's low byte.
func decodeVertex(words [4]uint32, vertexFactor, uvScale float32) rawVertex {
	ix, iy, iz, it := words[0], words[1], words[2], words[3]
	v := rawVertex{
		X: float32(int32(ix)>>8) * vertexFactor,
		Y: float32(int32(iy)>>8) * vertexFactor,
		Z: float32(int32(iz)>>8) * vertexFactor,
		U: float32(uint16(it>>16)) * uvScale,
		V: float32(uint16(it)) * uvScale,
	}
	n := linear.V3{float32(int8(ix & 0xFF)), float32(int8(iy & 0xFF)), float32(int8(iz & 0xFF))}
	if mag := n.Len(); mag != 0 {
		var normed linear.V3
		normed.Norm(&n)
		n = normed
	}
	v.NX, v.NY, v.NZ = n[0], n[1], n[2]
	v.Intensity = float32((ix+128)&0xFF) / 255
	return v
}
