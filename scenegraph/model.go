package scenegraph

import (
	"log/slog"

	"github.com/chewxy/math32"

	"github.com/m3core/real3d/linear"
	"github.com/m3core/real3d/mem"
	"github.com/m3core/real3d/modelcache"
	"github.com/m3core/real3d/texture"
)

// textureOffset mirrors the original's TextureOffset: the running
// per-culling-node texture-offset state (stepping 1.5+ only).
type textureOffset struct {
	X, Y       int
	SwitchBank int
	State      uint16
}

// newTextureOffset decodes a scene-node word 2 into a textureOffset,
// matching spec.md §4.4's "word (2) bit 0x8000 ... update texture-
// offset state from its low 15 bits".
func newTextureOffset(data uint32) textureOffset {
	return textureOffset{
		X:          32 * int((data>>7)&0x7F),
		Y:          32 * int(data&0x7F),
		SwitchBank: int(data&0x4000) >> 4,
		State:      uint16(data & 0x7FFF),
	}
}

// sharedVerts maps a 4-bit reuse mask to the number of vertices it
// reuses, matching the original's IsDynamicModel lookup table.
var sharedVerts = [16]int{0, 1, 1, 2, 1, 2, 2, 3, 1, 2, 2, 3, 2, 3, 3, 4}

// isDynamicModel scans a VROM model's polygon stream for any
// palette-referencing polygon (header[1] bit 1 clear), which forces
// reclassification from static to dynamic (spec.md §4.3 "Caching
// rule"). The polygon stream is read through regions.ModelWord
// starting at addr.
func isDynamicModel(regions *mem.Regions, addr uint32) bool {
	a := addr
	for {
		h1, err := regions.ModelWord(a + 1)
		if err != nil {
			return false
		}
		if h1&2 == 0 {
			return true
		}
		h6, err := regions.ModelWord(a + 6)
		if err != nil || h6 == 0 {
			return false
		}
		h0, err := regions.ModelWord(a + 0)
		if err != nil {
			return false
		}
		numVerts := 3
		if h0&0x40 != 0 {
			numVerts = 4
		}
		numVerts -= sharedVerts[h0&0xF]
		last := h1&4 != 0
		a += 7 + uint32(numVerts)*4
		if last {
			return false
		}
	}
}

// decoder runs the model-polygon-stream decode (the original's
// CacheModel) against a single modelcache.Cache, driven by the
// register state a traversal maintains (texture-offset state, color
// table address, coordinate-matrix m13, and vertex scale).
type decoder struct {
	regions *mem.Regions
	tex     *texture.Manager
	log     *slog.Logger
	warned  bool // suppresses repeat warnings past the first one in a frame

	vertexFactor float32
	colorTable   uint32
	texOffset    textureOffset
	m13          float32
}

// ResetFrameLog re-arms warning output for a new frame, matching the
// ambient-stack decision to rate-limit per-frame error logging rather
// than flood the log once a bad address is hit.
func (d *decoder) ResetFrameLog() { d.warned = false }

// cacheModel decodes the model at addr into cache, reproducing
// CacheModel/BeginModel/InsertPolygon/EndModel. On ErrVBOFull/
// ErrTooManyModels it returns the error unchanged so the caller can
// drain-and-retry per spec.md §4.3. A bad model or vertex address is
// logged once per frame and the model is abandoned at that point.
// ErrLocalOverflow is handled differently still: per spec.md §7 it is
// logged once per frame and the offending polygon is dropped, but
// decode of the rest of the model continues.
func (d *decoder) cacheModel(cache *modelcache.Cache, addr uint32, dynamic bool) (*modelcache.Model, error) {
	m, err := cache.BeginModel()
	if err != nil {
		return nil, err
	}

	var prev [4]rawVertex
	useStencil := true
	a := addr
	for {
		var hw [7]uint32
		ok := true
		for i := range hw {
			w, err := d.regions.ModelWord(a + uint32(i))
			if err != nil {
				ok = false
				break
			}
			hw[i] = w
		}
		if !ok {
			d.logOnce("scenegraph: bad model address")
			break
		}
		h := polyHeader(hw)
		a += 7
		if h[6] == 0 {
			break
		}
		last := h.isLast()
		nv := h.numVerts()

		verts := make([]rawVertex, nv)
		j := 0
		mask := uint32(1)
		for i := 0; i < 4 && j < nv; i++ {
			if h.reuseMask()&mask != 0 {
				verts[j] = prev[i]
				j++
			}
			mask <<= 1
		}
		for ; j < nv; j++ {
			var words [4]uint32
			bad := false
			for i := range words {
				w, err := d.regions.ModelWord(a + uint32(i))
				if err != nil {
					bad = true
					break
				}
				words[i] = w
			}
			if bad {
				d.logOnce("scenegraph: bad vertex address")
				break
			}
			a += 4
			verts[j] = decodeVertex(words, d.vertexFactor, h.uvScale())
		}
		if j < nv {
			break
		}

		// Texture decode and the stencil heuristic run for every
		// polygon header, valid or not, matching CacheModel's
		// original ordering (the validPoly gate only excludes the
		// InsertPolygon/Prev-copy step below).
		texBaseX := h.textureBaseX(d.texOffset)
		texBaseY := h.textureBaseY(d.texOffset)
		texFormat := h.texFormat()
		if h.texEnable() && d.tex != nil {
			ref := texture.Pack(texFormat, uint32(texBaseX), uint32(texBaseY), uint32(h.texWidth()), uint32(h.texHeight()))
			if dynamic || !m.TexRefs.Add(ref) {
				d.tex.Decode(texFormat, uint32(texBaseX), uint32(texBaseY), uint32(h.texWidth()), uint32(h.texHeight()))
			}
		}
		useStencil = useStencil && h.useStencil()

		if h.valid() {
			poly, err := d.buildPolygon(h, verts, texBaseX, texBaseY)
			if err != nil {
				return nil, err
			}
			if err := cache.InsertPolygon(poly); err != nil {
				if err != modelcache.ErrLocalOverflow {
					return nil, err
				}
				d.logOnce("scenegraph: local vertex buffer overflow, polygon dropped")
			}
			copy(prev[:nv], verts)
		}

		if last {
			break
		}
	}

	if err := cache.EndModel(m, addr, d.texOffset.State, useStencil); err != nil {
		return nil, err
	}
	return m, nil
}

func (d *decoder) logOnce(msg string) {
	if d.log != nil && !d.warned {
		d.log.Warn(msg)
		d.warned = true
	}
}

// shadeSource resolves, for one vertex of a polygon, the light-space
// normal components to store (before the per-triangle normFlip sign),
// the fixed-shading intensity, and whether per-pixel lighting stays
// enabled, matching Models.cpp's InsertVertex shading switch.
func shadeSource(h polyHeader, v rawVertex) (nx, ny, nz, intensity float32, lightEnable bool) {
	lightEnable = !h.lightingDisabled()
	intensity = 1
	if lightEnable {
		switch {
		case h.smoothShading():
			nx, ny, nz = v.NX, v.NY, v.NZ
		case h.fixedShading():
			intensity = v.Intensity
			lightEnable = false
		default:
			nx, ny, nz = h.normal()
		}
	}
	if h.fixedShading() {
		nx, ny, nz = 0, 0, 0
	}
	return
}

// modulateColor reports whether the polygon's base color should
// modulate with lighting/texture, per spec.md §9 Open Question (a):
// untextured polygons always modulate; textured polygons fall back to
// the header[4] bit 7 approximation.
func modulateColor(h polyHeader) bool {
	if !h.texEnable() {
		return true
	}
	return !h.modulationDisabled()
}

// boolFloat stores a Go bool as the 0/1 float32 modelcache.Vertex
// convention expects.
func boolFloat(b bool) float32 {
	if b {
		return 1
	}
	return 0
}

// orderedVert names one vertex slot of a source polygon along with
// the sign (+1/-1) its normal is flipped by when emitted, reproducing
// InsertPolygon's winding-dependent emission order.
type orderedVert struct {
	idx      int
	normFlip float32
}

// triangleOrder reproduces Models.cpp's InsertPolygon: it determines
// winding from the cross product of the first triangle's edges against
// the polygon's stored normal, corrected by the coordinate matrix's
// raw m13 component, then emits triangle(s) in the matching order,
// including the double-sided backside and the quad's second triangle.
func triangleOrder(h polyHeader, verts []rawVertex, m13 float32) []orderedVert {
	p0 := linear.V3{verts[0].X, verts[0].Y, verts[0].Z}
	p1 := linear.V3{verts[1].X, verts[1].Y, verts[1].Z}
	p2 := linear.V3{verts[2].X, verts[2].Y, verts[2].Z}
	var e1, e2, c linear.V3
	e1.Sub(&p0, &p1)
	e2.Sub(&p2, &p1)
	c.Cross(&e1, &e2)

	pnx, pny, pnz := h.normal()
	pn := linear.V3{pnx, pny, pnz}
	normZFlip := -m13
	cw := normZFlip*c.Dot(&pn) >= 0

	ov := func(i int, f float32) orderedVert { return orderedVert{i, f} }

	var order []orderedVert
	if cw {
		order = append(order, ov(0, 1), ov(1, 1), ov(2, 1))
		if h.doubleSided() {
			order = append(order, ov(2, -1), ov(1, -1), ov(0, -1))
		}
		if h.isQuad() {
			order = append(order, ov(0, 1), ov(2, 1), ov(3, 1))
			if h.doubleSided() {
				order = append(order, ov(0, -1), ov(3, -1), ov(2, -1))
			}
		}
	} else {
		order = append(order, ov(2, 1), ov(1, 1), ov(0, 1))
		if h.doubleSided() {
			order = append(order, ov(0, -1), ov(1, -1), ov(2, -1))
		}
		if h.isQuad() {
			order = append(order, ov(0, 1), ov(3, 1), ov(2, 1))
			if h.doubleSided() {
				order = append(order, ov(0, -1), ov(2, -1), ov(3, -1))
			}
		}
	}
	return order
}

// buildPolygon assembles a *modelcache.Polygon from a decoded header
// and its raw vertex records: it resolves the polygon-wide material
// parameters once (InsertVertex's per-polygon work), triangulates per
// triangleOrder, and emits one modelcache.Vertex per ordered slot.
func (d *decoder) buildPolygon(h polyHeader, verts []rawVertex, texBaseXLocal, texBaseYLocal int) (*modelcache.Polygon, error) {
	texFormat := h.texFormat()
	texWidth, texHeight := h.texWidth(), h.texHeight()

	var mapNum, xOff, yOff int
	if d.tex != nil {
		mapNum, xOff, yOff = d.tex.SheetLocation(texFormat)
	}
	texBaseX := float32(xOff + texBaseXLocal)
	texBaseY := float32(yOff + texBaseYLocal)

	r, g, b := h.materialColor(d.regions, d.colorTable)
	if !modulateColor(h) {
		r, g, b = 1, 1, 1
	}

	var specCoeff, shininess float32 = 0, -1
	if h.specularEnable() {
		specCoeff = h.specularCoefficient()
		shininess = math32.Exp2(1 + float32(h.shinyBits()))
	}

	translucence := float32(h.translucenceBits()) / 31
	if h.opaqueFlag() {
		translucence = 1
	}

	contour := float32(-1)
	fmt1 := texFormat == 1 && h[6]&2 != 0
	fmt3 := texFormat == 3 && h[6]&4 != 0
	if h.contourEnable() || texFormat == 7 || fmt1 || fmt3 {
		contour = 1
	}

	fogIntensity := h.fogIntensity()
	texEnable := h.texEnable()
	uWrap, vWrap := h.uWrap(), h.vWrap()

	order := triangleOrder(h, verts, d.m13)
	out := make([]modelcache.Vertex, len(order))
	for i, o := range order {
		v := verts[o.idx]
		nx, ny, nz, intensity, lightEnable := shadeSource(h, v)
		var n linear.V3
		n.Flip(o.normFlip, &linear.V3{nx, ny, nz})
		out[i] = modelcache.Vertex{
			X: v.X, Y: v.Y, Z: v.Z,
			NX: n[0], NY: n[1], NZ: n[2],
			R: r * intensity, G: g * intensity, B: b * intensity,
			Translucence: translucence,
			LightEnable:  boolFloat(lightEnable),
			Specular:     specCoeff,
			Shininess:    shininess,
			FogIntensity: fogIntensity,
			U:            v.U,
			V:            v.V,
			TexBaseX:     texBaseX,
			TexBaseY:     texBaseY,
			TexWidth:     texWidth,
			TexHeight:    texHeight,
			TexEnable:    boolFloat(texEnable),
			TexTrans:     contour,
			TexUWrap:     boolFloat(uWrap),
			TexVWrap:     boolFloat(vWrap),
			TexFormat:    float32(texFormat),
			TexSheet:     float32(mapNum),
		}
	}
	return &modelcache.Polygon{State: h.state(), Verts: out}, nil
}
