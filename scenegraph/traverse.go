package scenegraph

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/m3core/real3d/linear"
	"github.com/m3core/real3d/mem"
	"github.com/m3core/real3d/modelcache"
	"github.com/m3core/real3d/texture"
)

// virtualOn2SlowdownAddr is a specific model address that, on real
// hardware, is fed during Virtual On 2's boot sequence and is not
// actually polygon data; DrawModel special-cases it to avoid stalling
// on garbage.
const virtualOn2SlowdownAddr = 0x200000

// ErrUnableToCache is returned when a model could not be cached even
// after draining and clearing both model caches once, matching
// spec.md §7's `UnableToCache(addr)`.
type ErrUnableToCache struct{ Addr uint32 }

func (e *ErrUnableToCache) Error() string {
	return fmt.Sprintf("scenegraph: unable to cache model at address %06X", e.Addr)
}

// Traverser walks the scene database (culling nodes, pointer lists,
// viewports) and populates the static/dynamic model caches' display
// lists, reproducing Legacy3D.cpp's DescendCullingNode/
// DescendPointerList/DescendNodePtr/RenderViewport/DrawModel family.
type Traverser struct {
	regions *mem.Regions
	tex     *texture.Manager
	static  *modelcache.Cache // VROM-backed
	dynamic *modelcache.Cache // polygon-RAM-backed
	dec     decoder

	stack          matrixStack
	colorTableAddr uint32
	texOffset      textureOffset
	listDepth      int
	matrixBase     uint32

	mapping screenMapping

	// OverflowDrain, when set, is invoked before either cache is
	// cleared during the cache-overflow recovery path, giving the
	// renderer facade a chance to draw what has accumulated so far
	// (DrawModel's "render what we have so far and try again").
	// Left nil, recovery simply discards the accumulated display
	// lists, which is harmless for tests that don't exercise drawing.
	OverflowDrain func()
}

// NewTraverser constructs a Traverser against the given memory
// regions, texture manager, and the two model caches.
func NewTraverser(regions *mem.Regions, tex *texture.Manager, static, dynamic *modelcache.Cache, log *slog.Logger) *Traverser {
	return &Traverser{
		regions: regions,
		tex:     tex,
		static:  static,
		dynamic: dynamic,
		dec:     decoder{regions: regions, tex: tex, log: log},
	}
}

// SetScreenMapping installs the viewport scaling ratios established
// by the renderer facade's init() against the reference 496x384
// screen (spec.md §6).
func (t *Traverser) SetScreenMapping(xOffs, yOffs, xRatio, yRatio, totalXRes float32, wideScreen bool) {
	t.mapping = screenMapping{
		XOffs: xOffs, YOffs: yOffs,
		XRatio: xRatio, YRatio: yRatio,
		TotalXRes: totalXRes, WideScreen: wideScreen,
	}
}

// ResetFrameLog re-arms the decoder's per-frame warning suppression;
// call once at the start of every frame.
func (t *Traverser) ResetFrameLog() { t.dec.ResetFrameLog() }

// RenderPriority walks the whole viewport chain for a single priority
// pass, reproducing RenderFrame's `RenderViewport(0x800000, pri,
// wideScreen)` call.
func (t *Traverser) RenderPriority(pri int) error {
	t.listDepth = 0
	return t.renderViewport(0x800000, pri)
}

func (t *Traverser) multMatrix(index uint32) (linear.M4, bool) {
	words, ok := readCullingWords(t.regions, t.matrixBase+index*12, 12)
	if !ok {
		return linear.M4{}, false
	}
	return nodeMatrix(words), true
}

func (t *Traverser) renderViewport(addr uint32, pri int) error {
	node, ok := decodeViewportNode(t.regions, addr, t.mapping)
	if !ok {
		return nil
	}
	if node.nextAddr == 0 {
		return nil
	}
	if node.nextAddr != 0x01000000 {
		if err := t.renderViewport(node.nextAddr, pri); err != nil {
			return err
		}
	}
	if node.priority != pri {
		return nil
	}

	t.texOffset = textureOffset{}
	t.matrixBase = node.matrixBase

	t.stack.reset(coordBaseMatrix(t.regions.Stepping))
	t.dec.m13 = 0
	if baseWords, ok := readCullingWords(t.regions, node.matrixBase, 12); ok {
		if weirdMatrix(baseWords) {
			return nil
		}
		t.dec.m13 = m13(baseWords)
	}
	if m0, ok := t.multMatrix(0); ok {
		t.stack.composeTop(&m0)
	}

	if err := t.static.AppendViewport(node.vp); err != nil {
		return err
	}
	if err := t.dynamic.AppendViewport(node.vp); err != nil {
		return err
	}

	t.listDepth = 0
	return t.descendNodePtr(node.nodeAddr)
}

// descendCullingNode reproduces DescendCullingNode: a 10-word culling
// node carrying an optional color-table-address update, an optional
// texture-offset-state update (stepping 1.5+), a translation or
// matrix-stack multiply, and up to two child links.
func (t *Traverser) descendCullingNode(addr uint32) error {
	if !t.stack.pushCopy() {
		return nil
	}
	defer t.stack.pop()

	node, ok := readCullingWords(t.regions, addr, 10)
	if !ok {
		return nil
	}

	o := t.regions.Stepping.WordOffset()

	if node[0]&0x04 != 0 {
		t.colorTableAddr = (((node[3-o] >> 19) << 0) |
			((node[7-o] >> 28) << 13) |
			((node[8-o] >> 25) << 17)) & 0x000FFFFF
	}

	node1Ptr := node[7-o]
	node2Ptr := node[8-o]
	matrixOffset := node[3-o] & 0xFFF
	x := math.Float32frombits(node[4-o])
	y := math.Float32frombits(node[5-o])
	z := math.Float32frombits(node[6-o])

	oldTexOffset := t.texOffset
	defer func() { t.texOffset = oldTexOffset }()
	if t.regions.Stepping.HasTextureOffset() && node[2]&0x8000 != 0 {
		t.texOffset = newTextureOffset(node[2])
	}

	if node[0]&0x10 != 0 {
		tr := translation(x, y, z)
		t.stack.composeTop(&tr)
	} else if matrixOffset != 0 {
		if nm, ok := t.multMatrix(matrixOffset); ok {
			t.stack.composeTop(&nm)
		}
	}

	if node[0]&0x08 != 0 { // 4-element LOD table
		if lod, ok := readCullingWords(t.regions, node1Ptr, 1); ok {
			target := lod[0] & 0xFFFFFF
			var err error
			if node[3-o]&0x20000000 != 0 {
				err = t.descendCullingNode(target)
			} else {
				err = t.drawModel(target)
			}
			if err != nil {
				return err
			}
		}
	} else if err := t.descendNodePtr(node1Ptr); err != nil {
		return err
	}

	if node[0]&0x07 != 0x06 { // second link is invalid only when these bits are 0x06
		if err := t.descendNodePtr(node2Ptr); err != nil {
			return err
		}
	}
	return nil
}

// descendPointerList reproduces DescendPointerList's two-pass scan: a
// forward scan to find the list's extent, then a backward descent
// into each pointer so that list order is preserved in the display
// lists despite the tail-first visit (spec.md §4.4).
func (t *Traverser) descendPointerList(addr uint32) error {
	if t.listDepth > 2 {
		return nil
	}

	listEnd := 0
	for {
		w, err := t.regions.CullingWord(addr + uint32(listEnd))
		if err != nil {
			listEnd--
			break
		}
		if w&0x02000000 != 0 {
			break
		}
		if w == 0 || (w>>24) != 0 {
			listEnd--
			break
		}
		listEnd++
	}

	t.listDepth++
	defer func() { t.listDepth-- }()

	for listEnd >= 0 {
		w, err := t.regions.CullingWord(addr + uint32(listEnd))
		if err != nil {
			listEnd--
			continue
		}
		if w&0x01000000 == 0 {
			nodeAddr := w & 0x00FFFFFF
			if nodeAddr != 0 && nodeAddr != 0x800800 {
				if err := t.descendCullingNode(nodeAddr); err != nil {
					return err
				}
			}
		}
		listEnd--
	}
	return nil
}

// descendNodePtr reproduces DescendNodePtr: the pointer type encoded
// in the address's upper 8 bits selects a culling node, a model, or a
// pointer list.
func (t *Traverser) descendNodePtr(nodeAddr uint32) error {
	if nodeAddr&0x00FFFFFF == 0 {
		return nil
	}
	switch (nodeAddr >> 24) & 0xFF {
	case 0x00:
		return t.descendCullingNode(nodeAddr & 0xFFFFFF)
	case 0x01, 0x03:
		return t.drawModel(nodeAddr & 0xFFFFFF)
	case 0x04:
		return t.descendPointerList(nodeAddr & 0xFFFFFF)
	default:
		return nil
	}
}

// drawModel reproduces DrawModel: it looks the model up in the
// appropriate cache (falling back to the dynamic cache for a VROM
// address that turned out dynamic), decodes and caches it on a miss
// (retrying once after draining and clearing both caches on
// overflow), decodes its texture references if static, and appends it
// to both per-state display lists with the winding this instance's
// model-view matrix requires.
func (t *Traverser) drawModel(modelAddr uint32) error {
	if modelAddr == virtualOn2SlowdownAddr {
		return nil
	}

	isVROM := modelAddr >= mem.ModelBoundary
	cache := t.dynamic
	if isVROM {
		cache = t.static
	}

	lutIdx := modelAddr & 0xFFFFFF
	m, ok := cache.Lookup(lutIdx, t.texOffset.State)
	if !ok && isVROM {
		if m2, ok2 := t.dynamic.Lookup(lutIdx, t.texOffset.State); ok2 {
			m, ok, cache = m2, true, t.dynamic
		}
	}

	if !ok {
		dynamic := !isVROM
		if isVROM && isDynamicModel(t.regions, modelAddr) {
			cache, dynamic = t.dynamic, true
		}

		t.dec.vertexFactor = t.regions.Stepping.VertexFactor()
		t.dec.colorTable = t.colorTableAddr
		t.dec.texOffset = t.texOffset

		newM, err := t.dec.cacheModel(cache, modelAddr, dynamic)
		if err != nil {
			if t.OverflowDrain != nil {
				t.OverflowDrain()
			}
			t.static.Clear()
			t.dynamic.Clear()

			newM, err = t.dec.cacheModel(cache, modelAddr, dynamic)
			if err != nil {
				return &ErrUnableToCache{Addr: modelAddr}
			}
		}
		m = newM
	}

	if !cache.Dynamic() {
		m.TexRefs.DecodeAll(t.tex)
	}

	top := *t.stack.top()
	winding := frontFace(top, t.dec.m13)
	err := cache.AppendModel(m, modelcache.Opaque, top, winding)
	if err == nil {
		err = cache.AppendModel(m, modelcache.Alpha, top, winding)
	}
	if err == modelcache.ErrListFull {
		t.dec.logOnce("scenegraph: display list full, model dropped")
		return nil
	}
	return err
}
