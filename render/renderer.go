package render

import (
	"fmt"
	"image"
	"os"

	"github.com/m3core/real3d/driver"
	"github.com/m3core/real3d/mem"
	"github.com/m3core/real3d/modelcache"
	"github.com/m3core/real3d/scenegraph"
	"github.com/m3core/real3d/texture"
	"github.com/m3core/real3d/tilegen"
)

// Model-cache sizing. These are not spec-mandated constants (spec.md
// §4.3 leaves capacity a construction parameter); the values below
// are chosen generously relative to §2's per-component line-share
// estimate and are what New uses unless a future Config field
// overrides them.
const (
	staticVBOVerts     = 1 << 18
	staticScratchVerts = 4096
	staticMaxModels    = 4096
	staticLUTSize      = 1 << 16
	staticDLCapacity   = 1 << 15

	dynamicVBOVerts     = 1 << 16
	dynamicScratchVerts = 4096
	dynamicMaxModels    = 1024
	dynamicLUTSize      = 1 << 14
	dynamicDLCapacity   = 1 << 13
)

// referenceWidth/referenceHeight mirror scenegraph's reference screen
// constants; Init expresses its ratios against them (spec.md §6).
const (
	referenceWidth  = 496
	referenceHeight = 384
)

// TileSink receives the tile generator's rasterised layers in the
// draw order RenderFrame establishes them (spec.md §2's "external
// compositor stacks them above/below the 3D output"; §8 scenario 6).
// Compositing the returned image onto a final framebuffer, and
// owning that framebuffer's presentation, is the external caller's
// concern (spec.md §1).
type TileSink interface {
	DrawTileLayer(layer int, img *image.RGBA)
}

// Renderer owns every cache, manager, and GPU resource the Real3D
// core needs and exposes the begin_frame/render_frame/end_frame
// lifecycle of spec.md §6 as methods, reformulating the original's
// implicit process-wide state into an explicit receiver (spec.md §9
// "Global mutable state").
type Renderer struct {
	gpu driver.GPU
	cfg Config

	regions mem.Regions
	tex     *texture.Manager
	static  *modelcache.Cache
	dynamic *modelcache.Cache
	trav    *scenegraph.Traverser
	tile    *tilegen.Generator

	tileSink TileSink

	colorImg, dsImg   driver.Image
	ownsColor         bool
	colorView, dsView driver.ImageView

	colorClearPass driver.RenderPass
	mainPass       driver.RenderPass
	fbColorClear   driver.Framebuf
	fbMain         driver.Framebuf

	vertCode, fragCode driver.ShaderCode
	pipes              *pipelineSet
	descHeap           driver.DescHeap
	descTable          driver.DescTable

	cb      driver.CmdBuffer
	drainer *cmdDrainer

	initialized bool
	totalW      int
	totalH      int
}

// New constructs a Renderer with its caches, texture manager and
// scene traverser, but performs no GPU-resource negotiation yet;
// call Init before the first BeginFrame.
func New(gpu driver.GPU, cfg Config) (*Renderer, error) {
	r := &Renderer{gpu: gpu, cfg: defaultConfig(cfg)}

	var err error
	r.static, err = modelcache.New(gpu, false, staticVBOVerts, staticScratchVerts, staticMaxModels, staticLUTSize, staticDLCapacity)
	if err != nil {
		return nil, fmt.Errorf("%w: static model cache: %v", ErrInitNoMemory, err)
	}
	r.dynamic, err = modelcache.New(gpu, true, dynamicVBOVerts, dynamicScratchVerts, dynamicMaxModels, dynamicLUTSize, dynamicDLCapacity)
	if err != nil {
		return nil, fmt.Errorf("%w: dynamic model cache: %v", ErrInitNoMemory, err)
	}

	r.tex = texture.NewManager(gpu, &r.regions)
	r.tile = tilegen.NewGenerator()
	r.trav = scenegraph.NewTraverser(&r.regions, r.tex, r.static, r.dynamic, Logger())
	r.trav.OverflowDrain = r.drainAccumulated

	return r, nil
}

// AttachMemory borrows the host's memory regions (spec.md §6
// `attach_memory`). Called once, before Init.
func (r *Renderer) AttachMemory(cullingLo, cullingHi, polygonRAM []uint32, vrom []uint32, textureRAM []uint16) {
	r.regions.Attach(cullingLo, cullingHi, polygonRAM, vrom, textureRAM)
}

// SetStepping installs the hardware stepping code (spec.md §6
// `set_stepping`). Returns false if code is not one of the four
// known steppings, leaving the previous setting in place.
func (r *Renderer) SetStepping(code mem.Stepping) bool { return r.regions.SetStepping(code) }

// SetTileSink installs the external compositor collaborator that
// RenderFrame forwards rasterised tile layers to.
func (r *Renderer) SetTileSink(sink TileSink) { r.tileSink = sink }

// SetIRQAcknowledger forwards to the tile generator's own narrow
// collaborator interface (spec.md §4.5 register 0x10).
func (r *Renderer) SetIRQAcknowledger(a tilegen.IRQAcknowledger) { r.tile.SetIRQAcknowledger(a) }

// Tile exposes the tile generator for the host's VRAM/register bus
// dispatch (spec.md §4.6: memory-mapped I/O routing is the external
// bus's concern, not this module's).
func (r *Renderer) Tile() *tilegen.Generator { return r.tile }

// Init establishes the viewport scaling ratios against the reference
// 496x384 screen and negotiates every GPU resource the renderer needs
// (texture maps, render targets, shaders, pipelines). aaTarget, when
// non-nil, redirects the color attachment to a caller-owned image
// (spec.md §6 `init`); Init does not take ownership of it.
func (r *Renderer) Init(xOffset, yOffset, width, height, totalWidth, totalHeight int, aaTarget driver.Image) error {
	if r.initialized {
		return fmt.Errorf("render: Init called twice")
	}

	xRatio := float32(width) / referenceWidth
	yRatio := float32(height) / referenceHeight
	r.trav.SetScreenMapping(float32(xOffset), float32(yOffset), xRatio, yRatio, float32(totalWidth), r.cfg.WideScreen)

	if err := r.tex.ResolveLayout(r.cfg.MaxTexMaps, r.cfg.MaxTexMapExtent, r.gpu.Limits()); err != nil {
		return fmt.Errorf("%w: %v", ErrInitNoTextureMap, err)
	}

	r.totalW, r.totalH = totalWidth, totalHeight

	if aaTarget != nil {
		r.colorImg = aaTarget
		r.ownsColor = false
	} else {
		img, err := r.gpu.NewImage(driver.RGBA8un, driver.Dim3D{Width: totalWidth, Height: totalHeight, Depth: 1}, 1, 1, 1, driver.URenderTarget|driver.UShaderSample)
		if err != nil {
			return fmt.Errorf("%w: color target: %v", ErrInitNoMemory, err)
		}
		r.colorImg = img
		r.ownsColor = true
	}
	dsImg, err := r.gpu.NewImage(driver.D24unS8ui, driver.Dim3D{Width: totalWidth, Height: totalHeight, Depth: 1}, 1, 1, 1, driver.URenderTarget)
	if err != nil {
		return fmt.Errorf("%w: depth/stencil target: %v", ErrInitNoMemory, err)
	}
	r.dsImg = dsImg

	r.colorView, err = r.colorImg.NewView(driver.IView2D, 0, 1, 0, 1)
	if err != nil {
		return fmt.Errorf("%w: color view: %v", ErrInitNoMemory, err)
	}
	r.dsView, err = r.dsImg.NewView(driver.IView2D, 0, 1, 0, 1)
	if err != nil {
		return fmt.Errorf("%w: depth/stencil view: %v", ErrInitNoMemory, err)
	}

	colorAtt := driver.Attachment{Format: driver.RGBA8un, Samples: 1, Store: [2]driver.StoreOp{driver.SStore, driver.SDontCare}}
	dsAtt := driver.Attachment{Format: driver.D24unS8ui, Samples: 1, Store: [2]driver.StoreOp{driver.SDontCare, driver.SDontCare}}
	sub := []driver.Subpass{{Color: []int{0}, DS: 1}}

	clearColorAtt := colorAtt
	clearColorAtt.Load = [2]driver.LoadOp{driver.LClear, driver.LDontCare}
	noclearDSAtt := dsAtt
	noclearDSAtt.Load = [2]driver.LoadOp{driver.LDontCare, driver.LDontCare}
	r.colorClearPass, err = r.gpu.NewRenderPass([]driver.Attachment{clearColorAtt, noclearDSAtt}, sub)
	if err != nil {
		return fmt.Errorf("%w: color-clear pass: %v", ErrInitNoMemory, err)
	}

	loadColorAtt := colorAtt
	loadColorAtt.Load = [2]driver.LoadOp{driver.LLoad, driver.LDontCare}
	clearDSAtt := dsAtt
	clearDSAtt.Load = [2]driver.LoadOp{driver.LClear, driver.LClear}
	r.mainPass, err = r.gpu.NewRenderPass([]driver.Attachment{loadColorAtt, clearDSAtt}, sub)
	if err != nil {
		return fmt.Errorf("%w: main pass: %v", ErrInitNoMemory, err)
	}

	views := []driver.ImageView{r.colorView, r.dsView}
	r.fbColorClear, err = r.colorClearPass.NewFB(views, totalWidth, totalHeight, 1)
	if err != nil {
		return fmt.Errorf("%w: color-clear framebuffer: %v", ErrInitNoMemory, err)
	}
	r.fbMain, err = r.mainPass.NewFB(views, totalWidth, totalHeight, 1)
	if err != nil {
		return fmt.Errorf("%w: main framebuffer: %v", ErrInitNoMemory, err)
	}

	vertSrc, err := shaderSource(r.cfg.VertexShader, defaultVertSrc)
	if err != nil {
		return fmt.Errorf("%w: vertex shader: %v", ErrInitNoShader, err)
	}
	fragDefault := defaultFragSingleSrc
	if r.cfg.MultiTexture {
		fragDefault = defaultFragMultiSrc
	}
	fragSrc, err := shaderSource(r.cfg.FragmentShader, fragDefault)
	if err != nil {
		return fmt.Errorf("%w: fragment shader: %v", ErrInitNoShader, err)
	}
	r.vertCode, err = r.gpu.NewShaderCode(vertSrc)
	if err != nil {
		return fmt.Errorf("%w: vertex shader code: %v", ErrInitNoShader, err)
	}
	r.fragCode, err = r.gpu.NewShaderCode(fragSrc)
	if err != nil {
		return fmt.Errorf("%w: fragment shader code: %v", ErrInitNoShader, err)
	}

	descs := []driver.Descriptor{
		{Type: driver.DConstant, Stages: driver.SVertex | driver.SFragment, Nr: 0, Len: 1},
	}
	r.descHeap, err = r.gpu.NewDescHeap(descs)
	if err != nil {
		return fmt.Errorf("%w: descriptor heap: %v", ErrInitNoMemory, err)
	}
	if err := r.descHeap.New(uniformSlots); err != nil {
		return fmt.Errorf("%w: descriptor heap copies: %v", ErrInitNoMemory, err)
	}
	r.descTable, err = r.gpu.NewDescTable([]driver.DescHeap{r.descHeap})
	if err != nil {
		return fmt.Errorf("%w: descriptor table: %v", ErrInitNoMemory, err)
	}

	input := []driver.VertexIn{{Format: driver.Float32x4, Stride: modelcache.VertexStride, Nr: 0, Name: "vertex"}}
	vs := driver.ShaderFunc{Code: r.vertCode, Name: "vsmain"}
	fs := driver.ShaderFunc{Code: r.fragCode, Name: "fsmain"}
	r.pipes, err = newPipelineSet(r.gpu, r.mainPass, r.descTable, vs, fs, input)
	if err != nil {
		return fmt.Errorf("%w: pipelines: %v", ErrInitNoShader, err)
	}

	r.cb, err = r.gpu.NewCmdBuffer()
	if err != nil {
		return fmt.Errorf("%w: command buffer: %v", ErrInitNoMemory, err)
	}
	r.drainer, err = newCmdDrainer(r.gpu, r.cb, r.pipes, r.descTable, r.descHeap)
	if err != nil {
		return fmt.Errorf("%w: uniform buffer: %v", ErrInitNoMemory, err)
	}

	r.initialized = true
	return nil
}

// shaderSource reads path if non-empty, otherwise returns fallback.
func shaderSource(path string, fallback []byte) ([]byte, error) {
	if path == "" {
		return fallback, nil
	}
	return os.ReadFile(path)
}

// UploadTextures invalidates the decoded-tile grid covering the
// given region (spec.md §6 `upload_textures`), on the same 32-texel
// grid Decode uses. level is accepted for interface symmetry with a
// real multi-level texture upload path; Real3D's texture RAM has no
// mip levels, so it is otherwise unused.
func (r *Renderer) UploadTextures(level, x, y, w, h uint32) {
	_ = level
	r.tex.Invalidate(x, y, w, h)
}

// BeginFrame clears per-frame error rate-limiting, binds the 3D
// program and textures (a no-op beyond selecting the GPU state this
// facade already owns), and clears the dynamic model cache (spec.md
// §2's per-frame control flow, first two steps).
func (r *Renderer) BeginFrame() error {
	if !r.initialized {
		return fmt.Errorf("render: BeginFrame called before Init")
	}
	r.trav.ResetFrameLog()
	r.dynamic.Clear()
	if r.cfg.Debug.ForceFlushModels {
		r.static.Clear()
	}
	return r.cb.Begin()
}

// drainAccumulated is wired as the scene traverser's OverflowDrain
// hook: when a model insertion overflows the vertex buffer or model
// array, the traverser asks the renderer to draw what has
// accumulated so far before both caches are cleared and the model
// retried (spec.md §4.3 "If an insertion triggers VBOFull, the
// renderer drains both caches at both states... and retries").
func (r *Renderer) drainAccumulated() {
	r.drainCaches()
}

func (r *Renderer) drainCaches() {
	for _, state := range [2]modelcache.State{modelcache.Opaque, modelcache.Alpha} {
		r.drainer.begin(state)
		r.drainer.bindVBO(r.static.VertexBuffer())
		r.static.Drain(state, r.drainer)
		r.drainer.bindVBO(r.dynamic.VertexBuffer())
		r.dynamic.Drain(state, r.drainer)
	}
}

// RenderFrame walks all four priority levels, interleaving depth/
// stencil clears between them, and the tile generator's four layers
// around the 3D pass (spec.md §2's per-frame control flow; §8
// scenario 6's draw-order expectations): one tile-generator Update
// rasterises all four layers up front, and layers 3 and 2 are handed
// to the sink first (they sit behind the 3D output), then every
// priority 0..3 clears depth/stencil, clears its display lists, walks
// its viewport chain, and drains both caches opaque-then-alpha with
// the static (VROM) cache draining before the dynamic (polygon RAM)
// cache at each state; finally tile layers 1 and 0 are handed off
// last (they sit in front).
func (r *Renderer) RenderFrame() error {
	if !r.initialized {
		return fmt.Errorf("render: RenderFrame called before Init")
	}

	r.cb.BeginPass(r.colorClearPass, r.fbColorClear, []driver.ClearValue{
		{Color: [4]float32{0, 0, 0, 1}},
		{Depth: 1, Stencil: 0},
	})
	r.cb.EndPass()

	r.tile.Update()
	if r.tileSink != nil {
		r.tileSink.DrawTileLayer(3, r.tile.Layer(3))
		r.tileSink.DrawTileLayer(2, r.tile.Layer(2))
	}

	for pri := 0; pri < 4; pri++ {
		r.cb.BeginPass(r.mainPass, r.fbMain, []driver.ClearValue{
			{Color: [4]float32{0, 0, 0, 1}},
			{Depth: 1, Stencil: 0},
		})

		r.static.ClearDisplayList()
		r.dynamic.ClearDisplayList()

		if err := r.trav.RenderPriority(pri); err != nil {
			r.cb.EndPass()
			return err
		}

		r.drainCaches()
		r.cb.EndPass()
	}

	if r.tileSink != nil {
		r.tileSink.DrawTileLayer(1, r.tile.Layer(1))
		r.tileSink.DrawTileLayer(0, r.tile.Layer(0))
	}

	return nil
}

// EndFrame submits the recorded command buffer and restores renderer
// state for the next BeginFrame (spec.md §2's final control-flow
// step).
func (r *Renderer) EndFrame() error {
	if err := r.cb.End(); err != nil {
		return err
	}
	ch := make(chan error, 1)
	r.gpu.Commit([]driver.CmdBuffer{r.cb}, ch)
	return <-ch
}

// Destroy releases every GPU resource Init allocated. It does not
// destroy a caller-supplied aaTarget image.
func (r *Renderer) Destroy() {
	if !r.initialized {
		return
	}
	r.drainer.Destroy()
	r.cb.Destroy()
	r.pipes.Destroy()
	r.descTable.Destroy()
	r.descHeap.Destroy()
	r.fragCode.Destroy()
	r.vertCode.Destroy()
	r.fbMain.Destroy()
	r.fbColorClear.Destroy()
	r.mainPass.Destroy()
	r.colorClearPass.Destroy()
	r.dsView.Destroy()
	r.colorView.Destroy()
	r.dsImg.Destroy()
	if r.ownsColor {
		r.colorImg.Destroy()
	}
	r.initialized = false
}
