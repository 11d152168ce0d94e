package render

import (
	"github.com/m3core/real3d/driver"
	"github.com/m3core/real3d/modelcache"
)

// pipelineKey selects one of the fixed-function pipeline variants
// the Display-List Renderer needs: one per polygon state (opaque
// disables blending and writes depth; alpha enables blending and
// leaves depth untouched), per winding mode, and per stencil usage
// (spec.md §3 "winding mode", "useStencil flag").
type pipelineKey struct {
	state      modelcache.State
	winding    modelcache.Winding
	useStencil bool
}

// pipelineSet owns every GraphState-derived Pipeline a frame might
// bind, built once at Init from the render pass and shader functions.
type pipelineSet struct {
	byKey map[pipelineKey]driver.Pipeline
}

func rasterFor(winding modelcache.Winding) driver.RasterState {
	switch winding {
	case modelcache.CW:
		return driver.RasterState{Clockwise: true, Cull: driver.CBack, Fill: driver.FFill}
	case modelcache.CCW:
		return driver.RasterState{Clockwise: false, Cull: driver.CBack, Fill: driver.FFill}
	default: // modelcache.NoCull
		return driver.RasterState{Cull: driver.CNone, Fill: driver.FFill}
	}
}

// stencilState returns the DSState stencil block applied when a
// model's UseStencil flag is set: every layered/shadow-like polygon
// increments the stencil buffer so the external compositor can
// recognize overdrawn stipple layers (GLOSSARY "Stencil flag").
func stencilState(useStencil bool) (bool, driver.StencilT) {
	if !useStencil {
		return false, driver.StencilT{}
	}
	return true, driver.StencilT{
		DSFail:    [2]driver.StencilOp{driver.SKeep, driver.SKeep},
		Pass:      driver.SIncClamp,
		ReadMask:  0xFF,
		WriteMask: 0xFF,
		Cmp:       driver.CAlways,
	}
}

// newPipelineSet builds every pipeline variant up front so RenderFrame
// never allocates a GPU pipeline mid-frame.
func newPipelineSet(gpu driver.GPU, pass driver.RenderPass, desc driver.DescTable, vs, fs driver.ShaderFunc, input []driver.VertexIn) (*pipelineSet, error) {
	ps := &pipelineSet{byKey: make(map[pipelineKey]driver.Pipeline)}

	states := [2]modelcache.State{modelcache.Opaque, modelcache.Alpha}
	windings := [3]modelcache.Winding{modelcache.CW, modelcache.CCW, modelcache.NoCull}
	stencils := [2]bool{false, true}

	for _, state := range states {
		for _, winding := range windings {
			for _, stencil := range stencils {
				stencilOn, stencilT := stencilState(stencil)
				blend := driver.BlendState{Color: []driver.ColorBlend{{
					Blend:     state == modelcache.Alpha,
					WriteMask: driver.CAll,
					Op:        [2]driver.BlendOp{driver.BAdd, driver.BAdd},
					SrcFac:    [2]driver.BlendFac{driver.BSrcAlpha, driver.BOne},
					DstFac:    [2]driver.BlendFac{driver.BInvSrcAlpha, driver.BZero},
				}}}
				gs := driver.GraphState{
					VertFunc: vs,
					FragFunc: fs,
					Desc:     desc,
					Input:    input,
					Topology: driver.TTriangle,
					Raster:   rasterFor(winding),
					Samples:  1,
					DS: driver.DSState{
						DepthTest:   true,
						DepthWrite:  state == modelcache.Opaque,
						DepthCmp:    driver.CLessEqual,
						StencilTest: stencilOn,
						Front:       stencilT,
						Back:        stencilT,
					},
					Blend:   blend,
					Pass:    pass,
					Subpass: 0,
				}
				pl, err := gpu.NewPipeline(&gs)
				if err != nil {
					ps.Destroy()
					return nil, err
				}
				ps.byKey[pipelineKey{state, winding, stencil}] = pl
			}
		}
	}
	return ps, nil
}

func (ps *pipelineSet) get(state modelcache.State, winding modelcache.Winding, useStencil bool) driver.Pipeline {
	return ps.byKey[pipelineKey{state, winding, useStencil}]
}

func (ps *pipelineSet) Destroy() {
	for _, pl := range ps.byKey {
		pl.Destroy()
	}
	ps.byKey = nil
}
