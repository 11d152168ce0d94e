package render

// Config holds the renderer's recognized configuration options
// (spec.md §6 "Configuration options recognized"). The zero value is
// valid: empty VertexShader/FragmentShader select the built-in
// shader sources, and every other field has a zero-value default
// documented below.
type Config struct {
	// WideScreen expands a whole-reference-screen viewport's X extent
	// to fill the display while preserving its Y field of view,
	// rather than letterboxing (spec.md §6, §9 "WideScreen
	// letterbox/pillarbox math").
	WideScreen bool

	// MultiTexture selects the multi-sheet fragment shader variant
	// (samples from whichever of the up-to-nine texture maps a
	// polygon's sheet index names) over the single-sheet variant
	// (always samples map 0; valid only when ResolveLayout collapsed
	// every format onto one map).
	MultiTexture bool

	// MaxTexMaps bounds the number of physical texture maps
	// resolve_layout may allocate (1..9). Zero defaults to 9.
	MaxTexMaps int

	// MaxTexMapExtent bounds a physical map's side, in multiples of
	// 2048 texels. Zero defaults to 1 (a single 2048x2048 map per
	// logical sheet slot).
	MaxTexMapExtent int

	// VertexShader/FragmentShader override the path to external
	// shader source; empty uses the built-in default for the
	// selected MultiTexture variant.
	VertexShader   string
	FragmentShader string

	Debug DebugConfig
}

// DebugConfig holds the debugging instrumentation options of
// spec.md §6. None of these gate correctness; they exist to let a
// host UI highlight specific polygon-header or culling-node indices
// while stepping through a frame, and to force every model to
// re-decode every frame for cache-churn testing.
type DebugConfig struct {
	HighlightPolyHeaderIdx   int
	HighlightPolyHeaderMask  uint32
	HighlightCullingNodeIdx  int
	HighlightCullingNodeMask uint32
	ForceFlushModels         bool
}

// defaultConfig returns the Config New uses when the caller passes
// the zero value.
func defaultConfig(cfg Config) Config {
	if cfg.MaxTexMaps <= 0 {
		cfg.MaxTexMaps = 9
	}
	if cfg.MaxTexMapExtent <= 0 {
		cfg.MaxTexMapExtent = 1
	}
	return cfg
}
