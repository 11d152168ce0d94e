package render

// Default shader sources, used when Config.VertexShader/FragmentShader
// are empty. The vertex format packs position, normal, color,
// translucence/lighting/specular/fog terms, UV and per-polygon texture
// state into a single 26-float vertex (modelcache.Vertex); these
// sources describe, in GLSL, how a real backend's compiler would read
// that layout. driver/soft never compiles shader code - it stores the
// bytes opaquely - so these only matter for a driver that actually
// executes them.
var (
	defaultVertSrc = []byte(`#version 450
layout(location = 0) in vec4 vertex0;
layout(location = 1) in vec4 vertex1;
layout(location = 2) in vec4 vertex2;
layout(location = 3) in vec4 vertex3;
layout(location = 4) in vec4 vertex4;
layout(location = 5) in vec4 vertex5;
layout(location = 6) in vec2 vertex6;

layout(set = 0, binding = 0) uniform Uniforms {
	mat4 projection;
	vec4 sun;
	vec4 ambientFogDensityStart;
	vec4 reserved[2];
	mat4 modelView;
} u;

layout(location = 0) out vec3 outColor;
layout(location = 1) out vec2 outUV;

void vsmain() {
	vec4 pos = vec4(vertex0.xyz, 1.0);
	gl_Position = u.projection * u.modelView * pos;
	outColor = vec3(vertex1.zw, vertex2.x);
	outUV = vertex3.zw;
}
`)

	defaultFragSingleSrc = []byte(`#version 450
layout(set = 0, binding = 1) uniform texture2D texMap0;
layout(set = 0, binding = 2) uniform sampler texSamp;

layout(location = 0) in vec3 inColor;
layout(location = 1) in vec2 inUV;
layout(location = 0) out vec4 outColor;

void fsmain() {
	vec4 tex = texture(sampler2D(texMap0, texSamp), inUV);
	outColor = tex * vec4(inColor, 1.0);
}
`)

	defaultFragMultiSrc = []byte(`#version 450
layout(set = 0, binding = 1) uniform texture2D texMaps[9];
layout(set = 0, binding = 2) uniform sampler texSamp;

layout(location = 0) in vec3 inColor;
layout(location = 1) in vec2 inUV;
layout(location = 2) flat in int inSheet;
layout(location = 0) out vec4 outColor;

void fsmain() {
	vec4 tex = texture(sampler2D(texMaps[inSheet], texSamp), inUV);
	outColor = tex * vec4(inColor, 1.0);
}
`)
)
