package scenegraph

import (
	"github.com/m3core/real3d/linear"
	"github.com/m3core/real3d/modelcache"
)

// frontFace reproduces Models.cpp's AppendDisplayList winding-flip
// detection: a model-view matrix can mirror an axis without rotating
// the polygon normal, which flips the winding OpenGL-style culling
// would compute from screen-space edges while leaving the Real3D
// normal-based culling result unaffected. A fictitious triangle with
// edges X=(1,0,0), Y=(0,1,0) and normal Z=(0,0,-m13) (m13 being the
// coordinate matrix's raw component, matching InsertPolygon's CW
// storage-order correction) is carried through modelView; comparing
// the transformed normal against the edges' cross product tells which
// front-face convention to draw this instance with.
func frontFace(modelView linear.M4, m13 float32) modelcache.Winding {
	var mv3, inv3, invT3 linear.M3
	mv3.Upper3(&modelView)
	inv3.Invert(&mv3)
	invT3.Transpose(&inv3)

	x := linear.V3{1, 0, 0}
	y := linear.V3{0, 1, 0}
	z := linear.V3{0, 0, -1 * m13}

	var xT, yT, zT, p linear.V3
	xT.Mul(&mv3, &x)
	yT.Mul(&mv3, &y)
	zT.Mul(&invT3, &z)
	p.Cross(&xT, &yT)

	s := zT[2] * p[2]
	switch {
	case s < 0:
		return modelcache.CCW
	case s > 0:
		return modelcache.CW
	default:
		return modelcache.NoCull
	}
}
