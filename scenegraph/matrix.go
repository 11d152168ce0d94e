package scenegraph

import (
	"github.com/m3core/real3d/linear"
	"github.com/m3core/real3d/mem"
)

// maxStackDepth is the safety clamp of spec.md §3/§4.4: traversal
// depth never exceeds 576.
const maxStackDepth = 576

// maxListDepth bounds pointer-list nesting (spec.md §4.4).
const maxListDepth = 3

// matrixStack is the scene traversal's push/pop matrix stack. It
// always carries at least the coordinate-system base matrix
// installed by reset.
type matrixStack struct {
	mats  []linear.M4
	depth int
}

func (s *matrixStack) reset(base linear.M4) {
	s.mats = append(s.mats[:0], base)
	s.depth = 0
}

func (s *matrixStack) top() *linear.M4 { return &s.mats[len(s.mats)-1] }

// push multiplies the current top by n (current = current * n) and
// pushes the result, matching glPushMatrix + glMultMatrixf.
func (s *matrixStack) push(n *linear.M4) bool {
	if s.depth >= maxStackDepth {
		return false
	}
	var next linear.M4
	next.Mul(s.top(), n)
	s.mats = append(s.mats, next)
	s.depth++
	return true
}

// pushCopy duplicates the top of stack without composing, matching a
// bare glPushMatrix with no intervening transform.
func (s *matrixStack) pushCopy() bool {
	if s.depth >= maxStackDepth {
		return false
	}
	s.mats = append(s.mats, *s.top())
	s.depth++
	return true
}

// composeTop multiplies the current top of stack by n in place,
// without pushing a new level, matching a bare glMultMatrixf call
// (MultMatrix, glTranslatef) issued without an intervening
// glPushMatrix.
func (s *matrixStack) composeTop(n *linear.M4) {
	var next linear.M4
	next.Mul(s.top(), n)
	*s.top() = next
}

func (s *matrixStack) pop() {
	if len(s.mats) > 1 {
		s.mats = s.mats[:len(s.mats)-1]
		s.depth--
	}
}

// translation builds the affine translation matrix glTranslatef(x,y,z)
// would load: identity except for the translation column.
func translation(x, y, z float32) linear.M4 {
	var m linear.M4
	m.I()
	m[3] = linear.V4{x, y, z, 1}
	return m
}

// nodeMatrix builds the column-major matrix MultMatrix(matrixOffset)
// reads from twelve floats at matrixBase+12*index, per spec.md §4.4
// ("MultMatrix by index reads twelve floats ... and composes them
// with the current top of stack"). src holds those twelve floats in
// source order (x,y,z translation first, then the 3x3 rotation rows).
func nodeMatrix(src []float32) linear.M4 {
	return linear.M4{
		{src[3], src[6], src[9], 0},
		{src[4], src[7], src[10], 0},
		{src[5], src[8], src[11], 0},
		{src[0], src[1], src[2], 1},
	}
}

// coordBaseMatrix builds the fixed "weird matrix" that reorders the
// hardware's (Z,X,Y) convention into view-space (-Y,-Z), scaled per
// stepping (spec.md §4.4 "A coordinate-system matrix is always loaded
// first as the base").
func coordBaseMatrix(step mem.Stepping) linear.M4 {
	s := step.CoordScale()
	return linear.M4{
		{0, 0, -s, 0},
		{s, 0, 0, 0},
		{0, -s, 0, 0},
		{0, 0, 0, 1},
	}
}

// weirdMatrix reports whether the coordinate matrix's three
// diagonal-like raw components (matrixBasePtr[5], [6], [10] in the
// original) have magnitudes outside [0.95, 1.05], the safeguard of
// spec.md §4.4 that rejects viewports built against uninitialised
// scene data. src is the twelve raw floats of matrix index 0, read
// directly (not yet transcribed into column-major form).
func weirdMatrix(src []float32) bool {
	check := func(v float32) bool {
		v *= v
		return v > 1.05*1.05 || v < 0.95*0.95
	}
	return check(src[6]) || check(src[10]) || check(src[5])
}

// m13 returns the coordinate matrix's "m13" component (matrixBasePtr[5]
// in the original), used by polygon winding to correct for games whose
// base coordinate system is not a standard -Z-forward convention.
func m13(src []float32) float32 { return src[5] }
