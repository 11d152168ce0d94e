package scenegraph

import (
	"testing"

	"github.com/m3core/real3d/linear"
)

// TestMatrixStackBoundedDepth exercises spec.md §3/§4.4's traversal
// safety clamp: push must stop succeeding once the stack reaches
// maxStackDepth, never growing past it.
func TestMatrixStackBoundedDepth(t *testing.T) {
	var s matrixStack
	var base linear.M4
	base.I()
	s.reset(base)

	var id linear.M4
	id.I()

	pushed := 0
	for i := 0; i < maxStackDepth+64; i++ {
		if !s.push(&id) {
			break
		}
		pushed++
	}
	if pushed != maxStackDepth {
		t.Fatalf("pushed: have %d, want %d (maxStackDepth)", pushed, maxStackDepth)
	}
	if s.push(&id) {
		t.Fatal("push past maxStackDepth must keep failing")
	}

	for i := 0; i < pushed; i++ {
		s.pop()
	}
	if len(s.mats) != 1 {
		t.Fatalf("stack length after unwinding every push: have %d, want 1 (base only)", len(s.mats))
	}
	if !s.push(&id) {
		t.Fatal("push must succeed again once the stack has been unwound")
	}
}

// TestPopNeverDropsBase ensures pop is a no-op once only the base
// matrix remains, matching the traversal invariant that a coordinate-
// system base is always present.
func TestPopNeverDropsBase(t *testing.T) {
	var s matrixStack
	var base linear.M4
	base.I()
	s.reset(base)

	s.pop()
	s.pop()
	if len(s.mats) != 1 {
		t.Fatalf("stack length: have %d, want 1", len(s.mats))
	}
}
