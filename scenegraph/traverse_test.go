package scenegraph

import "testing"

// TestPointerListDepthCap exercises spec.md §4.4's pointer-list depth
// cap of 3: once the traverser's running depth has already reached
// the cap, a further descendPointerList call must bail immediately
// without incrementing past it or touching memory.
func TestPointerListDepthCap(t *testing.T) {
	regions := newRegions()
	tr := NewTraverser(regions, nil, nil, nil, nil)

	tr.listDepth = maxListDepth
	if err := tr.descendPointerList(0); err != nil {
		t.Fatalf("descendPointerList at the cap: %v", err)
	}
	if tr.listDepth != maxListDepth {
		t.Fatalf("listDepth: have %d, want %d (unchanged)", tr.listDepth, maxListDepth)
	}
}

// TestPointerListDepthBelowCapAdvances confirms the counter does
// advance (and unwind back) for depths under the cap, so the cap test
// above isn't vacuously true for a guard that never increments.
func TestPointerListDepthBelowCapAdvances(t *testing.T) {
	regions := newRegions()
	tr := NewTraverser(regions, nil, nil, nil, nil)

	// An empty list (first word already bit-0x02000000-terminated)
	// completes the forward scan immediately and descends nothing,
	// but still increments/decrements listDepth around the scan.
	regions.CullingLo[0] = 0x02000000
	if err := tr.descendPointerList(0); err != nil {
		t.Fatalf("descendPointerList: %v", err)
	}
	if tr.listDepth != 0 {
		t.Fatalf("listDepth after return: have %d, want 0 (restored by defer)", tr.listDepth)
	}
}
