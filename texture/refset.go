// Package texture owns the decoded texture sheets and the per-model
// texture-reference sets that feed them.
package texture

import "errors"

// ErrOutOfMemory names the failure of hash-set promotion to grow.
// Add reports that case by returning false rather than this error;
// callers fall back to immediate-decode behavior for the reference
// that triggered it.
var ErrOutOfMemory = errors.New("texture: out of memory promoting reference set")

// arraySize is the inline-array capacity before a Set promotes to a
// hash set.
const arraySize = 12

// Ref is a packed texture reference: 3-bit format, 6-bit x, y, w, h,
// all on a 32-texel grid (so only the top bits of each field carry
// information; bits 0x1F of x/y/w/h are always zero).
type Ref uint32

// Pack builds a Ref from a format and a position/size already
// expressed in texels. x, y, w, h are truncated to the 32-texel grid.
func Pack(fmt, x, y, w, h uint32) Ref {
	return Ref((fmt & 7) << 24 |
		(x&0x7E0)<<13 |
		(y&0x7E0)<<7 |
		(w&0x7E0)<<1 |
		(h&0x7E0)>>5)
}

// Unpack reverses Pack, returning fmt and the position/size in texels.
func (r Ref) Unpack() (fmt, x, y, w, h uint32) {
	u := uint32(r)
	fmt = u >> 24
	x = (u >> 13) & 0x7E0
	y = (u >> 7) & 0x7E0
	w = (u >> 1) & 0x7E0
	h = (u << 5) & 0x7E0
	return
}

type hashEntry struct {
	ref  Ref
	next *hashEntry
}

// RefSet deduplicates the texture references a cached model samples
// at draw time. It starts as a small inline array and promotes to a
// chained hash set once it overflows, following the original's
// array-then-hashset strategy so that the overwhelmingly common case
// (a handful of distinct textures per model) never allocates.
type RefSet struct {
	size  int
	array [arraySize]Ref

	hashCap     int
	hashEntries []*hashEntry
}

// Size returns the number of unique references held.
func (s *RefSet) Size() int { return s.size }

// Clear removes every reference and returns the set to inline mode.
func (s *RefSet) Clear() {
	s.size = 0
	s.hashCap = 0
	s.hashEntries = nil
}

func (s *RefSet) hashed() bool { return s.size > arraySize }

// Contains reports whether ref is present.
func (s *RefSet) Contains(ref Ref) bool {
	if !s.hashed() {
		for i := 0; i < s.size; i++ {
			if s.array[i] == ref {
				return true
			}
		}
		return false
	}
	return s.hashContains(ref)
}

// Add inserts ref if not already present. It returns false only when
// hash promotion fails to allocate, in which case the caller should
// decode the texture immediately instead of deferring it.
func (s *RefSet) Add(ref Ref) bool {
	if !s.hashed() {
		for i := 0; i < s.size; i++ {
			if s.array[i] == ref {
				return true
			}
		}
		if s.size == arraySize {
			if !s.updateHashCap(47) {
				return false
			}
			s.size = 0
			for i := 0; i < arraySize; i++ {
				s.addToHash(s.array[i])
			}
			s.addToHash(ref)
			return true
		}
		s.array[s.size] = ref
		s.size++
		return true
	}
	return s.addToHash(ref)
}

// Remove deletes ref, demoting back to inline mode once the hash set
// shrinks to the inline capacity.
func (s *RefSet) Remove(ref Ref) bool {
	if !s.hashed() {
		for i := 0; i < s.size; i++ {
			if s.array[i] == ref {
				copy(s.array[i:s.size-1], s.array[i+1:s.size])
				s.size--
				return true
			}
		}
		return false
	}
	removed := s.removeFromHash(ref)
	if s.size == arraySize {
		j := 0
		for _, head := range s.hashEntries {
			for e := head; e != nil; e = e.next {
				s.array[j] = e.ref
				j++
			}
		}
		s.hashCap = 0
		s.hashEntries = nil
	}
	return removed
}

// Decoder is the subset of the Texture Sheet Manager that DecodeAll
// needs.
type Decoder interface {
	Decode(fmt, x, y, w, h uint32) error
}

// DecodeAll invokes d.Decode for every held reference.
func (s *RefSet) DecodeAll(d Decoder) {
	if !s.hashed() {
		for i := 0; i < s.size; i++ {
			fmt, x, y, w, h := s.array[i].Unpack()
			d.Decode(fmt, x, y, w, h)
		}
		return
	}
	for _, head := range s.hashEntries {
		for e := head; e != nil; e = e.next {
			fmt, x, y, w, h := e.ref.Unpack()
			d.Decode(fmt, x, y, w, h)
		}
	}
}

func (s *RefSet) updateHashCap(capacity int) bool {
	old := s.hashEntries
	s.hashCap = capacity
	s.hashEntries = make([]*hashEntry, capacity)
	for _, head := range old {
		for e := head; e != nil; {
			next := e.next
			h := int(e.ref) % capacity
			e.next = s.hashEntries[h]
			s.hashEntries[h] = e
			e = next
		}
	}
	return true
}

func (s *RefSet) addToHash(ref Ref) bool {
	if s.hashContains(ref) {
		return true
	}
	s.size++
	if s.size >= s.hashCap {
		if s.hashCap < 89 {
			s.updateHashCap(89)
		} else {
			s.updateHashCap(2*s.hashCap + 1)
		}
	}
	h := int(ref) % s.hashCap
	s.hashEntries[h] = &hashEntry{ref: ref, next: s.hashEntries[h]}
	return true
}

func (s *RefSet) removeFromHash(ref Ref) bool {
	h := int(ref) % s.hashCap
	var prev *hashEntry
	for e := s.hashEntries[h]; e != nil; e = e.next {
		if e.ref == ref {
			if prev == nil {
				s.hashEntries[h] = e.next
			} else {
				prev.next = e.next
			}
			s.size--
			return true
		}
		prev = e
	}
	return false
}

func (s *RefSet) hashContains(ref Ref) bool {
	h := int(ref) % s.hashCap
	for e := s.hashEntries[h]; e != nil; e = e.next {
		if e.ref == ref {
			return true
		}
	}
	return false
}
