// Package correspondence holds paired source/destination point sequences
// and reads and writes them from files.
package correspondence

import (
	"github.com/pkg/errors"

	"ransac-align/pkg/geometry"
)

// ErrLengthMismatch is returned when Src and Dst differ in length.
var ErrLengthMismatch = errors.New("src and dst lengths differ")

// Set is a list of correspondences: Src[i] is believed to map to Dst[i].
// Index alignment is the only link between the two slices.
type Set struct {
	Src []geometry.Point2D `json:"src"`
	Dst []geometry.Point2D `json:"dst"`
}

// New builds a set from two equal-length point sequences.
func New(src, dst []geometry.Point2D) (Set, error) {
	s := Set{Src: src, Dst: dst}
	return s, s.Validate()
}

// Len returns the number of correspondences.
func (s Set) Len() int {
	return len(s.Src)
}

// Validate checks that both sides have the same length and finite coordinates.
func (s Set) Validate() error {
	if len(s.Src) != len(s.Dst) {
		return errors.Wrapf(ErrLengthMismatch, "%d src vs %d dst", len(s.Src), len(s.Dst))
	}
	for i := range s.Src {
		if !s.Src[i].IsFinite() || !s.Dst[i].IsFinite() {
			return errors.Errorf("correspondence %d has a non-finite coordinate", i)
		}
	}
	return nil
}

// Append adds one correspondence.
func (s *Set) Append(src, dst geometry.Point2D) {
	s.Src = append(s.Src, src)
	s.Dst = append(s.Dst, dst)
}

// Subset returns the correspondences at the given indices, in that order.
func (s Set) Subset(indices []int) Set {
	out := Set{
		Src: make([]geometry.Point2D, len(indices)),
		Dst: make([]geometry.Point2D, len(indices)),
	}
	for i, idx := range indices {
		out.Src[i] = s.Src[idx]
		out.Dst[i] = s.Dst[idx]
	}
	return out
}

// Select returns the correspondences whose mask entry is true.
func (s Set) Select(mask []bool) Set {
	var out Set
	for i, keep := range mask {
		if keep && i < s.Len() {
			out.Append(s.Src[i], s.Dst[i])
		}
	}
	return out
}

// Permute returns a set whose i-th correspondence is s's perm[i]-th.
func (s Set) Permute(perm []int) Set {
	return s.Subset(perm)
}

// Swap exchanges source and destination, for fitting the inverse direction.
func (s Set) Swap() Set {
	return Set{Src: s.Dst, Dst: s.Src}
}

// Clone returns a deep copy.
func (s Set) Clone() Set {
	return Set{
		Src: append([]geometry.Point2D(nil), s.Src...),
		Dst: append([]geometry.Point2D(nil), s.Dst...),
	}
}
