package rto

import (
	"fmt"
	"math/bits"
	"strings"
)

// vertexSet is a set of vertex ordinals of the join graph. Paths covering the
// same vertexSet are unordered variants of each other.
type vertexSet uint64

const maxSetSize = 63

// vertexIndex is the ordinal position of a vertex in the JoinGraph vertices
// field. vertexIndex must not exceed maxSetSize.
type vertexIndex = uint64

// add returns a copy of the set with the given element added.
func (s vertexSet) add(idx vertexIndex) vertexSet {
	if idx > maxSetSize {
		panic(fmt.Sprintf("cannot insert %d into vertexSet", idx))
	}
	return s | (1 << idx)
}

// contains returns true if idx is a member of the set.
func (s vertexSet) contains(idx vertexIndex) bool {
	return idx <= maxSetSize && s&(1<<idx) != 0
}

func (s vertexSet) len() int {
	return bits.OnesCount64(uint64(s))
}

// String lists the members in ascending order, e.g. {0,3}.
func (s vertexSet) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for rest := uint64(s); rest != 0; rest &= rest - 1 {
		if b.Len() > 1 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%d", bits.TrailingZeros64(rest))
	}
	b.WriteByte('}')
	return b.String()
}
