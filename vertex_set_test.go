package rto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVertexSet(t *testing.T) {
	tests := []struct {
		name    string
		members []vertexIndex
		in      []vertexIndex
		out     []vertexIndex
		str     string
	}{
		{name: "empty", out: []vertexIndex{0, 1, maxSetSize}, str: "{}"},
		{name: "low bits", members: []vertexIndex{3, 0}, in: []vertexIndex{0, 3}, out: []vertexIndex{1, 2, 4}, str: "{0,3}"},
		{name: "high bit", members: []vertexIndex{maxSetSize, 1}, in: []vertexIndex{1, maxSetSize}, out: []vertexIndex{0, maxSetSize + 1}, str: "{1,63}"},
		{name: "repeated add", members: []vertexIndex{2, 2}, in: []vertexIndex{2}, str: "{2}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := vertexSet(0)
			for _, m := range tt.members {
				s = s.add(m)
			}
			for _, m := range tt.in {
				require.True(t, s.contains(m), "%d", m)
			}
			for _, m := range tt.out {
				require.False(t, s.contains(m), "%d", m)
			}
			require.Equal(t, len(tt.in), s.len())
			require.Equal(t, tt.str, s.String())
		})
	}
	require.Panics(t, func() { vertexSet(0).add(maxSetSize + 1) })
}
