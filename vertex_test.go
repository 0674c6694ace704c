package rto

import (
	"context"
	"testing"

	"github.com/dolthub/go-mysql-server/sql"
	"github.com/stretchr/testify/require"
)

func TestVertexResample(t *testing.T) {
	ctx := context.Background()

	t.Run("small access path is exact", func(t *testing.T) {
		v := NewVertex(newTestPred(1, 40, 0))
		require.NoError(t, v.Resample(ctx, &rowSampler{}, 100))
		require.Equal(t, Exact, v.Sample.EstimateEnum)
		require.Equal(t, int64(40), v.Sample.EstimatedCardinality)
		require.Len(t, v.Sample.Sample, 40)
	})

	t.Run("large access path is sampled", func(t *testing.T) {
		v := NewVertex(newTestPred(1, 4000, 0))
		require.NoError(t, v.Resample(ctx, &rowSampler{}, 100))
		require.Equal(t, Normal, v.Sample.EstimateEnum)
		require.Equal(t, int64(4000), v.Sample.EstimatedCardinality)
		require.Len(t, v.Sample.Sample, 100)
	})

	t.Run("exact sample is kept", func(t *testing.T) {
		sampler := &rowSampler{}
		v := NewVertex(newTestPred(1, 40, 0))
		require.NoError(t, v.Resample(ctx, sampler, 100))
		prev := v.Sample
		require.NoError(t, v.Resample(ctx, sampler, 200))
		require.Same(t, prev, v.Sample)
		require.Equal(t, int64(1), sampler.calls.Load())
	})

	t.Run("larger limit re-samples", func(t *testing.T) {
		sampler := &rowSampler{}
		v := NewVertex(newTestPred(1, 4000, 0))
		require.NoError(t, v.Resample(ctx, sampler, 100))
		require.NoError(t, v.Resample(ctx, sampler, 50))
		require.Equal(t, int64(1), sampler.calls.Load())
		require.NoError(t, v.Resample(ctx, sampler, 200))
		require.Equal(t, int64(2), sampler.calls.Load())
		require.Equal(t, 200, v.Sample.Limit)
		require.Len(t, v.Sample.Sample, 200)
	})

	t.Run("empty access path", func(t *testing.T) {
		v := NewVertex(newTestPred(1, 0, 0))
		require.NoError(t, v.Resample(ctx, &rowSampler{}, 100))
		require.Equal(t, Exact, v.Sample.EstimateEnum)
		require.NotNil(t, v.Sample.Sample)
		require.Empty(t, v.Sample.Sample)
	})

	t.Run("invalid", func(t *testing.T) {
		v := NewVertex(newTestPred(1, 10, 0))
		require.True(t, ErrInvalidArgument.Is(v.Resample(ctx, &rowSampler{}, 0)))
		require.True(t, ErrInvalidArgument.Is(NewVertex(nil).Resample(ctx, &rowSampler{}, 10)))
		require.True(t, ErrInvalidArgument.Is(NewVertex(newTestPred(1, -1, 0)).Resample(ctx, &rowSampler{}, 10)))
	})
}

func TestNewSampleBase(t *testing.T) {
	s, err := NewSampleBase(10, 5, Normal, rowsOf(5))
	require.NoError(t, err)
	require.False(t, s.IsExact())
	require.Equal(t, "Sample{estCard=10,limit=5,estimate=Normal,size=5}", s.String())

	s, err = NewSampleBase(0, 5, Exact, []sql.Row{})
	require.NoError(t, err)
	require.True(t, s.IsExact())

	tests := []struct {
		name   string
		card   int64
		limit  int
		sample []sql.Row
	}{
		{name: "zero limit", card: 1, limit: 0, sample: rowsOf(0)},
		{name: "negative cardinality", card: -1, limit: 5, sample: rowsOf(1)},
		{name: "nil sample", card: 1, limit: 5, sample: nil},
		{name: "oversized sample", card: 10, limit: 5, sample: rowsOf(6)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSampleBase(tt.card, tt.limit, Normal, tt.sample)
			require.True(t, ErrInvalidArgument.Is(err))
		})
	}
}

func TestEstimateEnum(t *testing.T) {
	tests := []struct {
		e    EstimateEnum
		name string
		code byte
	}{
		{e: Exact, name: "Exact", code: 'E'},
		{e: LowerBound, name: "LowerBound", code: 'L'},
		{e: Underflow, name: "Underflow", code: 'U'},
		{e: Normal, name: "Normal", code: 'N'},
	}
	for _, tt := range tests {
		require.Equal(t, tt.name, tt.e.String())
		require.Equal(t, tt.code, tt.e.Code())
	}
	require.Equal(t, byte('?'), EstimateEnum(9).Code())
}

func TestHitRatio(t *testing.T) {
	require.Equal(t, 0.0, hitRatio(0, 0))
	require.Equal(t, 0.0, hitRatio(10, 0))
	require.Equal(t, 0.5, hitRatio(10, 5))
}
