package memengine

import (
	"context"
	"strings"
	"testing"

	"github.com/dolthub/go-mysql-server/sql"
	"github.com/dolthub/go-mysql-server/sql/expression"
	"github.com/dolthub/go-mysql-server/sql/plan"
	"github.com/stretchr/testify/require"

	"github.com/max-hoffman/rto"
)

func TestJoinGraphOverRelations(t *testing.T) {
	r, s, tt := newChain(t)
	cfg := rto.DefaultConfig()
	cfg.InitialLimit = 10
	cfg.MaxLimit = 100
	cfg.RetryUnderflow = false

	eng := NewEngine()
	est := rto.NewEstimator(eng)
	g, err := rto.NewJoinGraph([]rto.Predicate{r, s, tt}, nil, est, Sampler{}, cfg)
	require.NoError(t, err)

	best, err := g.Run(context.Background())
	require.NoError(t, err)
	// t binds y = 3, which selects 20 rows of s and then 20 rows of r. Starting
	// from r reads the whole of s before t filters it.
	require.Equal(t, []int{3, 2, 1}, best.VertexIDs())
	require.Less(t, best.CumulativeEstimatedCardinality(), int64(200))

	rounds := g.Rounds()
	require.Len(t, rounds, 2)
	seeds := rounds[0].Paths
	require.Len(t, seeds, 2)
	for _, p := range seeds {
		if p.VertexIDs()[0] == 3 {
			require.Equal(t, rto.LowerBound, p.EdgeSample().EstimateEnum)
		}
	}
	require.Positive(t, eng.Queries())

	node, err := rto.BuildJoinTree(best, est.Attacher(), nil)
	require.NoError(t, err)
	top, ok := node.(*plan.CrossJoin)
	require.True(t, ok, "%T", node)
	require.Equal(t, "r", top.Children()[1].(*plan.ResolvedTable).Name())
}

func TestJoinGraphOverDataset(t *testing.T) {
	ds, err := LoadDataset(strings.NewReader(`{
  "variables": ["a", "b", "c"],
  "relations": [
    {"name": "ab", "columns": ["a", "b"], "rows": [[1, 1], [1, 2], [2, 3], [3, 4], [4, 5], [5, 6]]},
    {"name": "bc", "columns": ["b", "c"], "rows": [[1, 7], [2, 8], [3, 9], [4, 7], [5, 8], [6, 9]]},
    {"name": "c", "columns": ["c"], "rows": [[7]]}
  ],
  "constraints": [
    {"op": "<", "left": "a", "right": "c"}
  ]
}`))
	require.NoError(t, err)

	est := rto.NewEstimator(NewEngine())
	g, err := rto.NewJoinGraph(ds.Predicates(), ds.Constraints, est, Sampler{}, rto.DefaultConfig())
	require.NoError(t, err)
	best, err := g.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, best.VertexCount())

	// every vertex is small enough to be read whole, so every estimate is
	// exact: c = 7 selects b in {1, 4}, which selects a in {1, 3}.
	require.Equal(t, rto.Exact, best.EdgeSample().EstimateEnum)
	require.Equal(t, int64(2), best.EdgeSample().EstimatedCardinality)

	node, err := rto.BuildJoinTree(best, est.Attacher(), ds.Constraints)
	require.NoError(t, err)

	// the plan converts back to the same join graph
	preds, constraints, err := rto.GraphFromPlan(node, ds.Predicate)
	require.NoError(t, err)
	require.Equal(t, best.Predicates(), preds)
	require.Equal(t, ds.Constraints, constraints)
}

func TestCutoffJoinConstraintPlacement(t *testing.T) {
	var aRows, bRows []sql.Row
	for x := int64(1); x <= 50; x++ {
		aRows = append(aRows, sql.Row{x})
		bRows = append(bRows, sql.Row{x, x})
	}
	a, err := NewRelation(1, "a", 3, []int{0}, []sql.Type{sql.Int64}, aRows)
	require.NoError(t, err)
	b, err := NewRelation(2, "b", 3, []int{0, 1}, []sql.Type{sql.Int64, sql.Int64}, bRows)
	require.NoError(t, err)

	x := expression.NewGetField(0, sql.Int64, "x", true)
	z := expression.NewGetField(2, sql.Int64, "z", true)
	five := expression.NewLiteral(int64(5), sql.Int64)

	tests := []struct {
		name        string
		constraints []sql.Expression
		out, card   int64
	}{
		{name: "no constraints", out: 50, card: 50},
		{name: "variable bound later", constraints: []sql.Expression{expression.NewLessThan(x, z)}, out: 50, card: 50},
		{name: "filter on source vertex", constraints: []sql.Expression{expression.NewLessThan(x, five)}, out: 4, card: 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := rto.NewVertex(a)
			require.NoError(t, v.Resample(context.Background(), Sampler{}, 100))
			require.Equal(t, rto.Exact, v.Sample.EstimateEnum)

			est := rto.NewEstimator(NewEngine())
			es, err := est.CutoffJoin(context.Background(), 100, []rto.Predicate{a, b}, tt.constraints, v.Sample)
			require.NoError(t, err)
			require.Equal(t, int64(50), es.InputCount)
			require.Equal(t, tt.out, es.OutputCount)
			require.Equal(t, tt.card, es.EstimatedCardinality)
			require.Equal(t, rto.Exact, es.EstimateEnum)
		})
	}
}
