package rto

import (
	"context"
	"testing"

	"github.com/dolthub/go-mysql-server/memory"
	"github.com/dolthub/go-mysql-server/sql"
	"github.com/dolthub/go-mysql-server/sql/expression"
	"github.com/dolthub/go-mysql-server/sql/plan"
	"github.com/stretchr/testify/require"
)

var childSchema = sql.NewPrimaryKeySchema(sql.Schema{
	{Name: "i", Type: sql.Int64, Nullable: true},
	{Name: "s", Type: sql.Text, Nullable: true},
})

type tablePred struct {
	*testPred
	table sql.Table
}

func (p tablePred) Table() sql.Table { return p.table }

func TestBuildJoinTree(t *testing.T) {
	ctx := context.Background()
	a := tablePred{testPred: newTestPred(1, 10, 0), table: memory.NewTable("xy", childSchema, nil)}
	b := newTestPred(2, 10, 0, 1)
	c := newTestPred(3, 10, 2)
	d := newTestPred(4, 10, 3)

	vs := []*Vertex{
		sampledVertex(t, a, 10, 10, Exact, 10),
		sampledVertex(t, b, 10, 10, Exact, 10),
		sampledVertex(t, c, 10, 10, Exact, 10),
		sampledVertex(t, d, 10, 10, Exact, 10),
	}
	eng := newScriptedEngine()
	for _, v := range vs {
		eng.script(v.Pred.ID(), scripted{in: 10, out: 5, read: 10})
	}
	est := NewEstimator(eng)

	p := seedPath(t, est, 10, vs[0], vs[1])
	var err error
	for _, v := range vs[2:] {
		p, err = p.AddEdge(ctx, est, 10, v, nil)
		require.NoError(t, err)
	}

	lit := expression.NewLiteral(int64(3), sql.Int64)
	onA := expression.NewEquals(getField(0), lit)
	onAB := expression.NewLessThan(getField(0), getField(1))
	onBC := expression.NewEquals(getField(1), getField(2))
	onZ := expression.NewEquals(getField(7), lit)
	constraints := []sql.Expression{onBC, onA, onZ, onAB}

	node, err := BuildJoinTree(p, VarAttacher{}, constraints)
	require.NoError(t, err)

	// ((xy ⋈ b) ⋈ c) ⋈ d, the last join evaluating the unbound constraint
	top, ok := node.(*plan.InnerJoin)
	require.True(t, ok, "%T", node)
	require.Equal(t, onZ, top.JoinCond())
	require.Equal(t, "d", leafName(t, top.Children()[1]))

	abc, ok := top.Children()[0].(plan.JoinNode)
	require.True(t, ok)
	require.Equal(t, onBC, abc.JoinCond())
	require.Equal(t, "c", leafName(t, abc.Children()[1]))

	ab, ok := abc.Children()[0].(plan.JoinNode)
	require.True(t, ok)
	require.Equal(t, expression.NewAnd(onA, onAB), ab.JoinCond())
	require.Equal(t, "xy", leafName(t, ab.Children()[0]))
	require.Equal(t, "b", leafName(t, ab.Children()[1]))
}

func TestBuildJoinTreeInvalid(t *testing.T) {
	_, err := BuildJoinTree(nil, VarAttacher{}, nil)
	require.True(t, ErrInvalidArgument.Is(err))
}

func leafName(t *testing.T, n sql.Node) string {
	t.Helper()
	rt, ok := n.(*plan.ResolvedTable)
	require.True(t, ok, "%T", n)
	return rt.Name()
}
