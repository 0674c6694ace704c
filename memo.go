package rto

import (
	"fmt"

	"github.com/dolthub/go-mysql-server/memory"
	"github.com/dolthub/go-mysql-server/sql"
	"github.com/dolthub/go-mysql-server/sql/expression"
	"github.com/dolthub/go-mysql-server/sql/plan"
)

// BuildJoinTree converts a chosen path into a left deep join plan. Each join
// step filters on the constraints the attacher assigns to its right side;
// steps without constraints become cross joins. Constraints attached to the
// first vertex are evaluated by the first join, and constraints the path never
// binds are evaluated by the last.
func BuildJoinTree(p *Path, attacher ConstraintAttacher, constraints []sql.Expression) (sql.Node, error) {
	if p == nil {
		return nil, ErrInvalidArgument.New("nil path")
	}
	if attacher == nil {
		attacher = VarAttacher{}
	}
	preds := p.Predicates()
	attached, err := attacher.Attach(preds, constraints)
	if err != nil {
		return nil, err
	}
	if len(attached) != len(preds) {
		return nil, ErrInvalidArgument.New(fmt.Sprintf("attacher returned %d positions for %d predicates", len(attached), len(preds)))
	}

	last := len(preds) - 1
	node := leaf(preds[0])
	pending := attached[0]
	for i := 1; i < len(preds); i++ {
		filters := make([]sql.Expression, 0, len(pending)+len(attached[i]))
		filters = append(filters, pending...)
		filters = append(filters, attached[i]...)
		if i == last {
			filters = append(filters, unboundConstraints(preds, constraints)...)
		}
		pending = nil
		node = memoizeJoin(node, leaf(preds[i]), filters)
	}
	return node, nil
}

func memoizeJoin(left sql.Node, right sql.Node, joinFilter []sql.Expression) sql.Node {
	if len(joinFilter) == 0 {
		return plan.NewCrossJoin(left, right)
	}
	filter := joinFilter[0]
	for _, e := range joinFilter[1:] {
		filter = expression.NewAnd(filter, e)
	}
	return plan.NewInnerJoin(left, right, filter)
}

// leaf returns the table scan for a predicate. Predicates that are not backed
// by a table scan an empty table of the same name.
func leaf(p Predicate) sql.Node {
	if ts, ok := p.(TableSource); ok && ts.Table() != nil {
		return plan.NewResolvedTable(ts.Table(), nil, nil)
	}
	return plan.NewResolvedTable(memory.NewTable(p.Name(), sql.NewPrimaryKeySchema(sql.Schema{}), nil), nil, nil)
}
