package rto

import (
	"fmt"

	"github.com/dolthub/go-mysql-server/sql"
	"github.com/dolthub/go-mysql-server/sql/analyzer"
	"github.com/dolthub/go-mysql-server/sql/expression"
	"github.com/dolthub/go-mysql-server/sql/plan"
)

// PredicateResolver returns the predicate reading the named table.
type PredicateResolver func(name string) (Predicate, bool)

// graphBuilder flattens a tree of inner and cross joins into the predicates
// and constraints of a join graph. Leaves become predicates in tree order, and
// every join filter is split into its conjuncts.
type graphBuilder struct {
	resolve     PredicateResolver
	preds       []Predicate
	seen        map[int]struct{}
	constraints []sql.Expression
}

// GraphFromPlan returns the predicates and constraints of a join plan, ready
// for NewJoinGraph. Only inner and cross joins can be reordered; any other
// join type is rejected.
func GraphFromPlan(n sql.Node, resolve PredicateResolver) ([]Predicate, []sql.Expression, error) {
	if n == nil || resolve == nil {
		return nil, nil, ErrInvalidArgument.New("nil plan or resolver")
	}
	b := &graphBuilder{resolve: resolve, seen: make(map[int]struct{})}
	if err := b.populateSubgraph(n); err != nil {
		return nil, nil, err
	}
	return b.preds, b.constraints, nil
}

// populateSubgraph recursively tracks join filters as constraints and leaf
// nodes as predicates.
func (b *graphBuilder) populateSubgraph(n sql.Node) error {
	switch n := n.(type) {
	case *plan.CrossJoin:
		return b.buildJoinOp(n, nil)
	case *plan.InnerJoin:
		return b.buildJoinOp(n, n.Cond)
	case plan.JoinNode:
		return ErrInvalidArgument.New(fmt.Sprintf("cannot reorder join %T", n))
	case analyzer.NameableNode:
		return b.buildJoinLeaf(n)
	default:
		return ErrInvalidArgument.New(fmt.Sprintf("join leaves must be named tables, found %T", n))
	}
}

func (b *graphBuilder) buildJoinOp(n sql.BinaryNode, filter sql.Expression) error {
	if err := b.populateSubgraph(n.Left()); err != nil {
		return err
	}
	if err := b.populateSubgraph(n.Right()); err != nil {
		return err
	}
	b.buildInnerEdge(filter)
	return nil
}

func (b *graphBuilder) buildJoinLeaf(n analyzer.NameableNode) error {
	p, ok := b.resolve(n.Name())
	if !ok {
		return ErrInvalidArgument.New(fmt.Sprintf("no predicate for table %s", n.Name()))
	}
	if _, ok := b.seen[p.ID()]; ok {
		return ErrInvalidArgument.New(fmt.Sprintf("table %s appears twice", n.Name()))
	}
	b.seen[p.ID()] = struct{}{}
	b.preds = append(b.preds, p)
	return nil
}

func (b *graphBuilder) buildInnerEdge(filter sql.Expression) {
	if filter == nil {
		// cross join
		return
	}
	if and, ok := filter.(*expression.And); ok {
		// constraint for each conjunct
		b.buildInnerEdge(and.Left)
		b.buildInnerEdge(and.Right)
		return
	}
	b.constraints = append(b.constraints, filter)
}
