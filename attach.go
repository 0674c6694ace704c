package rto

import (
	"fmt"
	"sort"

	"github.com/dolthub/go-mysql-server/sql"
	"github.com/dolthub/go-mysql-server/sql/expression"
	"github.com/dolthub/go-mysql-server/sql/transform"
)

// ConstraintAttacher decides at which position of an ordered predicate list
// each constraint is evaluated.
type ConstraintAttacher interface {
	// Attach returns, for every position of preds, the constraints that first
	// become evaluable at that position. Every constraint appears at most
	// once; constraints reading variables no predicate binds are left out.
	// The result must be deterministic for the same inputs.
	Attach(preds []Predicate, constraints []sql.Expression) ([][]sql.Expression, error)
}

// VarAttacher attaches a constraint at the earliest position whose prefix
// binds every variable the constraint reads. Constraints that are never fully
// bound by the predicates are not attached anywhere.
type VarAttacher struct{}

var _ ConstraintAttacher = VarAttacher{}

func (VarAttacher) Attach(preds []Predicate, constraints []sql.Expression) ([][]sql.Expression, error) {
	if len(preds) == 0 {
		return nil, ErrInvalidArgument.New("no predicates to attach constraints to")
	}
	ret := make([][]sql.Expression, len(preds))
	if len(constraints) == 0 {
		return ret, nil
	}

	// position at which each variable is first bound
	boundAt := make(map[int]int)
	for i, p := range preds {
		if p == nil {
			return nil, ErrInvalidArgument.New(fmt.Sprintf("nil predicate at position %d", i))
		}
		for _, v := range p.Vars() {
			if _, ok := boundAt[v]; !ok {
				boundAt[v] = i
			}
		}
	}

	for _, c := range constraints {
		if c == nil {
			return nil, ErrInvalidArgument.New("nil constraint")
		}
		pos, ok := attachPosition(boundAt, c)
		if !ok {
			continue
		}
		ret[pos] = append(ret[pos], c)
	}
	return ret, nil
}

// attachPosition returns the first position binding every variable of c, or
// false if some variable is never bound.
func attachPosition(boundAt map[int]int, c sql.Expression) (int, bool) {
	pos := 0
	for _, v := range constraintVars(c) {
		at, ok := boundAt[v]
		if !ok {
			return 0, false
		}
		if at > pos {
			pos = at
		}
	}
	return pos, true
}

// unboundConstraints returns the constraints reading a variable that none of
// preds binds.
func unboundConstraints(preds []Predicate, constraints []sql.Expression) []sql.Expression {
	bound := make(map[int]struct{})
	for _, p := range preds {
		for _, v := range p.Vars() {
			bound[v] = struct{}{}
		}
	}
	var ret []sql.Expression
	for _, c := range constraints {
		for _, v := range constraintVars(c) {
			if _, ok := bound[v]; !ok {
				ret = append(ret, c)
				break
			}
		}
	}
	return ret
}

// constraintVars returns the sorted binding row columns read by a constraint.
func constraintVars(c sql.Expression) []int {
	seen := make(map[int]struct{})
	transform.InspectExpr(c, func(e sql.Expression) bool {
		if gf, ok := e.(*expression.GetField); ok {
			seen[gf.Index()] = struct{}{}
		}
		return false
	})
	vars := make([]int, 0, len(seen))
	for v := range seen {
		vars = append(vars, v)
	}
	sort.Ints(vars)
	return vars
}

// sharesVars returns true if the predicate binds any of the given variables.
func sharesVars(p Predicate, bound map[int]struct{}) bool {
	for _, v := range p.Vars() {
		if _, ok := bound[v]; ok {
			return true
		}
	}
	return false
}

// idFactory hands out operator ids that do not collide with reserved ones.
type idFactory struct {
	reserved map[int]struct{}
	next     int
}

func newIDFactory() *idFactory {
	return &idFactory{reserved: make(map[int]struct{}), next: 1}
}

// reserve marks id as in use.
func (f *idFactory) reserve(id int) {
	f.reserved[id] = struct{}{}
}

// reserveExpr reserves every operator id embedded in a constraint.
func (f *idFactory) reserveExpr(c sql.Expression) {
	transform.InspectExpr(c, func(e sql.Expression) bool {
		if x, ok := e.(Identified); ok {
			f.reserve(x.OperatorID())
		}
		return false
	})
}

// nextID returns the smallest unreserved id and reserves it.
func (f *idFactory) nextID() int {
	for {
		id := f.next
		f.next++
		if _, ok := f.reserved[id]; !ok {
			f.reserved[id] = struct{}{}
			return id
		}
	}
}
