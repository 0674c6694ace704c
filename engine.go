package rto

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/dolthub/go-mysql-server/sql"
	"github.com/google/uuid"
)

// EvaluationContext says where an operator is evaluated in a distributed
// deployment.
type EvaluationContext uint8

const (
	// Any lets the engine pick where the operator runs.
	Any EvaluationContext = iota
	// Controller pins the operator to the query controller so that a single
	// JoinStats instance observes the whole run.
	Controller
)

// CutoffJoinOp describes one bounded join step submitted to an Engine.
type CutoffJoinOp struct {
	// ID is the operator id used to look up the statistics of the run.
	ID int

	// Predicate is the access path being joined against the input.
	Predicate Predicate

	// Constraints are the filters attached at this step.
	Constraints []sql.Expression

	// Limit is the maximum number of solutions the join may produce.
	Limit int64

	// MaxParallelChunks bounds parallel chunk evaluation. Zero disables it.
	MaxParallelChunks int

	// CoalesceDuplicateAccessPaths lets the engine merge reads of identical
	// access paths. Cutoff joins disable it so counts stay per input.
	CoalesceDuplicateAccessPaths bool

	// SharedState requests one statistics collector for all tasks.
	SharedState bool

	// EvaluationContext is where the join is evaluated.
	EvaluationContext EvaluationContext
}

func (op *CutoffJoinOp) String() string {
	return fmt.Sprintf("CutoffJoin(id=%d,pred=%d,constraints=%d,limit=%d)",
		op.ID, op.Predicate.ID(), len(op.Constraints), op.Limit)
}

// JoinStats are the counters an engine keeps for one join operator.
type JoinStats struct {
	// InputSolutions is the number of input solutions consumed.
	InputSolutions atomic.Int64
	// OutputSolutions is the number of solutions produced.
	OutputSolutions atomic.Int64
	// AccessPathRangeCount is the cumulative range count of the access paths
	// read by the join.
	AccessPathRangeCount atomic.Int64
	// AccessPathUnitsIn is the number of tuples read from the access paths.
	AccessPathUnitsIn atomic.Int64
}

func (s *JoinStats) String() string {
	return fmt.Sprintf("JoinStats{in=%d,out=%d,rangeCount=%d,unitsIn=%d}",
		s.InputSolutions.Load(), s.OutputSolutions.Load(),
		s.AccessPathRangeCount.Load(), s.AccessPathUnitsIn.Load())
}

// Engine runs bounded join operators.
type Engine interface {
	// Execute starts evaluating op over a single finite chunk of input
	// binding rows.
	Execute(ctx context.Context, queryID uuid.UUID, op *CutoffJoinOp, input []sql.Row) (RunningQuery, error)
}

// RunningQuery is a handle on a query started by an Engine.
type RunningQuery interface {
	// Iterator returns the output solutions of the query.
	Iterator() sql.RowIter

	// Wait blocks until the query is done and reports any failure.
	Wait() error

	// Cancel stops the query. When mayInterrupt is set, running tasks are
	// interrupted. Cancel may be called more than once.
	Cancel(mayInterrupt bool)

	// Stats returns the statistics collected for the given operator.
	Stats(opID int) (*JoinStats, bool)
}

// AccessPathSampler draws the initial sample for a single access path.
type AccessPathSampler interface {
	// SampleAccessPath returns up to limit binding rows read from the access
	// path of pred.
	SampleAccessPath(ctx context.Context, pred Predicate, limit int) ([]sql.Row, error)
}
