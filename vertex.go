package rto

import (
	"context"
	"fmt"

	"github.com/dolthub/go-mysql-server/sql"
)

// Predicate is a single access path that can be joined.
type Predicate interface {
	// ID is the stable operator id of the predicate.
	ID() int
	// Name is used in traces and plans.
	Name() string
	// Vars returns the binding row columns bound by the access path.
	Vars() []int
	// RangeCount is the estimated cardinality of the access path when it is
	// read without any bindings.
	RangeCount() int64
}

// TableSource is implemented by predicates backed by a go-mysql-server table.
type TableSource interface {
	Table() sql.Table
}

// Identified is implemented by constraint expressions that already carry an
// operator id.
type Identified interface {
	OperatorID() int
}

// Vertex is one predicate of the join graph together with its initial
// sample. Vertices are compared by identity.
type Vertex struct {
	Pred   Predicate
	Sample *SampleBase
}

// NewVertex returns a vertex that has not been sampled yet.
func NewVertex(pred Predicate) *Vertex {
	return &Vertex{Pred: pred}
}

// Resample takes the initial sample of the vertex at the given limit. When the
// access path holds no more than limit tuples it is fully materialized and the
// sample is exact. Re-sampling is skipped if the current sample is exact or
// was taken at a limit at least as large.
func (v *Vertex) Resample(ctx context.Context, sampler AccessPathSampler, limit int) error {
	if limit <= 0 {
		return ErrInvalidArgument.New(fmt.Sprintf("vertex sample limit must be positive, got %d", limit))
	}
	if v.Pred == nil {
		return ErrInvalidArgument.New("vertex without predicate")
	}
	if v.Sample != nil && (v.Sample.IsExact() || v.Sample.Limit >= limit) {
		return nil
	}

	rangeCount := v.Pred.RangeCount()
	if rangeCount < 0 {
		return ErrInvalidArgument.New(fmt.Sprintf("predicate %d has negative range count", v.Pred.ID()))
	}
	estimate := Normal
	if rangeCount <= int64(limit) {
		estimate = Exact
	}

	rows, err := sampler.SampleAccessPath(ctx, v.Pred, limit)
	if err != nil {
		return err
	}
	if rows == nil {
		rows = []sql.Row{}
	}
	sample, err := NewSampleBase(rangeCount, limit, estimate, rows)
	if err != nil {
		return err
	}
	v.Sample = sample
	return nil
}

func (v *Vertex) String() string {
	if v.Sample == nil {
		return fmt.Sprintf("Vertex{%d:%s}", v.Pred.ID(), v.Pred.Name())
	}
	return fmt.Sprintf("Vertex{%d:%s,%s}", v.Pred.ID(), v.Pred.Name(), v.Sample)
}
