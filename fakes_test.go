package rto

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/dolthub/go-mysql-server/sql"
	"github.com/google/uuid"
)

type testPred struct {
	id         int
	name       string
	vars       []int
	rangeCount int64
}

func (p *testPred) ID() int           { return p.id }
func (p *testPred) Name() string      { return p.name }
func (p *testPred) Vars() []int       { return p.vars }
func (p *testPred) RangeCount() int64 { return p.rangeCount }

func newTestPred(id int, rangeCount int64, vars ...int) *testPred {
	return &testPred{id: id, name: string(rune('a' + id - 1)), vars: vars, rangeCount: rangeCount}
}

// scripted is the outcome of one cutoff join against a scriptedEngine.
type scripted struct {
	in, out, read, rangeCount int64

	// rows are streamed by the iterator. When nil, out rows are generated.
	rows []sql.Row

	execErr error
	iterErr error
	waitErr error
	noStats bool
}

// scriptedEngine returns deterministic statistics per target predicate id.
type scriptedEngine struct {
	mu      sync.Mutex
	results map[int]scripted
	ops     []*CutoffJoinOp
	inputs  [][]sql.Row
	queries []*scriptedQuery
}

var _ Engine = (*scriptedEngine)(nil)

func newScriptedEngine() *scriptedEngine {
	return &scriptedEngine{results: make(map[int]scripted)}
}

func (e *scriptedEngine) script(predID int, s scripted) *scriptedEngine {
	e.results[predID] = s
	return e
}

func (e *scriptedEngine) Execute(ctx context.Context, queryID uuid.UUID, op *CutoffJoinOp, input []sql.Row) (RunningQuery, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ops = append(e.ops, op)
	e.inputs = append(e.inputs, input)
	r := e.results[op.Predicate.ID()]
	if r.execErr != nil {
		return nil, r.execErr
	}
	rows := r.rows
	if rows == nil {
		rows = make([]sql.Row, r.out)
		for i := range rows {
			rows[i] = sql.Row{int64(i)}
		}
	}
	q := &scriptedQuery{op: op, r: r, rows: rows}
	e.queries = append(e.queries, q)
	return q, nil
}

func (e *scriptedEngine) executions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.ops)
}

type scriptedQuery struct {
	op       *CutoffJoinOp
	r        scripted
	rows     []sql.Row
	canceled atomic.Bool
	forced   atomic.Bool
}

func (q *scriptedQuery) Iterator() sql.RowIter {
	return &sliceIter{rows: q.rows, err: q.r.iterErr}
}

func (q *scriptedQuery) Wait() error {
	return q.r.waitErr
}

func (q *scriptedQuery) Cancel(mayInterrupt bool) {
	q.canceled.Store(true)
	q.forced.Store(mayInterrupt)
}

func (q *scriptedQuery) Stats(opID int) (*JoinStats, bool) {
	if q.r.noStats || opID != q.op.ID {
		return nil, false
	}
	s := &JoinStats{}
	s.InputSolutions.Store(q.r.in)
	s.OutputSolutions.Store(q.r.out)
	s.AccessPathUnitsIn.Store(q.r.read)
	s.AccessPathRangeCount.Store(q.r.rangeCount)
	return s, true
}

// sliceIter streams rows, then err or io.EOF.
type sliceIter struct {
	rows   []sql.Row
	i      int
	err    error
	closed bool
}

func (s *sliceIter) Next(*sql.Context) (sql.Row, error) {
	if s.i >= len(s.rows) {
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	row := s.rows[s.i]
	s.i++
	return row, nil
}

func (s *sliceIter) Close(*sql.Context) error {
	s.closed = true
	return nil
}

// rowSampler returns n generated rows per predicate, capped at the limit.
type rowSampler struct {
	calls atomic.Int64
}

func (s *rowSampler) SampleAccessPath(ctx context.Context, pred Predicate, limit int) ([]sql.Row, error) {
	s.calls.Add(1)
	n := min(pred.RangeCount(), int64(limit))
	rows := make([]sql.Row, n)
	for i := range rows {
		rows[i] = sql.Row{int64(i)}
	}
	return rows, nil
}

func sampledVertex(t interface{ Helper() }, pred Predicate, est int64, limit int, enum EstimateEnum, n int) *Vertex {
	t.Helper()
	rows := make([]sql.Row, n)
	for i := range rows {
		rows[i] = sql.Row{int64(i)}
	}
	v := NewVertex(pred)
	v.Sample = &SampleBase{EstimatedCardinality: est, Limit: limit, EstimateEnum: enum, Sample: rows}
	return v
}
