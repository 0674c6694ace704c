// Package memengine evaluates cutoff joins over in-memory relations. It is
// the reference rto.Engine used by the rto command and by tests.
package memengine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/dolthub/go-mysql-server/sql"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/max-hoffman/rto"
)

// Engine runs cutoff joins as nested index lookup joins against Relations.
type Engine struct {
	log *logrus.Entry

	// queries counts submitted queries.
	queries atomic.Int64
}

var _ rto.Engine = (*Engine)(nil)

// NewEngine returns an Engine logging to the standard logger.
func NewEngine() *Engine {
	return &Engine{
		log: logrus.NewEntry(logrus.StandardLogger()).WithField("component", "memengine"),
	}
}

// Queries returns the number of queries submitted to the engine.
func (e *Engine) Queries() int64 {
	return e.queries.Load()
}

// Execute starts joining the relation of op against input. Output solutions
// are streamed through the iterator of the returned query until op.Limit
// solutions have been produced or the input is exhausted.
func (e *Engine) Execute(ctx context.Context, queryID uuid.UUID, op *rto.CutoffJoinOp, input []sql.Row) (rto.RunningQuery, error) {
	if op == nil {
		return nil, rto.ErrInvalidArgument.New("nil operator")
	}
	rel, ok := op.Predicate.(*Relation)
	if !ok {
		return nil, rto.ErrInvalidArgument.New(fmt.Sprintf("memengine cannot evaluate predicate %T", op.Predicate))
	}
	if op.Limit <= 0 {
		return nil, rto.ErrInvalidArgument.New(fmt.Sprintf("operator limit must be positive, got %d", op.Limit))
	}
	e.queries.Add(1)

	ctx, cancel := context.WithCancel(ctx)
	q := &query{
		id:     queryID,
		op:     op,
		rel:    rel,
		stats:  &rto.JoinStats{},
		out:    make(chan sql.Row),
		cancel: cancel,
		log:    e.log.WithField("query", queryID.String()),
	}
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		defer close(q.out)
		return q.run(egCtx, input)
	})
	q.eg = eg
	return q, nil
}

// query is a running cutoff join.
type query struct {
	id       uuid.UUID
	op       *rto.CutoffJoinOp
	rel      *Relation
	stats    *rto.JoinStats
	out      chan sql.Row
	eg       *errgroup.Group
	cancel   context.CancelFunc
	canceled atomic.Bool
	log      *logrus.Entry
}

var _ rto.RunningQuery = (*query)(nil)

func (q *query) run(ctx context.Context, input []sql.Row) error {
	sqlCtx := sql.NewContext(ctx)
	limit := q.op.Limit
	for _, b := range input {
		if q.stats.OutputSolutions.Load() >= limit {
			break
		}
		q.stats.InputSolutions.Add(1)

		candidates, rangeCount := q.rel.lookup(b)
		q.stats.AccessPathRangeCount.Add(rangeCount)
		for _, pos := range candidates {
			q.stats.AccessPathUnitsIn.Add(1)
			row, ok := q.rel.bind(b, pos)
			if !ok {
				continue
			}
			ok, err := q.accept(sqlCtx, row)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			select {
			case q.out <- row:
			case <-ctx.Done():
				return ctx.Err()
			}
			if q.stats.OutputSolutions.Add(1) >= limit {
				break
			}
		}
	}
	q.log.WithFields(logrus.Fields{
		"op":    q.op.String(),
		"stats": q.stats.String(),
	}).Debug("cutoff join done")
	return nil
}

// accept evaluates the constraints of the operator against row. A constraint
// holds only if it evaluates to true.
func (q *query) accept(ctx *sql.Context, row sql.Row) (bool, error) {
	for _, c := range q.op.Constraints {
		res, err := c.Eval(ctx, row)
		if err != nil {
			return false, fmt.Errorf("failed to evaluate %s: %w", c, err)
		}
		if ok, isBool := res.(bool); !isBool || !ok {
			return false, nil
		}
	}
	return true, nil
}

func (q *query) Iterator() sql.RowIter {
	return &rowIter{rows: q.out}
}

func (q *query) Wait() error {
	err := q.eg.Wait()
	if err != nil && q.canceled.Load() && errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (q *query) Cancel(mayInterrupt bool) {
	q.canceled.Store(true)
	q.cancel()
}

func (q *query) Stats(opID int) (*rto.JoinStats, bool) {
	if opID != q.op.ID {
		return nil, false
	}
	return q.stats, true
}

// rowIter reads the output solutions of a query.
type rowIter struct {
	rows <-chan sql.Row
}

var _ sql.RowIter = (*rowIter)(nil)

func (i *rowIter) Next(ctx *sql.Context) (sql.Row, error) {
	select {
	case row, ok := <-i.rows:
		if !ok {
			return nil, io.EOF
		}
		return row, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (i *rowIter) Close(*sql.Context) error {
	return nil
}
