package rto

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/bits"

	"github.com/dolthub/go-mysql-server/sql"
	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/sirupsen/logrus"
)

// Estimator estimates the cardinality of join steps by running cutoff joins
// against an Engine. An Estimator holds no per-query state and may be shared
// by concurrent callers.
type Estimator struct {
	engine   Engine
	attacher ConstraintAttacher
	log      *logrus.Entry
}

// EstimatorOption configures an Estimator.
type EstimatorOption func(*Estimator)

// WithAttacher replaces the default VarAttacher.
func WithAttacher(a ConstraintAttacher) EstimatorOption {
	return func(e *Estimator) {
		e.attacher = a
	}
}

// WithLogger sets the logger used for cutoff join traces.
func WithLogger(l *logrus.Entry) EstimatorOption {
	return func(e *Estimator) {
		e.log = l
	}
}

// NewEstimator returns an Estimator that runs its cutoff joins on engine.
func NewEstimator(engine Engine, opts ...EstimatorOption) *Estimator {
	e := &Estimator{
		engine:   engine,
		attacher: VarAttacher{},
		log:      logrus.NewEntry(logrus.StandardLogger()).WithField("component", "rto"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Attacher returns the constraint attacher used by the estimator.
func (e *Estimator) Attacher() ConstraintAttacher {
	return e.attacher
}

// CutoffJoin estimates the cardinality of joining the last predicate of
// segment against sourceSample. segment must hold every predicate of the
// path so far, in order, ending with the target predicate; it decides which
// constraints attach to the target. A seed segment of two predicates also
// applies the constraints on its first predicate. At most limit solutions are
// produced.
//
// The caller is responsible for not re-sampling needlessly, e.g. when an
// exact sample already exists.
func (e *Estimator) CutoffJoin(
	ctx context.Context,
	limit int,
	segment []Predicate,
	constraints []sql.Expression,
	sourceSample *SampleBase,
) (*EdgeSample, error) {
	if len(segment) == 0 {
		return nil, ErrInvalidArgument.New("empty path segment")
	}
	if limit <= 0 {
		return nil, ErrInvalidArgument.New(fmt.Sprintf("cutoff limit must be positive, got %d", limit))
	}
	pred := segment[len(segment)-1]
	if pred == nil {
		return nil, ErrInvalidArgument.New("nil target predicate")
	}
	if sourceSample == nil {
		return nil, ErrInvalidArgument.New("nil source sample")
	}
	if sourceSample.Sample == nil {
		return nil, ErrInvalidArgument.New("source sample is not materialized")
	}

	span, ctx := opentracing.StartSpanFromContext(ctx, "rto.CutoffJoin")
	span.SetTag("predicate", pred.ID())
	span.SetTag("limit", limit)
	defer span.Finish()

	attached, err := e.attacher.Attach(segment, constraints)
	if err != nil {
		return nil, err
	}
	if len(attached) != len(segment) {
		return nil, ErrInvalidArgument.New(fmt.Sprintf("attacher returned %d positions for %d predicates", len(attached), len(segment)))
	}
	c := attached[len(segment)-1]
	if len(segment) == 2 && len(attached[0]) > 0 {
		// the seed join also filters its source vertex
		c = append(append(make([]sql.Expression, 0, len(attached[0])+len(c)), attached[0]...), c...)
	}

	ids := newIDFactory()
	ids.reserve(pred.ID())
	for _, x := range c {
		ids.reserveExpr(x)
	}

	op := &CutoffJoinOp{
		ID:                           ids.nextID(),
		Predicate:                    pred,
		Constraints:                  c,
		Limit:                        int64(limit),
		MaxParallelChunks:            0,
		CoalesceDuplicateAccessPaths: false,
		SharedState:                  true,
		EvaluationContext:            Controller,
	}

	rows, rq, err := e.run(ctx, op, sourceSample.Sample)
	if err != nil {
		cutoffJoinFailures.Inc()
		ext.Error.Set(span, true)
		return nil, err
	}

	stats, ok := rq.Stats(op.ID)
	if !ok || stats == nil {
		cutoffJoinFailures.Inc()
		ext.Error.Set(span, true)
		return nil, ErrExecutionFault.Wrap(fmt.Errorf("no statistics for operator %d", op.ID), op)
	}
	e.log.Tracef("%v: %s", predIDs(segment), stats)

	edgeSample, err := newEdgeSample(
		limit,
		sourceSample,
		stats.InputSolutions.Load(),
		stats.OutputSolutions.Load(),
		stats.AccessPathUnitsIn.Load(),
		stats.AccessPathRangeCount.Load(),
		rows,
	)
	if err != nil {
		cutoffJoinFailures.Inc()
		ext.Error.Set(span, true)
		return nil, ErrExecutionFault.Wrap(err, op)
	}

	cutoffJoinsTotal.WithLabelValues(edgeSample.EstimateEnum.String()).Inc()
	cutoffJoinTuplesRead.Observe(float64(edgeSample.TuplesRead))
	span.SetTag("estimate", edgeSample.EstimateEnum.String())
	e.log.WithFields(logrus.Fields{
		"path":     predIDs(segment),
		"estimate": edgeSample.EstimateEnum.String(),
	}).Debugf("newSample=%s", edgeSample)

	return edgeSample, nil
}

// run submits op and drains its output. The running query is force canceled
// before run returns, whether or not draining succeeded.
func (e *Estimator) run(ctx context.Context, op *CutoffJoinOp, input []sql.Row) ([]sql.Row, RunningQuery, error) {
	queryID := uuid.New()
	rq, err := e.engine.Execute(ctx, queryID, op, input)
	if err != nil {
		return nil, nil, ErrExecutionFault.Wrap(err, op)
	}
	defer rq.Cancel(true)

	rows, drainErr := drain(ctx, rq.Iterator(), int(op.Limit))
	waitErr := rq.Wait()
	if drainErr != nil {
		return nil, nil, ErrExecutionFault.Wrap(drainErr, op)
	}
	if waitErr != nil {
		return nil, nil, ErrExecutionFault.Wrap(waitErr, op)
	}
	return rows, rq, nil
}

// drain reads iter to exhaustion, keeping at most limit rows.
func drain(ctx context.Context, iter sql.RowIter, limit int) (rows []sql.Row, err error) {
	if iter == nil {
		return nil, fmt.Errorf("nil iterator")
	}
	sqlCtx := sql.NewContext(ctx)
	defer func() {
		if cerr := iter.Close(sqlCtx); err == nil {
			err = cerr
		}
	}()

	rows = make([]sql.Row, 0)
	for {
		row, err := iter.Next(sqlCtx)
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		if len(rows) < limit {
			rows = append(rows, row)
		}
	}
}

// classify tags the result of a cutoff join. When the estimate is a
// LowerBound, the returned output count is replaced by sumRangeCount.
func classify(limit int, source *SampleBase, inputCount, outputCount, sumRangeCount int64) (EstimateEnum, int64) {
	switch {
	case source.EstimateEnum == Exact && outputCount < int64(limit):
		// All source solutions were fed in and the join under filled the
		// cutoff, so the output is the actual result.
		return Exact, outputCount
	case inputCount == 1 && outputCount == int64(limit):
		// One input saturated the cutoff. The sampled range counts estimate
		// the fanout much better than the cutoff does.
		return LowerBound, sumRangeCount
	case source.EstimateEnum != Exact &&
		inputCount == min(int64(source.Limit), source.EstimatedCardinality) &&
		outputCount == 0:
		// Every available source solution was consumed and nothing came out.
		// The hit ratio underflowed; it is not known to be zero.
		return Underflow, outputCount
	default:
		return Normal, outputCount
	}
}

// newEdgeSample classifies the counters of a cutoff join and derives the
// estimated cardinality from the join hit ratio.
func newEdgeSample(
	limit int,
	source *SampleBase,
	inputCount, outputCount, tuplesRead, sumRangeCount int64,
	rows []sql.Row,
) (*EdgeSample, error) {
	if inputCount < 0 || outputCount < 0 || tuplesRead < 0 || sumRangeCount < 0 {
		return nil, fmt.Errorf("negative join statistics in=%d out=%d read=%d rangeCount=%d",
			inputCount, outputCount, tuplesRead, sumRangeCount)
	}
	if inputCount == 0 && outputCount > 0 {
		return nil, fmt.Errorf("%d solutions produced without input", outputCount)
	}

	estimate, outputCount := classify(limit, source, inputCount, outputCount, sumRangeCount)
	f := hitRatio(inputCount, outputCount)
	estimatedCardinality := scaleCardinality(source.EstimatedCardinality, outputCount, inputCount)

	base, err := NewSampleBase(estimatedCardinality, limit, estimate, rows)
	if err != nil {
		return nil, err
	}
	return &EdgeSample{
		SampleBase:  *base,
		Source:      source,
		InputCount:  inputCount,
		OutputCount: outputCount,
		TuplesRead:  tuplesRead,
		HitRatio:    f,
	}, nil
}

// scaleCardinality returns floor(card * out / in) without the rounding error
// of float arithmetic, saturating at math.MaxInt64.
func scaleCardinality(card, out, in int64) int64 {
	if out == 0 || in == 0 || card == 0 {
		return 0
	}
	hi, lo := bits.Mul64(uint64(card), uint64(out))
	if hi >= uint64(in) {
		return math.MaxInt64
	}
	q, _ := bits.Div64(hi, lo, uint64(in))
	if q > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(q)
}

// predIDs returns the operator ids of the predicates in order.
func predIDs(preds []Predicate) []int {
	ids := make([]int, len(preds))
	for i, p := range preds {
		ids[i] = p.ID()
	}
	return ids
}
