package rto

import (
	"fmt"

	"github.com/dolthub/go-mysql-server/sql"
)

// SampleBase is a bounded, quality tagged cardinality estimate together with
// the materialized solutions it was derived from.
type SampleBase struct {
	// EstimatedCardinality is the estimated cardinality of the sampled
	// result. It is never negative.
	EstimatedCardinality int64

	// Limit is the cutoff requested when the sample was taken.
	Limit int

	// EstimateEnum tags the quality of EstimatedCardinality.
	EstimateEnum EstimateEnum

	// Sample holds at most Limit binding rows. It is never nil, but may be
	// empty.
	Sample []sql.Row
}

// NewSampleBase validates and returns a new sample.
func NewSampleBase(estimatedCardinality int64, limit int, estimate EstimateEnum, sample []sql.Row) (*SampleBase, error) {
	if limit <= 0 {
		return nil, ErrInvalidArgument.New(fmt.Sprintf("sample limit must be positive, got %d", limit))
	}
	if estimatedCardinality < 0 {
		return nil, ErrInvalidArgument.New(fmt.Sprintf("negative estimated cardinality %d", estimatedCardinality))
	}
	if sample == nil {
		return nil, ErrInvalidArgument.New("nil sample")
	}
	if len(sample) > limit {
		return nil, ErrInvalidArgument.New(fmt.Sprintf("sample size %d exceeds limit %d", len(sample), limit))
	}
	return &SampleBase{
		EstimatedCardinality: estimatedCardinality,
		Limit:                limit,
		EstimateEnum:         estimate,
		Sample:               sample,
	}, nil
}

// IsExact returns true if the sample is the complete result.
func (s *SampleBase) IsExact() bool {
	return s.EstimateEnum == Exact
}

func (s *SampleBase) String() string {
	return fmt.Sprintf("Sample{estCard=%d,limit=%d,estimate=%s,size=%d}",
		s.EstimatedCardinality, s.Limit, s.EstimateEnum, len(s.Sample))
}

// EdgeSample is the result of one cutoff join. Its own Sample is the output
// of that join so that it can feed the next cutoff join of a chain.
type EdgeSample struct {
	SampleBase

	// Source is the sample consumed as input: the initial sample of a vertex
	// or the edge sample of the path being extended. It is shared, not
	// copied, and must not be modified.
	Source *SampleBase

	// InputCount is the number of source solutions consumed.
	InputCount int64

	// OutputCount is the number of solutions produced. When the estimate is a
	// LowerBound this is the sum of the sampled range counts instead.
	OutputCount int64

	// TuplesRead is the number of tuples read from the access paths. It is a
	// cost signal that is kept apart from the cardinality.
	TuplesRead int64

	// HitRatio is OutputCount/InputCount, or zero when nothing was produced.
	HitRatio float64
}

func (e *EdgeSample) String() string {
	return fmt.Sprintf("EdgeSample{in=%d,out=%d,read=%d,f=%.4f,estCard=%d,limit=%d,estimate=%s,size=%d}",
		e.InputCount, e.OutputCount, e.TuplesRead, e.HitRatio,
		e.EstimatedCardinality, e.Limit, e.EstimateEnum, len(e.Sample))
}

// hitRatio returns output/input, defined as zero when nothing was produced.
func hitRatio(inputCount, outputCount int64) float64 {
	if outputCount == 0 {
		return 0
	}
	return float64(outputCount) / float64(inputCount)
}
