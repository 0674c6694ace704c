package rto

//go:generate stringer -type=EstimateEnum -linecomment

// EstimateEnum classifies how far a cardinality estimate can be trusted.
type EstimateEnum uint8

const (
	// Exact means the sample is the complete result, so the estimated
	// cardinality is the true cardinality.
	Exact EstimateEnum = iota // Exact

	// LowerBound means a single input solution saturated the cutoff. The true
	// fanout may exceed the limit, so the estimate is taken from the range
	// counts of the sampled access paths instead.
	LowerBound // LowerBound

	// Underflow means the whole source sample was consumed without producing
	// any output. Only full execution could confirm a true zero.
	Underflow // Underflow

	// Normal is an ordinary estimate scaled from the join hit ratio.
	Normal // Normal
)

// Code returns the single character code used in compact path traces.
func (e EstimateEnum) Code() byte {
	switch e {
	case Exact:
		return 'E'
	case LowerBound:
		return 'L'
	case Underflow:
		return 'U'
	case Normal:
		return 'N'
	default:
		return '?'
	}
}
