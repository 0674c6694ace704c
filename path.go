package rto

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/dolthub/go-mysql-server/sql"
)

// Path is an ordered sequence of N vertices representing N-1 joins. The cost
// of the path is developed from the sample of its first vertex followed by the
// cutoff sample of each join, in order.
//
// A Path is never modified. AddEdge returns a new Path and leaves the
// receiver, and the edge samples it shares with its extensions, untouched, so
// sibling extensions of the same path can be estimated concurrently.
//
// The cutoff sample of each join reflects the history of the path. Two paths
// can only share an edge sample if they agree on every vertex up to that
// edge. For example, {A, B, C, E, D} and {A, B, C, D, E} share the samples
// for A, B and C but not for D or E.
type Path struct {
	vertices []*Vertex

	// preds are the predicates of vertices, computed once by the constructor.
	preds []Predicate

	// cumulativeEstimatedCardinality is the sum of the estimated cardinality
	// of every edge sample along the path.
	cumulativeEstimatedCardinality int64

	// edgeSample is the sample of the cutoff join of the last vertex.
	edgeSample *EdgeSample
}

// NewPath returns the path for a single edge (v0, v1). edgeSample must be the
// cutoff join of v1 against the sample of v0.
func NewPath(v0, v1 *Vertex, edgeSample *EdgeSample) (*Path, error) {
	if v0 == nil || v1 == nil {
		return nil, ErrInvalidArgument.New("nil vertex")
	}
	if v0.Sample == nil || v1.Sample == nil {
		return nil, ErrInvalidArgument.New("vertex has not been sampled")
	}
	if v0 == v1 {
		return nil, ErrInvalidArgument.New(fmt.Sprintf("vertex %s used twice", v0))
	}
	vertices := []*Vertex{v0, v1}
	return newPath(vertices, predicatesOf(vertices), addCost(0, edgeSample), edgeSample)
}

func newPath(vertices []*Vertex, preds []Predicate, cumulativeEstimatedCardinality int64, edgeSample *EdgeSample) (*Path, error) {
	if len(vertices) != len(preds) {
		return nil, ErrInvalidArgument.New(fmt.Sprintf("%d vertices but %d predicates", len(vertices), len(preds)))
	}
	if cumulativeEstimatedCardinality < 0 {
		return nil, ErrInvalidArgument.New(fmt.Sprintf("negative cumulative cardinality %d", cumulativeEstimatedCardinality))
	}
	if edgeSample == nil {
		return nil, ErrInvalidArgument.New("nil edge sample")
	}
	if edgeSample.Sample == nil {
		return nil, ErrInvalidArgument.New("edge sample is not materialized")
	}
	return &Path{
		vertices:                       vertices,
		preds:                          preds,
		cumulativeEstimatedCardinality: cumulativeEstimatedCardinality,
		edgeSample:                     edgeSample,
	}, nil
}

// addCost combines the cumulative cost of a path with the edge sample that
// extends it.
//
// TODO: weigh in edgeSample.TuplesRead once the relative cost of tuples read
// and solutions produced is settled.
func addCost(cumulativeEstimatedCardinality int64, edgeSample *EdgeSample) int64 {
	if edgeSample == nil {
		return cumulativeEstimatedCardinality
	}
	total := cumulativeEstimatedCardinality + edgeSample.EstimatedCardinality
	if total < cumulativeEstimatedCardinality {
		return math.MaxInt64
	}
	return total
}

func predicatesOf(vertices []*Vertex) []Predicate {
	preds := make([]Predicate, len(vertices))
	for i, v := range vertices {
		preds[i] = v.Pred
	}
	return preds
}

// VertexCount returns the number of vertices in the path.
func (p *Path) VertexCount() int {
	return len(p.vertices)
}

// Vertices returns a copy of the vertices in path order.
func (p *Path) Vertices() []*Vertex {
	return append([]*Vertex(nil), p.vertices...)
}

// Predicates returns a copy of the predicates in path order.
func (p *Path) Predicates() []Predicate {
	return append([]Predicate(nil), p.preds...)
}

// VertexIDs returns the predicate ids in path order.
func (p *Path) VertexIDs() []int {
	return predIDs(p.preds)
}

// CumulativeEstimatedCardinality is the estimated cost of the path.
func (p *Path) CumulativeEstimatedCardinality() int64 {
	return p.cumulativeEstimatedCardinality
}

// EdgeSample returns the sample of the last join of the path.
func (p *Path) EdgeSample() *EdgeSample {
	return p.edgeSample
}

// Contains returns true if v is one of the vertices of the path.
func (p *Path) Contains(v *Vertex) bool {
	for _, x := range p.vertices {
		if x == v {
			return true
		}
	}
	return false
}

// IsUnorderedVariant returns true if both paths span the same vertices, in
// any order.
func (p *Path) IsUnorderedVariant(o *Path) bool {
	if o == nil {
		return false
	}
	if len(p.vertices) != len(o.vertices) {
		// AddEdge adds exactly one distinct vertex per edge, so paths of
		// different lengths never span the same set.
		return false
	}
	for _, v := range o.vertices {
		if !p.Contains(v) {
			return false
		}
	}
	return true
}

// BeginsWith returns true if the vertices of o are a prefix of the vertices
// of p, in the same order.
func (p *Path) BeginsWith(o *Path) bool {
	if o == nil {
		return false
	}
	if len(o.vertices) > len(p.vertices) {
		return false
	}
	for i, v := range o.vertices {
		if p.vertices[i] != v {
			return false
		}
	}
	return true
}

// PathSegment returns the first n predicates of the path.
func (p *Path) PathSegment(n int) ([]Predicate, error) {
	if n < 0 || n > len(p.preds) {
		return nil, ErrInvalidArgument.New(fmt.Sprintf("segment length %d out of range [0,%d]", n, len(p.preds)))
	}
	return append([]Predicate(nil), p.preds[:n]...), nil
}

// AddEdge returns a new path extending p with v. The edge is estimated by a
// cutoff join of v against the edge sample of p, which carries the bindings
// of every join so far. The cost of the new path is the cost of p plus the
// estimated cardinality of the new edge.
func (p *Path) AddEdge(ctx context.Context, est *Estimator, limit int, v *Vertex, constraints []sql.Expression) (*Path, error) {
	if v == nil {
		return nil, ErrInvalidArgument.New("nil vertex")
	}
	if p.Contains(v) {
		return nil, ErrInvalidArgument.New(fmt.Sprintf("vertex already present in path: vnew=%s, path=%s", v, p))
	}
	if p.edgeSample == nil {
		return nil, ErrInvalidArgument.New("path has no edge sample")
	}

	n := len(p.vertices)
	vertices2 := make([]*Vertex, n+1)
	preds2 := make([]Predicate, n+1)
	copy(vertices2, p.vertices)
	copy(preds2, p.preds)
	vertices2[n] = v
	preds2[n] = v.Pred

	edgeSample2, err := est.CutoffJoin(ctx, limit, preds2, constraints, &p.edgeSample.SampleBase)
	if err != nil {
		return nil, err
	}
	return newPath(vertices2, preds2, addCost(p.cumulativeEstimatedCardinality, edgeSample2), edgeSample2)
}

// withEdge extends p with v using an edge sample estimated earlier for the
// same history.
func (p *Path) withEdge(v *Vertex, edgeSample *EdgeSample) (*Path, error) {
	if v == nil {
		return nil, ErrInvalidArgument.New("nil vertex")
	}
	if p.Contains(v) {
		return nil, ErrInvalidArgument.New(fmt.Sprintf("vertex already present in path: vnew=%s, path=%s", v, p))
	}
	vertices2 := append(p.Vertices(), v)
	preds2 := append(p.Predicates(), v.Pred)
	return newPath(vertices2, preds2, addCost(p.cumulativeEstimatedCardinality, edgeSample), edgeSample)
}

func (p *Path) String() string {
	var b strings.Builder
	b.WriteString("Path{[")
	for i, pred := range p.preds {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(fmt.Sprint(pred.ID()))
	}
	b.WriteString(fmt.Sprintf("],cumEstCard=%d,sample=%s}", p.cumulativeEstimatedCardinality, p.edgeSample))
	return b.String()
}
