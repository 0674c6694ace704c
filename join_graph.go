package rto

import (
	"context"
	"fmt"
	"strings"

	"github.com/dolthub/go-mysql-server/sql"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/opentracing/opentracing-go"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// JoinGraph searches for a low cost evaluation order of its vertices using
// cutoff joins. The search proceeds in rounds:
//
// 1) Every vertex is sampled at the limit of the round. The limit grows with
// each round so that the estimates of the surviving paths become more robust.
//
// 2) In the first round, a path is seeded from every pair of vertices that
// share a variable or a constraint, with the lower cardinality vertex first.
// Only if no such pair exists are unconstrained (cross product) pairs used.
//
// 3) In every later round, the surviving paths are re-sampled at the new
// limit and each is extended by one vertex it does not cover yet. Connected
// vertices are preferred; an unconstrained join is only chosen when no
// connected vertex remains.
//
// 4) Paths spanning the same unordered set of vertices compete on their
// cumulative estimated cardinality. Only the cheapest survives.
//
// The search ends when the paths span every vertex, and the cheapest one is
// the chosen join order.
//
// Edge samples reflect the history of their path, so they are cached by the
// ordered vertex ids of the path and the limit. Paths sharing a prefix share
// the edge samples of that prefix.
type JoinGraph struct {
	vertices    []*Vertex
	ordinals    map[*Vertex]vertexIndex
	constraints []sql.Expression
	// constraintVars are the variables read by each constraint, by position.
	constraintVars [][]int

	est     *Estimator
	sampler AccessPathSampler
	cfg     Config
	edges   *lru.Cache[string, *EdgeSample]
	log     *logrus.Entry

	rounds []Round
}

// Round records the paths that survived one round of the search.
type Round struct {
	Limit int
	Paths []*Path
}

// NewJoinGraph returns a join graph over preds. Constraints are attached to
// join steps by the attacher of est.
func NewJoinGraph(
	preds []Predicate,
	constraints []sql.Expression,
	est *Estimator,
	sampler AccessPathSampler,
	cfg Config,
) (*JoinGraph, error) {
	if len(preds) < 2 {
		return nil, ErrInvalidArgument.New(fmt.Sprintf("join graph needs at least 2 vertices, got %d", len(preds)))
	}
	if len(preds) > maxSetSize+1 {
		return nil, ErrInvalidArgument.New(fmt.Sprintf("join graph supports at most %d vertices, got %d", maxSetSize+1, len(preds)))
	}
	if est == nil || sampler == nil {
		return nil, ErrInvalidArgument.New("join graph needs an estimator and a sampler")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	g := &JoinGraph{
		ordinals:    make(map[*Vertex]vertexIndex, len(preds)),
		constraints: constraints,
		est:         est,
		sampler:     sampler,
		cfg:         cfg,
		log:         est.log.WithField("op", "joinGraph"),
	}
	ids := make(map[int]struct{}, len(preds))
	for i, p := range preds {
		if p == nil {
			return nil, ErrInvalidArgument.New(fmt.Sprintf("nil predicate at position %d", i))
		}
		if _, ok := ids[p.ID()]; ok {
			return nil, ErrInvalidArgument.New(fmt.Sprintf("duplicate predicate id %d", p.ID()))
		}
		ids[p.ID()] = struct{}{}
		v := NewVertex(p)
		g.ordinals[v] = vertexIndex(i)
		g.vertices = append(g.vertices, v)
	}
	for _, c := range constraints {
		if c == nil {
			return nil, ErrInvalidArgument.New("nil constraint")
		}
		g.constraintVars = append(g.constraintVars, constraintVars(c))
	}

	edges, err := lru.New[string, *EdgeSample](cfg.EdgeCacheSize)
	if err != nil {
		return nil, err
	}
	g.edges = edges
	return g, nil
}

// Vertices returns the vertices of the graph in declaration order.
func (g *JoinGraph) Vertices() []*Vertex {
	return append([]*Vertex(nil), g.vertices...)
}

// Rounds returns the paths that survived each round of the last Run.
func (g *JoinGraph) Rounds() []Round {
	return append([]Round(nil), g.rounds...)
}

// Run searches for the cheapest join order. A failed search returns an error
// and never a partial or arbitrary order.
func (g *JoinGraph) Run(ctx context.Context) (*Path, error) {
	g.rounds = nil
	n := len(g.vertices)

	var paths []*Path
	for round := 0; round < n-1; round++ {
		limit := g.roundLimit(round)
		var err error
		paths, err = g.runRound(ctx, round, limit, paths)
		if err != nil {
			return nil, err
		}
		if len(paths) == 0 {
			return nil, ErrNoPlan.New(fmt.Sprintf("no paths survived round %d", round))
		}
		g.rounds = append(g.rounds, Round{Limit: limit, Paths: append([]*Path(nil), paths...)})
		searchRoundsTotal.Inc()
		g.log.WithFields(logrus.Fields{
			"round": round,
			"limit": limit,
			"paths": len(paths),
		}).Info("join graph round complete")
	}

	var best *Path
	for _, p := range paths {
		if g.setOf(p).len() != n {
			continue
		}
		if best == nil || cheaper(p, best) {
			best = p
		}
	}
	if best == nil {
		return nil, ErrNoPlan.New("no path spans every vertex")
	}
	g.log.WithField("path", best.String()).Info("join order chosen")
	return best, nil
}

func (g *JoinGraph) runRound(ctx context.Context, round, limit int, paths []*Path) ([]*Path, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "rto.JoinGraph.round")
	span.SetTag("round", round)
	span.SetTag("limit", limit)
	defer span.Finish()

	for _, v := range g.vertices {
		if err := v.Resample(ctx, g.sampler, limit); err != nil {
			return nil, err
		}
	}

	if round == 0 {
		seeds, err := g.seedPaths(ctx, limit)
		if err != nil {
			return nil, err
		}
		return g.prune(seeds), nil
	}

	resampled, err := g.resamplePaths(ctx, paths, limit)
	if err != nil {
		return nil, err
	}
	extended, err := g.expand(ctx, g.prune(resampled), limit)
	if err != nil {
		return nil, err
	}
	return g.prune(extended), nil
}

// roundLimit returns the sample limit used in the given round.
func (g *JoinGraph) roundLimit(round int) int {
	limit := g.cfg.InitialLimit * (round + 1)
	if limit > g.cfg.MaxLimit || limit <= 0 {
		return g.cfg.MaxLimit
	}
	return limit
}

// seedPaths builds the two vertex paths of the first round.
func (g *JoinGraph) seedPaths(ctx context.Context, limit int) ([]*Path, error) {
	type pair struct{ v0, v1 *Vertex }
	var connected, all []pair
	for i, vi := range g.vertices {
		for _, vj := range g.vertices[i+1:] {
			v0, v1 := vi, vj
			if v1.Sample.EstimatedCardinality < v0.Sample.EstimatedCardinality {
				// The minimum cardinality vertex always starts the path.
				v0, v1 = v1, v0
			}
			all = append(all, pair{v0, v1})
			if g.connected(varsOf(v0.Pred), v1) {
				connected = append(connected, pair{v0, v1})
			}
		}
	}
	pairs := connected
	if len(pairs) == 0 {
		pairs = all
	}

	ret := make([]*Path, len(pairs))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.cfg.Parallelism)
	for i, pr := range pairs {
		i, pr := i, pr
		eg.Go(func() error {
			p, err := g.estimatePath(ctx, []*Vertex{pr.v0, pr.v1}, limit)
			if err != nil {
				return err
			}
			ret[i] = p
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return ret, nil
}

// resamplePaths re-estimates every path at the given limit.
func (g *JoinGraph) resamplePaths(ctx context.Context, paths []*Path, limit int) ([]*Path, error) {
	ret := make([]*Path, len(paths))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.cfg.Parallelism)
	for i, p := range paths {
		i, p := i, p
		eg.Go(func() error {
			if p.EdgeSample().Limit >= limit {
				ret[i] = p
				return nil
			}
			np, err := g.rebuild(ctx, p.vertices, limit)
			if err != nil {
				return err
			}
			ret[i] = np
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return ret, nil
}

// expand extends every path by each vertex it may be joined with next.
func (g *JoinGraph) expand(ctx context.Context, paths []*Path, limit int) ([]*Path, error) {
	type extension struct {
		p *Path
		v *Vertex
	}
	var exts []extension
	for _, p := range paths {
		for _, v := range g.candidates(p) {
			exts = append(exts, extension{p, v})
		}
	}

	ret := make([]*Path, len(exts))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.cfg.Parallelism)
	for i, x := range exts {
		i, x := i, x
		eg.Go(func() error {
			vertices := append(x.p.Vertices(), x.v)
			np, err := g.extend(ctx, x.p, x.v, limit)
			if err != nil {
				return err
			}
			np, err = g.retryUnderflow(ctx, np, vertices, limit)
			if err != nil {
				return err
			}
			ret[i] = np
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return ret, nil
}

// candidates returns the vertices p may be extended with. Vertices connected
// to p are returned if there are any, otherwise every vertex not in p.
func (g *JoinGraph) candidates(p *Path) []*Vertex {
	covered := g.setOf(p)
	bound := make(map[int]struct{})
	for _, pred := range p.preds {
		for _, v := range pred.Vars() {
			bound[v] = struct{}{}
		}
	}

	var connected, rest []*Vertex
	for i, v := range g.vertices {
		if covered.contains(vertexIndex(i)) {
			continue
		}
		rest = append(rest, v)
		if g.connected(bound, v) {
			connected = append(connected, v)
		}
	}
	if len(connected) > 0 {
		return connected
	}
	return rest
}

// connected returns true if v shares a variable with the bound set, or a
// constraint becomes evaluable once v is joined.
func (g *JoinGraph) connected(bound map[int]struct{}, v *Vertex) bool {
	if sharesVars(v.Pred, bound) {
		return true
	}
	own := varsOf(v.Pred)
	for _, vars := range g.constraintVars {
		usesV, usesBound, evaluable := false, false, true
		for _, x := range vars {
			_, inV := own[x]
			_, inBound := bound[x]
			usesV = usesV || inV
			usesBound = usesBound || inBound
			evaluable = evaluable && (inV || inBound)
		}
		if usesV && usesBound && evaluable {
			return true
		}
	}
	return false
}

// estimatePath estimates the path through vertices from scratch at the given limit.
func (g *JoinGraph) estimatePath(ctx context.Context, vertices []*Vertex, limit int) (*Path, error) {
	p, err := g.rebuild(ctx, vertices, limit)
	if err != nil {
		return nil, err
	}
	return g.retryUnderflow(ctx, p, vertices, limit)
}

// retryUnderflow re-estimates an underflowed path once at twice the limit.
// A larger cutoff on the last join alone cannot help since its input is
// exhausted, so the whole path is re-sampled.
func (g *JoinGraph) retryUnderflow(ctx context.Context, p *Path, vertices []*Vertex, limit int) (*Path, error) {
	if !g.cfg.RetryUnderflow || p.EdgeSample().EstimateEnum != Underflow {
		return p, nil
	}
	retryLimit := min(2*limit, g.cfg.MaxLimit)
	if retryLimit <= limit {
		return p, nil
	}
	g.log.WithFields(logrus.Fields{
		"path":  p.String(),
		"limit": retryLimit,
	}).Debug("edge sample underflowed, re-sampling")
	return g.rebuild(ctx, vertices, retryLimit)
}

// rebuild estimates the path through vertices at the given limit, reusing
// cached edge samples for any prefix already estimated at that limit.
func (g *JoinGraph) rebuild(ctx context.Context, vertices []*Vertex, limit int) (*Path, error) {
	if len(vertices) < 2 {
		return nil, ErrInvalidArgument.New(fmt.Sprintf("path needs at least 2 vertices, got %d", len(vertices)))
	}
	v0, v1 := vertices[0], vertices[1]
	key := edgeKey(vertices[:2], limit)
	es, ok := g.edges.Get(key)
	if !ok {
		src, err := g.vertexSample(ctx, v0, limit)
		if err != nil {
			return nil, err
		}
		es, err = g.est.CutoffJoin(ctx, limit, []Predicate{v0.Pred, v1.Pred}, g.constraints, src)
		if err != nil {
			return nil, err
		}
		g.edges.Add(key, es)
	}
	p, err := NewPath(v0, v1, es)
	if err != nil {
		return nil, err
	}
	for _, v := range vertices[2:] {
		p, err = g.extend(ctx, p, v, limit)
		if err != nil {
			return nil, err
		}
	}
	return p, nil
}

// extend adds v to p, reusing a cached edge sample for the same history.
func (g *JoinGraph) extend(ctx context.Context, p *Path, v *Vertex, limit int) (*Path, error) {
	key := edgeKey(append(p.Vertices(), v), limit)
	if es, ok := g.edges.Get(key); ok {
		return p.withEdge(v, es)
	}
	np, err := p.AddEdge(ctx, g.est, limit, v, g.constraints)
	if err != nil {
		return nil, err
	}
	g.edges.Add(key, np.EdgeSample())
	return np, nil
}

// vertexSample returns a sample of v taken at limit or better. The sample of
// v itself is not replaced, since other paths may be reading it.
func (g *JoinGraph) vertexSample(ctx context.Context, v *Vertex, limit int) (*SampleBase, error) {
	if v.Sample != nil && (v.Sample.IsExact() || v.Sample.Limit >= limit) {
		return v.Sample, nil
	}
	tmp := NewVertex(v.Pred)
	if err := tmp.Resample(ctx, g.sampler, limit); err != nil {
		return nil, err
	}
	return tmp.Sample, nil
}

// prune keeps the cheapest path for every unordered set of vertices.
func (g *JoinGraph) prune(paths []*Path) []*Path {
	// plans maps from a set of vertices to the position of the cheapest path
	// over exactly those vertices.
	plans := make(map[vertexSet]int)
	kept := make([]*Path, 0, len(paths))
	for _, p := range paths {
		set := g.setOf(p)
		if i, ok := plans[set]; ok {
			if cheaper(p, kept[i]) {
				kept[i] = p
			}
			g.log.Debugf("pruned variant over %s", set)
			prunedPathsTotal.Inc()
			continue
		}
		plans[set] = len(kept)
		kept = append(kept, p)
	}
	return kept
}

// setOf returns the vertices of p as a vertexSet.
func (g *JoinGraph) setOf(p *Path) vertexSet {
	s := vertexSet(0)
	for _, v := range p.vertices {
		s = s.add(g.ordinals[v])
	}
	return s
}

// cheaper returns true if a costs less than b. Ties go to the path that read
// fewer tuples on its last join, then to b.
func cheaper(a, b *Path) bool {
	if a.cumulativeEstimatedCardinality != b.cumulativeEstimatedCardinality {
		return a.cumulativeEstimatedCardinality < b.cumulativeEstimatedCardinality
	}
	return a.edgeSample.TuplesRead < b.edgeSample.TuplesRead
}

func varsOf(p Predicate) map[int]struct{} {
	vars := make(map[int]struct{})
	for _, v := range p.Vars() {
		vars[v] = struct{}{}
	}
	return vars
}

func edgeKey(vertices []*Vertex, limit int) string {
	var b strings.Builder
	for i, v := range vertices {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(fmt.Sprint(v.Pred.ID()))
	}
	b.WriteString(fmt.Sprintf("@%d", limit))
	return b.String()
}
