// Package graph implements the navigable small-world engine: node/edge
// bookkeeping, the incremental insertion algorithm that establishes short
// and long edges while preserving sentinel reachability, and the
// three-phase search procedure shared by queries and insertion probes.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/nav-graph/hsg/internal/queue"
	"github.com/nav-graph/hsg/internal/visited"
	"github.com/nav-graph/hsg/metric"
	"github.com/nav-graph/hsg/store"
)

// ErrEmptyIndex is returned by Search when the graph holds only the
// sentinel node.
var ErrEmptyIndex = errors.New("graph: index is empty")

// ErrDimensionMismatch is returned when a caller-supplied vector's length
// does not match the graph's configured dimension.
type ErrDimensionMismatch struct{ Expected, Actual int }

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("graph: dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Params are the immutable knobs fixed at construction time.
type Params struct {
	Dimension int
	Metric    metric.Metric

	// ShortLowerLimit is the target short-edge out-degree: the symmetric
	// link rule keeps binding both directions until a node reaches it.
	ShortLowerLimit int
	// ShortUpperLimit is the hard ceiling on short_out, typically
	// 2*ShortLowerLimit.
	ShortUpperLimit int

	// Magnification widens the candidate set considered by an insertion's
	// neighbor probe (see TerminationNumber), trading latency for recall.
	// Search does not read it; Search takes its own magnification argument.
	Magnification int

	// CoverRange is the minimum hop separation between two long edges
	// admitted from the same insertion's short_path.
	CoverRange int

	// TerminationRounds bounds the connectivity oracle's breadth-first
	// search. The source leaves this an unexplained constant (4);
	// exposed here as a tunable per the design notes.
	TerminationRounds int
}

// DefaultParams returns a reasonable starting configuration for dimension d.
func DefaultParams(d int) Params {
	return Params{
		Dimension:         d,
		Metric:            metric.SquaredL2,
		ShortLowerLimit:   8,
		ShortUpperLimit:   16,
		Magnification:     8,
		CoverRange:        3,
		TerminationRounds: 4,
	}
}

// Validate checks that Params describe a usable index.
func (p Params) Validate() error {
	if p.Dimension <= 0 {
		return fmt.Errorf("graph: dimension must be positive, got %d", p.Dimension)
	}
	if p.ShortLowerLimit < 0 || p.ShortUpperLimit < p.ShortLowerLimit {
		return fmt.Errorf("graph: short_lower_limit (%d) must be <= short_upper_limit (%d)", p.ShortLowerLimit, p.ShortUpperLimit)
	}
	if p.Magnification < 0 {
		return fmt.Errorf("graph: magnification must be non-negative, got %d", p.Magnification)
	}
	if p.CoverRange <= 0 {
		return fmt.Errorf("graph: cover_range must be positive, got %d", p.CoverRange)
	}
	if p.TerminationRounds <= 0 {
		return fmt.Errorf("graph: termination_rounds must be positive, got %d", p.TerminationRounds)
	}
	return nil
}

// TerminationNumber is the candidate budget during insertion probes:
// short_lower_limit + magnification.
func (p Params) TerminationNumber() int {
	return p.ShortLowerLimit + p.Magnification
}

// Result is a single search hit: the caller id and its distance to the
// query under the index's configured metric.
type Result struct {
	ID       uint64
	Distance float32
}

// Graph is the core engine: node storage plus the edge partition and the
// traversal machinery built over it. Concurrent Search calls are safe with
// one another; Insert must not run concurrently with any other call. The hsg
// package enforces this with a single-writer/multi-reader lock.
type Graph struct {
	params   Params
	store    *store.Store
	provider *metric.Provider

	// Scratch traversal state is pooled rather than allocated per call, since
	// Search may be driven by many concurrent readers under the hsg
	// package's RWMutex: each call borrows its own instance and returns it,
	// so no state is shared across concurrent traversals.
	visitedPool  sync.Pool
	frontierPool sync.Pool
	resultPool   sync.Pool
}

// New creates an empty Graph, seeded with the sentinel at offset 0.
func New(params Params) (*Graph, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	provider, err := metric.NewProvider(params.Metric)
	if err != nil {
		return nil, err
	}
	return &Graph{
		params:   params,
		store:    store.New(params.Dimension),
		provider: provider,
	}, nil
}

func (g *Graph) getVisited(capacity int) *visited.VisitedSet {
	if v, ok := g.visitedPool.Get().(*visited.VisitedSet); ok {
		v.Reset()
		v.EnsureCapacity(capacity)
		return v
	}
	return visited.New(capacity)
}

func (g *Graph) putVisited(v *visited.VisitedSet) { g.visitedPool.Put(v) }

func (g *Graph) getFrontier(capacity int) *queue.PriorityQueue {
	if pq, ok := g.frontierPool.Get().(*queue.PriorityQueue); ok {
		pq.Reset()
		return pq
	}
	return queue.NewMin(capacity)
}

func (g *Graph) putFrontier(pq *queue.PriorityQueue) { g.frontierPool.Put(pq) }

func (g *Graph) getResults(capacity int) *queue.PriorityQueue {
	if pq, ok := g.resultPool.Get().(*queue.PriorityQueue); ok {
		pq.Reset()
		return pq
	}
	return queue.NewMax(capacity)
}

func (g *Graph) putResults(pq *queue.PriorityQueue) { g.resultPool.Put(pq) }

// Len returns the number of live, non-sentinel nodes.
func (g *Graph) Len() int {
	return g.store.Len() - 1
}

// Dimension returns the configured vector length.
func (g *Graph) Dimension() int { return g.params.Dimension }

func (g *Graph) sim(a, b []float32) float32 { return g.provider.Sim(a, b) }

// shortNeighbors returns every offset reachable from v in one hop via
// short_out, short_in, or keep_connected -- the edge kinds the connectivity
// oracle and the short-edge refinement phase are allowed to follow.
func (g *Graph) shortNeighbors(offset uint64) []uint64 {
	node := g.store.NodeAt(offset)
	out := make([]uint64, 0, len(node.ShortOut)+len(node.ShortIn)+len(node.KeepConnected))
	for _, e := range node.ShortOut {
		out = append(out, e.Offset)
	}
	out = append(out, node.ShortIn...)
	out = append(out, node.KeepConnected...)
	return out
}

// connected reports whether to is reachable from from within
// TerminationRounds hops over short_out, short_in, and keep_connected edges.
// Long edges are deliberately excluded: they are not guaranteed to survive
// future evictions. It is the oracle consulted before an eviction is
// allowed to drop an edge permanently rather than demote it to the
// keep_connected reserve.
func (g *Graph) connected(from, to uint64) bool {
	if from == to {
		return true
	}
	seen := map[uint64]bool{from: true}
	frontier := []uint64{from}
	for round := 0; round < g.params.TerminationRounds && len(frontier) > 0; round++ {
		next := frontier[:0:0]
		for _, v := range frontier {
			for _, off := range g.shortNeighbors(v) {
				if off == to {
					return true
				}
				if !seen[off] {
					seen[off] = true
					next = append(next, off)
				}
			}
		}
		frontier = next
	}
	return false
}

// traversal holds the bookkeeping produced by runTraversal: the path taken
// during the long-edge descent and the short-edge refinement (Insert uses
// shortPath to place new long edges; longPath is recorded but not read),
// plus the final stable offset both phases settle on before phase 3
// harvests results.
type traversal struct {
	longPath  []uint64
	shortPath []uint64
	current   uint64
	distance  float32
}

// runTraversal executes phases 1 and 2 of the shared procedure: long-edge
// descent to a local minimum, then short-edge refinement to a (generally
// closer) local minimum. Both Search and an insertion probe drive this from
// the sentinel.
//
// Per the source, a plain search seeds phase 1 from the sentinel's
// long_out, while an insertion probe seeds it with the sentinel itself
// (distance sim_zero(target)). Both call sites here seed with the sentinel
// itself, which subsumes the former and keeps search well-defined; any
// long_out edges the sentinel holds are expanded in the loop below. The
// sentinel only gains a long_out entry via the one-time bootstrap edge
// Insert lays down to the first node (see Insert) -- every long edge added
// after that is bidirectional, so phase 1 can keep descending through the
// long-edge mesh in either direction of insertion order, not just from new
// nodes back to old ones.
func (g *Graph) runTraversal(target []float32) traversal {
	t := traversal{
		current:  store.SentinelOffset,
		distance: g.provider.SimZero(target),
	}

	// Phase 1: long-edge descent.
	for {
		t.longPath = append(t.longPath, t.current)
		node := g.store.NodeAt(t.current)
		best, bestDist := t.current, t.distance
		for _, e := range node.LongOut {
			d := g.sim(target, g.store.NodeAt(e.Offset).Data)
			if d < bestDist {
				best, bestDist = e.Offset, d
			}
		}
		if best == t.current {
			break
		}
		t.current, t.distance = best, bestDist
	}

	// Phase 2: short-edge refinement.
	for {
		best, bestDist := t.current, t.distance
		for _, off := range g.shortNeighbors(t.current) {
			d := g.sim(target, g.store.NodeAt(off).Data)
			if d < bestDist {
				best, bestDist = off, d
			}
		}
		if best == t.current {
			break
		}
		t.shortPath = append(t.shortPath, best)
		t.current, t.distance = best, bestDist
	}

	return t
}

// harvestQueue runs phase 3: a best-first expansion over short edges only,
// starting from start, and returns the max-heap of up to cap results. The
// heap is returned undrained, still owned by the caller, so the caller can
// drain it ascending (Search) or in the max-heap's natural largest-first pop
// order (Insert's candidate binding, where that order is significant) and
// must return it to the pool via putResults when done.
//
// excludeSentinel keeps the sentinel out of results (it is the search
// origin, never a neighbor a caller should see) while still letting
// traversal expand through it, since the sentinel's short and long edges are
// part of the graph's connectivity. Insert's own candidate probe leaves it
// included: new nodes are allowed to bind a short edge to the sentinel the
// same as to any other node, which is how the first few insertions stay
// reachable from it.
func (g *Graph) harvestQueue(target []float32, start uint64, startDist float32, cap int, excludeSentinel bool) *queue.PriorityQueue {
	if cap <= 0 {
		cap = 1
	}

	seen := g.getVisited(g.store.Len() + 1)
	defer g.putVisited(seen)
	frontier := g.getFrontier(cap * 2)
	defer g.putFrontier(frontier)
	results := g.getResults(cap)

	seen.Visit(start)
	frontier.PushItem(queue.Item{Offset: start, Distance: startDist})
	if !excludeSentinel || start != store.SentinelOffset {
		results.PushItem(queue.Item{Offset: start, Distance: startDist})
	}

	for frontier.Len() > 0 {
		top, _ := frontier.PopItem()

		if results.Len() >= cap {
			worst, _ := results.TopItem()
			if top.Distance > worst.Distance {
				break
			}
		}

		for _, off := range g.shortNeighbors(top.Offset) {
			if seen.Visited(off) {
				continue
			}
			seen.Visit(off)
			d := g.sim(target, g.store.NodeAt(off).Data)
			frontier.PushItem(queue.Item{Offset: off, Distance: d})

			if excludeSentinel && off == store.SentinelOffset {
				continue
			}

			if results.Len() < cap {
				results.PushItem(queue.Item{Offset: off, Distance: d})
				continue
			}
			worst, _ := results.TopItem()
			if d < worst.Distance {
				results.PopItem()
				results.PushItem(queue.Item{Offset: off, Distance: d})
			}
		}
	}

	return results
}

// Search finds the k offsets nearest to query, widening the internal
// harvest by magnification entries to trade latency for recall.
func (g *Graph) Search(query []float32, k, magnification int) ([]Result, error) {
	if len(query) != g.params.Dimension {
		return nil, &ErrDimensionMismatch{Expected: g.params.Dimension, Actual: len(query)}
	}
	if g.Len() == 0 {
		return nil, ErrEmptyIndex
	}
	if k <= 0 {
		return nil, nil
	}
	if magnification < 0 {
		magnification = 0
	}

	t := g.runTraversal(query)
	results := g.harvestQueue(query, t.current, t.distance, k+magnification, true)
	defer g.putResults(results)

	items := make([]queue.Item, results.Len())
	for i := len(items) - 1; i >= 0; i-- {
		item, _ := results.PopItem()
		items[i] = item
	}

	if k < len(items) {
		items = items[:k]
	}
	out := make([]Result, 0, len(items))
	for _, it := range items {
		// harvestQueue already excludes the sentinel; this guard is
		// defensive against future callers changing that.
		if it.Offset == store.SentinelOffset {
			continue
		}
		out = append(out, Result{ID: g.store.NodeAt(it.Offset).ID, Distance: it.Distance})
	}
	return out, nil
}

// Insert adds a new node for id with the given vector, binds it into the
// short-edge neighborhood of its nearest existing nodes with eviction and
// connectivity protection, and lays down long edges along the path taken to
// reach it. Insertion is total: a well-formed (id, data) pair never fails.
func (g *Graph) Insert(id uint64, data []float32) error {
	_, offset, err := g.store.Insert(id, data)
	if err != nil {
		return err
	}

	t := g.runTraversal(data)
	candidates := g.harvestQueue(data, t.current, t.distance, g.params.TerminationNumber(), false)
	defer g.putResults(candidates)

	n := g.store.NodeAt(offset)

	// Drain largest-first, as the source does; only the eviction step
	// inside bindCandidate is order-sensitive. Stop once n.short_out has
	// reached the degree ceiling so a wide Magnification can't push n past
	// short_upper_limit.
	for candidates.Len() > 0 && len(n.ShortOut) < g.params.ShortUpperLimit {
		c, _ := candidates.PopItem()
		if c.Offset == offset {
			continue
		}
		g.bindCandidate(offset, c.Offset, c.Distance)
	}

	if len(t.shortPath) >= g.params.CoverRange {
		for i := g.params.CoverRange - 1; i < len(t.shortPath); i += g.params.CoverRange {
			hop := t.shortPath[i]
			d := g.sim(data, g.store.NodeAt(hop).Data)
			g.addLongEdge(offset, hop, d)
		}
	}

	// One-time bootstrap: the sentinel never originates a long edge on its
	// own (long edges are only admitted from a newly inserted node's
	// short_path), so without this its long_out would stay empty forever
	// and phase 1 of every traversal would have nothing to descend through.
	// Linking it to the very first inserted node gives phase 1 an entry
	// into the long-edge mesh; every edge added afterwards (including the
	// cover_range ones above) is bidirectional, so later traversals can
	// keep descending through it in either direction of insertion order.
	sentinel := g.store.NodeAt(store.SentinelOffset)
	if len(sentinel.LongOut) == 0 {
		g.addLongEdge(store.SentinelOffset, offset, g.provider.SimZero(data))
	}

	return nil
}

// bindCandidate implements the per-candidate step of §4.3.1's short-edge
// binding: u is a node the insertion probe surfaced as a candidate neighbor
// for the new node n (at offset nOff, distance d from u).
func (g *Graph) bindCandidate(nOff, uOff uint64, d float32) {
	// Insert (d, u) into n.short_out; insert n into u.short_in.
	g.insertShortOut(nOff, uOff, d)
	g.insertShortIn(uOff, nOff)

	u := g.store.NodeAt(uOff)
	if len(u.ShortOut) < g.params.ShortLowerLimit {
		// Symmetric link rule: u still wants more short edges, no
		// eviction needed.
		g.insertShortOut(uOff, nOff, d)
		g.insertShortIn(nOff, uOff)
		return
	}

	// u.short_out is ordered ascending by distance; the last entry is
	// its current farthest neighbor.
	farIdx := len(u.ShortOut) - 1
	far := u.ShortOut[farIdx]
	if d >= far.Distance {
		// No symmetric link: the asymmetric n->u edge suffices.
		return
	}

	wasMutual := offsetIn(far.Offset, u.ShortIn)

	u.ShortOut = append(u.ShortOut[:farIdx:farIdx], u.ShortOut[farIdx+1:]...)
	g.removeShortIn(far.Offset, uOff)

	if !wasMutual && !g.connected(uOff, far.Offset) {
		if len(u.ShortOut) < g.params.ShortUpperLimit {
			// Room to reinstate: keep the evicted edge rather than
			// risk disconnecting far, and skip binding n this round.
			g.insertShortOut(uOff, far.Offset, far.Distance)
			g.insertShortIn(far.Offset, uOff)
			return
		}
		g.addKeepConnected(uOff, far.Offset)
	}

	g.insertShortOut(uOff, nOff, d)
	g.insertShortIn(nOff, uOff)
}

// offsetIn reports whether offset appears in set.
func offsetIn(offset uint64, set []uint64) bool {
	for _, o := range set {
		if o == offset {
			return true
		}
	}
	return false
}

// insertShortOut inserts (to, d) into from's short_out, keeping the
// multiset ordered ascending by distance.
func (g *Graph) insertShortOut(from, to uint64, d float32) {
	node := g.store.NodeAt(from)
	edge := store.Edge{Offset: to, Distance: d}
	i := sort.Search(len(node.ShortOut), func(i int) bool { return node.ShortOut[i].Distance >= d })
	node.ShortOut = append(node.ShortOut, store.Edge{})
	copy(node.ShortOut[i+1:], node.ShortOut[i:])
	node.ShortOut[i] = edge
}

func (g *Graph) insertShortIn(offset, from uint64) {
	node := g.store.NodeAt(offset)
	if !offsetIn(from, node.ShortIn) {
		node.ShortIn = append(node.ShortIn, from)
	}
}

func (g *Graph) removeShortIn(offset, from uint64) {
	node := g.store.NodeAt(offset)
	for i, o := range node.ShortIn {
		if o == from {
			node.ShortIn = append(node.ShortIn[:i], node.ShortIn[i+1:]...)
			return
		}
	}
}

// addKeepConnected records a symmetric reserve link between a and b, used to
// hold a neighbor reachable after its short edge has been evicted.
func (g *Graph) addKeepConnected(a, b uint64) {
	na := g.store.NodeAt(a)
	if offsetIn(b, na.KeepConnected) {
		return
	}
	na.KeepConnected = append(na.KeepConnected, b)
	nb := g.store.NodeAt(b)
	nb.KeepConnected = append(nb.KeepConnected, a)
}

// addLongEdge records a long edge between a and b as a pair of directed
// out-edges, one each way, used as navigation shortcuts during phase 1 of
// future traversals. Phase 1 only ever expands long_out, so a one-way edge
// would only ever be usable from the node it was recorded against; making
// every long edge reciprocal lets descent move through the long-edge mesh
// regardless of which of the two nodes was inserted first.
func (g *Graph) addLongEdge(a, b uint64, d float32) {
	g.linkLongOut(a, b, d)
	g.linkLongOut(b, a, d)
}

func (g *Graph) linkLongOut(from, to uint64, d float32) {
	fromNode := g.store.NodeAt(from)
	fromNode.LongOut = append(fromNode.LongOut, store.Edge{Offset: to, Distance: d})
	toNode := g.store.NodeAt(to)
	if toNode.LongIn == nil {
		toNode.LongIn = make(map[uint64]float32)
	}
	toNode.LongIn[from] = d
}
