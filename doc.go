// Package hsg implements an in-memory approximate nearest-neighbor index over
// dense float32 vectors, organized as a navigable small-world graph.
//
// Every indexed vector is a node. Edges are split into two roles: short edges,
// a bounded set of true near-neighbors that support local greedy refinement,
// and long edges, a smaller set of longer-range links collected along
// insertion paths that accelerate navigation from the index's fixed entry
// point (the sentinel).
//
// # Quick start
//
//	idx, err := hsg.New(128, func(o *hsg.Options) {
//		o.Metric = metric.SquaredL2
//		o.ShortLowerLimit = 8
//		o.Magnification = 4
//		o.CoverRange = 3
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := idx.Insert(1, vec); err != nil {
//		log.Fatal(err)
//	}
//	results, err := idx.Search(query, 10, 0)
//
// # Concurrency
//
// Insert is single-writer: the index does not support concurrent mutation.
// Index wraps the core graph in a sync.RWMutex so that callers get a safe
// multi-reader/single-writer discipline at the package boundary; Search
// callers that want to fan out concurrently should do so through a single
// shared *Index rather than by touching the graph directly.
package hsg
