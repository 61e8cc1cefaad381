package hsg

import (
	"errors"
	"sync"

	"github.com/nav-graph/hsg/graph"
	"github.com/nav-graph/hsg/metric"
	"github.com/nav-graph/hsg/store"
)

// Options configures a new Index. Use functional options of the form
// func(*Options) passed to New to override the defaults.
type Options struct {
	Metric metric.Metric

	// ShortLowerLimit and ShortUpperLimit bound each node's short-edge
	// degree. ShortLowerLimit only binds once the graph holds more than
	// ShortLowerLimit nodes.
	ShortLowerLimit int
	ShortUpperLimit int

	// Magnification widens the candidate set considered during insertion's
	// neighbor probe, trading latency for recall. Search does not read it;
	// Search takes its own magnification argument.
	Magnification int

	// CoverRange is the window size used to place long-edge navigation
	// shortcuts along an insertion's refinement path.
	CoverRange int

	// TerminationRounds bounds the connectivity oracle's breadth-first
	// search.
	TerminationRounds int

	// Logger receives structured logs for Insert and Search calls. Defaults
	// to NoopLogger.
	Logger *Logger
}

func defaultOptions(dimension int) Options {
	p := graph.DefaultParams(dimension)
	return Options{
		Metric:            p.Metric,
		ShortLowerLimit:   p.ShortLowerLimit,
		ShortUpperLimit:   p.ShortUpperLimit,
		Magnification:     p.Magnification,
		CoverRange:        p.CoverRange,
		TerminationRounds: p.TerminationRounds,
		Logger:            NoopLogger(),
	}
}

func (o Options) toParams(dimension int) graph.Params {
	return graph.Params{
		Dimension:         dimension,
		Metric:            o.Metric,
		ShortLowerLimit:   o.ShortLowerLimit,
		ShortUpperLimit:   o.ShortUpperLimit,
		Magnification:     o.Magnification,
		CoverRange:        o.CoverRange,
		TerminationRounds: o.TerminationRounds,
	}
}

// Index is an in-memory approximate nearest-neighbor index over
// fixed-dimension float32 vectors. Index is safe for concurrent use:
// Search calls share a read lock and run in parallel, while each Insert
// takes the write lock, so inserts run one at a time and never overlap a
// Search.
type Index struct {
	mu     sync.RWMutex
	g      *graph.Graph
	logger *Logger
}

// New creates an empty Index for vectors of the given dimension.
func New(dimension int, opts ...func(*Options)) (*Index, error) {
	o := defaultOptions(dimension)
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = NoopLogger()
	}

	g, err := graph.New(o.toParams(dimension))
	if err != nil {
		return nil, err
	}
	return &Index{g: g, logger: o.Logger}, nil
}

// Insert adds id with vector data to the index. Insert is single-writer:
// it holds the index's write lock, so concurrent Insert calls from several
// goroutines are serialized.
func (idx *Index) Insert(id uint64, data []float32) error {
	if len(data) == 0 {
		idx.logger.LogInsert(id, 0, ErrNullData)
		return ErrNullData
	}
	if id == SentinelID {
		idx.logger.LogInsert(id, len(data), ErrReservedID)
		return ErrReservedID
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.g.Dimension() != len(data) {
		err := &ErrDimensionMismatch{Expected: idx.g.Dimension(), Actual: len(data)}
		idx.logger.LogInsert(id, len(data), err)
		return err
	}

	err := idx.g.Insert(id, data)
	if err != nil {
		err = translateStoreError(id, err)
	}
	idx.logger.LogInsert(id, len(data), err)
	return err
}

// Search returns up to k nearest neighbors of query. magnification widens
// the internal candidate set beyond k, trading latency for recall; 0 means
// no extra widening -- exactly k candidates are tracked.
func (idx *Index) Search(query []float32, k, magnification int) ([]graph.Result, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.g.Dimension() != len(query) {
		err := &ErrDimensionMismatch{Expected: idx.g.Dimension(), Actual: len(query)}
		idx.logger.LogSearch(k, magnification, 0, err)
		return nil, err
	}

	results, err := idx.g.Search(query, k, magnification)
	if errors.Is(err, graph.ErrEmptyIndex) {
		err = ErrEmptyIndex
	}
	idx.logger.LogSearch(k, magnification, len(results), err)
	return results, err
}

// Len returns the number of indexed vectors, excluding the sentinel.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.g.Len()
}

// Dimension returns the vector length this index was configured for.
func (idx *Index) Dimension() int {
	return idx.g.Dimension()
}

// translateStoreError maps internal store sentinel errors onto the public
// error types callers of this package match against.
func translateStoreError(id uint64, err error) error {
	var dup *store.ErrDuplicateID
	if errors.As(err, &dup) {
		return &ErrDuplicateID{ID: id}
	}
	var dim *store.ErrDimensionMismatch
	if errors.As(err, &dim) {
		return &ErrDimensionMismatch{Expected: dim.Expected, Actual: dim.Actual}
	}
	if errors.Is(err, store.ErrReservedID) {
		return ErrReservedID
	}
	return err
}
