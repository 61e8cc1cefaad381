package hsg_test

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nav-graph/hsg"
	"github.com/nav-graph/hsg/metric"
)

func newTestIndex(t *testing.T, dimension int, opts ...func(*hsg.Options)) *hsg.Index {
	t.Helper()
	idx, err := hsg.New(dimension, opts...)
	require.NoError(t, err)
	return idx
}

// Scenario 1: a tiny four-point square, queried near one corner.
func TestSearch_FourPointSquare(t *testing.T) {
	idx := newTestIndex(t, 2, func(o *hsg.Options) {
		o.Metric = metric.SquaredL2
		o.ShortLowerLimit = 2
		o.ShortUpperLimit = 4
		o.Magnification = 0
		o.CoverRange = 2
	})

	points := [][]float32{
		{0, 0},
		{1, 0},
		{0, 1},
		{1, 1},
	}
	for i, p := range points {
		require.NoError(t, idx.Insert(uint64(i+1), p))
	}

	results, err := idx.Search([]float32{0.1, 0.1}, 2, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, uint64(1), results[0].ID)
	assert.InDelta(t, 0.02, results[0].Distance, 1e-4)
}

// Scenario 2: a symmetric center query over the same square returns every
// point, all tied at the same distance.
func TestSearch_FourPointSquare_CenterQueryReturnsAll(t *testing.T) {
	idx := newTestIndex(t, 2, func(o *hsg.Options) {
		o.ShortLowerLimit = 2
		o.ShortUpperLimit = 4
		o.Magnification = 0
		o.CoverRange = 2
	})

	points := [][]float32{
		{0, 0},
		{1, 0},
		{0, 1},
		{1, 1},
	}
	for i, p := range points {
		require.NoError(t, idx.Insert(uint64(i+1), p))
	}

	results, err := idx.Search([]float32{0.5, 0.5}, 4, 0)
	require.NoError(t, err)
	require.Len(t, results, 4)

	ids := make([]uint64, len(results))
	for i, r := range results {
		ids[i] = r.ID
		assert.InDelta(t, 0.5, r.Distance, 1e-4)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	assert.Equal(t, []uint64{1, 2, 3, 4}, ids)
}

// Scenario 3: recall against brute-force on random vectors must stay high.
func TestSearch_Recall(t *testing.T) {
	const (
		dimension = 3
		corpus    = 100
		queries   = 20
		k         = 10
	)

	idx := newTestIndex(t, dimension, func(o *hsg.Options) {
		o.ShortLowerLimit = 3
		o.ShortUpperLimit = 6
		o.Magnification = 2
		o.CoverRange = 3
	})

	rng := rand.New(rand.NewSource(42))
	vectors := make([][]float32, corpus)
	for i := range vectors {
		v := make([]float32, dimension)
		for d := range v {
			v[d] = rng.Float32()
		}
		vectors[i] = v
		require.NoError(t, idx.Insert(uint64(i), v))
	}

	var totalHits, totalWanted int
	for q := 0; q < queries; q++ {
		query := make([]float32, dimension)
		for d := range query {
			query[d] = rng.Float32()
		}

		truth := bruteForceKNN(vectors, query, k)
		got, err := idx.Search(query, k, 0)
		require.NoError(t, err)

		wanted := make(map[uint64]bool, len(truth))
		for _, id := range truth {
			wanted[id] = true
		}
		for _, r := range got {
			if wanted[r.ID] {
				totalHits++
			}
		}
		totalWanted += len(truth)
	}

	recall := float64(totalHits) / float64(totalWanted)
	assert.GreaterOrEqualf(t, recall, 0.9, "recall@%d was %.3f", k, recall)
}

// Boundary: k larger than the corpus returns every live node.
func TestSearch_KGreaterThanCorpus(t *testing.T) {
	idx := newTestIndex(t, 2)
	require.NoError(t, idx.Insert(1, []float32{0, 0}))
	require.NoError(t, idx.Insert(2, []float32{1, 1}))

	results, err := idx.Search([]float32{0, 0}, 10, 0)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

// Boundary: a single insertion is reachable and searchable on its own.
func TestInsert_SingleNode(t *testing.T) {
	idx := newTestIndex(t, 2)
	require.NoError(t, idx.Insert(1, []float32{3, 4}))
	assert.Equal(t, 1, idx.Len())

	results, err := idx.Search([]float32{3, 4}, 1, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint64(1), results[0].ID)
	assert.InDelta(t, 0, results[0].Distance, 1e-6)
}

// Boundary: duplicate ids fail without mutating the graph.
func TestInsert_DuplicateID(t *testing.T) {
	idx := newTestIndex(t, 2)
	require.NoError(t, idx.Insert(1, []float32{0, 0}))

	err := idx.Insert(1, []float32{9, 9})
	require.Error(t, err)
	var dup *hsg.ErrDuplicateID
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, uint64(1), dup.ID)
	assert.Equal(t, 1, idx.Len())
}

// Boundary: dimension mismatch on search fails without touching the graph.
func TestSearch_DimensionMismatch(t *testing.T) {
	idx := newTestIndex(t, 3)
	for i := 0; i < 10; i++ {
		require.NoError(t, idx.Insert(uint64(i), []float32{float32(i), 0, 0}))
	}

	_, err := idx.Search([]float32{1, 2}, 1, 0)
	require.Error(t, err)
	var mismatch *hsg.ErrDimensionMismatch
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 10, idx.Len())
}

// Boundary: searching an index with only the sentinel fails.
func TestSearch_EmptyIndex(t *testing.T) {
	idx := newTestIndex(t, 2)
	_, err := idx.Search([]float32{0, 0}, 1, 0)
	assert.ErrorIs(t, err, hsg.ErrEmptyIndex)
}

// Reserved id rejection.
func TestInsert_ReservedID(t *testing.T) {
	idx := newTestIndex(t, 2)
	err := idx.Insert(hsg.SentinelID, []float32{0, 0})
	assert.ErrorIs(t, err, hsg.ErrReservedID)
}

func bruteForceKNN(corpus [][]float32, query []float32, k int) []uint64 {
	type scored struct {
		id uint64
		d  float32
	}
	scores := make([]scored, len(corpus))
	for i, v := range corpus {
		var d float32
		for j := range v {
			diff := v[j] - query[j]
			d += diff * diff
		}
		scores[i] = scored{id: uint64(i), d: d}
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].d < scores[j].d })
	if k > len(scores) {
		k = len(scores)
	}
	out := make([]uint64, k)
	for i := 0; i < k; i++ {
		out[i] = scores[i].id
	}
	return out
}
