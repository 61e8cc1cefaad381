// Package store provides the dense vector storage and id/offset bijection
// backing the graph engine: every node lives at a stable integer offset for
// its lifetime, ids are caller-supplied and map onto offsets, and offsets
// freed by a deletion are recycled smallest-first.
package store

import (
	"errors"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// SentinelOffset is the fixed offset of the entry-point node. It is always
// live and is never returned by the free-offset allocator.
const SentinelOffset uint64 = 0

// SentinelID is the reserved external id mapped to SentinelOffset.
const SentinelID uint64 = ^uint64(0)

// ErrReservedID is returned by Insert when called with SentinelID.
var ErrReservedID = errors.New("store: id is reserved for the sentinel")

// ErrDuplicateID is returned by Insert when id already maps to a live node.
type ErrDuplicateID struct{ ID uint64 }

func (e *ErrDuplicateID) Error() string { return fmt.Sprintf("store: duplicate id %d", e.ID) }

// ErrDimensionMismatch is returned by Insert when data's length does not
// match the store's configured dimension.
type ErrDimensionMismatch struct{ Expected, Actual int }

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("store: dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Node is a single graph vertex: a caller id, the dense vector data at this
// offset, and the four edge partitions the graph engine maintains over it.
type Node struct {
	ID   uint64
	Data []float32

	// ShortOut is an ordered multiset keyed by distance ascending, bounded
	// by short_upper_limit and normally held near short_lower_limit.
	ShortOut []Edge
	// ShortIn is the reverse index of short-edge sources: a plain set of
	// offsets, no distance.
	ShortIn []uint64
	// LongOut is an ordered multiset of navigation shortcuts, unbounded in
	// v1 but expected small (path length / cover_range).
	LongOut []Edge
	// LongIn maps a long-edge source offset to its recorded distance,
	// kept for future deletion repair.
	LongIn map[uint64]float32
	// KeepConnected is a symmetric reserve set with no distance: u is in
	// v.KeepConnected iff v is in u.KeepConnected.
	KeepConnected []uint64
}

// Edge is a directed, distance-carrying link to another offset.
type Edge struct {
	Offset   uint64
	Distance float32
}

// Store owns the dense vector arena and the id<->offset bijection. Offset 0
// always holds the sentinel (a zero vector with id SentinelID). Store is not
// safe for concurrent use; callers serialize access the same way they
// serialize graph mutation.
type Store struct {
	dimension int
	nodes     []*Node
	idToOffset map[uint64]uint64
	free       *roaring64.Bitmap
}

// New creates a Store for vectors of the given dimension, pre-seeded with
// the sentinel node at offset 0.
func New(dimension int) *Store {
	s := &Store{
		dimension:  dimension,
		nodes:      make([]*Node, 1, 64),
		idToOffset: make(map[uint64]uint64),
		free:       roaring64.New(),
	}
	s.nodes[0] = &Node{ID: SentinelID, Data: make([]float32, dimension)}
	s.idToOffset[SentinelID] = SentinelOffset
	return s
}

// Dimension returns the fixed vector length every node's Data must match.
func (s *Store) Dimension() int { return s.dimension }

// Len returns the number of live nodes, including the sentinel.
func (s *Store) Len() int {
	return len(s.nodes) - int(s.free.GetCardinality())
}

// Lookup resolves an external id to its live offset.
func (s *Store) Lookup(id uint64) (uint64, bool) {
	off, ok := s.idToOffset[id]
	return off, ok
}

// NodeAt returns the node stored at offset. offset must be live; callers
// that only have an id should resolve it via Lookup first.
func (s *Store) NodeAt(offset uint64) *Node {
	return s.nodes[offset]
}

// Insert allocates an offset for id and data, reusing the smallest freed
// offset if one is available, and returns the new node and its offset.
// It is an error to insert a duplicate id or the reserved sentinel id.
func (s *Store) Insert(id uint64, data []float32) (*Node, uint64, error) {
	if id == SentinelID {
		return nil, 0, ErrReservedID
	}
	if _, exists := s.idToOffset[id]; exists {
		return nil, 0, &ErrDuplicateID{ID: id}
	}
	if len(data) != s.dimension {
		return nil, 0, &ErrDimensionMismatch{Expected: s.dimension, Actual: len(data)}
	}

	node := &Node{ID: id, Data: data}

	if !s.free.IsEmpty() {
		offset := s.free.Minimum()
		s.free.Remove(offset)
		s.nodes[offset] = node
		s.idToOffset[id] = offset
		return node, offset, nil
	}

	offset := uint64(len(s.nodes))
	s.nodes = append(s.nodes, node)
	s.idToOffset[id] = offset
	return node, offset, nil
}

// Free releases a non-sentinel offset back to the allocator. The offset
// becomes eligible for reuse by a future Insert, smallest first.
func (s *Store) Free(offset uint64) error {
	if offset == SentinelOffset {
		return fmt.Errorf("store: cannot free the sentinel offset")
	}
	node := s.nodes[offset]
	if node == nil {
		return fmt.Errorf("store: offset %d is already free", offset)
	}
	delete(s.idToOffset, node.ID)
	s.nodes[offset] = nil
	s.free.Add(offset)
	return nil
}

// IsLive reports whether offset currently holds a node.
func (s *Store) IsLive(offset uint64) bool {
	return int(offset) < len(s.nodes) && s.nodes[offset] != nil
}
