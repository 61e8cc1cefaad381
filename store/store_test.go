package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_SeedsSentinel(t *testing.T) {
	s := New(3)
	assert.Equal(t, 1, s.Len())

	off, ok := s.Lookup(SentinelID)
	require.True(t, ok)
	assert.Equal(t, SentinelOffset, off)
	assert.Equal(t, []float32{0, 0, 0}, s.NodeAt(off).Data)
}

func TestInsert_AssignsStableOffsets(t *testing.T) {
	s := New(2)

	_, off1, err := s.Insert(1, []float32{1, 1})
	require.NoError(t, err)
	_, off2, err := s.Insert(2, []float32{2, 2})
	require.NoError(t, err)

	assert.Equal(t, uint64(1), off1)
	assert.Equal(t, uint64(2), off2)
}

func TestInsert_DuplicateID(t *testing.T) {
	s := New(2)
	_, _, err := s.Insert(1, []float32{1, 1})
	require.NoError(t, err)

	_, _, err = s.Insert(1, []float32{2, 2})
	require.Error(t, err)
	var dup *ErrDuplicateID
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, uint64(1), dup.ID)
}

func TestInsert_RejectsSentinelID(t *testing.T) {
	s := New(2)
	_, _, err := s.Insert(SentinelID, []float32{1, 1})
	assert.ErrorIs(t, err, ErrReservedID)
}

func TestInsert_RejectsDimensionMismatch(t *testing.T) {
	s := New(3)
	_, _, err := s.Insert(1, []float32{1, 1})
	require.Error(t, err)
	var mismatch *ErrDimensionMismatch
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 3, mismatch.Expected)
	assert.Equal(t, 2, mismatch.Actual)
}

func TestFree_ReusesSmallestOffsetFirst(t *testing.T) {
	s := New(1)
	_, off1, err := s.Insert(1, []float32{1})
	require.NoError(t, err)
	_, off2, err := s.Insert(2, []float32{2})
	require.NoError(t, err)
	_, off3, err := s.Insert(3, []float32{3})
	require.NoError(t, err)

	require.NoError(t, s.Free(off2))
	require.NoError(t, s.Free(off3))

	_, reused, err := s.Insert(4, []float32{4})
	require.NoError(t, err)
	assert.Equal(t, off2, reused)
	assert.True(t, s.IsLive(off1))
}

func TestFree_CannotFreeSentinel(t *testing.T) {
	s := New(2)
	err := s.Free(SentinelOffset)
	assert.Error(t, err)
}

func TestIsLive(t *testing.T) {
	s := New(1)
	_, off, err := s.Insert(1, []float32{1})
	require.NoError(t, err)
	assert.True(t, s.IsLive(off))

	require.NoError(t, s.Free(off))
	assert.False(t, s.IsLive(off))
}
