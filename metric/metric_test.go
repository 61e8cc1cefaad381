package metric

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSquaredL2_SelfDistanceIsZero(t *testing.T) {
	p, err := NewProvider(SquaredL2)
	require.NoError(t, err)

	v := []float32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20}
	assert.Equal(t, float32(0), p.Sim(v, v))
}

func TestSquaredL2_Symmetric(t *testing.T) {
	p, err := NewProvider(SquaredL2)
	require.NoError(t, err)

	a := []float32{1, 0, -2, 3}
	b := []float32{-1, 2, 0, 0.5}
	assert.InDelta(t, p.Sim(a, b), p.Sim(b, a), 1e-6)
}

func TestSquaredL2_KnownValue(t *testing.T) {
	p, err := NewProvider(SquaredL2)
	require.NoError(t, err)

	a := []float32{0, 0}
	b := []float32{3, 4}
	assert.InDelta(t, float32(25), p.Sim(a, b), 1e-5)
}

func TestSquaredL2_SimZeroMatchesExplicitZeroVector(t *testing.T) {
	p, err := NewProvider(SquaredL2)
	require.NoError(t, err)

	v := []float32{1, -2, 3}
	zero := make([]float32, len(v))
	assert.InDelta(t, p.Sim(v, zero), p.SimZero(v), 1e-6)
}

func TestNewProvider_UnknownMetric(t *testing.T) {
	_, err := NewProvider(Metric(99))
	assert.Error(t, err)
}

func TestCosine_IdenticalVectorsAreZero(t *testing.T) {
	p, err := NewProvider(Cosine)
	require.NoError(t, err)

	v := []float32{1, 2, 3}
	assert.InDelta(t, 0, p.Sim(v, v), 1e-5)
}

func TestDot_NegatesInnerProduct(t *testing.T) {
	p, err := NewProvider(Dot)
	require.NoError(t, err)

	a := []float32{1, 2, 3}
	b := []float32{4, 5, 6}
	assert.InDelta(t, float32(-32), p.Sim(a, b), 1e-5)
}
