// Package metric implements the pluggable similarity kernels used by the
// graph engine. A kernel is a pure function sim(a, b) -> f32 plus a
// sim-to-origin helper used to seed traversal at the sentinel. Kernels are
// selected once, at index construction, by a Metric tag; the engine itself
// never branches on which one is active.
package metric

import (
	"fmt"
	"math"

	"github.com/klauspost/cpuid/v2"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/gonum"
)

// Metric identifies a similarity kernel. Lower values mean "more similar":
// the graph engine treats sim as a distance, not a score, so 0 means
// identical and values grow with dissimilarity.
type Metric int

const (
	// SquaredL2 is squared Euclidean distance. Non-negative, symmetric,
	// zero on equal inputs; satisfies the kernel requirements without
	// needing a triangle inequality.
	SquaredL2 Metric = iota
	// Cosine is 1 - cosine similarity, folded into the same "lower is
	// closer" convention as SquaredL2.
	Cosine
	// Dot is negated inner product, so that larger raw dot products
	// still sort as "closer" under the engine's min-first ordering.
	Dot
)

func (m Metric) String() string {
	switch m {
	case SquaredL2:
		return "squared_l2"
	case Cosine:
		return "cosine"
	case Dot:
		return "dot"
	default:
		return fmt.Sprintf("metric(%d)", int(m))
	}
}

// Func computes the similarity between two vectors of equal length.
// Implementations are not required to validate lengths; callers that cross
// a trust boundary validate dimension before calling into a Func.
type Func func(a, b []float32) float32

// ZeroFunc computes the similarity between a vector and the all-zero
// origin vector, i.e. the sentinel's data. It is provided separately so
// implementations can skip loading a second operand entirely.
type ZeroFunc func(a []float32) float32

// Provider bundles a metric tag with its concrete kernel implementations.
type Provider struct {
	Metric Metric
	Sim    Func
	// SimZero is defined as Sim(a, zero) for the same metric, used by the
	// graph engine to seed the search frontier at the sentinel node.
	SimZero ZeroFunc
}

// blasImpl is a package-level gonum BLAS implementation, selected once.
// gonum.Implementation dispatches to hand-written assembly kernels on
// amd64/arm64 and falls back to pure Go elsewhere; cpuid is consulted only
// to pick blasCrossover below, since gonum's own dispatch is opaque to
// callers.
var blasImpl blas.Float32Level1 = gonum.Implementation{}

// blasCrossover is the vector length above which dispatching into BLAS pays
// for itself over a plain Go loop. CPUs with fused multiply-add run the
// straight loop fast enough that the crossover sits higher.
var blasCrossover = 16

func init() {
	if cpuid.CPU.Supports(cpuid.FMA3) {
		blasCrossover = 32
	}
}

// NewProvider returns the Provider for the given metric tag.
func NewProvider(m Metric) (*Provider, error) {
	switch m {
	case SquaredL2:
		return &Provider{Metric: m, Sim: squaredL2, SimZero: squaredL2Zero}, nil
	case Cosine:
		return &Provider{Metric: m, Sim: cosineDist, SimZero: cosineDistZero}, nil
	case Dot:
		return &Provider{Metric: m, Sim: negDot, SimZero: negDotZero}, nil
	default:
		return nil, fmt.Errorf("metric: unknown metric tag %d", int(m))
	}
}

// squaredL2 computes the squared Euclidean distance between a and b using a
// BLAS axpy-based difference accumulation when the slices are long enough to
// amortize the call overhead, and a straight loop otherwise.
func squaredL2(a, b []float32) float32 {
	n := len(a)
	if n == 0 {
		return 0
	}
	if n < blasCrossover {
		var sum float32
		for i := 0; i < n; i++ {
			d := a[i] - b[i]
			sum += d * d
		}
		return sum
	}

	diff := make([]float32, n)
	copy(diff, a)
	blasImpl.Saxpy(n, -1, b, 1, diff, 1)
	return blasImpl.Sdot(n, diff, 1, diff, 1)
}

func squaredL2Zero(a []float32) float32 {
	return blasImpl.Sdot(len(a), a, 1, a, 1)
}

// cosineDist returns 1 - cosine_similarity(a, b), clamped to [0, 2] to absorb
// floating point drift at the extremes.
func cosineDist(a, b []float32) float32 {
	n := len(a)
	if n == 0 {
		return 0
	}
	dot := blasImpl.Sdot(n, a, 1, b, 1)
	na := blasImpl.Sdot(n, a, 1, a, 1)
	nb := blasImpl.Sdot(n, b, 1, b, 1)
	if na == 0 || nb == 0 {
		return 1
	}
	cos := dot / float32(math.Sqrt(float64(na)*float64(nb)))
	d := 1 - cos
	if d < 0 {
		return 0
	}
	if d > 2 {
		return 2
	}
	return d
}

// cosineDistZero treats the origin as having undefined direction, so it is
// maximally dissimilar from every non-zero vector.
func cosineDistZero(a []float32) float32 {
	return 1
}

func negDot(a, b []float32) float32 {
	n := len(a)
	if n == 0 {
		return 0
	}
	return -blasImpl.Sdot(n, a, 1, b, 1)
}

func negDotZero(a []float32) float32 {
	return 0
}
