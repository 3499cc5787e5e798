package classifier

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultKernelCacheBytes bounds the kernel rows an SVC fit keeps in memory.
const DefaultKernelCacheBytes = 100 << 20

// kernelRows serves rows of Q[i][j] = y_i·y_j·K(x_i, x_j) on demand from a
// bounded LRU cache. Evicted rows are recycled, so a fit never holds more
// than capacity rows regardless of n.
type kernelRows struct {
	X     [][]float64
	y     []float64
	gamma float64

	capacity int
	cache    *lru.Cache[int, []float32]
	free     [][]float32
}

func newKernelRows(X [][]float64, y []float64, gamma float64, budget int) (*kernelRows, error) {
	n := len(X)
	if budget <= 0 {
		budget = DefaultKernelCacheBytes
	}
	// Two rows must be resident at once for the pair update.
	capacity := min(max(budget/(4*n), 2), n)

	k := &kernelRows{X: X, y: y, gamma: gamma, capacity: capacity}
	cache, err := lru.NewWithEvict[int, []float32](capacity, func(_ int, row []float32) {
		k.free = append(k.free, row)
	})
	if err != nil {
		return nil, fmt.Errorf("svc: kernel cache: %w", err)
	}
	k.cache = cache
	return k, nil
}

// row returns Q's i-th row. The slice stays valid until two further distinct
// rows have been requested.
func (k *kernelRows) row(i int) []float32 {
	if r, ok := k.cache.Get(i); ok {
		return r
	}
	n := len(k.X)
	var r []float32
	if last := len(k.free) - 1; last >= 0 {
		r, k.free = k.free[last], k.free[:last]
	} else {
		r = make([]float32, n)
	}
	for j := 0; j < n; j++ {
		if j == i {
			r[j] = 1
			continue
		}
		r[j] = float32(k.y[i] * k.y[j] * rbf(k.X[i], k.X[j], k.gamma))
	}
	k.cache.Add(i, r)
	return r
}
