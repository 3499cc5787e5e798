package features

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/go-gota/gota/dataframe"

	"github.com/lox/raincouver/internal/models"
)

// Partition is a disjoint train/test split of a feature frame and its labels.
type Partition struct {
	XTrain dataframe.DataFrame
	YTrain []bool
	XTest  dataframe.DataFrame
	YTest  []bool

	// Row indexes into the input, in partition order.
	TrainIndex []int
	TestIndex  []int
}

// Split shuffles rows with a PCG source seeded by seed and puts the first
// round(n*fraction) shuffled rows in the test partition. The same seed and
// input order always yield the same partitions.
func Split(X dataframe.DataFrame, y []bool, fraction float64, seed int64) (Partition, error) {
	if X.Err != nil {
		return Partition{}, fmt.Errorf("split: %w", X.Err)
	}
	if math.IsNaN(fraction) || fraction <= 0 || fraction >= 1 {
		return Partition{}, fmt.Errorf("%w: test fraction %v not in (0, 1)", models.ErrInvalidArgument, fraction)
	}
	n := X.Nrow()
	if len(y) != n {
		return Partition{}, fmt.Errorf("%w: %d labels for %d rows", models.ErrInvalidArgument, len(y), n)
	}
	nTest := int(math.Round(float64(n) * fraction))
	if nTest == 0 || nTest == n {
		return Partition{}, fmt.Errorf("%w: test fraction %v of %d rows leaves an empty partition", models.ErrInvalidArgument, fraction, n)
	}

	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))
	perm := rng.Perm(n)

	p := Partition{
		TestIndex:  perm[:nTest],
		TrainIndex: perm[nTest:],
	}
	p.XTest = X.Subset(p.TestIndex)
	p.XTrain = X.Subset(p.TrainIndex)
	if p.XTest.Err != nil {
		return Partition{}, fmt.Errorf("subset test rows: %w", p.XTest.Err)
	}
	if p.XTrain.Err != nil {
		return Partition{}, fmt.Errorf("subset train rows: %w", p.XTrain.Err)
	}
	p.YTest = pick(y, p.TestIndex)
	p.YTrain = pick(y, p.TrainIndex)
	return p, nil
}

func pick[T any](values []T, idx []int) []T {
	out := make([]T, len(idx))
	for j, i := range idx {
		out[j] = values[i]
	}
	return out
}
