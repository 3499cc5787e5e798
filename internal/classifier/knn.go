package classifier

import (
	"sort"
)

// KNeighbors predicts the majority label of the K nearest training rows by
// Euclidean distance. Equal distances resolve to the earlier training row;
// a tied vote predicts false.
type KNeighbors struct {
	K int

	X      [][]float64
	Y      []bool
	Fitted bool
}

func NewKNeighbors() *KNeighbors {
	return &KNeighbors{K: 5}
}

func (m *KNeighbors) Family() Family { return FamilyKNeighbors }

func (m *KNeighbors) Clone() Classifier {
	return &KNeighbors{K: m.K}
}

func (m *KNeighbors) Fit(X [][]float64, y []bool) error {
	if _, err := checkTrain(X, y); err != nil {
		return err
	}
	m.X = make([][]float64, len(X))
	for i, row := range X {
		m.X[i] = append([]float64(nil), row...)
	}
	m.Y = append([]bool(nil), y...)
	m.Fitted = true
	return nil
}

func (m *KNeighbors) Predict(X [][]float64) ([]bool, error) {
	if !m.Fitted {
		return nil, ErrNotFitted
	}
	if err := checkPredict(X, len(m.X[0])); err != nil {
		return nil, err
	}

	k := m.K
	if k <= 0 || k > len(m.X) {
		k = len(m.X)
	}
	out := make([]bool, len(X))
	idx := make([]int, len(m.X))
	dist := make([]float64, len(m.X))
	for r, row := range X {
		for i, train := range m.X {
			idx[i] = i
			dist[i] = sqDist(row, train)
		}
		sort.SliceStable(idx, func(a, b int) bool { return dist[idx[a]] < dist[idx[b]] })

		votes := 0
		for _, i := range idx[:k] {
			if m.Y[i] {
				votes++
			}
		}
		out[r] = 2*votes > k
	}
	return out, nil
}

func sqDist(a, b []float64) float64 {
	var d float64
	for i := range a {
		diff := a[i] - b[i]
		d += diff * diff
	}
	return d
}
