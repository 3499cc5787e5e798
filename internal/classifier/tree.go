package classifier

import (
	"sort"
)

// DecisionTree is a CART classifier splitting on Gini impurity. Nodes are
// stored flat so the fitted tree gob-encodes without pointers.
type DecisionTree struct {
	MaxDepth        int // 0 grows until leaves are pure
	MinSamplesSplit int

	Nodes     []TreeNode
	NFeatures int
}

type TreeNode struct {
	Feature   int // -1 for a leaf
	Threshold float64
	Left      int
	Right     int
	Value     bool
	Samples   int
}

func NewDecisionTree() *DecisionTree {
	return &DecisionTree{MinSamplesSplit: 2}
}

func (m *DecisionTree) Family() Family { return FamilyDecisionTree }

func (m *DecisionTree) Clone() Classifier {
	return &DecisionTree{MaxDepth: m.MaxDepth, MinSamplesSplit: m.MinSamplesSplit}
}

func (m *DecisionTree) Fit(X [][]float64, y []bool) error {
	nfeat, err := checkTrain(X, y)
	if err != nil {
		return err
	}
	m.NFeatures = nfeat
	m.Nodes = m.Nodes[:0]

	idx := make([]int, len(X))
	for i := range idx {
		idx[i] = i
	}
	m.grow(X, y, idx, 0)
	return nil
}

func (m *DecisionTree) grow(X [][]float64, y []bool, idx []int, depth int) int {
	pos := countTrue(y, idx)
	node := TreeNode{Feature: -1, Samples: len(idx), Value: 2*pos > len(idx)}
	at := len(m.Nodes)
	m.Nodes = append(m.Nodes, node)

	minSplit := m.MinSamplesSplit
	if minSplit < 2 {
		minSplit = 2
	}
	if pos == 0 || pos == len(idx) || len(idx) < minSplit || (m.MaxDepth > 0 && depth >= m.MaxDepth) {
		return at
	}

	feature, threshold, ok := bestSplit(X, y, idx, m.NFeatures)
	if !ok {
		return at
	}

	var left, right []int
	for _, i := range idx {
		if X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := m.grow(X, y, left, depth+1)
	r := m.grow(X, y, right, depth+1)
	m.Nodes[at].Feature = feature
	m.Nodes[at].Threshold = threshold
	m.Nodes[at].Left = l
	m.Nodes[at].Right = r
	return at
}

// bestSplit scans every midpoint between distinct sorted feature values and
// returns the split with the lowest weighted Gini impurity. The first
// feature and threshold win ties.
func bestSplit(X [][]float64, y []bool, idx []int, nfeat int) (int, float64, bool) {
	n := len(idx)
	totalPos := countTrue(y, idx)
	best := 2.0
	bestFeature, bestThreshold := -1, 0.0

	sorted := make([]int, n)
	for f := 0; f < nfeat; f++ {
		copy(sorted, idx)
		sort.SliceStable(sorted, func(a, b int) bool { return X[sorted[a]][f] < X[sorted[b]][f] })

		leftPos := 0
		for k := 0; k < n-1; k++ {
			if y[sorted[k]] {
				leftPos++
			}
			lo, hi := X[sorted[k]][f], X[sorted[k+1]][f]
			if lo == hi {
				continue
			}
			nl, nr := k+1, n-k-1
			impurity := (float64(nl)*gini(leftPos, nl) + float64(nr)*gini(totalPos-leftPos, nr)) / float64(n)
			if impurity < best {
				best = impurity
				bestFeature = f
				bestThreshold = lo + (hi-lo)/2
				// Adjacent floats can round the midpoint up to hi.
				if bestThreshold == hi {
					bestThreshold = lo
				}
			}
		}
	}
	return bestFeature, bestThreshold, bestFeature >= 0
}

func gini(pos, n int) float64 {
	if n == 0 {
		return 0
	}
	p := float64(pos) / float64(n)
	return 1 - p*p - (1-p)*(1-p)
}

func countTrue(y []bool, idx []int) int {
	c := 0
	for _, i := range idx {
		if y[i] {
			c++
		}
	}
	return c
}

func (m *DecisionTree) Predict(X [][]float64) ([]bool, error) {
	if len(m.Nodes) == 0 {
		return nil, ErrNotFitted
	}
	if err := checkPredict(X, m.NFeatures); err != nil {
		return nil, err
	}
	out := make([]bool, len(X))
	for r, row := range X {
		n := m.Nodes[0]
		for n.Feature >= 0 {
			if row[n.Feature] <= n.Threshold {
				n = m.Nodes[n.Left]
			} else {
				n = m.Nodes[n.Right]
			}
		}
		out[r] = n.Value
	}
	return out, nil
}

// Depth returns the number of edges on the longest root-to-leaf path.
func (m *DecisionTree) Depth() int {
	if len(m.Nodes) == 0 {
		return 0
	}
	var walk func(i int) int
	walk = func(i int) int {
		n := m.Nodes[i]
		if n.Feature < 0 {
			return 0
		}
		return 1 + max(walk(n.Left), walk(n.Right))
	}
	return walk(0)
}
