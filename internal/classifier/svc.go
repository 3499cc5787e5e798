package classifier

import (
	"fmt"
	"log"
	"math"

	"gonum.org/v1/gonum/stat"
)

const (
	svcEps = 1e-3
	svcTau = 1e-12
)

// SVC is a soft-margin support vector classifier with an RBF kernel, trained
// by sequential minimal optimisation with second-order working set
// selection. Gamma 0 means 1/(n_features·Var(X)).
type SVC struct {
	C     float64
	Gamma float64
	// CacheBytes bounds the kernel row cache; 0 means DefaultKernelCacheBytes.
	CacheBytes int

	FittedGamma    float64
	SupportVectors [][]float64
	DualCoef       []float64 // alpha_i·y_i per support vector
	Rho            float64
	NFeatures      int
	Fitted         bool
}

func NewSVC() *SVC {
	return &SVC{C: 1}
}

func (m *SVC) Family() Family { return FamilySVC }

func (m *SVC) Clone() Classifier {
	return &SVC{C: m.C, Gamma: m.Gamma, CacheBytes: m.CacheBytes}
}

func (m *SVC) WithC(c float64) Classifier {
	return &SVC{C: c, Gamma: m.Gamma, CacheBytes: m.CacheBytes}
}

func (m *SVC) Fit(X [][]float64, y []bool) error {
	nfeat, err := checkTrain(X, y)
	if err != nil {
		return err
	}
	if err := bothClasses(y); err != nil {
		return err
	}
	if m.C <= 0 {
		return fmt.Errorf("svc: C must be positive, got %v", m.C)
	}

	gamma := m.Gamma
	if gamma <= 0 {
		gamma = scaleGamma(X, nfeat)
	}

	n := len(X)
	sign := make([]float64, n)
	for i, v := range y {
		sign[i] = -1
		if v {
			sign[i] = 1
		}
	}

	Q, err := newKernelRows(X, sign, gamma, m.CacheBytes)
	if err != nil {
		return err
	}
	alpha, rho := solveSMO(Q, sign, m.C)

	m.SupportVectors = m.SupportVectors[:0]
	m.DualCoef = m.DualCoef[:0]
	for i, a := range alpha {
		if a > 0 {
			m.SupportVectors = append(m.SupportVectors, append([]float64(nil), X[i]...))
			m.DualCoef = append(m.DualCoef, a*sign[i])
		}
	}
	m.Rho = rho
	m.FittedGamma = gamma
	m.NFeatures = nfeat
	m.Fitted = true
	return nil
}

// solveSMO minimises ½αᵀQα − Σα subject to 0 ≤ α ≤ C and yᵀα = 0. The
// RBF kernel gives Q a unit diagonal.
func solveSMO(Q *kernelRows, y []float64, C float64) ([]float64, float64) {
	n := len(y)
	alpha := make([]float64, n)
	G := make([]float64, n)
	for i := range G {
		G[i] = -1
	}
	atUpper := func(i int) bool { return alpha[i] >= C }
	atLower := func(i int) bool { return alpha[i] <= 0 }

	maxIter := max(10_000_000, 100*n)
	iter := 0
	for ; iter < maxIter; iter++ {
		// Pick i maximising -y_i·G_i over the up set.
		gmax, gmaxIdx := math.Inf(-1), -1
		for t := 0; t < n; t++ {
			if y[t] > 0 {
				if !atUpper(t) && -G[t] >= gmax {
					gmax, gmaxIdx = -G[t], t
				}
			} else if !atLower(t) && G[t] >= gmax {
				gmax, gmaxIdx = G[t], t
			}
		}
		i := gmaxIdx
		var Qi []float32
		if i != -1 {
			Qi = Q.row(i)
		}

		// Pick j giving the largest objective decrease with i.
		gmax2, gminIdx, objDiffMin := math.Inf(-1), -1, math.Inf(1)
		for t := 0; t < n; t++ {
			if y[t] > 0 {
				if atLower(t) {
					continue
				}
				gradDiff := gmax + G[t]
				if G[t] >= gmax2 {
					gmax2 = G[t]
				}
				if gradDiff > 0 {
					quad := 2 - 2*y[i]*float64(Qi[t])
					if quad <= 0 {
						quad = svcTau
					}
					if objDiff := -(gradDiff * gradDiff) / quad; objDiff <= objDiffMin {
						gminIdx, objDiffMin = t, objDiff
					}
				}
			} else {
				if atUpper(t) {
					continue
				}
				gradDiff := gmax - G[t]
				if -G[t] >= gmax2 {
					gmax2 = -G[t]
				}
				if gradDiff > 0 {
					quad := 2 + 2*y[i]*float64(Qi[t])
					if quad <= 0 {
						quad = svcTau
					}
					if objDiff := -(gradDiff * gradDiff) / quad; objDiff <= objDiffMin {
						gminIdx, objDiffMin = t, objDiff
					}
				}
			}
		}
		if gmax+gmax2 < svcEps || gminIdx == -1 {
			break
		}
		j := gminIdx
		Qj := Q.row(j)

		oldI, oldJ := alpha[i], alpha[j]
		if y[i] != y[j] {
			quad := 2 + 2*float64(Qi[j])
			if quad <= 0 {
				quad = svcTau
			}
			delta := (-G[i] - G[j]) / quad
			diff := alpha[i] - alpha[j]
			alpha[i] += delta
			alpha[j] += delta
			if diff > 0 {
				if alpha[j] < 0 {
					alpha[j] = 0
					alpha[i] = diff
				}
			} else if alpha[i] < 0 {
				alpha[i] = 0
				alpha[j] = -diff
			}
			if diff > 0 {
				if alpha[i] > C {
					alpha[i] = C
					alpha[j] = C - diff
				}
			} else if alpha[j] > C {
				alpha[j] = C
				alpha[i] = C + diff
			}
		} else {
			quad := 2 - 2*float64(Qi[j])
			if quad <= 0 {
				quad = svcTau
			}
			delta := (G[i] - G[j]) / quad
			sum := alpha[i] + alpha[j]
			alpha[i] -= delta
			alpha[j] += delta
			if sum > C {
				if alpha[i] > C {
					alpha[i] = C
					alpha[j] = sum - C
				}
			} else if alpha[j] < 0 {
				alpha[j] = 0
				alpha[i] = sum
			}
			if sum > C {
				if alpha[j] > C {
					alpha[j] = C
					alpha[i] = sum - C
				}
			} else if alpha[i] < 0 {
				alpha[i] = 0
				alpha[j] = sum
			}
		}

		dI, dJ := alpha[i]-oldI, alpha[j]-oldJ
		for k := 0; k < n; k++ {
			G[k] += float64(Qi[k])*dI + float64(Qj[k])*dJ
		}
	}
	if iter == maxIter {
		log.Printf("svc: reached %d iterations without converging", maxIter)
	}

	// rho is the mean of y_i·G_i over free vectors, else the midpoint of
	// the feasible interval.
	ub, lb := math.Inf(1), math.Inf(-1)
	var sumFree float64
	nFree := 0
	for i := 0; i < n; i++ {
		yG := y[i] * G[i]
		switch {
		case atUpper(i):
			if y[i] < 0 {
				ub = math.Min(ub, yG)
			} else {
				lb = math.Max(lb, yG)
			}
		case atLower(i):
			if y[i] > 0 {
				ub = math.Min(ub, yG)
			} else {
				lb = math.Max(lb, yG)
			}
		default:
			nFree++
			sumFree += yG
		}
	}

	var rho float64
	switch {
	case nFree > 0:
		rho = sumFree / float64(nFree)
	case math.IsInf(ub, 1) && math.IsInf(lb, -1):
		rho = 0
	case math.IsInf(ub, 1):
		rho = lb
	case math.IsInf(lb, -1):
		rho = ub
	default:
		rho = (ub + lb) / 2
	}
	return alpha, rho
}

func (m *SVC) Predict(X [][]float64) ([]bool, error) {
	scores, err := m.Decision(X)
	if err != nil {
		return nil, err
	}
	out := make([]bool, len(scores))
	for i, s := range scores {
		out[i] = s > 0
	}
	return out, nil
}

// Decision returns the signed distance to the separating surface; positive
// means rain.
func (m *SVC) Decision(X [][]float64) ([]float64, error) {
	if !m.Fitted {
		return nil, ErrNotFitted
	}
	if err := checkPredict(X, m.NFeatures); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for r, row := range X {
		s := -m.Rho
		for k, sv := range m.SupportVectors {
			s += m.DualCoef[k] * rbf(sv, row, m.FittedGamma)
		}
		out[r] = s
	}
	return out, nil
}

func rbf(a, b []float64, gamma float64) float64 {
	return math.Exp(-gamma * sqDist(a, b))
}

// scaleGamma is 1/(n_features·Var(X)) over every element of X, or 1 when X
// is constant.
func scaleGamma(X [][]float64, nfeat int) float64 {
	flat := make([]float64, 0, len(X)*nfeat)
	for _, row := range X {
		flat = append(flat, row...)
	}
	_, std := stat.PopMeanStdDev(flat, nil)
	v := std * std
	if v == 0 || nfeat == 0 {
		return 1
	}
	return 1 / (float64(nfeat) * v)
}
