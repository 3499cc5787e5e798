package classifier

import (
	"fmt"
	"log"
	"math"

	"gonum.org/v1/gonum/mat"
)

// LogisticRegression minimises C·Σ log-loss + ½‖w‖² with Newton steps and a
// backtracking line search. The intercept is not penalised.
type LogisticRegression struct {
	C       float64
	MaxIter int
	Tol     float64

	Weights   []float64
	Intercept float64
	Fitted    bool
}

func NewLogisticRegression() *LogisticRegression {
	return &LogisticRegression{C: 1, MaxIter: 100, Tol: 1e-8}
}

func (m *LogisticRegression) Family() Family { return FamilyLogisticRegression }

func (m *LogisticRegression) Clone() Classifier {
	return &LogisticRegression{C: m.C, MaxIter: m.MaxIter, Tol: m.Tol}
}

func (m *LogisticRegression) WithC(c float64) Classifier {
	clone := m.Clone().(*LogisticRegression)
	clone.C = c
	return clone
}

func (m *LogisticRegression) Fit(X [][]float64, y []bool) error {
	nfeat, err := checkTrain(X, y)
	if err != nil {
		return err
	}
	if err := bothClasses(y); err != nil {
		return err
	}
	if m.C <= 0 {
		return fmt.Errorf("logistic regression: C must be positive, got %v", m.C)
	}

	// theta[0] is the intercept.
	d := nfeat + 1
	theta := make([]float64, d)
	grad := make([]float64, d)
	hess := mat.NewSymDense(d, nil)
	step := mat.NewVecDense(d, nil)
	candidate := make([]float64, d)

	obj := m.objective(X, y, theta)
	converged := false
	for iter := 0; iter < m.maxIter(); iter++ {
		m.gradHess(X, y, theta, grad, hess)

		var chol mat.Cholesky
		if ok := chol.Factorize(hess); !ok {
			return fmt.Errorf("logistic regression: hessian not positive definite at iteration %d", iter)
		}
		if err := chol.SolveVecTo(step, mat.NewVecDense(d, grad)); err != nil {
			return fmt.Errorf("logistic regression: solve newton step: %w", err)
		}

		t := 1.0
		next := obj
		accepted := false
		for halvings := 0; halvings < 30; halvings++ {
			for j := range theta {
				candidate[j] = theta[j] - t*step.AtVec(j)
			}
			next = m.objective(X, y, candidate)
			if next <= obj {
				accepted = true
				break
			}
			t /= 2
		}
		if !accepted {
			converged = true
			break
		}
		copy(theta, candidate)

		decrease := obj - next
		obj = next
		if decrease <= m.Tol*math.Max(1, math.Abs(obj)) {
			converged = true
			break
		}
	}
	if !converged {
		log.Printf("logistic regression: did not converge in %d iterations", m.maxIter())
	}

	m.Intercept = theta[0]
	m.Weights = append([]float64(nil), theta[1:]...)
	m.Fitted = true
	return nil
}

func (m *LogisticRegression) maxIter() int {
	if m.MaxIter <= 0 {
		return 100
	}
	return m.MaxIter
}

func (m *LogisticRegression) objective(X [][]float64, y []bool, theta []float64) float64 {
	var loss float64
	for i, row := range X {
		z := linear(theta, row)
		if !y[i] {
			z = -z
		}
		loss += softplus(-z)
	}
	var reg float64
	for _, w := range theta[1:] {
		reg += w * w
	}
	return m.C*loss + 0.5*reg
}

func (m *LogisticRegression) gradHess(X [][]float64, y []bool, theta, grad []float64, hess *mat.SymDense) {
	d := len(theta)
	for j := range grad {
		grad[j] = 0
	}
	h := make([]float64, d*d)

	x := make([]float64, d)
	x[0] = 1
	for i, row := range X {
		copy(x[1:], row)
		p := sigmoid(linear(theta, row))
		t := 0.0
		if y[i] {
			t = 1
		}
		r := m.C * (p - t)
		w := m.C * p * (1 - p)
		for a := 0; a < d; a++ {
			grad[a] += r * x[a]
			for b := a; b < d; b++ {
				h[a*d+b] += w * x[a] * x[b]
			}
		}
	}
	for j := 1; j < d; j++ {
		grad[j] += theta[j]
		h[j*d+j]++
	}
	// Keeps the intercept direction positive definite on separable data.
	h[0] += 1e-10

	for a := 0; a < d; a++ {
		for b := a; b < d; b++ {
			hess.SetSym(a, b, h[a*d+b])
		}
	}
}

func (m *LogisticRegression) Predict(X [][]float64) ([]bool, error) {
	if !m.Fitted {
		return nil, ErrNotFitted
	}
	if err := checkPredict(X, len(m.Weights)); err != nil {
		return nil, err
	}
	out := make([]bool, len(X))
	for r, row := range X {
		out[r] = m.decision(row) > 0
	}
	return out, nil
}

// Probability returns P(true | x) for each row.
func (m *LogisticRegression) Probability(X [][]float64) ([]float64, error) {
	if !m.Fitted {
		return nil, ErrNotFitted
	}
	if err := checkPredict(X, len(m.Weights)); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for r, row := range X {
		out[r] = sigmoid(m.decision(row))
	}
	return out, nil
}

func (m *LogisticRegression) decision(row []float64) float64 {
	z := m.Intercept
	for j, w := range m.Weights {
		z += w * row[j]
	}
	return z
}

func linear(theta, row []float64) float64 {
	z := theta[0]
	for j, v := range row {
		z += theta[j+1] * v
	}
	return z
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// softplus computes log(1+e^z) without overflow.
func softplus(z float64) float64 {
	if z > 0 {
		return z + math.Log1p(math.Exp(-z))
	}
	return math.Log1p(math.Exp(z))
}
