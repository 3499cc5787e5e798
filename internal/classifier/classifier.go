// Package classifier implements the binary classifiers compared by the
// training stage. All models are deterministic given their inputs and are
// gob-encodable once fitted.
package classifier

import (
	"encoding/gob"
	"errors"
	"fmt"

	"github.com/lox/raincouver/internal/models"
)

type Family string

const (
	FamilyDecisionTree       Family = "DecisionTree"
	FamilyLogisticRegression Family = "LogisticRegression"
	FamilyKNeighbors         Family = "KNeighbors"
	FamilySVC                Family = "SVC"
)

// Families lists every supported family in the order candidates are built.
var Families = []Family{FamilyDecisionTree, FamilyLogisticRegression, FamilyKNeighbors, FamilySVC}

// ErrNotFitted is returned by Predict before Fit.
var ErrNotFitted = errors.New("model not fitted")

// Classifier is a binary classifier over dense float64 rows.
type Classifier interface {
	Fit(X [][]float64, y []bool) error
	Predict(X [][]float64) ([]bool, error)
	// Clone returns an unfitted copy with the same hyper-parameters.
	Clone() Classifier
	Family() Family
}

// Regularized is implemented by classifiers with a C hyper-parameter.
type Regularized interface {
	Classifier
	WithC(c float64) Classifier
}

func init() {
	gob.Register(&DecisionTree{})
	gob.Register(&LogisticRegression{})
	gob.Register(&KNeighbors{})
	gob.Register(&SVC{})
}

// New returns a classifier of the given family with default hyper-parameters.
func New(f Family) (Classifier, error) {
	switch f {
	case FamilyDecisionTree:
		return NewDecisionTree(), nil
	case FamilyLogisticRegression:
		return NewLogisticRegression(), nil
	case FamilyKNeighbors:
		return NewKNeighbors(), nil
	case FamilySVC:
		return NewSVC(), nil
	}
	return nil, fmt.Errorf("%w: unknown model family %q", models.ErrInvalidArgument, f)
}

// ParseFamily maps a family name to its Family.
func ParseFamily(s string) (Family, error) {
	for _, f := range Families {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: unknown model family %q", models.ErrInvalidArgument, s)
}

func checkTrain(X [][]float64, y []bool) (int, error) {
	if len(X) == 0 {
		return 0, fmt.Errorf("%w: no training rows", models.ErrInvalidArgument)
	}
	if len(X) != len(y) {
		return 0, fmt.Errorf("%w: %d rows, %d labels", models.ErrInvalidArgument, len(X), len(y))
	}
	nfeat := len(X[0])
	for i, row := range X {
		if len(row) != nfeat {
			return 0, fmt.Errorf("%w: row %d has %d features, want %d", models.ErrInvalidArgument, i, len(row), nfeat)
		}
	}
	return nfeat, nil
}

func checkPredict(X [][]float64, nfeat int) error {
	for i, row := range X {
		if len(row) != nfeat {
			return fmt.Errorf("%w: row %d has %d features, fitted on %d", models.ErrSchemaMismatch, i, len(row), nfeat)
		}
	}
	return nil
}

func bothClasses(y []bool) error {
	var pos, neg bool
	for _, v := range y {
		if v {
			pos = true
		} else {
			neg = true
		}
		if pos && neg {
			return nil
		}
	}
	return fmt.Errorf("%w: training labels contain a single class", models.ErrInvalidArgument)
}
