// Package scoring computes binary classification metrics with rain as the
// positive class.
package scoring

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/lox/raincouver/internal/models"
)

type Metric string

const (
	Accuracy  Metric = "accuracy"
	Precision Metric = "precision"
	Recall    Metric = "recall"
	F1        Metric = "f1"
)

// Metrics lists every supported metric in report order.
var Metrics = []Metric{Accuracy, Precision, Recall, F1}

func ParseMetric(s string) (Metric, error) {
	for _, m := range Metrics {
		if string(m) == strings.TrimSpace(s) {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: unknown metric %q", models.ErrInvalidArgument, s)
}

// ParseMetrics parses a metric list, rejecting empty lists and duplicates.
func ParseMetrics(names []string) ([]Metric, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no metrics requested", models.ErrInvalidArgument)
	}
	out := make([]Metric, 0, len(names))
	seen := make(map[Metric]bool, len(names))
	for _, name := range names {
		m, err := ParseMetric(name)
		if err != nil {
			return nil, err
		}
		if seen[m] {
			return nil, fmt.Errorf("%w: duplicate metric %q", models.ErrInvalidArgument, name)
		}
		seen[m] = true
		out = append(out, m)
	}
	return out, nil
}

// Confusion counts outcomes with true (rain) as positive.
type Confusion struct {
	TP, FP, TN, FN int
}

func NewConfusion(yTrue, yPred []bool) (Confusion, error) {
	if len(yTrue) != len(yPred) {
		return Confusion{}, fmt.Errorf("%w: %d labels, %d predictions", models.ErrInvalidArgument, len(yTrue), len(yPred))
	}
	if len(yTrue) == 0 {
		return Confusion{}, fmt.Errorf("%w: nothing to score", models.ErrInvalidArgument)
	}
	var c Confusion
	for i, t := range yTrue {
		switch p := yPred[i]; {
		case t && p:
			c.TP++
		case !t && p:
			c.FP++
		case !t && !p:
			c.TN++
		default:
			c.FN++
		}
	}
	return c, nil
}

func (c Confusion) Total() int { return c.TP + c.FP + c.TN + c.FN }

func (c Confusion) Accuracy() float64 {
	return ratio(c.TP+c.TN, c.Total())
}

func (c Confusion) Precision() float64 { return ratio(c.TP, c.TP+c.FP) }

func (c Confusion) Recall() float64 { return ratio(c.TP, c.TP+c.FN) }

func (c Confusion) F1() float64 { return f1(c.Precision(), c.Recall()) }

// Negative returns the confusion with the classes swapped, so its precision
// and recall describe the "No rain" class.
func (c Confusion) Negative() Confusion {
	return Confusion{TP: c.TN, FP: c.FN, TN: c.TP, FN: c.FP}
}

func (c Confusion) Value(m Metric) (float64, error) {
	switch m {
	case Accuracy:
		return c.Accuracy(), nil
	case Precision:
		return c.Precision(), nil
	case Recall:
		return c.Recall(), nil
	case F1:
		return c.F1(), nil
	}
	return 0, fmt.Errorf("%w: unknown metric %q", models.ErrInvalidArgument, m)
}

// Score computes one metric. Undefined ratios (no predicted or actual
// positives) score 0.
func Score(m Metric, yTrue, yPred []bool) (float64, error) {
	c, err := NewConfusion(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return c.Value(m)
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func f1(p, r float64) float64 {
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

// Round rounds half away from zero to the given number of decimal places
// using exact decimal arithmetic.
func Round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}
