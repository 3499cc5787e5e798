// Package pipeline composes a preprocessor with a classifier and persists
// the fitted result.
package pipeline

import (
	"fmt"

	"github.com/go-gota/gota/dataframe"

	"github.com/lox/raincouver/internal/classifier"
	"github.com/lox/raincouver/internal/features"
	"github.com/lox/raincouver/internal/preprocess"
	"github.com/lox/raincouver/internal/scoring"
)

// Pipeline standardizes a feature frame and feeds it to a classifier. Fit
// refits the preprocessor, so give each fold its own Pipeline.
type Pipeline struct {
	Preprocessor *preprocess.Preprocessor
	Model        classifier.Classifier
}

func New(pre *preprocess.Preprocessor, model classifier.Classifier) *Pipeline {
	return &Pipeline{Preprocessor: pre, Model: model}
}

// Clone returns an unfitted pipeline with cloned components.
func (p *Pipeline) Clone() *Pipeline {
	return New(p.Preprocessor.Clone(), p.Model.Clone())
}

func (p *Pipeline) Fit(X dataframe.DataFrame, y []bool) error {
	if err := p.Preprocessor.Fit(X); err != nil {
		return fmt.Errorf("fit preprocessor: %w", err)
	}
	m, err := p.matrix(X)
	if err != nil {
		return err
	}
	if err := p.Model.Fit(m, y); err != nil {
		return fmt.Errorf("fit %s: %w", p.Model.Family(), err)
	}
	return nil
}

func (p *Pipeline) Predict(X dataframe.DataFrame) ([]bool, error) {
	m, err := p.matrix(X)
	if err != nil {
		return nil, err
	}
	pred, err := p.Model.Predict(m)
	if err != nil {
		return nil, fmt.Errorf("predict %s: %w", p.Model.Family(), err)
	}
	return pred, nil
}

// Score predicts X and computes each metric against y.
func (p *Pipeline) Score(X dataframe.DataFrame, y []bool, metrics []scoring.Metric) (map[scoring.Metric]float64, error) {
	pred, err := p.Predict(X)
	if err != nil {
		return nil, err
	}
	c, err := scoring.NewConfusion(y, pred)
	if err != nil {
		return nil, err
	}
	out := make(map[scoring.Metric]float64, len(metrics))
	for _, m := range metrics {
		v, err := c.Value(m)
		if err != nil {
			return nil, err
		}
		out[m] = v
	}
	return out, nil
}

func (p *Pipeline) matrix(X dataframe.DataFrame) ([][]float64, error) {
	Xt, err := p.Preprocessor.Transform(X)
	if err != nil {
		return nil, fmt.Errorf("transform: %w", err)
	}
	m, err := features.ToMatrix(Xt)
	if err != nil {
		return nil, fmt.Errorf("feature matrix: %w", err)
	}
	return m, nil
}

// Evaluate scores a fitted pipeline on held-out rows and returns the
// per-class report rounded to two decimals.
func Evaluate(p *Pipeline, X dataframe.DataFrame, y []bool) (scoring.ClassificationReport, error) {
	pred, err := p.Predict(X)
	if err != nil {
		return scoring.ClassificationReport{}, fmt.Errorf("evaluate: %w", err)
	}
	r, err := scoring.NewClassificationReport(y, pred)
	if err != nil {
		return scoring.ClassificationReport{}, fmt.Errorf("evaluate: %w", err)
	}
	return r.Rounded(2), nil
}
