package modelsel

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"gonum.org/v1/gonum/stat"

	"github.com/lox/raincouver/internal/classifier"
	"github.com/lox/raincouver/internal/models"
	"github.com/lox/raincouver/internal/pipeline"
	"github.com/lox/raincouver/internal/preprocess"
	"github.com/lox/raincouver/internal/scoring"
)

// Candidate is a named, unfitted model to cross-validate. Compare only ever
// fits clones of Model.
type Candidate struct {
	Name  string
	Model classifier.Classifier
}

// DefaultCandidates returns one default-configured model per family.
func DefaultCandidates() []Candidate {
	return []Candidate{
		{Name: "DecisionTree", Model: classifier.NewDecisionTree()},
		{Name: "LogisticRegression", Model: classifier.NewLogisticRegression()},
		{Name: "KNeighbors", Model: classifier.NewKNeighbors()},
		{Name: "SVC", Model: classifier.NewSVC()},
	}
}

// Cell is one (row, model) entry of a Report. Std is the sample standard
// deviation over folds.
type Cell struct {
	Mean  float64
	Std   float64
	Folds []float64
}

// Summary formats the cell as "mean (+/- std)".
func (c Cell) Summary() string {
	return fmt.Sprintf("%0.3f (+/- %0.3f)", c.Mean, c.Std)
}

// Report is a cross-validation table: rows test_<metric> and
// train_<metric>, columns are candidate names in insertion order.
type Report struct {
	rows     []string
	models   []string
	families map[string]classifier.Family
	cells    map[string]map[string]Cell // row -> model -> cell
}

// RowName returns the report row for a metric on the validation ("test") or
// training ("train") folds.
func RowName(split string, m scoring.Metric) string {
	return split + "_" + string(m)
}

func (r *Report) Rows() []string { return append([]string(nil), r.rows...) }

func (r *Report) Models() []string { return append([]string(nil), r.models...) }

func (r *Report) Family(model string) (classifier.Family, bool) {
	f, ok := r.families[model]
	return f, ok
}

func (r *Report) Cell(row, model string) (Cell, bool) {
	c, ok := r.cells[row][model]
	return c, ok
}

// Value returns the mean score for (row, model).
func (r *Report) Value(row, model string) (float64, bool) {
	c, ok := r.Cell(row, model)
	return c.Mean, ok
}

func (r *Report) HasRow(row string) bool {
	_, ok := r.cells[row]
	return ok
}

// Compare cross-validates each candidate with stratified k-fold, fitting a
// fresh preprocessor and model clone on every fold, and reports mean and
// standard deviation of each metric on the training and validation folds.
// pre, candidates and X are never modified.
func Compare(ctx context.Context, pre *preprocess.Preprocessor, candidates []Candidate, X dataframe.DataFrame, y []bool, metricNames []string, opts Options) (*Report, error) {
	ms, err := scoring.ParseMetrics(metricNames)
	if err != nil {
		return nil, err
	}
	if err := validateCandidates(candidates); err != nil {
		return nil, err
	}
	folds, err := makeFolds(X, y, opts.folds())
	if err != nil {
		return nil, err
	}

	specs := make([]cvSpec, len(candidates))
	for i, c := range candidates {
		specs[i] = cvSpec{
			name: c.Name,
			newPipeline: func() *pipeline.Pipeline {
				return pipeline.New(pre.Clone(), c.Model.Clone())
			},
		}
	}

	results, err := runFolds(ctx, specs, folds, ms, true, opts.workers())
	if err != nil {
		return nil, fmt.Errorf("cross-validate: %w", err)
	}

	r := &Report{
		families: make(map[string]classifier.Family, len(candidates)),
		cells:    make(map[string]map[string]Cell),
	}
	for _, m := range ms {
		r.rows = append(r.rows, RowName("test", m), RowName("train", m))
	}
	for _, row := range r.rows {
		r.cells[row] = make(map[string]Cell, len(candidates))
	}

	for s, c := range candidates {
		r.models = append(r.models, c.Name)
		r.families[c.Name] = c.Model.Family()
		for _, m := range ms {
			test := make([]float64, len(folds))
			train := make([]float64, len(folds))
			for f, fs := range results[s] {
				test[f] = fs.test[m]
				train[f] = fs.train[m]
			}
			r.cells[RowName("test", m)][c.Name] = newCell(test)
			r.cells[RowName("train", m)][c.Name] = newCell(train)
		}
		log.Printf("modelsel: finished model %s", c.Name)
	}
	return r, nil
}

func newCell(folds []float64) Cell {
	mean, std := stat.MeanStdDev(folds, nil)
	return Cell{Mean: mean, Std: std, Folds: folds}
}

func validateCandidates(candidates []Candidate) error {
	if len(candidates) == 0 {
		return fmt.Errorf("%w: no candidate models", models.ErrInvalidArgument)
	}
	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return fmt.Errorf("%w: candidate with empty name", models.ErrInvalidArgument)
		}
		if c.Model == nil {
			return fmt.Errorf("%w: candidate %q has no model", models.ErrInvalidArgument, c.Name)
		}
		if seen[c.Name] {
			return fmt.Errorf("%w: duplicate candidate %q", models.ErrInvalidArgument, c.Name)
		}
		seen[c.Name] = true
	}
	return nil
}
