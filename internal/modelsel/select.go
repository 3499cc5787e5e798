package modelsel

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"gonum.org/v1/gonum/stat"

	"github.com/lox/raincouver/internal/classifier"
	"github.com/lox/raincouver/internal/models"
	"github.com/lox/raincouver/internal/pipeline"
	"github.com/lox/raincouver/internal/preprocess"
	"github.com/lox/raincouver/internal/scoring"
)

// ErrUnsupportedSelection is returned by Tune for a winner outside the
// tunable family.
var ErrUnsupportedSelection = errors.New("selected model is not tunable")

// DefaultSelectionRow ranks models by validation F1.
const DefaultSelectionRow = "test_f1"

// DefaultGrid is the C search space, logspace(-3, 2, 6).
var DefaultGrid = []float64{1e-3, 1e-2, 1e-1, 1, 10, 100}

type Outcome int

const (
	NotTunable Outcome = iota
	Tunable
)

func (o Outcome) String() string {
	if o == Tunable {
		return "tunable"
	}
	return "not_tunable"
}

// Selection is the winner of a report row.
type Selection struct {
	Model   string
	Family  classifier.Family
	Row     string
	Score   float64
	Outcome Outcome
}

// Select picks the model with the highest mean in the given row, tagging it
// Tunable when it is an SVC.
func Select(r *Report, metric string) (Selection, error) {
	return SelectTunable(r, metric, classifier.FamilySVC)
}

// SelectTunable is Select with an explicit tunable family. metric is a row
// name such as "test_f1" or a bare metric ("f1" means "test_f1"); empty
// means DefaultSelectionRow. Equal scores go to the model inserted first.
func SelectTunable(r *Report, metric string, tunable classifier.Family) (Selection, error) {
	row := selectionRow(metric)
	if !r.HasRow(row) {
		return Selection{}, fmt.Errorf("%w: report has no row %q", models.ErrInvalidArgument, row)
	}

	best := Selection{Row: row, Score: math.Inf(-1)}
	for _, name := range r.models {
		v, _ := r.Value(row, name)
		if best.Model == "" || v > best.Score {
			best.Model = name
			best.Score = v
		}
	}
	if best.Model == "" {
		return Selection{}, fmt.Errorf("%w: report has no models", models.ErrInvalidArgument)
	}
	best.Family, _ = r.Family(best.Model)
	if best.Family == tunable {
		best.Outcome = Tunable
	}
	return best, nil
}

func selectionRow(metric string) string {
	metric = strings.TrimSpace(metric)
	switch {
	case metric == "":
		return DefaultSelectionRow
	case strings.HasPrefix(metric, "test_"), strings.HasPrefix(metric, "train_"):
		return metric
	}
	return "test_" + metric
}

// GridPoint is the cross-validated accuracy for one C. Std is the
// population standard deviation over folds.
type GridPoint struct {
	C     float64
	Mean  float64
	Std   float64
	Folds []float64
}

type TuneResult struct {
	BestC     float64
	BestScore float64
	Grid      []GridPoint
	Pipeline  *pipeline.Pipeline
}

// Tune grid-searches C for a Tunable selection by cross-validated accuracy,
// then refits the best configuration on all of X. Ties go to the earlier
// grid value.
func Tune(ctx context.Context, sel Selection, candidate Candidate, pre *preprocess.Preprocessor, X dataframe.DataFrame, y []bool, grid []float64, opts Options) (TuneResult, error) {
	if sel.Outcome != Tunable {
		return TuneResult{}, fmt.Errorf("%w: %s (%s)", ErrUnsupportedSelection, sel.Model, sel.Family)
	}
	if candidate.Name != sel.Model {
		return TuneResult{}, fmt.Errorf("%w: candidate %q does not match selection %q", models.ErrInvalidArgument, candidate.Name, sel.Model)
	}
	reg, ok := candidate.Model.(classifier.Regularized)
	if !ok {
		return TuneResult{}, fmt.Errorf("%w: %s has no C parameter", models.ErrInvalidArgument, candidate.Name)
	}
	if len(grid) == 0 {
		grid = DefaultGrid
	}
	for _, c := range grid {
		if c <= 0 || math.IsNaN(c) || math.IsInf(c, 0) {
			return TuneResult{}, fmt.Errorf("%w: grid value %v must be positive and finite", models.ErrInvalidArgument, c)
		}
	}

	folds, err := makeFolds(X, y, opts.folds())
	if err != nil {
		return TuneResult{}, err
	}

	specs := make([]cvSpec, len(grid))
	for i, c := range grid {
		specs[i] = cvSpec{
			name: fmt.Sprintf("%s(C=%g)", candidate.Name, c),
			newPipeline: func() *pipeline.Pipeline {
				return pipeline.New(pre.Clone(), reg.WithC(c))
			},
		}
	}
	ms := []scoring.Metric{scoring.Accuracy}
	results, err := runFolds(ctx, specs, folds, ms, false, opts.workers())
	if err != nil {
		return TuneResult{}, fmt.Errorf("grid search: %w", err)
	}

	res := TuneResult{BestScore: math.Inf(-1)}
	for i, c := range grid {
		scores := make([]float64, len(folds))
		for f, fs := range results[i] {
			scores[f] = fs.test[scoring.Accuracy]
		}
		mean, std := stat.PopMeanStdDev(scores, nil)
		res.Grid = append(res.Grid, GridPoint{C: c, Mean: mean, Std: std, Folds: scores})
		if mean > res.BestScore {
			res.BestC = c
			res.BestScore = mean
		}
	}
	log.Printf("modelsel: best C=%g for %s (accuracy %.3f)", res.BestC, candidate.Name, res.BestScore)

	p := pipeline.New(pre.Clone(), reg.WithC(res.BestC))
	if err := p.Fit(X, y); err != nil {
		return TuneResult{}, fmt.Errorf("refit %s: %w", candidate.Name, err)
	}
	res.Pipeline = p
	return res, nil
}

// FindCandidate returns the candidate with the given name.
func FindCandidate(candidates []Candidate, name string) (Candidate, bool) {
	for _, c := range candidates {
		if c.Name == name {
			return c, true
		}
	}
	return Candidate{}, false
}
