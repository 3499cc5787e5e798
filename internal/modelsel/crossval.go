// Package modelsel cross-validates candidate classifiers, picks a winner and
// tunes the regularization of the tunable family.
package modelsel

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/go-gota/gota/dataframe"
	"golang.org/x/sync/errgroup"

	"github.com/lox/raincouver/internal/metrics"
	"github.com/lox/raincouver/internal/models"
	"github.com/lox/raincouver/internal/pipeline"
	"github.com/lox/raincouver/internal/scoring"
)

const DefaultFolds = 5

type Options struct {
	Folds   int // default 5
	Workers int // default GOMAXPROCS
}

func (o Options) folds() int {
	if o.Folds == 0 {
		return DefaultFolds
	}
	return o.Folds
}

func (o Options) workers() int {
	if o.Workers <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return o.Workers
}

// fold is one train/validate split of the training partition.
type fold struct {
	xTrain, xTest dataframe.DataFrame
	yTrain, yTest []bool
}

// stratifiedFolds assigns each row a fold so every fold holds close to the
// same share of each class. Rows of a class go to folds in contiguous runs,
// in input order; there is no shuffling.
func stratifiedFolds(y []bool, k int) ([]int, error) {
	n := len(y)
	if k < 2 || k > n {
		return nil, fmt.Errorf("%w: %d folds for %d rows", models.ErrInvalidArgument, k, n)
	}

	var counts [2]int
	for _, v := range y {
		counts[classIndex(v)]++
	}

	// Deal the label-sorted rows round-robin to size each fold per class.
	alloc := make([][2]int, k)
	for pos := 0; pos < n; pos++ {
		c := 1
		if pos < counts[0] {
			c = 0
		}
		alloc[pos%k][c]++
	}

	assign := make([]int, n)
	var next [2]int // fold currently being filled per class
	var filled [2]int
	for i, v := range y {
		c := classIndex(v)
		for filled[c] == alloc[next[c]][c] {
			next[c]++
			filled[c] = 0
		}
		assign[i] = next[c]
		filled[c]++
	}
	return assign, nil
}

func classIndex(v bool) int {
	if v {
		return 1
	}
	return 0
}

func makeFolds(X dataframe.DataFrame, y []bool, k int) ([]fold, error) {
	if X.Err != nil {
		return nil, X.Err
	}
	if X.Nrow() != len(y) {
		return nil, fmt.Errorf("%w: %d labels for %d rows", models.ErrInvalidArgument, len(y), X.Nrow())
	}
	assign, err := stratifiedFolds(y, k)
	if err != nil {
		return nil, err
	}

	folds := make([]fold, k)
	for f := range folds {
		var trainIdx, testIdx []int
		for i, a := range assign {
			if a == f {
				testIdx = append(testIdx, i)
			} else {
				trainIdx = append(trainIdx, i)
			}
		}
		if len(testIdx) == 0 {
			return nil, fmt.Errorf("%w: fold %d is empty", models.ErrInvalidArgument, f)
		}
		fd := fold{
			xTrain: X.Subset(trainIdx),
			xTest:  X.Subset(testIdx),
			yTrain: pickLabels(y, trainIdx),
			yTest:  pickLabels(y, testIdx),
		}
		if fd.xTrain.Err != nil {
			return nil, fd.xTrain.Err
		}
		if fd.xTest.Err != nil {
			return nil, fd.xTest.Err
		}
		folds[f] = fd
	}
	return folds, nil
}

func pickLabels(y []bool, idx []int) []bool {
	out := make([]bool, len(idx))
	for j, i := range idx {
		out[j] = y[i]
	}
	return out
}

// cvSpec names a pipeline factory to cross-validate. Every fold gets its own
// pipeline, so the preprocessor is refit on each fold's training rows.
type cvSpec struct {
	name        string
	newPipeline func() *pipeline.Pipeline
}

type foldScores struct {
	train map[scoring.Metric]float64
	test  map[scoring.Metric]float64
}

// runFolds fits every spec on every fold in parallel. results[s][f] is spec
// s scored on fold f; each goroutine writes only its own slot.
func runFolds(ctx context.Context, specs []cvSpec, folds []fold, ms []scoring.Metric, scoreTrain bool, workers int) ([][]foldScores, error) {
	results := make([][]foldScores, len(specs))
	for s := range results {
		results[s] = make([]foldScores, len(folds))
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for s, spec := range specs {
		for f, fd := range folds {
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				p := spec.newPipeline()

				started := time.Now()
				if err := p.Fit(fd.xTrain, fd.yTrain); err != nil {
					return fmt.Errorf("%s fold %d: %w", spec.name, f, err)
				}
				metrics.FoldFitDuration.WithLabelValues(spec.name).Observe(time.Since(started).Seconds())

				test, err := p.Score(fd.xTest, fd.yTest, ms)
				if err != nil {
					return fmt.Errorf("%s fold %d: score validation: %w", spec.name, f, err)
				}
				var train map[scoring.Metric]float64
				if scoreTrain {
					train, err = p.Score(fd.xTrain, fd.yTrain, ms)
					if err != nil {
						return fmt.Errorf("%s fold %d: score training: %w", spec.name, f, err)
					}
				}
				results[s][f] = foldScores{train: train, test: test}
				metrics.FoldsCompleted.WithLabelValues(spec.name).Inc()
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
