// Package workflow runs the pipeline stages against the configured
// directories: download, eda, split, train and evaluate.
package workflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/go-gota/gota/dataframe"

	"github.com/lox/raincouver/internal/config"
	"github.com/lox/raincouver/internal/eda"
	"github.com/lox/raincouver/internal/features"
	"github.com/lox/raincouver/internal/ingest"
	"github.com/lox/raincouver/internal/metrics"
	"github.com/lox/raincouver/internal/models"
	"github.com/lox/raincouver/internal/modelsel"
	"github.com/lox/raincouver/internal/pipeline"
	"github.com/lox/raincouver/internal/preprocess"
	"github.com/lox/raincouver/internal/report"
	"github.com/lox/raincouver/internal/scoring"
	"github.com/lox/raincouver/internal/store"
)

// Report and artifact names written under the report and model dirs.
const (
	CVResultsName    = "cross_val_results"
	GridResultsName  = "grid_search_results"
	EvaluationName   = "classification_report"
	CorrelationName  = "correlation_table"
	SummaryName      = "summary_statistics"
	rawDirName       = "raw"
	processedDirName = "processed"
	edaDirName       = "eda"
)

// Fetcher returns one observation per day in [start, end].
type Fetcher interface {
	FetchDaily(ctx context.Context, start, end time.Time) ([]models.DailyObservation, error)
}

// Publisher ships report files somewhere once a run finishes.
type Publisher interface {
	Upload(ctx context.Context, files []string) error
}

// Runner executes stages for one configuration. The store is optional;
// without it nothing is recorded and the archive client runs uncached.
type Runner struct {
	cfg        config.Pipeline
	store      *store.Store
	fetcher    Fetcher
	candidates []modelsel.Candidate
	printer    *report.Printer
	publisher  Publisher
	published  []string
}

func New(cfg config.Pipeline, st *store.Store) *Runner {
	client := ingest.NewArchiveClient(cfg.ModelLocation(), st)
	client.SetCacheTTL(cfg.Download.CacheTTL)
	return &Runner{
		cfg:        cfg,
		store:      st,
		fetcher:    client,
		candidates: modelsel.DefaultCandidates(),
		printer:    report.NewPrinter(os.Stdout),
	}
}

func (r *Runner) SetFetcher(f Fetcher) { r.fetcher = f }

// SetCandidates replaces the models compared by Train.
func (r *Runner) SetCandidates(c []modelsel.Candidate) { r.candidates = c }

func (r *Runner) SetOutput(w io.Writer) { r.printer = report.NewPrinter(w) }

func (r *Runner) SetPublisher(p Publisher) { r.publisher = p }

// RawCSVPath is where Download writes and Split reads the raw observations.
func (r *Runner) RawCSVPath() (string, error) {
	start, end, err := r.cfg.Download.Range()
	if err != nil {
		return "", err
	}
	return filepath.Join(r.cfg.DataDir, rawDirName, ingest.RawCSVName(start, end)), nil
}

func (r *Runner) processed(name string) string {
	return filepath.Join(r.cfg.DataDir, processedDirName, name)
}

func (r *Runner) PipelinePath() string {
	return filepath.Join(r.cfg.ModelDir, pipeline.PipelineFile)
}

func (r *Runner) PreprocessorPath() string {
	return filepath.Join(r.cfg.ModelDir, pipeline.PreprocessorFile)
}

// finish counts the stage outcome.
func finish(stage string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
		if errors.Is(err, context.Canceled) {
			outcome = "cancelled"
		}
	}
	metrics.PipelineRuns.WithLabelValues(stage, outcome).Inc()
}

type DownloadResult struct {
	Path string
	Rows int
}

// Download fetches the configured range, stores it and writes the raw CSV.
func (r *Runner) Download(ctx context.Context) (res DownloadResult, err error) {
	defer func() { finish("download", err) }()

	start, end, err := r.cfg.Download.Range()
	if err != nil {
		return DownloadResult{}, err
	}
	loc := r.cfg.ModelLocation()
	obs, err := r.fetcher.FetchDaily(ctx, start, end)
	if err != nil {
		return DownloadResult{}, fmt.Errorf("download: %w", err)
	}

	if r.store != nil {
		if err := r.store.UpsertLocation(loc); err != nil {
			return DownloadResult{}, fmt.Errorf("upsert location: %w", err)
		}
		n, err := r.store.UpsertDailyObservations(obs)
		if err != nil {
			return DownloadResult{}, fmt.Errorf("store observations: %w", err)
		}
		metrics.ObservationsIngested.WithLabelValues(loc.LocationID).Add(float64(n))
	}

	path, err := ingest.WriteCSVFile(filepath.Join(r.cfg.DataDir, rawDirName), start, end, obs)
	if err != nil {
		return DownloadResult{}, err
	}
	log.Printf("download: wrote %d days to %s", len(obs), path)
	return DownloadResult{Path: path, Rows: len(obs)}, nil
}

func (r *Runner) readRaw() (dataframe.DataFrame, error) {
	path, err := r.RawCSVPath()
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	df, err := features.ReadFrameFile(path)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("read raw observations (run download first): %w", err)
	}
	return df, nil
}

// EDA writes histograms, the summary table and the Spearman correlation
// table for the raw observations.
func (r *Runner) EDA(ctx context.Context) (files []string, err error) {
	defer func() { finish("eda", err) }()

	raw, err := r.readRaw()
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(r.cfg.ReportDir, edaDirName)
	files, err = eda.Histograms(raw, dir, eda.DefaultBins)
	if err != nil {
		return files, err
	}

	summary := eda.Summary(raw)
	paths, err := report.Save(dir, SummaryName, summary)
	if err != nil {
		return files, err
	}
	files = append(files, paths...)
	if err := r.printer.Print(summary, nil); err != nil {
		return files, err
	}

	cols, corr, err := eda.Spearman(raw)
	if err != nil {
		return files, err
	}
	paths, err = report.Save(dir, CorrelationName, eda.CorrelationTable(cols, corr))
	if err != nil {
		return files, err
	}
	files = append(files, paths...)
	log.Printf("eda: wrote %d files to %s", len(files), dir)
	r.published = append(r.published, files...)
	return files, nil
}

type SplitResult struct {
	TrainRows int
	TestRows  int
	Columns   []string
}

// Split labels the raw observations, drops the configured columns, splits
// them and encodes month on each partition separately. It also writes the
// unfitted preprocessor.
func (r *Runner) Split(ctx context.Context) (res SplitResult, err error) {
	defer func() { finish("split", err) }()

	raw, err := r.readRaw()
	if err != nil {
		return SplitResult{}, err
	}
	X, y, err := features.Build(raw, r.cfg.Split.DropList)
	if err != nil {
		return SplitResult{}, err
	}
	part, err := features.Split(X, y, r.cfg.Split.TestFraction, r.cfg.Split.Seed)
	if err != nil {
		return SplitResult{}, err
	}
	xTrain, err := features.EncodeMonth(part.XTrain)
	if err != nil {
		return SplitResult{}, fmt.Errorf("encode training month: %w", err)
	}
	xTest, err := features.EncodeMonth(part.XTest)
	if err != nil {
		return SplitResult{}, fmt.Errorf("encode test month: %w", err)
	}

	if err := os.MkdirAll(filepath.Join(r.cfg.DataDir, processedDirName), 0755); err != nil {
		return SplitResult{}, fmt.Errorf("create processed dir: %w", err)
	}
	for _, w := range []struct {
		name string
		df   dataframe.DataFrame
	}{{features.XTrainFile, xTrain}, {features.XTestFile, xTest}} {
		if err := features.WriteFrameFile(r.processed(w.name), w.df); err != nil {
			return SplitResult{}, err
		}
	}
	if err := features.WriteLabelsFile(r.processed(features.YTrainFile), part.YTrain); err != nil {
		return SplitResult{}, err
	}
	if err := features.WriteLabelsFile(r.processed(features.YTestFile), part.YTest); err != nil {
		return SplitResult{}, err
	}
	if err := pipeline.SavePreprocessor(r.PreprocessorPath(), preprocess.New()); err != nil {
		return SplitResult{}, err
	}

	log.Printf("split: %d train rows, %d test rows, %d features", xTrain.Nrow(), xTest.Nrow(), xTrain.Ncol())
	return SplitResult{TrainRows: xTrain.Nrow(), TestRows: xTest.Nrow(), Columns: xTrain.Names()}, nil
}

// readPartition loads one partition and applies the optional drop-list file.
func (r *Runner) readPartition(xName, yName string) (dataframe.DataFrame, []bool, error) {
	X, err := features.ReadFrameFile(r.processed(xName))
	if err != nil {
		return dataframe.DataFrame{}, nil, fmt.Errorf("read %s (run split first): %w", xName, err)
	}
	y, err := features.ReadLabelsFile(r.processed(yName))
	if err != nil {
		return dataframe.DataFrame{}, nil, fmt.Errorf("read %s: %w", yName, err)
	}
	if r.cfg.DropListFile != "" {
		drop, err := features.ReadDropListFile(r.cfg.DropListFile)
		if err != nil {
			return dataframe.DataFrame{}, nil, err
		}
		if X, err = features.DropColumns(X, drop); err != nil {
			return dataframe.DataFrame{}, nil, err
		}
	}
	return X, y, nil
}

type TrainResult struct {
	RunID     string
	Report    *modelsel.Report
	Selection modelsel.Selection
	// Stopped is set when the winner is not the tunable family. No pipeline
	// artifact is written in that case.
	Stopped bool
	Tune    *modelsel.TuneResult
	Path    string
}

// Train compares the candidates on the training partition, selects a winner
// and, when it is tunable, grid-searches C and saves the refit pipeline.
func (r *Runner) Train(ctx context.Context) (res TrainResult, err error) {
	defer func() { finish("train", err) }()

	X, y, err := r.readPartition(features.XTrainFile, features.YTrainFile)
	if err != nil {
		return TrainResult{}, err
	}
	pre, err := pipeline.LoadPreprocessor(r.PreprocessorPath())
	if err != nil {
		return TrainResult{}, err
	}
	family, err := r.cfg.Train.Family()
	if err != nil {
		return TrainResult{}, err
	}

	run := r.startRun("train", r.cfg.Train.Seed)
	defer func() { r.completeRun(run, err) }()
	if run != nil {
		res.RunID = run.RunID
	}

	opts := r.cfg.Train.Options()
	rep, err := modelsel.Compare(ctx, pre, r.candidates, X, y, r.cfg.Train.Metrics, opts)
	if err != nil {
		return res, err
	}
	res.Report = rep

	table := CVTable(rep)
	paths, err := report.Save(r.cfg.ReportDir, CVResultsName, table)
	if err != nil {
		return res, err
	}
	r.published = append(r.published, paths...)
	if err := r.printer.Print(table, bestInRow(rep)); err != nil {
		return res, err
	}
	if r.store != nil && run != nil {
		if err := r.store.InsertCVResults(cvResults(run.RunID, rep)); err != nil {
			return res, fmt.Errorf("store cv results: %w", err)
		}
	}

	sel, err := modelsel.SelectTunable(rep, r.cfg.Train.SelectionMetric, family)
	if err != nil {
		return res, err
	}
	res.Selection = sel
	if run != nil {
		run.SelectedModel = sql.NullString{String: sel.Model, Valid: true}
		run.Outcome = sql.NullString{String: sel.Outcome.String(), Valid: true}
	}
	if sel.Outcome != modelsel.Tunable {
		log.Printf("train: %s won on %s (%.3f); only %s is tuned, stopping", sel.Model, sel.Row, sel.Score, family)
		res.Stopped = true
		if err := r.removeStaleArtifacts(); err != nil {
			return res, err
		}
		return res, nil
	}
	log.Printf("train: %s won on %s (%.3f), tuning C", sel.Model, sel.Row, sel.Score)

	cand, ok := modelsel.FindCandidate(r.candidates, sel.Model)
	if !ok {
		return res, fmt.Errorf("selected model %q is not a candidate", sel.Model)
	}
	tuned, err := modelsel.Tune(ctx, sel, cand, pre, X, y, r.cfg.Train.Grid, opts)
	if err != nil {
		return res, err
	}
	res.Tune = &tuned

	path, err := report.SaveCSV(r.cfg.ReportDir, GridResultsName, GridTable(tuned))
	if err != nil {
		return res, err
	}
	r.published = append(r.published, path)

	if err := pipeline.Save(r.PipelinePath(), tuned.Pipeline); err != nil {
		return res, err
	}
	res.Path = r.PipelinePath()
	if run != nil {
		run.BestC = sql.NullFloat64{Float64: tuned.BestC, Valid: true}
		run.ArtifactPath = sql.NullString{String: res.Path, Valid: true}
	}
	log.Printf("train: saved pipeline with C=%g to %s", tuned.BestC, res.Path)
	return res, nil
}

// removeStaleArtifacts deletes the pipeline and grid results left by an
// earlier run so a later Evaluate cannot score a model this run did not pick.
func (r *Runner) removeStaleArtifacts() error {
	for _, path := range []string{r.PipelinePath(), filepath.Join(r.cfg.ReportDir, GridResultsName+".csv")} {
		err := os.Remove(path)
		switch {
		case err == nil:
			log.Printf("train: removed stale %s", path)
		case !errors.Is(err, fs.ErrNotExist):
			return fmt.Errorf("remove stale artifact: %w", err)
		}
	}
	return nil
}

type EvaluateResult struct {
	RunID  string
	Report scoring.ClassificationReport
	Files  []string
}

// Evaluate scores the saved pipeline on the held-out partition.
func (r *Runner) Evaluate(ctx context.Context) (res EvaluateResult, err error) {
	defer func() { finish("evaluate", err) }()

	p, err := pipeline.Load(r.PipelinePath())
	if err != nil {
		return EvaluateResult{}, fmt.Errorf("load pipeline (run train first): %w", err)
	}
	X, y, err := r.readPartition(features.XTestFile, features.YTestFile)
	if err != nil {
		return EvaluateResult{}, err
	}

	run := r.startRun("evaluate", r.cfg.Split.Seed)
	defer func() { r.completeRun(run, err) }()
	if run != nil {
		res.RunID = run.RunID
		run.SelectedModel = sql.NullString{String: string(p.Model.Family()), Valid: true}
		run.ArtifactPath = sql.NullString{String: r.PipelinePath(), Valid: true}
	}

	cr, err := pipeline.Evaluate(p, X, y)
	if err != nil {
		return res, err
	}
	res.Report = cr

	table := EvaluationTable(cr)
	res.Files, err = report.Save(r.cfg.ReportDir, EvaluationName, table)
	if err != nil {
		return res, err
	}
	r.published = append(r.published, res.Files...)
	if err := r.printer.Print(table, nil); err != nil {
		return res, err
	}
	if r.store != nil && run != nil {
		if err := r.store.InsertEvaluationResults(evaluationResults(run.RunID, cr)); err != nil {
			return res, fmt.Errorf("store evaluation results: %w", err)
		}
	}
	log.Printf("evaluate: accuracy %.2f on %d held-out days", cr.Accuracy, cr.Support)
	return res, nil
}

// Publish uploads every report file written by this runner. It is a no-op
// without a publisher.
func (r *Runner) Publish(ctx context.Context) (err error) {
	if r.publisher == nil || len(r.published) == 0 {
		return nil
	}
	defer func() { finish("publish", err) }()
	if err := r.publisher.Upload(ctx, r.published); err != nil {
		return fmt.Errorf("publish reports: %w", err)
	}
	return nil
}

type RunResult struct {
	Download DownloadResult
	Split    SplitResult
	Train    TrainResult
	Evaluate *EvaluateResult
}

// Run executes every stage in order. A non-tunable winner ends the run after
// Train with a nil error and no Evaluate result.
func (r *Runner) Run(ctx context.Context, withEDA bool) (RunResult, error) {
	var res RunResult
	var err error
	if res.Download, err = r.Download(ctx); err != nil {
		return res, err
	}
	if withEDA {
		if _, err := r.EDA(ctx); err != nil {
			return res, err
		}
	}
	if res.Split, err = r.Split(ctx); err != nil {
		return res, err
	}
	if res.Train, err = r.Train(ctx); err != nil {
		return res, err
	}
	if !res.Train.Stopped {
		ev, err := r.Evaluate(ctx)
		if err != nil {
			return res, err
		}
		res.Evaluate = &ev
	}
	return res, r.Publish(ctx)
}

func (r *Runner) startRun(stage string, seed int64) *models.PipelineRun {
	if r.store == nil {
		return nil
	}
	run, err := r.store.StartPipelineRun(stage, seed)
	if err != nil {
		log.Printf("%s: start pipeline run: %v", stage, err)
		return nil
	}
	return run
}

func (r *Runner) completeRun(run *models.PipelineRun, err error) {
	if run == nil {
		return
	}
	if err != nil && !run.Outcome.Valid {
		run.Outcome = sql.NullString{String: "error", Valid: true}
	}
	if cerr := r.store.CompletePipelineRun(run); cerr != nil {
		log.Printf("%s: complete pipeline run: %v", run.Stage, cerr)
	}
}
