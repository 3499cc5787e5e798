// Package config holds the pipeline knobs every stage takes explicitly:
// seeds, the drop list, metrics, test fraction, folds and the C grid.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/lox/raincouver/internal/classifier"
	"github.com/lox/raincouver/internal/features"
	"github.com/lox/raincouver/internal/ingest"
	"github.com/lox/raincouver/internal/models"
	"github.com/lox/raincouver/internal/modelsel"
	"github.com/lox/raincouver/internal/scoring"
)

const DateLayout = "2006-01-02"

type Location struct {
	ID        string  `yaml:"id" validate:"required"`
	Name      string  `yaml:"name"`
	Latitude  float64 `yaml:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `yaml:"longitude" validate:"gte=-180,lte=180"`
}

type Download struct {
	StartDate string        `yaml:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string        `yaml:"end_date" validate:"required,datetime=2006-01-02"`
	CacheTTL  time.Duration `yaml:"cache_ttl" validate:"gte=0"`
}

type Split struct {
	TestFraction float64  `yaml:"test_fraction" validate:"gt=0,lt=1"`
	Seed         int64    `yaml:"seed"`
	DropList     []string `yaml:"drop_list" validate:"unique"`
}

type Train struct {
	Seed            int64     `yaml:"seed"`
	Folds           int       `yaml:"folds" validate:"gte=2"`
	Workers         int       `yaml:"workers" validate:"gte=0"`
	Metrics         []string  `yaml:"metrics" validate:"required,min=1,unique,dive,oneof=accuracy precision recall f1"`
	SelectionMetric string    `yaml:"selection_metric" validate:"required"`
	TunableFamily   string    `yaml:"tunable_family" validate:"oneof=DecisionTree LogisticRegression KNeighbors SVC"`
	Grid            []float64 `yaml:"grid" validate:"required,min=1,dive,gt=0"`
}

type Publish struct {
	FTPAddr   string `yaml:"ftp_addr"`
	RemoteDir string `yaml:"remote_dir"`
}

// Pipeline is the full run configuration.
type Pipeline struct {
	Location  Location `yaml:"location"`
	DataDir   string   `yaml:"data_dir" validate:"required"`
	ReportDir string   `yaml:"report_dir" validate:"required"`
	ModelDir  string   `yaml:"model_dir" validate:"required"`
	// DropListFile optionally names a CSV with a feats_to_drop column. Train
	// and Evaluate remove those columns from both partitions.
	DropListFile string   `yaml:"drop_list_file"`
	Download     Download `yaml:"download"`
	Split        Split    `yaml:"split"`
	Train        Train    `yaml:"train"`
	Publish      Publish  `yaml:"publish"`
}

// Default covers Vancouver from 1990 to late 2023: a 20% test split with
// seed 522, 5-fold CV on all four metrics, selection by validation F1 and
// the SVC C grid logspace(-3, 2, 6).
func Default() Pipeline {
	loc := ingest.Vancouver
	return Pipeline{
		Location: Location{
			ID:        loc.LocationID,
			Name:      loc.Name,
			Latitude:  loc.Latitude,
			Longitude: loc.Longitude,
		},
		DataDir:   "data",
		ReportDir: "results",
		ModelDir:  "results/models",
		Download: Download{
			StartDate: "1990-01-01",
			EndDate:   "2023-11-23",
			CacheTTL:  ingest.DefaultCacheTTL,
		},
		Split: Split{
			TestFraction: 0.2,
			Seed:         522,
			DropList:     append([]string(nil), features.DefaultDropList...),
		},
		Train: Train{
			Seed:            123,
			Folds:           modelsel.DefaultFolds,
			Metrics:         []string{"accuracy", "precision", "recall", "f1"},
			SelectionMetric: "f1",
			TunableFamily:   string(classifier.FamilySVC),
			Grid:            append([]float64(nil), modelsel.DefaultGrid...),
		},
	}
}

// Load reads a YAML file over Default. An empty path returns the defaults.
func Load(path string) (Pipeline, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Pipeline{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over Default and validates the result. Unknown keys
// are rejected.
func Parse(data []byte) (Pipeline, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Pipeline{}, fmt.Errorf("%w: parse config: %v", models.ErrInvalidArgument, err)
	}
	return cfg, cfg.Validate()
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field rules, then the cross-field ones the tags cannot
// express.
func (p Pipeline) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: config validation failed: %v", models.ErrInvalidArgument, err)
	}
	start, end, err := p.Download.Range()
	if err != nil {
		return err
	}
	if end.Before(start) {
		return fmt.Errorf("%w: end_date %s is before start_date %s", models.ErrInvalidArgument, p.Download.EndDate, p.Download.StartDate)
	}
	if _, err := scoring.ParseMetric(strings.TrimPrefix(strings.TrimPrefix(p.Train.SelectionMetric, "test_"), "train_")); err != nil {
		return fmt.Errorf("selection_metric: %w", err)
	}
	return nil
}

// Range parses the download dates.
func (d Download) Range() (time.Time, time.Time, error) {
	start, err := time.Parse(DateLayout, d.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start_date: %v", models.ErrInvalidArgument, err)
	}
	end, err := time.Parse(DateLayout, d.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end_date: %v", models.ErrInvalidArgument, err)
	}
	return start, end, nil
}

// ModelLocation is the archive location for the configured point.
func (p Pipeline) ModelLocation() models.Location {
	return models.Location{
		LocationID: p.Location.ID,
		Name:       p.Location.Name,
		Latitude:   p.Location.Latitude,
		Longitude:  p.Location.Longitude,
		Timezone:   "auto",
	}
}

// Family returns the parsed tunable family.
func (t Train) Family() (classifier.Family, error) {
	return classifier.ParseFamily(t.TunableFamily)
}

// Options returns the cross-validation options.
func (t Train) Options() modelsel.Options {
	return modelsel.Options{Folds: t.Folds, Workers: t.Workers}
}
