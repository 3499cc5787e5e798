package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/raincouver/internal/classifier"
	"github.com/lox/raincouver/internal/models"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, int64(522), cfg.Split.Seed)
	assert.Equal(t, 0.2, cfg.Split.TestFraction)
	assert.Equal(t, 5, cfg.Train.Folds)
	assert.Equal(t, []float64{1e-3, 1e-2, 1e-1, 1, 10, 100}, cfg.Train.Grid)
	assert.Len(t, cfg.Split.DropList, 14)

	fam, err := cfg.Train.Family()
	require.NoError(t, err)
	assert.Equal(t, classifier.FamilySVC, fam)

	loc := cfg.ModelLocation()
	assert.Equal(t, 49.2497, loc.Latitude)
	assert.Equal(t, "auto", loc.Timezone)
}

func TestDefault_Independent(t *testing.T) {
	a := Default()
	a.Train.Grid[0] = 42
	a.Split.DropList[0] = "changed"
	b := Default()
	assert.Equal(t, 1e-3, b.Train.Grid[0])
	assert.NotEqual(t, "changed", b.Split.DropList[0])
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
data_dir: /var/lib/raincouver
download:
  start_date: "2010-01-01"
  end_date: "2010-12-31"
  cache_ttl: 30m
split:
  seed: 7
train:
  metrics: [accuracy, f1]
  selection_metric: test_accuracy
  grid: [0.1, 1]
`))
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/raincouver", cfg.DataDir)
	assert.Equal(t, "results", cfg.ReportDir, "unset keys keep defaults")
	assert.Equal(t, 30*time.Minute, cfg.Download.CacheTTL)
	assert.Equal(t, int64(7), cfg.Split.Seed)
	assert.Equal(t, 0.2, cfg.Split.TestFraction)
	assert.Equal(t, []string{"accuracy", "f1"}, cfg.Train.Metrics)
	assert.Equal(t, []float64{0.1, 1}, cfg.Train.Grid)

	start, end, err := cfg.Download.Range()
	require.NoError(t, err)
	assert.Equal(t, 2010, start.Year())
	assert.Equal(t, time.December, end.Month())
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown key", "colour: blue"},
		{"fraction zero", "split: {test_fraction: 0}"},
		{"fraction one", "split: {test_fraction: 1}"},
		{"one fold", "train: {folds: 1}"},
		{"unknown metric", "train: {metrics: [accuracy, roc_auc]}"},
		{"duplicate metric", "train: {metrics: [f1, f1]}"},
		{"empty metrics", "train: {metrics: []}"},
		{"negative grid", "train: {grid: [1, -1]}"},
		{"unknown family", "train: {tunable_family: RandomForest}"},
		{"bad selection metric", "train: {selection_metric: auc}"},
		{"bad date", "download: {start_date: 01/01/2020}"},
		{"reversed range", "download: {start_date: '2020-01-02', end_date: '2020-01-01'}"},
		{"latitude", "location: {latitude: 91}"},
		{"duplicate drop", "split: {drop_list: [sunrise, sunrise]}"},
		{"malformed", "split: ["},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if !errors.Is(err, models.ErrInvalidArgument) {
				t.Errorf("Parse(%q) err = %v, want ErrInvalidArgument", tt.yaml, err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("train:\n  folds: 3\n"), 0644))
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Train.Folds)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
