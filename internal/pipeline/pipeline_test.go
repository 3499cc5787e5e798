package pipeline

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/raincouver/internal/classifier"
	"github.com/lox/raincouver/internal/models"
	"github.com/lox/raincouver/internal/preprocess"
	"github.com/lox/raincouver/internal/scoring"
)

// weatherFrame fakes a season: rain is likely on cool, dim days.
func weatherFrame(n int, offset int) (dataframe.DataFrame, []bool) {
	temp := make([]float64, n)
	rad := make([]float64, n)
	sin := make([]float64, n)
	y := make([]bool, n)
	for i := 0; i < n; i++ {
		k := float64(i + offset)
		temp[i] = 10 + 8*math.Sin(k/9)
		rad[i] = 12 + 9*math.Sin(k/9+0.3) + math.Cos(k)
		sin[i] = math.Sin(2 * math.Pi * float64((i+offset)%12+1) / 12)
		y[i] = temp[i]+0.5*rad[i] < 15
	}
	return dataframe.New(
		series.New(temp, series.Float, "temperature_2m_mean"),
		series.New(rad, series.Float, "shortwave_radiation_sum"),
		series.New(sin, series.Float, "month_sin"),
	), y
}

func fitted(t *testing.T, model classifier.Classifier) *Pipeline {
	t.Helper()
	X, y := weatherFrame(120, 0)
	p := New(preprocess.New(), model)
	require.NoError(t, p.Fit(X, y))
	return p
}

func TestPipeline_FitPredict(t *testing.T) {
	p := fitted(t, classifier.NewLogisticRegression())
	Xt, yt := weatherFrame(40, 500)

	scores, err := p.Score(Xt, yt, []scoring.Metric{scoring.Accuracy, scoring.F1})
	require.NoError(t, err)
	assert.Greater(t, scores[scoring.Accuracy], 0.85)
	assert.Contains(t, scores, scoring.F1)
}

func TestPipeline_Clone(t *testing.T) {
	p := fitted(t, classifier.NewKNeighbors())
	c := p.Clone()
	assert.False(t, c.Preprocessor.Fitted)
	Xt, _ := weatherFrame(5, 0)
	_, err := c.Predict(Xt)
	assert.ErrorIs(t, err, preprocess.ErrNotFitted)
}

func TestPipeline_SchemaMismatch(t *testing.T) {
	p := fitted(t, classifier.NewDecisionTree())
	Xt, yt := weatherFrame(10, 0)
	Xt = Xt.Drop([]string{"month_sin"})

	_, err := Evaluate(p, Xt, yt)
	assert.ErrorIs(t, err, models.ErrSchemaMismatch)
}

func TestEvaluate(t *testing.T) {
	p := fitted(t, classifier.NewSVC())
	Xt, yt := weatherFrame(60, 300)

	r, err := Evaluate(p, Xt, yt)
	require.NoError(t, err)
	require.Len(t, r.Classes, 2)
	assert.Equal(t, scoring.ClassNoRain, r.Classes[0].Class)
	assert.Equal(t, scoring.ClassRain, r.Classes[1].Class)
	assert.Equal(t, 60, r.Classes[0].Support+r.Classes[1].Support)
	for _, cs := range r.Classes {
		for _, v := range []float64{cs.Precision, cs.Recall, cs.F1} {
			assert.Equal(t, scoring.Round(v, 2), v, "rounded to two places")
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
		}
	}
}

func TestSaveLoad(t *testing.T) {
	dir := t.TempDir()
	Xt, _ := weatherFrame(50, 1000)

	for _, f := range classifier.Families {
		t.Run(string(f), func(t *testing.T) {
			model, err := classifier.New(f)
			require.NoError(t, err)
			p := fitted(t, model)
			want, err := p.Predict(Xt)
			require.NoError(t, err)

			path := filepath.Join(dir, string(f), PipelineFile)
			require.NoError(t, Save(path, p))
			loaded, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, f, loaded.Model.Family())

			got, err := loaded.Predict(Xt)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestSave_Replaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), PipelineFile)
	require.NoError(t, Save(path, fitted(t, classifier.NewKNeighbors())))
	require.NoError(t, Save(path, fitted(t, classifier.NewDecisionTree())))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, classifier.FamilyDecisionTree, loaded.Model.Family())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestPreprocessorArtifact(t *testing.T) {
	path := filepath.Join(t.TempDir(), PreprocessorFile)
	require.NoError(t, SavePreprocessor(path, preprocess.New()))

	pre, err := LoadPreprocessor(path)
	require.NoError(t, err)
	assert.False(t, pre.Fitted)

	_, err = Load(path)
	assert.Error(t, err, "kind mismatch")
}

func TestReadArtifact_Corrupt(t *testing.T) {
	var v Pipeline
	err := ReadArtifact(bytes.NewReader([]byte("not zstd at all")), "pipeline", &v)
	assert.Error(t, err)
}
