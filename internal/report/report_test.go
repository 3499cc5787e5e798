package report

import (
	"bytes"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/raincouver/internal/models"
)

func sample() Table {
	return Table{
		Title:  "Classification report",
		Header: []string{"class", "precision", "recall", "f1-score", "support"},
		Rows: [][]string{
			{"No rain", "0.83", "0.79", "0.81", "310"},
			{"Rain", "0.77", "0.81", "0.79", "262"},
		},
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, sample().Validate())

	bad := sample()
	bad.Rows[1] = bad.Rows[1][:3]
	assert.ErrorIs(t, bad.Validate(), models.ErrInvalidArgument)

	assert.ErrorIs(t, Table{}.Validate(), models.ErrInvalidArgument)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sample()))
	want := "class,precision,recall,f1-score,support\nNo rain,0.83,0.79,0.81,310\nRain,0.77,0.81,0.79,262\n"
	assert.Equal(t, want, buf.String())
}

func TestRender(t *testing.T) {
	img, err := Render(sample())
	require.NoError(t, err)
	b := img.Bounds()
	assert.Equal(t, margin+titleSpace+3*rowHeight+margin, b.Dy())
	assert.Greater(t, b.Dx(), 200)

	// Header row is filled, the background is not.
	assert.Equal(t, headerFill, img.RGBAAt(margin+1, margin+titleSpace+1))
	assert.Equal(t, background, img.RGBAAt(0, 0))
}

func TestSave(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	paths, err := Save(dir, "classification_report", sample())
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, filepath.Join(dir, "classification_report.csv"), paths[0])

	f, err := os.Open(paths[1])
	require.NoError(t, err)
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	assert.Greater(t, cfg.Width, 0)

	_, err = Save(dir, "bad", Table{Header: []string{"a"}, Rows: [][]string{{"1", "2"}}})
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestPrinter(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	var buf bytes.Buffer
	require.NoError(t, NewPrinter(&buf).Print(sample(), func(row, col int) bool { return row == 0 }))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Classification report", lines[0])
	assert.Equal(t, "class    precision  recall  f1-score  support", lines[1])
	assert.Equal(t, "No rain       0.83    0.79      0.81      310", lines[2])
	assert.Equal(t, "Rain          0.77    0.81      0.79      262", lines[3])
}
