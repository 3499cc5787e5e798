// Package eda produces exploratory plots and tables for the raw daily
// observations.
package eda

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/lox/raincouver/internal/models"
	"github.com/lox/raincouver/internal/report"
)

const DefaultBins = 30

// HistogramName is the file written for a column.
func HistogramName(col string) string {
	return "hist_" + col + ".png"
}

// NumericColumns lists Int and Float columns in frame order.
func NumericColumns(df dataframe.DataFrame) []string {
	var out []string
	for _, name := range df.Names() {
		switch df.Col(name).Type() {
		case series.Int, series.Float:
			out = append(out, name)
		}
	}
	return out
}

// finite returns the column's values with NaN and missing entries removed.
func finite(df dataframe.DataFrame, col string) []float64 {
	vals := df.Col(col).Float()
	out := vals[:0:0]
	for _, v := range vals {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

// Histograms writes one histogram per numeric column into dir. Columns with
// no finite values are skipped.
func Histograms(df dataframe.DataFrame, dir string, bins int) ([]string, error) {
	if df.Err != nil {
		return nil, df.Err
	}
	if bins <= 0 {
		bins = DefaultBins
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create eda dir: %w", err)
	}

	var paths []string
	for _, col := range NumericColumns(df) {
		vals := finite(df, col)
		if len(vals) == 0 {
			continue
		}
		p := plot.New()
		p.Title.Text = col
		p.X.Label.Text = col
		p.Y.Label.Text = "days"

		h, err := plotter.NewHist(plotter.Values(vals), bins)
		if err != nil {
			return paths, fmt.Errorf("histogram %s: %w", col, err)
		}
		h.FillColor = color.RGBA{R: 70, G: 110, B: 170, A: 255}
		h.LineStyle.Width = vg.Points(0.5)
		p.Add(h)
		p.Add(plotter.NewGrid())

		path := filepath.Join(dir, HistogramName(col))
		if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
			return paths, fmt.Errorf("save histogram %s: %w", col, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// Spearman returns the rank correlation matrix of the numeric columns,
// computed over rows where both columns are finite. Ties get average ranks.
func Spearman(df dataframe.DataFrame) ([]string, [][]float64, error) {
	if df.Err != nil {
		return nil, nil, df.Err
	}
	cols := NumericColumns(df)
	if len(cols) == 0 {
		return nil, nil, fmt.Errorf("%w: no numeric columns", models.ErrInvalidArgument)
	}
	data := make([][]float64, len(cols))
	for i, c := range cols {
		data[i] = df.Col(c).Float()
	}

	corr := make([][]float64, len(cols))
	for i := range corr {
		corr[i] = make([]float64, len(cols))
	}
	for i := range cols {
		for j := i; j < len(cols); j++ {
			r := spearmanPair(data[i], data[j])
			corr[i][j], corr[j][i] = r, r
		}
	}
	return cols, corr, nil
}

func spearmanPair(a, b []float64) float64 {
	var x, y []float64
	for k := range a {
		if isFinite(a[k]) && isFinite(b[k]) {
			x = append(x, a[k])
			y = append(y, b[k])
		}
	}
	if len(x) < 2 {
		return math.NaN()
	}
	rx, ry := ranks(x), ranks(y)
	if floats.Min(rx) == floats.Max(rx) || floats.Min(ry) == floats.Max(ry) {
		return math.NaN()
	}
	return stat.Correlation(rx, ry, nil)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ranks assigns 1-based ranks, averaging over ties.
func ranks(x []float64) []float64 {
	idx := make([]int, len(x))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return x[idx[a]] < x[idx[b]] })

	out := make([]float64, len(x))
	for i := 0; i < len(idx); {
		j := i
		for j+1 < len(idx) && x[idx[j+1]] == x[idx[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			out[idx[k]] = avg
		}
		i = j + 1
	}
	return out
}

// CorrelationTable formats a correlation matrix with two decimals.
func CorrelationTable(cols []string, corr [][]float64) report.Table {
	t := report.Table{
		Title:  "Spearman correlation",
		Header: append([]string{""}, cols...),
	}
	for i, c := range cols {
		row := []string{c}
		for _, v := range corr[i] {
			row = append(row, formatCorr(v))
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func formatCorr(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// Summary tabulates count, mean, standard deviation, min and max of the
// finite values of each numeric column.
func Summary(df dataframe.DataFrame) report.Table {
	t := report.Table{
		Title:  "Summary statistics",
		Header: []string{"column", "count", "mean", "std", "min", "max"},
	}
	for _, c := range NumericColumns(df) {
		vals := finite(df, c)
		row := []string{c, strconv.Itoa(len(vals)), "", "", "", ""}
		if len(vals) > 0 {
			mean, std := stat.MeanStdDev(vals, nil)
			if len(vals) < 2 {
				std = 0
			}
			row[2] = strconv.FormatFloat(mean, 'f', 2, 64)
			row[3] = strconv.FormatFloat(std, 'f', 2, 64)
			row[4] = strconv.FormatFloat(floats.Min(vals), 'f', 2, 64)
			row[5] = strconv.FormatFloat(floats.Max(vals), 'f', 2, 64)
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}
