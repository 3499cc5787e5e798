package workflow

import (
	"sort"
	"strconv"
	"strings"

	"github.com/lox/raincouver/internal/models"
	"github.com/lox/raincouver/internal/modelsel"
	"github.com/lox/raincouver/internal/report"
	"github.com/lox/raincouver/internal/scoring"
)

// CVTable lays out a comparison report as "mean (+/- std)" cells, one row
// per metric row and one column per model.
func CVTable(r *modelsel.Report) report.Table {
	t := report.Table{
		Title:  "Cross-validation results",
		Header: append([]string{""}, r.Models()...),
	}
	for _, row := range r.Rows() {
		cells := []string{row}
		for _, m := range r.Models() {
			c, _ := r.Cell(row, m)
			cells = append(cells, c.Summary())
		}
		t.Rows = append(t.Rows, cells)
	}
	return t
}

// bestInRow highlights the winning model of every test_ row.
func bestInRow(r *modelsel.Report) report.Highlight {
	rows, names := r.Rows(), r.Models()
	return func(i, j int) bool {
		if i >= len(rows) || j == 0 || j > len(names) {
			return false
		}
		row := rows[i]
		if !strings.HasPrefix(row, "test_") {
			return false
		}
		best := names[0]
		bv, _ := r.Value(row, best)
		for _, n := range names[1:] {
			if v, _ := r.Value(row, n); v > bv {
				best, bv = n, v
			}
		}
		return names[j-1] == best
	}
}

func cvResults(runID string, r *modelsel.Report) []models.CVResult {
	var out []models.CVResult
	for _, row := range r.Rows() {
		for _, m := range r.Models() {
			c, _ := r.Cell(row, m)
			out = append(out, models.CVResult{RunID: runID, Model: m, Row: row, Mean: c.Mean, Std: c.Std})
		}
	}
	return out
}

// GridTable lists every C with its mean and std accuracy and a rank where
// equal means share the better rank.
func GridTable(res modelsel.TuneResult) report.Table {
	t := report.Table{
		Title:  "Grid search results",
		Header: []string{"param_C", "mean_test_score", "std_test_score", "rank_test_score"},
	}
	order := make([]int, len(res.Grid))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return res.Grid[order[a]].Mean > res.Grid[order[b]].Mean })
	rank := make([]int, len(res.Grid))
	for pos, i := range order {
		rank[i] = pos + 1
		if pos > 0 && res.Grid[order[pos-1]].Mean == res.Grid[i].Mean {
			rank[i] = rank[order[pos-1]]
		}
	}
	for i, gp := range res.Grid {
		t.Rows = append(t.Rows, []string{
			strconv.FormatFloat(gp.C, 'g', -1, 64),
			strconv.FormatFloat(gp.Mean, 'f', 4, 64),
			strconv.FormatFloat(gp.Std, 'f', 4, 64),
			strconv.Itoa(rank[i]),
		})
	}
	return t
}

// EvaluationTable renders a classification report the way it is printed
// for the held-out partition: per class, accuracy, then the averages.
func EvaluationTable(r scoring.ClassificationReport) report.Table {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }
	t := report.Table{
		Title:  "Classification report",
		Header: []string{"", "precision", "recall", "f1-score", "support"},
	}
	for _, cs := range r.Classes {
		t.Rows = append(t.Rows, []string{cs.Class, f(cs.Precision), f(cs.Recall), f(cs.F1), strconv.Itoa(cs.Support)})
	}
	t.Rows = append(t.Rows, []string{"accuracy", "", "", f(r.Accuracy), strconv.Itoa(r.Support)})
	for _, cs := range []scoring.ClassScores{r.MacroAvg, r.WeightedAvg} {
		t.Rows = append(t.Rows, []string{cs.Class, f(cs.Precision), f(cs.Recall), f(cs.F1), strconv.Itoa(cs.Support)})
	}
	return t
}

func evaluationResults(runID string, r scoring.ClassificationReport) []models.EvaluationResult {
	var out []models.EvaluationResult
	for _, cs := range append(append([]scoring.ClassScores(nil), r.Classes...), r.MacroAvg, r.WeightedAvg) {
		out = append(out, models.EvaluationResult{
			RunID: runID, Class: cs.Class, Precision: cs.Precision, Recall: cs.Recall, F1: cs.F1, Support: cs.Support,
		})
	}
	return out
}
