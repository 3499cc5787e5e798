// Package report renders computed tables to CSV, PNG and the terminal.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/lox/raincouver/internal/models"
)

// Table is a titled grid of preformatted cells. Header[0] labels the row
// names in Rows[i][0].
type Table struct {
	Title  string
	Header []string
	Rows   [][]string
}

func (t Table) Validate() error {
	if len(t.Header) == 0 {
		return fmt.Errorf("%w: table %q has no header", models.ErrInvalidArgument, t.Title)
	}
	for i, row := range t.Rows {
		if len(row) != len(t.Header) {
			return fmt.Errorf("%w: table %q row %d has %d cells, header has %d",
				models.ErrInvalidArgument, t.Title, i, len(row), len(t.Header))
		}
	}
	return nil
}

// Column returns the cells of column j, header included.
func (t Table) Column(j int) []string {
	out := make([]string, 0, len(t.Rows)+1)
	out = append(out, t.Header[j])
	for _, row := range t.Rows {
		out = append(out, row[j])
	}
	return out
}

func WriteCSV(w io.Writer, t Table) error {
	if err := t.Validate(); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	return nil
}

// Save writes <dir>/<base>.csv and <dir>/<base>.png and returns both paths.
func Save(dir, base string, t Table) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	csvPath := filepath.Join(dir, base+".csv")
	if err := writeFile(csvPath, func(w io.Writer) error { return WriteCSV(w, t) }); err != nil {
		return nil, err
	}
	pngPath := filepath.Join(dir, base+".png")
	if err := writeFile(pngPath, func(w io.Writer) error { return WritePNG(w, t) }); err != nil {
		return nil, err
	}
	return []string{csvPath, pngPath}, nil
}

// SaveCSV writes only <dir>/<base>.csv.
func SaveCSV(dir, base string, t Table) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	path := filepath.Join(dir, base+".csv")
	return path, writeFile(path, func(w io.Writer) error { return WriteCSV(w, t) })
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	return nil
}
