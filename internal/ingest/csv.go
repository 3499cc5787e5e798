package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/lox/raincouver/internal/models"
)

// RawCSVName is the file the download stage writes for a date range.
func RawCSVName(start, end time.Time) string {
	return fmt.Sprintf("van_weather_%s_%s.csv", start.Format(time.DateOnly), end.Format(time.DateOnly))
}

// WriteCSV writes observations as date plus the daily variables in
// models.DailyVariables order. NULLs become empty cells.
func WriteCSV(w io.Writer, obs []models.DailyObservation) error {
	cw := csv.NewWriter(w)
	header := append([]string{"date"}, models.DailyVariables...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	record := make([]string, len(header))
	for _, o := range obs {
		record[0] = o.Date.Format(time.DateOnly)
		for i, name := range models.DailyVariables {
			record[i+1] = ""
			switch name {
			case "sunrise":
				if o.Sunrise.Valid {
					record[i+1] = o.Sunrise.String
				}
			case "sunset":
				if o.Sunset.Valid {
					record[i+1] = o.Sunset.String
				}
			default:
				if v, _ := o.Numeric(name); v.Valid {
					record[i+1] = strconv.FormatFloat(v.Float64, 'f', -1, 64)
				}
			}
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write %s: %w", record[0], err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes the raw CSV for [start, end] into dir and returns its path.
func WriteCSVFile(dir string, start, end time.Time, obs []models.DailyObservation) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	path := filepath.Join(dir, RawCSVName(start, end))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	if err := WriteCSV(f, obs); err != nil {
		f.Close()
		return "", err
	}
	return path, f.Close()
}
