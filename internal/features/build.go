package features

import (
	"fmt"
	"log"
	"math"
	"slices"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/lox/raincouver/internal/models"
)

const (
	// LabelColumn is the header of the label CSVs.
	LabelColumn = "is_precipitation"

	// RainThreshold is the daily precipitation sum in mm above which a day
	// counts as rainy.
	RainThreshold = 0.01
)

// DefaultDropList removes the identifiers, the measurements that leak the
// label, and the temperature extremes that correlate strongly with the
// retained means.
var DefaultDropList = []string{
	"sunrise",
	"sunset",
	"weather_code",
	"rain_sum",
	"snowfall_sum",
	"date",
	"precipitation_hours",
	"temperature_2m_max",
	"temperature_2m_min",
	"apparent_temperature_max",
	"apparent_temperature_min",
	"apparent_temperature_mean",
	"wind_gusts_10m_max",
	"precipitation_sum",
}

// Build derives the label and month from a raw observation frame, removes
// the drop-list columns and any row with a missing value. The returned frame
// still holds the raw month; EncodeMonth replaces it after the split.
func Build(raw dataframe.DataFrame, dropList []string) (dataframe.DataFrame, []bool, error) {
	if raw.Err != nil {
		return dataframe.DataFrame{}, nil, fmt.Errorf("build features: %w", raw.Err)
	}
	names := raw.Names()
	for _, required := range []string{"date", "precipitation_sum"} {
		if !slices.Contains(names, required) {
			return dataframe.DataFrame{}, nil, fmt.Errorf("%w: column %q not found", models.ErrInvalidArgument, required)
		}
	}
	for _, col := range dropList {
		if col == "month" || col == LabelColumn {
			return dataframe.DataFrame{}, nil, fmt.Errorf("%w: cannot drop derived column %q", models.ErrInvalidArgument, col)
		}
		if !slices.Contains(names, col) {
			return dataframe.DataFrame{}, nil, fmt.Errorf("%w: drop column %q not found", models.ErrInvalidArgument, col)
		}
	}

	dates := raw.Col("date").Records()
	months := make([]int, len(dates))
	seen := make(map[string]struct{}, len(dates))
	for i, ds := range dates {
		d, err := time.Parse(time.DateOnly, ds)
		if err != nil {
			return dataframe.DataFrame{}, nil, fmt.Errorf("%w: row %d: bad date %q", models.ErrInvalidArgument, i, ds)
		}
		key := d.Format(time.DateOnly)
		if _, dup := seen[key]; dup {
			return dataframe.DataFrame{}, nil, fmt.Errorf("%w: duplicate observation for %s", models.ErrInvalidArgument, key)
		}
		seen[key] = struct{}{}
		months[i] = int(d.Month())
	}

	precip := raw.Col("precipitation_sum").Float()
	labels := make([]bool, len(precip))
	for i, p := range precip {
		labels[i] = p > RainThreshold
	}

	df := raw.Mutate(series.New(months, series.Int, "month"))
	if len(dropList) > 0 {
		df = df.Drop(dropList)
	}
	if df.Err != nil {
		return dataframe.DataFrame{}, nil, fmt.Errorf("build features: %w", df.Err)
	}

	// Unlabelled days cannot train anything, even when precipitation_sum
	// itself is dropped from the features.
	keep := make([]int, 0, df.Nrow())
	for i := 0; i < df.Nrow(); i++ {
		if math.IsNaN(precip[i]) || rowHasNA(df, i) {
			continue
		}
		keep = append(keep, i)
	}
	if len(keep) == 0 {
		return dataframe.DataFrame{}, nil, fmt.Errorf("%w: no complete rows", models.ErrInvalidArgument)
	}
	if dropped := df.Nrow() - len(keep); dropped > 0 {
		log.Printf("features: dropped %d of %d rows with missing values", dropped, df.Nrow())
		df = df.Subset(keep)
		if df.Err != nil {
			return dataframe.DataFrame{}, nil, fmt.Errorf("subset rows: %w", df.Err)
		}
		kept := make([]bool, len(keep))
		for j, i := range keep {
			kept[j] = labels[i]
		}
		labels = kept
	}
	return df, labels, nil
}

// DropColumns removes extra columns named by a drop-list file. Every name
// must exist so train and test frames stay aligned.
func DropColumns(df dataframe.DataFrame, cols []string) (dataframe.DataFrame, error) {
	if len(cols) == 0 {
		return df, nil
	}
	names := df.Names()
	for _, col := range cols {
		if !slices.Contains(names, col) {
			return dataframe.DataFrame{}, fmt.Errorf("%w: drop column %q not found", models.ErrInvalidArgument, col)
		}
	}
	out := df.Drop(cols)
	if out.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("drop columns: %w", out.Err)
	}
	return out, nil
}

// ToMatrix converts a numeric frame into row-major float64 values. Bool
// columns become 0/1. String columns and missing values are rejected.
func ToMatrix(df dataframe.DataFrame) ([][]float64, error) {
	if df.Err != nil {
		return nil, df.Err
	}
	nrow, ncol := df.Dims()
	cols := make([][]float64, ncol)
	for j, name := range df.Names() {
		s := df.Col(name)
		switch s.Type() {
		case series.Int, series.Float:
			cols[j] = s.Float()
		case series.Bool:
			vals := make([]float64, nrow)
			for i := 0; i < nrow; i++ {
				if b, err := s.Elem(i).Bool(); err == nil && b {
					vals[i] = 1
				}
			}
			cols[j] = vals
		default:
			return nil, fmt.Errorf("%w: column %q is %s, not numeric", models.ErrInvalidArgument, name, s.Type())
		}
	}

	out := make([][]float64, nrow)
	for i := range out {
		row := make([]float64, ncol)
		for j := range cols {
			v := cols[j][i]
			if math.IsNaN(v) {
				return nil, fmt.Errorf("%w: missing value in column %q row %d", models.ErrInvalidArgument, df.Names()[j], i)
			}
			row[j] = v
		}
		out[i] = row
	}
	return out, nil
}

func rowHasNA(df dataframe.DataFrame, i int) bool {
	for _, name := range df.Names() {
		s := df.Col(name)
		e := s.Elem(i)
		if e.IsNA() {
			return true
		}
		if s.Type() == series.Float && math.IsNaN(e.Float()) {
			return true
		}
	}
	return false
}
