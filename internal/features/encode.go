// Package features turns raw daily observations into the feature matrix and
// label vector the classifiers train on.
package features

import (
	"fmt"
	"math"
	"slices"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/lox/raincouver/internal/models"
)

// MonthPeriod is the cycle length used for the month column.
const MonthPeriod = 12

// Encode returns a copy of df with <col>_sin and <col>_cos appended, the
// projection of col onto the unit circle with the given period. df is never
// modified. NaN inputs yield NaN outputs.
func Encode(df dataframe.DataFrame, col string, period float64) (dataframe.DataFrame, error) {
	if df.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("encode %s: %w", col, df.Err)
	}
	if math.IsNaN(period) || math.IsInf(period, 0) {
		return dataframe.DataFrame{}, fmt.Errorf("%w: period %v is not a finite number", models.ErrInvalidArgument, period)
	}
	if period <= 0 {
		return dataframe.DataFrame{}, fmt.Errorf("%w: period must be positive, got %v", models.ErrInvalidArgument, period)
	}
	if !slices.Contains(df.Names(), col) {
		return dataframe.DataFrame{}, fmt.Errorf("%w: column %q not found", models.ErrInvalidArgument, col)
	}

	s := df.Col(col)
	if !isNumeric(s.Type()) {
		return dataframe.DataFrame{}, fmt.Errorf("%w: column %q is %s, not numeric", models.ErrInvalidArgument, col, s.Type())
	}

	values := s.Float()
	sin := make([]float64, len(values))
	cos := make([]float64, len(values))
	for i, v := range values {
		angle := 2 * math.Pi * v / period
		sin[i] = math.Sin(angle)
		cos[i] = math.Cos(angle)
	}

	out := df.Copy().
		Mutate(series.New(sin, series.Float, col+"_sin")).
		Mutate(series.New(cos, series.Float, col+"_cos"))
	if out.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("encode %s: %w", col, out.Err)
	}
	return out, nil
}

// EncodeMonth replaces the month column with its sin/cos pair.
func EncodeMonth(df dataframe.DataFrame) (dataframe.DataFrame, error) {
	out, err := Encode(df, "month", MonthPeriod)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	out = out.Drop([]string{"month"})
	if out.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("drop month: %w", out.Err)
	}
	return out, nil
}

func isNumeric(t series.Type) bool {
	return t == series.Int || t == series.Float
}
