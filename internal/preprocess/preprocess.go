// Package preprocess standardizes numeric feature columns.
package preprocess

import (
	"errors"
	"fmt"
	"slices"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"gonum.org/v1/gonum/stat"

	"github.com/lox/raincouver/internal/models"
)

// ErrNotFitted is returned by Transform before Fit.
var ErrNotFitted = errors.New("preprocessor not fitted")

// Column is the fitted state of one input column.
type Column struct {
	Name   string
	Scaled bool
	Mean   float64
	Scale  float64
}

// Preprocessor z-scores Int and Float columns and passes every other column
// through unchanged, preserving column order. Fit it on training rows only;
// Transform never updates the fitted statistics.
type Preprocessor struct {
	Columns []Column
	Fitted  bool
}

func New() *Preprocessor {
	return &Preprocessor{}
}

// Fit records the mean and population standard deviation of every numeric
// column. A constant column gets scale 1 so it transforms to zeros.
func (p *Preprocessor) Fit(df dataframe.DataFrame) error {
	if df.Err != nil {
		return fmt.Errorf("fit preprocessor: %w", df.Err)
	}
	if df.Nrow() == 0 {
		return fmt.Errorf("%w: cannot fit on an empty frame", models.ErrInvalidArgument)
	}

	cols := make([]Column, 0, df.Ncol())
	for _, name := range df.Names() {
		s := df.Col(name)
		c := Column{Name: name}
		if t := s.Type(); t == series.Int || t == series.Float {
			mean, std := stat.PopMeanStdDev(s.Float(), nil)
			if std == 0 {
				std = 1
			}
			c.Scaled = true
			c.Mean = mean
			c.Scale = std
		}
		cols = append(cols, c)
	}
	p.Columns = cols
	p.Fitted = true
	return nil
}

// Transform returns a standardized copy of df. df must have exactly the
// columns seen by Fit, in the same order.
func (p *Preprocessor) Transform(df dataframe.DataFrame) (dataframe.DataFrame, error) {
	if !p.Fitted {
		return dataframe.DataFrame{}, ErrNotFitted
	}
	if df.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("transform: %w", df.Err)
	}
	if got, want := df.Names(), p.Names(); !slices.Equal(got, want) {
		return dataframe.DataFrame{}, fmt.Errorf("%w: columns %v, fitted on %v", models.ErrSchemaMismatch, got, want)
	}

	out := make([]series.Series, 0, len(p.Columns))
	for _, c := range p.Columns {
		s := df.Col(c.Name)
		if !c.Scaled {
			out = append(out, s.Copy())
			continue
		}
		if t := s.Type(); t != series.Int && t != series.Float {
			return dataframe.DataFrame{}, fmt.Errorf("%w: column %q is %s, fitted as numeric", models.ErrSchemaMismatch, c.Name, t)
		}
		vals := s.Float()
		scaled := make([]float64, len(vals))
		for i, v := range vals {
			scaled[i] = (v - c.Mean) / c.Scale
		}
		out = append(out, series.New(scaled, series.Float, c.Name))
	}

	res := dataframe.New(out...)
	if res.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("transform: %w", res.Err)
	}
	return res, nil
}

func (p *Preprocessor) FitTransform(df dataframe.DataFrame) (dataframe.DataFrame, error) {
	if err := p.Fit(df); err != nil {
		return dataframe.DataFrame{}, err
	}
	return p.Transform(df)
}

// Clone returns an unfitted preprocessor with the same configuration.
func (p *Preprocessor) Clone() *Preprocessor {
	return New()
}

// Names returns the fitted column names in order.
func (p *Preprocessor) Names() []string {
	names := make([]string, len(p.Columns))
	for i, c := range p.Columns {
		names[i] = c.Name
	}
	return names
}
