package features

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strconv"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/lox/raincouver/internal/models"
)

// Split output file names.
const (
	XTrainFile = "X_train.csv"
	YTrainFile = "y_train.csv"
	XTestFile  = "X_test.csv"
	YTestFile  = "y_test.csv"

	// DropListColumn is the header of the optional drop-list CSV.
	DropListColumn = "feats_to_drop"
)

var nanValues = []string{"NA", "NaN", "<nil>", "", "nan"}

// ReadFrame loads a CSV into a frame, detecting column types. Empty cells and
// NaN spellings become missing values.
func ReadFrame(r io.Reader) (dataframe.DataFrame, error) {
	df := dataframe.ReadCSV(r,
		dataframe.DetectTypes(true),
		dataframe.HasHeader(true),
		dataframe.NaNValues(nanValues),
	)
	if df.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("read csv: %w", df.Err)
	}
	return df, nil
}

func ReadFrameFile(path string) (dataframe.DataFrame, error) {
	f, err := os.Open(path)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	defer f.Close()
	df, err := ReadFrame(f)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("%s: %w", path, err)
	}
	return df, nil
}

// WriteFrame writes df as CSV with full float precision; gota's own writer
// rounds floats to six decimals.
func WriteFrame(w io.Writer, df dataframe.DataFrame) error {
	if df.Err != nil {
		return df.Err
	}
	cw := csv.NewWriter(w)
	names := df.Names()
	if err := cw.Write(names); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	cols := make([]series.Series, len(names))
	for j, name := range names {
		cols[j] = df.Col(name)
	}
	record := make([]string, len(names))
	for i := 0; i < df.Nrow(); i++ {
		for j, s := range cols {
			record[j] = formatElem(s, i)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func WriteFrameFile(path string, df dataframe.DataFrame) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteFrame(f, df); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	return f.Close()
}

func formatElem(s series.Series, i int) string {
	e := s.Elem(i)
	if e.IsNA() {
		return "NaN"
	}
	switch s.Type() {
	case series.Float:
		v := e.Float()
		if math.IsNaN(v) {
			return "NaN"
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case series.Int:
		v, err := e.Int()
		if err != nil {
			return "NaN"
		}
		return strconv.Itoa(v)
	case series.Bool:
		v, _ := e.Bool()
		return strconv.FormatBool(v)
	default:
		return e.String()
	}
}

// WriteLabels writes a single-column is_precipitation CSV.
func WriteLabels(w io.Writer, y []bool) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{LabelColumn}); err != nil {
		return err
	}
	for _, v := range y {
		if err := cw.Write([]string{strconv.FormatBool(v)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func WriteLabelsFile(path string, y []bool) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteLabels(f, y); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	return f.Close()
}

// ReadLabels reads a label CSV. Accepts any spelling strconv.ParseBool does,
// including pandas' True/False.
func ReadLabels(r io.Reader) ([]bool, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read labels: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: empty label file", models.ErrInvalidArgument)
	}
	if len(records[0]) != 1 || records[0][0] != LabelColumn {
		return nil, fmt.Errorf("%w: label header %v, want [%s]", models.ErrInvalidArgument, records[0], LabelColumn)
	}
	y := make([]bool, 0, len(records)-1)
	for i, rec := range records[1:] {
		v, err := strconv.ParseBool(rec[0])
		if err != nil {
			return nil, fmt.Errorf("%w: label row %d: %q", models.ErrInvalidArgument, i+1, rec[0])
		}
		y = append(y, v)
	}
	return y, nil
}

func ReadLabelsFile(path string) ([]bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	y, err := ReadLabels(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return y, nil
}

// ReadDropList reads the feats_to_drop column of a drop-list CSV.
func ReadDropList(r io.Reader) ([]string, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read drop list: %w", err)
	}
	if len(records) == 0 {
		return nil, errors.New("read drop list: empty file")
	}
	col := slices.Index(records[0], DropListColumn)
	if col < 0 {
		return nil, fmt.Errorf("%w: drop list has no %s column", models.ErrInvalidArgument, DropListColumn)
	}
	var cols []string
	for _, rec := range records[1:] {
		if col < len(rec) && rec[col] != "" {
			cols = append(cols, rec[col])
		}
	}
	return cols, nil
}

func ReadDropListFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadDropList(f)
}
