package features

import (
	"bytes"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/raincouver/internal/models"
)

func monthFrame() dataframe.DataFrame {
	return dataframe.New(
		series.New([]int{1, 4, 7, 10, 12}, series.Int, "month"),
		series.New([]float64{5.5, 9.1, 18.2, 11.0, 3.3}, series.Float, "temperature_2m_mean"),
		series.New([]string{"a", "b", "c", "d", "e"}, series.String, "tag"),
	)
}

func TestEncode(t *testing.T) {
	df := monthFrame()
	before, err := csvString(df)
	require.NoError(t, err)

	out, err := Encode(df, "month", 12)
	require.NoError(t, err)

	assert.Equal(t, []string{"month", "temperature_2m_mean", "tag", "month_sin", "month_cos"}, out.Names())

	sin := out.Col("month_sin").Float()
	cos := out.Col("month_cos").Float()
	months := df.Col("month").Float()
	for i := range sin {
		assert.InDelta(t, 1.0, sin[i]*sin[i]+cos[i]*cos[i], 1e-12)
		assert.InDelta(t, math.Sin(2*math.Pi*months[i]/12), sin[i], 1e-12)
		assert.GreaterOrEqual(t, sin[i], -1.0)
		assert.LessOrEqual(t, cos[i], 1.0)
	}
	assert.InDelta(t, 1.0, sin[1], 1e-12, "april is a quarter turn")
	assert.InDelta(t, 1.0, cos[4], 1e-12, "december wraps to the start")

	// Other columns untouched, input not mutated.
	assert.Equal(t, df.Col("temperature_2m_mean").Records(), out.Col("temperature_2m_mean").Records())
	assert.Equal(t, df.Col("tag").Records(), out.Col("tag").Records())
	after, err := csvString(df)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, 3, df.Ncol())

	again, err := Encode(df, "month", 12)
	require.NoError(t, err)
	a, _ := csvString(out)
	b, _ := csvString(again)
	assert.Equal(t, a, b)
}

func TestEncode_SubsetsCompose(t *testing.T) {
	df := monthFrame()
	whole, err := Encode(df, "month", 12)
	require.NoError(t, err)

	head, err := Encode(df.Subset([]int{0, 1}), "month", 12)
	require.NoError(t, err)
	tail, err := Encode(df.Subset([]int{2, 3, 4}), "month", 12)
	require.NoError(t, err)

	joined := head.RBind(tail)
	require.NoError(t, joined.Err)
	assert.Equal(t, whole.Col("month_sin").Float(), joined.Col("month_sin").Float())
	assert.Equal(t, whole.Col("month_cos").Float(), joined.Col("month_cos").Float())
}

func TestEncode_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		col    string
		period float64
	}{
		{"zero period", "month", 0},
		{"negative period", "month", -12},
		{"NaN period", "month", math.NaN()},
		{"infinite period", "month", math.Inf(1)},
		{"missing column", "hour", 24},
		{"string column", "tag", 12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Encode(monthFrame(), tt.col, tt.period)
			require.ErrorIs(t, err, models.ErrInvalidArgument)
			assert.Equal(t, 0, out.Ncol(), "no partial output")
		})
	}
}

func TestEncodeMonth(t *testing.T) {
	out, err := EncodeMonth(monthFrame())
	require.NoError(t, err)
	assert.Equal(t, []string{"temperature_2m_mean", "tag", "month_sin", "month_cos"}, out.Names())
}

const rawCSV = `date,weather_code,temperature_2m_mean,precipitation_sum,sunrise,wind_speed_10m_max
2023-01-01,61,4.5,3.2,2023-01-01T08:08,20.1
2023-01-02,3,5.1,0,2023-01-02T08:08,11.0
2023-02-15,51,6.0,0.01,2023-02-15T07:30,
2023-03-20,1,8.2,,2023-03-20T07:10,9.5
2023-04-02,63,10.4,12.5,2023-04-02T06:50,25.0
2023-07-09,0,19.9,0.02,2023-07-09T05:20,14.2
`

func readRaw(t *testing.T, s string) dataframe.DataFrame {
	t.Helper()
	df, err := ReadFrame(strings.NewReader(s))
	require.NoError(t, err)
	return df
}

func TestBuild(t *testing.T) {
	raw := readRaw(t, rawCSV)

	X, y, err := Build(raw, []string{"date", "weather_code", "sunrise", "precipitation_sum"})
	require.NoError(t, err)

	// 2023-02-15 has no wind speed, 2023-03-20 has no precipitation.
	assert.Equal(t, 4, X.Nrow())
	assert.Equal(t, []bool{true, false, true, true}, y)
	assert.Equal(t, []string{"temperature_2m_mean", "wind_speed_10m_max", "month"}, X.Names())
	assert.Equal(t, []string{"1", "1", "4", "7"}, X.Col("month").Records())
}

func TestBuild_ThresholdIsStrict(t *testing.T) {
	raw := readRaw(t, "date,precipitation_sum\n2023-01-01,0.01\n2023-01-02,0.011\n")
	_, y, err := Build(raw, []string{"date"})
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true}, y)
}

func TestBuild_Invalid(t *testing.T) {
	tests := []struct {
		name string
		csv  string
		drop []string
	}{
		{"duplicate date", "date,precipitation_sum\n2023-01-01,1\n2023-01-01,2\n", []string{"date"}},
		{"bad date", "date,precipitation_sum\n01/02/2023,1\n", []string{"date"}},
		{"missing drop column", "date,precipitation_sum\n2023-01-01,1\n", []string{"rain_sum"}},
		{"missing precipitation", "date,rain_sum\n2023-01-01,1\n", []string{"date"}},
		{"dropping month", "date,precipitation_sum\n2023-01-01,1\n", []string{"month"}},
		{"no complete rows", "date,precipitation_sum,x\n2023-01-01,1,\n2023-01-02,,2\n", []string{"date"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Build(readRaw(t, tt.csv), tt.drop)
			assert.ErrorIs(t, err, models.ErrInvalidArgument)
		})
	}
}

func syntheticFrame(n int) (dataframe.DataFrame, []bool) {
	ids := make([]int, n)
	vals := make([]float64, n)
	y := make([]bool, n)
	for i := 0; i < n; i++ {
		ids[i] = i
		vals[i] = float64(i) / 10
		y[i] = i%3 == 0
	}
	return dataframe.New(
		series.New(ids, series.Int, "id"),
		series.New(vals, series.Float, "value"),
	), y
}

func TestSplit(t *testing.T) {
	X, y := syntheticFrame(100)

	p, err := Split(X, y, 0.2, 42)
	require.NoError(t, err)
	assert.Equal(t, 80, p.XTrain.Nrow())
	assert.Equal(t, 20, p.XTest.Nrow())
	assert.Len(t, p.YTrain, 80)
	assert.Len(t, p.YTest, 20)

	seen := make(map[int]int)
	for _, part := range []dataframe.DataFrame{p.XTrain, p.XTest} {
		ids, err := part.Col("id").Int()
		require.NoError(t, err)
		for _, id := range ids {
			seen[id]++
		}
	}
	assert.Len(t, seen, 100)
	for id, count := range seen {
		assert.Equal(t, 1, count, "row %d", id)
	}

	// Labels stay aligned with their rows.
	testIDs, _ := p.XTest.Col("id").Int()
	for i, id := range testIDs {
		assert.Equal(t, y[id], p.YTest[i])
	}

	again, err := Split(X, y, 0.2, 42)
	require.NoError(t, err)
	assert.Equal(t, p.TestIndex, again.TestIndex)
	a, _ := csvString(p.XTrain)
	b, _ := csvString(again.XTrain)
	assert.Equal(t, a, b)

	other, err := Split(X, y, 0.2, 7)
	require.NoError(t, err)
	assert.NotEqual(t, p.TestIndex, other.TestIndex)
}

func TestSplit_Rounding(t *testing.T) {
	X, y := syntheticFrame(7)
	p, err := Split(X, y, 0.2, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, p.XTest.Nrow(), "round(1.4) = 1")
	assert.Equal(t, 6, p.XTrain.Nrow())
}

func TestSplit_Invalid(t *testing.T) {
	X, y := syntheticFrame(10)
	tests := []struct {
		name     string
		y        []bool
		fraction float64
	}{
		{"zero fraction", y, 0},
		{"whole fraction", y, 1},
		{"negative fraction", y, -0.2},
		{"NaN fraction", y, math.NaN()},
		{"label count mismatch", y[:9], 0.2},
		{"empty test partition", y, 0.01},
		{"empty train partition", y, 0.99},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Split(X, tt.y, tt.fraction, 522)
			assert.ErrorIs(t, err, models.ErrInvalidArgument)
		})
	}
}

func TestToMatrix(t *testing.T) {
	df := dataframe.New(
		series.New([]int{1, 2}, series.Int, "a"),
		series.New([]float64{0.5, -1.25}, series.Float, "b"),
		series.New([]bool{true, false}, series.Bool, "c"),
	)
	m, err := ToMatrix(df)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 0.5, 1}, {2, -1.25, 0}}, m)

	_, err = ToMatrix(monthFrame())
	assert.ErrorIs(t, err, models.ErrInvalidArgument, "string column")

	withNaN := dataframe.New(series.New([]float64{1, math.NaN()}, series.Float, "x"))
	_, err = ToMatrix(withNaN)
	assert.ErrorIs(t, err, models.ErrInvalidArgument, "missing value")
}

func TestDropColumns(t *testing.T) {
	out, err := DropColumns(monthFrame(), []string{"tag"})
	require.NoError(t, err)
	assert.Equal(t, []string{"month", "temperature_2m_mean"}, out.Names())

	_, err = DropColumns(monthFrame(), []string{"month_cos"})
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	same, err := DropColumns(monthFrame(), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, same.Ncol())
}

func TestFrameRoundTrip(t *testing.T) {
	df := dataframe.New(
		series.New([]float64{0.123456789, -2.5}, series.Float, "x"),
		series.New([]int{3, 4}, series.Int, "month"),
	)
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, df))
	assert.Equal(t, "x,month\n0.123456789,3\n-2.5,4\n", buf.String())

	back, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, df.Col("x").Float(), back.Col("x").Float())
}

func TestLabels(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteLabels(&buf, []bool{true, false, true}))
	assert.Equal(t, "is_precipitation\ntrue\nfalse\ntrue\n", buf.String())

	y, err := ReadLabels(strings.NewReader("is_precipitation\nTrue\nFalse\n"))
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false}, y)

	_, err = ReadLabels(strings.NewReader("label\ntrue\n"))
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	_, err = ReadLabels(strings.NewReader("is_precipitation\nmaybe\n"))
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestReadDropList(t *testing.T) {
	cols, err := ReadDropList(strings.NewReader("feats_to_drop\nwind_speed_10m_max\n\nmonth_sin\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"wind_speed_10m_max", "month_sin"}, cols)

	_, err = ReadDropList(strings.NewReader("columns\nx\n"))
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func csvString(df dataframe.DataFrame) (string, error) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, df); err != nil {
		return "", fmt.Errorf("write frame: %w", err)
	}
	return buf.String(), nil
}
