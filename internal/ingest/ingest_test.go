package ingest

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lox/raincouver/internal/models"
	"github.com/lox/raincouver/internal/store"
)

func day(s string) time.Time {
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return d
}

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	st := store.New(db)
	if err := st.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return st
}

// archivePayload builds an archive response covering [start, end]. Every
// third day has rain; precipitation_hours is null on the first day.
func archivePayload(t *testing.T, start, end time.Time) []byte {
	t.Helper()
	daily := map[string]any{}
	var times []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		times = append(times, d.Format(time.DateOnly))
	}
	daily["time"] = times
	for _, name := range models.DailyVariables {
		switch name {
		case "sunrise", "sunset":
			vals := make([]*string, len(times))
			for i, ts := range times {
				s := ts + "T08:00"
				vals[i] = &s
			}
			daily[name] = vals
		default:
			vals := make([]*float64, len(times))
			for i := range times {
				v := float64(i % 10)
				if name == "precipitation_sum" && i%3 != 0 {
					v = 0
				}
				vals[i] = &v
			}
			if name == "precipitation_hours" && len(vals) > 0 {
				vals[0] = nil
			}
			daily[name] = vals
		}
	}
	b, err := json.Marshal(map[string]any{
		"latitude":              49.25,
		"longitude":             -123.12,
		"elevation":             70.0,
		"timezone":              "America/Vancouver",
		"timezone_abbreviation": "PST",
		"utc_offset_seconds":    -28800,
		"daily":                 daily,
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return b
}

func newArchiveServer(t *testing.T, calls *atomic.Int32, fail func(n int32) int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if fail != nil {
			if status := fail(n); status != 0 {
				w.WriteHeader(status)
				w.Write([]byte(`{"error":true,"reason":"nope"}`))
				return
			}
		}
		q := r.URL.Query()
		if q.Get("daily") != strings.Join(models.DailyVariables, ",") {
			t.Errorf("daily param = %q", q.Get("daily"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(archivePayload(t, day(q.Get("start_date")), day(q.Get("end_date"))))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(srv *httptest.Server, st *store.Store) *ArchiveClient {
	c := NewArchiveClient(Vancouver, st)
	c.SetBaseURL(srv.URL)
	c.SetRetry(3, time.Millisecond)
	return c
}

func TestValidateDaily(t *testing.T) {
	valid := func(v float64) sql.NullFloat64 { return sql.NullFloat64{Float64: v, Valid: true} }

	tests := []struct {
		name      string
		obs       *models.DailyObservation
		wantFlags []string
	}{
		{
			name: "plausible day - no flags",
			obs: &models.DailyObservation{
				TempMax:                  valid(12),
				TempMin:                  valid(4),
				TempMean:                 valid(8),
				PrecipitationSum:         valid(3.2),
				PrecipitationHours:       valid(5),
				WindSpeedMax:             valid(20),
				WindGustsMax:             valid(45),
				WindDirectionDominant:    valid(220),
				ShortwaveRadiationSum:    valid(4.1),
				ET0FAOEvapotranspiration: valid(0.6),
				WeatherCode:              valid(61),
			},
			wantFlags: nil,
		},
		{
			name:      "all null - no flags",
			obs:       &models.DailyObservation{},
			wantFlags: nil,
		},
		{
			name:      "temp too hot",
			obs:       &models.DailyObservation{TempMax: valid(55)},
			wantFlags: []string{FlagTempOutOfRange},
		},
		{
			name:      "min above max",
			obs:       &models.DailyObservation{TempMax: valid(5), TempMin: valid(7)},
			wantFlags: []string{FlagTempOrderInvalid},
		},
		{
			name:      "negative rain",
			obs:       &models.DailyObservation{RainSum: valid(-0.1)},
			wantFlags: []string{FlagPrecipNegative},
		},
		{
			name:      "precipitation hours beyond a day",
			obs:       &models.DailyObservation{PrecipitationHours: valid(25)},
			wantFlags: []string{FlagPrecipHoursInvalid},
		},
		{
			name:      "wind direction out of range",
			obs:       &models.DailyObservation{WindDirectionDominant: valid(361)},
			wantFlags: []string{FlagWindDirInvalid},
		},
		{
			name:      "negative radiation and et0",
			obs:       &models.DailyObservation{ShortwaveRadiationSum: valid(-1), ET0FAOEvapotranspiration: valid(-1)},
			wantFlags: []string{FlagRadiationNegative, FlagEvapotranspiration},
		},
		{
			name:      "unknown weather code",
			obs:       &models.DailyObservation{WeatherCode: valid(120)},
			wantFlags: []string{FlagWeatherCodeUnknown},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateDaily(tt.obs)
			sort.Strings(got)
			want := append([]string(nil), tt.wantFlags...)
			sort.Strings(want)
			if len(got) != len(want) {
				t.Fatalf("ValidateDaily() = %v, want %v", got, want)
			}
			for i := range want {
				if got[i] != want[i] {
					t.Errorf("ValidateDaily() = %v, want %v", got, want)
				}
			}
		})
	}
}

func TestQualityFlagsToJSON(t *testing.T) {
	if got := QualityFlagsToJSON(nil); got != "" {
		t.Errorf("QualityFlagsToJSON(nil) = %q, want empty", got)
	}
	got := QualityFlagsToJSON([]string{FlagTempOutOfRange, FlagPrecipNegative})
	var parsed []string
	if err := json.Unmarshal([]byte(got), &parsed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(parsed) != 2 || parsed[0] != FlagTempOutOfRange || parsed[1] != FlagPrecipNegative {
		t.Errorf("parsed = %v", parsed)
	}
}

func TestYearWindows(t *testing.T) {
	tests := []struct {
		name       string
		start, end string
		want       []string
	}{
		{"single day", "2023-05-01", "2023-05-01", []string{"2023-05-01..2023-05-01"}},
		{"within a year", "2023-01-01", "2023-12-31", []string{"2023-01-01..2023-12-31"}},
		{"across new year", "2022-12-30", "2023-01-02", []string{"2022-12-30..2022-12-31", "2023-01-01..2023-01-02"}},
		{"three years", "2021-06-01", "2023-02-01", []string{
			"2021-06-01..2021-12-31", "2022-01-01..2022-12-31", "2023-01-01..2023-02-01",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, w := range yearWindows(day(tt.start), day(tt.end)) {
				got = append(got, w[0].Format(time.DateOnly)+".."+w[1].Format(time.DateOnly))
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("yearWindows = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseArchive(t *testing.T) {
	obs, parseErrors, err := parseArchive(archivePayload(t, day("2023-01-01"), day("2023-01-04")), "vancouver")
	if err != nil {
		t.Fatalf("parseArchive: %v", err)
	}
	if parseErrors != 0 {
		t.Errorf("parseErrors = %d, want 0", parseErrors)
	}
	if len(obs) != 4 {
		t.Fatalf("len(obs) = %d, want 4", len(obs))
	}
	if obs[0].LocationID != "vancouver" || !obs[0].Date.Equal(day("2023-01-01")) {
		t.Errorf("obs[0] = %+v", obs[0])
	}
	if obs[0].PrecipitationHours.Valid {
		t.Error("obs[0].PrecipitationHours should be NULL")
	}
	if !obs[1].PrecipitationHours.Valid || obs[1].PrecipitationHours.Float64 != 1 {
		t.Errorf("obs[1].PrecipitationHours = %+v, want 1", obs[1].PrecipitationHours)
	}
	if obs[2].Sunrise.String != "2023-01-03T08:00" {
		t.Errorf("obs[2].Sunrise = %q", obs[2].Sunrise.String)
	}
}

func TestParseArchive_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{not json`},
		{"api error", `{"error":true,"reason":"Parameter 'start_date' is out of allowed range"}`},
		{"missing variable", `{"daily":{"time":["2023-01-01"]}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := parseArchive([]byte(tt.body), "vancouver"); err == nil {
				t.Error("expected error")
			}
		})
	}

	t.Run("length mismatch", func(t *testing.T) {
		var payload map[string]any
		if err := json.Unmarshal(archivePayload(t, day("2023-01-01"), day("2023-01-03")), &payload); err != nil {
			t.Fatal(err)
		}
		payload["daily"].(map[string]any)["rain_sum"] = []float64{1}
		b, _ := json.Marshal(payload)
		if _, _, err := parseArchive(b, "vancouver"); err == nil {
			t.Error("expected error for short rain_sum")
		}
	})
}

func TestFetchDaily(t *testing.T) {
	var calls atomic.Int32
	srv := newArchiveServer(t, &calls, nil)
	c := newTestClient(srv, nil)

	obs, err := c.FetchDaily(context.Background(), day("2022-12-30"), day("2023-01-02"))
	if err != nil {
		t.Fatalf("FetchDaily: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2 (one per calendar year)", calls.Load())
	}
	want := []string{"2022-12-30", "2022-12-31", "2023-01-01", "2023-01-02"}
	if len(obs) != len(want) {
		t.Fatalf("len(obs) = %d, want %d", len(obs), len(want))
	}
	for i, w := range want {
		if got := obs[i].Date.Format(time.DateOnly); got != w {
			t.Errorf("obs[%d].Date = %s, want %s", i, got, w)
		}
	}
}

func TestFetchDaily_InvalidRange(t *testing.T) {
	c := NewArchiveClient(Vancouver, nil)
	_, err := c.FetchDaily(context.Background(), day("2023-02-01"), day("2023-01-01"))
	if !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestFetchDaily_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := newArchiveServer(t, &calls, func(n int32) int {
		if n == 1 {
			return http.StatusServiceUnavailable
		}
		if n == 2 {
			return http.StatusTooManyRequests
		}
		return 0
	})
	c := newTestClient(srv, nil)

	obs, err := c.FetchDaily(context.Background(), day("2023-01-01"), day("2023-01-05"))
	if err != nil {
		t.Fatalf("FetchDaily: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
	if len(obs) != 5 {
		t.Errorf("len(obs) = %d, want 5", len(obs))
	}
}

func TestFetchDaily_ClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := newArchiveServer(t, &calls, func(int32) int { return http.StatusBadRequest })
	c := newTestClient(srv, nil)

	_, err := c.FetchDaily(context.Background(), day("2023-01-01"), day("2023-01-05"))
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "status 400") {
		t.Errorf("err = %v, want status 400", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestFetchDaily_CacheHit(t *testing.T) {
	var calls atomic.Int32
	srv := newArchiveServer(t, &calls, nil)
	st := setupTestStore(t)
	c := newTestClient(srv, st)

	for i := 0; i < 2; i++ {
		obs, err := c.FetchDaily(context.Background(), day("2023-03-01"), day("2023-03-10"))
		if err != nil {
			t.Fatalf("FetchDaily #%d: %v", i, err)
		}
		if len(obs) != 10 {
			t.Fatalf("len(obs) = %d, want 10", len(obs))
		}
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (second fetch served from cache)", calls.Load())
	}

	c.SetCacheTTL(-time.Second)
	if _, err := c.FetchDaily(context.Background(), day("2023-03-01"), day("2023-03-10")); err != nil {
		t.Fatalf("FetchDaily after expiry: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2 after cache expiry", calls.Load())
	}
}

func TestWriteCSV(t *testing.T) {
	obs, _, err := parseArchive(archivePayload(t, day("2023-01-01"), day("2023-01-02")), "vancouver")
	if err != nil {
		t.Fatalf("parseArchive: %v", err)
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, obs); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("len(records) = %d, want 3", len(records))
	}
	if records[0][0] != "date" || len(records[0]) != len(models.DailyVariables)+1 {
		t.Errorf("header = %v", records[0])
	}
	hoursCol := -1
	for i, h := range records[0] {
		if h == "precipitation_hours" {
			hoursCol = i
		}
	}
	if records[1][hoursCol] != "" {
		t.Errorf("null precipitation_hours = %q, want empty", records[1][hoursCol])
	}
	if records[2][hoursCol] != "1" {
		t.Errorf("precipitation_hours = %q, want 1", records[2][hoursCol])
	}
}

func TestRawCSVName(t *testing.T) {
	if got := RawCSVName(day("2019-01-01"), day("2023-12-31")); got != "van_weather_2019-01-01_2023-12-31.csv" {
		t.Errorf("RawCSVName = %q", got)
	}
}
