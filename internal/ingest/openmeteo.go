package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"

	"github.com/lox/raincouver/internal/httputil"
	"github.com/lox/raincouver/internal/metrics"
	"github.com/lox/raincouver/internal/models"
	"github.com/lox/raincouver/internal/store"
)

const (
	ArchiveURL = "https://archive-api.open-meteo.com/v1/archive"

	archiveSource   = "open-meteo"
	archiveEndpoint = "archive"

	DefaultCacheTTL   = time.Hour
	defaultMaxRetries = 5
	defaultInitial    = 200 * time.Millisecond
)

// Vancouver is the point the classifier is trained for.
var Vancouver = models.Location{
	LocationID: "vancouver",
	Name:       "Vancouver",
	Latitude:   49.2497,
	Longitude:  -123.1193,
	Timezone:   "auto",
}

// ArchiveClient fetches daily history from the Open-Meteo archive API. Ranges
// are fetched one calendar year at a time; each window is served from the
// sqlite response cache when a fresh copy exists, otherwise fetched with
// exponential backoff behind a circuit breaker.
type ArchiveClient struct {
	baseURL    string
	location   models.Location
	client     *http.Client
	store      *store.Store
	cacheTTL   time.Duration
	maxRetries uint64
	initial    time.Duration
	breaker    *gobreaker.CircuitBreaker[[]byte]
}

func NewArchiveClient(location models.Location, st *store.Store) *ArchiveClient {
	return &ArchiveClient{
		baseURL:    ArchiveURL,
		location:   location,
		client:     httputil.NewClientWithTimeout(httputil.ArchiveTimeout),
		store:      st,
		cacheTTL:   DefaultCacheTTL,
		maxRetries: defaultMaxRetries,
		initial:    defaultInitial,
		breaker: gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name: "open-meteo-archive",
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Printf("archive: breaker %s %s -> %s", name, from, to)
			},
		}),
	}
}

// SetBaseURL points the client at another archive endpoint (tests, mirrors).
func (c *ArchiveClient) SetBaseURL(u string) {
	c.baseURL = u
}

func (c *ArchiveClient) SetCacheTTL(ttl time.Duration) {
	c.cacheTTL = ttl
}

// SetRetry configures the retry budget. initial is the first backoff interval.
func (c *ArchiveClient) SetRetry(maxRetries uint64, initial time.Duration) {
	c.maxRetries = maxRetries
	c.initial = initial
}

type archiveResponse struct {
	Latitude             float64                    `json:"latitude"`
	Longitude            float64                    `json:"longitude"`
	Elevation            float64                    `json:"elevation"`
	Timezone             string                     `json:"timezone"`
	TimezoneAbbreviation string                     `json:"timezone_abbreviation"`
	UTCOffsetSeconds     int                        `json:"utc_offset_seconds"`
	Daily                map[string]json.RawMessage `json:"daily"`
	Error                bool                       `json:"error"`
	Reason               string                     `json:"reason"`
}

// FetchDaily returns one observation per day in [start, end], ordered by date.
func (c *ArchiveClient) FetchDaily(ctx context.Context, start, end time.Time) ([]models.DailyObservation, error) {
	start = truncateDay(start)
	end = truncateDay(end)
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end date %s before start date %s", models.ErrInvalidArgument,
			end.Format(time.DateOnly), start.Format(time.DateOnly))
	}

	byDate := make(map[string]models.DailyObservation)
	for _, w := range yearWindows(start, end) {
		obs, err := c.fetchWindow(ctx, w[0], w[1])
		if err != nil {
			return nil, fmt.Errorf("fetch %s..%s: %w", w[0].Format(time.DateOnly), w[1].Format(time.DateOnly), err)
		}
		for _, o := range obs {
			byDate[o.Date.Format(time.DateOnly)] = o
		}
	}

	out := make([]models.DailyObservation, 0, len(byDate))
	for _, o := range byDate {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (c *ArchiveClient) fetchWindow(ctx context.Context, start, end time.Time) ([]models.DailyObservation, error) {
	reqURL := c.buildURL(start, end)
	key := store.RequestKey(reqURL)
	locID := c.location.LocationID

	var run *store.IngestRun
	if c.store != nil {
		var err error
		run, err = c.store.StartIngestRun(archiveSource, archiveEndpoint, &locID)
		if err != nil {
			log.Printf("archive: start ingest run: %v", err)
		}
	}
	finish := func(err error) {
		if run == nil || c.store == nil {
			return
		}
		run.Success = err == nil
		if err != nil {
			run.ErrorMessage = sql.NullString{String: err.Error(), Valid: true}
		}
		if cerr := c.store.CompleteIngestRun(run); cerr != nil {
			log.Printf("archive: complete ingest run: %v", cerr)
		}
	}

	var body []byte
	if c.store != nil {
		cached, ok, err := c.store.GetCachedPayload(key, c.cacheTTL)
		if err != nil {
			log.Printf("archive: cache lookup: %v", err)
		}
		if ok {
			body = cached
			metrics.ArchiveCacheHits.WithLabelValues(locID).Inc()
			if run != nil {
				run.CacheHit = true
			}
		}
	}

	if body == nil {
		var err error
		body, err = c.breaker.Execute(func() ([]byte, error) {
			return c.get(ctx, reqURL, run)
		})
		if err != nil {
			finish(err)
			return nil, err
		}
		if c.store != nil {
			var runID *int64
			if run != nil {
				runID = &run.ID
			}
			if _, err := c.store.StoreRawPayload(runID, archiveSource, archiveEndpoint, key, &locID, body); err != nil {
				log.Printf("archive: store raw payload: %v", err)
			}
		}
	}
	if run != nil {
		run.ResponseSizeBytes = sql.NullInt64{Int64: int64(len(body)), Valid: true}
	}

	obs, parseErrors, err := parseArchive(body, locID)
	if err != nil {
		finish(err)
		return nil, err
	}

	flagged := 0
	for i := range obs {
		flags := ValidateDaily(&obs[i])
		if len(flags) > 0 {
			flagged++
		}
		obs[i].QualityFlags = QualityFlagsToJSON(flags)
	}
	if flagged > 0 {
		log.Printf("archive: %d of %d observations flagged by validation", flagged, len(obs))
	}

	if run != nil {
		run.RecordsParsed = sql.NullInt64{Int64: int64(len(obs)), Valid: true}
		run.ParseErrors = sql.NullInt64{Int64: int64(parseErrors), Valid: true}
	}
	finish(nil)
	return obs, nil
}

func (c *ArchiveClient) buildURL(start, end time.Time) string {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(c.location.Latitude, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(c.location.Longitude, 'f', -1, 64))
	q.Set("start_date", start.Format(time.DateOnly))
	q.Set("end_date", end.Format(time.DateOnly))
	q.Set("daily", strings.Join(models.DailyVariables, ","))
	tz := c.location.Timezone
	if tz == "" {
		tz = "auto"
	}
	q.Set("timezone", tz)
	return c.baseURL + "?" + q.Encode()
}

func (c *ArchiveClient) get(ctx context.Context, reqURL string, run *store.IngestRun) ([]byte, error) {
	locID := c.location.LocationID

	var body []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}

		started := time.Now()
		resp, err := c.client.Do(req)
		metrics.ArchiveAPILatency.WithLabelValues(locID).Observe(time.Since(started).Seconds())
		if err != nil {
			metrics.ArchiveAPICallsTotal.WithLabelValues(locID, "error").Inc()
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return fmt.Errorf("fetch archive: %w", err)
		}
		defer resp.Body.Close()

		metrics.ArchiveAPICallsTotal.WithLabelValues(locID, strconv.Itoa(resp.StatusCode)).Inc()
		if run != nil {
			run.HTTPStatus = sql.NullInt64{Int64: int64(resp.StatusCode), Valid: true}
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("fetch archive: retryable status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			return backoff.Permanent(fmt.Errorf("fetch archive: status %d: %s", resp.StatusCode, string(b)))
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("read body: %w", err))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.initial
	bo.MaxElapsedTime = 2 * time.Minute
	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, c.maxRetries), ctx)); err != nil {
		return nil, err
	}
	return body, nil
}

// parseArchive decodes an archive payload. Rows whose date cannot be parsed
// are skipped and counted; a variable whose array length differs from the
// time axis invalidates the whole payload.
func parseArchive(body []byte, locationID string) ([]models.DailyObservation, int, error) {
	var data archiveResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, 0, fmt.Errorf("unmarshal: %w", err)
	}
	if data.Error {
		return nil, 0, fmt.Errorf("archive error: %s", data.Reason)
	}

	log.Printf("archive: coordinates %.4f°N %.4f°E, elevation %.0f m asl, timezone %s %s (utc offset %ds)",
		data.Latitude, data.Longitude, data.Elevation, data.Timezone, data.TimezoneAbbreviation, data.UTCOffsetSeconds)

	var times []string
	if raw, ok := data.Daily["time"]; ok {
		if err := json.Unmarshal(raw, &times); err != nil {
			return nil, 0, fmt.Errorf("unmarshal daily.time: %w", err)
		}
	}

	obs := make([]models.DailyObservation, len(times))
	for _, name := range models.DailyVariables {
		raw, ok := data.Daily[name]
		if !ok {
			return nil, 0, fmt.Errorf("daily variable %s missing from response", name)
		}
		switch name {
		case "sunrise", "sunset":
			var values []*string
			if err := json.Unmarshal(raw, &values); err != nil {
				return nil, 0, fmt.Errorf("unmarshal daily.%s: %w", name, err)
			}
			if len(values) != len(times) {
				return nil, 0, fmt.Errorf("daily.%s has %d values for %d days", name, len(values), len(times))
			}
			for i, v := range values {
				var ns sql.NullString
				if v != nil {
					ns = sql.NullString{String: *v, Valid: true}
				}
				if name == "sunrise" {
					obs[i].Sunrise = ns
				} else {
					obs[i].Sunset = ns
				}
			}
		default:
			var values []*float64
			if err := json.Unmarshal(raw, &values); err != nil {
				return nil, 0, fmt.Errorf("unmarshal daily.%s: %w", name, err)
			}
			if len(values) != len(times) {
				return nil, 0, fmt.Errorf("daily.%s has %d values for %d days", name, len(values), len(times))
			}
			for i, v := range values {
				if v != nil {
					obs[i].SetNumeric(name, sql.NullFloat64{Float64: *v, Valid: true})
				}
			}
		}
	}

	out := obs[:0]
	parseErrors := 0
	for i, ts := range times {
		d, err := time.Parse(time.DateOnly, ts)
		if err != nil {
			parseErrors++
			continue
		}
		o := obs[i]
		o.LocationID = locationID
		o.Date = d
		out = append(out, o)
	}
	return out, parseErrors, nil
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// yearWindows splits [start, end] into inclusive calendar-year windows.
func yearWindows(start, end time.Time) [][2]time.Time {
	var windows [][2]time.Time
	for ws := start; !ws.After(end); {
		we := time.Date(ws.Year(), time.December, 31, 0, 0, 0, 0, time.UTC)
		if we.After(end) {
			we = end
		}
		windows = append(windows, [2]time.Time{ws, we})
		ws = we.AddDate(0, 0, 1)
	}
	return windows
}
