package workflow

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/lox/raincouver/internal/report"
)

const recentErrorLimit = 5

// Status summarizes the store: schema version, stored days, response cache
// size and recent failed fetches. A positive prune first drops cached
// responses older than that.
func (r *Runner) Status(prune time.Duration) (report.Table, error) {
	if r.store == nil {
		return report.Table{}, errors.New("status needs a store")
	}
	if prune > 0 {
		n, err := r.store.CleanupOldRawPayloads(prune)
		if err != nil {
			return report.Table{}, fmt.Errorf("prune raw payloads: %w", err)
		}
		log.Printf("status: pruned %d cached responses older than %s", n, prune)
	}

	version, err := r.store.MigrationVersion()
	if err != nil {
		return report.Table{}, fmt.Errorf("migration version: %w", err)
	}
	loc := r.cfg.ModelLocation()
	days, err := r.store.CountDailyObservations(loc.LocationID)
	if err != nil {
		return report.Table{}, fmt.Errorf("count observations: %w", err)
	}
	stats, err := r.store.GetRawPayloadStats()
	if err != nil {
		return report.Table{}, fmt.Errorf("raw payload stats: %w", err)
	}
	failures, err := r.store.GetRecentIngestErrors(recentErrorLimit)
	if err != nil {
		return report.Table{}, fmt.Errorf("ingest errors: %w", err)
	}

	t := report.Table{
		Title:  "Store status",
		Header: []string{"item", "value"},
		Rows: [][]string{
			{"schema version", strconv.Itoa(version)},
			{"days stored (" + loc.LocationID + ")", strconv.Itoa(days)},
			{"cached responses", strconv.Itoa(stats.TotalCount)},
			{"cache size (bytes)", strconv.FormatInt(stats.TotalSizeBytes, 10)},
			{"recent failed fetches", strconv.Itoa(len(failures))},
		},
	}
	for _, f := range failures {
		msg := f.ErrorMessage.String
		t.Rows = append(t.Rows, []string{f.StartedAt.Format(time.DateTime), msg})
	}
	return t, nil
}

// PrintStatus prints the status table.
func (r *Runner) PrintStatus(prune time.Duration) error {
	t, err := r.Status(prune)
	if err != nil {
		return err
	}
	return r.printer.Print(t, nil)
}
