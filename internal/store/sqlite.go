package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lox/raincouver/internal/models"
)

const dateLayout = "2006-01-02"

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) UpsertLocation(l models.Location) error {
	_, err := s.db.Exec(`
		INSERT INTO locations (location_id, name, latitude, longitude, timezone)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(location_id) DO UPDATE SET
			name = excluded.name,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			timezone = excluded.timezone
	`, l.LocationID, l.Name, l.Latitude, l.Longitude, l.Timezone)
	return err
}

func (s *Store) GetLocation(locationID string) (*models.Location, error) {
	var l models.Location
	err := s.db.QueryRow(`
		SELECT location_id, name, latitude, longitude, timezone
		FROM locations WHERE location_id = ?
	`, locationID).Scan(&l.LocationID, &l.Name, &l.Latitude, &l.Longitude, &l.Timezone)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

var observationColumns = func() []string {
	cols := []string{"location_id", "date"}
	cols = append(cols, models.DailyVariables...)
	return append(cols, "quality_flags")
}()

// UpsertDailyObservations writes observations in one transaction. A date that
// already exists for the location is overwritten, so each date keeps exactly
// one row.
func (s *Store) UpsertDailyObservations(obs []models.DailyObservation) (int, error) {
	if len(obs) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(observationColumns)), ", ")
	var updates []string
	for _, c := range observationColumns[2:] {
		updates = append(updates, fmt.Sprintf("%s = excluded.%s", c, c))
	}
	query := fmt.Sprintf(`
		INSERT INTO daily_observations (%s)
		VALUES (%s)
		ON CONFLICT(location_id, date) DO UPDATE SET %s
	`, strings.Join(observationColumns, ", "), placeholders, strings.Join(updates, ", "))

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	stmt, err := tx.Prepare(query)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, o := range obs {
		if _, err := stmt.Exec(observationArgs(o)...); err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("upsert observation %s: %w", o.Date.Format(dateLayout), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(obs), nil
}

func observationArgs(o models.DailyObservation) []any {
	args := []any{o.LocationID, o.Date.Format(dateLayout)}
	for _, name := range models.DailyVariables {
		switch name {
		case "sunrise":
			args = append(args, o.Sunrise)
		case "sunset":
			args = append(args, o.Sunset)
		default:
			v, _ := o.Numeric(name)
			args = append(args, v)
		}
	}
	return append(args, o.QualityFlags)
}

// GetDailyObservations returns observations in [start, end] ordered by date.
func (s *Store) GetDailyObservations(locationID string, start, end time.Time) ([]models.DailyObservation, error) {
	rows, err := s.db.Query(fmt.Sprintf(`
		SELECT %s
		FROM daily_observations
		WHERE location_id = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`, strings.Join(observationColumns, ", ")), locationID, start.Format(dateLayout), end.Format(dateLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DailyObservation
	for rows.Next() {
		var o models.DailyObservation
		var date string
		var flags sql.NullString
		numeric := make([]sql.NullFloat64, len(models.DailyVariables))
		dest := []any{&o.LocationID, &date}
		for i, name := range models.DailyVariables {
			switch name {
			case "sunrise":
				dest = append(dest, &o.Sunrise)
			case "sunset":
				dest = append(dest, &o.Sunset)
			default:
				dest = append(dest, &numeric[i])
			}
		}
		dest = append(dest, &flags)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		o.Date, err = time.Parse(dateLayout, date[:min(len(date), len(dateLayout))])
		if err != nil {
			return nil, fmt.Errorf("parse date %q: %w", date, err)
		}
		for i, name := range models.DailyVariables {
			o.SetNumeric(name, numeric[i])
		}
		o.QualityFlags = flags.String
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) CountDailyObservations(locationID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM daily_observations WHERE location_id = ?`, locationID).Scan(&n)
	return n, err
}
