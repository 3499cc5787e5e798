package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lox/raincouver/internal/models"
)

// StartPipelineRun records the start of a train or evaluate stage and
// assigns it a fresh run ID.
func (s *Store) StartPipelineRun(stage string, seed int64) (*models.PipelineRun, error) {
	run := &models.PipelineRun{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Stage:     stage,
		Seed:      seed,
	}
	_, err := s.db.Exec(`
		INSERT INTO pipeline_runs (run_id, started_at, stage, seed)
		VALUES (?, ?, ?, ?)
	`, run.RunID, run.StartedAt, run.Stage, run.Seed)
	if err != nil {
		return nil, fmt.Errorf("insert pipeline run: %w", err)
	}
	return run, nil
}

func (s *Store) CompletePipelineRun(run *models.PipelineRun) error {
	if run == nil {
		return nil
	}
	run.FinishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	_, err := s.db.Exec(`
		UPDATE pipeline_runs SET
			finished_at = ?,
			selected_model = ?,
			outcome = ?,
			best_c = ?,
			artifact_path = ?
		WHERE run_id = ?
	`, run.FinishedAt, run.SelectedModel, run.Outcome, run.BestC, run.ArtifactPath, run.RunID)
	return err
}

func (s *Store) GetPipelineRun(runID string) (*models.PipelineRun, error) {
	var r models.PipelineRun
	err := s.db.QueryRow(`
		SELECT run_id, started_at, finished_at, stage, selected_model, outcome, best_c, artifact_path, seed
		FROM pipeline_runs WHERE run_id = ?
	`, runID).Scan(&r.RunID, &r.StartedAt, &r.FinishedAt, &r.Stage, &r.SelectedModel,
		&r.Outcome, &r.BestC, &r.ArtifactPath, &r.Seed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) InsertCVResults(results []models.CVResult) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	for _, r := range results {
		if _, err := tx.Exec(`
			INSERT INTO cv_results (run_id, model, row_name, mean, std)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(run_id, model, row_name) DO UPDATE SET mean = excluded.mean, std = excluded.std
		`, r.RunID, r.Model, r.Row, r.Mean, r.Std); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert cv result %s/%s: %w", r.Model, r.Row, err)
		}
	}
	return tx.Commit()
}

func (s *Store) GetCVResults(runID string) ([]models.CVResult, error) {
	rows, err := s.db.Query(`
		SELECT run_id, model, row_name, mean, std FROM cv_results
		WHERE run_id = ? ORDER BY model, row_name
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.CVResult
	for rows.Next() {
		var r models.CVResult
		if err := rows.Scan(&r.RunID, &r.Model, &r.Row, &r.Mean, &r.Std); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) InsertEvaluationResults(results []models.EvaluationResult) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	for _, r := range results {
		if _, err := tx.Exec(`
			INSERT INTO evaluation_results (run_id, class, precision, recall, f1, support)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(run_id, class) DO UPDATE SET
				precision = excluded.precision,
				recall = excluded.recall,
				f1 = excluded.f1,
				support = excluded.support
		`, r.RunID, r.Class, r.Precision, r.Recall, r.F1, r.Support); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert evaluation result %s: %w", r.Class, err)
		}
	}
	return tx.Commit()
}

func (s *Store) GetEvaluationResults(runID string) ([]models.EvaluationResult, error) {
	rows, err := s.db.Query(`
		SELECT run_id, class, precision, recall, f1, support FROM evaluation_results
		WHERE run_id = ? ORDER BY class
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.EvaluationResult
	for rows.Next() {
		var r models.EvaluationResult
		if err := rows.Scan(&r.RunID, &r.Class, &r.Precision, &r.Recall, &r.F1, &r.Support); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
