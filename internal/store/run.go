package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/facecascade/internal/boost"
	"github.com/ayusman/facecascade/internal/cascade"
)

// RunStatus is the lifecycle state of a training run.
type RunStatus string

const (
	// RunStatusTraining marks a run whose layers are still being appended.
	RunStatusTraining RunStatus = "training"
	// RunStatusCompleted marks a run whose cascade is final.
	RunStatusCompleted RunStatus = "completed"
	// RunStatusFailed marks a run stopped by an error.
	RunStatusFailed RunStatus = "failed"
)

// Run represents one training run and the cascade it produced.
type Run struct {
	ID          string    `json:"id"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	Status      RunStatus `json:"status"`
	TrainPoolID string    `json:"train_pool_id,omitempty"`
	TestPoolID  string    `json:"test_pool_id,omitempty"`
	Layers      int       `json:"layers"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RunRepository provides operations on runs and their cascades.
type RunRepository struct {
	db *sql.DB
}

// Runs returns the run repository for this store.
func (s *Store) Runs() *RunRepository {
	return &RunRepository{db: s.db}
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Create inserts a new run in the training state. An empty ID is replaced by a fresh UUID.
func (r *RunRepository) Create(run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	now := time.Now()
	run.CreatedAt = now
	run.UpdatedAt = now
	run.Status = RunStatusTraining

	_, err := r.db.Exec(
		`INSERT INTO runs (id, width, height, status, train_pool_id, test_pool_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Width, run.Height, string(run.Status),
		nullable(run.TrainPoolID), nullable(run.TestPoolID), run.CreatedAt, run.UpdatedAt,
	)
	return err
}

const runQuery = `SELECT r.id, r.width, r.height, r.status, r.train_pool_id, r.test_pool_id,
		(SELECT COUNT(*) FROM layers l WHERE l.run_id = r.id), r.created_at, r.updated_at
	 FROM runs r`

func scanRun(row interface{ Scan(...any) error }) (*Run, error) {
	run := &Run{}
	var status string
	var trainPool, testPool sql.NullString
	err := row.Scan(&run.ID, &run.Width, &run.Height, &status, &trainPool, &testPool,
		&run.Layers, &run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	run.Status = RunStatus(status)
	run.TrainPoolID = trainPool.String
	run.TestPoolID = testPool.String
	return run, nil
}

// GetByID retrieves a run by its ID.
func (r *RunRepository) GetByID(id string) (*Run, error) {
	return scanRun(r.db.QueryRow(runQuery+` WHERE r.id = ?`, id))
}

// Latest retrieves the most recent completed run.
func (r *RunRepository) Latest() (*Run, error) {
	return scanRun(r.db.QueryRow(
		runQuery + ` WHERE r.status = 'completed' ORDER BY r.created_at DESC, r.rowid DESC LIMIT 1`,
	))
}

// List retrieves all runs, newest first.
func (r *RunRepository) List() ([]*Run, error) {
	rows, err := r.db.Query(runQuery + ` ORDER BY r.created_at DESC, r.rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return runs, nil
}

// SetStatus updates the status of a run.
func (r *RunRepository) SetStatus(id string, status RunStatus) error {
	result, err := r.db.Exec(
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now(), id,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// AppendLayer stores a finished layer and its committee in a single transaction.
func (r *RunRepository) AppendLayer(ctx context.Context, runID string, index int, layer cascade.Layer) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO layers (run_id, layer_idx, tweak, committee_size) VALUES (?, ?, ?, ?)`,
		runID, index, layer.Tweak, len(layer.Rules))
	if err != nil {
		return fmt.Errorf("insert layer %d: %w", index, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO rules (run_id, layer_idx, rule_idx, feature_idx, threshold, toggle, error, margin)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, rule := range layer.Rules {
		if _, err := stmt.ExecContext(ctx, runID, index, i,
			rule.FeatureIndex, rule.Threshold, rule.Toggle, rule.Error, rule.Margin); err != nil {
			return fmt.Errorf("insert rule %d of layer %d: %w", i, index, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE runs SET updated_at = ? WHERE id = ?`, time.Now(), runID); err != nil {
		return err
	}

	return tx.Commit()
}

// SetTweaks writes the final tweak of every layer and marks the run completed.
func (r *RunRepository) SetTweaks(ctx context.Context, runID string, tweaks []float64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var layers int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM layers WHERE run_id = ?`, runID).Scan(&layers); err != nil {
		return err
	}
	if layers != len(tweaks) {
		return fmt.Errorf("run %s has %d layers, got %d tweaks", runID, layers, len(tweaks))
	}

	stmt, err := tx.PrepareContext(ctx, `UPDATE layers SET tweak = ? WHERE run_id = ? AND layer_idx = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, tweak := range tweaks {
		if _, err := stmt.ExecContext(ctx, tweak, runID, i); err != nil {
			return err
		}
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(RunStatusCompleted), time.Now(), runID)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}

// LoadCascade reads the cascade of a run.
func (r *RunRepository) LoadCascade(ctx context.Context, runID string) (*cascade.Cascade, error) {
	run, err := r.GetByID(runID)
	if err != nil {
		return nil, err
	}

	c := &cascade.Cascade{Width: run.Width, Height: run.Height}

	layerRows, err := r.db.QueryContext(ctx,
		`SELECT tweak, committee_size FROM layers WHERE run_id = ? ORDER BY layer_idx`, runID)
	if err != nil {
		return nil, err
	}
	defer layerRows.Close()

	var sizes []int
	for layerRows.Next() {
		var (
			tweak float64
			size  int
		)
		if err := layerRows.Scan(&tweak, &size); err != nil {
			return nil, err
		}
		c.Layers = append(c.Layers, cascade.Layer{Tweak: tweak})
		sizes = append(sizes, size)
	}
	if err := layerRows.Err(); err != nil {
		return nil, err
	}

	ruleRows, err := r.db.QueryContext(ctx,
		`SELECT layer_idx, feature_idx, threshold, toggle, error, margin
		 FROM rules WHERE run_id = ? ORDER BY layer_idx, rule_idx`, runID)
	if err != nil {
		return nil, err
	}
	defer ruleRows.Close()

	for ruleRows.Next() {
		var (
			layer int
			rule  boost.StumpRule
		)
		if err := ruleRows.Scan(&layer, &rule.FeatureIndex, &rule.Threshold, &rule.Toggle, &rule.Error, &rule.Margin); err != nil {
			return nil, err
		}
		if layer < 0 || layer >= len(c.Layers) {
			return nil, fmt.Errorf("rule references missing layer %d", layer)
		}
		c.Layers[layer].Rules = append(c.Layers[layer].Rules, rule)
	}
	if err := ruleRows.Err(); err != nil {
		return nil, err
	}

	for i, size := range sizes {
		if len(c.Layers[i].Rules) != size {
			return nil, fmt.Errorf("layer %d has %d rules, expected %d", i, len(c.Layers[i].Rules), size)
		}
	}

	return c, nil
}
