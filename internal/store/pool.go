package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/facecascade/internal/featurestore"
)

// DefaultChunkSize is the number of features transposed per pass of Organize.
const DefaultChunkSize = 4096

// Pool describes a populated set of examples.
type Pool struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	FeatureCount int64     `json:"feature_count"`
	Fingerprint  string    `json:"fingerprint"`
	Positives    int       `json:"positives"`
	Negatives    int       `json:"negatives"`
	Organized    bool      `json:"organized"`
	CreatedAt    time.Time `json:"created_at"`
}

// Examples returns the number of examples in the pool.
func (p *Pool) Examples() int {
	return p.Positives + p.Negatives
}

// PoolRepository provides operations on pools.
type PoolRepository struct {
	db *sql.DB
}

// Pools returns the pool repository for this store.
func (s *Store) Pools() *PoolRepository {
	return &PoolRepository{db: s.db}
}

// Create inserts a new pool. An empty ID is replaced by a fresh UUID.
func (r *PoolRepository) Create(p *Pool) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = time.Now()
	p.Organized = false

	_, err := r.db.Exec(
		`INSERT INTO pools (id, name, width, height, feature_count, fingerprint, positives, negatives, organized, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		p.ID, p.Name, p.Width, p.Height, p.FeatureCount, p.Fingerprint, p.Positives, p.Negatives, p.CreatedAt,
	)
	return err
}

const poolColumns = `id, name, width, height, feature_count, fingerprint, positives, negatives, organized, created_at`

func scanPool(row interface{ Scan(...any) error }) (*Pool, error) {
	p := &Pool{}
	err := row.Scan(&p.ID, &p.Name, &p.Width, &p.Height, &p.FeatureCount, &p.Fingerprint,
		&p.Positives, &p.Negatives, &p.Organized, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// GetByID retrieves a pool by its ID.
func (r *PoolRepository) GetByID(id string) (*Pool, error) {
	return scanPool(r.db.QueryRow(`SELECT `+poolColumns+` FROM pools WHERE id = ?`, id))
}

// GetByFingerprint retrieves the newest organized pool with the given fingerprint.
func (r *PoolRepository) GetByFingerprint(fingerprint string) (*Pool, error) {
	return scanPool(r.db.QueryRow(
		`SELECT `+poolColumns+` FROM pools
		 WHERE fingerprint = ? AND organized = 1
		 ORDER BY created_at DESC LIMIT 1`,
		fingerprint,
	))
}

// List retrieves all pools, newest first.
func (r *PoolRepository) List() ([]*Pool, error) {
	rows, err := r.db.Query(`SELECT ` + poolColumns + ` FROM pools ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pools []*Pool
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, err
		}
		pools = append(pools, p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return pools, nil
}

// Delete removes a pool and its feature data.
func (r *PoolRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM pools WHERE id = ?`, id)
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

// Data returns the feature data of a pool.
func (r *PoolRepository) Data(p *Pool) *PoolData {
	return &PoolData{db: r.db, pool: p, ChunkSize: DefaultChunkSize}
}

// PoolData reads and writes the feature values of one pool.
// It implements featurestore.Writer and featurestore.Source.
type PoolData struct {
	db   *sql.DB
	pool *Pool
	// ChunkSize bounds the features held in memory while organizing.
	ChunkSize int
}

var (
	_ featurestore.Source = (*PoolData)(nil)
	_ featurestore.Writer = (*PoolData)(nil)
)

// Pool returns the pool metadata.
func (d *PoolData) Pool() *Pool {
	return d.pool
}

// PutExample implements featurestore.Writer.
func (d *PoolData) PutExample(ctx context.Context, idx int, r featurestore.Record) error {
	if int64(len(r.Values)) != d.pool.FeatureCount {
		return fmt.Errorf("example %d has %d values, want %d", idx, len(r.Values), d.pool.FeatureCount)
	}
	if idx < 0 || idx >= d.pool.Examples() {
		return fmt.Errorf("%w: example %d of %d", featurestore.ErrRange, idx, d.pool.Examples())
	}

	st := featurestore.StatsOf(r.Values, r.Uniform)

	_, err := d.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO pool_examples (pool_id, idx, label, path, value_sum, value_sum_sq, value_count, uniform, data)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.pool.ID, idx, r.Positive, r.Path, st.Sum, st.SumSq, st.Count, st.Uniform, featurestore.EncodeValues(r.Values),
	)
	if err != nil {
		return fmt.Errorf("store example %d: %w", idx, err)
	}
	return nil
}

// Organize implements featurestore.Writer. Features are transposed in
// chunks; each chunk is written in its own transaction.
func (d *PoolData) Organize(ctx context.Context) error {
	var stored int
	if err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pool_examples WHERE pool_id = ?`, d.pool.ID,
	).Scan(&stored); err != nil {
		return err
	}
	if stored != d.pool.Examples() {
		return fmt.Errorf("pool %s has %d of %d examples stored", d.pool.ID, stored, d.pool.Examples())
	}

	if _, err := d.db.ExecContext(ctx, `DELETE FROM pool_features WHERE pool_id = ?`, d.pool.ID); err != nil {
		return err
	}

	chunk := int64(d.ChunkSize)
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	for start := int64(0); start < d.pool.FeatureCount; start += chunk {
		end := start + chunk
		if end > d.pool.FeatureCount {
			end = d.pool.FeatureCount
		}
		if err := d.organizeChunk(ctx, start, end); err != nil {
			return fmt.Errorf("organize features [%d, %d): %w", start, end, err)
		}
	}

	if _, err := d.db.ExecContext(ctx, `UPDATE pools SET organized = 1 WHERE id = ?`, d.pool.ID); err != nil {
		return err
	}
	d.pool.Organized = true

	return nil
}

func (d *PoolData) organizeChunk(ctx context.Context, start, end int64) error {
	lists := make([][]featurestore.ExampleValue, end-start)
	for i := range lists {
		lists[i] = make([]featurestore.ExampleValue, 0, d.pool.Examples())
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT idx, data FROM pool_examples WHERE pool_id = ? ORDER BY idx`, d.pool.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			idx  int
			data []byte
		)
		if err := rows.Scan(&idx, &data); err != nil {
			return err
		}
		for f := start; f < end; f++ {
			v, err := featurestore.ValueAt(data, f)
			if err != nil {
				return fmt.Errorf("example %d: %w", idx, err)
			}
			lists[f-start] = append(lists[f-start], featurestore.ExampleValue{Example: idx, Value: v})
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO pool_features (pool_id, feature_idx, data) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, list := range lists {
		sort.Slice(list, func(a, b int) bool { return featurestore.Less(list[a], list[b]) })
		if _, err := stmt.ExecContext(ctx, d.pool.ID, start+int64(i), featurestore.EncodeSorted(list)); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ValueAt implements featurestore.Source.
func (d *PoolData) ValueAt(ctx context.Context, featureIndex int64, example int) (int, error) {
	if featureIndex < 0 || featureIndex >= d.pool.FeatureCount {
		return 0, fmt.Errorf("%w: feature %d", featurestore.ErrRange, featureIndex)
	}

	var data []byte
	err := d.db.QueryRowContext(ctx,
		`SELECT substr(data, ?, 4) FROM pool_examples WHERE pool_id = ? AND idx = ?`,
		4*featureIndex+1, d.pool.ID, example,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("%w: example %d", featurestore.ErrRange, example)
		}
		return 0, err
	}
	return featurestore.ValueAt(data, 0)
}

// SortedValues implements featurestore.Source.
func (d *PoolData) SortedValues(ctx context.Context, featureIndex int64) ([]featurestore.ExampleValue, error) {
	if !d.pool.Organized {
		return nil, featurestore.ErrNotOrganized
	}

	var data []byte
	err := d.db.QueryRowContext(ctx,
		`SELECT data FROM pool_features WHERE pool_id = ? AND feature_idx = ?`,
		d.pool.ID, featureIndex,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: feature %d", featurestore.ErrRange, featureIndex)
		}
		return nil, err
	}
	return featurestore.DecodeSorted(data)
}

// Stats implements featurestore.Source.
func (d *PoolData) Stats(ctx context.Context, example int) (featurestore.ExampleStats, error) {
	var st featurestore.ExampleStats
	err := d.db.QueryRowContext(ctx,
		`SELECT value_sum, value_sum_sq, value_count, uniform FROM pool_examples WHERE pool_id = ? AND idx = ?`,
		d.pool.ID, example,
	).Scan(&st.Sum, &st.SumSq, &st.Count, &st.Uniform)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return st, fmt.Errorf("%w: example %d", featurestore.ErrRange, example)
		}
		return st, err
	}
	return st, nil
}

// Examples implements featurestore.Source.
func (d *PoolData) Examples() int {
	return d.pool.Examples()
}

// Features implements featurestore.Source.
func (d *PoolData) Features() int64 {
	return d.pool.FeatureCount
}

// Labels returns the label of every example in index order.
func (d *PoolData) Labels(ctx context.Context) ([]bool, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT label FROM pool_examples WHERE pool_id = ? ORDER BY idx`, d.pool.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var labels []bool
	for rows.Next() {
		var l bool
		if err := rows.Scan(&l); err != nil {
			return nil, err
		}
		labels = append(labels, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return labels, nil
}
