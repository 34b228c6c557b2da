package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Pools table - one populated set of examples for a frame size
		`CREATE TABLE IF NOT EXISTS pools (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			width INTEGER NOT NULL,
			height INTEGER NOT NULL,
			feature_count INTEGER NOT NULL,
			fingerprint TEXT NOT NULL,
			positives INTEGER NOT NULL,
			negatives INTEGER NOT NULL,
			organized INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Pool examples table - packed feature vector per example
		`CREATE TABLE IF NOT EXISTS pool_examples (
			pool_id TEXT NOT NULL REFERENCES pools(id) ON DELETE CASCADE,
			idx INTEGER NOT NULL,
			label INTEGER NOT NULL,
			path TEXT NOT NULL,
			value_sum REAL NOT NULL,
			value_sum_sq REAL NOT NULL,
			value_count INTEGER NOT NULL,
			uniform INTEGER NOT NULL DEFAULT 0,
			data BLOB NOT NULL,
			PRIMARY KEY (pool_id, idx)
		)`,

		// Pool features table - sorted (example, value) list per feature
		`CREATE TABLE IF NOT EXISTS pool_features (
			pool_id TEXT NOT NULL REFERENCES pools(id) ON DELETE CASCADE,
			feature_idx INTEGER NOT NULL,
			data BLOB NOT NULL,
			PRIMARY KEY (pool_id, feature_idx)
		)`,

		// Runs table - one training run and its cascade
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			width INTEGER NOT NULL,
			height INTEGER NOT NULL,
			status TEXT NOT NULL CHECK(status IN ('training', 'completed', 'failed')),
			train_pool_id TEXT REFERENCES pools(id) ON DELETE SET NULL,
			test_pool_id TEXT REFERENCES pools(id) ON DELETE SET NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Layers table - one committee of a run
		`CREATE TABLE IF NOT EXISTS layers (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			layer_idx INTEGER NOT NULL,
			tweak REAL NOT NULL,
			committee_size INTEGER NOT NULL,
			PRIMARY KEY (run_id, layer_idx)
		)`,

		// Rules table - committee members
		`CREATE TABLE IF NOT EXISTS rules (
			run_id TEXT NOT NULL,
			layer_idx INTEGER NOT NULL,
			rule_idx INTEGER NOT NULL,
			feature_idx INTEGER NOT NULL,
			threshold REAL NOT NULL,
			toggle INTEGER NOT NULL CHECK(toggle IN (-1, 1)),
			error REAL NOT NULL,
			margin REAL NOT NULL,
			PRIMARY KEY (run_id, layer_idx, rule_idx),
			FOREIGN KEY (run_id, layer_idx) REFERENCES layers(run_id, layer_idx) ON DELETE CASCADE
		)`,

		// Indexes for better query performance
		`CREATE INDEX IF NOT EXISTS idx_pools_fingerprint ON pools(fingerprint)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status, created_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
