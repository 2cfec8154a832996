package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Results table - one row per successful batch upload
		`CREATE TABLE IF NOT EXISTS results (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			source_filename TEXT NOT NULL,
			original_ref TEXT NOT NULL DEFAULT '',
			annotated_ref TEXT NOT NULL DEFAULT '',
			width INTEGER NOT NULL,
			height INTEGER NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Detections table - records of a result in model order
		`CREATE TABLE IF NOT EXISTS detections (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			result_id TEXT NOT NULL REFERENCES results(id) ON DELETE CASCADE,
			sequence INTEGER NOT NULL,
			class_label TEXT NOT NULL,
			confidence REAL NOT NULL CHECK(confidence >= 0 AND confidence <= 1),
			x_min INTEGER NOT NULL,
			y_min INTEGER NOT NULL,
			x_max INTEGER NOT NULL,
			y_max INTEGER NOT NULL,
			is_critical INTEGER NOT NULL DEFAULT 0
		)`,

		// Indexes for better query performance
		`CREATE INDEX IF NOT EXISTS idx_results_created_at ON results(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_results_session_id ON results(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_detections_result_id ON detections(result_id)`,
		`CREATE INDEX IF NOT EXISTS idx_detections_class_label ON detections(class_label)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
