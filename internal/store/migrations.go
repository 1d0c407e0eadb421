package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Calibrations - every zone set ever activated
		`CREATE TABLE IF NOT EXISTS calibrations (
			id TEXT PRIMARY KEY,
			instrument TEXT NOT NULL,
			zone_count INTEGER NOT NULL,
			quad TEXT NOT NULL,
			zones TEXT NOT NULL,
			source TEXT NOT NULL CHECK(source IN ('detected', 'manual', 'restored')),
			created_at INTEGER NOT NULL
		)`,

		// Settings - key/value application state
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL DEFAULT 0
		)`,

		// Notes - emitted note history
		`CREATE TABLE IF NOT EXISTS notes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			calibration_id TEXT REFERENCES calibrations(id) ON DELETE SET NULL,
			zone_id TEXT NOT NULL,
			note INTEGER NOT NULL,
			entity_id TEXT NOT NULL,
			intensity REAL NOT NULL,
			kind TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_calibrations_created_at ON calibrations(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_notes_created_at ON notes(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_notes_calibration_id ON notes(calibration_id)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
