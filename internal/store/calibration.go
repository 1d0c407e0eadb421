package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ayusman/paperbeat/internal/zone"
)

// CalibrationRepository stores zone sets.
type CalibrationRepository struct {
	db *sql.DB
}

// Calibrations returns the calibration repository for this store.
func (s *Store) Calibrations() *CalibrationRepository {
	return &CalibrationRepository{db: s.db}
}

// Save inserts a zone set. Its id must be unique.
func (r *CalibrationRepository) Save(set *zone.Set) error {
	quad, err := json.Marshal(set.Quad)
	if err != nil {
		return fmt.Errorf("failed to encode quad: %w", err)
	}
	zones, err := json.Marshal(set.Zones)
	if err != nil {
		return fmt.Errorf("failed to encode zones: %w", err)
	}

	_, err = r.db.Exec(
		`INSERT INTO calibrations (id, instrument, zone_count, quad, zones, source, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		set.ID, set.Instrument, len(set.Zones), string(quad), string(zones), string(set.Source), set.CreatedAt.UnixMilli(),
	)
	return err
}

const calibrationColumns = `id, instrument, quad, zones, source, created_at`

// Latest returns the most recently created zone set.
func (r *CalibrationRepository) Latest() (*zone.Set, error) {
	row := r.db.QueryRow(
		`SELECT ` + calibrationColumns + ` FROM calibrations ORDER BY created_at DESC, rowid DESC LIMIT 1`,
	)
	return scanCalibration(row)
}

// GetByID retrieves a zone set by id.
func (r *CalibrationRepository) GetByID(id string) (*zone.Set, error) {
	row := r.db.QueryRow(`SELECT `+calibrationColumns+` FROM calibrations WHERE id = ?`, id)
	return scanCalibration(row)
}

// List returns up to limit zone sets, newest first.
func (r *CalibrationRepository) List(limit int) ([]*zone.Set, error) {
	rows, err := r.db.Query(
		`SELECT `+calibrationColumns+` FROM calibrations ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sets []*zone.Set
	for rows.Next() {
		set, err := scanCalibration(rows)
		if err != nil {
			return nil, err
		}
		sets = append(sets, set)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sets, nil
}

// Delete removes a zone set. Notes recorded against it keep their data but
// lose the reference.
func (r *CalibrationRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM calibrations WHERE id = ?`, id)
	if err != nil {
		return err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCalibration(sc scanner) (*zone.Set, error) {
	var (
		set       zone.Set
		quad      string
		zones     string
		source    string
		createdMs int64
	)

	err := sc.Scan(&set.ID, &set.Instrument, &quad, &zones, &source, &createdMs)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal([]byte(quad), &set.Quad); err != nil {
		return nil, fmt.Errorf("calibration %s: bad quad: %w", set.ID, err)
	}
	if err := json.Unmarshal([]byte(zones), &set.Zones); err != nil {
		return nil, fmt.Errorf("calibration %s: bad zones: %w", set.ID, err)
	}
	set.Source = zone.Source(source)
	set.CreatedAt = time.UnixMilli(createdMs).UTC()

	return &set, nil
}
