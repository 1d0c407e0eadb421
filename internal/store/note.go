package store

import (
	"database/sql"
	"time"

	"github.com/ayusman/paperbeat/internal/dispatch"
)

// Note is a recorded note event.
type Note struct {
	ID            int64  `json:"id"`
	CalibrationID string `json:"calibration_id,omitempty"`
	dispatch.NoteEvent
}

// NoteRepository stores the note history.
type NoteRepository struct {
	db *sql.DB
}

// Notes returns the note repository for this store.
func (s *Store) Notes() *NoteRepository {
	return &NoteRepository{db: s.db}
}

// Record appends notes emitted under the given calibration in one
// transaction. calibrationID may be empty.
func (r *NoteRepository) Record(calibrationID string, events ...dispatch.NoteEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO notes (calibration_id, zone_id, note, entity_id, intensity, kind, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	var calID any
	if calibrationID != "" {
		calID = calibrationID
	}

	for _, ev := range events {
		_, err := stmt.Exec(calID, ev.ZoneID, ev.Note, ev.EntityID, ev.Intensity, ev.Kind, ev.Timestamp.UnixMilli())
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Recent returns up to limit notes, newest first.
func (r *NoteRepository) Recent(limit int) ([]Note, error) {
	rows, err := r.db.Query(
		`SELECT id, calibration_id, zone_id, note, entity_id, intensity, kind, created_at
		 FROM notes ORDER BY created_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notes := []Note{}
	for rows.Next() {
		var (
			n         Note
			calID     sql.NullString
			createdMs int64
		)
		err := rows.Scan(&n.ID, &calID, &n.ZoneID, &n.Note, &n.EntityID, &n.Intensity, &n.Kind, &createdMs)
		if err != nil {
			return nil, err
		}
		n.CalibrationID = calID.String
		n.Timestamp = time.UnixMilli(createdMs).UTC()
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return notes, nil
}

// Count returns the number of recorded notes.
func (r *NoteRepository) Count() (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM notes`).Scan(&n)
	return n, err
}

// Prune deletes notes created before the given time and returns how many
// were removed.
func (r *NoteRepository) Prune(before time.Time) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM notes WHERE created_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
