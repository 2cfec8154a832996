package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/ayusman/spacevision/internal/detection"
)

// ResultRepository archives batch detection results.
type ResultRepository struct {
	db *sql.DB
}

// Results returns the result repository for this store.
func (s *Store) Results() *ResultRepository {
	return &ResultRepository{db: s.db}
}

// Create inserts a result and its detections in a single transaction.
func (r *ResultRepository) Create(sessionID string, res detection.Result) error {
	if res.ID == "" {
		return fmt.Errorf("result has no id")
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO results (id, session_id, source_filename, original_ref, annotated_ref, width, height, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ID, sessionID, res.SourceFilename, res.OriginalImageRef, res.AnnotatedImageRef,
		res.Width, res.Height, res.CreatedAt,
	)
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(
		`INSERT INTO detections (result_id, sequence, class_label, confidence, x_min, y_min, x_max, y_max, is_critical)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, d := range res.Detections {
		_, err := stmt.Exec(res.ID, i, d.ClassLabel, d.Confidence,
			d.Box.XMin, d.Box.YMin, d.Box.XMax, d.Box.YMax, d.IsCritical)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetByID retrieves an archived result with its detections.
func (r *ResultRepository) GetByID(id string) (*detection.Result, error) {
	res := &detection.Result{Mode: detection.ModeBatch}

	err := r.db.QueryRow(
		`SELECT id, source_filename, original_ref, annotated_ref, width, height, created_at
		 FROM results WHERE id = ?`,
		id,
	).Scan(&res.ID, &res.SourceFilename, &res.OriginalImageRef, &res.AnnotatedImageRef,
		&res.Width, &res.Height, &res.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	res.Detections, err = r.detections(res.ID)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// List retrieves up to limit archived results, most recent first.
// A limit of zero or less returns all results.
func (r *ResultRepository) List(limit int) ([]*detection.Result, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := r.db.Query(
		`SELECT id, source_filename, original_ref, annotated_ref, width, height, created_at
		 FROM results ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}

	var results []*detection.Result
	for rows.Next() {
		res := &detection.Result{Mode: detection.ModeBatch}
		err := rows.Scan(&res.ID, &res.SourceFilename, &res.OriginalImageRef, &res.AnnotatedImageRef,
			&res.Width, &res.Height, &res.CreatedAt)
		if err != nil {
			rows.Close()
			return nil, err
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// Detections are loaded after the outer cursor is closed because the
	// store runs on a single connection.
	for _, res := range results {
		res.Detections, err = r.detections(res.ID)
		if err != nil {
			return nil, err
		}
	}

	return results, nil
}

// Count returns the number of archived results.
func (r *ResultRepository) Count() (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM results`).Scan(&n)
	return n, err
}

// LabelCounts returns how many archived detections carry each class label.
func (r *ResultRepository) LabelCounts() (map[string]int, error) {
	rows, err := r.db.Query(`SELECT class_label, COUNT(*) FROM detections GROUP BY class_label`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var label string
		var n int
		if err := rows.Scan(&label, &n); err != nil {
			return nil, err
		}
		counts[label] = n
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return counts, nil
}

func (r *ResultRepository) detections(resultID string) ([]detection.Detection, error) {
	rows, err := r.db.Query(
		`SELECT class_label, confidence, x_min, y_min, x_max, y_max, is_critical
		 FROM detections WHERE result_id = ? ORDER BY sequence`,
		resultID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	detections := make([]detection.Detection, 0)
	for rows.Next() {
		var d detection.Detection
		err := rows.Scan(&d.ClassLabel, &d.Confidence,
			&d.Box.XMin, &d.Box.YMin, &d.Box.XMax, &d.Box.YMax, &d.IsCritical)
		if err != nil {
			return nil, err
		}
		detections = append(detections, d)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return detections, nil
}
