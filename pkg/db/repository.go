// Package db persists the four-level object hierarchy in SQLite with
// idempotent get-or-create semantics at every level.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/openpacs/pacsd/pkg/errors"
	"github.com/openpacs/pacsd/pkg/object"
)

// Repository provides hierarchy persistence over a bounded connection pool.
// It holds no in-memory state; concurrency safety comes entirely from the
// natural-key constraints in the schema.
type Repository struct {
	db *sql.DB
}

// NewRepository opens (or creates) the database at dbPath, applies the
// schema, and bounds the pool at maxConns.
func NewRepository(dbPath string, maxConns int) (*Repository, error) {
	slog.Info("database_init", "db_path", dbPath, "max_connections", maxConns)

	// WAL plus a busy timeout lets concurrent sessions interleave writes
	// instead of failing with "database is locked".
	dsn := "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		slog.Error("database_open_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to open database")
	}
	db.SetMaxOpenConns(maxConns)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		slog.Error("database_schema_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to create schema")
	}

	slog.Info("database_ready", "db_path", dbPath)
	return &Repository{db: db}, nil
}

// Close closes the connection pool.
func (r *Repository) Close() error {
	return r.db.Close()
}

// StoreObject records obj into the hierarchy: get-or-create Patient, Study,
// and Series by natural key, insert the Instance (a duplicate SOP instance
// UID is a silent no-op), then touch the Series timestamp. Calling it twice
// with the same keys yields exactly one row at each level.
func (r *Repository) StoreObject(ctx context.Context, obj *object.Object, filePath string, fileSize int64) error {
	patientKey, err := r.getOrCreatePatient(ctx, obj)
	if err != nil {
		return errors.Wrap(err, "patient upsert failed")
	}

	studyKey, err := r.getOrCreateStudy(ctx, patientKey, obj)
	if err != nil {
		return errors.Wrap(err, "study upsert failed")
	}

	seriesKey, err := r.getOrCreateSeries(ctx, studyKey, obj)
	if err != nil {
		return errors.Wrap(err, "series upsert failed")
	}

	if err := r.insertInstance(ctx, seriesKey, obj, filePath, fileSize); err != nil {
		return errors.Wrap(err, "instance insert failed")
	}

	if err := r.touchSeries(ctx, seriesKey); err != nil {
		return errors.Wrap(err, "series touch failed")
	}

	slog.Info("metadata_stored",
		"patient_id", obj.PatientID,
		"study_uid", obj.StudyInstanceUID,
		"series_uid", obj.SeriesInstanceUID,
		"sop_uid", obj.SOPInstanceUID)
	return nil
}

// getOrCreatePatient inserts the patient if absent and returns the surrogate
// id of the surviving row. The insert-then-select pair is race-free: under
// concurrent first-time creation the UNIQUE constraint collapses both
// attempts onto one row.
func (r *Repository) getOrCreatePatient(ctx context.Context, obj *object.Object) (string, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO patients (id, patient_id, patient_name, patient_birth_date, patient_sex)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(patient_id) DO NOTHING`,
		uuid.NewString(), obj.PatientID, obj.PatientName,
		nullString(obj.PatientBirthDate), nullString(obj.PatientSex))
	if err != nil {
		return "", err
	}

	var id string
	err = r.db.QueryRowContext(ctx,
		`SELECT id FROM patients WHERE patient_id = ?`, obj.PatientID).Scan(&id)
	return id, err
}

func (r *Repository) getOrCreateStudy(ctx context.Context, patientKey string, obj *object.Object) (string, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO studies
		(id, patient_id, study_instance_uid, study_id, study_date, study_time,
		 study_description, accession_number, modality, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(study_instance_uid) DO NOTHING`,
		uuid.NewString(), patientKey, obj.StudyInstanceUID,
		nullString(obj.StudyID), nullString(obj.StudyDate), nullString(obj.StudyTime),
		nullString(obj.StudyDescription), nullString(obj.AccessionNumber),
		nullString(obj.Modality), StudyStatusCompleted)
	if err != nil {
		return "", err
	}

	var id string
	err = r.db.QueryRowContext(ctx,
		`SELECT id FROM studies WHERE study_instance_uid = ?`, obj.StudyInstanceUID).Scan(&id)
	return id, err
}

func (r *Repository) getOrCreateSeries(ctx context.Context, studyKey string, obj *object.Object) (string, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO series
		(id, study_id, series_instance_uid, series_number, series_description,
		 modality, body_part_examined)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(series_instance_uid) DO NOTHING`,
		uuid.NewString(), studyKey, obj.SeriesInstanceUID,
		nullInt(obj.SeriesNumber), nullString(obj.SeriesDescription),
		nullString(obj.Modality), nullString(obj.BodyPartExamined))
	if err != nil {
		return "", err
	}

	var id string
	err = r.db.QueryRowContext(ctx,
		`SELECT id FROM series WHERE series_instance_uid = ?`, obj.SeriesInstanceUID).Scan(&id)
	return id, err
}

// insertInstance creates the instance row. A second arrival with the same
// SOP instance UID is suppressed, keeping the first-inserted values.
func (r *Repository) insertInstance(ctx context.Context, seriesKey string, obj *object.Object, filePath string, fileSize int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO instances
		(id, series_id, sop_instance_uid, sop_class_uid, instance_number,
		 file_path, file_size, transfer_syntax_uid, image_rows, image_columns,
		 bits_allocated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(sop_instance_uid) DO NOTHING`,
		uuid.NewString(), seriesKey, obj.SOPInstanceUID,
		nullString(obj.SOPClassUID), nullInt(obj.InstanceNumber),
		filePath, fileSize, nullString(obj.TransferSyntaxUID),
		nullInt(obj.ImageRows), nullInt(obj.ImageColumns), nullInt(obj.BitsAllocated))
	return err
}

// touchSeries refreshes the series timestamp as a cheap last-activity signal.
func (r *Repository) touchSeries(ctx context.Context, seriesKey string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE series SET updated_at = CURRENT_TIMESTAMP WHERE id = ?`, seriesKey)
	return err
}

// ListStudies returns all stored studies with their patient identity and
// series/instance counts, newest first.
func (r *Repository) ListStudies(ctx context.Context) ([]*StudySummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.study_instance_uid,
		       COALESCE(s.study_date, ''),
		       COALESCE(s.modality, ''),
		       COALESCE(s.study_description, ''),
		       p.patient_id,
		       p.patient_name,
		       (SELECT COUNT(*) FROM series se WHERE se.study_id = s.id),
		       (SELECT COUNT(*) FROM instances i
		          JOIN series se ON i.series_id = se.id
		         WHERE se.study_id = s.id)
		FROM studies s
		JOIN patients p ON s.patient_id = p.id
		ORDER BY s.created_at DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list studies")
	}
	defer rows.Close()

	var studies []*StudySummary
	for rows.Next() {
		var s StudySummary
		if err := rows.Scan(&s.StudyInstanceUID, &s.StudyDate, &s.Modality,
			&s.Description, &s.PatientID, &s.PatientName,
			&s.SeriesCount, &s.InstanceCount); err != nil {
			return nil, errors.Wrap(err, "failed to scan study row")
		}
		studies = append(studies, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "rows error")
	}

	return studies, nil
}

// CountRows returns the row count of one hierarchy table. Used by the study
// listing footer and tests.
func (r *Repository) CountRows(ctx context.Context, table string) (int, error) {
	switch table {
	case "patients", "studies", "series", "instances":
	default:
		return 0, fmt.Errorf("unknown table %q", table)
	}
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n)
	return n, err
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}
