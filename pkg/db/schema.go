package db

// Schema defines the SQLite schema for the Patient/Study/Series/Instance
// hierarchy. Every level carries a natural-key UNIQUE constraint so that
// concurrent first-time creators converge on a single row; surrogate ids are
// generated by the application, not the store.
const Schema = `
CREATE TABLE IF NOT EXISTS patients (
    id TEXT PRIMARY KEY,
    patient_id TEXT NOT NULL UNIQUE,
    patient_name TEXT NOT NULL,
    patient_birth_date TEXT,
    patient_sex TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS studies (
    id TEXT PRIMARY KEY,
    patient_id TEXT NOT NULL REFERENCES patients(id),
    study_instance_uid TEXT NOT NULL UNIQUE,
    study_id TEXT,
    study_date TEXT,
    study_time TEXT,
    study_description TEXT,
    accession_number TEXT,
    modality TEXT,
    status TEXT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS series (
    id TEXT PRIMARY KEY,
    study_id TEXT NOT NULL REFERENCES studies(id),
    series_instance_uid TEXT NOT NULL UNIQUE,
    series_number INTEGER,
    series_description TEXT,
    modality TEXT,
    body_part_examined TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS instances (
    id TEXT PRIMARY KEY,
    series_id TEXT NOT NULL REFERENCES series(id),
    sop_instance_uid TEXT NOT NULL UNIQUE,
    sop_class_uid TEXT,
    instance_number INTEGER,
    file_path TEXT NOT NULL,
    file_size INTEGER NOT NULL,
    transfer_syntax_uid TEXT,
    image_rows INTEGER,
    image_columns INTEGER,
    bits_allocated INTEGER,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_studies_patient ON studies(patient_id);
CREATE INDEX IF NOT EXISTS idx_series_study ON series(study_id);
CREATE INDEX IF NOT EXISTS idx_instances_series ON instances(series_id);
`

// StudyStatusCompleted marks a study created from an arriving object: the
// acquisition already happened on the sending side.
const StudyStatusCompleted = "completed"

// StudySummary is one row of the study listing: the study's identity joined
// with its patient and aggregate counts.
type StudySummary struct {
	StudyInstanceUID string
	StudyDate        string
	Modality         string
	Description      string
	PatientID        string
	PatientName      string
	SeriesCount      int
	InstanceCount    int
}
