// Package storage resolves deterministic filesystem locations for received
// objects and writes their bytes under a configured base directory.
package storage

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/openpacs/pacsd/pkg/errors"
	"github.com/openpacs/pacsd/pkg/object"
)

// FileExtension is appended to every stored object's filename.
const FileExtension = ".dcm"

// Store writes received objects into a directory tree derived from their
// hierarchy keys. It is read-only after construction and safe for concurrent
// use; directory creation is idempotent.
type Store struct {
	basePath          string
	organizeByPatient bool
	organizeByStudy   bool
}

// New creates a Store rooted at basePath, creating the base directory if
// needed.
func New(basePath string, organizeByPatient, organizeByStudy bool) (*Store, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create storage base directory")
	}

	slog.Info("storage_init",
		"base_path", basePath,
		"organize_by_patient", organizeByPatient,
		"organize_by_study", organizeByStudy)

	return &Store{
		basePath:          basePath,
		organizeByPatient: organizeByPatient,
		organizeByStudy:   organizeByStudy,
	}, nil
}

// ResolvePath derives the storage location for obj and ensures the directory
// chain exists. Layout: base/[patient/][study/]series/sop.dcm, with each
// segment sanitized independently; absent identifiers simply omit their
// segment. The only failure mode is directory creation.
func (s *Store) ResolvePath(obj *object.Object) (string, error) {
	dir := s.basePath

	if s.organizeByPatient && obj.PatientID != "" {
		dir = filepath.Join(dir, Sanitize(obj.PatientID))
	}
	if s.organizeByStudy && obj.StudyInstanceUID != "" {
		dir = filepath.Join(dir, Sanitize(obj.StudyInstanceUID))
	}
	if obj.SeriesInstanceUID != "" {
		dir = filepath.Join(dir, Sanitize(obj.SeriesInstanceUID))
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.Wrap(err, "failed to create storage directory")
	}

	return filepath.Join(dir, Sanitize(obj.SOPInstanceUID)+FileExtension), nil
}

// Write persists data at the resolved location for obj and returns the file
// path and size.
func (s *Store) Write(obj *object.Object, data []byte) (string, int64, error) {
	path, err := s.ResolvePath(obj)
	if err != nil {
		return "", 0, err
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		slog.Error("storage_write_failed", "path", path, "error", err)
		return "", 0, errors.Wrap(err, "failed to write object file")
	}

	slog.Info("object_stored", "path", path, "size", len(data))
	return path, int64(len(data)), nil
}

// BasePath returns the configured storage root.
func (s *Store) BasePath() string {
	return s.basePath
}

// Sanitize replaces every byte outside [A-Za-z0-9._-] with an underscore.
// It is deterministic and idempotent, and applied per path segment.
func Sanitize(s string) string {
	out := []byte(s)
	for i := 0; i < len(out); i++ {
		c := out[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-' || c == '_' || c == '.':
		default:
			out[i] = '_'
		}
	}
	return string(out)
}
