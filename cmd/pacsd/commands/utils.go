package commands

import (
	"os"
	"path/filepath"

	"github.com/openpacs/pacsd/pkg/errors"
)

// ensureDirectories creates the directory holding the SQLite database.
func ensureDirectories(dbPath string) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return errors.Wrap(err, "failed to create database directory")
	}
	return nil
}
