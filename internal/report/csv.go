package report

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

// WriteCSV writes the sorted rows with a header into dir and returns the
// path of the created file. The header is written even without rows.
func WriteCSV(dir string, rows []Row, dryRun bool, now time.Time) (string, error) {
	path := filepath.Join(dir, Filename(dryRun, now, "csv"))

	err := writeAtomic(path, func(f *os.File) error {
		w := csv.NewWriter(f)
		if err := w.Write(Columns); err != nil {
			return err
		}
		for _, row := range SortRows(rows) {
			if err := w.Write(row.Values()); err != nil {
				return err
			}
		}
		w.Flush()
		return w.Error()
	})
	if err != nil {
		return "", errors.Wrapf(err, "write csv %s", path)
	}
	return path, nil
}

// writeAtomic fills a temp file next to path and renames it into place.
func writeAtomic(path string, fill func(f *os.File) error) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := fill(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
