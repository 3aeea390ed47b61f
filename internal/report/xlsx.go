package report

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Orphans"

// WriteXLSX writes the same sorted rows as WriteCSV into a single-sheet
// workbook.
func WriteXLSX(dir string, rows []Row, dryRun bool, now time.Time) (string, error) {
	path := filepath.Join(dir, Filename(dryRun, now, "xlsx"))

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return "", errors.Wrap(err, "rename sheet")
	}
	if err := setRow(f, 1, Columns); err != nil {
		return "", err
	}
	for i, row := range SortRows(rows) {
		if err := setRow(f, i+2, row.Values()); err != nil {
			return "", err
		}
	}

	err := writeAtomic(path, func(out *os.File) error {
		return f.Write(out)
	})
	if err != nil {
		return "", errors.Wrapf(err, "write xlsx %s", path)
	}
	return path, nil
}

func setRow(f *excelize.File, n int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		return errors.Wrapf(err, "row %d", n)
	}
	cells := make([]any, len(values))
	for i, v := range values {
		cells[i] = v
	}
	if err := f.SetSheetRow(sheetName, cell, &cells); err != nil {
		return errors.Wrapf(err, "set row %d", n)
	}
	return nil
}
