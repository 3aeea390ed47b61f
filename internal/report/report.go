package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/iota-uz/orphan-cleanup/internal/catalog"
)

const (
	PrefixDeleted       = "backstage-orphaned-entities-deleted"
	PrefixDryRunDeleted = "backstage-dry-run-orphaned-entities-deleted"

	timestampLayout = "20060102-1504"
)

// Columns is the fixed column order of every report.
var Columns = []string{"name", "kind", "owner", "tags", "location"}

// Row is the reported projection of a deleted (or would-be deleted) entity.
type Row struct {
	Name     string
	Kind     string
	Owner    string
	Tags     string
	Location string
}

func NewRow(e catalog.Entity) Row {
	return Row{
		Name:     e.Name(),
		Kind:     e.Kind(),
		Owner:    e.Owner(),
		Tags:     e.Tags(),
		Location: e.Location(),
	}
}

func (r Row) Values() []string {
	return []string{r.Name, r.Kind, r.Owner, r.Tags, r.Location}
}

// SortRows returns a copy ordered by name, then kind, both case-insensitive.
// Ties keep their input order.
func SortRows(rows []Row) []Row {
	sorted := make([]Row, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		ni, nj := strings.ToLower(sorted[i].Name), strings.ToLower(sorted[j].Name)
		if ni != nj {
			return ni < nj
		}
		return strings.ToLower(sorted[i].Kind) < strings.ToLower(sorted[j].Kind)
	})
	return sorted
}

// Filename builds "<prefix>-<YYYYMMDD-HHMM>.<ext>" from the local time of now.
// The timestamp is wall-clock local time with no zone marker and no
// "-local-timestamp" suffix.
func Filename(dryRun bool, now time.Time, ext string) string {
	prefix := PrefixDeleted
	if dryRun {
		prefix = PrefixDryRunDeleted
	}
	return fmt.Sprintf("%s-%s.%s", prefix, now.Local().Format(timestampLayout), strings.TrimPrefix(ext, "."))
}
