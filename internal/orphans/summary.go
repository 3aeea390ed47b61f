package orphans

import (
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/orphan-cleanup/internal/report"
)

type Outcome int

const (
	OutcomeSkipped Outcome = iota
	OutcomeWouldDelete
	OutcomeDeleted
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeWouldDelete:
		return "would_delete"
	case OutcomeDeleted:
		return "deleted"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcomes lists every outcome in a stable order.
var Outcomes = []Outcome{OutcomeDeleted, OutcomeWouldDelete, OutcomeSkipped, OutcomeFailed}

// Result is the per-entity outcome of a run.
type Result struct {
	Name    string
	Kind    string
	UID     string
	Outcome Outcome
	Err     error
	Row     *report.Row
}

type Summary struct {
	// Found is the length of the fetched listing.
	Found   int
	DryRun  bool
	Results []Result
	Rows    []report.Row
}

func (s Summary) Count(o Outcome) int {
	n := 0
	for _, r := range s.Results {
		if r.Outcome == o {
			n++
		}
	}
	return n
}

func (s Summary) Fields() logrus.Fields {
	fields := logrus.Fields{
		"found":   s.Found,
		"dry_run": s.DryRun,
	}
	for _, o := range Outcomes {
		fields[o.String()] = s.Count(o)
	}
	return fields
}
