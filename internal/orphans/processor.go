// Package orphans walks the orphaned entities of a catalog, deleting them
// (or only reporting the intent in dry-run mode) one at a time.
package orphans

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/orphan-cleanup/internal/catalog"
	"github.com/iota-uz/orphan-cleanup/internal/report"
)

// Deleter removes a single entity by uid.
type Deleter interface {
	DeleteOrphan(ctx context.Context, uid string) error
}

type Options struct {
	DryRun bool
	// CollectRows captures a report row for every deleted (or would-be
	// deleted) entity.
	CollectRows bool
}

type Processor struct {
	deleter Deleter
	out     io.Writer
	logger  *logrus.Logger
	opts    Options
}

func NewProcessor(deleter Deleter, out io.Writer, logger *logrus.Logger, opts Options) *Processor {
	if out == nil {
		out = io.Discard
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Processor{
		deleter: deleter,
		out:     out,
		logger:  logger,
		opts:    opts,
	}
}

// Process handles orphans strictly in the given order. Failures only affect
// the entity they belong to.
func (p *Processor) Process(ctx context.Context, orphans []catalog.Orphan) Summary {
	summary := Summary{
		Found:   len(orphans),
		DryRun:  p.opts.DryRun,
		Results: make([]Result, 0, len(orphans)),
	}
	for _, o := range orphans {
		res := p.processOne(ctx, o)
		summary.Results = append(summary.Results, res)
		if res.Row != nil {
			summary.Rows = append(summary.Rows, *res.Row)
		}
	}
	return summary
}

// Skip and delete-failure lines are logged at error level so that only
// LOG_LEVEL=silent hides them.
func (p *Processor) processOne(ctx context.Context, o catalog.Orphan) Result {
	p.dump(o)

	e := o.Entity
	res := Result{Name: e.Name(), Kind: e.Kind()}
	log := p.logger.WithFields(logrus.Fields{"name": res.Name, "kind": res.Kind})

	uid, ok := e.UID()
	if !ok {
		res.Outcome = OutcomeSkipped
		log.WithField("outcome", res.Outcome.String()).
			Errorf("Skipping entity %s of kind %s: missing uid", res.Name, res.Kind)
		return res
	}
	res.UID = uid
	log = log.WithField("uid", uid)

	if p.opts.DryRun {
		p.println(fmt.Sprintf("Dry-run: would delete orphan entity: %s of kind: %s", res.Name, res.Kind))
		res.Outcome = OutcomeWouldDelete
		res.Row = p.row(e)
		return res
	}

	p.println(fmt.Sprintf("Deleting orphan entity: %s of kind: %s", res.Name, res.Kind))
	if err := p.deleter.DeleteOrphan(ctx, uid); err != nil {
		res.Outcome = OutcomeFailed
		log.WithField("outcome", res.Outcome.String()).Error(err.Error())
		res.Err = err
		return res
	}
	log.Debug("deleted")
	res.Outcome = OutcomeDeleted
	res.Row = p.row(e)
	return res
}

func (p *Processor) row(e catalog.Entity) *report.Row {
	if !p.opts.CollectRows {
		return nil
	}
	row := report.NewRow(e)
	return &row
}

// dump pretty-prints the entity with the keys in the order the catalog sent
// them.
func (p *Processor) dump(o catalog.Orphan) {
	var buf bytes.Buffer
	if len(o.Raw) > 0 {
		if err := json.Indent(&buf, o.Raw, "", "  "); err != nil {
			p.logger.WithError(err).Error("json indent entity")
			return
		}
		buf.WriteByte('\n')
	} else {
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		if err := enc.Encode(o.Entity); err != nil {
			p.logger.WithError(err).Error("json encode entity")
			return
		}
	}
	_, _ = p.out.Write(buf.Bytes())
}

func (p *Processor) println(line string) {
	_, _ = fmt.Fprintln(p.out, line)
}
