// Package runmetrics exports the counters of a single cleanup run in the
// Prometheus text format, for the node_exporter textfile collector.
package runmetrics

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/iota-uz/orphan-cleanup/internal/orphans"
)

const namespace = "backstage_orphan_cleanup"

type Recorder struct {
	registry *prometheus.Registry

	found        prometheus.Gauge
	entities     *prometheus.GaugeVec
	dryRun       prometheus.Gauge
	lastRun      prometheus.Gauge
	fetchFailure prometheus.Gauge
}

func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		found: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "found_entities",
			Help:      "Number of orphaned entities returned by the catalog.",
		}),
		entities: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "entities",
			Help:      "Number of orphaned entities per outcome in the last run.",
		}, []string{"outcome"}),
		dryRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dry_run",
			Help:      "Whether the last run was a dry run (1/0).",
		}),
		lastRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
		fetchFailure: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fetch_failed",
			Help:      "Whether listing the orphaned entities failed (1/0).",
		}),
	}
}

func (r *Recorder) Observe(s orphans.Summary, finishedAt time.Time) {
	r.found.Set(float64(s.Found))
	for _, o := range orphans.Outcomes {
		r.entities.WithLabelValues(o.String()).Set(float64(s.Count(o)))
	}
	r.dryRun.Set(boolToFloat(s.DryRun))
	r.fetchFailure.Set(0)
	r.lastRun.Set(float64(finishedAt.Unix()))
}

func (r *Recorder) ObserveFetchFailure(dryRun bool, finishedAt time.Time) {
	r.fetchFailure.Set(1)
	r.dryRun.Set(boolToFloat(dryRun))
	r.lastRun.Set(float64(finishedAt.Unix()))
}

// WriteTextfile atomically replaces path with the current metric values.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return errors.Wrapf(err, "write metrics %s", path)
	}
	return nil
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
