package runner

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rekey"

// Registry exposes the summary as gauges for the node exporter textfile
// collector. Every series carries a dry_run label.
func (s *Summary) Registry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"dry_run": fmt.Sprint(s.DryRun)}

	gauge := func(name, help string, v float64) {
		g := prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
		g.Set(v)
		reg.MustRegister(g)
	}
	vec := func(name, help, label string, values map[string]int) {
		g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, []string{label})
		for k, v := range values {
			g.WithLabelValues(k).Set(float64(v))
		}
		reg.MustRegister(g)
	}

	success := 1.0
	if s.Failed() {
		success = 0
	}
	gauge("last_run_timestamp_seconds", "Unix time the last run finished.", float64(s.FinishedAt.Unix()))
	gauge("last_run_duration_seconds", "Wall time of the last run.", s.Duration().Seconds())
	gauge("last_run_success", "1 if the last run succeeded.", success)
	vec("actions", "Audited actions of the last run by kind.", "action", s.Actions)

	if bf := s.Backfill; bf != nil {
		vec("backfill_records", "Records touched by the last backfill.", "outcome", map[string]int{
			"events_created":  bf.EventsCreated,
			"events_updated":  bf.EventsUpdated,
			"classes_created": bf.ClassesCreated,
			"classes_updated": bf.ClassesUpdated,
			"rows_updated":    bf.RowsUpdated,
			"rows_invalid":    bf.RowsInvalid,
		})
	}

	if rc := s.Reconcile; rc != nil {
		vec("duplicate_groups", "Duplicate groups of the last run by status.", "status", map[string]int{
			"found":    rc.GroupsFound,
			"resolved": rc.Resolved,
			"errored":  rc.Errored,
		})
		vec("relinked_records", "Dependent records relinked by the last run.", "dependent", rc.Relinked)
		skipped := make(map[string]int, len(rc.Skipped))
		for _, name := range rc.Skipped {
			skipped[name] = 1
		}
		vec("dependent_skipped", "1 for each dependent skipped as inaccessible.", "dependent", skipped)
	}

	if v := s.Validation; v != nil {
		passed := 0.0
		if v.Passed {
			passed = 1
		}
		gauge("validation_passed", "1 if the last validation passed.", passed)
		vec("validation_findings", "Validation findings of the last run by severity.", "severity", map[string]int{
			"error":   len(v.Errors),
			"warning": len(v.Warnings),
		})
		gauge("validation_orphans", "Orphaned references found by the last validation.", float64(v.Stats.Orphans))
	}
	return reg
}

// WriteMetrics writes the summary's registry to path in the text
// exposition format, replacing the file atomically.
func (s *Summary) WriteMetrics(path string) error {
	if err := prometheus.WriteToTextfile(path, s.Registry()); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
