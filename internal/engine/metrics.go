package engine

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus metrics of refactorings and backups.
type Metrics struct {
	scanned         *prometheus.CounterVec
	phantom         *prometheus.CounterVec
	missing         *prometheus.CounterVec
	redundant       *prometheus.CounterVec
	rewritten       *prometheus.CounterVec
	deletedEntities *prometheus.CounterVec
	skipped         *prometheus.CounterVec
	duration        *prometheus.HistogramVec

	backups     *prometheus.CounterVec
	backupBytes prometheus.Counter
}

// NewMetrics creates the metrics and registers them on r. A nil r leaves
// them unregistered. Collectors already registered on r are reused.
func NewMetrics(r prometheus.Registerer) *Metrics {
	m := &Metrics{
		scanned:         counterVec("entitydb_refactor_rows_scanned_total", "Index rows scanned by refactorings", "pass"),
		phantom:         counterVec("entitydb_refactor_phantom_rows_total", "Phantom index rows deleted", "pass"),
		missing:         counterVec("entitydb_refactor_missing_rows_total", "Missing index rows inserted", "pass"),
		redundant:       counterVec("entitydb_refactor_redundant_rows_total", "Forward rows re-put to restore their reverse rows", "pass"),
		rewritten:       counterVec("entitydb_refactor_rewritten_rows_total", "Primary rows rewritten", "pass"),
		deletedEntities: counterVec("entitydb_refactor_deleted_entities_total", "Orphaned entities deleted", "pass"),
		skipped:         counterVec("entitydb_refactor_skipped_types_total", "Entity types skipped after a read-only transaction race", "pass"),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "entitydb_refactor_duration_seconds",
			Help:    "Duration of a refactoring pass for one entity type",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"pass"}),
		backups: counterVec("entitydb_backups_total", "Backups by result", "result"),
		backupBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "entitydb_backup_bytes_total",
			Help: "Bytes accepted for backup",
		}),
	}
	if r == nil {
		return m
	}
	m.scanned = register(r, m.scanned)
	m.phantom = register(r, m.phantom)
	m.missing = register(r, m.missing)
	m.redundant = register(r, m.redundant)
	m.rewritten = register(r, m.rewritten)
	m.deletedEntities = register(r, m.deletedEntities)
	m.skipped = register(r, m.skipped)
	m.duration = register(r, m.duration)
	m.backups = register(r, m.backups)
	m.backupBytes = register(r, m.backupBytes)
	return m
}

func counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels)
}

func register[C prometheus.Collector](r prometheus.Registerer, c C) C {
	if err := r.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

// observe records a pass report.
func (m *Metrics) observe(rep Report) {
	pass := string(rep.Pass)
	if rep.Skipped {
		m.skipped.WithLabelValues(pass).Inc()
		return
	}
	m.scanned.WithLabelValues(pass).Add(float64(rep.Scanned))
	m.phantom.WithLabelValues(pass).Add(float64(rep.Phantom))
	m.missing.WithLabelValues(pass).Add(float64(rep.Missing))
	m.redundant.WithLabelValues(pass).Add(float64(rep.Redundant))
	m.rewritten.WithLabelValues(pass).Add(float64(rep.Rewritten))
	m.deletedEntities.WithLabelValues(pass).Add(float64(rep.DeletedEntities))
	m.duration.WithLabelValues(pass).Observe(rep.Duration.Seconds())
}

// ObserveBackup records the outcome of a backup.
func (m *Metrics) ObserveBackup(bytes int64, err error) {
	if err != nil {
		m.backups.WithLabelValues("error").Inc()
		return
	}
	m.backups.WithLabelValues("ok").Inc()
	m.backupBytes.Add(float64(bytes))
}
