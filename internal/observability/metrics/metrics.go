package metrics

import "github.com/prometheus/client_golang/prometheus"

// ScanMetrics exposes counters/histograms for the periodic inbox scan.
type ScanMetrics struct {
	runsTotal   *prometheus.CounterVec
	rowsTotal   *prometheus.CounterVec
	runDuration prometheus.Histogram
	skippedRuns prometheus.Counter
}

func NewScanMetrics(reg prometheus.Registerer) *ScanMetrics {
	m := &ScanMetrics{
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scan",
			Name:      "runs_total",
			Help:      "Completed scan runs by transport",
		}, []string{"transport"}),
		rowsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scan",
			Name:      "rows_total",
			Help:      "Inbox rows handled by table and outcome",
		}, []string{"transport", "table", "outcome"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "scan",
			Name:      "run_duration_seconds",
			Help:      "Duration of one scan run",
			Buckets:   prometheus.DefBuckets,
		}),
		skippedRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scan",
			Name:      "skipped_runs_total",
			Help:      "Ticks skipped because a scan was still running",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.runsTotal, m.rowsTotal, m.runDuration, m.skippedRuns)
	return m
}

func (m *ScanMetrics) ObserveRun(transport string, seconds float64) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(transport).Inc()
	m.runDuration.Observe(seconds)
}

// ObserveRow records one row's outcome: "sent", "skipped", or "failed".
func (m *ScanMetrics) ObserveRow(transport, table, outcome string) {
	if m == nil {
		return
	}
	m.rowsTotal.WithLabelValues(transport, table, outcome).Inc()
}

func (m *ScanMetrics) ObserveSkippedRun() {
	if m == nil {
		return
	}
	m.skippedRuns.Inc()
}

// DialogMetrics counts dialog machine activity.
type DialogMetrics struct {
	eventsTotal *prometheus.CounterVec
}

func NewDialogMetrics(reg prometheus.Registerer) *DialogMetrics {
	m := &DialogMetrics{
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "dialog",
			Name:      "events_total",
			Help:      "Inbound events by transport, stage and outcome",
		}, []string{"transport", "stage", "outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.eventsTotal)
	return m
}

// ObserveEvent records one handled event. Outcome is "advanced", "held",
// "ignored", or "error".
func (m *DialogMetrics) ObserveEvent(transport, stage, outcome string) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(transport, stage, outcome).Inc()
}
