package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	claims = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scheduler",
			Name:      "claims_total",
			Help:      "Count of slot claim attempts by result.",
		},
		[]string{"result"},
	)

	remindersSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scheduler",
			Name:      "reminders_sent_total",
			Help:      "Count of reminders delivered by kind.",
		},
		[]string{"kind"},
	)

	remindersMissed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scheduler",
			Name:      "reminders_missed_total",
			Help:      "Count of reminder windows missed (flag set without sending).",
		},
		[]string{"kind"},
	)

	reaped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scheduler",
			Name:      "reaped_total",
			Help:      "Count of expired records removed by the reaper.",
		},
		[]string{"table"},
	)

	syncRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scheduler",
			Name:      "sync_runs_total",
			Help:      "Count of availability synchronization runs by result.",
		},
		[]string{"result"},
	)

	sweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "scheduler",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of one reminder/reaper sweep tick.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(claims, remindersSent, remindersMissed, reaped, syncRuns, sweepDuration)
	})
}

func IncClaim(result string) {
	claims.WithLabelValues(result).Inc()
}

func IncReminderSent(kind string) {
	remindersSent.WithLabelValues(kind).Inc()
}

func IncReminderMissed(kind string) {
	remindersMissed.WithLabelValues(kind).Inc()
}

func AddReaped(table string, n float64) {
	reaped.WithLabelValues(table).Add(n)
}

func IncSyncRun(result string) {
	syncRuns.WithLabelValues(result).Inc()
}

func ObserveSweepDuration(seconds float64) {
	sweepDuration.Observe(seconds)
}
