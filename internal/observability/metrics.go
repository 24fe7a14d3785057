// Package observability holds the Prometheus collectors shared by the API
// and the store adapters.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	usersCreatedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "exercise_tracker",
		Subsystem: "api",
		Name:      "users_created_total",
		Help:      "Number of users added to the directory.",
	})

	exercisesRecordedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "exercise_tracker",
		Subsystem: "api",
		Name:      "exercises_recorded_total",
		Help:      "Number of exercise records created.",
	})

	exerciseDurationHistogram = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "exercise_tracker",
		Subsystem: "api",
		Name:      "exercise_duration_minutes",
		Help:      "Distribution of recorded exercise durations in minutes.",
		Buckets:   []float64{5, 10, 15, 30, 45, 60, 90, 120, 180},
	})

	logQueryResultsHistogram = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "exercise_tracker",
		Subsystem: "api",
		Name:      "log_query_results",
		Help:      "Number of records returned per exercise log query.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	})

	logQueryEmptyCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "exercise_tracker",
		Subsystem: "api",
		Name:      "log_queries_no_data_total",
		Help:      "Number of exercise log queries that matched no records.",
	})

	exercisePersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "exercise_tracker",
		Subsystem: "persistence",
		Name:      "last_exercise_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent exercise record committed to the store.",
	})
)

func init() {
	prometheus.MustRegister(
		usersCreatedCounter,
		exercisesRecordedCounter,
		exerciseDurationHistogram,
		logQueryResultsHistogram,
		logQueryEmptyCounter,
		exercisePersistGauge,
	)
}

// RecordUserCreated counts a new user.
func RecordUserCreated() {
	usersCreatedCounter.Inc()
}

// RecordExerciseRecorded counts a new exercise and observes its duration.
func RecordExerciseRecorded(durationMin float64) {
	exercisesRecordedCounter.Inc()
	exerciseDurationHistogram.Observe(durationMin)
}

// RecordLogQuery observes the size of a log query result.
func RecordLogQuery(results int) {
	if results == 0 {
		logQueryEmptyCounter.Inc()
		return
	}
	logQueryResultsHistogram.Observe(float64(results))
}

// RecordExercisePersisted updates the persistence watermark gauge.
func RecordExercisePersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	exercisePersistGauge.Set(float64(ts.Unix()))
}
