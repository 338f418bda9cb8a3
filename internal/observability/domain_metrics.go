package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	chainRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbtalk_chain_runs_total",
			Help: "Total number of question runs by outcome.",
		},
		[]string{"outcome"},
	)
	chainStageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dbtalk_chain_stage_duration_seconds",
			Help:    "Duration of each pipeline stage.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)
	generationRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbtalk_generation_requests_total",
			Help: "Total number of generation calls by model and outcome.",
		},
		[]string{"model", "outcome"},
	)
	queryDegradedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dbtalk_query_degraded_total",
			Help: "Total number of query executions replaced by the degraded result.",
		},
	)
	historyRecordFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dbtalk_history_record_failures_total",
			Help: "Total number of runs that could not be written to run history.",
		},
	)
	historyArchivedRecordsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dbtalk_history_archived_records_total",
			Help: "Total number of run history records exported to the archive.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		chainRunsTotal,
		chainStageDurationSeconds,
		generationRequestsTotal,
		queryDegradedTotal,
		historyRecordFailuresTotal,
		historyArchivedRecordsTotal,
	)
}

func ObserveRun(outcome string) {
	chainRunsTotal.WithLabelValues(outcome).Inc()
}

func ObserveStage(stage string, elapsed time.Duration) {
	chainStageDurationSeconds.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func ObserveGeneration(model string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	generationRequestsTotal.WithLabelValues(model, outcome).Inc()
}

func IncrementDegradedQuery() {
	queryDegradedTotal.Inc()
}

func IncrementHistoryRecordFailure() {
	historyRecordFailuresTotal.Inc()
}

func AddArchivedRecords(count int) {
	if count > 0 {
		historyArchivedRecordsTotal.Add(float64(count))
	}
}
