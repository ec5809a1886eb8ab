package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	autotag = "autotag"

	jobsClaimedTotal      = "jobs_claimed_total"
	jobsRaceSkippedTotal  = "jobs_race_skipped_total"
	jobsFinishedTotal     = "jobs_finished_total"
	jobDurationSeconds    = "job_duration_seconds"
	malformedTagsTotal    = "malformed_candidates_total"
	reviewItemsTotal      = "review_items_total"
	applyFailuresTotal    = "apply_failures_total"
	appliedTagsTotal      = "applied_tags_total"
	dispatchInFlightGauge = "dispatch_in_flight"

	statusLabel = "status"
	stageLabel  = "stage"
)

/**
* Metrics definition
**/
var jobsClaimedMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: autotag,
		Name:      jobsClaimedTotal,
		Help:      "number of tagging jobs claimed by the dispatcher",
	},
)

var jobsRaceSkippedMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: autotag,
		Name:      jobsRaceSkippedTotal,
		Help:      "number of pending jobs lost to a concurrent claim",
	},
)

var jobsFinishedMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: autotag,
		Name:      jobsFinishedTotal,
		Help:      "number of tagging jobs reaching a terminal status",
	},
	[]string{statusLabel},
)

var jobDurationMetric = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Subsystem: autotag,
		Name:      jobDurationSeconds,
		Help:      "time from claim to terminal status",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300},
	},
	[]string{statusLabel},
)

var malformedTagsMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: autotag,
		Name:      malformedTagsTotal,
		Help:      "scored tags dropped from review creation for a missing leaf id or path",
	},
)

var reviewItemsMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: autotag,
		Name:      reviewItemsTotal,
		Help:      "number of review items written",
	},
	[]string{statusLabel},
)

var applyFailuresMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: autotag,
		Name:      applyFailuresTotal,
		Help:      "failures after a job completed, partitioned by stage",
	},
	[]string{stageLabel},
)

var appliedTagsMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: autotag,
		Name:      appliedTagsTotal,
		Help:      "number of tags sent to the external tagging api",
	},
)

var dispatchInFlightMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Subsystem: autotag,
		Name:      dispatchInFlightGauge,
		Help:      "jobs currently being processed by this dispatcher",
	},
)

func IncreaseJobsClaimed(n int) {
	jobsClaimedMetric.Add(float64(n))
}

func IncreaseJobsRaceSkipped(n int) {
	jobsRaceSkippedMetric.Add(float64(n))
}

func ObserveJobFinished(status string, seconds float64) {
	labels := prometheus.Labels{statusLabel: status}
	jobsFinishedMetric.With(labels).Inc()
	if seconds > 0 {
		jobDurationMetric.With(labels).Observe(seconds)
	}
}

func IncreaseMalformedCandidates(n int) {
	malformedTagsMetric.Add(float64(n))
}

func IncreaseReviewItems(status string, n int) {
	reviewItemsMetric.With(prometheus.Labels{statusLabel: status}).Add(float64(n))
}

func IncreaseApplyFailures(stage string) {
	applyFailuresMetric.With(prometheus.Labels{stageLabel: stage}).Inc()
}

func IncreaseAppliedTags(n int) {
	appliedTagsMetric.Add(float64(n))
}

func IncDispatchInFlight() {
	dispatchInFlightMetric.Inc()
}

func DecDispatchInFlight() {
	dispatchInFlightMetric.Dec()
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(jobsClaimedMetric)
	prometheus.MustRegister(jobsRaceSkippedMetric)
	prometheus.MustRegister(jobsFinishedMetric)
	prometheus.MustRegister(jobDurationMetric)
	prometheus.MustRegister(malformedTagsMetric)
	prometheus.MustRegister(reviewItemsMetric)
	prometheus.MustRegister(applyFailuresMetric)
	prometheus.MustRegister(appliedTagsMetric)
	prometheus.MustRegister(dispatchInFlightMetric)
}
