// Package metrics provides Prometheus metrics for the validator control loop.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "dogelayer"
	subsystem = "validator"
)

// Manager owns the validator collectors.
type Manager struct {
	telemetryPolls   *prometheus.CounterVec
	samples          *prometheus.CounterVec
	queueDepth       prometheus.Gauge
	queueCapacity    prometheus.Gauge
	queueDropped     prometheus.Counter
	epochs           *prometheus.CounterVec
	epochDuration    prometheus.Histogram
	scoredMiners     prometheus.Gauge
	weightedMiners   prometheus.Gauge
	submitAttempts   prometheus.Counter
	lastScoredEpoch  prometheus.Gauge
	lastCommitEpoch  prometheus.Gauge
	currentBlock     prometheus.Gauge
	stateSaveErrors  prometheus.Counter
	scoreReportTotal *prometheus.CounterVec
}

var customRegistry = prometheus.NewRegistry()

var globalManager = NewManager(customRegistry)

// NewManager registers the validator collectors on reg.
func NewManager(reg prometheus.Registerer) *Manager {
	auto := promauto.With(reg)
	return &Manager{
		telemetryPolls: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "telemetry_polls_total",
			Help:      "Telemetry polls by result",
		}, []string{"result"}),
		samples: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "share_samples_total",
			Help:      "Share records seen by the collector by result",
		}, []string{"result"}),
		queueDepth: auto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "queue_depth",
			Help:      "Samples waiting for the next epoch",
		}),
		queueCapacity: auto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "queue_capacity",
			Help:      "Capacity of the inbound sample queue",
		}),
		queueDropped: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "queue_dropped_total",
			Help:      "Samples dropped because the queue was full or closed",
		}),
		epochs: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "epochs_total",
			Help:      "Epoch handler runs by outcome",
		}, []string{"outcome"}),
		epochDuration: auto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "epoch_duration_seconds",
			Help:      "Time spent in the epoch handler",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}),
		scoredMiners: auto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "scored_miners",
			Help:      "Miners with a score record",
		}),
		weightedMiners: auto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "weighted_miners",
			Help:      "Miners with nonzero weight in the last vector",
		}),
		submitAttempts: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "set_weights_attempts_total",
			Help:      "Set-weights calls sent to the chain",
		}),
		lastScoredEpoch: auto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "last_scored_epoch",
			Help:      "Last epoch folded into scores",
		}),
		lastCommitEpoch: auto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "last_committed_epoch",
			Help:      "Last epoch whose weights were accepted by the chain",
		}),
		currentBlock: auto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "current_block",
			Help:      "Latest observed block height",
		}),
		stateSaveErrors: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "state_save_errors_total",
			Help:      "Failed validator state saves",
		}),
		scoreReportTotal: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "score_reports_total",
			Help:      "Miner score reports sent to the subnet proxy by result",
		}, []string{"result"}),
	}
}

// RecordTelemetryPoll counts a poll with result "ok" or "error".
func RecordTelemetryPoll(result string) {
	globalManager.telemetryPolls.WithLabelValues(result).Inc()
}

// RecordSamples counts n share records with the given result.
func RecordSamples(result string, n int) {
	if n <= 0 {
		return
	}
	globalManager.samples.WithLabelValues(result).Add(float64(n))
}

func UpdateQueueDepth(depth int) {
	globalManager.queueDepth.Set(float64(depth))
}

func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

func RecordQueueDropped(n int) {
	if n <= 0 {
		return
	}
	globalManager.queueDropped.Add(float64(n))
}

// RecordEpoch counts an epoch handler run and its duration.
func RecordEpoch(outcome string, seconds float64) {
	globalManager.epochs.WithLabelValues(outcome).Inc()
	globalManager.epochDuration.Observe(seconds)
}

func UpdateScoredMiners(n int) {
	globalManager.scoredMiners.Set(float64(n))
}

func UpdateWeightedMiners(n int) {
	globalManager.weightedMiners.Set(float64(n))
}

func RecordSubmitAttempt() {
	globalManager.submitAttempts.Inc()
}

func UpdateLastScoredEpoch(epoch uint64) {
	globalManager.lastScoredEpoch.Set(float64(epoch))
}

func UpdateLastCommittedEpoch(epoch uint64) {
	globalManager.lastCommitEpoch.Set(float64(epoch))
}

func UpdateCurrentBlock(block uint64) {
	globalManager.currentBlock.Set(float64(block))
}

func RecordStateSaveError() {
	globalManager.stateSaveErrors.Inc()
}

func RecordScoreReport(result string) {
	globalManager.scoreReportTotal.WithLabelValues(result).Inc()
}

// GetRegistry returns the registry the validator collectors live on.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
