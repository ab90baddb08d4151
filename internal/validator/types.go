// Package validator contains the validator runtime: the tempo and telemetry
// tickers and the per-epoch scoring and weight-setting handler.
package validator

import (
	"context"
	"time"

	"github.com/dogelayer/validator/internal/share"
	"github.com/dogelayer/validator/internal/telemetry"
)

// SampleQueue carries samples from the collector to the epoch handler.
// *queue.InMemoryQueue implements it.
type SampleQueue interface {
	EnqueueBatch(ctx context.Context, samples []share.Sample) int
	Drain() []share.Sample
	Len() int
}

// ScoreReporter sends per-miner scores back to the subnet proxy.
type ScoreReporter interface {
	ReportScores(ctx context.Context, report telemetry.ScoreReport) error
}

// MinerStatus is one miner in a Snapshot.
type MinerStatus struct {
	Hotkey           string  `json:"hotkey"`
	UID              *int    `json:"uid,omitempty"`
	Score            float64 `json:"score"`
	Weight           float64 `json:"weight"`
	Quantized        uint64  `json:"quantized"`
	AcceptedSamples  uint64  `json:"accepted_samples"`
	LastActiveEpoch  uint64  `json:"last_active_epoch"`
	LastUpdatedEpoch uint64  `json:"last_updated_epoch"`
}

// Snapshot is the read-only view published after every epoch. It is never
// modified after publication.
type Snapshot struct {
	InstanceID         string        `json:"instance_id"`
	Hotkey             string        `json:"hotkey"`
	Netuid             int           `json:"netuid"`
	StartedAt          time.Time     `json:"started_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
	Epoch              uint64        `json:"epoch"`
	Block              uint64        `json:"block"`
	LastScoredEpoch    uint64        `json:"last_scored_epoch"`
	LastCommittedEpoch uint64        `json:"last_committed_epoch"`
	Phase              string        `json:"phase"`
	Outcome            string        `json:"outcome,omitempty"`
	LastError          string        `json:"last_error,omitempty"`
	QueueDepth         int           `json:"queue_depth"`
	Miners             []MinerStatus `json:"miners"`
}
