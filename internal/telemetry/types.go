// Package telemetry polls the subnet proxy for accepted shares and turns them
// into validated share samples.
package telemetry

import (
	"encoding/json"
	"time"
)

// Window is the [Start, End] time range of one poll.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// ShareRecord is one share as reported by the proxy. Fields are pointers so
// a missing field can be told apart from a zero value.
type ShareRecord struct {
	Worker     *string  `json:"worker"`
	Difficulty *float64 `json:"difficulty"`
	Accepted   *bool    `json:"accepted,omitempty"`
	// Timestamp is in unix milliseconds.
	Timestamp *int64 `json:"timestamp"`
}

// Batch is the decoded result of one fetch. Malformed counts records that
// could not be decoded and were skipped.
type Batch struct {
	Coin      string
	Window    Window
	Records   []ShareRecord
	Malformed int
}

type sharesResponse struct {
	Coin      string            `json:"coin"`
	StartTime int64             `json:"start_time"`
	EndTime   int64             `json:"end_time"`
	Shares    []json.RawMessage `json:"shares"`
}

// MinerScore is one row of the score report sent back to the proxy.
type MinerScore struct {
	ValidatorHotkey string  `json:"validator_hotkey"`
	MinerHotkey     string  `json:"miner_hotkey"`
	MinerUID        int     `json:"miner_uid"`
	Netuid          int     `json:"netuid"`
	EvaluationBlock uint64  `json:"evaluation_block"`
	Epoch           uint64  `json:"epoch"`
	Score           float64 `json:"score"`
	Weight          float64 `json:"weight"`
	EvaluationTime  string  `json:"evaluation_time"`
}

type ScoreReport struct {
	MinerScores []MinerScore `json:"miner_scores"`
}
