// Package state persists the validator's score records and epoch markers.
package state

import (
	"context"
	"maps"
	"time"

	"github.com/dogelayer/validator/internal/share"
)

// SchemaVersion is the version written into every persisted snapshot.
const SchemaVersion = 1

// ScoreRecord is the accumulated score of one miner.
type ScoreRecord struct {
	Score            float64 `json:"score"`
	LastUpdatedEpoch uint64  `json:"last_updated_epoch"`
	LastActiveEpoch  uint64  `json:"last_active_epoch"`
	AcceptedSamples  uint64  `json:"accepted_samples"`
}

// TelemetryMark records how far share telemetry has been folded into the
// scores. A restarted collector resumes from it instead of fetching the same
// shares again.
type TelemetryMark struct {
	// WindowEnd is the end of the latest poll window whose samples were
	// scored, in unix milliseconds.
	WindowEnd int64 `json:"window_end"`
	// LastSeen is the newest scored share timestamp per worker, in unix
	// milliseconds.
	LastSeen map[string]int64 `json:"last_seen,omitempty"`
}

// Advance moves the mark past samples. Workers whose newest share is older
// than retain before the window end are forgotten; zero retain keeps all.
func (m *TelemetryMark) Advance(samples []share.Sample, retain time.Duration) {
	for _, s := range samples {
		if !s.Polled.IsZero() && s.Polled.UnixMilli() > m.WindowEnd {
			m.WindowEnd = s.Polled.UnixMilli()
		}
		if m.LastSeen == nil {
			m.LastSeen = make(map[string]int64)
		}
		if ts := s.Timestamp.UnixMilli(); ts > m.LastSeen[s.Worker] {
			m.LastSeen[s.Worker] = ts
		}
	}
	if retain <= 0 || m.WindowEnd == 0 {
		return
	}
	cutoff := m.WindowEnd - retain.Milliseconds()
	for worker, ts := range m.LastSeen {
		if ts < cutoff {
			delete(m.LastSeen, worker)
		}
	}
}

// ValidatorState is the durable state of the control loop. The epoch handler
// is its only writer.
type ValidatorState struct {
	Version            int                             `json:"version"`
	Scores             map[share.Identity]*ScoreRecord `json:"scores"`
	LastScoredEpoch    uint64                          `json:"last_scored_epoch"`
	LastCommittedEpoch uint64                          `json:"last_committed_epoch"`
	Telemetry          TelemetryMark                   `json:"telemetry"`
	SavedAt            int64                           `json:"saved_at"`
}

// NewValidatorState returns an empty state at the current schema version.
func NewValidatorState() *ValidatorState {
	return &ValidatorState{
		Version: SchemaVersion,
		Scores:  make(map[share.Identity]*ScoreRecord),
	}
}

// Clone returns a deep copy of s.
func (s *ValidatorState) Clone() *ValidatorState {
	out := &ValidatorState{
		Version:            s.Version,
		Scores:             make(map[share.Identity]*ScoreRecord, len(s.Scores)),
		LastScoredEpoch:    s.LastScoredEpoch,
		LastCommittedEpoch: s.LastCommittedEpoch,
		SavedAt:            s.SavedAt,
		Telemetry:          TelemetryMark{WindowEnd: s.Telemetry.WindowEnd},
	}
	if s.Telemetry.LastSeen != nil {
		out.Telemetry.LastSeen = maps.Clone(s.Telemetry.LastSeen)
	}
	for id, rec := range s.Scores {
		if rec == nil {
			continue
		}
		r := *rec
		out.Scores[id] = &r
	}
	return out
}

// ResetScores drops every score record and the scored-epoch marker. The
// commit marker is kept so an already committed epoch is never resubmitted.
func (s *ValidatorState) ResetScores() {
	s.Scores = make(map[share.Identity]*ScoreRecord)
	s.LastScoredEpoch = 0
}

// Store loads and saves ValidatorState snapshots.
type Store interface {
	// Load returns ErrNotFound when nothing was saved yet and an error
	// matching ErrCorrupt when the snapshot cannot be decoded.
	Load(ctx context.Context) (*ValidatorState, error)
	// Save replaces the snapshot atomically.
	Save(ctx context.Context, st *ValidatorState) error
	// Quarantine moves the current snapshot aside so a fresh one can be saved.
	Quarantine(ctx context.Context) (string, error)
	// Describe names the backend location for logs.
	Describe() string
}

func stamp(st *ValidatorState) {
	st.Version = SchemaVersion
	st.SavedAt = time.Now().Unix()
}
