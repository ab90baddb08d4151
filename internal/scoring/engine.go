// Package scoring turns share samples into per-miner scores and scores into
// the weight vector submitted to the chain.
package scoring

import (
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/dogelayer/validator/internal/share"
	"github.com/dogelayer/validator/internal/state"
)

var ErrEpochAlreadyScored = errors.New("epoch already scored")

// EpochSummary describes what ApplyEpoch did to the state.
type EpochSummary struct {
	Epoch    uint64
	Accepted int
	Rejected int
	Active   int
	Idle     int
	Created  int
	Pruned   int
}

// Engine folds share samples into exponentially weighted scores.
type Engine struct {
	policy Policy
}

func NewEngine(p Policy) (*Engine, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Engine{policy: p}, nil
}

func (e *Engine) Policy() Policy {
	return e.policy
}

// Decay returns score after k idle epochs: score * (1-alpha)^k.
func Decay(score, alpha float64, k uint64) float64 {
	if k == 0 {
		return score
	}
	return score * math.Pow(1-alpha, float64(k))
}

// ApplyEpoch folds samples into st for epoch and advances LastScoredEpoch.
//
// A miner with accepted samples gets alpha*sum + (1-alpha)*old, where old was
// first decayed over any epochs it missed. A miner without samples decays by
// (1-alpha)^k for the k epochs since its last update. st is left untouched
// when epoch was already scored.
func (e *Engine) ApplyEpoch(st *state.ValidatorState, epoch uint64, samples []share.Sample) (EpochSummary, error) {
	summary := EpochSummary{Epoch: epoch}
	if epoch <= st.LastScoredEpoch {
		return summary, fmt.Errorf("%w: epoch %d, last scored %d", ErrEpochAlreadyScored, epoch, st.LastScoredEpoch)
	}
	if st.Scores == nil {
		st.Scores = make(map[share.Identity]*state.ScoreRecord)
	}

	sums := make(map[share.Identity]float64)
	counts := make(map[share.Identity]uint64)
	seen := make(map[share.Identity]struct{})
	for _, s := range samples {
		seen[s.Identity] = struct{}{}
		if !s.Accepted {
			summary.Rejected++
			continue
		}
		sums[s.Identity] += s.Difficulty
		counts[s.Identity]++
		summary.Accepted++
	}

	for id := range seen {
		if _, ok := st.Scores[id]; !ok {
			st.Scores[id] = &state.ScoreRecord{LastUpdatedEpoch: epoch}
			summary.Created++
		}
	}

	alpha := e.policy.Alpha
	for id, rec := range st.Scores {
		gap := uint64(0)
		if epoch > rec.LastUpdatedEpoch {
			gap = epoch - rec.LastUpdatedEpoch
		}

		if n := counts[id]; n > 0 {
			prior := rec.Score
			if gap > 1 {
				prior = Decay(prior, alpha, gap-1)
			}
			rec.Score = e.sanitize(id, epoch, alpha*sums[id]+(1-alpha)*prior)
			rec.AcceptedSamples += n
			rec.LastActiveEpoch = epoch
			summary.Active++
		} else {
			rec.Score = e.sanitize(id, epoch, Decay(rec.Score, alpha, gap))
			summary.Idle++
		}
		if epoch > rec.LastUpdatedEpoch {
			rec.LastUpdatedEpoch = epoch
		}
	}

	summary.Pruned = e.prune(st, epoch)
	st.LastScoredEpoch = epoch

	log.Debug().
		Uint64("epoch", epoch).
		Int("accepted", summary.Accepted).
		Int("rejected", summary.Rejected).
		Int("active", summary.Active).
		Int("idle", summary.Idle).
		Int("created", summary.Created).
		Int("pruned", summary.Pruned).
		Msg("epoch scored")
	return summary, nil
}

func (e *Engine) sanitize(id share.Identity, epoch uint64, score float64) float64 {
	if score < 0 || math.IsNaN(score) || math.IsInf(score, 0) {
		log.Error().Str("hotkey", id.String()).Uint64("epoch", epoch).Float64("score", score).Msg("computed score out of range, flooring to zero")
		return 0
	}
	return score
}

func (e *Engine) prune(st *state.ValidatorState, epoch uint64) int {
	if e.policy.PruneIdleEpochs == 0 {
		return 0
	}
	pruned := 0
	for id, rec := range st.Scores {
		if epoch-rec.LastActiveEpoch < e.policy.PruneIdleEpochs || rec.Score >= e.policy.PruneThreshold {
			continue
		}
		delete(st.Scores, id)
		pruned++
		log.Debug().Str("hotkey", id.String()).Uint64("last_active_epoch", rec.LastActiveEpoch).Msg("pruned idle miner")
	}
	return pruned
}
