package validator

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dogelayer/validator/internal/chain"
	"github.com/dogelayer/validator/internal/metrics"
	"github.com/dogelayer/validator/internal/scoring"
	"github.com/dogelayer/validator/internal/share"
	"github.com/dogelayer/validator/internal/state"
	"github.com/dogelayer/validator/internal/telemetry"
)

const reportTimeout = 15 * time.Second

// syncTempo observes the chain head and runs the epoch handler when a new
// epoch began. A tick that arrives while the handler runs is dropped.
func (v *Validator) syncTempo() {
	if !v.epochRunning.CompareAndSwap(false, true) {
		log.Debug().Msg("epoch handler still running, skipping block tick")
		return
	}
	defer v.epochRunning.Store(false)

	tick, err := v.Watcher.Observe(v.Ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to observe chain head")
		return
	}
	if !tick.Crossed {
		return
	}

	if _, err := v.HandleEpoch(v.Ctx, tick.Epoch, tick.Block); err != nil {
		log.Error().Err(err).Uint64("epoch", tick.Epoch).Msg("epoch handler failed")
	}
}

// HandleEpoch scores the samples queued since the last epoch, normalizes the
// scores into a weight vector and submits it. Scores are saved before the
// submission; the commit marker only after the chain accepted it. It must
// not run concurrently with itself.
func (v *Validator) HandleEpoch(ctx context.Context, epoch, block uint64) (chain.Outcome, error) {
	start := time.Now()
	logger := log.With().Uint64("epoch", epoch).Uint64("block", block).Logger()
	st := v.st

	if maxStale := v.cfg.StateMaxStaleEpochs; maxStale > 0 && st.LastScoredEpoch > 0 && epoch > st.LastScoredEpoch+maxStale {
		logger.Warn().
			Uint64("last_scored_epoch", st.LastScoredEpoch).
			Uint64("max_stale_epochs", maxStale).
			Msg("saved scores are stale, starting fresh")
		st.ResetScores()
	}

	if epoch > st.LastScoredEpoch {
		samples := v.Queue.Drain()
		summary, err := v.Engine.ApplyEpoch(st, epoch, samples)
		if err != nil {
			return v.finish(logger, start, epoch, block, scoring.WeightVector{Epoch: epoch}, nil, chain.OutcomeFailed, err)
		}
		st.Telemetry.Advance(samples, v.cfg.MaxWindow)
		logger.Info().
			Int("samples", len(samples)).
			Int("accepted", summary.Accepted).
			Int("rejected", summary.Rejected).
			Int("active", summary.Active).
			Int("idle", summary.Idle).
			Int("created", summary.Created).
			Int("pruned", summary.Pruned).
			Msg("epoch scored")

		if err := v.Store.Save(ctx, st); err != nil {
			metrics.RecordStateSaveError()
			logger.Error().Err(err).Str("store", v.Store.Describe()).Msg("failed to save scores, continuing with in-memory state")
		}
		metrics.UpdateLastScoredEpoch(epoch)
	} else {
		logger.Info().Uint64("last_scored_epoch", st.LastScoredEpoch).Msg("epoch already scored, only submission is retried")
	}
	metrics.UpdateScoredMiners(len(st.Scores))

	if epoch <= st.LastCommittedEpoch {
		outcome, err := v.Submitter.Submit(ctx, st, scoring.WeightVector{Epoch: epoch})
		return v.finish(logger, start, epoch, block, scoring.WeightVector{Epoch: epoch}, nil, outcome, err)
	}

	neurons, err := v.Chain.Neurons(ctx)
	if err != nil {
		err = fmt.Errorf("read registered neurons: %w", err)
		return v.finish(logger, start, epoch, block, scoring.WeightVector{Epoch: epoch}, nil, chain.OutcomeFailed, err)
	}

	policy := v.Engine.Policy()
	vec, err := scoring.Normalize(v.weightable(logger, neurons), epoch, policy)
	if err != nil {
		return v.finish(logger, start, epoch, block, scoring.WeightVector{Epoch: epoch}, neurons, chain.OutcomeFailed, err)
	}
	if vec.IsEmpty() && policy.BurnIdentity != "" {
		logger.Warn().Str("burn_hotkey", policy.BurnIdentity.String()).Msg("no miner carries weight, burning emission")
		vec = scoring.BurnVector(epoch, policy.BurnIdentity, policy.Resolution)
	}

	outcome, err := v.Submitter.Submit(ctx, st, vec)
	return v.finish(logger, start, epoch, block, vec, neurons, outcome, err)
}

// weightable returns the score records allowed into the weight vector:
// registered hotkeys whose coldkey is not blocked. Excluded miners keep
// their scores.
func (v *Validator) weightable(logger zerolog.Logger, neurons map[string]chain.Neuron) map[share.Identity]*state.ScoreRecord {
	out := make(map[share.Identity]*state.ScoreRecord, len(v.st.Scores))
	unregistered, blocked := 0, 0
	for id, rec := range v.st.Scores {
		n, ok := neurons[id.String()]
		if !ok {
			unregistered++
			continue
		}
		if _, bad := v.blocked[n.Coldkey]; bad {
			blocked++
			continue
		}
		out[id] = rec
	}
	if unregistered > 0 || blocked > 0 {
		logger.Info().Int("unregistered", unregistered).Int("blocked", blocked).Msg("miners excluded from weights")
	}
	return out
}

func (v *Validator) finish(
	logger zerolog.Logger,
	start time.Time,
	epoch, block uint64,
	vec scoring.WeightVector,
	neurons map[string]chain.Neuron,
	outcome chain.Outcome,
	err error,
) (chain.Outcome, error) {
	elapsed := time.Since(start)
	metrics.RecordEpoch(outcome.String(), elapsed.Seconds())
	metrics.UpdateWeightedMiners(vec.NonZero())
	metrics.UpdateLastCommittedEpoch(v.st.LastCommittedEpoch)

	v.publish(epoch, block, vec, neurons, outcome.String(), err)

	ev := logger.Info()
	if err != nil {
		ev = logger.Error().Err(err)
	}
	ev.Str("outcome", outcome.String()).
		Int("weighted", vec.NonZero()).
		Uint64("last_committed_epoch", v.st.LastCommittedEpoch).
		Dur("elapsed", elapsed).
		Msg("epoch handled")

	if outcome == chain.OutcomeCommitted && v.Reporter != nil && v.cfg.ReportScores {
		v.report(epoch, block, vec, neurons)
	}
	return outcome, err
}

// publish replaces the status snapshot. Called only by the epoch handler and
// the constructor.
func (v *Validator) publish(epoch, block uint64, vec scoring.WeightVector, neurons map[string]chain.Neuron, outcome string, err error) {
	phase, phaseErr := v.Submitter.Phase()
	snap := &Snapshot{
		InstanceID:         v.InstanceID,
		Hotkey:             v.ValidatorHotkey,
		Netuid:             v.cfg.Netuid,
		StartedAt:          v.startedAt,
		UpdatedAt:          time.Now(),
		Epoch:              epoch,
		Block:              block,
		LastScoredEpoch:    v.st.LastScoredEpoch,
		LastCommittedEpoch: v.st.LastCommittedEpoch,
		Phase:              phase.String(),
		Outcome:            outcome,
		QueueDepth:         v.Queue.Len(),
		Miners:             make([]MinerStatus, 0, len(v.st.Scores)),
	}
	switch {
	case err != nil:
		snap.LastError = err.Error()
	case phaseErr != nil:
		snap.LastError = phaseErr.Error()
	}

	entries := make(map[share.Identity]scoring.WeightEntry, len(vec.Entries))
	for _, e := range vec.Entries {
		entries[e.Identity] = e
	}
	for id, rec := range v.st.Scores {
		m := MinerStatus{
			Hotkey:           id.String(),
			Score:            rec.Score,
			Weight:           entries[id].Weight,
			Quantized:        entries[id].Quantized,
			AcceptedSamples:  rec.AcceptedSamples,
			LastActiveEpoch:  rec.LastActiveEpoch,
			LastUpdatedEpoch: rec.LastUpdatedEpoch,
		}
		if n, ok := neurons[id.String()]; ok {
			uid := n.UID
			m.UID = &uid
		}
		snap.Miners = append(snap.Miners, m)
	}
	slices.SortFunc(snap.Miners, func(a, b MinerStatus) int {
		return strings.Compare(a.Hotkey, b.Hotkey)
	})

	v.snapshot.Store(snap)
}

// report sends the committed epoch's scores to the subnet proxy in the
// background. Failures are only logged.
func (v *Validator) report(epoch, block uint64, vec scoring.WeightVector, neurons map[string]chain.Neuron) {
	now := time.Now().UTC().Format(time.RFC3339)
	rows := make([]telemetry.MinerScore, 0, len(v.st.Scores))
	for id, rec := range v.st.Scores {
		n, ok := neurons[id.String()]
		if !ok {
			continue
		}
		rows = append(rows, telemetry.MinerScore{
			ValidatorHotkey: v.ValidatorHotkey,
			MinerHotkey:     id.String(),
			MinerUID:        n.UID,
			Netuid:          v.cfg.Netuid,
			EvaluationBlock: block,
			Epoch:           epoch,
			Score:           rec.Score,
			Weight:          vec.Weight(id),
			EvaluationTime:  now,
		})
	}
	slices.SortFunc(rows, func(a, b telemetry.MinerScore) int {
		return strings.Compare(a.MinerHotkey, b.MinerHotkey)
	})

	v.Wg.Add(1)
	go func() {
		defer v.Wg.Done()
		ctx, cancel := context.WithTimeout(v.Ctx, reportTimeout)
		defer cancel()

		if err := v.Reporter.ReportScores(ctx, telemetry.ScoreReport{MinerScores: rows}); err != nil {
			metrics.RecordScoreReport("failure")
			log.Warn().Err(err).Uint64("epoch", epoch).Msg("failed to report miner scores")
			return
		}
		metrics.RecordScoreReport("success")
		log.Info().Uint64("epoch", epoch).Int("miners", len(rows)).Msg("miner scores reported")
	}()
}
