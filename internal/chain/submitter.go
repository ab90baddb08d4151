package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dogelayer/validator/internal/retry"
	"github.com/dogelayer/validator/internal/scoring"
	"github.com/dogelayer/validator/internal/state"
)

// Phase is the submitter's position in its per-epoch state machine.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseWaitingForEpoch
	PhaseCheckingEligibility
	PhaseSubmitting
	PhaseCommitted
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseWaitingForEpoch:
		return "waiting_for_epoch"
	case PhaseCheckingEligibility:
		return "checking_eligibility"
	case PhaseSubmitting:
		return "submitting"
	case PhaseCommitted:
		return "committed"
	case PhaseFailed:
		return "failed"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Outcome is the result of one Submit call.
type Outcome int

const (
	OutcomeFailed Outcome = iota
	OutcomeCommitted
	OutcomeSkipped
	OutcomeNoSignal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCommitted:
		return "committed"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeNoSignal:
		return "no_signal"
	}
	return "failed"
}

// Saver persists the validator state. state.Store satisfies it.
type Saver interface {
	Save(ctx context.Context, st *state.ValidatorState) error
}

const defaultSubmitTimeout = 2 * time.Minute

type SubmitterConfig struct {
	Hotkey   string
	MinStake float64
	Timeout  time.Duration
	Retry    retry.Policy
}

// Submitter pushes one weight vector per epoch to the chain and records the
// commit marker once the chain accepted it.
type Submitter struct {
	client Client
	saver  Saver
	cfg    SubmitterConfig

	mu      sync.Mutex
	phase   Phase
	lastErr error
}

func NewSubmitter(client Client, saver Saver, cfg SubmitterConfig) *Submitter {
	return &Submitter{client: client, saver: saver, cfg: cfg, phase: PhaseIdle}
}

// Start moves an idle submitter to waiting for the first epoch.
func (s *Submitter) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseIdle {
		s.phase = PhaseWaitingForEpoch
	}
}

// Phase returns the current phase and the error of the last failed attempt.
func (s *Submitter) Phase() (Phase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase, s.lastErr
}

func (s *Submitter) transition(p Phase, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = p
	s.lastErr = err
}

// Submit sends vec for its epoch unless that epoch is already committed in st.
// On success st.LastCommittedEpoch is advanced and st is saved. Every failure
// leaves the commit marker untouched so a later epoch retries.
func (s *Submitter) Submit(ctx context.Context, st *state.ValidatorState, vec scoring.WeightVector) (Outcome, error) {
	logger := log.With().Uint64("epoch", vec.Epoch).Logger()

	if vec.Epoch <= st.LastCommittedEpoch {
		logger.Info().Uint64("last_committed_epoch", st.LastCommittedEpoch).Msg("epoch already committed, skipping submission")
		s.transition(PhaseWaitingForEpoch, nil)
		return OutcomeSkipped, nil
	}
	if vec.IsEmpty() {
		logger.Warn().Msg("no miner carries weight, nothing to submit")
		s.transition(PhaseWaitingForEpoch, nil)
		return OutcomeNoSignal, nil
	}

	timeout := s.cfg.Timeout
	if timeout <= 0 {
		timeout = defaultSubmitTimeout
	}
	subCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.transition(PhaseCheckingEligibility, nil)
	var elig Eligibility
	err := retry.Do(subCtx, s.cfg.Retry, func(ctx context.Context, attempt int) error {
		e, err := s.client.Eligibility(ctx, s.cfg.Hotkey)
		if err != nil {
			if errors.Is(err, ErrRejected) {
				return retry.Permanent(err)
			}
			return err
		}
		elig = e
		return nil
	})
	if err != nil {
		return s.fail(logger, fmt.Errorf("read eligibility: %w", err))
	}
	if err := elig.Check(s.cfg.MinStake); err != nil {
		return s.fail(logger, err)
	}

	s.transition(PhaseSubmitting, nil)
	submissionID := uuid.NewString()
	var txHash string
	err = retry.Do(subCtx, s.cfg.Retry, func(ctx context.Context, attempt int) error {
		logger.Info().Str("submission_id", submissionID).Int("attempt", attempt).Int("miners", vec.NonZero()).Msg("submitting weights")
		hash, err := s.client.SetWeights(ctx, vec)
		if err != nil {
			if errors.Is(err, ErrRejected) {
				return retry.Permanent(err)
			}
			logger.Warn().Err(err).Str("submission_id", submissionID).Int("attempt", attempt).Msg("set weights attempt failed")
			return err
		}
		txHash = hash
		return nil
	})
	if err != nil {
		return s.fail(logger, err)
	}

	st.LastCommittedEpoch = vec.Epoch
	s.transition(PhaseCommitted, nil)
	logger.Info().Str("submission_id", submissionID).Str("extrinsic", txHash).Msg("weights committed")

	if err := s.saver.Save(ctx, st); err != nil {
		return OutcomeCommitted, fmt.Errorf("persist commit marker for epoch %d: %w", vec.Epoch, err)
	}
	return OutcomeCommitted, nil
}

func (s *Submitter) fail(logger zerolog.Logger, err error) (Outcome, error) {
	s.transition(PhaseFailed, err)
	switch {
	case errors.Is(err, ErrIneligible):
		logger.Warn().Err(err).Msg("not eligible to set weights, deferring to next epoch")
	case errors.Is(err, ErrRejected):
		logger.Error().Err(err).Msg("chain rejected weights")
	default:
		logger.Error().Err(err).Msg("set weights failed, will retry next epoch")
	}
	return OutcomeFailed, err
}
