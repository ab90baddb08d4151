package validator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dogelayer/validator/internal/chain"
	"github.com/dogelayer/validator/internal/config"
	"github.com/dogelayer/validator/internal/metrics"
	"github.com/dogelayer/validator/internal/scoring"
	"github.com/dogelayer/validator/internal/share"
	"github.com/dogelayer/validator/internal/state"
	"github.com/dogelayer/validator/internal/telemetry"
)

// Dependencies are the collaborators a Validator drives. Without a Fetcher
// no telemetry is collected; without a Reporter scores are not reported.
type Dependencies struct {
	Chain            chain.Client
	Store            state.Store
	Queue            SampleQueue
	Fetcher          telemetry.Fetcher
	CollectorOptions []telemetry.Option
	Reporter         ScoreReporter
	Hotkey           string
}

// Validator scores miners once per epoch and submits their weights.
type Validator struct {
	Chain     chain.Client
	Store     state.Store
	Queue     SampleQueue
	Collector *telemetry.Collector
	Reporter  ScoreReporter

	Engine    *scoring.Engine
	Submitter *chain.Submitter
	Watcher   *chain.TempoWatcher

	ValidatorHotkey string
	InstanceID      string

	IntervalConfig *config.IntervalConfig
	cfg            *config.AppConfig
	blocked        map[string]struct{}
	startedAt      time.Time

	Ctx    context.Context
	Cancel context.CancelFunc
	Wg     sync.WaitGroup

	// st is owned by the epoch handler; epochRunning keeps it single-writer.
	st           *state.ValidatorState
	epochRunning atomic.Bool
	snapshot     atomic.Pointer[Snapshot]
}

// PolicyFromConfig builds the scoring policy from the environment.
func PolicyFromConfig(cfg *config.AppConfig) scoring.Policy {
	return scoring.Policy{
		Alpha:           cfg.ScoreAlpha,
		Epsilon:         cfg.MinWeightEpsilon,
		Ceiling:         cfg.MaxWeightCeiling,
		Resolution:      cfg.WeightResolution,
		BurnIdentity:    share.Identity(cfg.BurnHotkey),
		PruneThreshold:  cfg.PruneThreshold,
		PruneIdleEpochs: cfg.PruneIdleEpochs,
	}
}

// NewValidator restores the persisted state and wires the scoring engine,
// tempo watcher and submitter around it.
func NewValidator(ctx context.Context, cfg *config.AppConfig, deps Dependencies) (*Validator, error) {
	if cfg == nil {
		return nil, errors.New("validator configuration cannot be nil")
	}
	if deps.Chain == nil || deps.Store == nil || deps.Queue == nil {
		return nil, errors.New("validator needs a chain client, a state store and a sample queue")
	}
	if deps.Hotkey == "" {
		return nil, errors.New("validator hotkey cannot be empty")
	}

	engine, err := scoring.NewEngine(PolicyFromConfig(cfg))
	if err != nil {
		return nil, err
	}

	st, err := state.Open(ctx, deps.Store, state.OpenOptions{
		AllowMissing: cfg.StateAllowMissing,
		Reset:        cfg.StateReset,
	})
	if err != nil {
		return nil, fmt.Errorf("restore validator state: %w", err)
	}

	submitter := chain.NewSubmitter(deps.Chain, deps.Store, chain.SubmitterConfig{
		Hotkey:   deps.Hotkey,
		MinStake: cfg.MinValidatorStake,
		Timeout:  cfg.SubmitTimeout,
		Retry:    cfg.SubmitRetryPolicy(),
	})

	runCtx, cancel := context.WithCancel(context.Background())
	v := &Validator{
		Chain:     deps.Chain,
		Store:     deps.Store,
		Queue:     deps.Queue,
		Reporter:  deps.Reporter,

		Engine:    engine,
		Submitter: submitter,
		Watcher:   chain.NewTempoWatcher(deps.Chain, uint64(cfg.Netuid), st.LastCommittedEpoch),

		ValidatorHotkey: deps.Hotkey,
		InstanceID:      uuid.NewString(),

		IntervalConfig: cfg.Intervals(),
		cfg:            cfg,
		blocked:        cfg.BlockedColdkeySet(),
		startedAt:      time.Now(),

		Ctx:    runCtx,
		Cancel: cancel,

		st: st,
	}

	if deps.Fetcher != nil {
		opts := []telemetry.Option{
			telemetry.WithRetryPolicy(cfg.TelemetryRetryPolicy()),
			telemetry.WithInitialLookback(cfg.InitialLookback),
			telemetry.WithMaxWindow(cfg.MaxWindow),
			telemetry.WithStrictIdentity(cfg.StrictIdentity),
		}
		if mark := st.Telemetry; mark.WindowEnd > 0 {
			opts = append(opts, telemetry.WithResumeFrom(time.UnixMilli(mark.WindowEnd), mark.LastSeen))
			log.Info().Time("window_end", time.UnixMilli(mark.WindowEnd)).Int("workers", len(mark.LastSeen)).Msg("telemetry resumes from saved watermark")
		}
		opts = append(opts, deps.CollectorOptions...)
		v.Collector = telemetry.NewCollector(deps.Fetcher, deps.Queue, v.CurrentEpoch, opts...)
	}

	metrics.UpdateLastScoredEpoch(st.LastScoredEpoch)
	metrics.UpdateLastCommittedEpoch(st.LastCommittedEpoch)
	metrics.UpdateScoredMiners(len(st.Scores))
	v.publish(0, 0, scoring.WeightVector{}, nil, "", nil)

	log.Info().
		Str("hotkey", deps.Hotkey).
		Str("instance_id", v.InstanceID).
		Int("netuid", cfg.Netuid).
		Msg("validator initialised")
	return v, nil
}

// runTicker runs a function periodically until the provided context is canceled.
// fn is executed in its own goroutine to ensure the ticker loop can exit quickly
// when the context is canceled; Stop still waits for it.
func (v *Validator) runTicker(ctx context.Context, d time.Duration, fn func()) {
	defer v.Wg.Done()
	t := time.NewTicker(d)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			v.Wg.Add(1)
			go func() {
				defer v.Wg.Done()
				fn()
			}()
		}
	}
}

// Start kicks off the tempo ticker and, when configured, the telemetry collector.
func (v *Validator) Start() {
	v.Submitter.Start()

	v.Wg.Add(1)
	go v.runTicker(v.Ctx, v.IntervalConfig.BlockInterval, func() {
		v.syncTempo()
	})

	if v.Collector != nil {
		v.Wg.Add(1)
		go func() {
			defer v.Wg.Done()
			v.Collector.Run(v.Ctx, v.IntervalConfig.TelemetryInterval)
		}()
	}

	log.Info().
		Dur("block_interval", v.IntervalConfig.BlockInterval).
		Dur("telemetry_interval", v.IntervalConfig.TelemetryInterval).
		Msg("validator started")
}

// Stop cancels background routines and waits for them to finish.
func (v *Validator) Stop() {
	if v.Cancel != nil {
		v.Cancel()
	}
	v.Wg.Wait()
}

// Snapshot returns the view published after the last epoch.
func (v *Validator) Snapshot() *Snapshot {
	return v.snapshot.Load()
}

// CurrentEpoch is the epoch of the last observed block. New samples are
// stamped with it.
func (v *Validator) CurrentEpoch() uint64 {
	return v.Watcher.CurrentEpoch()
}
