package telemetry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dogelayer/validator/internal/metrics"
	"github.com/dogelayer/validator/internal/retry"
	"github.com/dogelayer/validator/internal/share"
)

const (
	defaultInitialLookback = time.Hour
	defaultMaxWindow       = 24 * time.Hour
)

// Fetcher returns the shares of one time window. *Client implements it.
type Fetcher interface {
	FetchShares(ctx context.Context, w Window) (Batch, error)
}

// Sink receives validated samples. *queue.InMemoryQueue implements it.
type Sink interface {
	EnqueueBatch(ctx context.Context, samples []share.Sample) int
}

// EpochSource returns the epoch new samples are stamped with.
type EpochSource func() uint64

// Collector polls a Fetcher on a fixed interval and pushes validated samples
// into a Sink. It never touches scores.
type Collector struct {
	fetcher Fetcher
	sink    Sink
	epoch   EpochSource

	retry     retry.Policy
	lookback  time.Duration
	maxWindow time.Duration
	strict    bool
	now       func() time.Time

	mu       sync.Mutex
	lastEnd  time.Time
	lastSeen map[string]int64

	running atomic.Bool
}

type Option func(*Collector)

func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Collector) { c.retry = p }
}

// WithInitialLookback sets how far back the first poll reaches.
func WithInitialLookback(d time.Duration) Option {
	return func(c *Collector) {
		if d > 0 {
			c.lookback = d
		}
	}
}

// WithMaxWindow caps the range of a single poll.
func WithMaxWindow(d time.Duration) Option {
	return func(c *Collector) {
		if d > 0 {
			c.maxWindow = d
		}
	}
}

// WithStrictIdentity rejects worker names whose hotkey is not an SS58 address.
func WithStrictIdentity(strict bool) Option {
	return func(c *Collector) { c.strict = strict }
}

// WithResumeFrom continues from a persisted watermark: the first poll starts
// at end, and shares at or before a worker's last seen timestamp (unix ms) are
// dropped as duplicates.
func WithResumeFrom(end time.Time, lastSeen map[string]int64) Option {
	return func(c *Collector) {
		c.lastEnd = end
		for worker, ts := range lastSeen {
			c.lastSeen[worker] = ts
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Collector) { c.now = now }
}

func NewCollector(fetcher Fetcher, sink Sink, epoch EpochSource, opts ...Option) *Collector {
	c := &Collector{
		fetcher:   fetcher,
		sink:      sink,
		epoch:     epoch,
		retry:     retry.Policy{MaxAttempts: 1},
		lookback:  defaultInitialLookback,
		maxWindow: defaultMaxWindow,
		now:       time.Now,
		lastSeen:  make(map[string]int64),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.epoch == nil {
		c.epoch = func() uint64 { return 0 }
	}
	if c.maxWindow < c.lookback {
		c.maxWindow = c.lookback
	}
	return c
}

// Run polls every interval until ctx is done.
func (c *Collector) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.Collect(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("telemetry collector stopped")
			return
		case <-ticker.C:
			c.Collect(ctx)
		}
	}
}

// Collect runs one poll and enqueues its samples. A call made while another
// is still running returns immediately.
func (c *Collector) Collect(ctx context.Context) int {
	if !c.running.CompareAndSwap(false, true) {
		log.Warn().Msg("previous telemetry poll still running, skipping tick")
		return 0
	}
	defer c.running.Store(false)

	samples, err := c.Poll(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("telemetry poll failed, window kept for next tick")
		return 0
	}
	if len(samples) == 0 {
		return 0
	}

	n := c.sink.EnqueueBatch(ctx, samples)
	if n < len(samples) {
		log.Error().Int("enqueued", n).Int("dropped", len(samples)-n).Msg("sample queue full, dropping samples")
	}
	return n
}

// Window returns the range the next poll will request.
func (c *Collector) Window() Window {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextWindow(c.now())
}

func (c *Collector) nextWindow(now time.Time) Window {
	start := c.lastEnd
	if start.IsZero() {
		start = now.Add(-c.lookback)
	}
	if now.Sub(start) > c.maxWindow {
		log.Warn().Time("last_end", c.lastEnd).Dur("max_window", c.maxWindow).Msg("telemetry gap exceeds max window, truncating")
		start = now.Add(-c.maxWindow)
	}
	return Window{Start: start, End: now}
}

// Poll fetches the next window and returns its valid samples. On failure the
// window is not advanced, so the next successful poll covers the gap.
func (c *Collector) Poll(ctx context.Context) ([]share.Sample, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	w := c.nextWindow(c.now())
	if !w.End.After(w.Start) {
		return nil, nil
	}
	logger := log.With().Time("start", w.Start).Time("end", w.End).Logger()

	var batch Batch
	err := retry.Do(ctx, c.retry, func(ctx context.Context, attempt int) error {
		b, err := c.fetcher.FetchShares(ctx, w)
		if err != nil {
			if !retryable(err) {
				return retry.Permanent(err)
			}
			logger.Debug().Err(err).Int("attempt", attempt).Msg("share fetch failed")
			return err
		}
		batch = b
		return nil
	})
	if err != nil {
		metrics.RecordTelemetryPoll("failure")
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.Unauthorized() {
			logger.Error().Int("status", statusErr.StatusCode).Msg("subnet proxy rejected credentials, check SUBNET_PROXY_API_TOKEN")
		}
		return nil, fmt.Errorf("fetch shares: %w", err)
	}

	epoch := c.epoch()
	samples := make([]share.Sample, 0, len(batch.Records))
	invalid := 0
	for _, rec := range batch.Records {
		s, err := c.validate(rec, epoch, w.End)
		if err != nil {
			invalid++
			logger.Debug().Err(err).Msg("dropping share record")
			continue
		}
		samples = append(samples, s)
	}

	c.lastEnd = w.End
	c.pruneSeen(w.Start)

	metrics.RecordTelemetryPoll("success")
	metrics.RecordSamples("accepted", len(samples))
	metrics.RecordSamples("invalid", invalid)
	metrics.RecordSamples("malformed", batch.Malformed)

	logger.Info().
		Uint64("epoch", epoch).
		Int("samples", len(samples)).
		Int("invalid", invalid).
		Int("malformed", batch.Malformed).
		Msg("telemetry poll complete")
	return samples, nil
}

// validate turns a record into a sample. Caller holds c.mu.
func (c *Collector) validate(rec ShareRecord, epoch uint64, polled time.Time) (share.Sample, error) {
	if rec.Worker == nil {
		return share.Sample{}, fmt.Errorf("%w: %w", ErrInvalidSample, share.ErrMissingIdentity)
	}
	worker := strings.TrimSpace(*rec.Worker)
	id, _, err := share.ParseWorker(worker)
	if err != nil {
		return share.Sample{}, fmt.Errorf("%w: %w", ErrInvalidSample, err)
	}
	if c.strict {
		if err := share.ValidateHotkey(id); err != nil {
			return share.Sample{}, fmt.Errorf("%w: %w", ErrInvalidSample, err)
		}
	}

	if rec.Difficulty == nil {
		return share.Sample{}, fmt.Errorf("%w: worker %s: missing difficulty", ErrInvalidSample, worker)
	}
	d := *rec.Difficulty
	if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
		return share.Sample{}, fmt.Errorf("%w: worker %s: difficulty %v", ErrInvalidSample, worker, d)
	}

	if rec.Timestamp == nil || *rec.Timestamp <= 0 {
		return share.Sample{}, fmt.Errorf("%w: worker %s: missing timestamp", ErrInvalidSample, worker)
	}
	ts := *rec.Timestamp
	if last, ok := c.lastSeen[worker]; ok && ts <= last {
		return share.Sample{}, fmt.Errorf("%w: worker %s: timestamp %d not after %d", ErrInvalidSample, worker, ts, last)
	}
	c.lastSeen[worker] = ts

	accepted := true
	if rec.Accepted != nil {
		accepted = *rec.Accepted
	}

	return share.Sample{
		Identity:   id,
		Worker:     worker,
		Difficulty: d,
		Accepted:   accepted,
		Timestamp:  time.UnixMilli(ts),
		Epoch:      epoch,
		Polled:     polled,
	}, nil
}

// pruneSeen forgets workers whose last share is older than one max window
// before start. No later poll can return shares that old.
func (c *Collector) pruneSeen(start time.Time) {
	cutoff := start.Add(-c.maxWindow).UnixMilli()
	for worker, ts := range c.lastSeen {
		if ts < cutoff {
			delete(c.lastSeen, worker)
		}
	}
}
