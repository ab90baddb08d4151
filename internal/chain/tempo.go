package chain

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/dogelayer/validator/internal/metrics"
)

// EpochAt returns the epoch index of block on a subnet. Subtensor runs a
// subnet's epoch when (block + netuid + 1) is a multiple of (tempo + 1), so
// the index advances exactly at those blocks.
func EpochAt(block, tempo, netuid uint64) uint64 {
	return (block + netuid + 1) / (tempo + 1)
}

// Tick is one observation of the chain head.
type Tick struct {
	Block   uint64
	Tempo   uint64
	Epoch   uint64
	Crossed bool
}

// TempoWatcher turns block height observations into epoch boundary events.
// Each epoch index fires at most once.
type TempoWatcher struct {
	client Client
	netuid uint64

	mu        sync.Mutex
	lastFired uint64
	current   atomic.Uint64
}

// NewTempoWatcher seeds the watcher with the last epoch already handled, so
// a restart inside a committed epoch does not fire it again.
func NewTempoWatcher(client Client, netuid, lastHandled uint64) *TempoWatcher {
	return &TempoWatcher{client: client, netuid: netuid, lastFired: lastHandled}
}

// Observe reads the chain head and reports whether a new epoch began since
// the last fired one.
func (w *TempoWatcher) Observe(ctx context.Context) (Tick, error) {
	block, err := w.client.LatestBlock(ctx)
	if err != nil {
		return Tick{}, fmt.Errorf("read block height: %w", err)
	}
	tempo, err := w.client.Tempo(ctx)
	if err != nil {
		return Tick{}, fmt.Errorf("read tempo: %w", err)
	}

	epoch := EpochAt(block, tempo, w.netuid)
	w.current.Store(epoch)
	metrics.UpdateCurrentBlock(block)

	tick := Tick{Block: block, Tempo: tempo, Epoch: epoch}

	w.mu.Lock()
	defer w.mu.Unlock()
	if epoch > w.lastFired {
		if w.lastFired > 0 && epoch > w.lastFired+1 {
			log.Warn().Uint64("last_epoch", w.lastFired).Uint64("epoch", epoch).Msg("skipped epochs since last boundary")
		}
		w.lastFired = epoch
		tick.Crossed = true
		log.Info().Uint64("block", block).Uint64("tempo", tempo).Uint64("epoch", epoch).Msg("tempo boundary crossed")
	}
	return tick, nil
}

// CurrentEpoch returns the epoch index of the last observed block.
func (w *TempoWatcher) CurrentEpoch() uint64 {
	return w.current.Load()
}

// LastFired returns the last epoch index an Observe call fired.
func (w *TempoWatcher) LastFired() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastFired
}
