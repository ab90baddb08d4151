package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// OpenOptions controls how Open treats missing and corrupt snapshots.
type OpenOptions struct {
	// AllowMissing starts from an empty state when nothing was saved yet.
	AllowMissing bool
	// Reset moves a corrupt snapshot aside and starts from an empty state.
	Reset bool
}

// Open loads the validator state from store. A missing snapshot and a corrupt
// one are always reported differently.
func Open(ctx context.Context, store Store, opts OpenOptions) (*ValidatorState, error) {
	st, err := store.Load(ctx)
	switch {
	case err == nil:
		log.Info().
			Str("store", store.Describe()).
			Int("miners", len(st.Scores)).
			Uint64("last_scored_epoch", st.LastScoredEpoch).
			Uint64("last_committed_epoch", st.LastCommittedEpoch).
			Msg("validator state restored")
		return st, nil

	case errors.Is(err, ErrNotFound):
		if !opts.AllowMissing {
			return nil, fmt.Errorf("open %s: %w", store.Describe(), err)
		}
		log.Warn().Str("store", store.Describe()).Msg("no saved validator state, starting fresh")
		return NewValidatorState(), nil

	case errors.Is(err, ErrCorrupt):
		if !opts.Reset {
			return nil, fmt.Errorf("open %s: %w", store.Describe(), err)
		}
		moved, qErr := store.Quarantine(ctx)
		if qErr != nil {
			return nil, fmt.Errorf("quarantine corrupt state: %w", errors.Join(qErr, err))
		}
		log.Warn().Err(err).Str("store", store.Describe()).Str("moved_to", moved).Msg("corrupt validator state moved aside, starting fresh")
		return NewValidatorState(), nil

	default:
		return nil, fmt.Errorf("open %s: %w", store.Describe(), err)
	}
}
