// Package chain detects epoch boundaries and submits weight vectors to the
// chain.
package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/dogelayer/validator/internal/scoring"
)

var (
	ErrTransient  = errors.New("transient chain error")
	ErrIneligible = errors.New("validator not eligible to set weights")
	ErrRejected   = errors.New("weights rejected by chain")
)

// RejectedError is a submission the chain refused. It is not retried.
type RejectedError struct {
	Reason string
	Err    error
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("weights rejected by chain: %s", e.Reason)
}

func (e *RejectedError) Unwrap() error { return e.Err }

func (e *RejectedError) Is(target error) bool { return target == ErrRejected }

// Neuron is one registered uid on the subnet.
type Neuron struct {
	UID             int
	Hotkey          string
	Coldkey         string
	ValidatorPermit bool
	Stake           float64
	LastUpdate      uint64
}

// Eligibility describes whether a hotkey may set weights right now.
type Eligibility struct {
	Registered        bool
	ValidatorPermit   bool
	Stake             float64
	Block             uint64
	LastUpdate        uint64
	WeightsRateLimit  uint64
	CommitRevealOnly  bool
	BlocksSinceUpdate uint64
}

// Check returns nil when the hotkey may submit, or an ErrIneligible wrapped
// with the first failing condition.
func (e Eligibility) Check(minStake float64) error {
	switch {
	case !e.Registered:
		return fmt.Errorf("%w: hotkey not registered", ErrIneligible)
	case !e.ValidatorPermit:
		return fmt.Errorf("%w: no validator permit", ErrIneligible)
	case e.Stake < minStake:
		return fmt.Errorf("%w: stake %.4f below minimum %.4f", ErrIneligible, e.Stake, minStake)
	case e.BlocksSinceUpdate < e.WeightsRateLimit:
		return fmt.Errorf("%w: %d blocks since last update, rate limit %d", ErrIneligible, e.BlocksSinceUpdate, e.WeightsRateLimit)
	case e.CommitRevealOnly:
		return fmt.Errorf("%w: subnet requires commit-reveal weights", ErrIneligible)
	}
	return nil
}

// Client is the chain surface the validator needs.
type Client interface {
	LatestBlock(ctx context.Context) (uint64, error)
	Tempo(ctx context.Context) (uint64, error)
	Neurons(ctx context.Context) (map[string]Neuron, error)
	Eligibility(ctx context.Context, hotkey string) (Eligibility, error)
	// SetWeights submits vec and returns the extrinsic hash.
	SetWeights(ctx context.Context, vec scoring.WeightVector) (string, error)
}
