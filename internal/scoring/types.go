package scoring

import (
	"errors"
	"fmt"
	"math"

	"github.com/dogelayer/validator/internal/share"
)

// SumTolerance bounds how far a non-empty weight vector may sum from 1.0.
const SumTolerance = 1e-9

// DefaultResolution is the u16 maximum the chain stores weights in.
const DefaultResolution = 65535

// Policy holds the scoring and normalization parameters. Every validator on
// the subnet is expected to run with the same values.
type Policy struct {
	// Alpha weighs the newest epoch in the moving average, in (0, 1).
	Alpha float64
	// Epsilon zeroes normalized weights strictly below it, in [0, 1).
	Epsilon float64
	// Ceiling caps any single normalized weight, in (0, 1].
	Ceiling float64
	// Resolution is the integer total the quantized weights sum to.
	Resolution uint64
	// BurnIdentity takes the excess when the ceiling cannot be honoured and
	// the whole vector when there is no signal. Empty disables burning.
	BurnIdentity share.Identity

	// PruneThreshold and PruneIdleEpochs drop records that decayed below the
	// threshold after that many idle epochs. Zero PruneIdleEpochs disables it.
	PruneThreshold  float64
	PruneIdleEpochs uint64
}

var ErrInvalidPolicy = errors.New("invalid scoring policy")

func (p Policy) Validate() error {
	switch {
	case !(p.Alpha > 0 && p.Alpha < 1):
		return fmt.Errorf("%w: alpha %v must be in (0, 1)", ErrInvalidPolicy, p.Alpha)
	case !(p.Epsilon >= 0 && p.Epsilon < 1):
		return fmt.Errorf("%w: epsilon %v must be in [0, 1)", ErrInvalidPolicy, p.Epsilon)
	case !(p.Ceiling > 0 && p.Ceiling <= 1):
		return fmt.Errorf("%w: ceiling %v must be in (0, 1]", ErrInvalidPolicy, p.Ceiling)
	case p.Resolution == 0 || p.Resolution > math.MaxUint16:
		return fmt.Errorf("%w: resolution %d must be in [1, %d]", ErrInvalidPolicy, p.Resolution, math.MaxUint16)
	case p.PruneThreshold < 0 || math.IsNaN(p.PruneThreshold):
		return fmt.Errorf("%w: prune threshold %v must be >= 0", ErrInvalidPolicy, p.PruneThreshold)
	}
	return nil
}

// WeightEntry is one miner's share of the vector.
type WeightEntry struct {
	Identity  share.Identity `json:"hotkey"`
	Weight    float64        `json:"weight"`
	Quantized uint64         `json:"quantized"`
}

// WeightVector is the per-epoch weight assignment, ordered by identity.
type WeightVector struct {
	Epoch      uint64        `json:"epoch"`
	Resolution uint64        `json:"resolution"`
	Entries    []WeightEntry `json:"entries"`
}

// IsEmpty reports whether no miner carries weight.
func (v WeightVector) IsEmpty() bool {
	for _, e := range v.Entries {
		if e.Quantized > 0 {
			return false
		}
	}
	return true
}

func (v WeightVector) Sum() float64 {
	var total float64
	for _, e := range v.Entries {
		total += e.Weight
	}
	return total
}

func (v WeightVector) QuantizedSum() uint64 {
	var total uint64
	for _, e := range v.Entries {
		total += e.Quantized
	}
	return total
}

// Weight returns the float weight of id, or 0.
func (v WeightVector) Weight(id share.Identity) float64 {
	for _, e := range v.Entries {
		if e.Identity == id {
			return e.Weight
		}
	}
	return 0
}

// NonZero returns how many entries carry quantized weight.
func (v WeightVector) NonZero() int {
	n := 0
	for _, e := range v.Entries {
		if e.Quantized > 0 {
			n++
		}
	}
	return n
}

// BurnVector assigns the whole resolution to id.
func BurnVector(epoch uint64, id share.Identity, resolution uint64) WeightVector {
	return WeightVector{
		Epoch:      epoch,
		Resolution: resolution,
		Entries:    []WeightEntry{{Identity: id, Weight: 1, Quantized: resolution}},
	}
}
