package scoring

import (
	"cmp"
	"math"
	"slices"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/floats"

	"github.com/dogelayer/validator/internal/share"
	"github.com/dogelayer/validator/internal/state"
)

const clampTolerance = 1e-12

func L1Normalize(arr []float64) []float64 {
	result := make([]float64, len(arr))
	copy(result, arr)

	sum := floats.Sum(result)
	if sum > 0 {
		floats.Scale(1.0/sum, result)
	}

	return result
}

// Normalize maps scores to a weight vector for epoch. It does not modify
// scores.
//
// Only miners with at least one accepted sample and a positive score take
// part. Weights below p.Epsilon become exactly zero, weights above p.Ceiling
// are clamped with the excess spread over the rest in proportion to their
// weight, and the result is quantized so the integer weights sum to
// p.Resolution. An empty vector is returned when no miner has signal.
func Normalize(scores map[share.Identity]*state.ScoreRecord, epoch uint64, p Policy) (WeightVector, error) {
	vec := WeightVector{Epoch: epoch, Resolution: p.Resolution}
	if err := p.Validate(); err != nil {
		return vec, err
	}

	ids := make([]share.Identity, 0, len(scores))
	for id, rec := range scores {
		if rec == nil || rec.AcceptedSamples == 0 {
			continue
		}
		if !(rec.Score > 0) || math.IsInf(rec.Score, 0) {
			continue
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return vec, nil
	}
	slices.Sort(ids)

	raw := make([]float64, len(ids))
	for i, id := range ids {
		raw[i] = scores[id].Score
	}
	weights := L1Normalize(raw)

	for i, w := range weights {
		if w < p.Epsilon {
			weights[i] = 0
		}
	}
	if floats.Sum(weights) == 0 {
		log.Warn().Uint64("epoch", epoch).Float64("epsilon", p.Epsilon).Int("candidates", len(ids)).Msg("every weight fell below epsilon")
		return vec, nil
	}
	weights = L1Normalize(weights)

	excess := clampCeiling(weights, p.Ceiling)
	burn := 0.0
	if excess > 0 {
		if p.BurnIdentity != "" {
			burn = excess
			log.Warn().Uint64("epoch", epoch).Float64("ceiling", p.Ceiling).Float64("burned", excess).Msg("ceiling infeasible, routing excess to burn hotkey")
		} else {
			equalize(weights)
			log.Error().
				Uint64("epoch", epoch).
				Float64("ceiling", p.Ceiling).
				Float64("equalized_weight", 1/float64(survivors(weights))).
				Msg("ceiling infeasible and no burn hotkey set, equalized weights exceed the ceiling")
		}
	}

	if burn > 0 {
		if i, found := slices.BinarySearch(ids, p.BurnIdentity); found {
			weights[i] += burn
		} else {
			ids = slices.Insert(ids, i, p.BurnIdentity)
			weights = slices.Insert(weights, i, burn)
		}
	}

	quantized := quantize(weights, p.Resolution)
	vec.Entries = make([]WeightEntry, len(ids))
	for i, id := range ids {
		vec.Entries[i] = WeightEntry{Identity: id, Weight: weights[i], Quantized: quantized[i]}
	}
	return vec, nil
}

// clampCeiling caps weights at ceiling in place and hands the excess to the
// unclamped nonzero weights in proportion to their size, repeating until no
// weight exceeds the ceiling. It returns the excess nobody could absorb.
func clampCeiling(weights []float64, ceiling float64) float64 {
	clamped := make([]bool, len(weights))
	for range len(weights) + 1 {
		excess := 0.0
		for i, w := range weights {
			if !clamped[i] && w > ceiling+clampTolerance {
				excess += w - ceiling
				weights[i] = ceiling
				clamped[i] = true
			}
		}
		if excess == 0 {
			return 0
		}

		free := 0.0
		for i, w := range weights {
			if !clamped[i] {
				free += w
			}
		}
		if free <= 0 {
			return excess
		}
		for i, w := range weights {
			if !clamped[i] {
				weights[i] = w + excess*w/free
			}
		}
	}
	return 0
}

func survivors(weights []float64) int {
	n := 0
	for _, w := range weights {
		if w > 0 {
			n++
		}
	}
	return n
}

func equalize(weights []float64) {
	n := survivors(weights)
	for i, w := range weights {
		if w > 0 {
			weights[i] = 1 / float64(n)
		}
	}
}

// quantize maps weights to integer units summing to resolution. Each weight
// gets the floor of its ideal share and the units left over go one each to
// the largest fractional parts, lowest index first on ties, so no entry ends
// more than one unit away from its ideal share.
func quantize(weights []float64, resolution uint64) []uint64 {
	out := make([]uint64, len(weights))
	frac := make([]float64, len(weights))
	order := make([]int, 0, len(weights))
	var total uint64
	for i, w := range weights {
		if !(w > 0) {
			continue
		}
		ideal := math.Min(w, 1) * float64(resolution)
		units := math.Floor(ideal)
		out[i] = uint64(units)
		frac[i] = ideal - units
		total += out[i]
		order = append(order, i)
	}
	if len(order) == 0 {
		return out
	}

	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(frac[b], frac[a])
	})
	for total < resolution {
		for _, i := range order {
			if total == resolution {
				break
			}
			out[i]++
			total++
		}
	}

	// Float error can push the floors past resolution; take the surplus back
	// from the largest entries.
	for total > resolution {
		largest := -1
		for i, q := range out {
			if q > 0 && (largest < 0 || q > out[largest]) {
				largest = i
			}
		}
		out[largest]--
		total--
	}
	return out
}
