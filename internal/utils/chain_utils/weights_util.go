package chainutils

import (
	"fmt"
	"math"
	"sort"
)

const (
	U16MAX = 65535
)

// ConvertQuantizedForEmit checks already quantized weights and returns the
// uid and weight columns of a set-weights call, sorted by uid, with zero
// weights left out. Duplicate uids are summed.
func ConvertQuantizedForEmit(uids []int, weights []uint64) ([]int, []int, error) {
	if len(uids) != len(weights) {
		return nil, nil, fmt.Errorf("uids and weights must have the same length, got %d and %d", len(uids), len(weights))
	}

	merged := make(map[int]uint64, len(uids))
	for i, w := range weights {
		if uids[i] < 0 || uids[i] > U16MAX {
			return nil, nil, fmt.Errorf("uid %d out of range", uids[i])
		}
		if w == 0 {
			continue
		}
		merged[uids[i]] += w
		if merged[uids[i]] > U16MAX {
			return nil, nil, fmt.Errorf("weight %d for uid %d exceeds u16", merged[uids[i]], uids[i])
		}
	}

	dests := make([]int, 0, len(merged))
	for uid := range merged {
		dests = append(dests, uid)
	}
	sort.Ints(dests)

	vals := make([]int, len(dests))
	for i, uid := range dests {
		vals[i] = int(merged[uid])
	}
	return dests, vals, nil
}

// ConvertWeightsAndUidsForEmit scales float weights so the largest becomes
// U16MAX, which is how subtensor itself stores a weight row.
func ConvertWeightsAndUidsForEmit(uids []int64, weights []float64) ([]int, []int, error) {
	if len(uids) != len(weights) {
		return nil, nil, fmt.Errorf("uids and weights must have the same length, got %d and %d", len(uids), len(weights))
	}
	if len(uids) == 0 {
		return []int{}, []int{}, nil
	}

	maxWeight := 0.0
	for i, w := range weights {
		if w < 0 {
			return nil, nil, fmt.Errorf("weights cannot be negative: %v", weights)
		}
		if uids[i] < 0 {
			return nil, nil, fmt.Errorf("uids cannot be negative: %v", uids)
		}
		if w > maxWeight {
			maxWeight = w
		}
	}

	if maxWeight == 0 {
		return []int{}, []int{}, nil
	}

	weightUids := make([]int, 0, len(uids))
	weightVals := make([]int, 0, len(weights))

	for i, w := range weights {
		uint16Val := int(math.Round((w / maxWeight) * float64(U16MAX)))

		if uint16Val > 0 {
			weightUids = append(weightUids, int(uids[i]))
			weightVals = append(weightVals, uint16Val)
		}
	}

	return weightUids, weightVals, nil
}
