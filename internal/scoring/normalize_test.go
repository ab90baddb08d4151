package scoring

import (
	"bytes"
	"fmt"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dogelayer/validator/internal/share"
	"github.com/dogelayer/validator/internal/state"
)

func records(scores map[string]float64) map[share.Identity]*state.ScoreRecord {
	out := make(map[share.Identity]*state.ScoreRecord, len(scores))
	for id, s := range scores {
		out[share.Identity(id)] = &state.ScoreRecord{Score: s, AcceptedSamples: 1}
	}
	return out
}

func normPolicy(epsilon, ceiling float64) Policy {
	return Policy{Alpha: 0.5, Epsilon: epsilon, Ceiling: ceiling, Resolution: DefaultResolution}
}

func TestNormalizeClampRedistributes(t *testing.T) {
	vec, err := Normalize(records(map[string]float64{"M1": 90, "M2": 10}), 3, normPolicy(0, 0.8))
	require.NoError(t, err)

	assert.InDelta(t, 0.8, vec.Weight("M1"), 1e-12)
	assert.InDelta(t, 0.2, vec.Weight("M2"), 1e-12)
	assert.InDelta(t, 1.0, vec.Sum(), SumTolerance)
	assert.Equal(t, uint64(DefaultResolution), vec.QuantizedSum())
	assert.Equal(t, uint64(3), vec.Epoch)
}

func TestNormalizeNeverContributedGetsNoWeight(t *testing.T) {
	scores := records(map[string]float64{"M1": 50})
	scores["M2"] = &state.ScoreRecord{Score: 50, AcceptedSamples: 0}

	vec, err := Normalize(scores, 1, normPolicy(0, 1))
	require.NoError(t, err)

	assert.Zero(t, vec.Weight("M2"))
	assert.InDelta(t, 1.0, vec.Weight("M1"), 1e-12)
	for _, e := range vec.Entries {
		assert.NotEqual(t, share.Identity("M2"), e.Identity)
	}
}

func TestNormalizeEpsilonZeroesSmallWeights(t *testing.T) {
	vec, err := Normalize(records(map[string]float64{"M1": 990, "M2": 9, "M3": 1}), 1, normPolicy(0.005, 1))
	require.NoError(t, err)

	assert.Equal(t, 0.0, vec.Weight("M3"))
	for _, e := range vec.Entries {
		if e.Identity == "M3" {
			assert.Zero(t, e.Quantized)
		}
	}
	assert.InDelta(t, 1.0, vec.Sum(), SumTolerance)
	assert.InDelta(t, 990.0/999.0, vec.Weight("M1"), 1e-12)
}

func TestNormalizeEmptyWhenNoSignal(t *testing.T) {
	cases := map[string]map[share.Identity]*state.ScoreRecord{
		"nil map":      nil,
		"all zero":     records(map[string]float64{"M1": 0, "M2": 0}),
		"never active": {"M1": &state.ScoreRecord{Score: 7}},
	}
	for name, scores := range cases {
		t.Run(name, func(t *testing.T) {
			vec, err := Normalize(scores, 9, normPolicy(0, 1))
			require.NoError(t, err)
			assert.True(t, vec.IsEmpty())
			assert.Zero(t, vec.QuantizedSum())
		})
	}
}

func TestNormalizeInfeasibleCeilingEqualizes(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	defer func() { log.Logger = prev }()

	vec, err := Normalize(records(map[string]float64{"M1": 70, "M2": 30}), 1, normPolicy(0, 0.3))
	require.NoError(t, err)

	assert.Contains(t, buf.String(), `"level":"error"`)
	assert.Contains(t, buf.String(), "equalized weights exceed the ceiling")

	assert.InDelta(t, 0.5, vec.Weight("M1"), 1e-12)
	assert.InDelta(t, 0.5, vec.Weight("M2"), 1e-12)
	assert.Equal(t, uint64(DefaultResolution), vec.QuantizedSum())
}

func TestNormalizeInfeasibleCeilingBurnsExcess(t *testing.T) {
	p := normPolicy(0, 0.3)
	p.BurnIdentity = "BURN"

	vec, err := Normalize(records(map[string]float64{"M1": 70, "M2": 30}), 1, p)
	require.NoError(t, err)

	assert.InDelta(t, 0.3, vec.Weight("M1"), 1e-12)
	assert.InDelta(t, 0.3, vec.Weight("M2"), 1e-12)
	assert.InDelta(t, 0.4, vec.Weight("BURN"), 1e-12)
	assert.InDelta(t, 1.0, vec.Sum(), SumTolerance)
	assert.Equal(t, uint64(DefaultResolution), vec.QuantizedSum())
	assert.Equal(t, []share.Identity{"BURN", "M1", "M2"}, identities(vec))
}

func TestNormalizeIsDeterministicAndOrdered(t *testing.T) {
	scores := records(map[string]float64{"Mc": 3, "Ma": 1, "Mb": 2})
	first, err := Normalize(scores, 1, normPolicy(0, 0.45))
	require.NoError(t, err)
	second, err := Normalize(scores, 1, normPolicy(0, 0.45))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, []share.Identity{"Ma", "Mb", "Mc"}, identities(first))
}

func TestNormalizeDoesNotMutateScores(t *testing.T) {
	scores := records(map[string]float64{"M1": 90, "M2": 10})
	_, err := Normalize(scores, 1, normPolicy(0.2, 0.8))
	require.NoError(t, err)
	assert.Equal(t, 90.0, scores["M1"].Score)
	assert.Equal(t, 10.0, scores["M2"].Score)
}

func TestQuantizeLeftoverGoesToLargestFraction(t *testing.T) {
	q := quantize([]float64{1.0 / 3, 1.0 / 3, 1.0 / 3}, 100)
	assert.Equal(t, []uint64{34, 33, 33}, q)

	q = quantize([]float64{0.2, 0.5, 0.3}, 7)
	assert.Equal(t, uint64(7), q[0]+q[1]+q[2])
	assert.Equal(t, uint64(4), q[1])
}

func TestQuantizeManyEqualMinersSmallResolution(t *testing.T) {
	scores := make(map[string]float64, 15)
	for i := range 15 {
		scores[fmt.Sprintf("m%03d", i)] = 1
	}
	p := normPolicy(0, 1)
	p.Resolution = 10

	vec, err := Normalize(records(scores), 1, p)
	require.NoError(t, err)
	require.Len(t, vec.Entries, 15)

	assert.Equal(t, uint64(10), vec.QuantizedSum())
	for i, e := range vec.Entries {
		want := uint64(0)
		if i < 10 {
			want = 1
		}
		assert.Equal(t, want, e.Quantized, e.Identity)
	}
}

func TestQuantizeStaysWithinOneUnitOfIdeal(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	scores := make(map[string]float64, 100)
	for i := range 100 {
		scores[fmt.Sprintf("m%03d", i)] = 1 + rng.Float64()*99
	}

	vec, err := Normalize(records(scores), 1, normPolicy(0, 1))
	require.NoError(t, err)

	assert.Equal(t, uint64(DefaultResolution), vec.QuantizedSum())
	for _, e := range vec.Entries {
		ideal := e.Weight * DefaultResolution
		assert.Less(t, math.Abs(float64(e.Quantized)-ideal), 1.0, e.Identity)
	}
}

func TestQuantizeTakesSurplusFromLargest(t *testing.T) {
	assert.Equal(t, []uint64{5, 5}, quantize([]float64{0.6, 0.6}, 10))
	assert.Equal(t, []uint64{0, 0, 0}, quantize([]float64{0, 0, 0}, 10))
}

func TestNormalizeProperties(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))

	for trial := range 300 {
		n := 1 + rng.IntN(40)
		scores := make(map[share.Identity]*state.ScoreRecord, n)
		for i := range n {
			scores[share.Identity(fmt.Sprintf("M%03d", i))] = &state.ScoreRecord{
				Score:           rng.ExpFloat64() * 1000,
				AcceptedSamples: uint64(1 + rng.IntN(5)),
			}
		}
		epsilon := rng.Float64() * 0.02
		ceiling := 0.05 + rng.Float64()*0.95
		p := normPolicy(epsilon, ceiling)

		vec, err := Normalize(scores, uint64(trial+1), p)
		require.NoError(t, err)
		if vec.IsEmpty() {
			continue
		}

		assert.InDelta(t, 1.0, vec.Sum(), SumTolerance, "trial %d", trial)
		assert.Equal(t, p.Resolution, vec.QuantizedSum(), "trial %d", trial)
		for _, e := range vec.Entries {
			ideal := e.Weight * float64(p.Resolution)
			assert.Less(t, math.Abs(float64(e.Quantized)-ideal), 1.0, "trial %d: %s", trial, e.Identity)
		}

		survivors := 0
		for _, e := range vec.Entries {
			if e.Weight > 0 {
				survivors++
			}
		}
		feasible := float64(survivors)*ceiling >= 1
		for _, e := range vec.Entries {
			assert.GreaterOrEqual(t, e.Weight, 0.0)
			if e.Weight > 0 {
				assert.GreaterOrEqual(t, e.Weight, epsilon, "trial %d: %s below epsilon", trial, e.Identity)
			}
			if e.Weight > 0 && feasible {
				assert.LessOrEqual(t, e.Weight, ceiling+1e-9, "trial %d: %s", trial, e.Identity)
			}
		}
	}
}

func identities(vec WeightVector) []share.Identity {
	out := make([]share.Identity, len(vec.Entries))
	for i, e := range vec.Entries {
		out[i] = e.Identity
	}
	return out
}
