package chain

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dogelayer/validator/internal/kami"
	"github.com/dogelayer/validator/internal/scoring"
)

type fakeKami struct {
	metagraph   kami.SubnetMetagraph
	hyperparams kami.SubnetHyperparams
	block       int
	setErr      error
	metaCalls   int
	tempoCalls  int
	lastParams  *kami.SetWeightsParams
}

func (f *fakeKami) GetLatestBlock(ctx context.Context) (kami.LatestBlockResponse, error) {
	return kami.LatestBlockResponse{Success: true, Data: kami.LatestBlock{BlockNumber: f.block}}, nil
}

func (f *fakeKami) GetSubnetHyperparams(ctx context.Context, netuid int) (kami.SubnetHyperparamsResponse, error) {
	f.tempoCalls++
	return kami.SubnetHyperparamsResponse{Success: true, Data: f.hyperparams}, nil
}

func (f *fakeKami) GetMetagraph(ctx context.Context, netuid int) (kami.SubnetMetagraphResponse, error) {
	f.metaCalls++
	return kami.SubnetMetagraphResponse{Success: true, Data: f.metagraph}, nil
}

func (f *fakeKami) SetWeights(ctx context.Context, params kami.SetWeightsParams) (kami.ExtrinsicHashResponse, error) {
	f.lastParams = &params
	if f.setErr != nil {
		return kami.ExtrinsicHashResponse{}, f.setErr
	}
	return kami.ExtrinsicHashResponse{Success: true, Data: "0xabc"}, nil
}

func (f *fakeKami) SignMessage(ctx context.Context, params kami.SignMessageParams) (kami.SignMessageResponse, error) {
	return kami.SignMessageResponse{}, errors.New("not implemented")
}

func (f *fakeKami) GetKeyringPair(ctx context.Context) (kami.KeyringPairInfoResponse, error) {
	return kami.KeyringPairInfoResponse{}, errors.New("not implemented")
}

func testMetagraph() kami.SubnetMetagraph {
	return kami.SubnetMetagraph{
		Netuid:           2,
		Block:            1000,
		WeightsRateLimit: 100,
		Hotkeys:          []string{"5Validator", "5MinerA", "5MinerB"},
		Coldkeys:         []string{"5ColdV", "5ColdA", "5ColdB"},
		ValidatorPermit:  []bool{true, false, false},
		TotalStake:       []float64{5000, 10, 20},
		LastUpdate:       []int{850, 0, 0},
	}
}

func TestKamiChainEligibility(t *testing.T) {
	fk := &fakeKami{metagraph: testMetagraph()}
	c := NewKamiChain(fk, 2, 1, time.Minute)

	e, err := c.Eligibility(context.Background(), "5Validator")
	require.NoError(t, err)
	assert.True(t, e.Registered)
	assert.True(t, e.ValidatorPermit)
	assert.Equal(t, 5000.0, e.Stake)
	assert.Equal(t, uint64(150), e.BlocksSinceUpdate)
	assert.NoError(t, e.Check(1000))

	e, err = c.Eligibility(context.Background(), "5Stranger")
	require.NoError(t, err)
	assert.False(t, e.Registered)
	assert.ErrorIs(t, e.Check(0), ErrIneligible)
}

func TestKamiChainNeuronsAreCached(t *testing.T) {
	fk := &fakeKami{metagraph: testMetagraph()}
	c := NewKamiChain(fk, 2, 1, time.Minute)

	neurons, err := c.Neurons(context.Background())
	require.NoError(t, err)
	require.Len(t, neurons, 3)
	assert.Equal(t, "5ColdA", neurons["5MinerA"].Coldkey)
	assert.Equal(t, 2, neurons["5MinerB"].UID)

	_, err = c.Neurons(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, fk.metaCalls)
}

func TestKamiChainTempo(t *testing.T) {
	fk := &fakeKami{hyperparams: kami.SubnetHyperparams{Tempo: 360}}
	c := NewKamiChain(fk, 2, 1, time.Minute)

	tempo, err := c.Tempo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(360), tempo)
	_, err = c.Tempo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, fk.tempoCalls)

	fk2 := &fakeKami{}
	_, err = NewKamiChain(fk2, 2, 1, time.Minute).Tempo(context.Background())
	assert.ErrorIs(t, err, ErrTransient)
}

func TestKamiChainSetWeightsMapsIdentitiesToUIDs(t *testing.T) {
	fk := &fakeKami{metagraph: testMetagraph()}
	c := NewKamiChain(fk, 2, 7, time.Minute)

	vec := scoring.WeightVector{
		Epoch:      4,
		Resolution: 65535,
		Entries: []scoring.WeightEntry{
			{Identity: "5MinerB", Weight: 0.75, Quantized: 49151},
			{Identity: "5Gone", Weight: 0.05, Quantized: 3277},
			{Identity: "5MinerA", Weight: 0.2, Quantized: 13107},
		},
	}
	hash, err := c.SetWeights(context.Background(), vec)
	require.NoError(t, err)
	assert.Equal(t, "0xabc", hash)

	require.NotNil(t, fk.lastParams)
	assert.Equal(t, 2, fk.lastParams.Netuid)
	assert.Equal(t, 7, fk.lastParams.VersionKey)
	assert.Equal(t, []int{1, 2}, fk.lastParams.Dests)
	assert.Equal(t, []int{13107, 49151}, fk.lastParams.Weights)
}

func TestKamiChainSetWeightsNoRegisteredTargets(t *testing.T) {
	fk := &fakeKami{metagraph: testMetagraph()}
	c := NewKamiChain(fk, 2, 1, time.Minute)

	_, err := c.SetWeights(context.Background(), scoring.WeightVector{
		Epoch:   4,
		Entries: []scoring.WeightEntry{{Identity: "5Gone", Weight: 1, Quantized: 65535}},
	})
	assert.ErrorIs(t, err, ErrRejected)
	assert.Nil(t, fk.lastParams)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		rejected bool
	}{
		{"api error", &kami.APIError{Path: "/chain/set-weights", Details: map[string]any{"message": "SettingWeightsTooFast"}}, true},
		{"bad request", &kami.StatusError{Path: "/chain/set-weights", StatusCode: http.StatusBadRequest}, true},
		{"rate limited", &kami.StatusError{StatusCode: http.StatusTooManyRequests}, false},
		{"server error", &kami.StatusError{StatusCode: http.StatusBadGateway}, false},
		{"network", errors.New("dial tcp: connection refused"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := classify(tc.err)
			if tc.rejected {
				assert.ErrorIs(t, err, ErrRejected)
				assert.NotErrorIs(t, err, ErrTransient)
			} else {
				assert.ErrorIs(t, err, ErrTransient)
			}
			assert.ErrorIs(t, err, tc.err)
		})
	}
}
