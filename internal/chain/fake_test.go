package chain

import (
	"context"
	"sync"

	"github.com/dogelayer/validator/internal/scoring"
	"github.com/dogelayer/validator/internal/state"
)

type fakeClient struct {
	mu          sync.Mutex
	block       uint64
	tempo       uint64
	blockErr    error
	eligibility Eligibility
	eligErr     error
	setErrs     []error
	setCalls    int
	submitted   []scoring.WeightVector
	blockUntil  chan struct{}
}

func eligible() Eligibility {
	return Eligibility{Registered: true, ValidatorPermit: true, Stake: 1000, Block: 500, BlocksSinceUpdate: 400, WeightsRateLimit: 100}
}

func (f *fakeClient) LatestBlock(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.block, f.blockErr
}

func (f *fakeClient) Tempo(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tempo, nil
}

func (f *fakeClient) Neurons(ctx context.Context) (map[string]Neuron, error) {
	return map[string]Neuron{}, nil
}

func (f *fakeClient) Eligibility(ctx context.Context, hotkey string) (Eligibility, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.eligibility, f.eligErr
}

func (f *fakeClient) SetWeights(ctx context.Context, vec scoring.WeightVector) (string, error) {
	f.mu.Lock()
	f.setCalls++
	call := f.setCalls
	var err error
	if call <= len(f.setErrs) {
		err = f.setErrs[call-1]
	}
	block := f.blockUntil
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}

	f.mu.Lock()
	f.submitted = append(f.submitted, vec)
	f.mu.Unlock()
	return "0xhash", nil
}

func (f *fakeClient) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.setCalls
}

type memorySaver struct {
	mu    sync.Mutex
	saved []state.ValidatorState
	err   error
}

func (m *memorySaver) Save(ctx context.Context, st *state.ValidatorState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, *st.Clone())
	return nil
}
