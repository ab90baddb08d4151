package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dogelayer/validator/internal/kami"
	"github.com/dogelayer/validator/internal/metrics"
	"github.com/dogelayer/validator/internal/scoring"
	chainutils "github.com/dogelayer/validator/internal/utils/chain_utils"
)

// KamiChain implements Client on top of the Kami HTTP proxy. Metagraph and
// hyperparameter reads are cached for ttl; eligibility and submission always
// read a fresh metagraph.
type KamiChain struct {
	k          kami.KamiInterface
	netuid     int
	versionKey int
	ttl        time.Duration

	mu          sync.Mutex
	metagraph   *kami.SubnetMetagraph
	metaFetched time.Time
	tempo       uint64
	tempoAt     time.Time
}

func NewKamiChain(k kami.KamiInterface, netuid, versionKey int, ttl time.Duration) *KamiChain {
	return &KamiChain{k: k, netuid: netuid, versionKey: versionKey, ttl: ttl}
}

func (c *KamiChain) LatestBlock(ctx context.Context) (uint64, error) {
	resp, err := c.k.GetLatestBlock(ctx)
	if err != nil {
		return 0, classify(err)
	}
	if resp.Data.BlockNumber < 0 {
		return 0, fmt.Errorf("%w: negative block number %d", ErrTransient, resp.Data.BlockNumber)
	}
	return uint64(resp.Data.BlockNumber), nil
}

func (c *KamiChain) Tempo(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	if c.tempo > 0 && time.Since(c.tempoAt) < c.ttl {
		tempo := c.tempo
		c.mu.Unlock()
		return tempo, nil
	}
	c.mu.Unlock()

	resp, err := c.k.GetSubnetHyperparams(ctx, c.netuid)
	if err != nil {
		return 0, classify(err)
	}
	if resp.Data.Tempo <= 0 {
		return 0, fmt.Errorf("%w: subnet %d reports tempo %d", ErrTransient, c.netuid, resp.Data.Tempo)
	}

	c.mu.Lock()
	c.tempo = uint64(resp.Data.Tempo)
	c.tempoAt = time.Now()
	c.mu.Unlock()
	return uint64(resp.Data.Tempo), nil
}

func (c *KamiChain) Neurons(ctx context.Context) (map[string]Neuron, error) {
	mg, err := c.loadMetagraph(ctx, false)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Neuron, len(mg.Hotkeys))
	for uid, hotkey := range mg.Hotkeys {
		if _, ok := out[hotkey]; ok {
			continue
		}
		out[hotkey] = neuronAt(mg, uid)
	}
	return out, nil
}

func (c *KamiChain) Eligibility(ctx context.Context, hotkey string) (Eligibility, error) {
	mg, err := c.loadMetagraph(ctx, true)
	if err != nil {
		return Eligibility{}, err
	}

	e := Eligibility{
		Block:            uint64(max(mg.Block, 0)),
		WeightsRateLimit: uint64(max(mg.WeightsRateLimit, 0)),
		CommitRevealOnly: mg.CommitRevealWeightsEnabled,
	}
	uid := kami.FindUIDByHotkey(mg, hotkey)
	if uid < 0 {
		return e, nil
	}
	n := neuronAt(mg, uid)
	e.Registered = true
	e.ValidatorPermit = n.ValidatorPermit
	e.Stake = n.Stake
	e.LastUpdate = n.LastUpdate
	if e.Block > n.LastUpdate {
		e.BlocksSinceUpdate = e.Block - n.LastUpdate
	}
	return e, nil
}

func (c *KamiChain) SetWeights(ctx context.Context, vec scoring.WeightVector) (string, error) {
	mg, err := c.loadMetagraph(ctx, true)
	if err != nil {
		return "", err
	}
	index := chainutils.UIDsByHotkey(mg)

	uids := make([]int, 0, len(vec.Entries))
	weights := make([]uint64, 0, len(vec.Entries))
	for _, e := range vec.Entries {
		if e.Quantized == 0 {
			continue
		}
		uid, ok := index[e.Identity.String()]
		if !ok {
			log.Warn().Str("hotkey", e.Identity.String()).Uint64("epoch", vec.Epoch).Msg("hotkey no longer registered, dropping its weight")
			continue
		}
		uids = append(uids, uid)
		weights = append(weights, e.Quantized)
	}

	dests, vals, err := chainutils.ConvertQuantizedForEmit(uids, weights)
	if err != nil {
		return "", &RejectedError{Reason: "invalid weight row", Err: err}
	}
	if len(dests) == 0 {
		return "", &RejectedError{Reason: "no registered hotkey carries weight"}
	}

	metrics.RecordSubmitAttempt()
	resp, err := c.k.SetWeights(ctx, kami.SetWeightsParams{
		Netuid:     c.netuid,
		Dests:      dests,
		Weights:    vals,
		VersionKey: c.versionKey,
	})
	if err != nil {
		return "", classify(err)
	}
	return resp.Data, nil
}

func (c *KamiChain) loadMetagraph(ctx context.Context, fresh bool) (*kami.SubnetMetagraph, error) {
	c.mu.Lock()
	if !fresh && c.metagraph != nil && time.Since(c.metaFetched) < c.ttl {
		mg := c.metagraph
		c.mu.Unlock()
		return mg, nil
	}
	c.mu.Unlock()

	resp, err := c.k.GetMetagraph(ctx, c.netuid)
	if err != nil {
		return nil, classify(err)
	}
	mg := resp.Data

	c.mu.Lock()
	c.metagraph = &mg
	c.metaFetched = time.Now()
	c.mu.Unlock()
	return &mg, nil
}

func neuronAt(mg *kami.SubnetMetagraph, uid int) Neuron {
	n := Neuron{UID: uid, Hotkey: mg.Hotkeys[uid]}
	if uid < len(mg.Coldkeys) {
		n.Coldkey = mg.Coldkeys[uid]
	}
	if uid < len(mg.ValidatorPermit) {
		n.ValidatorPermit = mg.ValidatorPermit[uid]
	}
	if uid < len(mg.TotalStake) {
		n.Stake = mg.TotalStake[uid]
	}
	if uid < len(mg.LastUpdate) && mg.LastUpdate[uid] > 0 {
		n.LastUpdate = uint64(mg.LastUpdate[uid])
	}
	return n
}

// classify maps Kami failures onto ErrTransient or *RejectedError.
func classify(err error) error {
	var apiErr *kami.APIError
	if errors.As(err, &apiErr) {
		return &RejectedError{Reason: fmt.Sprint(apiErr.Details), Err: err}
	}
	var statusErr *kami.StatusError
	if errors.As(err, &statusErr) && !statusErr.Temporary() {
		return &RejectedError{Reason: fmt.Sprintf("status %d: %s", statusErr.StatusCode, statusErr.Body), Err: err}
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}
