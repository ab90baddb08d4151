// Package kami provides a Bittensor subtensor client which relies on Kami as the RPC endpoint.
package kami

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"github.com/dogelayer/validator/internal/config"
)

// KamiInterface is the subset of the Kami API the validator uses.
type KamiInterface interface {
	GetLatestBlock(ctx context.Context) (LatestBlockResponse, error)
	GetSubnetHyperparams(ctx context.Context, netuid int) (SubnetHyperparamsResponse, error)
	GetMetagraph(ctx context.Context, netuid int) (SubnetMetagraphResponse, error)
	SetWeights(ctx context.Context, params SetWeightsParams) (ExtrinsicHashResponse, error)
	SignMessage(ctx context.Context, params SignMessageParams) (SignMessageResponse, error)
	GetKeyringPair(ctx context.Context) (KeyringPairInfoResponse, error)
}

// Kami is a client wrapper for the Kami HTTP API.
type Kami struct {
	client  *resty.Client
	Host    string
	Port    string
	BaseURL string
}

// NewKami creates a new Kami client using the provided environment configuration.
func NewKami(cfg *config.KamiEnvConfig) (*Kami, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}

	url := fmt.Sprintf("http://%s:%s", cfg.KamiHost, cfg.KamiPort)

	client := resty.New().
		SetBaseURL(url).
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal).
		SetTimeout(cfg.KamiTimeout)

	return &Kami{
		client:  client,
		Host:    cfg.KamiHost,
		Port:    cfg.KamiPort,
		BaseURL: url,
	}, nil
}

func postJSON[T any](ctx context.Context, client *resty.Client, path string, body any) (KamiResponse[T], error) {
	var result KamiResponse[T]
	resp, err := client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		Post(path)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("post request failed")
		return KamiResponse[T]{}, fmt.Errorf("post %s: %w", path, err)
	}
	if resp.IsError() {
		log.Error().Int("status", resp.StatusCode()).Str("body", resp.String()).Str("path", path).Msg("post non-2xx")
		return KamiResponse[T]{}, &StatusError{Path: path, StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	if result.Error != nil {
		log.Error().Interface("error", result.Error).Str("path", path).Msg("response contains error")
		return KamiResponse[T]{}, &APIError{Path: path, Details: result.Error}
	}
	return result, nil
}

func getJSON[T any](ctx context.Context, client *resty.Client, path string) (KamiResponse[T], error) {
	var result KamiResponse[T]
	resp, err := client.R().
		SetContext(ctx).
		SetResult(&result).
		Get(path)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("get request failed")
		return KamiResponse[T]{}, fmt.Errorf("get %s: %w", path, err)
	}
	if resp.IsError() {
		log.Error().Int("status", resp.StatusCode()).Str("body", resp.String()).Str("path", path).Msg("get non-2xx")
		return KamiResponse[T]{}, &StatusError{Path: path, StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	if result.Error != nil {
		log.Error().Interface("error", result.Error).Str("path", path).Msg("response contains error")
		return KamiResponse[T]{}, &APIError{Path: path, Details: result.Error}
	}
	return result, nil
}

// GetMetagraph fetches the subnet metagraph for the given netuid.
func (k *Kami) GetMetagraph(ctx context.Context, netuid int) (SubnetMetagraphResponse, error) {
	path := fmt.Sprintf("/chain/subnet-metagraph/%d", netuid)
	return getJSON[SubnetMetagraph](ctx, k.client, path)
}

// GetSubnetHyperparams fetches the subnet hyperparams for the given netuid.
func (k *Kami) GetSubnetHyperparams(ctx context.Context, netuid int) (SubnetHyperparamsResponse, error) {
	path := fmt.Sprintf("/chain/subnet-hyperparameters/%d", netuid)
	return getJSON[SubnetHyperparams](ctx, k.client, path)
}

// GetLatestBlock retrieves the latest block details from the chain.
func (k *Kami) GetLatestBlock(ctx context.Context) (LatestBlockResponse, error) {
	return getJSON[LatestBlock](ctx, k.client, "/chain/latest-block")
}

// SetWeights sets the subnet weights and returns the extrinsic hash response.
func (k *Kami) SetWeights(ctx context.Context, params SetWeightsParams) (ExtrinsicHashResponse, error) {
	return postJSON[string](ctx, k.client, "/chain/set-weights", params)
}

// SignMessage signs an arbitrary message with the node's keypair.
func (k *Kami) SignMessage(ctx context.Context, params SignMessageParams) (SignMessageResponse, error) {
	return postJSON[SignMessage](ctx, k.client, "/substrate/sign-message/sign", params)
}

// GetKeyringPair returns information about the node's keyring pair.
func (k *Kami) GetKeyringPair(ctx context.Context) (KeyringPairInfoResponse, error) {
	return getJSON[KeyringPairInfo](ctx, k.client, "/substrate/keyring-pair-info")
}
