package telemetry

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dogelayer/validator/internal/config"
)

const (
	sharesPath      = "/api/workers/shares"
	scoreReportPath = "/api/validators/submit_miner_scores"
)

// Signer signs request challenges with the validator hotkey.
// signature.Provider and kami.Signer satisfy it.
type Signer interface {
	Sign(message string) (string, error)
	Address() string
}

// Client is a REST client for the subnet proxy.
type Client struct {
	client *resty.Client
	coin   string
	signer Signer
}

type ClientOption func(*Client)

// WithSigner adds X-Hotkey, X-Message and X-Signature headers to every request.
func WithSigner(s Signer) ClientOption {
	return func(c *Client) {
		c.signer = s
	}
}

// NewClient constructs a proxy client from the telemetry configuration.
func NewClient(cfg *config.TelemetryEnvConfig, opts ...ClientOption) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("telemetry env configuration cannot be nil")
	}
	if cfg.ProxyAPIURL == "" {
		return nil, fmt.Errorf("subnet proxy url cannot be empty")
	}

	client := resty.New().
		SetBaseURL(cfg.ProxyAPIURL).
		SetAuthToken(cfg.ProxyAPIToken).
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal).
		SetTimeout(cfg.RequestTimeout)

	c := &Client{client: client, coin: cfg.Coin}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) request(ctx context.Context) (*resty.Request, error) {
	req := c.client.R().SetContext(ctx)
	if c.signer == nil {
		return req, nil
	}

	message := fmt.Sprintf("%s:%d:%s", c.signer.Address(), time.Now().Unix(), uuid.NewString())
	sig, err := c.signer.Sign(message)
	if err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}
	return req.
		SetHeader("X-Hotkey", c.signer.Address()).
		SetHeader("X-Message", message).
		SetHeader("X-Signature", sig), nil
}

// FetchShares returns the shares the proxy accepted within w. Records that
// cannot be decoded are counted in Batch.Malformed and skipped. Every error
// wraps ErrTransient.
func (c *Client) FetchShares(ctx context.Context, w Window) (Batch, error) {
	req, err := c.request(ctx)
	if err != nil {
		return Batch{}, fmt.Errorf("%w: %w", ErrTransient, err)
	}

	resp, err := req.
		SetQueryParams(map[string]string{
			"start_time": strconv.FormatInt(w.Start.Unix(), 10),
			"end_time":   strconv.FormatInt(w.End.Unix(), 10),
			"coin":       c.coin,
		}).
		Get(sharesPath)
	if err != nil {
		return Batch{}, fmt.Errorf("%w: get %s: %w", ErrTransient, sharesPath, err)
	}
	if resp.IsError() {
		return Batch{}, fmt.Errorf("%w: %w", ErrTransient, &StatusError{Path: sharesPath, StatusCode: resp.StatusCode(), Body: resp.String()})
	}

	var payload sharesResponse
	if err := sonic.Unmarshal(resp.Body(), &payload); err != nil {
		return Batch{}, fmt.Errorf("%w: %w: %w", ErrTransient, ErrMalformedPayload, err)
	}
	if payload.Shares == nil {
		return Batch{}, fmt.Errorf("%w: %w: response has no shares field", ErrTransient, ErrMalformedPayload)
	}

	batch := Batch{
		Coin:    payload.Coin,
		Window:  w,
		Records: make([]ShareRecord, 0, len(payload.Shares)),
	}
	for i, raw := range payload.Shares {
		var rec ShareRecord
		if err := sonic.Unmarshal(raw, &rec); err != nil {
			batch.Malformed++
			log.Debug().Err(err).Int("index", i).Msg("skipping undecodable share record")
			continue
		}
		batch.Records = append(batch.Records, rec)
	}
	return batch, nil
}

// ReportScores posts the per-miner scores of a committed epoch.
func (c *Client) ReportScores(ctx context.Context, report ScoreReport) error {
	req, err := c.request(ctx)
	if err != nil {
		return err
	}

	resp, err := req.SetBody(report).Post(scoreReportPath)
	if err != nil {
		return fmt.Errorf("post %s: %w", scoreReportPath, err)
	}
	if resp.IsError() {
		return &StatusError{Path: scoreReportPath, StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	return nil
}
