// Package config defines environment configuration structs and loaders.
package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/dogelayer/validator/internal/retry"
)

type AppConfig struct {
	ChainEnvConfig
	WalletEnvConfig
	KamiEnvConfig
	TelemetryEnvConfig
	ScoringEnvConfig
	SubmitterEnvConfig
	StateEnvConfig
	RedisEnvConfig
	StatusEnvConfig
	ValidatorEnvConfig
}

func LoadConfig() (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ChainEnvConfig holds chain-specific environment values.
type ChainEnvConfig struct {
	Netuid            int           `env:"NETUID" envDefault:"2"`
	VersionKey        int           `env:"VERSION_KEY" envDefault:"1"`
	BlockPollInterval time.Duration `env:"BLOCK_POLL_INTERVAL" envDefault:"12s"`
	MetagraphTTL      time.Duration `env:"METAGRAPH_TTL" envDefault:"5m"`
	MinValidatorStake float64       `env:"MIN_VALIDATOR_STAKE" envDefault:"0"`
	BlockedColdkeys   []string      `env:"BLOCKED_COLDKEYS" envSeparator:","`
}

// WalletEnvConfig holds wallet key configuration.
type WalletEnvConfig struct {
	WalletHotkey  string `env:"WALLET_HOTKEY"`
	WalletColdkey string `env:"WALLET_COLDKEY"`
	BittensorDir  string `env:"BITTENSOR_DIR" envDefault:"~/.bittensor"`
}

// KamiEnvConfig contains the Kami service target.
type KamiEnvConfig struct {
	SubtensorNetwork string        `env:"SUBTENSOR_NETWORK" envDefault:"finney"`
	KamiHost         string        `env:"KAMI_HOST" envDefault:"127.0.0.1"`
	KamiPort         string        `env:"KAMI_PORT" envDefault:"3000"`
	KamiTimeout      time.Duration `env:"KAMI_TIMEOUT" envDefault:"15s"`
}

// TelemetryEnvConfig configures the subnet proxy share telemetry source.
type TelemetryEnvConfig struct {
	ProxyAPIURL     string        `env:"SUBNET_PROXY_API_URL,required,notEmpty"`
	ProxyAPIToken   string        `env:"SUBNET_PROXY_API_TOKEN,required,notEmpty"`
	Coin            string        `env:"TELEMETRY_COIN" envDefault:"litecoin"`
	PollInterval    time.Duration `env:"TELEMETRY_POLL_INTERVAL" envDefault:"60s"`
	RequestTimeout  time.Duration `env:"TELEMETRY_TIMEOUT" envDefault:"30s"`
	InitialLookback time.Duration `env:"TELEMETRY_INITIAL_LOOKBACK" envDefault:"1h"`
	MaxWindow       time.Duration `env:"TELEMETRY_MAX_WINDOW" envDefault:"24h"`
	SignRequests    bool          `env:"TELEMETRY_SIGN_REQUESTS" envDefault:"false"`
	StrictIdentity  bool          `env:"STRICT_IDENTITY" envDefault:"true"`
	ReportScores    bool          `env:"SUBMIT_VALIDATOR_INFO" envDefault:"true"`
	MaxAttempts     int           `env:"TELEMETRY_MAX_ATTEMPTS" envDefault:"3"`
	BackoffMin      time.Duration `env:"TELEMETRY_BACKOFF_MIN" envDefault:"1s"`
	BackoffMax      time.Duration `env:"TELEMETRY_BACKOFF_MAX" envDefault:"10s"`
	QueueCapacity   int           `env:"QUEUE_CAPACITY" envDefault:"100000"`
}

// ScoringEnvConfig holds the scoring policy. Alpha, epsilon and ceiling have
// no safe default and must be set explicitly.
type ScoringEnvConfig struct {
	ScoreAlpha       float64 `env:"SCORE_ALPHA,required"`
	MinWeightEpsilon float64 `env:"MIN_WEIGHT_EPSILON,required"`
	MaxWeightCeiling float64 `env:"MAX_WEIGHT_FRACTION,required"`
	WeightResolution uint64  `env:"WEIGHT_RESOLUTION" envDefault:"65535"`
	PruneThreshold   float64 `env:"SCORE_PRUNE_THRESHOLD" envDefault:"0"`
	PruneIdleEpochs  uint64  `env:"SCORE_PRUNE_IDLE_EPOCHS" envDefault:"0"`
	BurnHotkey       string  `env:"BURN_HOTKEY"`
}

// SubmitterEnvConfig configures set-weights retries.
type SubmitterEnvConfig struct {
	SubmitMaxAttempts int           `env:"SUBMIT_MAX_ATTEMPTS" envDefault:"5"`
	SubmitBackoffMin  time.Duration `env:"SUBMIT_BACKOFF_MIN" envDefault:"2s"`
	SubmitBackoffMax  time.Duration `env:"SUBMIT_BACKOFF_MAX" envDefault:"30s"`
	SubmitTimeout     time.Duration `env:"SUBMIT_TIMEOUT" envDefault:"120s"`
}

// StateEnvConfig configures validator state persistence.
type StateEnvConfig struct {
	StateBackend        string `env:"STATE_BACKEND" envDefault:"file"`
	StatePath           string `env:"STATE_PATH" envDefault:"state/validator_state.json"`
	StateAllowMissing   bool   `env:"STATE_ALLOW_MISSING" envDefault:"true"`
	StateReset          bool   `env:"STATE_RESET" envDefault:"false"`
	StateMaxStaleEpochs uint64 `env:"STATE_MAX_STALE_EPOCHS" envDefault:"0"`
}

// RedisEnvConfig configures Redis connection.
type RedisEnvConfig struct {
	RedisHost      string `env:"REDIS_HOST" envDefault:"127.0.0.1"`
	RedisPort      int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword  string `env:"REDIS_PASSWORD"`
	RedisDB        int    `env:"REDIS_DB" envDefault:"0"`
	RedisUsername  string `env:"REDIS_USERNAME"`
	RedisKeyPrefix string `env:"REDIS_KEY_PREFIX" envDefault:"dogelayer"`
}

// StatusEnvConfig configures the read-only status server.
type StatusEnvConfig struct {
	StatusAddress string `env:"STATUS_ADDRESS" envDefault:":9100"`
}

// ValidatorEnvConfig configures validator runtime.
type ValidatorEnvConfig struct {
	Environment string `env:"ENVIRONMENT" envDefault:"prod"`
}

// Validate checks values env tags cannot express.
func (c *AppConfig) Validate() error {
	var errs []error

	if !(c.ScoreAlpha > 0 && c.ScoreAlpha < 1) {
		errs = append(errs, fmt.Errorf("SCORE_ALPHA=%v must be in (0, 1)", c.ScoreAlpha))
	}
	if !(c.MinWeightEpsilon >= 0 && c.MinWeightEpsilon < 1) {
		errs = append(errs, fmt.Errorf("MIN_WEIGHT_EPSILON=%v must be in [0, 1)", c.MinWeightEpsilon))
	}
	if !(c.MaxWeightCeiling > 0 && c.MaxWeightCeiling <= 1) {
		errs = append(errs, fmt.Errorf("MAX_WEIGHT_FRACTION=%v must be in (0, 1]", c.MaxWeightCeiling))
	}
	if c.WeightResolution == 0 || c.WeightResolution > math.MaxUint16 {
		errs = append(errs, fmt.Errorf("WEIGHT_RESOLUTION=%d must be in [1, %d]", c.WeightResolution, math.MaxUint16))
	}
	if c.PruneThreshold < 0 {
		errs = append(errs, fmt.Errorf("SCORE_PRUNE_THRESHOLD=%v must be >= 0", c.PruneThreshold))
	}
	if c.Netuid < 0 {
		errs = append(errs, fmt.Errorf("NETUID=%d must be >= 0", c.Netuid))
	}

	switch strings.ToLower(c.StateBackend) {
	case "file", "redis":
	default:
		errs = append(errs, fmt.Errorf("STATE_BACKEND=%q must be file or redis", c.StateBackend))
	}

	for name, d := range map[string]time.Duration{
		"TELEMETRY_POLL_INTERVAL": c.PollInterval,
		"TELEMETRY_TIMEOUT":       c.RequestTimeout,
		"BLOCK_POLL_INTERVAL":     c.BlockPollInterval,
		"SUBMIT_TIMEOUT":          c.SubmitTimeout,
		"KAMI_TIMEOUT":            c.KamiTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s=%s must be positive", name, d))
		}
	}
	if c.InitialLookback <= 0 || c.MaxWindow < c.InitialLookback {
		errs = append(errs, fmt.Errorf("TELEMETRY_INITIAL_LOOKBACK=%s must be positive and not exceed TELEMETRY_MAX_WINDOW=%s", c.InitialLookback, c.MaxWindow))
	}
	if c.MaxAttempts < 1 || c.SubmitMaxAttempts < 1 {
		errs = append(errs, errors.New("TELEMETRY_MAX_ATTEMPTS and SUBMIT_MAX_ATTEMPTS must be >= 1"))
	}
	if c.BackoffMin > c.BackoffMax {
		errs = append(errs, fmt.Errorf("TELEMETRY_BACKOFF_MIN=%s exceeds TELEMETRY_BACKOFF_MAX=%s", c.BackoffMin, c.BackoffMax))
	}
	if c.SubmitBackoffMin > c.SubmitBackoffMax {
		errs = append(errs, fmt.Errorf("SUBMIT_BACKOFF_MIN=%s exceeds SUBMIT_BACKOFF_MAX=%s", c.SubmitBackoffMin, c.SubmitBackoffMax))
	}
	if c.QueueCapacity < 1 {
		errs = append(errs, fmt.Errorf("QUEUE_CAPACITY=%d must be >= 1", c.QueueCapacity))
	}

	return errors.Join(errs...)
}

// TelemetryRetryPolicy returns the retry policy for one telemetry poll.
func (c *AppConfig) TelemetryRetryPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: c.MaxAttempts, MinBackoff: c.BackoffMin, MaxBackoff: c.BackoffMax}
}

// SubmitRetryPolicy returns the retry policy for one set-weights submission.
func (c *AppConfig) SubmitRetryPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: c.SubmitMaxAttempts, MinBackoff: c.SubmitBackoffMin, MaxBackoff: c.SubmitBackoffMax}
}

// BlockedColdkeySet returns BLOCKED_COLDKEYS as a set with blanks removed.
func (c *AppConfig) BlockedColdkeySet() map[string]struct{} {
	out := make(map[string]struct{}, len(c.BlockedColdkeys))
	for _, k := range c.BlockedColdkeys {
		if k = strings.TrimSpace(k); k != "" {
			out[k] = struct{}{}
		}
	}
	return out
}

type IntervalConfig struct {
	TelemetryInterval time.Duration
	BlockInterval     time.Duration
}

var (
	DevIntervalConfig = &IntervalConfig{
		TelemetryInterval: 10 * time.Second,
		BlockInterval:     2 * time.Second,
	}
	TestIntervalConfig = &IntervalConfig{
		TelemetryInterval: 30 * time.Second,
		BlockInterval:     12 * time.Second,
	}
)

// Intervals returns the ticker intervals for the environment. Dev runs
// against a fast local chain; other environments use the configured values.
func (c *AppConfig) Intervals() *IntervalConfig {
	switch strings.ToLower(c.Environment) {
	case "dev":
		return DevIntervalConfig
	case "test":
		return TestIntervalConfig
	}
	return &IntervalConfig{
		TelemetryInterval: c.PollInterval,
		BlockInterval:     c.BlockPollInterval,
	}
}
