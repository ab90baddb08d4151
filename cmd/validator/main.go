package main

import (
	"context"
	"errors"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dogelayer/validator/internal/chain"
	"github.com/dogelayer/validator/internal/config"
	"github.com/dogelayer/validator/internal/kami"
	"github.com/dogelayer/validator/internal/metrics"
	"github.com/dogelayer/validator/internal/queue"
	"github.com/dogelayer/validator/internal/server"
	"github.com/dogelayer/validator/internal/state"
	"github.com/dogelayer/validator/internal/telemetry"
	"github.com/dogelayer/validator/internal/utils/logger"
	"github.com/dogelayer/validator/internal/utils/redis"
	"github.com/dogelayer/validator/internal/validator"
	"github.com/dogelayer/validator/pkg/signature"
)

const startupTimeout = 30 * time.Second

func main() {
	logger.Init()
	log.Info().Msg("Starting validator...")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load environment configuration")
	}

	k, err := kami.NewKami(&cfg.KamiEnvConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init kami client")
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), startupTimeout)
	defer cancelStart()

	hotkey, err := kami.GetHotkey(startCtx, k)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to get validator hotkey from kami")
	}
	log.Info().Str("hotkey", hotkey).Msg("validator hotkey loaded")

	store, closeStore := openStore(cfg, hotkey)
	defer closeStore()

	q := queue.NewInMemoryQueue(queue.WithCapacity(cfg.QueueCapacity))
	defer q.Close()

	var clientOpts []telemetry.ClientOption
	if cfg.SignRequests {
		signer := loadSigner(startCtx, cfg, k, hotkey)
		clientOpts = append(clientOpts, telemetry.WithSigner(signer))
	}
	proxy, err := telemetry.NewClient(&cfg.TelemetryEnvConfig, clientOpts...)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init subnet proxy client")
	}

	deps := validator.Dependencies{
		Chain:   chain.NewKamiChain(k, cfg.Netuid, cfg.VersionKey, cfg.MetagraphTTL),
		Store:   store,
		Queue:   q,
		Fetcher: proxy,
		Hotkey:  hotkey,
	}
	if cfg.ReportScores {
		deps.Reporter = proxy
	}

	v, err := validator.NewValidator(startCtx, cfg, deps)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init validator")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.StatusAddress != "" {
		srv := server.NewServer(cfg.StatusAddress, v)
		go func() {
			if err := srv.Start(ctx); err != nil {
				log.Error().Err(err).Msg("status server stopped")
			}
		}()
	}

	metrics.UpdateQueueCapacity(q.Capacity())
	v.Start()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received, stopping validator")
	v.Stop()
	log.Info().Msg("validator stopped")
}

func openStore(cfg *config.AppConfig, hotkey string) (state.Store, func()) {
	switch strings.ToLower(cfg.StateBackend) {
	case "redis":
		r, err := redis.NewRedis(&cfg.RedisEnvConfig)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init redis client")
		}
		store, err := state.NewRedisStore(r, state.StateKey(cfg.RedisKeyPrefix, hotkey))
		if err != nil {
			r.Close()
			log.Fatal().Err(err).Msg("failed to init redis state store")
		}
		return store, r.Close
	default:
		return state.NewFileStore(cfg.StatePath), func() {}
	}
}

// loadSigner prefers the local wallet files and falls back to signing
// through Kami.
func loadSigner(ctx context.Context, cfg *config.AppConfig, k kami.KamiInterface, hotkey string) telemetry.Signer {
	var signer telemetry.Signer
	if cfg.WalletColdkey != "" && cfg.WalletHotkey != "" {
		keypair, err := signature.LoadKeypairFromHotkey(cfg.BittensorDir, cfg.WalletColdkey, cfg.WalletHotkey)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load wallet hotkey")
		}
		provider, err := signature.NewProvider(keypair)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init signature provider")
		}
		signer = provider
	} else {
		kamiSigner, err := kami.NewSigner(ctx, k, cfg.KamiTimeout)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init kami signer")
		}
		signer = kamiSigner
	}

	if signer.Address() != hotkey {
		log.Warn().Str("signer", signer.Address()).Str("hotkey", hotkey).Msg("request signer differs from the kami hotkey")
	}
	if err := selfCheck(signer); err != nil {
		log.Warn().Err(err).Msg("request signer self-check failed, the proxy may reject signed requests")
	}
	return signer
}

func selfCheck(signer telemetry.Signer) error {
	const probe = "dogelayer-validator-signer-check"
	sig, err := signer.Sign(probe)
	if err != nil {
		return err
	}
	ok, err := signature.Verify(probe, sig, signer.Address())
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("signature does not verify against signer address")
	}
	return nil
}
