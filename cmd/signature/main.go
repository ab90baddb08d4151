// Command signature prints the X-Hotkey, X-Message and X-Signature headers
// the validator sends to the subnet proxy, signed with a local wallet hotkey.
package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dogelayer/validator/internal/utils/logger"
	"github.com/dogelayer/validator/pkg/signature"
)

func main() {
	dir := flag.String("dir", signature.DefaultBittensorDir, "bittensor directory")
	coldkey := flag.String("coldkey", signature.DefaultWalletColdkey, "wallet (coldkey) name")
	hotkey := flag.String("hotkey", "default", "hotkey name")
	message := flag.String("message", "", "message to sign; defaults to a fresh challenge")
	logger.Init()

	keypair, err := signature.LoadKeypairFromHotkey(*dir, *coldkey, *hotkey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load hotkey")
	}
	provider, err := signature.NewProvider(keypair)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create signature provider")
	}

	msg := *message
	if msg == "" {
		msg = fmt.Sprintf("%s:%d:%s", provider.Address(), time.Now().Unix(), uuid.NewString())
	}
	sig, err := provider.Sign(msg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to sign message")
	}

	ok, err := signature.Verify(msg, sig, provider.Address())
	if err != nil || !ok {
		log.Fatal().Err(err).Bool("valid", ok).Msg("signature did not verify")
	}

	fmt.Printf("X-Hotkey: %s\nX-Message: %s\nX-Signature: %s\n", provider.Address(), msg, sig)
}
