package signature

import "github.com/ChainSafe/gossamer/lib/crypto/sr25519"

const (
	SubstrateNetworkId = 42

	// Default paths
	DefaultBittensorDir  = "~/.bittensor"
	DefaultWalletColdkey = "default"
)

type SignatureProvider interface {
	// Sign generates a signature for the given message using the hotkey
	Sign(message string) (string, error)
	// Address returns the SS58 address of the signing hotkey
	Address() string
}

// Provider is a concrete implementation of SignatureProvider
type Provider struct {
	keypair *sr25519.Keypair
}
