package kami

import (
	"context"
	"fmt"
	"time"
)

// Signer signs messages with the hotkey held by Kami, for validators that
// keep no wallet files next to the process.
type Signer struct {
	k       KamiInterface
	address string
	timeout time.Duration
}

// NewSigner resolves the Kami hotkey address once and returns a signer for it.
func NewSigner(ctx context.Context, k KamiInterface, timeout time.Duration) (*Signer, error) {
	address, err := GetHotkey(ctx, k)
	if err != nil {
		return nil, fmt.Errorf("resolve kami hotkey: %w", err)
	}
	if address == "" {
		return nil, fmt.Errorf("kami returned an empty hotkey address")
	}
	return &Signer{k: k, address: address, timeout: timeout}, nil
}

func (s *Signer) Address() string {
	return s.address
}

func (s *Signer) Sign(message string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	resp, err := s.k.SignMessage(ctx, SignMessageParams{Message: message})
	if err != nil {
		return "", err
	}
	return resp.Data.Signature, nil
}
