// Package share defines the share samples reported by the subnet proxy and
// the miner identities they are aggregated under.
package share

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vedhavyas/go-subkey"
)

// Identity is a miner hotkey. Rig suffixes are stripped before an Identity is
// built, so every rig of a hotkey shares one score.
type Identity string

var ErrMissingIdentity = errors.New("worker name carries no hotkey")

const publicKeyLength = 32

func (id Identity) String() string {
	return string(id)
}

// ParseWorker splits a proxy worker name of the form "<hotkey>" or
// "<hotkey>.<rig>" into the miner identity and the rig name.
func ParseWorker(worker string) (Identity, string, error) {
	worker = strings.TrimSpace(worker)
	hotkey, rig, _ := strings.Cut(worker, ".")
	if hotkey == "" {
		return "", "", ErrMissingIdentity
	}
	return Identity(hotkey), rig, nil
}

// ValidateHotkey checks that id decodes as an SS58 address of a 32 byte public key.
func ValidateHotkey(id Identity) error {
	_, pub, err := subkey.SS58Decode(string(id))
	if err != nil {
		return fmt.Errorf("decode ss58 address %q: %w", id, err)
	}
	if len(pub) != publicKeyLength {
		return fmt.Errorf("ss58 address %q decodes to %d bytes, want %d", id, len(pub), publicKeyLength)
	}
	return nil
}
