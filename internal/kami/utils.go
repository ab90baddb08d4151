package kami

import "context"

// FindUIDByHotkey returns the uid registered to hotkey, or -1.
func FindUIDByHotkey(metagraph *SubnetMetagraph, hotkey string) int {
	for uid, h := range metagraph.Hotkeys {
		if h == hotkey {
			return uid
		}
	}
	return -1
}

// GetHotkey returns the SS58 address of the hotkey Kami signs with.
func GetHotkey(ctx context.Context, k KamiInterface) (string, error) {
	keyringPair, err := k.GetKeyringPair(ctx)
	if err != nil {
		return "", err
	}
	return keyringPair.Data.KeyringPair.Address, nil
}
