package chainutils

import "github.com/dogelayer/validator/internal/kami"

// UIDsByHotkey indexes the metagraph hotkeys. A hotkey registered twice keeps
// its lowest uid.
func UIDsByHotkey(metagraph *kami.SubnetMetagraph) map[string]int {
	out := make(map[string]int, len(metagraph.Hotkeys))
	for uid, h := range metagraph.Hotkeys {
		if _, ok := out[h]; !ok {
			out[h] = uid
		}
	}
	return out
}
