package main

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dogelayer/validator/internal/chain"
	"github.com/dogelayer/validator/internal/config"
	"github.com/dogelayer/validator/internal/kami"
	"github.com/dogelayer/validator/internal/scoring"
	"github.com/dogelayer/validator/internal/share"
	"github.com/dogelayer/validator/internal/state"
	chainutils "github.com/dogelayer/validator/internal/utils/chain_utils"
	"github.com/dogelayer/validator/internal/utils/redis"
	"github.com/dogelayer/validator/internal/validator"
)

const actionTimeout = 2 * time.Minute

type model struct {
	choices       []string
	cursor        int
	selectedIndex int // single selection index; -1 until chosen
	cfg           *config.AppConfig
	kamiClient    *kami.Kami
}

func initialModel() *model {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	k, err := kami.NewKami(&cfg.KamiEnvConfig)
	if err != nil {
		fmt.Printf("Error initializing Kami: %v\n", err)
		os.Exit(1)
	}

	return &model{
		choices: []string{
			"Show saved state",
			"Preview weights from saved scores",
			"Reset saved scores",
			"Set 100% burn weight",
		},
		cursor:        0,
		selectedIndex: -1,
		cfg:           cfg,
		kamiClient:    k,
	}
}

// openStore opens the configured state backend. The redis key is derived
// from the Kami hotkey, so only the redis backend needs Kami.
func (m *model) openStore(ctx context.Context) (state.Store, func(), error) {
	if !strings.EqualFold(m.cfg.StateBackend, "redis") {
		return state.NewFileStore(m.cfg.StatePath), func() {}, nil
	}

	hotkey, err := kami.GetHotkey(ctx, m.kamiClient)
	if err != nil {
		return nil, nil, fmt.Errorf("get hotkey: %w", err)
	}
	r, err := redis.NewRedis(&m.cfg.RedisEnvConfig)
	if err != nil {
		return nil, nil, err
	}
	store, err := state.NewRedisStore(r, state.StateKey(m.cfg.RedisKeyPrefix, hotkey))
	if err != nil {
		r.Close()
		return nil, nil, err
	}
	return store, r.Close, nil
}

func (m *model) showState(ctx context.Context) error {
	store, closeStore, err := m.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	st, err := store.Load(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("State %s\n", store.Describe())
	fmt.Printf("  version %d, saved at %s\n", st.Version, time.Unix(st.SavedAt, 0).UTC().Format(time.RFC3339))
	fmt.Printf("  last scored epoch %d, last committed epoch %d\n", st.LastScoredEpoch, st.LastCommittedEpoch)
	fmt.Printf("  %d miner(s)\n\n", len(st.Scores))

	ids := make([]share.Identity, 0, len(st.Scores))
	for id := range st.Scores {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		rec := st.Scores[id]
		fmt.Printf("  %-50s score %14.4f  samples %8d  active %6d  updated %6d\n",
			id, rec.Score, rec.AcceptedSamples, rec.LastActiveEpoch, rec.LastUpdatedEpoch)
	}
	return nil
}

func (m *model) previewWeights(ctx context.Context) error {
	store, closeStore, err := m.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	st, err := store.Load(ctx)
	if err != nil {
		return err
	}

	kc := chain.NewKamiChain(m.kamiClient, m.cfg.Netuid, m.cfg.VersionKey, m.cfg.MetagraphTTL)
	neurons, err := kc.Neurons(ctx)
	if err != nil {
		return fmt.Errorf("read neurons: %w", err)
	}

	blocked := m.cfg.BlockedColdkeySet()
	candidates := make(map[share.Identity]*state.ScoreRecord, len(st.Scores))
	for id, rec := range st.Scores {
		n, ok := neurons[id.String()]
		if !ok {
			continue
		}
		if _, bad := blocked[n.Coldkey]; bad {
			continue
		}
		candidates[id] = rec
	}

	vec, err := scoring.Normalize(candidates, st.LastScoredEpoch, validator.PolicyFromConfig(m.cfg))
	if err != nil {
		return err
	}
	if vec.IsEmpty() {
		fmt.Println("No registered miner carries weight.")
		return nil
	}

	uids := make([]int64, 0, len(vec.Entries))
	weights := make([]float64, 0, len(vec.Entries))
	fmt.Printf("Weights for epoch %d (resolution %d)\n\n", vec.Epoch, vec.Resolution)
	for _, e := range vec.Entries {
		n := neurons[e.Identity.String()]
		fmt.Printf("  uid %4d  %-50s weight %.6f  quantized %5d\n", n.UID, e.Identity, e.Weight, e.Quantized)
		uids = append(uids, int64(n.UID))
		weights = append(weights, e.Weight)
	}

	dests, vals, err := chainutils.ConvertWeightsAndUidsForEmit(uids, weights)
	if err != nil {
		return err
	}
	fmt.Printf("\nAs stored on chain (max-normalized): dests %v weights %v\n", dests, vals)
	return nil
}

func (m *model) resetScores(ctx context.Context) error {
	store, closeStore, err := m.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	st, err := state.Open(ctx, store, state.OpenOptions{AllowMissing: true, Reset: true})
	if err != nil {
		return err
	}
	dropped := len(st.Scores)
	st.ResetScores()
	if err := store.Save(ctx, st); err != nil {
		return err
	}
	fmt.Printf("Dropped %d score record(s); last committed epoch %d kept.\n", dropped, st.LastCommittedEpoch)
	return nil
}

func (m *model) burn(ctx context.Context) error {
	if m.cfg.BurnHotkey == "" {
		return fmt.Errorf("BURN_HOTKEY is not set")
	}
	fmt.Printf("Setting 100%% burn weight to %s\n", m.cfg.BurnHotkey)

	kc := chain.NewKamiChain(m.kamiClient, m.cfg.Netuid, m.cfg.VersionKey, m.cfg.MetagraphTTL)
	vec := scoring.BurnVector(0, share.Identity(m.cfg.BurnHotkey), m.cfg.WeightResolution)
	hash, err := kc.SetWeights(ctx, vec)
	if err != nil {
		return err
	}
	fmt.Printf("Successfully set burn weights with hash: %s\n", hash)
	return nil
}

func (m *model) run(index int) {
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	var err error
	switch index {
	case 0:
		err = m.showState(ctx)
	case 1:
		err = m.previewWeights(ctx)
	case 2:
		err = m.resetScores(ctx)
	case 3:
		err = m.burn(ctx)
	default:
		fmt.Println("Unknown selection")
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
	}
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) { //nolint
	switch msg := msg.(type) { //nolint
	case tea.KeyMsg:
		switch msg.String() {
		// These keys should exit the program.
		case "ctrl+c", "q":
			return m, tea.Quit

		// The "up" and "k" keys move the cursor up
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}

		// The "down" and "j" keys move the cursor down
		case "down", "j":
			if m.cursor < len(m.choices)-1 {
				m.cursor++
			}

		// The "enter" key confirms the current cursor selection.
		case "enter":
			m.selectedIndex = m.cursor
			return m, tea.Quit
		}
	}

	return m, nil
}

func (m *model) View() string {
	if m.selectedIndex >= 0 {
		return ""
	}

	s := "Select an option:\n\n"
	for i, choice := range m.choices {
		cursor := " "
		if m.cursor == i {
			cursor = ">"
		}
		s += fmt.Sprintf("%s %s\n", cursor, choice)
	}
	s += "\nPress q to quit.\n"
	return s
}

func (m *model) Init() tea.Cmd {
	return nil
}

func main() {
	m := initialModel()
	p := tea.NewProgram(m)
	if _, err := p.Run(); err != nil {
		fmt.Printf("Alas, there's been an error: %v", err)
		os.Exit(1)
	}
	if m.selectedIndex >= 0 {
		m.run(m.selectedIndex)
	}
}
