package state

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dogelayer/validator/internal/share"
)

func sampleState() *ValidatorState {
	st := NewValidatorState()
	st.Scores["M1"] = &ScoreRecord{Score: 12.5, LastUpdatedEpoch: 7, LastActiveEpoch: 7, AcceptedSamples: 40}
	st.Scores["M2"] = &ScoreRecord{Score: 0.25, LastUpdatedEpoch: 7, LastActiveEpoch: 3, AcceptedSamples: 2}
	st.LastScoredEpoch = 7
	st.LastCommittedEpoch = 6
	return st
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "validator_state.json")
	store := NewFileStore(path)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleState()))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, loaded.Version)
	assert.Equal(t, uint64(7), loaded.LastScoredEpoch)
	assert.Equal(t, uint64(6), loaded.LastCommittedEpoch)
	assert.NotZero(t, loaded.SavedAt)
	require.Contains(t, loaded.Scores, share.Identity("M1"))
	assert.Equal(t, ScoreRecord{Score: 12.5, LastUpdatedEpoch: 7, LastActiveEpoch: 7, AcceptedSamples: 40}, *loaded.Scores["M1"])
}

func TestFileStoreSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "validator_state.json")
	store := NewFileStore(path)

	require.NoError(t, store.Save(context.Background(), sampleState()))
	require.NoError(t, store.Save(context.Background(), sampleState()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "validator_state.json", entries[0].Name())
}

func TestFileStoreFailedSaveKeepsPreviousSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "validator_state.json")
	store := NewFileStore(path)
	require.NoError(t, store.Save(context.Background(), sampleState()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	next := sampleState()
	next.LastScoredEpoch = 99
	require.Error(t, store.Save(ctx, next))

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(7), loaded.LastScoredEpoch)
}

func TestFileStoreMissingVersusCorrupt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "validator_state.json")
	store := NewFileStore(path)

	_, err := store.Load(context.Background())
	require.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrCorrupt)

	require.NoError(t, os.WriteFile(path, []byte(`{"version":1,"scores":{"M1":`), 0o644))
	_, err = store.Load(context.Background())
	require.ErrorIs(t, err, ErrCorrupt)
	assert.NotErrorIs(t, err, ErrNotFound)

	var corruption *CorruptionError
	require.ErrorAs(t, err, &corruption)
	assert.Equal(t, path, corruption.Location)
}

func TestFileStoreRejectsUnknownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "validator_state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":2,"scores":{}}`), 0o644))

	_, err := NewFileStore(path).Load(context.Background())
	require.ErrorIs(t, err, ErrCorrupt)
	assert.Contains(t, err.Error(), "unsupported schema version 2")
}

func TestFileStoreRejectsNegativeScore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "validator_state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":1,"scores":{"M1":{"score":-1}}}`), 0o644))

	_, err := NewFileStore(path).Load(context.Background())
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestFileStoreUnreadableIsNotCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "validator_state.json")
	require.NoError(t, os.Mkdir(path, 0o755))
	store := NewFileStore(path)

	_, err := store.Load(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCorrupt)
	assert.NotErrorIs(t, err, ErrNotFound)

	_, err = Open(context.Background(), store, OpenOptions{AllowMissing: true, Reset: true})
	require.Error(t, err)
	info, statErr := os.Stat(path)
	require.NoError(t, statErr)
	assert.True(t, info.IsDir())
}

func TestFileStoreQuarantine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "validator_state.json")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))
	store := NewFileStore(path)

	moved, err := store.Quarantine(context.Background())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(moved), "validator_state.json.corrupt-"))

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	data, err := os.ReadFile(moved)
	require.NoError(t, err)
	assert.Equal(t, "garbage", string(data))
}
