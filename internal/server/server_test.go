package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dogelayer/validator/internal/metrics"
	"github.com/dogelayer/validator/internal/validator"
)

type stubSource struct {
	snap *validator.Snapshot
}

func (s stubSource) Snapshot() *validator.Snapshot { return s.snap }

func testSnapshot() *validator.Snapshot {
	uid := 1
	return &validator.Snapshot{
		InstanceID:         "instance",
		Hotkey:             "5Validator",
		Netuid:             2,
		StartedAt:          time.Now().Add(-time.Minute),
		Epoch:              7,
		LastScoredEpoch:    7,
		LastCommittedEpoch: 7,
		Phase:              "committed",
		Outcome:            "committed",
		Miners: []validator.MinerStatus{
			{Hotkey: "5MinerA", UID: &uid, Score: 12.5, Weight: 1, Quantized: 65535, AcceptedSamples: 3},
		},
	}
}

func decode[T any](t *testing.T, body io.Reader) StdResponse[T] {
	t.Helper()
	raw, err := io.ReadAll(body)
	require.NoError(t, err)
	var out StdResponse[T]
	require.NoError(t, sonic.Unmarshal(raw, &out))
	return out
}

func TestHealth(t *testing.T) {
	s := NewServer(":0", stubSource{snap: testSnapshot()})

	resp, err := s.App.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	out := decode[Health](t, resp.Body)
	assert.Nil(t, out.Error)
	assert.Equal(t, "ok", out.Body.Status)
	assert.Equal(t, "committed", out.Body.Phase)
	assert.Equal(t, uint64(7), out.Body.LastCommittedEpoch)
	assert.GreaterOrEqual(t, out.Body.UptimeSeconds, int64(59))
}

func TestHealthBeforeFirstSnapshot(t *testing.T) {
	s := NewServer(":0", stubSource{})

	resp, err := s.App.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "starting", decode[Health](t, resp.Body).Body.Status)
}

func TestScores(t *testing.T) {
	s := NewServer(":0", stubSource{snap: testSnapshot()})

	resp, err := s.App.Test(httptest.NewRequest(http.MethodGet, "/scores", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	out := decode[validator.Snapshot](t, resp.Body)
	require.Len(t, out.Body.Miners, 1)
	assert.Equal(t, "5MinerA", out.Body.Miners[0].Hotkey)
	require.NotNil(t, out.Body.Miners[0].UID)
	assert.Equal(t, 1, *out.Body.Miners[0].UID)
	assert.Equal(t, uint64(65535), out.Body.Miners[0].Quantized)
}

func TestScoresUnavailable(t *testing.T) {
	s := NewServer(":0", stubSource{})

	resp, err := s.App.Test(httptest.NewRequest(http.MethodGet, "/scores", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	out := decode[map[string]any](t, resp.Body)
	require.NotNil(t, out.Error)
	assert.Contains(t, *out.Error, "no snapshot")
}

func TestScoresZstd(t *testing.T) {
	s := NewServer(":0", stubSource{snap: testSnapshot()})

	req := httptest.NewRequest(http.MethodGet, "/scores", nil)
	req.Header.Set("Accept-Encoding", "zstd")
	resp, err := s.App.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "zstd", resp.Header.Get("Content-Encoding"))

	dec, err := zstd.NewReader(resp.Body)
	require.NoError(t, err)
	defer dec.Close()
	out := decode[validator.Snapshot](t, dec)
	assert.Equal(t, "5Validator", out.Body.Hotkey)
}

func TestMetrics(t *testing.T) {
	metrics.UpdateLastCommittedEpoch(7)
	s := NewServer(":0", stubSource{snap: testSnapshot()})

	resp, err := s.App.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(raw), "dogelayer_validator_last_committed_epoch 7"))
}
