package chainutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dogelayer/validator/internal/kami"
)

func TestConvertQuantizedForEmit(t *testing.T) {
	dests, vals, err := ConvertQuantizedForEmit([]int{7, 2, 5, 2}, []uint64{30000, 20000, 0, 15535})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 7}, dests)
	assert.Equal(t, []int{35535, 30000}, vals)
}

func TestConvertQuantizedForEmitErrors(t *testing.T) {
	_, _, err := ConvertQuantizedForEmit([]int{1}, nil)
	assert.Error(t, err)

	_, _, err = ConvertQuantizedForEmit([]int{-1}, []uint64{1})
	assert.Error(t, err)

	_, _, err = ConvertQuantizedForEmit([]int{1, 1}, []uint64{U16MAX, 1})
	assert.Error(t, err)
}

func TestConvertWeightsAndUidsForEmit(t *testing.T) {
	uids, vals, err := ConvertWeightsAndUidsForEmit([]int64{0, 1, 2}, []float64{0.5, 0.25, 0})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, uids)
	assert.Equal(t, []int{U16MAX, 32768}, vals)

	_, _, err = ConvertWeightsAndUidsForEmit([]int64{0}, []float64{-1})
	assert.Error(t, err)
}

func TestUIDsByHotkey(t *testing.T) {
	mg := &kami.SubnetMetagraph{
		Hotkeys:  []string{"hk0", "hk1", "hk0"},
		Coldkeys: []string{"ck0", "ck1", "ck2"},
	}
	assert.Equal(t, map[string]int{"hk0": 0, "hk1": 1}, UIDsByHotkey(mg))
}
