package state

import (
	"errors"
	"fmt"
	"math"

	"github.com/bytedance/sonic"

	"github.com/dogelayer/validator/internal/share"
)

// snapshots sort map keys so identical states encode to identical bytes.
var snapshotAPI = sonic.ConfigStd

func encode(st *ValidatorState) ([]byte, error) {
	data, err := snapshotAPI.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("encode validator state: %w", err)
	}
	return data, nil
}

func decode(data []byte, location string) (*ValidatorState, error) {
	if len(data) == 0 {
		return nil, &CorruptionError{Location: location, Err: errors.New("empty snapshot")}
	}

	var st ValidatorState
	if err := snapshotAPI.Unmarshal(data, &st); err != nil {
		return nil, &CorruptionError{Location: location, Err: err}
	}
	if st.Version < 1 || st.Version > SchemaVersion {
		return nil, &CorruptionError{Location: location, Err: fmt.Errorf("unsupported schema version %d", st.Version)}
	}
	if st.Scores == nil {
		st.Scores = make(map[share.Identity]*ScoreRecord)
	}
	for id, rec := range st.Scores {
		if rec == nil {
			delete(st.Scores, id)
			continue
		}
		if rec.Score < 0 || math.IsNaN(rec.Score) || math.IsInf(rec.Score, 0) {
			return nil, &CorruptionError{Location: location, Err: fmt.Errorf("invalid score %v for %s", rec.Score, id)}
		}
	}
	return &st, nil
}
