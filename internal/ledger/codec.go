package ledger

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
)

const snapshotVersion = 1

// envelope versions the encoded state so a future layout can be migrated on load
type envelope[T any] struct {
	Version int
	State   T
}

func Encode[T any](state *T) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(envelope[T]{Version: snapshotVersion, State: *state}); err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

func Decode[T any](data []byte) (*T, error) {
	if len(data) == 0 {
		return nil, errors.New("empty snapshot data")
	}

	var env envelope[T]
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&env); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if env.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version: %d", env.Version)
	}
	return &env.State, nil
}
