package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// GetJSON reads the value at key and decodes it into out.
// Returns ErrNotFound when the key is absent.
func GetJSON(ctx context.Context, s Storage, key string, out interface{}) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	// Interpret integer values as json.Number instead of float64 so that
	// millisecond timestamps survive a round trip.
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("failed to decode value at %q: %w", key, err)
	}
	return nil
}

// SetJSON encodes value and stores it at key
func SetJSON(ctx context.Context, s Storage, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode value for %q: %w", key, err)
	}
	return s.Set(ctx, key, data)
}
