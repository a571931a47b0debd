package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrCorrupt marks a stored entry that could not be decoded. The cache treats
// it as a miss.
var ErrCorrupt = errors.New("corrupt cache entry")

// Entry is one cached payload and the time it was stored.
type Entry struct {
	Data     json.RawMessage
	StoredAt time.Time
}

// Store is the backend behind a Cache: one entry per key, overwritten on
// refresh, never evicted by the cache itself.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, e Entry) error
	Name() string
}

// envelope is the persisted form used by durable stores:
// {"data": <payload>, "timestamp": <ms since epoch>}.
type envelope struct {
	Data      json.RawMessage `json:"data"`
	Timestamp *int64          `json:"timestamp"`
}

// Encode serializes e into the durable envelope.
func Encode(e Entry) ([]byte, error) {
	ts := e.StoredAt.UnixMilli()
	return json.Marshal(envelope{Data: e.Data, Timestamp: &ts})
}

// Decode parses a durable envelope. Anything unreadable wraps ErrCorrupt.
func Decode(b []byte) (Entry, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if env.Timestamp == nil {
		return Entry{}, fmt.Errorf("%w: missing timestamp", ErrCorrupt)
	}
	if isNull(env.Data) {
		return Entry{}, fmt.Errorf("%w: missing data", ErrCorrupt)
	}
	return Entry{Data: env.Data, StoredAt: time.UnixMilli(*env.Timestamp)}, nil
}

// isNull reports whether a payload is empty or JSON null. No value the cache
// stores encodes that way, and decoding one into T would succeed as a no-op.
func isNull(data json.RawMessage) bool {
	data = bytes.TrimSpace(data)
	return len(data) == 0 || bytes.Equal(data, []byte("null"))
}
