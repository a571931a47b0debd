package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

type payload struct {
	Price float64 `json:"price"`
	N     int     `json:"n"`
}

func counter(calls *int, price float64) func(context.Context) (payload, error) {
	return func(context.Context) (payload, error) {
		*calls++
		return payload{Price: price, N: *calls}, nil
	}
}

func TestGetOrFetch_HitWithinTTL(t *testing.T) {
	clock := newFakeClock()
	c := New(NewMemoryStore(), 10*time.Minute, WithClock(clock.Now))
	ctx := context.Background()
	calls := 0

	first, err := GetOrFetch(ctx, c, "bitcoin", counter(&calls, 100))
	require.NoError(t, err)

	clock.Advance(10*time.Minute - time.Millisecond)
	second, err := GetOrFetch(ctx, c, "bitcoin", counter(&calls, 200))
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)
}

func TestGetOrFetch_RefetchAtTTL(t *testing.T) {
	clock := newFakeClock()
	c := New(NewMemoryStore(), 10*time.Minute, WithClock(clock.Now))
	ctx := context.Background()
	calls := 0

	_, err := GetOrFetch(ctx, c, "bitcoin", counter(&calls, 100))
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	v, err := GetOrFetch(ctx, c, "bitcoin", counter(&calls, 200))
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
	assert.Equal(t, 200.0, v.Price)

	// The refreshed value is now the cached one.
	v, err = GetOrFetch(ctx, c, "bitcoin", counter(&calls, 300))
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 200.0, v.Price)
}

func TestGetOrFetch_KeysDoNotCollide(t *testing.T) {
	c := New(NewMemoryStore(), time.Minute)
	ctx := context.Background()

	hist, err := GetOrFetch(ctx, c, "bitcoin", func(context.Context) (payload, error) {
		return payload{Price: 1}, nil
	})
	require.NoError(t, err)

	live, err := GetOrFetch(ctx, c, LiveKey("bitcoin"), func(context.Context) (float64, error) {
		return 65000.5, nil
	})
	require.NoError(t, err)

	assert.Equal(t, 1.0, hist.Price)
	assert.Equal(t, 65000.5, live)
	assert.Equal(t, "bitcoin_live", LiveKey("bitcoin"))
}

func TestGetOrFetch_FailureLeavesStoreUnchanged(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore()
	c := New(store, time.Minute, WithClock(clock.Now))
	ctx := context.Background()

	boom := errors.New("upstream down")
	_, err := GetOrFetch(ctx, c, "ethereum", func(context.Context) (payload, error) {
		return payload{}, boom
	})
	assert.Same(t, boom, err)
	assert.Equal(t, 0, store.Len())

	// A stale entry is kept as is when the refresh fails.
	calls := 0
	_, err = GetOrFetch(ctx, c, "ethereum", counter(&calls, 42))
	require.NoError(t, err)
	before, _, _ := store.Get(ctx, "ethereum")

	clock.Advance(2 * time.Minute)
	_, err = GetOrFetch(ctx, c, "ethereum", func(context.Context) (payload, error) {
		return payload{}, boom
	})
	assert.Same(t, boom, err)

	after, found, _ := store.Get(ctx, "ethereum")
	require.True(t, found)
	assert.Equal(t, before, after)

	// No negative caching: the next call fetches again.
	v, err := GetOrFetch(ctx, c, "ethereum", counter(&calls, 43))
	require.NoError(t, err)
	assert.Equal(t, 43.0, v.Price)
}

func TestGetOrFetch_ZeroValueIsCached(t *testing.T) {
	c := New(NewMemoryStore(), time.Minute)
	ctx := context.Background()
	calls := 0
	fetch := func(context.Context) (float64, error) {
		calls++
		return 0, nil
	}

	for i := 0; i < 3; i++ {
		v, err := GetOrFetch(ctx, c, "tellor_live", fetch)
		require.NoError(t, err)
		assert.Equal(t, 0.0, v)
	}
	assert.Equal(t, 1, calls)
}

type brokenStore struct {
	getErr error
	setErr error
	sets   int
}

func (b *brokenStore) Name() string { return "broken" }

func (b *brokenStore) Get(context.Context, string) (Entry, bool, error) {
	return Entry{}, false, b.getErr
}

func (b *brokenStore) Set(context.Context, string, Entry) error {
	b.sets++
	return b.setErr
}

func TestGetOrFetch_StoreErrorsAreMisses(t *testing.T) {
	store := &brokenStore{
		getErr: errors.New("connection refused"),
		setErr: errors.New("read-only"),
	}
	c := New(store, time.Minute)
	calls := 0

	v, err := GetOrFetch(context.Background(), c, "bitcoin", counter(&calls, 7))
	require.NoError(t, err)
	assert.Equal(t, 7.0, v.Price)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, store.sets)
}

func TestGetOrFetch_CorruptEntryIsMiss(t *testing.T) {
	store := &brokenStore{getErr: ErrCorrupt}
	c := New(store, time.Minute)
	calls := 0

	_, err := GetOrFetch(context.Background(), c, "bitcoin", counter(&calls, 7))
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestGetOrFetch_PayloadTypeMismatchIsMiss(t *testing.T) {
	store := NewMemoryStore()
	c := New(store, time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "bitcoin", Entry{Data: []byte(`"not an object"`), StoredAt: time.Now()}))

	calls := 0
	v, err := GetOrFetch(ctx, c, "bitcoin", counter(&calls, 9))
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 9.0, v.Price)
}

func TestGetOrFetch_NullDataIsMiss(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore()
	c := New(store, time.Minute, WithClock(clock.Now))
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "tellor_live", Entry{Data: []byte(`null`), StoredAt: clock.Now()}))
	require.NoError(t, store.Set(ctx, "bitcoin", Entry{Data: []byte(` null`), StoredAt: clock.Now()}))

	liveCalls := 0
	usd, err := GetOrFetch(ctx, c, "tellor_live", func(context.Context) (float64, error) {
		liveCalls++
		return 0.42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0.42, usd)
	assert.Equal(t, 1, liveCalls)

	calls := 0
	p, err := GetOrFetch(ctx, c, "bitcoin", func(context.Context) (*payload, error) {
		calls++
		return &payload{Price: 61000}, nil
	})
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 61000.0, p.Price)
	assert.Equal(t, 1, calls)

	// The refetched value replaced the null entry.
	e, found, err := store.Get(ctx, "bitcoin")
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `{"price":61000,"n":0}`, string(e.Data))
}

func TestGetOrFetch_NilResultNotStored(t *testing.T) {
	store := NewMemoryStore()
	c := New(store, time.Minute)
	ctx := context.Background()

	calls := 0
	fetch := func(context.Context) (*payload, error) {
		calls++
		return nil, nil
	}
	for i := 0; i < 2; i++ {
		p, err := GetOrFetch(ctx, c, "bitcoin", fetch)
		require.NoError(t, err)
		assert.Nil(t, p)
	}
	assert.Equal(t, 2, calls)
	assert.Equal(t, 0, store.Len())
}

func TestEncodeDecode(t *testing.T) {
	at := time.UnixMilli(1709294400000)
	raw, err := Encode(Entry{Data: []byte(`{"price":1}`), StoredAt: at})
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":{"price":1},"timestamp":1709294400000}`, string(raw))

	e, err := Decode(raw)
	require.NoError(t, err)
	assert.True(t, at.Equal(e.StoredAt))
	assert.JSONEq(t, `{"price":1}`, string(e.Data))
}

func TestDecode_Corrupt(t *testing.T) {
	for _, raw := range []string{
		``,
		`not json`,
		`{"data":{"price":1}}`,
		`{"timestamp":1}`,
		`[1,2]`,
		`{"data":null,"timestamp":1709294400000}`,
		`{"data": null ,"timestamp":1}`,
	} {
		_, err := Decode([]byte(raw))
		assert.ErrorIs(t, err, ErrCorrupt, raw)
	}
}
