package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/tix-saga/internal/domain"
)

func TestGetOrSetJSON_MissLoadsAndStores(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := New(db)
	ctx := context.Background()

	key := KeyShow(1)
	mock.ExpectGet(key).RedisNil()
	mock.ExpectGet(key).RedisNil()
	mock.ExpectSet(key, `{"id":1,"theatre_id":2,"title":"Dune","price":100,"seats_available":10}`, time.Minute).SetVal("OK")

	calls := 0
	show, err := GetOrSetJSON(ctx, c, key, time.Minute, func(ctx context.Context) (domain.Show, error) {
		calls++
		return domain.Show{ID: 1, TheatreID: 2, Title: "Dune", Price: 100, SeatsAvailable: 10}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, int64(100), show.Price)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrSetJSON_HitSkipsLoader(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := New(db)

	key := KeyShow(7)
	mock.ExpectGet(key).SetVal(`{"id":7,"price":50,"seats_available":3}`)

	show, err := GetOrSetJSON(context.Background(), c, key, time.Minute, func(ctx context.Context) (domain.Show, error) {
		t.Fatal("loader must not run on a cache hit")
		return domain.Show{}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, show.SeatsAvailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrSetJSON_LoaderErrorNotCached(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := New(db)

	key := KeyShow(9)
	mock.ExpectGet(key).RedisNil()
	mock.ExpectGet(key).RedisNil()

	boom := errors.New("boom")
	_, err := GetOrSetJSON(context.Background(), c, key, time.Minute, func(ctx context.Context) (domain.Show, error) {
		return domain.Show{}, boom
	})

	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrSetJSON_NilCacheCallsLoader(t *testing.T) {
	var c *Cache

	v, err := GetOrSetJSON(context.Background(), c, "k", time.Minute, func(ctx context.Context) (int, error) {
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.NoError(t, c.InvalidateShow(context.Background(), 1, 2))
}

func TestInvalidateShow(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := New(db)

	mock.ExpectDel(KeyShow(1), KeyTheatreShows(2)).SetVal(2)
	require.NoError(t, c.InvalidateShow(context.Background(), 1, 2))

	mock.ExpectDel(KeyShow(3)).SetVal(1)
	require.NoError(t, c.InvalidateShow(context.Background(), 3, 0))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyStore(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewIdempotencyStore(db, time.Hour)
	ctx := context.Background()
	key := KeyIdemBooking("abc")

	mock.ExpectSetNX(key, "LOCK", time.Minute).SetVal(true)
	ok, err := s.AcquireLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectGet(key).SetVal("LOCK")
	_, found, err := s.GetResult(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)

	mock.ExpectSet(key, `RES:{"booking_id":1}`, time.Hour).SetVal("OK")
	require.NoError(t, s.SaveResult(ctx, key, `{"booking_id":1}`))

	mock.ExpectGet(key).SetVal(`RES:{"booking_id":1}`)
	payload, found, err := s.GetResult(ctx, key)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `{"booking_id":1}`, payload)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyStore_MarkUnresolved(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewIdempotencyStore(db, time.Hour)
	ctx := context.Background()
	key := KeyIdemBooking("abc")

	mock.ExpectSet(key, "UNRESOLVED", time.Hour).SetVal("OK")
	require.NoError(t, s.MarkUnresolved(ctx, key))

	mock.ExpectGet(key).SetVal("UNRESOLVED")
	_, found, err := s.GetResult(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)

	mock.ExpectGet(key).SetVal("UNRESOLVED")
	unresolved, err := s.IsUnresolved(ctx, key)
	require.NoError(t, err)
	assert.True(t, unresolved)

	mock.ExpectGet(key).SetVal("LOCK")
	unresolved, err = s.IsUnresolved(ctx, key)
	require.NoError(t, err)
	assert.False(t, unresolved)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestShowLocker_AcquiresAfterContention(t *testing.T) {
	db, mock := redismock.NewClientMock()
	l := NewShowLocker(db, 5*time.Second)
	l.retry = time.Millisecond
	l.token = func() string { return "tok" }

	key := KeyShowLock(4)
	mock.ExpectSetNX(key, "tok", 5*time.Second).SetVal(false)
	mock.ExpectSetNX(key, "tok", 5*time.Second).SetVal(true)

	unlock, err := l.Lock(context.Background(), 4)
	require.NoError(t, err)
	assert.NotNil(t, unlock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestShowLocker_TimesOut(t *testing.T) {
	db, mock := redismock.NewClientMock()
	l := NewShowLocker(db, 5*time.Second)
	l.retry = 50 * time.Millisecond
	l.token = func() string { return "tok" }

	mock.ExpectSetNX(KeyShowLock(4), "tok", 5*time.Second).SetVal(false)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	_, err := l.Lock(ctx, 4)
	assert.ErrorIs(t, err, ErrLockTimeout)
}

func TestSlidingWindowLimiter(t *testing.T) {
	db, mock := redismock.NewClientMock()
	l := NewSlidingWindowLimiter(db, "bookings", 2, time.Minute)
	l.member = func() string { return "m" }
	at := time.UnixMilli(1_700_000_000_000)
	l.now = func() time.Time { return at }

	key := KeyRateLimit("bookings", "user:7")
	args := []any{at.UnixMilli(), time.Minute.Milliseconds(), 2, "m"}

	mock.ExpectEvalSha(l.script.Hash(), []string{key}, args...).SetVal([]any{int64(1), int64(1), int64(0)})
	mock.ExpectEvalSha(l.script.Hash(), []string{key}, args...).SetVal([]any{int64(0), int64(3), int64(1500)})

	ok, _, err := l.Allow(context.Background(), "user:7")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, retry, err := l.Allow(context.Background(), "user:7")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1500*time.Millisecond, retry)

	assert.NoError(t, mock.ExpectationsWereMet())
}
