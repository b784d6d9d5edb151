package httpgin_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/tix-saga/internal/domain"
	redisrepo "github.com/kirinyoku/tix-saga/internal/repository/redis"
	"github.com/kirinyoku/tix-saga/internal/service"
	"github.com/kirinyoku/tix-saga/internal/service/account"
	"github.com/kirinyoku/tix-saga/internal/service/booking"
	"github.com/kirinyoku/tix-saga/internal/service/booking/bookingtest"
	"github.com/kirinyoku/tix-saga/internal/service/catalog"
	"github.com/kirinyoku/tix-saga/internal/service/users"
	"github.com/kirinyoku/tix-saga/internal/service/wallet"
	httpgin "github.com/kirinyoku/tix-saga/internal/transport/http/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type env struct {
	ledger  *bookingtest.Ledger
	users   *bookingtest.Users
	wallets *bookingtest.Wallets
	router  *gin.Engine
}

func newEnv(t *testing.T, idem *redisrepo.IdempotencyStore) *env {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	e := &env{
		ledger:  bookingtest.NewLedger(domain.Show{ID: 1, TheatreID: 1, Title: "Hamlet", Price: 100, SeatsAvailable: 10}),
		users:   bookingtest.NewUsers(7),
		wallets: bookingtest.NewWallets(map[int64]int64{7: 1000}),
	}
	e.ledger.AddTheatre(domain.Theatre{ID: 1, Name: "Globe", Location: "London"})

	bookings := booking.New(e.ledger, e.users, e.wallets, logger, booking.Config{})
	usersSvc := users.New(e.users)

	svcs := &service.Services{
		Catalog:  catalog.New(e.ledger, nil, catalog.Config{}),
		Bookings: bookings,
		Users:    usersSvc,
		Wallets:  wallet.New(e.wallets, usersSvc, logger),
		Accounts: account.New(usersSvc, bookings, e.wallets, logger),
	}
	e.router = httpgin.NewRouter(svcs, idem, logger)

	return e
}

func (e *env) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	return w
}

func bookingBody(seats int) map[string]any {
	return map[string]any{"show_id": 1, "user_id": 7, "seats_booked": seats}
}

func TestHealthz(t *testing.T) {
	e := newEnv(t, nil)

	w := e.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestCatalog(t *testing.T) {
	e := newEnv(t, nil)

	w := e.do(t, http.MethodGet, "/theatres", nil)
	require.Equal(t, http.StatusOK, w.Code)
	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)

	var theatres []domain.Theatre
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &theatres))
	assert.Len(t, theatres, 1)

	w = e.do(t, http.MethodGet, "/theatres", nil, "If-None-Match", etag)
	assert.Equal(t, http.StatusNotModified, w.Code)

	w = e.do(t, http.MethodGet, "/shows/theatres/1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodGet, "/shows/theatres/9", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, http.MethodGet, "/shows/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var show domain.Show
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &show))
	assert.Equal(t, 10, show.SeatsAvailable)

	w = e.do(t, http.MethodGet, "/shows/99", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, http.MethodGet, "/shows/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateBooking(t *testing.T) {
	e := newEnv(t, nil)

	w := e.do(t, http.MethodPost, "/bookings", bookingBody(3))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var b domain.Booking
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b))
	assert.Equal(t, 3, b.SeatsBooked)
	assert.Equal(t, int64(700), e.wallets.Balance(7))

	w = e.do(t, http.MethodGet, "/bookings/users/7", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []domain.Booking
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 1)
}

func TestCreateBooking_Rejections(t *testing.T) {
	cases := []struct {
		name string
		body map[string]any
		want int
	}{
		{"too many seats", bookingBody(11), http.StatusBadRequest},
		{"zero seats", bookingBody(0), http.StatusBadRequest},
		{"unknown show", map[string]any{"show_id": 9, "user_id": 7, "seats_booked": 1}, http.StatusBadRequest},
		{"unknown user", map[string]any{"show_id": 1, "user_id": 9, "seats_booked": 1}, http.StatusBadRequest},
		{"whole balance", bookingBody(10), http.StatusOK},
		{"missing ids", map[string]any{"seats_booked": 1}, http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t, nil)

			w := e.do(t, http.MethodPost, "/bookings", tc.body)
			assert.Equal(t, tc.want, w.Code, w.Body.String())
		})
	}
}

func TestCreateBooking_DirectoryDown(t *testing.T) {
	e := newEnv(t, nil)
	e.users.Err = errors.New("connection refused")

	w := e.do(t, http.MethodPost, "/bookings", bookingBody(1))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, int64(1000), e.wallets.Balance(7))
}

func TestCreateBooking_IdempotentReplay(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	key := redisrepo.KeyIdemBooking("abc")
	mock.ExpectGet(key).SetVal(`RES:{"id":42,"show_id":1,"user_id":7,"seats_booked":3}`)

	e := newEnv(t, redisrepo.NewIdempotencyStore(rdb, 0))

	w := e.do(t, http.MethodPost, "/bookings", bookingBody(3), "Idempotency-Key", "abc")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abc", w.Header().Get("Idempotency-Key"))

	var b domain.Booking
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b))
	assert.Equal(t, int64(42), b.ID)

	assert.Equal(t, int64(1000), e.wallets.Balance(7))
	assert.Zero(t, e.ledger.BookingCount())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateBooking_UnknownOutcomeHoldsKey(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	key := redisrepo.KeyIdemBooking("abc")

	mock.ExpectGet(key).RedisNil()
	mock.ExpectSetNX(key, "LOCK", 60*time.Second).SetVal(true)
	mock.ExpectSet(key, "UNRESOLVED", 24*time.Hour).SetVal("OK")

	e := newEnv(t, redisrepo.NewIdempotencyStore(rdb, 24*time.Hour))
	e.ledger.FailPlace = bookingtest.ErrInjected

	w := e.do(t, http.MethodPost, "/bookings", bookingBody(3), "Idempotency-Key", "abc")
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, int64(700), e.wallets.Balance(7))

	mock.ExpectGet(key).SetVal("UNRESOLVED")
	mock.ExpectSetNX(key, "LOCK", 60*time.Second).SetVal(false)
	mock.ExpectGet(key).SetVal("UNRESOLVED")
	mock.ExpectGet(key).SetVal("UNRESOLVED")

	e.ledger.FailPlace = nil

	w = e.do(t, http.MethodPost, "/bookings", bookingBody(3), "Idempotency-Key", "abc")
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 1, e.wallets.Debits)
	assert.Equal(t, int64(700), e.wallets.Balance(7))
	assert.Zero(t, e.ledger.BookingCount())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelBookings(t *testing.T) {
	e := newEnv(t, nil)

	w := e.do(t, http.MethodDelete, "/bookings/users/7", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, http.MethodDelete, "/bookings/users/7/shows/1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, http.MethodDelete, "/bookings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"cancelled":0}`, w.Body.String())

	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/bookings", bookingBody(3)).Code)

	w = e.do(t, http.MethodDelete, "/bookings/users/7/shows/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"cancelled":1}`, w.Body.String())
	assert.Equal(t, int64(1000), e.wallets.Balance(7))
	assert.Equal(t, 10, e.ledger.Show(1).SeatsAvailable)
}

func TestCancelBookings_RefundFailure(t *testing.T) {
	e := newEnv(t, nil)

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/bookings", bookingBody(1)).Code)
	}
	e.wallets.FailCreditAfter = 1

	w := e.do(t, http.MethodDelete, "/bookings/users/7", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"wallet operation failed","cancelled":1}`, w.Body.String())
	assert.Equal(t, 1, e.ledger.BookingCount())
}

func TestCancelBookings_ShowLookupFailure(t *testing.T) {
	e := newEnv(t, nil)

	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/bookings", bookingBody(2)).Code)
	e.ledger.FailGetShow = bookingtest.ErrInjected

	w := e.do(t, http.MethodDelete, "/bookings/users/7", nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, 1, e.ledger.BookingCount())
	assert.Equal(t, int64(800), e.wallets.Balance(7))
}

func TestUsers(t *testing.T) {
	e := newEnv(t, nil)

	w := e.do(t, http.MethodPost, "/users", map[string]string{"name": "Ada", "email": "ada@example.com"})
	require.Equal(t, http.StatusCreated, w.Code)

	var u domain.User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &u))

	w = e.do(t, http.MethodPost, "/users", map[string]string{"name": "Ada", "email": "ada@example.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodPost, "/users", map[string]string{"name": "Bob", "email": "nope"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodGet, "/users/99", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, http.MethodGet, "/users", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []domain.User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 2)
}

func TestDeleteUser_Teardown(t *testing.T) {
	e := newEnv(t, nil)

	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/bookings", bookingBody(4)).Code)

	w := e.do(t, http.MethodDelete, "/users/7", nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	assert.Zero(t, e.ledger.BookingCount())
	assert.Equal(t, 10, e.ledger.Show(1).SeatsAvailable)

	w = e.do(t, http.MethodGet, "/users/7", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, http.MethodGet, "/wallets/7", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, http.MethodDelete, "/users/7", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWallets(t *testing.T) {
	e := newEnv(t, nil)

	w := e.do(t, http.MethodPut, "/wallets/7", map[string]any{"action": "debit", "amount": 5000})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodPut, "/wallets/7", map[string]any{"action": "credit", "amount": 500})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":7,"balance":1500}`, w.Body.String())

	w = e.do(t, http.MethodPut, "/wallets/7", map[string]any{"action": "steal", "amount": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodPut, "/wallets/99", map[string]any{"action": "credit", "amount": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodGet, "/wallets/99", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, http.MethodDelete, "/wallets/7", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = e.do(t, http.MethodDelete, "/wallets/7", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
