package booking_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/tix-saga/internal/domain"
	"github.com/kirinyoku/tix-saga/internal/repository"
	"github.com/kirinyoku/tix-saga/internal/service/booking"
	"github.com/kirinyoku/tix-saga/internal/service/booking/bookingtest"
)

const (
	showID = int64(1)
	userID = int64(7)
)

type fixture struct {
	ledger   *bookingtest.Ledger
	users    *bookingtest.Users
	wallets  *bookingtest.Wallets
	notifier *bookingtest.Notifier
	svc      *booking.Service
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newFixture sets up one show priced 100 with 10 seats and a user holding 1000.
func newFixture(t *testing.T, opts ...booking.Option) *fixture {
	t.Helper()

	f := &fixture{
		ledger: bookingtest.NewLedger(domain.Show{
			ID: showID, TheatreID: 1, Title: "Hamlet", Price: 100, SeatsAvailable: 10,
		}),
		users:    bookingtest.NewUsers(userID),
		wallets:  bookingtest.NewWallets(map[int64]int64{userID: 1000}),
		notifier: &bookingtest.Notifier{},
	}

	opts = append([]booking.Option{booking.WithNotifier(f.notifier)}, opts...)
	f.svc = booking.New(f.ledger, f.users, f.wallets, discardLogger(), booking.Config{}, opts...)

	return f
}

func req(seats int) domain.BookingRequest {
	return domain.BookingRequest{ShowID: showID, UserID: userID, SeatsBooked: seats}
}

func TestCreate_Success(t *testing.T) {
	f := newFixture(t)

	b, err := f.svc.Create(context.Background(), req(3), "")
	require.NoError(t, err)

	assert.Equal(t, showID, b.ShowID)
	assert.Equal(t, userID, b.UserID)
	assert.Equal(t, 3, b.SeatsBooked)
	assert.Equal(t, 7, f.ledger.Show(showID).SeatsAvailable)
	assert.Equal(t, int64(700), f.wallets.Balance(userID))
	assert.Equal(t, 1, f.ledger.BookingCount())

	require.Len(t, f.notifier.Events, 1)
	assert.Equal(t, domain.BookingCreated, f.notifier.Events[0].Type)
	assert.Equal(t, int64(300), f.notifier.Events[0].Amount)
	require.Len(t, f.notifier.Shows, 1)
	assert.Equal(t, 7, f.notifier.Shows[0].SeatsAvailable)
}

func TestCreate_ThenCancelRestoresState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, req(3), "")
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, req(8), "")
	require.ErrorIs(t, err, booking.ErrSeatsUnavailable)
	assert.Equal(t, int64(700), f.wallets.Balance(userID))

	n, err := f.svc.CancelByUser(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, 10, f.ledger.Show(showID).SeatsAvailable)
	assert.Equal(t, int64(1000), f.wallets.Balance(userID))
	assert.Zero(t, f.ledger.BookingCount())
}

func TestCreate_MoreSeatsThanAvailable(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), req(11), "")
	require.ErrorIs(t, err, booking.ErrSeatsUnavailable)

	var se *booking.SeatsUnavailableError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 11, se.Requested)
	assert.Equal(t, 10, se.Available)

	assert.Zero(t, f.wallets.Debits)
	assert.Equal(t, 10, f.ledger.Show(showID).SeatsAvailable)
	assert.Zero(t, f.ledger.BookingCount())
}

func TestCreate_InvalidSeatCount(t *testing.T) {
	for _, seats := range []int{0, -1} {
		f := newFixture(t)

		_, err := f.svc.Create(context.Background(), req(seats), "")
		require.ErrorIs(t, err, booking.ErrInvalidSeatCount, "seats=%d", seats)

		assert.Zero(t, f.wallets.Debits)
		assert.Equal(t, int64(1000), f.wallets.Balance(userID))
		assert.Equal(t, 10, f.ledger.Show(showID).SeatsAvailable)
		assert.Zero(t, f.ledger.BookingCount())
	}
}

func TestCreate_ShowNotFoundSkipsUserCheck(t *testing.T) {
	users := &bookingtest.UsersMock{}
	wallets := &bookingtest.WalletsMock{}
	svc := booking.New(bookingtest.NewLedger(), users, wallets, discardLogger(), booking.Config{})

	_, err := svc.Create(context.Background(), req(1), "")
	require.ErrorIs(t, err, booking.ErrShowNotFound)

	users.AssertNotCalled(t, "UserExists", mock.Anything, mock.Anything)
	wallets.AssertNotCalled(t, "Debit", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreate_UnknownUser(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), domain.BookingRequest{
		ShowID: showID, UserID: 99, SeatsBooked: 1,
	}, "")
	require.ErrorIs(t, err, booking.ErrUserInvalid)
	assert.Equal(t, booking.KindRejected, booking.Kind(err))
	assert.Zero(t, f.wallets.Debits)
}

func TestCreate_UserCheckUnavailable(t *testing.T) {
	f := newFixture(t)
	f.users.Err = errors.New("dial tcp: connection refused")

	_, err := f.svc.Create(context.Background(), req(1), "")
	require.ErrorIs(t, err, booking.ErrUserCheckUnavailable)
	assert.NotErrorIs(t, err, booking.ErrUserInvalid)
	assert.Equal(t, booking.KindOperational, booking.Kind(err))
	assert.Zero(t, f.wallets.Debits)
}

func TestCreate_InsufficientFunds(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), domain.BookingRequest{
		ShowID: showID, UserID: userID, SeatsBooked: 10,
	}, "")
	require.NoError(t, err)

	f.ledger.SetSeats(showID, 10)

	_, err = f.svc.Create(context.Background(), req(1), "")
	require.ErrorIs(t, err, booking.ErrWalletOperationFailed)
	assert.ErrorIs(t, err, repository.ErrInsufficientFunds)

	assert.Equal(t, 10, f.ledger.Show(showID).SeatsAvailable)
	assert.Equal(t, 1, f.ledger.BookingCount())
}

func TestCreate_DebitsExactCost(t *testing.T) {
	users := &bookingtest.UsersMock{}
	users.On("UserExists", mock.Anything, userID).Return(true, nil).Once()

	wallets := &bookingtest.WalletsMock{}
	wallets.On("Debit", mock.Anything, userID, int64(400)).
		Return(&domain.Wallet{UserID: userID, Balance: 600}, nil).Once()

	ledger := bookingtest.NewLedger(domain.Show{ID: showID, Price: 100, SeatsAvailable: 10})
	svc := booking.New(ledger, users, wallets, discardLogger(), booking.Config{})

	_, err := svc.Create(context.Background(), req(4), "")
	require.NoError(t, err)

	users.AssertExpectations(t)
	wallets.AssertExpectations(t)
	wallets.AssertNotCalled(t, "Credit", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreate_LostSeatRaceRefunds(t *testing.T) {
	f := newFixture(t)
	f.ledger.BeforePlace = func() { f.ledger.SetSeats(showID, 1) }

	_, err := f.svc.Create(context.Background(), req(3), "")
	require.ErrorIs(t, err, booking.ErrSeatsUnavailable)

	assert.Equal(t, 1, f.wallets.Debits)
	assert.Equal(t, 1, f.wallets.Credits)
	assert.Equal(t, int64(1000), f.wallets.Balance(userID))
	assert.Equal(t, 1, f.ledger.Show(showID).SeatsAvailable)
	assert.Zero(t, f.ledger.BookingCount())
}

func TestCreate_ConcurrentReleaseDoesNotConflict(t *testing.T) {
	f := newFixture(t)
	f.ledger.BeforePlace = func() {
		require.NoError(t, f.ledger.ReleaseSeats(context.Background(), showID, 2))
	}

	b, err := f.svc.Create(context.Background(), req(3), "")
	require.NoError(t, err)

	assert.Equal(t, 3, b.SeatsBooked)
	assert.Equal(t, 9, f.ledger.Show(showID).SeatsAvailable)
	assert.Equal(t, int64(700), f.wallets.Balance(userID))
	assert.Zero(t, f.wallets.Credits)
	assert.Equal(t, 1, f.ledger.BookingCount())
}

func TestCreate_LocalWriteFailureKeepsDebit(t *testing.T) {
	f := newFixture(t)
	f.ledger.FailPlace = bookingtest.ErrInjected

	_, err := f.svc.Create(context.Background(), req(3), "")
	require.ErrorIs(t, err, bookingtest.ErrInjected)
	assert.ErrorIs(t, err, booking.ErrOutcomeUnknown)
	assert.Equal(t, booking.KindOperational, booking.Kind(err))

	assert.Equal(t, int64(700), f.wallets.Balance(userID))
	assert.Zero(t, f.wallets.Credits)
	assert.Empty(t, f.notifier.Events)
}

type busyLocker struct{}

func (busyLocker) Lock(ctx context.Context, _ int64) (func(), error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestCreate_ShowBusy(t *testing.T) {
	f := newFixture(t)
	f.svc = booking.New(f.ledger, f.users, f.wallets, discardLogger(),
		booking.Config{LockWait: 10 * time.Millisecond},
		booking.WithLocker(busyLocker{}),
	)

	_, err := f.svc.Create(context.Background(), req(1), "")
	require.ErrorIs(t, err, booking.ErrShowBusy)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, f.wallets.Debits)
}

type countingLocker struct {
	locked, unlocked int
}

func (l *countingLocker) Lock(context.Context, int64) (func(), error) {
	l.locked++
	return func() { l.unlocked++ }, nil
}

func TestCreate_ReleasesLock(t *testing.T) {
	lk := &countingLocker{}
	f := newFixture(t, booking.WithLocker(lk))

	_, err := f.svc.Create(context.Background(), req(2), "")
	require.NoError(t, err)

	_, err = f.svc.Create(context.Background(), req(20), "")
	require.Error(t, err)

	assert.Equal(t, 2, lk.locked)
	assert.Equal(t, 2, lk.unlocked)
}

type denyLimiter struct{ retry time.Duration }

func (l denyLimiter) Allow(context.Context, string) (bool, time.Duration, error) {
	return false, l.retry, nil
}

func TestCreate_RateLimited(t *testing.T) {
	f := newFixture(t, booking.WithLimiter(denyLimiter{retry: 3 * time.Second}))

	_, err := f.svc.Create(context.Background(), req(1), "user:7")
	require.ErrorIs(t, err, booking.ErrRateLimited)

	var rl *booking.RateLimitedError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, 3*time.Second, rl.RetryAfter)

	// An empty subject bypasses the limiter.
	_, err = f.svc.Create(context.Background(), req(1), "")
	require.NoError(t, err)
}

func TestCompensate_CreditFailureLeavesBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b, err := f.svc.Create(ctx, req(3), "")
	require.NoError(t, err)

	f.wallets.FailCreditAfter = 0

	err = f.svc.Compensate(ctx, *b)
	require.ErrorIs(t, err, booking.ErrWalletOperationFailed)

	var ce *booking.CompensationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, booking.StageCredit, ce.Stage)
	assert.Equal(t, b.ID, ce.BookingID)

	assert.Equal(t, 7, f.ledger.Show(showID).SeatsAvailable)
	assert.Equal(t, int64(700), f.wallets.Balance(userID))
	assert.Equal(t, 1, f.ledger.BookingCount())
}

func TestCompensate_UsesCurrentPrice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b := f.ledger.AddBooking(domain.Booking{ShowID: showID, UserID: userID, SeatsBooked: 2})

	require.NoError(t, f.svc.Compensate(ctx, b))
	assert.Equal(t, int64(1200), f.wallets.Balance(userID))
	assert.Equal(t, 12, f.ledger.Show(showID).SeatsAvailable)

	// Compensation never removes the row.
	assert.Equal(t, 1, f.ledger.BookingCount())

	require.Len(t, f.notifier.Events, 1)
	assert.Equal(t, domain.BookingCancelled, f.notifier.Events[0].Type)
}

func TestCompensate_ReleaseFailureStillRefunds(t *testing.T) {
	f := newFixture(t)
	f.ledger.FailRelease = bookingtest.ErrInjected

	b := f.ledger.AddBooking(domain.Booking{ShowID: showID, UserID: userID, SeatsBooked: 2})

	require.NoError(t, f.svc.Compensate(context.Background(), b))
	assert.Equal(t, int64(1200), f.wallets.Balance(userID))
	assert.Equal(t, 10, f.ledger.Show(showID).SeatsAvailable)

	assert.Empty(t, f.notifier.Shows)
	require.Len(t, f.notifier.Events, 1)
	assert.Equal(t, domain.BookingCancelled, f.notifier.Events[0].Type)
}

func TestCompensate_ShowLookupFailureIsOperational(t *testing.T) {
	f := newFixture(t)
	f.ledger.FailGetShow = bookingtest.ErrInjected

	b := f.ledger.AddBooking(domain.Booking{ShowID: showID, UserID: userID, SeatsBooked: 2})

	err := f.svc.Compensate(context.Background(), b)
	var ce *booking.CompensationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, booking.StageShow, ce.Stage)
	assert.ErrorIs(t, err, bookingtest.ErrInjected)
	assert.NotErrorIs(t, err, booking.ErrWalletOperationFailed)
	assert.Equal(t, booking.KindOperational, booking.Kind(err))
	assert.Zero(t, f.wallets.Credits)
}

func TestCancelByUser_ReleaseFailureRefundsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, req(2), "")
	require.NoError(t, err)
	require.Equal(t, int64(800), f.wallets.Balance(userID))

	f.ledger.FailRelease = bookingtest.ErrInjected

	n, err := f.svc.CancelByUser(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Zero(t, f.ledger.BookingCount())

	f.ledger.FailRelease = nil

	_, err = f.svc.CancelByUser(ctx, userID)
	require.ErrorIs(t, err, booking.ErrUserHasNoBookings)

	assert.Equal(t, int64(1000), f.wallets.Balance(userID))
	assert.Equal(t, 1, f.wallets.Credits)
}

func TestCancelByUser_PartialFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.svc.Create(ctx, req(2), "")
		require.NoError(t, err)
	}
	require.Equal(t, 4, f.ledger.Show(showID).SeatsAvailable)
	require.Equal(t, int64(400), f.wallets.Balance(userID))

	f.wallets.FailCreditAfter = 1

	n, err := f.svc.CancelByUser(ctx, userID)
	require.ErrorIs(t, err, booking.ErrWalletOperationFailed)
	assert.Equal(t, 1, n)

	left, err := f.svc.ListByUser(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, left, 2)

	assert.Equal(t, 6, f.ledger.Show(showID).SeatsAvailable)
	assert.Equal(t, int64(600), f.wallets.Balance(userID))
}

func TestCancelByUser_NoBookings(t *testing.T) {
	f := newFixture(t)

	n, err := f.svc.CancelByUser(context.Background(), userID)
	require.ErrorIs(t, err, booking.ErrUserHasNoBookings)
	assert.Zero(t, n)
	assert.Zero(t, f.wallets.Credits)
}

func TestCancelByUserAndShow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CancelByUserAndShow(ctx, userID, showID)
	require.ErrorIs(t, err, booking.ErrBookingNotFoundForPair)

	f.ledger.AddBooking(domain.Booking{ShowID: showID, UserID: userID, SeatsBooked: 1})
	f.ledger.AddBooking(domain.Booking{ShowID: 2, UserID: userID, SeatsBooked: 1})

	n, err := f.svc.CancelByUserAndShow(ctx, userID, showID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, f.ledger.BookingCount())
}

func TestCancelAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	n, err := f.svc.CancelAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.users = bookingtest.NewUsers(userID, 8)
	f.wallets = bookingtest.NewWallets(map[int64]int64{userID: 1000, 8: 500})
	f.svc = booking.New(f.ledger, f.users, f.wallets, discardLogger(), booking.Config{})

	_, err = f.svc.Create(ctx, req(2), "")
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, domain.BookingRequest{ShowID: showID, UserID: 8, SeatsBooked: 5}, "")
	require.NoError(t, err)

	n, err = f.svc.CancelAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Zero(t, f.ledger.BookingCount())
	assert.Equal(t, 10, f.ledger.Show(showID).SeatsAvailable)
	assert.Equal(t, int64(1000), f.wallets.Balance(userID))
	assert.Equal(t, int64(500), f.wallets.Balance(8))
}

func TestKind(t *testing.T) {
	assert.Equal(t, booking.KindRejected, booking.Kind(booking.ErrShowNotFound))
	assert.Equal(t, booking.KindRejected, booking.Kind(&booking.SeatsUnavailableError{}))
	assert.Equal(t, booking.KindRejected, booking.Kind(&booking.CompensationError{Stage: booking.StageCredit, Err: errors.New("x")}))
	assert.Equal(t, booking.KindOperational, booking.Kind(&booking.CompensationError{Stage: booking.StageShow, Err: errors.New("x")}))
	assert.Equal(t, booking.KindOperational, booking.Kind(booking.ErrOutcomeUnknown))
	assert.Equal(t, booking.KindOperational, booking.Kind(booking.ErrUserCheckUnavailable))
	assert.Equal(t, booking.KindOperational, booking.Kind(booking.ErrShowBusy))
	assert.Equal(t, booking.KindOperational, booking.Kind(errors.New("db down")))
	assert.Equal(t, "rejected", booking.KindRejected.String())
}
