package booking

import (
	"context"
	"time"

	"github.com/kirinyoku/tix-saga/internal/domain"
)

// Ledger is the local inventory and booking storage.
type Ledger interface {
	ShowExists(ctx context.Context, showID int64) (bool, error)
	GetShow(ctx context.Context, showID int64) (*domain.Show, error)
	// PlaceBooking inserts the booking and takes its seats atomically. It
	// fails with repository.ErrConflict if the seats are gone.
	PlaceBooking(ctx context.Context, show *domain.Show, userID int64, seats int) (*domain.Booking, error)
	ReleaseSeats(ctx context.Context, showID int64, seats int) error
	BookingsByUser(ctx context.Context, userID int64) ([]domain.Booking, error)
	BookingsByUserAndShow(ctx context.Context, userID, showID int64) ([]domain.Booking, error)
	AllBookings(ctx context.Context) ([]domain.Booking, error)
	DeleteBooking(ctx context.Context, bookingID int64) error
}

// Users is the remote identity directory.
type Users interface {
	UserExists(ctx context.Context, userID int64) (bool, error)
}

// Wallets is the remote wallet ledger.
type Wallets interface {
	Debit(ctx context.Context, userID, amount int64) (*domain.Wallet, error)
	Credit(ctx context.Context, userID, amount int64) (*domain.Wallet, error)
}

// Locker serializes bookings on one show.
type Locker interface {
	Lock(ctx context.Context, showID int64) (unlock func(), err error)
}

type Limiter interface {
	Allow(ctx context.Context, subject string) (bool, time.Duration, error)
}

// Notifier is told about committed changes. It must not block for long and
// its failures never fail a saga.
type Notifier interface {
	ShowChanged(ctx context.Context, show domain.Show)
	BookingChanged(ctx context.Context, ev domain.BookingEvent)
}

type nopNotifier struct{}

func (nopNotifier) ShowChanged(context.Context, domain.Show)            {}
func (nopNotifier) BookingChanged(context.Context, domain.BookingEvent) {}
