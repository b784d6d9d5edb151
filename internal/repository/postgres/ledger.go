package postgresrepo

import (
	"context"

	"github.com/kirinyoku/tix-saga/internal/domain"
)

// BookingLedger exposes the inventory and booking tables as the single
// local store the booking orchestrator works against.
type BookingLedger struct {
	shows    *ShowRepo
	bookings *BookingRepo
}

func NewBookingLedger(s *Store) *BookingLedger {
	return &BookingLedger{
		shows:    s.Shows(),
		bookings: s.Bookings(),
	}
}

func (l *BookingLedger) ShowExists(ctx context.Context, showID int64) (bool, error) {
	return l.shows.ShowExists(ctx, showID)
}

func (l *BookingLedger) GetShow(ctx context.Context, showID int64) (*domain.Show, error) {
	return l.shows.GetShow(ctx, showID)
}

func (l *BookingLedger) PlaceBooking(
	ctx context.Context,
	show *domain.Show,
	userID int64,
	seats int,
) (*domain.Booking, error) {
	return l.bookings.Place(ctx, show, userID, seats)
}

func (l *BookingLedger) ReleaseSeats(ctx context.Context, showID int64, seats int) error {
	return l.shows.ReleaseSeats(ctx, showID, seats)
}

func (l *BookingLedger) BookingsByUser(ctx context.Context, userID int64) ([]domain.Booking, error) {
	return l.bookings.ListByUser(ctx, userID)
}

func (l *BookingLedger) BookingsByUserAndShow(ctx context.Context, userID, showID int64) ([]domain.Booking, error) {
	return l.bookings.ListByUserAndShow(ctx, userID, showID)
}

func (l *BookingLedger) AllBookings(ctx context.Context) ([]domain.Booking, error) {
	return l.bookings.ListAll(ctx)
}

func (l *BookingLedger) DeleteBooking(ctx context.Context, bookingID int64) error {
	return l.bookings.Delete(ctx, bookingID)
}
