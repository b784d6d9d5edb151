package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kirinyoku/tix-saga/internal/domain"
	"github.com/kirinyoku/tix-saga/internal/repository"
)

type Config struct {
	// LockWait bounds how long Create waits for another booking on the
	// same show to finish.
	LockWait time.Duration
}

// Service coordinates bookings across the local ledger and the remote
// identity and wallet stores. It keeps no state between calls; every step
// goes through the collaborators, strictly in sequence.
type Service struct {
	ledger   Ledger
	users    Users
	wallets  Wallets
	locker   Locker
	limiter  Limiter
	notifier Notifier
	logger   *slog.Logger
	cfg      Config
}

type Option func(*Service)

func WithLocker(l Locker) Option {
	return func(s *Service) { s.locker = l }
}

func WithLimiter(l Limiter) Option {
	return func(s *Service) { s.limiter = l }
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

func New(
	ledger Ledger,
	users Users,
	wallets Wallets,
	logger *slog.Logger,
	cfg Config,
	opts ...Option,
) *Service {
	if cfg.LockWait <= 0 {
		cfg.LockWait = 5 * time.Second
	}

	s := &Service{
		ledger:   ledger,
		users:    users,
		wallets:  wallets,
		notifier: nopNotifier{},
		logger:   logger,
		cfg:      cfg,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Create runs the booking saga: show check, remote user check, seat check,
// seat count check, wallet debit, then the local insert and seat decrement.
// A failing step ends the saga and earlier steps are not undone, with one
// exception: if the seats are taken between the check and the insert, the
// debit is refunded.
//
// Parameters:
//   - ctx: request-scoped context.
//   - req: show, user and number of seats.
//   - rlKey: rate limit subject; empty disables limiting.
//
// Returns:
//   - *domain.Booking: the recorded booking.
//   - error: ErrShowNotFound, ErrUserInvalid, ErrUserCheckUnavailable,
//     ErrSeatsUnavailable, ErrInvalidSeatCount, ErrWalletOperationFailed,
//     ErrRateLimited, ErrShowBusy, ErrOutcomeUnknown after a debit whose
//     booking write failed, or a storage error.
func (s *Service) Create(ctx context.Context, req domain.BookingRequest, rlKey string) (*domain.Booking, error) {
	const op = "service.booking.Create"

	if s.limiter != nil && rlKey != "" {
		ok, retry, err := s.limiter.Allow(ctx, rlKey)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if !ok {
			return nil, fmt.Errorf("%s: %w", op, &RateLimitedError{RetryAfter: retry})
		}
	}

	exists, err := s.ledger.ShowExists(ctx, req.ShowID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !exists {
		return nil, fmt.Errorf("%s: %w", op, ErrShowNotFound)
	}

	if err := s.checkUser(ctx, req.UserID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	unlock, err := s.lockShow(ctx, req.ShowID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer unlock()

	show, err := s.ledger.GetShow(ctx, req.ShowID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrShowNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if show.SeatsAvailable < req.SeatsBooked {
		return nil, fmt.Errorf("%s: %w", op, &SeatsUnavailableError{
			ShowID:    show.ID,
			Requested: req.SeatsBooked,
			Available: show.SeatsAvailable,
		})
	}

	if req.SeatsBooked <= 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidSeatCount)
	}

	cost := show.Cost(req.SeatsBooked)
	if _, err := s.wallets.Debit(ctx, req.UserID, cost); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrWalletOperationFailed, err)
	}

	s.logger.Debug("wallet debited",
		slog.Int64("user_id", req.UserID),
		slog.Int64("show_id", show.ID),
		slog.Int64("amount", cost),
	)

	b, err := s.ledger.PlaceBooking(ctx, show, req.UserID, req.SeatsBooked)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			// The insert rolled back, so the debit is the only committed step.
			s.refund(ctx, req.UserID, cost, show.ID)
			return nil, fmt.Errorf("%s: %w", op, ErrSeatsUnavailable)
		}

		// The outcome of the local write is unknown; refunding could pay
		// twice, so the debit is left for reconciliation.
		s.logger.Error("wallet debited but booking not recorded",
			slog.Int64("user_id", req.UserID),
			slog.Int64("show_id", show.ID),
			slog.Int("seats", req.SeatsBooked),
			slog.Int64("amount", cost),
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("%s: %w: %w", op, ErrOutcomeUnknown, err)
	}

	show.SeatsAvailable -= req.SeatsBooked
	s.notifier.ShowChanged(ctx, *show)
	s.notifier.BookingChanged(ctx, bookingEvent(domain.BookingCreated, *b, cost))

	return b, nil
}

// Compensate reverses a single booking: it credits the refund and then
// returns the seats to the show. Once the credit has succeeded the booking
// counts as compensated; a failed seat release is logged for
// reconciliation and does not fail the call, so the caller deletes the row
// and the refund is never paid twice. The booking row itself is never
// touched.
//
// Returns:
//   - error: *CompensationError. Stage StageCredit matches
//     ErrWalletOperationFailed; StageShow is an operational failure.
func (s *Service) Compensate(ctx context.Context, b domain.Booking) error {
	const op = "service.booking.Compensate"

	show, err := s.ledger.GetShow(ctx, b.ShowID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, &CompensationError{BookingID: b.ID, Stage: StageShow, Err: err})
	}

	refund := show.Cost(b.SeatsBooked)
	if _, err := s.wallets.Credit(ctx, b.UserID, refund); err != nil {
		return fmt.Errorf("%s: %w", op, &CompensationError{BookingID: b.ID, Stage: StageCredit, Err: err})
	}

	if err := s.ledger.ReleaseSeats(ctx, b.ShowID, b.SeatsBooked); err != nil {
		s.logger.Error("refund issued but seats not released",
			slog.Int64("booking_id", b.ID),
			slog.Int64("show_id", b.ShowID),
			slog.Int("seats", b.SeatsBooked),
			slog.Any("error", err),
		)
	} else {
		show.SeatsAvailable += b.SeatsBooked
		s.notifier.ShowChanged(ctx, *show)
	}

	s.notifier.BookingChanged(ctx, bookingEvent(domain.BookingCancelled, b, refund))

	return nil
}

// CancelByUser cancels every booking of userID.
//
// Returns:
//   - int: number of bookings cancelled before returning.
//   - error: ErrUserHasNoBookings, or ErrWalletOperationFailed on the first
//     booking that could not be compensated. Earlier bookings stay cancelled.
func (s *Service) CancelByUser(ctx context.Context, userID int64) (int, error) {
	const op = "service.booking.CancelByUser"

	bookings, err := s.ledger.BookingsByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	if len(bookings) == 0 {
		return 0, fmt.Errorf("%s: %w", op, ErrUserHasNoBookings)
	}

	n, err := s.cancelEach(ctx, bookings)
	if err != nil {
		return n, fmt.Errorf("%s: %w", op, err)
	}

	return n, nil
}

// CancelByUserAndShow cancels the bookings of userID for showID.
//
// Returns:
//   - error: ErrBookingNotFoundForPair if there are none; otherwise as
//     CancelByUser.
func (s *Service) CancelByUserAndShow(ctx context.Context, userID, showID int64) (int, error) {
	const op = "service.booking.CancelByUserAndShow"

	bookings, err := s.ledger.BookingsByUserAndShow(ctx, userID, showID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	if len(bookings) == 0 {
		return 0, fmt.Errorf("%s: %w", op, ErrBookingNotFoundForPair)
	}

	n, err := s.cancelEach(ctx, bookings)
	if err != nil {
		return n, fmt.Errorf("%s: %w", op, err)
	}

	return n, nil
}

// CancelAll cancels every booking in the ledger. An empty ledger is a
// success.
func (s *Service) CancelAll(ctx context.Context) (int, error) {
	const op = "service.booking.CancelAll"

	bookings, err := s.ledger.AllBookings(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	n, err := s.cancelEach(ctx, bookings)
	if err != nil {
		return n, fmt.Errorf("%s: %w", op, err)
	}

	return n, nil
}

func (s *Service) ListByUser(ctx context.Context, userID int64) ([]domain.Booking, error) {
	const op = "service.booking.ListByUser"

	bookings, err := s.ledger.BookingsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return bookings, nil
}

// cancelEach compensates and deletes bookings one at a time, stopping at the
// first failure.
func (s *Service) cancelEach(ctx context.Context, bookings []domain.Booking) (int, error) {
	for i, b := range bookings {
		if err := s.Compensate(ctx, b); err != nil {
			s.logger.Warn("batch cancellation aborted",
				slog.Int64("booking_id", b.ID),
				slog.Int("cancelled", i),
				slog.Int("remaining", len(bookings)-i),
				slog.Any("error", err),
			)
			return i, err
		}

		if err := s.ledger.DeleteBooking(ctx, b.ID); err != nil {
			s.logger.Error("booking compensated but not deleted",
				slog.Int64("booking_id", b.ID),
				slog.Any("error", err),
			)
			return i, err
		}
	}

	return len(bookings), nil
}

func (s *Service) checkUser(ctx context.Context, userID int64) error {
	ok, err := s.users.UserExists(ctx, userID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUserCheckUnavailable, err)
	}
	if !ok {
		return ErrUserInvalid
	}

	return nil
}

func (s *Service) lockShow(ctx context.Context, showID int64) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.LockWait)
	defer cancel()

	unlock, err := s.locker.Lock(ctx, showID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrShowBusy, err)
	}

	return unlock, nil
}

func (s *Service) refund(ctx context.Context, userID, amount, showID int64) {
	if _, err := s.wallets.Credit(ctx, userID, amount); err != nil {
		s.logger.Error("refund after lost seat race failed",
			slog.Int64("user_id", userID),
			slog.Int64("show_id", showID),
			slog.Int64("amount", amount),
			slog.Any("error", err),
		)
	}
}

func bookingEvent(t domain.BookingEventType, b domain.Booking, amount int64) domain.BookingEvent {
	return domain.BookingEvent{
		ID:        uuid.New(),
		Type:      t,
		BookingID: b.ID,
		ShowID:    b.ShowID,
		UserID:    b.UserID,
		Seats:     b.SeatsBooked,
		Amount:    amount,
		At:        time.Now().UTC(),
	}
}
