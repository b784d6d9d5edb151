// Package account tears down a user across every ledger.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	walletclient "github.com/kirinyoku/tix-saga/internal/client/wallet"
	"github.com/kirinyoku/tix-saga/internal/domain"
	"github.com/kirinyoku/tix-saga/internal/service/booking"
)

type Directory interface {
	UserExists(ctx context.Context, userID int64) (bool, error)
	List(ctx context.Context) ([]domain.User, error)
	Delete(ctx context.Context, userID int64) error
	DeleteAll(ctx context.Context) error
}

type Bookings interface {
	CancelByUser(ctx context.Context, userID int64) (int, error)
}

type Wallets interface {
	Delete(ctx context.Context, userID int64) error
}

type Service struct {
	users    Directory
	bookings Bookings
	wallets  Wallets
	logger   *slog.Logger
}

func New(users Directory, bookings Bookings, wallets Wallets, logger *slog.Logger) *Service {
	return &Service{
		users:    users,
		bookings: bookings,
		wallets:  wallets,
		logger:   logger,
	}
}

// DeleteUser removes a user's bookings, then their wallet, then the
// directory record. Bookings must go before the wallet so that refunds have
// somewhere to land.
//
// A failure to cancel bookings is logged and does not stop the teardown; the
// bookings that could not be refunded are left behind. A missing wallet is
// not an error.
//
// Returns:
//   - error: account.ErrUserNotFound if the user does not exist, or the
//     wallet ledger error if the wallet could not be deleted. In the latter
//     case the directory record is kept.
func (s *Service) DeleteUser(ctx context.Context, userID int64) error {
	const op = "service.account.DeleteUser"

	ok, err := s.users.UserExists(ctx, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}

	if err := s.unwind(ctx, userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.users.Delete(ctx, userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.logger.Info("user deleted", slog.Int64("user_id", userID))

	return nil
}

// DeleteAll unwinds every known user and then clears the directory.
func (s *Service) DeleteAll(ctx context.Context) error {
	const op = "service.account.DeleteAll"

	users, err := s.users.List(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	for _, u := range users {
		if err := s.unwind(ctx, u.ID); err != nil {
			return fmt.Errorf("%s: user %d: %w", op, u.ID, err)
		}
	}

	if err := s.users.DeleteAll(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.logger.Info("all users deleted", slog.Int("count", len(users)))

	return nil
}

func (s *Service) unwind(ctx context.Context, userID int64) error {
	n, err := s.bookings.CancelByUser(ctx, userID)
	switch {
	case err == nil:
		s.logger.Debug("bookings cancelled", slog.Int64("user_id", userID), slog.Int("count", n))
	case errors.Is(err, booking.ErrUserHasNoBookings):
	default:
		s.logger.Error("teardown continues with bookings left behind",
			slog.Int64("user_id", userID),
			slog.Int("cancelled", n),
			slog.Any("error", err),
		)
	}

	if err := s.wallets.Delete(ctx, userID); err != nil && !errors.Is(err, walletclient.ErrNotFound) {
		return err
	}

	return nil
}
