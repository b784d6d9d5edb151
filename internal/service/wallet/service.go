package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kirinyoku/tix-saga/internal/domain"
	"github.com/kirinyoku/tix-saga/internal/repository"
)

// Repository is the wallet ledger storage.
type Repository interface {
	Get(ctx context.Context, userID int64) (*domain.Wallet, error)
	Create(ctx context.Context, userID int64) error
	Debit(ctx context.Context, userID, amount int64) (*domain.Wallet, error)
	Credit(ctx context.Context, userID, amount int64) (*domain.Wallet, error)
	Delete(ctx context.Context, userID int64) error
	DeleteAll(ctx context.Context) error
}

// Directory answers whether a user is registered.
type Directory interface {
	UserExists(ctx context.Context, userID int64) (bool, error)
}

type Service struct {
	repo   Repository
	users  Directory
	logger *slog.Logger
}

func New(repo Repository, users Directory, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		users:  users,
		logger: logger,
	}
}

func (s *Service) Get(ctx context.Context, userID int64) (*domain.Wallet, error) {
	const op = "service.wallet.Get"

	w, err := s.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrWalletNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return w, nil
}

// Transact applies a debit or credit to the user's wallet, creating an empty
// wallet first if the user has none.
//
// Parameters:
//   - ctx: request-scoped context.
//   - userID: wallet owner; must exist in the directory.
//   - action: domain.WalletDebit or domain.WalletCredit.
//   - amount: non-negative amount in minor units.
//
// Returns:
//   - *domain.Wallet: the wallet after the operation.
//   - error: wallet.ErrUserInvalid, wallet.ErrInsufficientFunds,
//     wallet.ErrInvalidAmount or wallet.ErrInvalidAction.
func (s *Service) Transact(
	ctx context.Context,
	userID int64,
	action domain.WalletAction,
	amount int64,
) (*domain.Wallet, error) {
	const op = "service.wallet.Transact"

	if action != domain.WalletDebit && action != domain.WalletCredit {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidAction)
	}
	if amount < 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidAmount)
	}

	ok, err := s.users.UserExists(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, ErrUserInvalid)
	}

	var w *domain.Wallet
	switch action {
	case domain.WalletCredit:
		w, err = s.repo.Credit(ctx, userID, amount)
	case domain.WalletDebit:
		w, err = s.debit(ctx, userID, amount)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.logger.Debug("wallet updated",
		slog.Int64("user_id", userID),
		slog.String("action", string(action)),
		slog.Int64("amount", amount),
		slog.Int64("balance", w.Balance),
	)

	return w, nil
}

func (s *Service) debit(ctx context.Context, userID, amount int64) (*domain.Wallet, error) {
	w, err := s.repo.Debit(ctx, userID, amount)
	switch {
	case err == nil:
		return w, nil
	case errors.Is(err, repository.ErrInsufficientFunds):
		return nil, ErrInsufficientFunds
	case !errors.Is(err, repository.ErrNotFound):
		return nil, err
	}

	if err := s.repo.Create(ctx, userID); err != nil {
		return nil, err
	}

	w, err = s.repo.Debit(ctx, userID, amount)
	if errors.Is(err, repository.ErrInsufficientFunds) {
		return nil, ErrInsufficientFunds
	}

	return w, err
}

func (s *Service) Delete(ctx context.Context, userID int64) error {
	const op = "service.wallet.Delete"

	if err := s.repo.Delete(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrWalletNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Service) DeleteAll(ctx context.Context) error {
	const op = "service.wallet.DeleteAll"

	if err := s.repo.DeleteAll(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
