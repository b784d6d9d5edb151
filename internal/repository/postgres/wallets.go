package postgresrepo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirinyoku/tix-saga/internal/domain"
	"github.com/kirinyoku/tix-saga/internal/repository"
)

// WalletRepo mutates balances with single conditional statements so that
// concurrent debits can never drive a balance below zero.
type WalletRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *WalletRepo) With(db DB) *WalletRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *WalletRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

func (r *WalletRepo) Get(ctx context.Context, userID int64) (*domain.Wallet, error) {
	const op = "postgresrepo.WalletRepo.Get"

	var w domain.Wallet
	if err := r.handle().QueryRow(ctx,
		`SELECT user_id, balance FROM wallets WHERE user_id = $1`,
		userID,
	).Scan(&w.UserID, &w.Balance); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &w, nil
}

func (r *WalletRepo) Exists(ctx context.Context, userID int64) (bool, error) {
	const op = "postgresrepo.WalletRepo.Exists"

	var ok bool
	if err := r.handle().QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM wallets WHERE user_id = $1)`,
		userID,
	).Scan(&ok); err != nil {
		return false, wrapDBErr(op, err)
	}

	return ok, nil
}

// Create inserts a zero-balance wallet if none exists.
func (r *WalletRepo) Create(ctx context.Context, userID int64) error {
	const op = "postgresrepo.WalletRepo.Create"

	if _, err := r.handle().Exec(ctx,
		`INSERT INTO wallets(user_id, balance) VALUES ($1, 0)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID,
	); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// Debit subtracts amount from the balance.
//
// Returns:
//   - *domain.Wallet: the wallet after the debit.
//   - error: repository.ErrInsufficientFunds if the balance is lower than
//     amount, repository.ErrNotFound if the wallet does not exist.
func (r *WalletRepo) Debit(ctx context.Context, userID, amount int64) (*domain.Wallet, error) {
	const op = "postgresrepo.WalletRepo.Debit"

	w := domain.Wallet{UserID: userID}
	err := r.handle().QueryRow(ctx,
		`UPDATE wallets SET balance = balance - $2
		 WHERE user_id = $1 AND balance >= $2
		 RETURNING balance`,
		userID, amount,
	).Scan(&w.Balance)
	if err == nil {
		return &w, nil
	}

	err = translateDBErr(err)
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	exists, xerr := r.Exists(ctx, userID)
	if xerr != nil {
		return nil, fmt.Errorf("%s: %w", op, xerr)
	}
	if exists {
		return nil, fmt.Errorf("%s: %w", op, repository.ErrInsufficientFunds)
	}

	return nil, fmt.Errorf("%s: %w", op, repository.ErrNotFound)
}

// Credit adds amount to the balance, creating the wallet if needed.
func (r *WalletRepo) Credit(ctx context.Context, userID, amount int64) (*domain.Wallet, error) {
	const op = "postgresrepo.WalletRepo.Credit"

	w := domain.Wallet{UserID: userID}
	if err := r.handle().QueryRow(ctx,
		`INSERT INTO wallets(user_id, balance) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE SET balance = wallets.balance + EXCLUDED.balance
		 RETURNING balance`,
		userID, amount,
	).Scan(&w.Balance); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &w, nil
}

func (r *WalletRepo) Delete(ctx context.Context, userID int64) error {
	const op = "postgresrepo.WalletRepo.Delete"

	tag, err := r.handle().Exec(ctx, `DELETE FROM wallets WHERE user_id = $1`, userID)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}

	return nil
}

func (r *WalletRepo) DeleteAll(ctx context.Context) error {
	const op = "postgresrepo.WalletRepo.DeleteAll"

	if _, err := r.handle().Exec(ctx, `DELETE FROM wallets`); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}
