package service

import (
	"log/slog"

	postgres "github.com/kirinyoku/tix-saga/internal/repository/postgres"
	redis "github.com/kirinyoku/tix-saga/internal/repository/redis"
	"github.com/kirinyoku/tix-saga/internal/service/account"
	"github.com/kirinyoku/tix-saga/internal/service/booking"
	"github.com/kirinyoku/tix-saga/internal/service/catalog"
	"github.com/kirinyoku/tix-saga/internal/service/users"
	"github.com/kirinyoku/tix-saga/internal/service/wallet"
)

type Services struct {
	Catalog  *catalog.Service
	Bookings *booking.Service
	Users    *users.Service
	Wallets  *wallet.Service
	Accounts *account.Service
}

type Config struct {
	Catalog catalog.Config
	Booking booking.Config
}

// WalletLedger is the remote wallet ledger as seen by the orchestrators.
type WalletLedger interface {
	booking.Wallets
	account.Wallets
}

// NewServices wires every ledger's service over store. The booking and
// account orchestrators reach the identity directory and the wallet ledger
// only through identity and wallets.
func NewServices(
	store *postgres.Store,
	cache *redis.Cache,
	identity booking.Users,
	wallets WalletLedger,
	logger *slog.Logger,
	cfg Config,
	bookingOpts ...booking.Option,
) *Services {
	usersSvc := users.New(store.Users())
	bookings := booking.New(
		postgres.NewBookingLedger(store),
		identity,
		wallets,
		logger,
		cfg.Booking,
		bookingOpts...,
	)

	return &Services{
		Catalog:  catalog.New(store.Shows(), cache, cfg.Catalog),
		Bookings: bookings,
		Users:    usersSvc,
		Wallets:  wallet.New(store.Wallets(), usersSvc, logger),
		Accounts: account.New(usersSvc, bookings, wallets, logger),
	}
}
