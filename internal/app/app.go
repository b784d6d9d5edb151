package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/kirinyoku/tix-saga/internal/broker/rabbitmq"
	"github.com/kirinyoku/tix-saga/internal/client/identity"
	walletclient "github.com/kirinyoku/tix-saga/internal/client/wallet"
	"github.com/kirinyoku/tix-saga/internal/config"
	"github.com/kirinyoku/tix-saga/internal/postgres"
	"github.com/kirinyoku/tix-saga/internal/redis"
	postgresrepo "github.com/kirinyoku/tix-saga/internal/repository/postgres"
	redisrepo "github.com/kirinyoku/tix-saga/internal/repository/redis"
	"github.com/kirinyoku/tix-saga/internal/service"
	"github.com/kirinyoku/tix-saga/internal/service/booking"
	"github.com/kirinyoku/tix-saga/internal/service/catalog"
	"github.com/kirinyoku/tix-saga/internal/service/notify"
	httpgin "github.com/kirinyoku/tix-saga/internal/transport/http/gin"
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server
	pool       *pgxpool.Pool
	rdb        *goredis.Client
	publisher  *rabbitmq.Publisher
	pubsub     *redisrepo.ShowsPubSub
	notifier   *notify.Notifier
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	pgxPool, err := postgres.New(ctx, postgres.Config{
		DSN:      cfg.Postgres.DSN(),
		MaxConns: cfg.Postgres.MaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres: %w", err)
	}

	if err := postgres.Migrate(ctx, pgxPool); err != nil {
		pgxPool.Close()
		return nil, fmt.Errorf("failed to migrate postgres: %w", err)
	}

	rdb, err := redis.New(ctx, redis.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		pgxPool.Close()
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	a := &App{
		cfg:    cfg,
		logger: logger,
		pool:   pgxPool,
		rdb:    rdb,
	}

	// Repositories
	store := postgresrepo.NewStore(pgxPool)
	cache := redisrepo.New(rdb)
	a.pubsub = redisrepo.NewShowsPubSub(rdb)
	limiter := redisrepo.NewSlidingWindowLimiter(rdb, "bookings", cfg.Limits.BookingsPerMinute, time.Minute)
	locker := redisrepo.NewShowLocker(rdb, cfg.Limits.ShowLockTTL)
	idempotencyStore := redisrepo.NewIdempotencyStore(rdb, cfg.Limits.IdempotencyTTL)

	if err := seedCatalog(ctx, store, cache, cfg.Catalog, logger); err != nil {
		a.close()
		return nil, err
	}

	// Events
	var events notify.EventPublisher
	if cfg.AMQP.URL != "" {
		a.publisher, err = rabbitmq.NewPublisher(rabbitmq.Config{
			URL:      cfg.AMQP.URL,
			Exchange: cfg.AMQP.Exchange,
		})
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to initialize rabbitmq: %w", err)
		}
		events = a.publisher
	} else {
		logger.Info("AMQP_URL not set, booking events are not published")
	}
	a.notifier = notify.New(cache, a.pubsub, events, logger)

	// Remote ledgers
	identityClient := identity.New(cfg.Remote.UserServiceURL, cfg.Remote.Timeout)
	walletClient := walletclient.New(cfg.Remote.WalletServiceURL, cfg.Remote.Timeout)

	// Services
	services := service.NewServices(
		store,
		cache,
		identityClient,
		walletClient,
		logger,
		service.Config{
			Booking: booking.Config{LockWait: cfg.Limits.ShowLockWait},
		},
		booking.WithLocker(locker),
		booking.WithLimiter(limiter),
		booking.WithNotifier(a.notifier),
	)

	router := httpgin.NewRouter(services, idempotencyStore, logger)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return a, nil
}

func seedCatalog(
	ctx context.Context,
	store *postgresrepo.Store,
	cache *redisrepo.Cache,
	cfg config.CatalogConfig,
	logger *slog.Logger,
) error {
	theatres, shows, err := catalog.LoadFiles(cfg.TheatresFile, cfg.ShowsFile)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	if err := catalog.NewSeeder(store, cache).Seed(ctx, theatres, shows); err != nil {
		return fmt.Errorf("failed to seed catalog: %w", err)
	}

	if len(theatres)+len(shows) > 0 {
		logger.Info("catalog seeded", slog.Int("theatres", len(theatres)), slog.Int("shows", len(shows)))
	}

	return nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	defer a.close()

	g, gCtx := errgroup.WithContext(ctx)

	// HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	// Cross-instance cache invalidation
	g.Go(func() error {
		err := a.pubsub.Subscribe(gCtx, a.notifier.InvalidateOnChange)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("show change subscriber: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	return g.Wait()
}

func (a *App) close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("rabbitmq close", slog.Any("error", err))
		}
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
