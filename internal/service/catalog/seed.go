package catalog

import (
	"context"
	"fmt"

	"github.com/kirinyoku/tix-saga/internal/domain"
	postgresrepo "github.com/kirinyoku/tix-saga/internal/repository/postgres"
	redisrepo "github.com/kirinyoku/tix-saga/internal/repository/redis"
	"github.com/kirinyoku/tix-saga/internal/uow"
)

// Seeder loads the static theatre and show catalog into the inventory
// ledger.
type Seeder struct {
	store *postgresrepo.Store
	cache *redisrepo.Cache
	uow   *uow.UoW
}

func NewSeeder(store *postgresrepo.Store, cache *redisrepo.Cache) *Seeder {
	return &Seeder{
		store: store,
		cache: cache,
		uow:   uow.NewUoW(store),
	}
}

// Seed inserts the static catalog in one transaction. Rows that already
// exist are kept, so seeding on every start is safe.
//
// Parameters:
//   - ctx: request-scoped context.
//   - theatres, shows: the rows to insert.
//
// Returns:
//   - error: repository.ErrCheckViolation if a show has a negative price or
//     seat count.
func (s *Seeder) Seed(ctx context.Context, theatres []domain.Theatre, shows []domain.Show) error {
	const op = "service.catalog.Seed"

	if len(theatres) == 0 && len(shows) == 0 {
		return nil
	}

	err := s.uow.Do(ctx, func(ctx context.Context, tx postgresrepo.DB, after func(uow.AfterCommit)) error {
		if err := s.store.Catalog().With(tx).UpsertTheatres(ctx, theatres); err != nil {
			return err
		}

		if err := s.store.Catalog().With(tx).UpsertShows(ctx, shows); err != nil {
			return err
		}

		after(func(ctx context.Context) {
			ids := make([]int64, 0, len(theatres)+len(shows))
			for _, t := range theatres {
				ids = append(ids, t.ID)
			}
			for _, sh := range shows {
				ids = append(ids, sh.TheatreID)
			}
			_ = s.cache.InvalidateCatalog(ctx, ids...)
		})

		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
