package postgresrepo

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirinyoku/tix-saga/internal/domain"
)

// CatalogRepo loads the static theatre/show catalog.
type CatalogRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *CatalogRepo) With(db DB) *CatalogRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *CatalogRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// UpsertTheatres inserts theatres, leaving rows that already exist
// untouched.
func (r *CatalogRepo) UpsertTheatres(ctx context.Context, theatres []domain.Theatre) error {
	const op = "postgresrepo.CatalogRepo.UpsertTheatres"

	if len(theatres) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, t := range theatres {
		batch.Queue(
			`INSERT INTO theatres(id, name, location)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (id) DO NOTHING`,
			t.ID, t.Name, t.Location,
		)
	}
	if err := r.handle().SendBatch(ctx, batch).Close(); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// UpsertShows inserts shows, leaving rows that already exist untouched so
// that a restart does not reset seat counters.
func (r *CatalogRepo) UpsertShows(ctx context.Context, shows []domain.Show) error {
	const op = "postgresrepo.CatalogRepo.UpsertShows"

	if len(shows) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, s := range shows {
		batch.Queue(
			`INSERT INTO shows(id, theatre_id, title, price, seats_available)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (id) DO NOTHING`,
			s.ID, s.TheatreID, s.Title, s.Price, s.SeatsAvailable,
		)
	}
	if err := r.handle().SendBatch(ctx, batch).Close(); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}
