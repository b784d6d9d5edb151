package postgresrepo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirinyoku/tix-saga/internal/domain"
	"github.com/kirinyoku/tix-saga/internal/repository"
)

type ShowRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *ShowRepo) With(db DB) *ShowRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *ShowRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

func (r *ShowRepo) TheatreExists(ctx context.Context, id int64) (bool, error) {
	const op = "postgresrepo.ShowRepo.TheatreExists"

	var ok bool
	if err := r.handle().QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM theatres WHERE id = $1)`,
		id,
	).Scan(&ok); err != nil {
		return false, wrapDBErr(op, err)
	}

	return ok, nil
}

func (r *ShowRepo) ListTheatres(ctx context.Context) ([]domain.Theatre, error) {
	const op = "postgresrepo.ShowRepo.ListTheatres"

	rows, err := r.handle().Query(ctx,
		`SELECT id, name, location FROM theatres ORDER BY id`,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	out := []domain.Theatre{}
	for rows.Next() {
		var t domain.Theatre
		if err := rows.Scan(&t.ID, &t.Name, &t.Location); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func (r *ShowRepo) ShowExists(ctx context.Context, id int64) (bool, error) {
	const op = "postgresrepo.ShowRepo.ShowExists"

	var ok bool
	if err := r.handle().QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM shows WHERE id = $1)`,
		id,
	).Scan(&ok); err != nil {
		return false, wrapDBErr(op, err)
	}

	return ok, nil
}

// GetShow retrieves a show by its ID.
//
// Returns:
//   - *domain.Show: the show with its current seat count.
//   - error: repository.ErrNotFound if the show does not exist.
func (r *ShowRepo) GetShow(ctx context.Context, id int64) (*domain.Show, error) {
	const op = "postgresrepo.ShowRepo.GetShow"

	var s domain.Show
	if err := r.handle().QueryRow(ctx,
		`SELECT id, theatre_id, title, price, seats_available
		 FROM shows WHERE id = $1`,
		id,
	).Scan(&s.ID, &s.TheatreID, &s.Title, &s.Price, &s.SeatsAvailable); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &s, nil
}

func (r *ShowRepo) ListShowsByTheatre(ctx context.Context, theatreID int64) ([]domain.Show, error) {
	const op = "postgresrepo.ShowRepo.ListShowsByTheatre"

	rows, err := r.handle().Query(ctx,
		`SELECT id, theatre_id, title, price, seats_available
		 FROM shows WHERE theatre_id = $1
		 ORDER BY id`,
		theatreID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	out := []domain.Show{}
	for rows.Next() {
		var s domain.Show
		if err := rows.Scan(&s.ID, &s.TheatreID, &s.Title, &s.Price, &s.SeatsAvailable); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// TakeSeats decrements seats_available only if the show still has enough
// seats. Concurrent releases only add seats, so they never fail a take.
//
// Returns:
//   - error: repository.ErrConflict if seats ran out.
func (r *ShowRepo) TakeSeats(ctx context.Context, showID int64, seats int) error {
	const op = "postgresrepo.ShowRepo.TakeSeats"

	tag, err := r.handle().Exec(ctx,
		`UPDATE shows
		 SET seats_available = seats_available - $2
		 WHERE id = $1 AND seats_available >= $2`,
		showID, seats,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, repository.ErrConflict)
	}

	return nil
}

// ReleaseSeats returns seats to the show's available pool.
func (r *ShowRepo) ReleaseSeats(ctx context.Context, showID int64, seats int) error {
	const op = "postgresrepo.ShowRepo.ReleaseSeats"

	tag, err := r.handle().Exec(ctx,
		`UPDATE shows
		 SET seats_available = seats_available + $2
		 WHERE id = $1`,
		showID, seats,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}

	return nil
}
