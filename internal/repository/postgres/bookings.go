package postgresrepo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirinyoku/tix-saga/internal/domain"
	"github.com/kirinyoku/tix-saga/internal/repository"
)

type BookingRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *BookingRepo) With(db DB) *BookingRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *BookingRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

func (r *BookingRepo) Insert(ctx context.Context, showID, userID int64, seats int) (*domain.Booking, error) {
	const op = "postgresrepo.BookingRepo.Insert"

	b := domain.Booking{ShowID: showID, UserID: userID, SeatsBooked: seats}
	if err := r.handle().QueryRow(ctx,
		`INSERT INTO bookings(show_id, user_id, seats_booked)
		 VALUES ($1, $2, $3)
		 RETURNING id`,
		showID, userID, seats,
	).Scan(&b.ID); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &b, nil
}

// Place records a booking and takes its seats from the show in a single
// transaction.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//   - show: the show as read by the caller.
//   - userID: the booking user.
//   - seats: number of seats to take.
//
// Returns:
//   - *domain.Booking: the stored booking.
//   - error: repository.ErrConflict if the show no longer has enough
//     seats or the transaction lost a serialization race. In all of these cases nothing was written.
func (r *BookingRepo) Place(ctx context.Context, show *domain.Show, userID int64, seats int) (*domain.Booking, error) {
	const op = "postgresrepo.BookingRepo.Place"

	if r.db != nil {
		b, err := r.placeCore(ctx, r.db, show, userID, seats)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return b, nil
	}

	var b *domain.Booking
	err := runTx(ctx, r.pool, nil, func(ctx context.Context, tx DB) error {
		var err error
		b, err = r.placeCore(ctx, tx, show, userID, seats)
		return err
	})
	if err != nil {
		if IsRetryable(err) {
			return nil, fmt.Errorf("%s: %w: %w", op, repository.ErrConflict, err)
		}
		return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	return b, nil
}

func (r *BookingRepo) placeCore(
	ctx context.Context,
	db DB,
	show *domain.Show,
	userID int64,
	seats int,
) (*domain.Booking, error) {
	b, err := r.With(db).Insert(ctx, show.ID, userID, seats)
	if err != nil {
		return nil, err
	}

	shows := &ShowRepo{db: db}
	if err := shows.TakeSeats(ctx, show.ID, seats); err != nil {
		return nil, err
	}

	return b, nil
}

func (r *BookingRepo) ListByUser(ctx context.Context, userID int64) ([]domain.Booking, error) {
	const op = "postgresrepo.BookingRepo.ListByUser"

	out, err := r.list(ctx,
		`SELECT id, show_id, user_id, seats_booked
		 FROM bookings WHERE user_id = $1
		 ORDER BY id`,
		userID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func (r *BookingRepo) ListByUserAndShow(ctx context.Context, userID, showID int64) ([]domain.Booking, error) {
	const op = "postgresrepo.BookingRepo.ListByUserAndShow"

	out, err := r.list(ctx,
		`SELECT id, show_id, user_id, seats_booked
		 FROM bookings WHERE user_id = $1 AND show_id = $2
		 ORDER BY id`,
		userID, showID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func (r *BookingRepo) ListAll(ctx context.Context) ([]domain.Booking, error) {
	const op = "postgresrepo.BookingRepo.ListAll"

	out, err := r.list(ctx,
		`SELECT id, show_id, user_id, seats_booked
		 FROM bookings ORDER BY id`,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// Delete removes a booking row.
//
// Returns:
//   - error: repository.ErrNotFound if the booking does not exist.
func (r *BookingRepo) Delete(ctx context.Context, id int64) error {
	const op = "postgresrepo.BookingRepo.Delete"

	tag, err := r.handle().Exec(ctx, `DELETE FROM bookings WHERE id = $1`, id)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}

	return nil
}

func (r *BookingRepo) list(ctx context.Context, sql string, args ...any) ([]domain.Booking, error) {
	rows, err := r.handle().Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	out := []domain.Booking{}
	for rows.Next() {
		var b domain.Booking
		if err := rows.Scan(&b.ID, &b.ShowID, &b.UserID, &b.SeatsBooked); err != nil {
			return nil, err
		}
		out = append(out, b)
	}

	return out, rows.Err()
}
