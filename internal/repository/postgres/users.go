package postgresrepo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirinyoku/tix-saga/internal/domain"
	"github.com/kirinyoku/tix-saga/internal/repository"
)

type UserRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *UserRepo) With(db DB) *UserRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *UserRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Create stores a new user.
//
// Returns:
//   - error: repository.ErrConflict if the email is already registered.
func (r *UserRepo) Create(ctx context.Context, name, email string) (*domain.User, error) {
	const op = "postgresrepo.UserRepo.Create"

	u := domain.User{Name: name, Email: email}
	if err := r.handle().QueryRow(ctx,
		`INSERT INTO users(name, email) VALUES ($1, $2) RETURNING id`,
		name, email,
	).Scan(&u.ID); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &u, nil
}

func (r *UserRepo) Get(ctx context.Context, id int64) (*domain.User, error) {
	const op = "postgresrepo.UserRepo.Get"

	var u domain.User
	if err := r.handle().QueryRow(ctx,
		`SELECT id, name, email FROM users WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.Name, &u.Email); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &u, nil
}

func (r *UserRepo) Exists(ctx context.Context, id int64) (bool, error) {
	const op = "postgresrepo.UserRepo.Exists"

	var ok bool
	if err := r.handle().QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`,
		id,
	).Scan(&ok); err != nil {
		return false, wrapDBErr(op, err)
	}

	return ok, nil
}

func (r *UserRepo) List(ctx context.Context) ([]domain.User, error) {
	const op = "postgresrepo.UserRepo.List"

	rows, err := r.handle().Query(ctx, `SELECT id, name, email FROM users ORDER BY id`)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	out := []domain.User{}
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func (r *UserRepo) Delete(ctx context.Context, id int64) error {
	const op = "postgresrepo.UserRepo.Delete"

	tag, err := r.handle().Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}

	return nil
}

func (r *UserRepo) DeleteAll(ctx context.Context) error {
	const op = "postgresrepo.UserRepo.DeleteAll"

	if _, err := r.handle().Exec(ctx, `DELETE FROM users`); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}
