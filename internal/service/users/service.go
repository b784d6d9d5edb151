package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/kirinyoku/tix-saga/internal/domain"
	"github.com/kirinyoku/tix-saga/internal/repository"
)

// Repository is the identity directory storage.
type Repository interface {
	Create(ctx context.Context, name, email string) (*domain.User, error)
	Get(ctx context.Context, id int64) (*domain.User, error)
	Exists(ctx context.Context, id int64) (bool, error)
	List(ctx context.Context) ([]domain.User, error)
	Delete(ctx context.Context, id int64) error
	DeleteAll(ctx context.Context) error
}

type newUser struct {
	Name  string `validate:"required"`
	Email string `validate:"required,email"`
}

var validate = validator.New()

type Service struct {
	repo Repository
}

func New(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create registers a user.
//
// Returns:
//   - error: users.ErrInvalidUser if name or email is missing or the email
//     is malformed, users.ErrEmailTaken if the email is already registered.
func (s *Service) Create(ctx context.Context, name, email string) (*domain.User, error) {
	const op = "service.users.Create"

	in := newUser{Name: strings.TrimSpace(name), Email: strings.TrimSpace(email)}
	if err := validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidUser, err)
	}

	u, err := s.repo.Create(ctx, in.Name, in.Email)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return u, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*domain.User, error) {
	const op = "service.users.Get"

	u, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return u, nil
}

func (s *Service) UserExists(ctx context.Context, id int64) (bool, error) {
	const op = "service.users.UserExists"

	ok, err := s.repo.Exists(ctx, id)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return ok, nil
}

func (s *Service) List(ctx context.Context) ([]domain.User, error) {
	const op = "service.users.List"

	out, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

// Delete removes only the directory record. Use the account service to tear
// down a user together with their bookings and wallet.
func (s *Service) Delete(ctx context.Context, id int64) error {
	const op = "service.users.Delete"

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Service) DeleteAll(ctx context.Context) error {
	const op = "service.users.DeleteAll"

	if err := s.repo.DeleteAll(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
