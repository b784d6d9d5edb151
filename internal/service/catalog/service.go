package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kirinyoku/tix-saga/internal/domain"
	"github.com/kirinyoku/tix-saga/internal/repository"
	redisrepo "github.com/kirinyoku/tix-saga/internal/repository/redis"
)

type Config struct {
	TheatresTTL time.Duration
	ShowsTTL    time.Duration
}

// Reader is the read side of the inventory ledger.
type Reader interface {
	TheatreExists(ctx context.Context, id int64) (bool, error)
	ListTheatres(ctx context.Context) ([]domain.Theatre, error)
	GetShow(ctx context.Context, id int64) (*domain.Show, error)
	ListShowsByTheatre(ctx context.Context, theatreID int64) ([]domain.Show, error)
}

type Service struct {
	shows Reader
	cache *redisrepo.Cache
	cfg   Config
}

func New(shows Reader, cache *redisrepo.Cache, cfg Config) *Service {
	if cfg.TheatresTTL <= 0 {
		cfg.TheatresTTL = 5 * time.Minute
	}

	if cfg.ShowsTTL <= 0 {
		cfg.ShowsTTL = 15 * time.Second
	}

	return &Service{
		shows: shows,
		cache: cache,
		cfg:   cfg,
	}
}

func (s *Service) ListTheatres(ctx context.Context) ([]domain.Theatre, error) {
	const op = "service.catalog.ListTheatres"

	theatres, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		redisrepo.KeyTheatres(),
		s.cfg.TheatresTTL,
		s.shows.ListTheatres,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return theatres, nil
}

// ListShowsByTheatre returns the shows of a theatre with their current seat
// counts.
//
// Returns:
//   - error: catalog.ErrTheatreNotFound if the theatre does not exist.
func (s *Service) ListShowsByTheatre(ctx context.Context, theatreID int64) ([]domain.Show, error) {
	const op = "service.catalog.ListShowsByTheatre"

	shows, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		redisrepo.KeyTheatreShows(theatreID),
		s.cfg.ShowsTTL,
		func(ctx context.Context) ([]domain.Show, error) {
			ok, err := s.shows.TheatreExists(ctx, theatreID)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, ErrTheatreNotFound
			}

			return s.shows.ListShowsByTheatre(ctx, theatreID)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return shows, nil
}

// GetShow retrieves a show by its ID.
//
// Returns:
//   - error: catalog.ErrShowNotFound if the show does not exist.
func (s *Service) GetShow(ctx context.Context, id int64) (*domain.Show, error) {
	const op = "service.catalog.GetShow"

	show, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		redisrepo.KeyShow(id),
		s.cfg.ShowsTTL,
		func(ctx context.Context) (domain.Show, error) {
			sh, err := s.shows.GetShow(ctx, id)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return domain.Show{}, ErrShowNotFound
				}

				return domain.Show{}, err
			}

			return *sh, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &show, nil
}
