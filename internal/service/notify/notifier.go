// Package notify fans committed booking changes out to the cache, the
// show-changed channel and the event broker.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/kirinyoku/tix-saga/internal/domain"
	redisrepo "github.com/kirinyoku/tix-saga/internal/repository/redis"
)

type ShowPublisher interface {
	PublishShowChanged(ctx context.Context, showID, theatreID int64) error
}

type EventPublisher interface {
	PublishBookingEvent(ctx context.Context, ev domain.BookingEvent) error
}

// Notifier implements booking.Notifier. Any of its sinks may be nil.
type Notifier struct {
	cache   *redisrepo.Cache
	shows   ShowPublisher
	events  EventPublisher
	logger  *slog.Logger
	timeout time.Duration
}

func New(cache *redisrepo.Cache, shows ShowPublisher, events EventPublisher, logger *slog.Logger) *Notifier {
	return &Notifier{
		cache:   cache,
		shows:   shows,
		events:  events,
		logger:  logger,
		timeout: 2 * time.Second,
	}
}

func (n *Notifier) ShowChanged(ctx context.Context, show domain.Show) {
	ctx, cancel := n.detach(ctx)
	defer cancel()

	if err := n.cache.InvalidateShow(ctx, show.ID, show.TheatreID); err != nil {
		n.logger.Warn("show cache invalidation failed", slog.Int64("show_id", show.ID), slog.Any("error", err))
	}

	if n.shows == nil {
		return
	}
	if err := n.shows.PublishShowChanged(ctx, show.ID, show.TheatreID); err != nil {
		n.logger.Warn("show change publish failed", slog.Int64("show_id", show.ID), slog.Any("error", err))
	}
}

func (n *Notifier) BookingChanged(ctx context.Context, ev domain.BookingEvent) {
	if n.events == nil {
		return
	}

	ctx, cancel := n.detach(ctx)
	defer cancel()

	if err := n.events.PublishBookingEvent(ctx, ev); err != nil {
		n.logger.Warn("booking event publish failed",
			slog.String("type", string(ev.Type)),
			slog.Int64("booking_id", ev.BookingID),
			slog.Any("error", err),
		)
	}
}

// detach keeps notifications going after the request that caused them has
// returned, bounded by the notifier's own timeout.
func (n *Notifier) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
}

// InvalidateOnChange drops cached views of a show announced on the
// show-changed channel. It is the handler for ShowsPubSub.Subscribe.
func (n *Notifier) InvalidateOnChange(ctx context.Context, msg redisrepo.ShowChangedMsg) {
	if err := n.cache.InvalidateShow(ctx, msg.ShowID, msg.TheatreID); err != nil {
		n.logger.Warn("show cache invalidation failed", slog.Int64("show_id", msg.ShowID), slog.Any("error", err))
	}
}
