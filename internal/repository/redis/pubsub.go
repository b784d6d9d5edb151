package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// ShowsPubSub broadcasts seat-count changes so every instance can drop its
// cached view of the show.
type ShowsPubSub struct {
	rdb     *redis.Client
	channel string
}

func NewShowsPubSub(rdb *redis.Client) *ShowsPubSub {
	return &ShowsPubSub{
		rdb:     rdb,
		channel: ChannelShowsChanged(),
	}
}

type ShowChangedMsg struct {
	Type      string `json:"type"`
	ShowID    int64  `json:"show_id"`
	TheatreID int64  `json:"theatre_id"`
	TsUnix    int64  `json:"ts_unix"`
}

func (p *ShowsPubSub) PublishShowChanged(ctx context.Context, showID, theatreID int64) error {
	msg := ShowChangedMsg{
		Type:      "show_changed",
		ShowID:    showID,
		TheatreID: theatreID,
		TsUnix:    time.Now().Unix(),
	}

	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	return p.rdb.Publish(ctx, p.channel, b).Err()
}

// Subscribe blocks until ctx is done, calling handler for every well-formed
// message on the channel.
func (p *ShowsPubSub) Subscribe(ctx context.Context, handler func(ctx context.Context, msg ShowChangedMsg)) error {
	sub := p.rdb.Subscribe(ctx, p.channel)
	defer sub.Close()

	ch := sub.Channel(redis.WithChannelSize(256))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var msg ShowChangedMsg
			if err := json.Unmarshal([]byte(m.Payload), &msg); err == nil &&
				msg.ShowID != 0 {
				handler(ctx, msg)
			}
		}
	}
}
