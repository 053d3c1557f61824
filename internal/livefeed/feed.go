// Package livefeed applies room changes pushed over Redis pub/sub to the
// room store, so counters and statuses stay live between fetches.
package livefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/alimutlu55/localchat-discovery/internal/room"
)

const DefaultChannel = "localchat:rooms"

var ErrUnknownEvent = errors.New("unknown room event type")

type EventType string

const (
	EventRoom         EventType = "room"
	EventParticipants EventType = "participants"
	EventStatus       EventType = "status"
)

// Event is one message on the channel. EventRoom carries a full record;
// the others patch a room the store already knows.
type Event struct {
	Type             EventType   `json:"type"`
	Room             *room.Room  `json:"room,omitempty"`
	RoomID           string      `json:"roomId,omitempty"`
	ParticipantCount int         `json:"participantCount,omitempty"`
	Status           room.Status `json:"status,omitempty"`
}

type Store interface {
	Snapshot(ctx context.Context) (room.Snapshot, error)
	UpsertRoom(r room.Room) error
}

type Source interface {
	Channel() <-chan *redis.Message
	Close() error
}

type pubsub struct{ ps *redis.PubSub }

func (p pubsub) Channel() <-chan *redis.Message { return p.ps.Channel() }
func (p pubsub) Close() error                   { return p.ps.Close() }

// Subscribe opens a subscription on channel and waits for Redis to
// confirm it.
func Subscribe(ctx context.Context, rdb *redis.Client, channel string) (Source, error) {
	ps := rdb.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", channel, err)
	}
	return pubsub{ps: ps}, nil
}

type Feed struct {
	src   Source
	store Store
	log   *zap.Logger
}

func New(src Source, st Store, log *zap.Logger) *Feed {
	if log == nil {
		log = zap.NewNop()
	}
	return &Feed{src: src, store: st, log: log.Named("livefeed")}
}

// Run applies events until ctx is done or the subscription ends. Bad
// messages are logged and skipped.
func (f *Feed) Run(ctx context.Context) error {
	defer f.src.Close()
	ch := f.src.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if err := f.handle(ctx, []byte(msg.Payload)); err != nil {
				f.log.Warn("skipping room event", zap.String("channel", msg.Channel), zap.Error(err))
			}
		}
	}
}

func (f *Feed) handle(ctx context.Context, payload []byte) error {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("decoding event: %w", err)
	}

	switch ev.Type {
	case EventRoom:
		if ev.Room == nil || ev.Room.ID == "" {
			return room.ErrMissingID
		}
		return f.store.UpsertRoom(*ev.Room)

	case EventParticipants, EventStatus:
		if ev.RoomID == "" {
			return room.ErrMissingID
		}
		snap, err := f.store.Snapshot(ctx)
		if err != nil {
			return err
		}
		r, ok := snap.Rooms[ev.RoomID]
		if !ok {
			// Not on any screen yet; the next fetch brings it in.
			return nil
		}
		if ev.Type == EventParticipants {
			r.ParticipantCount = ev.ParticipantCount
		} else {
			r.Status = ev.Status
		}
		return f.store.UpsertRoom(r)
	}
	return fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Type)
}
