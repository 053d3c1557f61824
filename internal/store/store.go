// Package store is the room store: the single mutable source of truth for
// room records and the joined/created/hidden/pending overlays. It runs as
// one goroutine that owns the data; everything else talks to it through
// its inbox and receives immutable snapshots.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alimutlu55/localchat-discovery/internal/clock"
	"github.com/alimutlu55/localchat-discovery/internal/room"
)

var ErrStoreClosed = errors.New("room store closed")
var ErrUnknownOverlay = errors.New("unknown membership overlay")

type Msg interface{ isStoreMsg() }

type UpsertRooms struct {
	Rooms []room.Room
}

type AddMembership struct {
	Overlay room.Overlay
	IDs     []string
}

type RemoveMembership struct {
	Overlay room.Overlay
	IDs     []string
}

// CreateLocal records an optimistically created room. The room is marked
// created, joined and pending until a server response accounts for it.
type CreateLocal struct {
	Room  room.Room
	Reply chan room.Room
}

// Join and Leave flip the joined overlay and adjust the local
// participant counter.
type Join struct{ RoomID string }
type Leave struct{ RoomID string }

// Forget drops a room and every overlay that references it.
type Forget struct{ RoomID string }

type GetSnapshot struct {
	Reply chan room.Snapshot
}

type Subscribe struct {
	ID     string
	Outbox chan room.Snapshot
}

type Unsubscribe struct{ ID string }

type Shutdown struct{}

func (UpsertRooms) isStoreMsg()      {}
func (AddMembership) isStoreMsg()    {}
func (RemoveMembership) isStoreMsg() {}
func (CreateLocal) isStoreMsg()      {}
func (Join) isStoreMsg()             {}
func (Leave) isStoreMsg()            {}
func (Forget) isStoreMsg()           {}
func (GetSnapshot) isStoreMsg()      {}
func (Subscribe) isStoreMsg()        {}
func (Unsubscribe) isStoreMsg()      {}
func (Shutdown) isStoreMsg()         {}

type Options struct {
	Clock     clock.Clock
	Logger    *zap.Logger
	Persister Persister
	// PendingTTL expires optimistic rooms the server never confirmed.
	// Zero disables the sweep.
	PendingTTL    time.Duration
	SweepInterval time.Duration
}

type Store struct {
	inbox   chan Msg
	state   room.Snapshot
	subs    map[string]chan room.Snapshot
	clock   clock.Clock
	log     *zap.Logger
	persist Persister
	ttl     time.Duration
	sweep   *clock.Ticker
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// New restores persisted state, if any, and starts the store loop.
func New(parent context.Context, opts Options) (*Store, error) {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Persister == nil {
		opts.Persister = Memory{}
	}

	state, err := restore(parent, opts.Persister)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(parent)
	s := &Store{
		inbox:   make(chan Msg, 64),
		state:   state,
		subs:    make(map[string]chan room.Snapshot),
		clock:   opts.Clock,
		log:     opts.Logger.Named("store"),
		persist: opts.Persister,
		ttl:     opts.PendingTTL,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	if s.ttl > 0 {
		interval := opts.SweepInterval
		if interval <= 0 {
			interval = s.ttl / 2
		}
		s.sweep = s.clock.NewTicker(interval)
	}

	go s.loop()
	return s, nil
}

func (s *Store) Inbox() chan<- Msg { return s.inbox }

// Done is closed once the loop has exited.
func (s *Store) Done() <-chan struct{} { return s.done }

func (s *Store) loop() {
	defer close(s.done)

	var tick <-chan time.Time
	if s.sweep != nil {
		tick = s.sweep.C
		defer s.sweep.Stop()
	}

	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return

		case <-tick:
			if s.expirePending() {
				s.changed(true)
			}

		case m := <-s.inbox:
			switch msg := m.(type) {
			case UpsertRooms:
				persist := s.touchesPersisted(msg.Rooms)
				if s.upsert(msg.Rooms) {
					s.changed(persist)
				}

			case AddMembership:
				if s.setMembership(msg.Overlay, msg.IDs, true) {
					s.changed(true)
				}

			case RemoveMembership:
				if s.setMembership(msg.Overlay, msg.IDs, false) {
					s.changed(true)
				}

			case CreateLocal:
				r := s.createLocal(msg.Room)
				s.changed(true)
				if msg.Reply != nil {
					msg.Reply <- r
				}

			case Join:
				if s.join(msg.RoomID, true) {
					s.changed(true)
				}

			case Leave:
				if s.join(msg.RoomID, false) {
					s.changed(true)
				}

			case Forget:
				if s.forget(msg.RoomID) {
					s.changed(true)
				}

			case GetSnapshot:
				msg.Reply <- s.state.Clone()

			case Subscribe:
				s.subs[msg.ID] = msg.Outbox
				deliver(msg.Outbox, s.state.Clone())

			case Unsubscribe:
				if ch, ok := s.subs[msg.ID]; ok {
					close(ch)
					delete(s.subs, msg.ID)
				}

			case Shutdown:
				s.shutdown()
				return
			}
		}
	}
}

func (s *Store) shutdown() {
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.cancel()
}

// changed bumps the version, persists overlay changes and pushes the new
// snapshot to every subscriber.
func (s *Store) changed(persist bool) {
	s.state.Version++
	if persist {
		s.save()
	}
	for _, ch := range s.subs {
		deliver(ch, s.state.Clone())
	}
}

// deliver keeps only the newest snapshot in a subscriber's outbox so a
// slow reader skips intermediate versions instead of blocking the store.
func deliver(ch chan room.Snapshot, snap room.Snapshot) {
	if cap(ch) == 0 {
		select {
		case ch <- snap:
		default:
		}
		return
	}
	for {
		select {
		case ch <- snap:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func (s *Store) upsert(rooms []room.Room) bool {
	changed := false
	for _, r := range rooms {
		if r.ID == "" {
			continue
		}
		prev, ok := s.state.Rooms[r.ID]
		if ok {
			r.IsCreator = r.IsCreator || prev.IsCreator
			if r.CreatedAt.IsZero() {
				r.CreatedAt = prev.CreatedAt
			}
			if prev == r {
				continue
			}
		}
		s.state.Rooms[r.ID] = r
		changed = true

		if r.Status == room.StatusClosed || r.Status == room.StatusExpired {
			delete(s.state.Joined, r.ID)
		}
	}
	return changed
}

func (s *Store) touchesPersisted(rooms []room.Room) bool {
	for _, r := range rooms {
		if s.state.Joined.Has(r.ID) || s.state.Created.Has(r.ID) || s.state.IsPending(r.ID) {
			return true
		}
	}
	return false
}

func (s *Store) setMembership(o room.Overlay, ids []string, add bool) bool {
	if !o.Valid() {
		s.log.Warn("ignoring membership change", zap.String("overlay", string(o)), zap.Error(ErrUnknownOverlay))
		return false
	}
	changed := false
	now := s.clock.Now()
	for _, id := range ids {
		if id == "" {
			continue
		}
		if o == room.Pending {
			_, had := s.state.Pending[id]
			if add && !had {
				s.state.Pending[id] = now
				changed = true
			} else if !add && had {
				delete(s.state.Pending, id)
				changed = true
			}
			continue
		}

		set := s.overlay(o)
		had := set.Has(id)
		if add && !had {
			set[id] = struct{}{}
			changed = true
		} else if !add && had {
			delete(set, id)
			changed = true
		}
	}
	return changed
}

func (s *Store) overlay(o room.Overlay) room.IDSet {
	switch o {
	case room.Joined:
		return s.state.Joined
	case room.Created:
		return s.state.Created
	case room.Hidden:
		return s.state.Hidden
	}
	return nil
}

func (s *Store) createLocal(r room.Room) room.Room {
	now := s.clock.Now()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = room.StatusActive
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.ParticipantCount < 1 {
		r.ParticipantCount = 1
	}
	r.IsCreator = true
	r.HasJoined = true

	s.state.Rooms[r.ID] = r
	s.state.Created[r.ID] = struct{}{}
	s.state.Joined[r.ID] = struct{}{}
	s.state.Pending[r.ID] = now
	s.log.Debug("room created locally", zap.String("room", r.ID))
	return r
}

func (s *Store) join(id string, joining bool) bool {
	if id == "" || s.state.Joined.Has(id) == joining {
		return false
	}
	r, known := s.state.Rooms[id]
	if joining {
		s.state.Joined[id] = struct{}{}
		if known {
			r.ParticipantCount++
		}
	} else {
		delete(s.state.Joined, id)
		if known && r.ParticipantCount > 0 {
			r.ParticipantCount--
		}
	}
	if known {
		r.HasJoined = joining
		s.state.Rooms[id] = r
	}
	return true
}

func (s *Store) forget(id string) bool {
	_, known := s.state.Rooms[id]
	_, pending := s.state.Pending[id]
	if !known && !pending && !s.state.Joined.Has(id) && !s.state.Created.Has(id) {
		return false
	}
	delete(s.state.Rooms, id)
	delete(s.state.Joined, id)
	delete(s.state.Created, id)
	delete(s.state.Pending, id)
	return true
}

func (s *Store) expirePending() bool {
	cutoff := s.clock.Now().Add(-s.ttl)
	expired := false
	for id, created := range s.state.Pending {
		if created.Before(cutoff) {
			delete(s.state.Pending, id)
			s.log.Info("pending room never confirmed; expiring", zap.String("room", id))
			expired = true
		}
	}
	return expired
}
