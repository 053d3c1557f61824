package store

import (
	"context"

	"github.com/alimutlu55/localchat-discovery/internal/room"
)

func (s *Store) send(m Msg) error {
	if s.ctx.Err() != nil {
		return ErrStoreClosed
	}
	select {
	case s.inbox <- m:
		return nil
	case <-s.ctx.Done():
		return ErrStoreClosed
	}
}

// Snapshot is the synchronous read: it returns a copy of the current state.
func (s *Store) Snapshot(ctx context.Context) (room.Snapshot, error) {
	reply := make(chan room.Snapshot, 1)
	if err := s.send(GetSnapshot{Reply: reply}); err != nil {
		return room.Snapshot{}, err
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-ctx.Done():
		return room.Snapshot{}, ctx.Err()
	case <-s.ctx.Done():
		return room.Snapshot{}, ErrStoreClosed
	}
}

// Subscribe returns a channel that receives the current snapshot and then
// every later version. Intermediate versions may be skipped; the newest
// is always delivered. The channel is closed by Unsubscribe or shutdown.
func (s *Store) Subscribe(id string) (<-chan room.Snapshot, error) {
	ch := make(chan room.Snapshot, 1)
	if err := s.send(Subscribe{ID: id, Outbox: ch}); err != nil {
		return nil, err
	}
	return ch, nil
}

func (s *Store) Unsubscribe(id string) error {
	return s.send(Unsubscribe{ID: id})
}

func (s *Store) UpsertRoom(r room.Room) error {
	return s.send(UpsertRooms{Rooms: []room.Room{r}})
}

func (s *Store) UpsertRooms(rooms []room.Room) error {
	if len(rooms) == 0 {
		return nil
	}
	return s.send(UpsertRooms{Rooms: rooms})
}

func (s *Store) Add(o room.Overlay, ids ...string) error {
	return s.send(AddMembership{Overlay: o, IDs: ids})
}

func (s *Store) Remove(o room.Overlay, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.send(RemoveMembership{Overlay: o, IDs: ids})
}

func (s *Store) Hide(id string) error   { return s.Add(room.Hidden, id) }
func (s *Store) Unhide(id string) error { return s.Remove(room.Hidden, id) }
func (s *Store) Join(id string) error   { return s.send(Join{RoomID: id}) }
func (s *Store) Leave(id string) error  { return s.send(Leave{RoomID: id}) }
func (s *Store) Forget(id string) error { return s.send(Forget{RoomID: id}) }

// CreateLocal stores r optimistically and returns it with its assigned id.
func (s *Store) CreateLocal(ctx context.Context, r room.Room) (room.Room, error) {
	reply := make(chan room.Room, 1)
	if err := s.send(CreateLocal{Room: r, Reply: reply}); err != nil {
		return room.Room{}, err
	}
	select {
	case created := <-reply:
		return created, nil
	case <-ctx.Done():
		return room.Room{}, ctx.Err()
	case <-s.ctx.Done():
		return room.Room{}, ErrStoreClosed
	}
}

// Close stops the loop, waits for it to exit and releases the persister.
func (s *Store) Close() error {
	s.cancel()
	<-s.done
	return s.persist.Close()
}
