package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/alimutlu55/localchat-discovery/internal/room"
)

const saveTimeout = 5 * time.Second

// Persisted is what survives a restart: the user's own rooms and the
// overlays. Rooms seen only through discovery are not kept.
type Persisted struct {
	Rooms   []room.Room          `json:"rooms"`
	Joined  []string             `json:"joined"`
	Created []string             `json:"created"`
	Hidden  []string             `json:"hidden"`
	Pending map[string]time.Time `json:"pending"`
}

type Persister interface {
	Load(ctx context.Context) (Persisted, error)
	Save(ctx context.Context, p Persisted) error
	Close() error
}

// Memory persists nothing.
type Memory struct{}

func (Memory) Load(context.Context) (Persisted, error) { return Persisted{}, nil }
func (Memory) Save(context.Context, Persisted) error   { return nil }
func (Memory) Close() error                            { return nil }

func restore(ctx context.Context, p Persister) (room.Snapshot, error) {
	snap := room.NewSnapshot()
	saved, err := p.Load(ctx)
	if err != nil {
		return snap, fmt.Errorf("restoring room store: %w", err)
	}
	for _, r := range saved.Rooms {
		snap.Rooms[r.ID] = r
	}
	for _, id := range saved.Joined {
		snap.Joined[id] = struct{}{}
	}
	for _, id := range saved.Created {
		snap.Created[id] = struct{}{}
	}
	for _, id := range saved.Hidden {
		snap.Hidden[id] = struct{}{}
	}
	for id, at := range saved.Pending {
		snap.Pending[id] = at
	}
	return snap, nil
}

// Export builds the persisted form of a snapshot.
func Export(s room.Snapshot) Persisted {
	keep := room.NewIDSet()
	for id := range s.Joined {
		keep[id] = struct{}{}
	}
	for id := range s.Created {
		keep[id] = struct{}{}
	}
	for id := range s.Pending {
		keep[id] = struct{}{}
	}

	p := Persisted{
		Joined:  s.Joined.Sorted(),
		Created: s.Created.Sorted(),
		Hidden:  s.Hidden.Sorted(),
		Pending: make(map[string]time.Time, len(s.Pending)),
	}
	for _, id := range keep.Sorted() {
		if r, ok := s.Rooms[id]; ok {
			p.Rooms = append(p.Rooms, r)
		}
	}
	for id, at := range s.Pending {
		p.Pending[id] = at
	}
	return p
}

func (s *Store) save() {
	ctx, cancel := context.WithTimeout(s.ctx, saveTimeout)
	defer cancel()
	if err := s.persist.Save(ctx, Export(s.state)); err != nil {
		s.log.Warn("persisting room store failed", zap.Error(err))
	}
}
