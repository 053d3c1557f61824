package room

import (
	"maps"
	"slices"
	"time"
)

type Overlay string

const (
	Joined  Overlay = "joined"
	Created Overlay = "created"
	Hidden  Overlay = "hidden"
	Pending Overlay = "pending"
)

func (o Overlay) Valid() bool {
	switch o {
	case Joined, Created, Hidden, Pending:
		return true
	}
	return false
}

type IDSet map[string]struct{}

func NewIDSet(ids ...string) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the ids in ascending order.
func (s IDSet) Sorted() []string {
	return slices.Sorted(maps.Keys(s))
}

// Snapshot is an immutable copy of the room store. Receivers must not
// modify it.
type Snapshot struct {
	Version int
	Rooms   map[string]Room
	Joined  IDSet
	Created IDSet
	Hidden  IDSet
	// Pending maps a locally created room id to its creation time.
	Pending map[string]time.Time
}

func NewSnapshot() Snapshot {
	return Snapshot{
		Rooms:   map[string]Room{},
		Joined:  IDSet{},
		Created: IDSet{},
		Hidden:  IDSet{},
		Pending: map[string]time.Time{},
	}
}

// Clone deep-copies s so the store can keep mutating its own copy.
func (s Snapshot) Clone() Snapshot {
	return Snapshot{
		Version: s.Version,
		Rooms:   maps.Clone(s.Rooms),
		Joined:  maps.Clone(s.Joined),
		Created: maps.Clone(s.Created),
		Hidden:  maps.Clone(s.Hidden),
		Pending: maps.Clone(s.Pending),
	}
}

func (s Snapshot) IsPending(id string) bool {
	_, ok := s.Pending[id]
	return ok
}

// Hydrate overlays the store's live fields onto r. The store is the
// source of truth for counters and membership flags.
func (s Snapshot) Hydrate(r Room) Room {
	if stored, ok := s.Rooms[r.ID]; ok {
		r.ParticipantCount = stored.ParticipantCount
		if stored.Status != "" {
			r.Status = stored.Status
		}
		r.IsCreator = r.IsCreator || stored.IsCreator
	}
	r.HasJoined = s.Joined.Has(r.ID)
	r.IsCreator = r.IsCreator || s.Created.Has(r.ID)
	return r
}
