package reconcile

import (
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alimutlu55/localchat-discovery/internal/room"
)

var created = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

func standalone(id string, lng, lat float64, participants int) room.Feature {
	p := orb.Point{lng, lat}
	return room.Feature{Point: p, RoomID: id, Room: room.Room{ID: id, Location: p, ParticipantCount: participants, Status: room.StatusActive}}
}

func cluster(id int64, minLng, minLat, maxLng, maxLat float64) room.Feature {
	b := orb.Bound{Min: orb.Point{minLng, minLat}, Max: orb.Point{maxLng, maxLat}}
	return room.Feature{Point: b.Center(), Cluster: true, ClusterID: id, PointCount: 5, ExpansionBounds: b}
}

// snapshotWithPending holds one locally created room at (lng, lat).
func snapshotWithPending(id string, lng, lat float64) room.Snapshot {
	s := room.NewSnapshot()
	s.Rooms[id] = room.Room{ID: id, Location: orb.Point{lng, lat}, ParticipantCount: 1, Status: room.StatusActive, IsCreator: true}
	s.Created[id] = struct{}{}
	s.Joined[id] = struct{}{}
	s.Pending[id] = created
	return s
}

func ids(features []room.Feature) []string {
	var out []string
	for _, f := range features {
		if f.Cluster {
			continue
		}
		out = append(out, f.RoomID)
	}
	return out
}

func TestHydrateFromStore(t *testing.T) {
	snap := room.NewSnapshot()
	snap.Rooms["a"] = room.Room{ID: "a", ParticipantCount: 9, Status: room.StatusActive}
	snap.Joined["a"] = struct{}{}

	raw := room.FeatureSet{Features: []room.Feature{standalone("a", 1, 1, 4), standalone("b", 2, 2, 3)}}
	res := Derive(raw, snap)

	require.Len(t, res.Features, 2)
	assert.Equal(t, 9, res.Features[0].Room.ParticipantCount, "store counter wins")
	assert.True(t, res.Features[0].Room.HasJoined)
	assert.Equal(t, 3, res.Features[1].Room.ParticipantCount)
	assert.False(t, res.Features[1].Room.HasJoined)
}

func TestHiddenNeverAppears(t *testing.T) {
	snap := snapshotWithPending("mine", 50, 50)
	snap.Hidden["a"] = struct{}{}
	snap.Hidden["mine"] = struct{}{}

	raw := room.FeatureSet{
		Features: []room.Feature{standalone("a", 1, 1, 1), standalone("b", 2, 2, 1), cluster(7, 10, 10, 20, 20)},
		IssuedAt: created.Add(time.Minute),
	}
	res := Derive(raw, snap)

	assert.Equal(t, []string{"b"}, ids(res.Features))
	assert.False(t, res.Visible("a"))
	assert.False(t, res.Visible("mine"))
}

func TestPendingOutsideClustersIsSynthesized(t *testing.T) {
	snap := snapshotWithPending("new", -122.30, 37.90)
	raw := room.FeatureSet{
		Features: []room.Feature{cluster(1, -122.5, 37.7, -122.4, 37.8)},
		IssuedAt: created.Add(time.Second),
	}
	res := Derive(raw, snap)

	require.Len(t, res.Features, 2)
	last := res.Features[1]
	assert.True(t, last.Pending)
	assert.Equal(t, "new", last.RoomID)
	assert.Equal(t, orb.Point{-122.30, 37.90}, last.Point)
	assert.True(t, last.Room.HasJoined)
	assert.True(t, last.Room.IsCreator)
	assert.Empty(t, res.Confirmed)
}

func TestPendingConfirmed(t *testing.T) {
	tests := []struct {
		name     string
		features []room.Feature
		issued   time.Time
		confirm  bool
		visible  bool
	}{
		{
			name:     "inside later cluster",
			features: []room.Feature{cluster(1, -122.5, 37.7, -122.4, 37.8)},
			issued:   created.Add(time.Second),
			confirm:  true,
		},
		{
			name:     "standalone in later response",
			features: []room.Feature{standalone("new", -122.45, 37.75, 1)},
			issued:   created.Add(time.Second),
			confirm:  true,
			visible:  true,
		},
		{
			name:     "cluster from a request issued before creation",
			features: []room.Feature{cluster(1, -122.5, 37.7, -122.4, 37.8)},
			issued:   created.Add(-time.Second),
		},
		{
			name:     "cluster elsewhere",
			features: []room.Feature{cluster(1, 0, 0, 1, 1)},
			issued:   created.Add(time.Second),
			visible:  true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			snap := snapshotWithPending("new", -122.45, 37.75)
			res := Derive(room.FeatureSet{Features: tc.features, IssuedAt: tc.issued}, snap)

			if tc.confirm {
				assert.Equal(t, []string{"new"}, res.Confirmed)
			} else {
				assert.Empty(t, res.Confirmed)
			}
			assert.Equal(t, tc.visible, res.Visible("new"))
		})
	}
}

func TestRoomAppearsAtMostOnce(t *testing.T) {
	snap := snapshotWithPending("new", 5, 5)
	raw := room.FeatureSet{
		Features: []room.Feature{standalone("new", 5, 5, 2), standalone("x", 1, 1, 1), standalone("x", 1, 1, 1)},
		IssuedAt: created.Add(time.Second),
	}
	res := Derive(raw, snap)

	assert.Equal(t, []string{"new", "x"}, ids(res.Features))
	for _, f := range res.Features {
		assert.False(t, f.Pending)
	}
}

func TestUnknownPendingRoomIsSkipped(t *testing.T) {
	snap := room.NewSnapshot()
	snap.Pending["ghost"] = created
	res := Derive(room.FeatureSet{IssuedAt: created.Add(time.Second)}, snap)
	assert.Empty(t, res.Features)
	assert.Empty(t, res.Confirmed)
}

func TestDeriveIsIdempotentAndPure(t *testing.T) {
	snap := snapshotWithPending("b", 30, 30)
	snap.Pending["a"] = created
	snap.Rooms["a"] = room.Room{ID: "a", Location: orb.Point{31, 31}}
	snap.Hidden["h"] = struct{}{}
	raw := room.FeatureSet{
		Features: []room.Feature{cluster(3, 0, 0, 10, 10), standalone("h", 2, 2, 1), standalone("c", 3, 3, 4)},
		IssuedAt: created.Add(time.Second),
	}
	rawBefore := append([]room.Feature(nil), raw.Features...)
	snapBefore := snap.Clone()

	first := Derive(raw, snap)
	second := Derive(raw, snap)

	assert.Equal(t, first, second)
	assert.Equal(t, rawBefore, raw.Features)
	assert.Equal(t, snapBefore, snap)
	assert.Equal(t, []string{"c", "a", "b"}, ids(first.Features), "pending markers follow server features in id order")
}
