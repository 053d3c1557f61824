// Package reconcile merges a raw clustered response with the room store's
// optimistic state into the features a map should show.
package reconcile

import (
	"github.com/paulmach/orb"

	"github.com/alimutlu55/localchat-discovery/internal/room"
)

type Result struct {
	Features []room.Feature
	// Confirmed lists pending room ids the response accounts for, in
	// ascending order. The caller removes them from the pending overlay.
	Confirmed []string
}

// Derive is pure: the same raw set and snapshot always give the same
// Result, and neither input is modified.
//
// Standalone rooms are hydrated from the snapshot and hidden ones dropped.
// A pending room the response does not cover, standalone or inside a
// cluster's expansion bounds, is added as a synthesized marker after the
// server features. A pending room is confirmed only by a response issued
// after it was created.
func Derive(raw room.FeatureSet, snap room.Snapshot) Result {
	var res Result
	var clusters []room.Feature
	standalone := make(map[string]struct{}, len(raw.Features))

	for _, f := range raw.Features {
		if f.Cluster {
			clusters = append(clusters, f)
			res.Features = append(res.Features, f)
			continue
		}
		if _, dup := standalone[f.RoomID]; dup {
			continue
		}
		standalone[f.RoomID] = struct{}{}
		if snap.Hidden.Has(f.RoomID) {
			continue
		}
		f.Room = snap.Hydrate(f.Room)
		f.Pending = false
		res.Features = append(res.Features, f)
	}

	for _, id := range pendingIDs(snap) {
		_, present := standalone[id]
		r, known := snap.Rooms[id]
		covered := known && inCluster(clusters, r.Location)

		if (present || covered) && raw.IssuedAt.After(snap.Pending[id]) {
			res.Confirmed = append(res.Confirmed, id)
		}
		if present || covered || !known || snap.Hidden.Has(id) {
			continue
		}
		res.Features = append(res.Features, room.Feature{
			Point:   r.Location,
			RoomID:  id,
			Room:    snap.Hydrate(r),
			Pending: true,
		})
	}
	return res
}

func pendingIDs(snap room.Snapshot) []string {
	ids := make(room.IDSet, len(snap.Pending))
	for id := range snap.Pending {
		ids[id] = struct{}{}
	}
	return ids.Sorted()
}

func inCluster(clusters []room.Feature, p orb.Point) bool {
	for _, c := range clusters {
		if c.Contains(p) {
			return true
		}
	}
	return false
}

// Visible reports whether id would be rendered by res, standalone or as a
// pending marker.
func (r Result) Visible(id string) bool {
	for _, f := range r.Features {
		if !f.Cluster && f.RoomID == id {
			return true
		}
	}
	return false
}
