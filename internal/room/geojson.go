package room

import (
	"fmt"
	"math"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// FromGeoJSON converts a feature from the clustered query response.
// Mistyped properties are errors, never panics.
func FromGeoJSON(f *geojson.Feature) (Feature, error) {
	if f == nil {
		return Feature{}, ErrBadGeometry
	}
	pt, ok := f.Geometry.(orb.Point)
	if !ok {
		return Feature{}, ErrBadGeometry
	}
	p := &props{p: f.Properties}

	if p.flag("cluster") {
		cid, err := clusterIDProperty(f.Properties["clusterId"])
		if err != nil {
			return Feature{}, err
		}
		b, err := boundsProperty(f.Properties["expansionBounds"])
		if err != nil {
			return Feature{}, err
		}
		out := Feature{
			Point:           pt,
			Cluster:         true,
			ClusterID:       cid,
			PointCount:      p.num("pointCount"),
			ExpansionBounds: b,
		}
		return out, p.err
	}

	id := p.str("roomId", "")
	if p.err != nil {
		return Feature{}, p.err
	}
	if id == "" {
		return Feature{}, ErrMissingID
	}
	r := Room{
		ID:               id,
		Location:         pt,
		Title:            p.str("title", ""),
		Category:         Category(p.str("category", "")),
		ParticipantCount: p.num("participantCount"),
		Status:           Status(p.str("status", string(StatusActive))),
		IsCreator:        p.flag("isCreator"),
		HasJoined:        p.flag("hasJoined"),
	}
	if s := p.str("expiresAt", ""); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return Feature{}, fmt.Errorf("room %s expiresAt: %w", id, err)
		}
		r.ExpiresAt = t
	}
	if p.err != nil {
		return Feature{}, fmt.Errorf("room %s: %w", id, p.err)
	}
	return Feature{Point: pt, RoomID: id, Room: r}, nil
}

// props reads optional properties and keeps the first mistyped one.
type props struct {
	p   geojson.Properties
	err error
}

func (r *props) bad(key string, v any) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: %s is %T", ErrBadProperty, key, v)
	}
}

func (r *props) str(key, def string) string {
	switch v := r.p[key].(type) {
	case nil:
		return def
	case string:
		return v
	default:
		r.bad(key, v)
		return def
	}
}

func (r *props) num(key string) int {
	switch v := r.p[key].(type) {
	case nil:
		return 0
	case float64:
		return int(v)
	case int:
		return v
	default:
		r.bad(key, v)
		return 0
	}
}

func (r *props) flag(key string) bool {
	switch v := r.p[key].(type) {
	case nil:
		return false
	case bool:
		return v
	default:
		r.bad(key, v)
		return false
	}
}

// ToGeoJSON is the inverse of FromGeoJSON, used for frames sent to map
// renderers. Synthesized features carry pending=true.
func ToGeoJSON(f Feature) *geojson.Feature {
	out := geojson.NewFeature(f.Point)
	p := out.Properties
	p["cluster"] = f.Cluster
	if f.Cluster {
		out.ID = f.ClusterID
		p["clusterId"] = f.ClusterID
		p["pointCount"] = f.PointCount
		p["expansionBounds"] = []float64{
			f.ExpansionBounds.Min.Lon(), f.ExpansionBounds.Min.Lat(),
			f.ExpansionBounds.Max.Lon(), f.ExpansionBounds.Max.Lat(),
		}
		return out
	}

	out.ID = f.RoomID
	p["roomId"] = f.RoomID
	p["title"] = f.Room.Title
	p["category"] = string(f.Room.Category)
	p["participantCount"] = f.Room.ParticipantCount
	p["status"] = string(f.Room.Status)
	p["isCreator"] = f.Room.IsCreator
	p["hasJoined"] = f.Room.HasJoined
	if !f.Room.ExpiresAt.IsZero() {
		p["expiresAt"] = f.Room.ExpiresAt.UTC().Format(time.RFC3339)
	}
	if f.Pending {
		p["pending"] = true
	}
	return out
}

// Collection wraps features as a GeoJSON FeatureCollection.
func Collection(features []Feature) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, f := range features {
		fc.Append(ToGeoJSON(f))
	}
	return fc
}

func clusterIDProperty(v any) (int64, error) {
	switch t := v.(type) {
	case float64:
		if t != math.Trunc(t) {
			return 0, fmt.Errorf("%w: %v", ErrMissingClusterID, t)
		}
		return int64(t), nil
	case int64:
		return t, nil
	case int:
		return int64(t), nil
	}
	return 0, ErrMissingClusterID
}

func boundsProperty(v any) (orb.Bound, error) {
	var vals []float64
	switch t := v.(type) {
	case []float64:
		vals = t
	case []any:
		for _, x := range t {
			f, ok := x.(float64)
			if !ok {
				return orb.Bound{}, fmt.Errorf("expansionBounds: non-numeric value %v", x)
			}
			vals = append(vals, f)
		}
	case nil:
		return orb.Bound{}, fmt.Errorf("cluster feature without expansionBounds")
	default:
		return orb.Bound{}, fmt.Errorf("expansionBounds: unexpected type %T", v)
	}
	if len(vals) != 4 {
		return orb.Bound{}, fmt.Errorf("expansionBounds: want 4 values, got %d", len(vals))
	}
	return orb.Bound{Min: orb.Point{vals[0], vals[1]}, Max: orb.Point{vals[2], vals[3]}}, nil
}
