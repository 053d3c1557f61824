// Package room defines the records the discovery engine moves around:
// rooms, the cluster/room features returned by the query service, and the
// membership overlays kept by the room store.
package room

import (
	"errors"
	"time"

	"github.com/paulmach/orb"
)

var ErrMissingID = errors.New("room id is required")
var ErrBadGeometry = errors.New("feature geometry is not a point")
var ErrBadProperty = errors.New("feature property has the wrong type")
var ErrMissingClusterID = errors.New("cluster feature needs a numeric clusterId")

type Status string

const (
	StatusActive  Status = "active"
	StatusClosed  Status = "closed"
	StatusExpired Status = "expired"
)

type Category string

type Room struct {
	ID               string    `json:"id"`
	Location         orb.Point `json:"location"`
	Title            string    `json:"title"`
	Category         Category  `json:"category,omitempty"`
	ParticipantCount int       `json:"participantCount"`
	Status           Status    `json:"status"`
	ExpiresAt        time.Time `json:"expiresAt"`
	CreatedAt        time.Time `json:"createdAt"`
	IsCreator        bool      `json:"isCreator"`
	HasJoined        bool      `json:"hasJoined"`
}

// Live reports whether the room can still be joined at now.
func (r Room) Live(now time.Time) bool {
	if r.Status != "" && r.Status != StatusActive {
		return false
	}
	return r.ExpiresAt.IsZero() || now.Before(r.ExpiresAt)
}

// Feature is one marker returned by the clustered query: either a cluster
// of rooms or a single room.
type Feature struct {
	Point orb.Point

	Cluster         bool
	ClusterID       int64
	PointCount      int
	ExpansionBounds orb.Bound

	RoomID string
	Room   Room

	// Pending marks a feature synthesized locally for a room the server
	// has not returned yet.
	Pending bool
}

// Contains reports whether a cluster's expansion bounds cover p.
func (f Feature) Contains(p orb.Point) bool {
	return f.Cluster && f.ExpansionBounds.Contains(p)
}

type Metadata struct {
	ClusterCount     int   `json:"clusterCount"`
	IndividualCount  int   `json:"individualCount"`
	TotalRooms       int   `json:"totalRooms"`
	ProcessingTimeMs int64 `json:"processingTimeMs"`
}

// FeatureSet is one server response together with the time its request
// was issued. Only responses issued after a room was created locally may
// confirm that room.
type FeatureSet struct {
	Features []Feature
	Metadata Metadata
	IssuedAt time.Time
}
