// Package types holds the JSON messages exchanged with map renderers over
// the WebSocket feed.
package types

import "github.com/paulmach/orb/geojson"

// Client -> Server message types.
const (
	MsgCamera        = "camera"
	MsgRefetch       = "refetch"
	MsgFlyTo         = "flyTo"
	MsgFlyToWorld    = "flyToWorld"
	MsgExpandCluster = "expandCluster"
	MsgLocation      = "location"
	MsgCategory      = "category"
)

// Server -> Client message types.
const (
	MsgFrame    = "frame"
	MsgFly      = "fly"
	MsgExpanded = "expanded"
	MsgError    = "error"
)

type ClientMessage struct {
	Type string `json:"type"`

	// camera: [minLng, minLat, maxLng, maxLat]
	Bounds []float64 `json:"bounds,omitempty"`
	Zoom   float64   `json:"zoom,omitempty"`

	// flyTo: [lng, lat]
	Center     []float64 `json:"center,omitempty"`
	DurationMs int64     `json:"durationMs,omitempty"`

	ClusterID int64 `json:"clusterId,omitempty"`

	// location: both nil when the permission is denied or unavailable.
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`

	Category string `json:"category,omitempty"`
}

type Metadata struct {
	ClusterCount     int   `json:"clusterCount"`
	IndividualCount  int   `json:"individualCount"`
	TotalRooms       int   `json:"totalRooms"`
	ProcessingTimeMs int64 `json:"processingTimeMs"`
}

type FetchStatus struct {
	Loading     bool      `json:"loading"`
	InFlight    bool      `json:"inFlight"`
	Prefetching bool      `json:"prefetching"`
	HasFetched  bool      `json:"hasFetched"`
	QueryBounds []float64 `json:"queryBounds,omitempty"`
	QueryZoom   int       `json:"queryZoom"`
	Error       string    `json:"error,omitempty"`
}

type Fly struct {
	Center     []float64 `json:"center"`
	Zoom       float64   `json:"zoom"`
	DurationMs int64     `json:"durationMs"`
}

type ServerMessage struct {
	Type     string                     `json:"type"`
	Version  int                        `json:"version,omitempty"`
	Features *geojson.FeatureCollection `json:"features,omitempty"`
	Metadata *Metadata                  `json:"metadata,omitempty"`
	Status   *FetchStatus               `json:"status,omitempty"`
	Fly      *Fly                       `json:"fly,omitempty"`
	Error    string                     `json:"error,omitempty"`
}
