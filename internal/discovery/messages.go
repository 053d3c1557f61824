package discovery

import (
	"time"

	"github.com/alimutlu55/localchat-discovery/internal/geo"
	"github.com/alimutlu55/localchat-discovery/internal/prefetch"
	"github.com/alimutlu55/localchat-discovery/internal/query"
	"github.com/alimutlu55/localchat-discovery/internal/room"
)

type Msg interface{ isViewMsg() }

// CameraMoved is emitted by the map surface on every camera change.
type CameraMoved struct {
	Viewport geo.Viewport
}

// Refetch forces an immediate fetch of the current camera viewport.
type Refetch struct{}

// FlyTo prefetches target and tells the map surface to animate there.
type FlyTo struct {
	Target   prefetch.Target
	Duration time.Duration
}

type FlyToWorld struct {
	Duration time.Duration
}

type ExpandResult struct {
	Target prefetch.Target
	Err    error
}

// ExpandCluster flies into a cluster of the current response far enough
// for it to split.
type ExpandCluster struct {
	ClusterID int64
	Duration  time.Duration
	Reply     chan ExpandResult
}

// SetLocation updates the user location forwarded with queries. A nil
// location, e.g. after the permission was denied, stops forwarding it.
type SetLocation struct {
	Location *query.UserLocation
}

type SetCategory struct {
	Category room.Category
}

type Join struct {
	ClientID string
	Outbox   chan Frame
}

type Leave struct{ ClientID string }

type GetState struct {
	Reply chan State
}

type Shutdown struct{}

type debounceFired struct{ gen uint64 }

type fetchDone struct {
	gen      uint64
	viewport geo.Viewport
	query    query.ClusterQuery
	set      room.FeatureSet
	err      error
}

type prefetchDone struct {
	gen   uint64
	query query.ClusterQuery
	set   room.FeatureSet
	err   error
}

type revealDue struct{ gen uint64 }

func (CameraMoved) isViewMsg()   {}
func (Refetch) isViewMsg()       {}
func (FlyTo) isViewMsg()         {}
func (FlyToWorld) isViewMsg()    {}
func (ExpandCluster) isViewMsg() {}
func (SetLocation) isViewMsg()   {}
func (SetCategory) isViewMsg()   {}
func (Join) isViewMsg()          {}
func (Leave) isViewMsg()         {}
func (GetState) isViewMsg()      {}
func (Shutdown) isViewMsg()      {}
func (debounceFired) isViewMsg() {}
func (fetchDone) isViewMsg()     {}
func (prefetchDone) isViewMsg()  {}
func (revealDue) isViewMsg()     {}
