package discovery

import (
	"time"

	"github.com/paulmach/orb"

	"github.com/alimutlu55/localchat-discovery/internal/fetch"
	"github.com/alimutlu55/localchat-discovery/internal/geo"
	"github.com/alimutlu55/localchat-discovery/internal/prefetch"
	"github.com/alimutlu55/localchat-discovery/internal/query"
	"github.com/alimutlu55/localchat-discovery/internal/room"
	"github.com/alimutlu55/localchat-discovery/internal/schedule"
	"github.com/alimutlu55/localchat-discovery/internal/viewport"
)

// FetchState is a copy of a view's fetch bookkeeping.
type FetchState struct {
	LastFetched   geo.Viewport `json:"lastFetched"`
	HasFetched    bool         `json:"hasFetched"`
	QueryBounds   orb.Bound    `json:"queryBounds"`
	QueryZoom     int          `json:"queryZoom"`
	InFlight      bool         `json:"inFlight"`
	Prefetching   bool         `json:"prefetching"`
	PendingReveal bool         `json:"pendingReveal"`
	Generation    uint64       `json:"generation"`
	Err           string       `json:"error,omitempty"`
}

func (f FetchState) Loading() bool { return f.InFlight || f.Prefetching }

// fetchState is the live bookkeeping. Only the view loop touches it.
type fetchState struct {
	tracker  *viewport.Tracker
	debounce *schedule.Debouncer
	channel  fetch.Channel
	prefetch *prefetch.Coordinator

	sent       query.ClusterQuery
	revealWith query.ClusterQuery
	err        string
	// trailing records a change that arrived while a fetch was in flight.
	trailing bool
}

func (f *fetchState) export() FetchState {
	last, has := f.tracker.Last()
	return FetchState{
		LastFetched:   last,
		HasFetched:    has,
		QueryBounds:   f.sent.Bounds,
		QueryZoom:     f.sent.Zoom,
		InFlight:      f.channel.InFlight(),
		Prefetching:   f.prefetch.Active(),
		PendingReveal: f.prefetch.PendingReveal(),
		Generation:    f.channel.Generation(),
		Err:           f.err,
	}
}

type FlyCommand struct {
	Target   prefetch.Target `json:"target"`
	Duration time.Duration   `json:"duration"`
}

// Frame is what a view pushes to its renderers.
type Frame struct {
	Version  int
	Features []room.Feature
	Metadata room.Metadata
	Fetch    FetchState
	// Fly is set when the map surface should start a camera animation.
	Fly *FlyCommand
}

// State is returned by GetState.
type State struct {
	ID         string
	Version    int
	NumClients int
	Camera     geo.Viewport
	Filter     query.Filter
	Fetch      FetchState
	Features   []room.Feature
	Metadata   room.Metadata
}
