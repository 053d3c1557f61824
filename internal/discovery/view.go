// Package discovery runs one map view: it turns camera events into
// clustered queries, keeps the view's fetch state, reconciles responses
// with the room store and pushes frames to the view's renderers.
package discovery

import (
	"context"
	"errors"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/alimutlu55/localchat-discovery/internal/clock"
	"github.com/alimutlu55/localchat-discovery/internal/geo"
	"github.com/alimutlu55/localchat-discovery/internal/prefetch"
	"github.com/alimutlu55/localchat-discovery/internal/query"
	"github.com/alimutlu55/localchat-discovery/internal/reconcile"
	"github.com/alimutlu55/localchat-discovery/internal/room"
	"github.com/alimutlu55/localchat-discovery/internal/schedule"
	"github.com/alimutlu55/localchat-discovery/internal/viewport"
)

var ErrViewClosed = errors.New("view closed")
var ErrClusterNotFound = errors.New("cluster not in current response")

// Store is the part of the room store a view uses.
type Store interface {
	Subscribe(id string) (<-chan room.Snapshot, error)
	Unsubscribe(id string) error
	Remove(o room.Overlay, ids ...string) error
}

type Fetcher interface {
	Clusters(ctx context.Context, q query.ClusterQuery) (query.ClusterResponse, error)
}

type Options struct {
	Clock      clock.Clock
	Logger     *zap.Logger
	Screen     geo.Screen
	MaxZoom    float64
	Thresholds viewport.Thresholds
	// Delay maps the camera zoom to the debounce window.
	Delay func(zoom float64) time.Duration
}

type View struct {
	id      string
	inbox   chan Msg
	clock   clock.Clock
	log     *zap.Logger
	screen  geo.Screen
	maxZoom float64
	delay   func(float64) time.Duration

	store   Store
	fetcher Fetcher
	snaps   <-chan room.Snapshot

	camera  geo.Viewport
	filter  query.Filter
	fs      fetchState
	snap    room.Snapshot
	raw     room.FeatureSet
	derived reconcile.Result
	version int
	clients map[string]chan Frame

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New mounts a view at world bounds and starts its loop. The first camera
// event fetches immediately.
func New(parent context.Context, id string, st Store, f Fetcher, opts Options) (*View, error) {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MaxZoom <= 0 {
		opts.MaxZoom = geo.MaxZoom
	}
	if opts.Delay == nil {
		opts.Delay = schedule.DelayForZoom
	}

	snaps, err := st.Subscribe(subscriberID(id))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(parent)
	v := &View{
		id:      id,
		inbox:   make(chan Msg, 64),
		clock:   opts.Clock,
		log:     opts.Logger.Named("view").With(zap.String("view", id)),
		screen:  opts.Screen,
		maxZoom: opts.MaxZoom,
		delay:   opts.Delay,
		store:   st,
		fetcher: f,
		snaps:   snaps,
		camera:  geo.Viewport{Bounds: geo.World, Zoom: geo.WorldZoom},
		fs: fetchState{
			tracker:  viewport.NewTracker(opts.Thresholds),
			debounce: schedule.NewDebouncer(opts.Clock),
			prefetch: prefetch.New(opts.Clock),
		},
		snap:    room.NewSnapshot(),
		clients: make(map[string]chan Frame),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go v.loop()
	return v, nil
}

func subscriberID(viewID string) string { return "view:" + viewID }

func (v *View) ID() string { return v.id }

func (v *View) Inbox() chan<- Msg { return v.inbox }

func (v *View) Done() <-chan struct{} { return v.done }

func (v *View) loop() {
	defer close(v.done)

	for {
		select {
		case <-v.ctx.Done():
			v.shutdown()
			return

		case snap, ok := <-v.snaps:
			if !ok {
				v.log.Warn("room store subscription closed")
				v.snaps = nil
				continue
			}
			v.snap = snap
			if v.rederive() {
				v.broadcast(nil)
			}

		case m := <-v.inbox:
			switch msg := m.(type) {
			case CameraMoved:
				v.onCamera(msg.Viewport)

			case Refetch:
				v.refetch()

			case FlyTo:
				msg.Target.Zoom = geo.ClampZoom(msg.Target.Zoom, v.maxZoom)
				v.startPrefetch(msg.Target, msg.Target.Viewport(v.screen), msg.Duration)

			case FlyToWorld:
				target, vp := prefetch.World()
				v.startPrefetch(target, vp, msg.Duration)

			case ExpandCluster:
				msg.Reply <- v.expand(msg.ClusterID, msg.Duration)

			case SetLocation:
				if !sameLocation(v.filter.User, msg.Location) {
					v.filter.User = msg.Location
					v.filterChanged()
				}

			case SetCategory:
				if v.filter.Category != msg.Category {
					v.filter.Category = msg.Category
					v.filterChanged()
				}

			case Join:
				v.clients[msg.ClientID] = msg.Outbox
				v.sendTo(msg.ClientID, msg.Outbox, v.frame(nil))

			case Leave:
				if ch, ok := v.clients[msg.ClientID]; ok {
					close(ch)
					delete(v.clients, msg.ClientID)
				}

			case GetState:
				msg.Reply <- v.state()

			case debounceFired:
				v.onDebounce(msg.gen)

			case fetchDone:
				v.onFetchDone(msg)

			case prefetchDone:
				v.onPrefetchDone(msg)

			case revealDue:
				v.reveal(msg.gen)

			case Shutdown:
				v.shutdown()
				return
			}
		}
	}
}

func (v *View) shutdown() {
	v.fs.debounce.Cancel()
	v.fs.channel.Cancel()
	v.fs.prefetch.Cancel()
	if v.snaps != nil {
		if err := v.store.Unsubscribe(subscriberID(v.id)); err != nil {
			v.log.Debug("unsubscribing from room store", zap.Error(err))
		}
	}
	for id, ch := range v.clients {
		close(ch)
		delete(v.clients, id)
	}
	v.cancel()
}

// post delivers a completion from a timer or fetch goroutine. It gives up
// once the view is closed so nothing is applied after teardown.
func (v *View) post(m Msg) {
	select {
	case v.inbox <- m:
	case <-v.ctx.Done():
	}
}

// rederive recomputes the display features and reports whether they
// changed. Pending rooms the response accounts for are cleared in the
// store, which comes back as a new snapshot.
func (v *View) rederive() bool {
	res := reconcile.Derive(v.raw, v.snap)
	if len(res.Confirmed) > 0 {
		v.log.Debug("pending rooms confirmed", zap.Strings("rooms", res.Confirmed))
		if err := v.store.Remove(room.Pending, res.Confirmed...); err != nil {
			v.log.Warn("clearing confirmed pending rooms", zap.Error(err))
		}
	}
	changed := !slices.Equal(res.Features, v.derived.Features)
	v.derived = res
	return changed
}

func (v *View) frame(fly *FlyCommand) Frame {
	return Frame{
		Version:  v.version,
		Features: v.derived.Features,
		Metadata: v.raw.Metadata,
		Fetch:    v.fs.export(),
		Fly:      fly,
	}
}

func (v *View) broadcast(fly *FlyCommand) {
	v.version++
	f := v.frame(fly)
	for id, ch := range v.clients {
		v.sendTo(id, ch, f)
	}
}

// sendTo drops a renderer whose outbox is full.
func (v *View) sendTo(id string, ch chan Frame, f Frame) {
	select {
	case ch <- f:
	default:
		v.log.Info("dropping slow renderer", zap.String("client", id))
		close(ch)
		delete(v.clients, id)
	}
}

func (v *View) state() State {
	return State{
		ID:         v.id,
		Version:    v.version,
		NumClients: len(v.clients),
		Camera:     v.camera,
		Filter:     v.filter,
		Fetch:      v.fs.export(),
		Features:   v.derived.Features,
		Metadata:   v.raw.Metadata,
	}
}

func sameLocation(a, b *query.UserLocation) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
