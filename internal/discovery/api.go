package discovery

import (
	"context"
	"time"

	"github.com/alimutlu55/localchat-discovery/internal/geo"
	"github.com/alimutlu55/localchat-discovery/internal/prefetch"
	"github.com/alimutlu55/localchat-discovery/internal/query"
	"github.com/alimutlu55/localchat-discovery/internal/room"
)

func (v *View) send(m Msg) error {
	if v.ctx.Err() != nil {
		return ErrViewClosed
	}
	select {
	case v.inbox <- m:
		return nil
	case <-v.ctx.Done():
		return ErrViewClosed
	}
}

func (v *View) CameraMoved(vp geo.Viewport) error {
	return v.send(CameraMoved{Viewport: vp})
}

func (v *View) Refetch() error { return v.send(Refetch{}) }

func (v *View) FlyTo(t prefetch.Target, d time.Duration) error {
	return v.send(FlyTo{Target: t, Duration: d})
}

func (v *View) FlyToWorld(d time.Duration) error {
	return v.send(FlyToWorld{Duration: d})
}

// ExpandCluster starts the fly into cluster id and returns its target.
func (v *View) ExpandCluster(ctx context.Context, id int64, d time.Duration) (prefetch.Target, error) {
	reply := make(chan ExpandResult, 1)
	if err := v.send(ExpandCluster{ClusterID: id, Duration: d, Reply: reply}); err != nil {
		return prefetch.Target{}, err
	}
	select {
	case res := <-reply:
		return res.Target, res.Err
	case <-ctx.Done():
		return prefetch.Target{}, ctx.Err()
	case <-v.ctx.Done():
		return prefetch.Target{}, ErrViewClosed
	}
}

func (v *View) SetLocation(loc *query.UserLocation) error {
	return v.send(SetLocation{Location: loc})
}

func (v *View) SetCategory(c room.Category) error {
	return v.send(SetCategory{Category: c})
}

// Subscribe registers a renderer. The current frame is sent at once; a
// renderer whose outbox is full when a frame is ready is dropped and its
// outbox closed.
func (v *View) Subscribe(clientID string, outbox chan Frame) error {
	return v.send(Join{ClientID: clientID, Outbox: outbox})
}

func (v *View) Unsubscribe(clientID string) error {
	return v.send(Leave{ClientID: clientID})
}

func (v *View) State(ctx context.Context) (State, error) {
	reply := make(chan State, 1)
	if err := v.send(GetState{Reply: reply}); err != nil {
		return State{}, err
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return State{}, ctx.Err()
	case <-v.ctx.Done():
		return State{}, ErrViewClosed
	}
}

// Close tears the view down and waits for its loop to exit. In-flight
// results are discarded.
func (v *View) Close() {
	v.cancel()
	<-v.done
}
