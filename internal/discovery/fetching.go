package discovery

import (
	"time"

	"go.uber.org/zap"

	"github.com/alimutlu55/localchat-discovery/internal/fetch"
	"github.com/alimutlu55/localchat-discovery/internal/geo"
	"github.com/alimutlu55/localchat-discovery/internal/prefetch"
	"github.com/alimutlu55/localchat-discovery/internal/room"
)

func (v *View) onCamera(vp geo.Viewport) {
	v.camera = vp
	if v.fs.prefetch.Active() {
		// Intermediate frames of a fly animation.
		return
	}
	if !v.fs.tracker.ShouldFetch(vp) {
		return
	}
	if v.fs.tracker.Immediate() {
		v.startFetch(false)
		return
	}
	v.fs.debounce.Schedule(v.delay(vp.Zoom), func(gen uint64) {
		v.post(debounceFired{gen: gen})
	})
}

func (v *View) onDebounce(gen uint64) {
	if !v.fs.debounce.Accept(gen) {
		v.log.Debug("dropping stale debounce fire", zap.Uint64("gen", gen))
		return
	}
	if v.fs.prefetch.Active() || !v.fs.tracker.ShouldFetch(v.camera) {
		return
	}
	v.startFetch(false)
}

func (v *View) refetch() {
	v.fs.prefetch.Cancel()
	v.fs.tracker.Force()
	v.startFetch(true)
}

// filterChanged refetches with the new filter once the view has loaded
// anything; before that the first camera event will.
func (v *View) filterChanged() {
	if _, ok := v.fs.tracker.Last(); !ok && !v.fs.channel.InFlight() {
		return
	}
	v.refetch()
}

// startFetch queries the current camera viewport. A forced fetch replaces
// the in-flight one; otherwise a fetch in flight wins and the change is
// re-evaluated when it completes.
func (v *View) startFetch(forced bool) {
	v.fs.debounce.Cancel()

	vp := v.camera
	q := fetch.BuildQuery(vp, v.filter)

	var gen uint64
	ctx := v.ctx
	if forced {
		ctx, gen = v.fs.channel.Supersede(v.ctx)
	} else {
		var ok bool
		ctx, gen, ok = v.fs.channel.Begin(v.ctx)
		if !ok {
			v.log.Debug("fetch in flight; skipping", zap.Stringer("viewport", vp))
			v.fs.trailing = true
			return
		}
	}
	v.fs.trailing = false
	issued := v.clock.Now()

	v.log.Debug("fetching", zap.Stringer("viewport", vp), zap.Int("zoom", q.Zoom), zap.Uint64("gen", gen), zap.Bool("forced", forced))
	go func() {
		resp, err := v.fetcher.Clusters(ctx, q)
		v.post(fetchDone{
			gen:      gen,
			viewport: vp,
			query:    q,
			set:      room.FeatureSet{Features: resp.Features, Metadata: resp.Metadata, IssuedAt: issued},
			err:      err,
		})
	}()
	v.broadcast(nil)
}

func (v *View) onFetchDone(m fetchDone) {
	if !v.fs.channel.Complete(m.gen) {
		v.log.Debug("dropping stale fetch result", zap.Uint64("gen", m.gen))
		return
	}

	switch {
	case m.err == nil:
		v.fs.err = ""
		v.fs.tracker.MarkFetched(m.viewport)
		v.fs.sent = m.query
		v.raw = m.set
		v.rederive()
	case fetch.Canceled(m.err):
	default:
		v.fs.err = m.err.Error()
		v.fs.trailing = false
		v.log.Warn("fetch failed", zap.Stringer("viewport", m.viewport), zap.Error(m.err))
	}
	v.broadcast(nil)

	if v.fs.trailing {
		v.fs.trailing = false
		if !v.fs.prefetch.Active() && v.fs.tracker.ShouldFetch(v.camera) {
			v.startFetch(false)
		}
	}
}

func (v *View) startPrefetch(target prefetch.Target, vp geo.Viewport, d time.Duration) {
	// The normal channel's request is for a viewport the camera is
	// leaving.
	v.fs.debounce.Cancel()
	v.fs.channel.Cancel()
	v.fs.trailing = false

	q := fetch.BuildQuery(vp, v.filter)
	ctx, gen := v.fs.prefetch.Begin(v.ctx, vp, d)
	issued := v.clock.Now()

	v.log.Debug("prefetching", zap.Stringer("target", vp), zap.Duration("duration", d), zap.Uint64("gen", gen))
	go func() {
		resp, err := v.fetcher.Clusters(ctx, q)
		v.post(prefetchDone{
			gen:   gen,
			query: q,
			set:   room.FeatureSet{Features: resp.Features, Metadata: resp.Metadata, IssuedAt: issued},
			err:   err,
		})
	}()
	v.broadcast(&FlyCommand{Target: target, Duration: d})
}

func (v *View) onPrefetchDone(m prefetchDone) {
	if m.err != nil {
		if !v.fs.prefetch.Fail(m.gen) {
			return
		}
		if !fetch.Canceled(m.err) {
			v.log.Warn("prefetch failed", zap.Error(m.err))
		}
		v.broadcast(nil)
		return
	}

	ready, ok := v.fs.prefetch.Loaded(m.gen, m.set, func(gen uint64) {
		v.post(revealDue{gen: gen})
	})
	if !ok {
		v.log.Debug("dropping stale prefetch result", zap.Uint64("gen", m.gen))
		return
	}
	v.fs.revealWith = m.query
	if ready {
		v.reveal(m.gen)
	}
}

func (v *View) reveal(gen uint64) {
	loaded, ok := v.fs.prefetch.Reveal(gen)
	if !ok {
		return
	}
	v.camera = loaded.Viewport
	v.fs.tracker.MarkFetched(loaded.Viewport)
	v.fs.sent = v.fs.revealWith
	v.fs.err = ""
	v.raw = loaded.Set
	v.rederive()
	v.broadcast(nil)
}

func (v *View) expand(clusterID int64, d time.Duration) ExpandResult {
	for _, f := range v.raw.Features {
		if f.Cluster && f.ClusterID == clusterID {
			target := prefetch.ExpandTarget(f, v.camera.Zoom, v.maxZoom)
			v.startPrefetch(target, target.Viewport(v.screen), d)
			return ExpandResult{Target: target}
		}
	}
	return ExpandResult{Err: ErrClusterNotFound}
}
