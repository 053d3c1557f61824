package prefetch

import (
	"context"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alimutlu55/localchat-discovery/internal/clock"
	"github.com/alimutlu55/localchat-discovery/internal/geo"
	"github.com/alimutlu55/localchat-discovery/internal/room"
)

var epoch = time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

func TestRevealDelay(t *testing.T) {
	assert.Equal(t, 2*time.Second, RevealDelay(3*time.Second))
	assert.Equal(t, time.Duration(0), RevealDelay(time.Second))
	assert.Equal(t, time.Duration(0), RevealDelay(400*time.Millisecond))
}

func TestRevealLandsBeforeAnimationEnds(t *testing.T) {
	c := clock.Fake(epoch)
	co := New(c)
	target := Target{Center: orb.Point{-122.42, 37.77}, Zoom: 14}

	_, gen := co.Begin(context.Background(), target.Viewport(geo.DefaultScreen), 3*time.Second)
	require.True(t, co.Active())

	c.Advance(500 * time.Millisecond)
	var fired []uint64
	ready, ok := co.Loaded(gen, room.FeatureSet{Metadata: room.Metadata{TotalRooms: 4}}, func(g uint64) { fired = append(fired, g) })
	require.True(t, ok)
	require.False(t, ready)
	assert.True(t, co.PendingReveal())
	assert.True(t, co.Active(), "still prefetching during the defer window")

	c.Advance(1400 * time.Millisecond)
	assert.Empty(t, fired)

	c.Advance(100 * time.Millisecond)
	require.Equal(t, []uint64{gen}, fired)

	got, ok := co.Reveal(gen)
	require.True(t, ok)
	assert.Equal(t, 4, got.Set.Metadata.TotalRooms)
	assert.InDelta(t, 14, got.Viewport.Zoom, 0)
	assert.False(t, co.Active())
	assert.False(t, co.PendingReveal())

	_, ok = co.Reveal(gen)
	assert.False(t, ok, "a reveal is handed over once")
}

func TestSlowQueryRevealsImmediately(t *testing.T) {
	c := clock.Fake(epoch)
	co := New(c)
	_, gen := co.Begin(context.Background(), geo.Viewport{Zoom: 5}, 1500*time.Millisecond)

	c.Advance(2 * time.Second)
	ready, ok := co.Loaded(gen, room.FeatureSet{}, func(uint64) { t.Fatal("no timer expected") })
	assert.True(t, ok)
	assert.True(t, ready)
	assert.Equal(t, 0, c.Pending())
}

func TestNewPrefetchCancelsPrevious(t *testing.T) {
	c := clock.Fake(epoch)
	co := New(c)

	ctx1, gen1 := co.Begin(context.Background(), geo.Viewport{Zoom: 3}, 3*time.Second)
	co.Loaded(gen1, room.FeatureSet{}, func(uint64) { t.Fatal("cancelled reveal fired") })
	require.Equal(t, 1, c.Pending())

	ctx2, gen2 := co.Begin(context.Background(), geo.Viewport{Zoom: 8}, 3*time.Second)
	assert.ErrorIs(t, ctx1.Err(), context.Canceled)
	assert.NoError(t, ctx2.Err())
	assert.Equal(t, 0, c.Pending(), "previous reveal timer cleared")

	_, ok := co.Loaded(gen1, room.FeatureSet{}, func(uint64) {})
	assert.False(t, ok, "stale completion")
	assert.False(t, co.Fail(gen1))
	assert.True(t, co.Active())

	c.Advance(5 * time.Second)
	assert.True(t, co.Fail(gen2))
	assert.False(t, co.Active())
	assert.ErrorIs(t, ctx2.Err(), context.Canceled)
}

func TestCancel(t *testing.T) {
	co := New(clock.Fake(epoch))
	ctx, gen := co.Begin(context.Background(), geo.Viewport{}, time.Second)
	co.Cancel()

	assert.Error(t, ctx.Err())
	assert.False(t, co.Active())
	_, ok := co.Reveal(gen)
	assert.False(t, ok)
}

func TestExpandTarget(t *testing.T) {
	tests := []struct {
		name   string
		bounds orb.Bound
		zoom   float64
		want   float64
	}{
		{"coincident points", orb.Bound{Min: orb.Point{2, 48}, Max: orb.Point{2, 48}}, 10, 16},
		{"coincident near max zoom", orb.Bound{Min: orb.Point{2, 48}, Max: orb.Point{2, 48}}, 17, geo.MaxZoom},
		{"wide cluster jumps at least two levels", orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{30, 10}}, 3, 5},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := room.Feature{Cluster: true, ExpansionBounds: tc.bounds}
			got := ExpandTarget(c, tc.zoom, geo.MaxZoom)
			assert.Equal(t, tc.want, got.Zoom)
			assert.Equal(t, tc.bounds.Center(), got.Center)
		})
	}
}

func TestWorld(t *testing.T) {
	target, v := World()
	assert.Equal(t, geo.World, v.Bounds)
	assert.Equal(t, geo.WorldZoom, target.Zoom)
	assert.Equal(t, geo.WorldZoom, v.Zoom)
}
