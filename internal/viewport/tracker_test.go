package viewport

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"

	"github.com/alimutlu55/localchat-discovery/internal/geo"
)

func vp(minLng, minLat, maxLng, maxLat, zoom float64) geo.Viewport {
	return geo.Viewport{Bounds: orb.Bound{Min: orb.Point{minLng, minLat}, Max: orb.Point{maxLng, maxLat}}, Zoom: zoom}
}

func TestFirstLoadFetchesImmediately(t *testing.T) {
	tr := NewTracker(DefaultThresholds)
	assert.True(t, tr.Immediate())
	assert.True(t, tr.ShouldFetch(vp(-122.5, 37.7, -122.4, 37.8, 12)))

	_, ok := tr.Last()
	assert.False(t, ok)
}

func TestShouldFetch(t *testing.T) {
	base := vp(-122.5, 37.7, -122.4, 37.8, 12)

	tests := []struct {
		name string
		next geo.Viewport
		want bool
	}{
		{"unchanged", base, false},
		{"tiny zoom", vp(-122.5, 37.7, -122.4, 37.8, 12.05), false},
		{"zoom just under", vp(-122.5, 37.7, -122.4, 37.8, 12.29), false},
		{"zoom at threshold", vp(-122.5, 37.7, -122.4, 37.8, 12.3), true},
		{"zoom out", vp(-122.5, 37.7, -122.4, 37.8, 11.5), true},
		{"small pan east", vp(-122.47, 37.7, -122.37, 37.8, 12), false},
		{"large pan east", vp(-122.46, 37.7, -122.36, 37.8, 12), true},
		{"large pan south", vp(-122.5, 37.6, -122.4, 37.7, 12), true},
		{"pan and small zoom", vp(-122.48, 37.72, -122.38, 37.82, 12.1), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tr := NewTracker(DefaultThresholds)
			tr.MarkFetched(base)
			assert.Equal(t, tc.want, tr.ShouldFetch(tc.next))
		})
	}
}

func TestForceBypassesThresholds(t *testing.T) {
	base := vp(-122.5, 37.7, -122.4, 37.8, 12)
	tr := NewTracker(DefaultThresholds)
	tr.MarkFetched(base)
	assert.False(t, tr.Immediate())

	tr.Force()
	assert.True(t, tr.Immediate())
	assert.True(t, tr.ShouldFetch(base))

	tr.MarkFetched(base)
	assert.False(t, tr.ShouldFetch(base), "force is consumed by a fetch")
}

func TestMarkFetchedRecordsExactViewport(t *testing.T) {
	tr := NewTracker(Thresholds{})
	v := vp(1, 2, 3, 4, 7.25)
	tr.MarkFetched(v)
	got, ok := tr.Last()
	assert.True(t, ok)
	assert.Equal(t, v, got)
}
