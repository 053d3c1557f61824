// Package geo holds the viewport geometry shared by the discovery engine:
// bounds expansion for fetch margins, the viewport implied by a camera
// target, and the zoom needed to split a cluster.
package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

const (
	MinZoom = 0.0
	MaxZoom = 20.0

	maxLat = 85.0511
)

// World is the initial viewport bounds of a freshly mounted view.
var World = orb.Bound{Min: orb.Point{-180, -maxLat}, Max: orb.Point{180, maxLat}}

// WorldZoom is the zoom used when flying out to the whole world.
const WorldZoom = 1.0

type Viewport struct {
	Bounds orb.Bound
	Zoom   float64
}

func (v Viewport) Center() orb.Point { return v.Bounds.Center() }

func (v Viewport) String() string {
	return fmt.Sprintf("[%.5f,%.5f,%.5f,%.5f]@%.2f",
		v.Bounds.Min.Lon(), v.Bounds.Min.Lat(), v.Bounds.Max.Lon(), v.Bounds.Max.Lat(), v.Zoom)
}

// Screen is the size of the map surface in logical pixels.
type Screen struct {
	Width  int
	Height int
}

// DefaultScreen is a typical phone portrait viewport.
var DefaultScreen = Screen{Width: 390, Height: 844}

func (s Screen) valid() bool { return s.Width > 0 && s.Height > 0 }

// Expand grows b by factor times its span on every side and clamps the
// result to valid coordinates.
func Expand(b orb.Bound, factor float64) orb.Bound {
	dLng := (b.Max.Lon() - b.Min.Lon()) * factor
	dLat := (b.Max.Lat() - b.Min.Lat()) * factor
	return Clamp(orb.Bound{
		Min: orb.Point{b.Min.Lon() - dLng, b.Min.Lat() - dLat},
		Max: orb.Point{b.Max.Lon() + dLng, b.Max.Lat() + dLat},
	})
}

func Clamp(b orb.Bound) orb.Bound {
	return orb.Bound{
		Min: orb.Point{math.Max(b.Min.Lon(), -180), math.Max(b.Min.Lat(), -90)},
		Max: orb.Point{math.Min(b.Max.Lon(), 180), math.Min(b.Max.Lat(), 90)},
	}
}

// Span is the larger of the bound's width and height in degrees.
func Span(b orb.Bound) float64 {
	return math.Max(b.Max.Lon()-b.Min.Lon(), b.Max.Lat()-b.Min.Lat())
}

// ViewportAt returns the viewport a camera centred on center at zoom
// would show on screen, using 256px web mercator tiles.
func ViewportAt(center orb.Point, zoom float64, screen Screen) Viewport {
	if !screen.valid() {
		screen = DefaultScreen
	}
	lngSpan := 360 / math.Pow(2, zoom) * float64(screen.Width) / 256
	latSpan := lngSpan * float64(screen.Height) / float64(screen.Width) * math.Cos(center.Lat()*math.Pi/180)

	b := orb.Bound{
		Min: orb.Point{center.Lon() - lngSpan/2, center.Lat() - latSpan/2},
		Max: orb.Point{center.Lon() + lngSpan/2, center.Lat() + latSpan/2},
	}
	return Viewport{Bounds: Clamp(b), Zoom: zoom}
}

// ClampZoom keeps z inside [MinZoom, max].
func ClampZoom(z, max float64) float64 {
	return math.Min(math.Max(z, MinZoom), max)
}
