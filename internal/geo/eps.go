package geo

import "math"

// EpsByZoom is the server clustering radius in degrees at each integer
// zoom: 40px at a 512px tile extent. Two rooms closer than eps merge into
// one cluster at that zoom.
var EpsByZoom = []float64{
	28.125,
	14.0625,
	7.03125,
	3.515625,
	1.7578125,
	0.87890625,
	0.439453125,
	0.2197265625,
	0.10986328125,
	0.054931640625,
	0.0274658203125,
	0.01373291015625,
	0.006866455078125,
	0.0034332275390625,
	0.00171661376953125,
	0.000858306884765625,
	0.0004291534423828125,
	0.00021457672119140625,
	0.000107288360595703125,
	0.0000536441802978515625,
	0.00002682209014892578125,
}

// EpsForZoom looks up the radius for the integer part of z.
func EpsForZoom(z float64) float64 {
	i := int(math.Floor(z))
	if i < 0 {
		i = 0
	}
	if i >= len(EpsByZoom) {
		i = len(EpsByZoom) - 1
	}
	return EpsByZoom[i]
}

// coincidentJump is how far to zoom into a cluster whose rooms all share
// one coordinate; no zoom can split it.
const coincidentJump = 6

// ExpansionZoom picks the zoom to fly to when a cluster with expansion
// span span is tapped at zoom current. The result is at least two levels
// deeper, at most ten, never beyond maxZoom, and deep enough that the
// clustering radius drops to a third of the span so the cluster splits.
func ExpansionZoom(span, current, maxZoom float64) float64 {
	if span <= 0 {
		return math.Min(current+coincidentJump, maxZoom)
	}

	want := span / 3
	z := math.Floor(current) + 1
	for ; z < float64(len(EpsByZoom)); z++ {
		if EpsByZoom[int(z)] <= want {
			break
		}
	}
	if z > maxZoom {
		z = maxZoom
	}

	return math.Min(math.Min(math.Max(z, current+2), current+10), maxZoom)
}
