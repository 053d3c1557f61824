package ws

import (
	"time"

	"github.com/paulmach/orb"

	"github.com/alimutlu55/localchat-discovery/internal/discovery"
	"github.com/alimutlu55/localchat-discovery/internal/prefetch"
	"github.com/alimutlu55/localchat-discovery/internal/room"
	"github.com/alimutlu55/localchat-discovery/pkg/types"
)

// FrameMessages encodes a view frame. A frame that starts a fly animation
// sends the fly command ahead of the features.
func FrameMessages(f discovery.Frame) []types.ServerMessage {
	frame := types.ServerMessage{
		Type:     types.MsgFrame,
		Version:  f.Version,
		Features: room.Collection(f.Features),
		Metadata: MetadataOf(f.Metadata),
		Status:   StatusOf(f.Fetch),
	}
	if f.Fly == nil {
		return []types.ServerMessage{frame}
	}
	fly := types.ServerMessage{Type: types.MsgFly, Version: f.Version, Fly: FlyOf(f.Fly.Target, f.Fly.Duration)}
	return []types.ServerMessage{fly, frame}
}

func MetadataOf(m room.Metadata) *types.Metadata {
	return &types.Metadata{
		ClusterCount:     m.ClusterCount,
		IndividualCount:  m.IndividualCount,
		TotalRooms:       m.TotalRooms,
		ProcessingTimeMs: m.ProcessingTimeMs,
	}
}

func StatusOf(fs discovery.FetchState) *types.FetchStatus {
	st := &types.FetchStatus{
		Loading:     fs.Loading(),
		InFlight:    fs.InFlight,
		Prefetching: fs.Prefetching,
		HasFetched:  fs.HasFetched,
		QueryZoom:   fs.QueryZoom,
		Error:       fs.Err,
	}
	if fs.HasFetched {
		st.QueryBounds = boundsSlice(fs.QueryBounds)
	}
	return st
}

func FlyOf(t prefetch.Target, d time.Duration) *types.Fly {
	return &types.Fly{
		Center:     []float64{t.Center.Lon(), t.Center.Lat()},
		Zoom:       t.Zoom,
		DurationMs: d.Milliseconds(),
	}
}

func boundsSlice(b orb.Bound) []float64 {
	return []float64{b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat()}
}
