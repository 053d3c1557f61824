// Package query talks to the remote room query service: the clustered
// map query and the paginated list query.
package query

import (
	"context"
	"fmt"
	"strconv"

	"github.com/paulmach/orb"

	"github.com/alimutlu55/localchat-discovery/internal/room"
)

type Service interface {
	Clusters(ctx context.Context, q ClusterQuery) (ClusterResponse, error)
	Rooms(ctx context.Context, q PageQuery) (PageResponse, error)
}

// UserLocation is forwarded so the server can rank by distance.
type UserLocation struct {
	Lat float64
	Lng float64
}

// Filter narrows both query shapes.
type Filter struct {
	Category room.Category
	User     *UserLocation
}

type ClusterQuery struct {
	Bounds   orb.Bound
	Zoom     int
	Category room.Category
	User     *UserLocation
}

// Key identifies identical queries for request deduplication.
func (q ClusterQuery) Key() string {
	return "clusters|" + boundsKey(q.Bounds) + "|" + strconv.Itoa(q.Zoom) + "|" + string(q.Category) + "|" + userKey(q.User)
}

type ClusterResponse struct {
	Features []room.Feature
	Metadata room.Metadata
}

type PageQuery struct {
	Bounds   orb.Bound
	Category room.Category
	User     *UserLocation
	Page     int
	PageSize int
}

func (q PageQuery) Key() string {
	return fmt.Sprintf("rooms|%s|%s|%s|%d|%d", boundsKey(q.Bounds), q.Category, userKey(q.User), q.Page, q.PageSize)
}

type PageResponse struct {
	Rooms         []room.Room
	HasNext       bool
	TotalElements int
}

func boundsKey(b orb.Bound) string {
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f", b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat())
}

func userKey(u *UserLocation) string {
	if u == nil {
		return "-"
	}
	return fmt.Sprintf("%.5f,%.5f", u.Lat, u.Lng)
}
