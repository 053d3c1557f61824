package query

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alimutlu55/localchat-discovery/internal/room"
)

const clusterFixture = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [-122.41, 37.77]},
     "properties": {"cluster": true, "clusterId": 42, "pointCount": 7,
                    "expansionBounds": [-122.45, 37.74, -122.39, 37.80]}},
    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [-122.30, 37.85]},
     "properties": {"cluster": false, "roomId": "r-1", "title": "Coffee", "participantCount": 3,
                    "status": "active", "expiresAt": "2026-10-17T18:00:00Z"}},
    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [0, 0]},
     "properties": {"cluster": false}}
  ],
  "metadata": {"clusterCount": 1, "individualCount": 1, "totalRooms": 8, "processingTimeMs": 12}
}`

func newServer(t *testing.T, r chi.Router) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	c, err := NewHTTPClient(srv.URL, time.Second, nil)
	require.NoError(t, err)
	return c
}

func TestClusters(t *testing.T) {
	var got map[string]string
	r := chi.NewRouter()
	r.Get(ClustersPath, func(w http.ResponseWriter, req *http.Request) {
		got = map[string]string{}
		for k := range req.URL.Query() {
			got[k] = req.URL.Query().Get(k)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(clusterFixture))
	})
	c := newServer(t, r)

	resp, err := c.Clusters(context.Background(), ClusterQuery{
		Bounds:   orb.Bound{Min: orb.Point{-122.6, 37.6}, Max: orb.Point{-122.2, 37.9}},
		Zoom:     12,
		Category: "food",
		User:     &UserLocation{Lat: 37.77, Lng: -122.41},
	})
	require.NoError(t, err)

	assert.Equal(t, "12", got["zoom"])
	assert.Equal(t, "-122.6", got["minLng"])
	assert.Equal(t, "37.9", got["maxLat"])
	assert.Equal(t, "food", got["category"])
	assert.Equal(t, "37.77", got["userLat"])

	require.Len(t, resp.Features, 2, "malformed feature must be skipped")
	cl := resp.Features[0]
	assert.True(t, cl.Cluster)
	assert.EqualValues(t, 42, cl.ClusterID)
	assert.Equal(t, 7, cl.PointCount)
	assert.True(t, cl.Contains(orb.Point{-122.42, 37.75}))

	rm := resp.Features[1]
	assert.Equal(t, "r-1", rm.RoomID)
	assert.Equal(t, 3, rm.Room.ParticipantCount)
	assert.Equal(t, room.StatusActive, rm.Room.Status)
	assert.Equal(t, 8, resp.Metadata.TotalRooms)
}

func TestRooms(t *testing.T) {
	r := chi.NewRouter()
	r.Get(ViewportPath, func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "2", req.URL.Query().Get("page"))
		assert.Equal(t, "20", req.URL.Query().Get("pageSize"))
		_, _ = w.Write([]byte(`{"rooms":[
			{"id":"a","latitude":37.7,"longitude":-122.4,"title":"A","status":"ACTIVE","participantCount":2},
			{"id":"","title":"no id"}
		],"hasNext":true,"totalElements":41}`))
	})
	c := newServer(t, r)

	resp, err := c.Rooms(context.Background(), PageQuery{Page: 2, PageSize: 20})
	require.NoError(t, err)
	require.Len(t, resp.Rooms, 1)
	assert.Equal(t, orb.Point{-122.4, 37.7}, resp.Rooms[0].Location)
	assert.Equal(t, room.StatusActive, resp.Rooms[0].Status)
	assert.True(t, resp.HasNext)
	assert.Equal(t, 41, resp.TotalElements)
}

func TestNonOKStatus(t *testing.T) {
	r := chi.NewRouter()
	r.Get(ClustersPath, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	})
	c := newServer(t, r)

	_, err := c.Clusters(context.Background(), ClusterQuery{})
	require.ErrorIs(t, err, ErrStatus)
	assert.Contains(t, err.Error(), "overloaded")
}

func TestCancelledContext(t *testing.T) {
	block := make(chan struct{})
	r := chi.NewRouter()
	r.Get(ClustersPath, func(w http.ResponseWriter, req *http.Request) {
		select {
		case <-block:
		case <-req.Context().Done():
		}
	})
	c := newServer(t, r)
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Clusters(ctx, ClusterQuery{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewHTTPClientRejectsRelativeURL(t *testing.T) {
	_, err := NewHTTPClient("/api", time.Second, nil)
	require.Error(t, err)
}

func TestKeyDistinguishesQueries(t *testing.T) {
	b := orb.Bound{Min: orb.Point{1, 2}, Max: orb.Point{3, 4}}
	a := ClusterQuery{Bounds: b, Zoom: 5}
	assert.Equal(t, a.Key(), ClusterQuery{Bounds: b, Zoom: 5}.Key())
	assert.NotEqual(t, a.Key(), ClusterQuery{Bounds: b, Zoom: 6}.Key())
	assert.NotEqual(t, a.Key(), ClusterQuery{Bounds: b, Zoom: 5, Category: "food"}.Key())
}

func TestClustersSkipsNullAndAnonymousFeatures(t *testing.T) {
	r := chi.NewRouter()
	r.Get(ClustersPath, func(w http.ResponseWriter, req *http.Request) {
		_, _ = w.Write([]byte(`{"features":[
			null,
			{"type":"Feature","geometry":{"type":"Point","coordinates":[1,2]},
			 "properties":{"cluster":true,"pointCount":3,"expansionBounds":[0,1,2,3]}},
			{"type":"Feature","geometry":{"type":"Point","coordinates":[1,2]},
			 "properties":{"cluster":true,"clusterId":5,"pointCount":3,"expansionBounds":[0,1,2,3]}}
		],"metadata":{}}`))
	})
	c := newServer(t, r)

	var resp ClusterResponse
	var err error
	require.NotPanics(t, func() {
		resp, err = c.Clusters(context.Background(), ClusterQuery{Bounds: orb.Bound{Max: orb.Point{1, 1}}, Zoom: 3})
	})
	require.NoError(t, err)
	require.Len(t, resp.Features, 1)
	assert.EqualValues(t, 5, resp.Features[0].ClusterID)
}
