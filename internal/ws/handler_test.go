package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alimutlu55/localchat-discovery/internal/hub"
	"github.com/alimutlu55/localchat-discovery/internal/query"
	"github.com/alimutlu55/localchat-discovery/internal/query/querytest"
	"github.com/alimutlu55/localchat-discovery/internal/room"
	"github.com/alimutlu55/localchat-discovery/internal/store"
	"github.com/alimutlu55/localchat-discovery/pkg/types"
)

func setup(t *testing.T) (*websocket.Conn, context.Context) {
	t.Helper()
	st, err := store.New(context.Background(), store.Options{})
	require.NoError(t, err)

	p := orb.Point{-122.45, 37.75}
	svc := &querytest.Fake{OnClusters: func(context.Context, query.ClusterQuery) (query.ClusterResponse, error) {
		return query.ClusterResponse{
			Features: []room.Feature{
				{Point: p, RoomID: "r1", Room: room.Room{ID: "r1", Location: p, Title: "Coffee"}},
				{Point: orb.Point{-122.42, 37.78}, Cluster: true, ClusterID: 9, PointCount: 3,
					ExpansionBounds: orb.Bound{Min: orb.Point{-122.43, 37.77}, Max: orb.Point{-122.41, 37.79}}},
			},
			Metadata: room.Metadata{ClusterCount: 1, IndividualCount: 1, TotalRooms: 4},
		}, nil
	}}
	h := hub.NewHub(context.Background(), hub.Config{Store: st, Fetcher: svc})
	s, err := h.Create(context.Background())
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Get("/ws", Handler(h, Options{}))
	srv := httptest.NewServer(r)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?session=" + s.ID
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close(websocket.StatusNormalClosure, "")
		cancel()
		srv.Close()
		h.Close()
		_ = st.Close()
	})
	return conn, ctx
}

// readUntil returns the first message of type typ.
func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, typ string, match func(types.ServerMessage) bool) types.ServerMessage {
	t.Helper()
	for {
		var msg types.ServerMessage
		require.NoError(t, wsjson.Read(ctx, conn, &msg))
		if msg.Type == typ && (match == nil || match(msg)) {
			return msg
		}
	}
}

func TestCameraStreamsFrames(t *testing.T) {
	conn, ctx := setup(t)

	first := readUntil(t, ctx, conn, types.MsgFrame, nil)
	assert.Empty(t, first.Features.Features)

	require.NoError(t, wsjson.Write(ctx, conn, types.ClientMessage{
		Type: types.MsgCamera, Bounds: []float64{-122.5, 37.7, -122.4, 37.8}, Zoom: 12,
	}))
	frame := readUntil(t, ctx, conn, types.MsgFrame, func(m types.ServerMessage) bool {
		return m.Features != nil && len(m.Features.Features) == 2
	})

	assert.Equal(t, "r1", frame.Features.Features[0].Properties.MustString("roomId"))
	assert.True(t, frame.Features.Features[1].Properties.MustBool("cluster"))
	assert.Equal(t, 4, frame.Metadata.TotalRooms)
	assert.True(t, frame.Status.HasFetched)
	assert.Equal(t, 12, frame.Status.QueryZoom)
	require.Len(t, frame.Status.QueryBounds, 4)
	assert.InDelta(t, -122.55, frame.Status.QueryBounds[0], 1e-9)
}

func TestExpandClusterSendsFly(t *testing.T) {
	conn, ctx := setup(t)
	require.NoError(t, wsjson.Write(ctx, conn, types.ClientMessage{
		Type: types.MsgCamera, Bounds: []float64{-122.5, 37.7, -122.4, 37.8}, Zoom: 12,
	}))
	readUntil(t, ctx, conn, types.MsgFrame, func(m types.ServerMessage) bool { return m.Status.HasFetched })

	require.NoError(t, wsjson.Write(ctx, conn, types.ClientMessage{Type: types.MsgExpandCluster, ClusterID: 9, DurationMs: 1500}))

	// The fly frame and the direct reply travel on different goroutines.
	var fly, expanded *types.Fly
	for fly == nil || expanded == nil {
		var msg types.ServerMessage
		require.NoError(t, wsjson.Read(ctx, conn, &msg))
		switch msg.Type {
		case types.MsgFly:
			fly = msg.Fly
		case types.MsgExpanded:
			expanded = msg.Fly
		}
	}
	assert.Equal(t, int64(1500), fly.DurationMs)
	assert.Greater(t, fly.Zoom, 12.0)
	assert.Equal(t, fly.Zoom, expanded.Zoom)
	assert.Equal(t, fly.Center, expanded.Center)
}

func TestBadMessagesGetErrors(t *testing.T) {
	conn, ctx := setup(t)

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{nope`)))
	msg := readUntil(t, ctx, conn, types.MsgError, nil)
	assert.Equal(t, "bad json", msg.Error)

	require.NoError(t, wsjson.Write(ctx, conn, types.ClientMessage{Type: "teleport"}))
	msg = readUntil(t, ctx, conn, types.MsgError, nil)
	assert.Contains(t, msg.Error, "unknown message type")

	require.NoError(t, wsjson.Write(ctx, conn, types.ClientMessage{Type: types.MsgCamera, Bounds: []float64{1, 2}}))
	msg = readUntil(t, ctx, conn, types.MsgError, nil)
	assert.Equal(t, ErrBadBounds.Error(), msg.Error)

	require.NoError(t, wsjson.Write(ctx, conn, types.ClientMessage{Type: types.MsgExpandCluster, ClusterID: 404}))
	msg = readUntil(t, ctx, conn, types.MsgError, nil)
	assert.Contains(t, msg.Error, "cluster not in current response")
}

func TestUnknownSession(t *testing.T) {
	st, err := store.New(context.Background(), store.Options{})
	require.NoError(t, err)
	defer st.Close()
	h := hub.NewHub(context.Background(), hub.Config{Store: st, Fetcher: &querytest.Fake{}})
	defer h.Close()

	srv := httptest.NewServer(Handler(h, Options{}))
	defer srv.Close()

	_, resp, err := websocket.Dial(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http")+"?session=missing", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 404, resp.StatusCode)
}
