// Package ws streams a session's map frames to a renderer and feeds its
// camera events back into the view.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/alimutlu55/localchat-discovery/internal/discovery"
	"github.com/alimutlu55/localchat-discovery/internal/geo"
	"github.com/alimutlu55/localchat-discovery/internal/hub"
	"github.com/alimutlu55/localchat-discovery/internal/prefetch"
	"github.com/alimutlu55/localchat-discovery/internal/query"
	"github.com/alimutlu55/localchat-discovery/internal/room"
	"github.com/alimutlu55/localchat-discovery/pkg/types"
)

var ErrUnknownType = errors.New("unknown message type")
var ErrBadBounds = errors.New("bounds must be [minLng, minLat, maxLng, maxLat]")
var ErrBadCenter = errors.New("center must be [lng, lat]")

const (
	writeTimeout = 3 * time.Second
	readTimeout  = 60 * time.Second
	outboxSize   = 16
)

type Options struct {
	OriginPatterns []string
	Logger         *zap.Logger
}

func Handler(h *hub.Hub, opts Options) http.HandlerFunc {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("ws")

	return func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("session")
		if id == "" {
			http.Error(w, "missing session", http.StatusBadRequest)
			return
		}
		s, err := h.Get(r.Context(), id)
		if err != nil {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: opts.OriginPatterns})
		if err != nil {
			log.Debug("accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		out := make(chan discovery.Frame, outboxSize)
		clientID := uuid.NewString()
		if err := s.View.Subscribe(clientID, out); err != nil {
			conn.Close(websocket.StatusGoingAway, "view closed")
			return
		}
		defer func() { _ = s.View.Unsubscribe(clientID) }()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		go func() {
			defer cancel()
			for f := range out {
				for _, msg := range FrameMessages(f) {
					if err := write(ctx, conn, msg); err != nil {
						return
					}
				}
			}
			// Outbox closed: the view dropped us or shut down.
			conn.Close(websocket.StatusTryAgainLater, "renderer too slow or view closed")
		}()

		for {
			rctx, rcancel := context.WithTimeout(ctx, readTimeout)
			_, data, err := conn.Read(rctx)
			rcancel()
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					log.Debug("read failed", zap.String("session", id), zap.Error(err))
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				_ = write(ctx, conn, types.ServerMessage{Type: types.MsgError, Error: "bad json"})
				continue
			}

			reply, err := Dispatch(ctx, s.View, cm)
			if err != nil {
				_ = write(ctx, conn, types.ServerMessage{Type: types.MsgError, Error: err.Error()})
				continue
			}
			if reply != nil {
				_ = write(ctx, conn, *reply)
			}
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, msg types.ServerMessage) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, msg)
}

// Dispatch applies one renderer message to v. Only expandCluster has a
// direct reply.
func Dispatch(ctx context.Context, v *discovery.View, cm types.ClientMessage) (*types.ServerMessage, error) {
	d := time.Duration(cm.DurationMs) * time.Millisecond

	switch cm.Type {
	case types.MsgCamera:
		b, err := BoundsOf(cm.Bounds)
		if err != nil {
			return nil, err
		}
		return nil, v.CameraMoved(geo.Viewport{Bounds: b, Zoom: cm.Zoom})

	case types.MsgRefetch:
		return nil, v.Refetch()

	case types.MsgFlyTo:
		c, err := CenterOf(cm.Center)
		if err != nil {
			return nil, err
		}
		return nil, v.FlyTo(prefetch.Target{Center: c, Zoom: cm.Zoom}, d)

	case types.MsgFlyToWorld:
		return nil, v.FlyToWorld(d)

	case types.MsgExpandCluster:
		t, err := v.ExpandCluster(ctx, cm.ClusterID, d)
		if err != nil {
			return nil, err
		}
		return &types.ServerMessage{Type: types.MsgExpanded, Fly: FlyOf(t, d)}, nil

	case types.MsgLocation:
		var loc *query.UserLocation
		if cm.Latitude != nil && cm.Longitude != nil {
			loc = &query.UserLocation{Lat: *cm.Latitude, Lng: *cm.Longitude}
		}
		return nil, v.SetLocation(loc)

	case types.MsgCategory:
		return nil, v.SetCategory(room.Category(cm.Category))
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, cm.Type)
}

func BoundsOf(v []float64) (orb.Bound, error) {
	if len(v) != 4 || v[0] > v[2] || v[1] > v[3] {
		return orb.Bound{}, ErrBadBounds
	}
	return orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}, nil
}

func CenterOf(v []float64) (orb.Point, error) {
	if len(v) != 2 {
		return orb.Point{}, ErrBadCenter
	}
	return orb.Point{v[0], v[1]}, nil
}
