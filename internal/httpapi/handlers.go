package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"github.com/alimutlu55/localchat-discovery/internal/hub"
	"github.com/alimutlu55/localchat-discovery/internal/pagination"
	"github.com/alimutlu55/localchat-discovery/internal/query"
	"github.com/alimutlu55/localchat-discovery/internal/room"
	"github.com/alimutlu55/localchat-discovery/internal/ws"
	"github.com/alimutlu55/localchat-discovery/pkg/types"
)

type api struct {
	hub   *hub.Hub
	rooms Rooms
	log   *zap.Logger
}

type viewportResponse struct {
	Bounds []float64 `json:"bounds"`
	Zoom   float64   `json:"zoom"`
}

type stateResponse struct {
	ID       string                     `json:"id"`
	Version  int                        `json:"version"`
	Clients  int                        `json:"clients"`
	Camera   viewportResponse           `json:"camera"`
	Category string                     `json:"category,omitempty"`
	Features *geojson.FeatureCollection `json:"features"`
	Metadata *types.Metadata            `json:"metadata"`
	Status   *types.FetchStatus         `json:"status"`
}

type listRequest struct {
	Bounds    []float64 `json:"bounds"`
	Category  string    `json:"category"`
	Latitude  *float64  `json:"userLat"`
	Longitude *float64  `json:"userLng"`
}

type listResponse struct {
	State pagination.State `json:"state"`
	Rooms []room.Room      `json:"rooms"`
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (a *api) session(w http.ResponseWriter, r *http.Request) (*hub.Session, bool) {
	s, err := a.hub.Get(r.Context(), chi.URLParam(r, "viewID"))
	if err != nil {
		a.fail(w, r, err)
		return nil, false
	}
	return s, true
}

func (a *api) createView(w http.ResponseWriter, r *http.Request) {
	s, err := a.hub.Create(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, struct {
		ID string `json:"id"`
	}{ID: s.ID})
}

func (a *api) deleteView(w http.ResponseWriter, r *http.Request) {
	if err := a.hub.Remove(r.Context(), chi.URLParam(r, "viewID")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) viewState(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	st, err := s.View.State(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	b := st.Camera.Bounds
	writeJSON(w, http.StatusOK, stateResponse{
		ID:      st.ID,
		Version: st.Version,
		Clients: st.NumClients,
		Camera: viewportResponse{
			Bounds: []float64{b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat()},
			Zoom:   st.Camera.Zoom,
		},
		Category: string(st.Filter.Category),
		Features: room.Collection(st.Features),
		Metadata: ws.MetadataOf(st.Metadata),
		Status:   ws.StatusOf(st.Fetch),
	})
}

// command runs the same camera and filter messages a websocket renderer
// sends, taking the message body from the request.
func (a *api) command(typ string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := a.session(w, r)
		if !ok {
			return
		}
		var cm types.ClientMessage
		if err := decode(r, &cm); err != nil {
			a.fail(w, r, err)
			return
		}
		cm.Type = typ
		if typ == types.MsgExpandCluster {
			id, err := strconv.ParseInt(chi.URLParam(r, "clusterID"), 10, 64)
			if err != nil {
				a.fail(w, r, errBadBody)
				return
			}
			cm.ClusterID = id
		}

		reply, err := ws.Dispatch(r.Context(), s.View, cm)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		if reply == nil {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		writeJSON(w, http.StatusOK, reply)
	}
}

func (a *api) list(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	a.writeList(w, r, s)
}

func (a *api) resetList(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	var req listRequest
	if err := decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	b, err := ws.BoundsOf(req.Bounds)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	f := pagination.Filter{Bounds: b, Filter: query.Filter{Category: room.Category(req.Category)}}
	if req.Latitude != nil && req.Longitude != nil {
		f.User = &query.UserLocation{Lat: *req.Latitude, Lng: *req.Longitude}
	}
	if err := s.List.Reset(r.Context(), f); err != nil {
		a.fail(w, r, err)
		return
	}
	a.writeList(w, r, s)
}

func (a *api) loadMore(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	if _, err := s.List.LoadMore(r.Context()); err != nil {
		a.fail(w, r, err)
		return
	}
	a.writeList(w, r, s)
}

func (a *api) writeList(w http.ResponseWriter, r *http.Request, s *hub.Session) {
	snap, err := a.rooms.Snapshot(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{State: s.List.State(), Rooms: s.List.Items(snap)})
}
