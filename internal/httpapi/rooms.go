package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/paulmach/orb"

	"github.com/alimutlu55/localchat-discovery/internal/room"
)

// Rooms is the slice of the room store the HTTP surface mutates.
type Rooms interface {
	Snapshot(ctx context.Context) (room.Snapshot, error)
	CreateLocal(ctx context.Context, r room.Room) (room.Room, error)
	Join(id string) error
	Leave(id string) error
	Hide(id string) error
	Unhide(id string) error
}

type createRoomRequest struct {
	Title     string    `json:"title"`
	Category  string    `json:"category"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (a *api) createRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if req.Title == "" || req.Latitude < -90 || req.Latitude > 90 || req.Longitude < -180 || req.Longitude > 180 {
		a.fail(w, r, errBadBody)
		return
	}
	created, err := a.rooms.CreateLocal(r.Context(), room.Room{
		Title:     req.Title,
		Category:  room.Category(req.Category),
		Location:  orb.Point{req.Longitude, req.Latitude},
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (a *api) membership(op func(Rooms, string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := op(a.rooms, chi.URLParam(r, "roomID")); err != nil {
			a.fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
