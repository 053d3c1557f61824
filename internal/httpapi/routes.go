package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/alimutlu55/localchat-discovery/internal/hub"
	"github.com/alimutlu55/localchat-discovery/internal/ws"
	"github.com/alimutlu55/localchat-discovery/pkg/types"
)

func SetupRoutes(h *hub.Hub, rooms Rooms, opts ws.Options) http.Handler {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	api := &api{hub: h, rooms: rooms, log: log.Named("http")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(api.log))

	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(h, opts))

	r.Post("/views", api.createView)
	r.Route("/views/{viewID}", func(r chi.Router) {
		r.Delete("/", api.deleteView)
		r.Get("/state", api.viewState)
		r.Post("/camera", api.command(types.MsgCamera))
		r.Post("/refetch", api.command(types.MsgRefetch))
		r.Post("/fly", api.command(types.MsgFlyTo))
		r.Post("/world", api.command(types.MsgFlyToWorld))
		r.Post("/location", api.command(types.MsgLocation))
		r.Post("/category", api.command(types.MsgCategory))
		r.Post("/clusters/{clusterID}/expand", api.command(types.MsgExpandCluster))

		r.Get("/list", api.list)
		r.Post("/list/reset", api.resetList)
		r.Post("/list/more", api.loadMore)
	})

	r.Post("/rooms", api.createRoom)
	r.Route("/rooms/{roomID}", func(r chi.Router) {
		r.Post("/join", api.membership(Rooms.Join))
		r.Post("/leave", api.membership(Rooms.Leave))
		r.Post("/hide", api.membership(Rooms.Hide))
		r.Post("/unhide", api.membership(Rooms.Unhide))
	})
	return r
}
