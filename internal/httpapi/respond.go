package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/alimutlu55/localchat-discovery/internal/discovery"
	"github.com/alimutlu55/localchat-discovery/internal/hub"
	"github.com/alimutlu55/localchat-discovery/internal/pagination"
	"github.com/alimutlu55/localchat-discovery/internal/query"
	"github.com/alimutlu55/localchat-discovery/internal/store"
	"github.com/alimutlu55/localchat-discovery/internal/ws"
)

var errBadBody = errors.New("malformed request body")

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		a.log.Warn("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, errBadBody),
		errors.Is(err, ws.ErrBadBounds),
		errors.Is(err, ws.ErrBadCenter),
		errors.Is(err, ws.ErrUnknownType):
		return http.StatusBadRequest
	case errors.Is(err, hub.ErrSessionNotFound),
		errors.Is(err, discovery.ErrClusterNotFound):
		return http.StatusNotFound
	case errors.Is(err, discovery.ErrViewClosed):
		return http.StatusGone
	case errors.Is(err, pagination.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, store.ErrStoreClosed),
		errors.Is(err, hub.ErrHubClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, query.ErrStatus):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// decode reads an optional JSON body into v.
func decode(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return errBadBody
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
