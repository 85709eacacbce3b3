// Package rest provides the HTTP surface over the playback engines.
package rest

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/noFlowWater/yukebox-sub000/internal/app/engine"
	"github.com/noFlowWater/yukebox-sub000/internal/app/registry"
	"github.com/noFlowWater/yukebox-sub000/internal/app/resolver"
	"github.com/noFlowWater/yukebox-sub000/internal/domain/room"
	"github.com/noFlowWater/yukebox-sub000/internal/domain/schedule"
	"github.com/noFlowWater/yukebox-sub000/internal/infra/store"
)

// RoomWriter is the write side of the room repository.
type RoomWriter interface {
	Create(ctx context.Context, rm *room.Room) error
	Delete(ctx context.Context, id string) error
}

// ScheduleWriter is the write/list side of the schedule repository.
type ScheduleWriter interface {
	Create(ctx context.Context, s *schedule.Schedule) error
	FindByRoom(ctx context.Context, roomID string) ([]schedule.Schedule, error)
}

// Handler serves the REST API.
type Handler struct {
	registry  *registry.Registry
	rooms     RoomWriter
	schedules ScheduleWriter
	resolver  resolver.Resolver
	validate  *validator.Validate
}

// NewHandler creates a REST handler.
func NewHandler(reg *registry.Registry, rooms RoomWriter, schedules ScheduleWriter, res resolver.Resolver) *Handler {
	return &Handler{
		registry:  reg,
		rooms:     rooms,
		schedules: schedules,
		resolver:  res,
		validate:  validator.New(),
	}
}

// Router builds the chi router.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Route("/api", func(r chi.Router) {
		r.Get("/rooms", h.listRooms)
		r.Post("/rooms", h.createRoom)
		r.Get("/search", h.search)
		r.Get("/events", h.streamEvents)

		r.Route("/rooms/{roomID}", func(r chi.Router) {
			r.Delete("/", h.deleteRoom)
			r.Get("/status", h.status)
			r.Post("/play", h.playNow)
			r.Post("/stop", h.stop)
			r.Post("/pause", h.togglePause)
			r.Post("/volume", h.setVolume)
			r.Post("/seek", h.seek)

			r.Get("/queue", h.listQueue)
			r.Post("/queue", h.enqueue)
			r.Delete("/queue", h.clearQueue)
			r.Post("/queue/shuffle", h.shuffleQueue)
			r.Post("/queue/{itemID}/play", h.playFromQueue)
			r.Post("/queue/{itemID}/reorder", h.reorderItem)
			r.Delete("/queue/{itemID}", h.removeItem)

			r.Get("/schedules", h.listSchedules)
			r.Post("/schedules", h.createSchedule)
		})
	})

	return r
}

func (h *Handler) engineFor(w http.ResponseWriter, r *http.Request) (*engine.Engine, bool) {
	roomID := chi.URLParam(r, "roomID")
	eng, err := h.registry.GetOrCreate(r.Context(), roomID)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return nil, false
	}
	return eng, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, errors.Wrap(err, "invalid request body"))
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrNotFound), errors.Is(err, registry.ErrRoomNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrIdle):
		return http.StatusConflict
	case errors.Is(err, resolver.ErrResolve):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
