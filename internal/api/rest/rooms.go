package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noFlowWater/yukebox-sub000/internal/domain/room"
)

type createRoomRequest struct {
	Name          string `json:"name" validate:"required"`
	AudioDevice   string `json:"audio_device"`
	DefaultVolume int    `json:"default_volume" validate:"gte=0,lte=100"`
}

type roomView struct {
	room.Room
	State string `json:"state"`
}

func (h *Handler) listRooms(w http.ResponseWriter, r *http.Request) {
	engines := h.registry.Engines()
	views := make([]roomView, 0, len(engines))
	for _, eng := range engines {
		views = append(views, roomView{Room: eng.Room(), State: eng.State().String()})
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) createRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.DefaultVolume == 0 {
		req.DefaultVolume = 50
	}

	rm := &room.Room{
		ID:            uuid.New().String(),
		Name:          req.Name,
		AudioDevice:   req.AudioDevice,
		DefaultVolume: req.DefaultVolume,
	}
	if err := h.rooms.Create(r.Context(), rm); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if _, err := h.registry.GetOrCreate(r.Context(), rm.ID); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, rm)
}

func (h *Handler) deleteRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	h.registry.Remove(roomID)
	if err := h.rooms.Delete(r.Context(), roomID); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.engineFor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, eng.CurrentStatus(r.Context()))
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	limit := 5
	tracks, err := h.resolver.Search(r.Context(), query, limit)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, tracks)
}
