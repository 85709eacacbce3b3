package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noFlowWater/yukebox-sub000/internal/domain/queue"
)

type enqueueRequest struct {
	Tracks []enqueueTrack `json:"tracks" validate:"required,min=1,dive"`
}

type enqueueTrack struct {
	URL       string `json:"url" validate:"required"`
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail"`
	Duration  int    `json:"duration" validate:"gte=0"`
}

type reorderRequest struct {
	Position int `json:"position" validate:"gte=0"`
}

func (h *Handler) listQueue(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.engineFor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, eng.Queue().Items())
}

func (h *Handler) enqueue(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.engineFor(w, r)
	if !ok {
		return
	}
	var req enqueueRequest
	if !h.decode(w, r, &req) {
		return
	}

	items := make([]queue.Item, 0, len(req.Tracks))
	for _, t := range req.Tracks {
		items = append(items, queue.Item{
			ID:        uuid.New().String(),
			URL:       t.URL,
			Title:     t.Title,
			Thumbnail: t.Thumbnail,
			Duration:  t.Duration,
			Status:    queue.StatusPending,
		})
	}
	if err := eng.EnqueueBulk(r.Context(), items); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, eng.Queue().Items())
}

func (h *Handler) clearQueue(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.engineFor(w, r)
	if !ok {
		return
	}
	if err := eng.ClearQueue(r.Context()); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) shuffleQueue(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.engineFor(w, r)
	if !ok {
		return
	}
	if err := eng.ShuffleQueue(r.Context()); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, eng.Queue().Items())
}

func (h *Handler) reorderItem(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.engineFor(w, r)
	if !ok {
		return
	}
	var req reorderRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := eng.ReorderItem(r.Context(), chi.URLParam(r, "itemID"), req.Position); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, eng.Queue().Items())
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.engineFor(w, r)
	if !ok {
		return
	}
	if err := eng.RemoveItem(r.Context(), chi.URLParam(r, "itemID")); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
