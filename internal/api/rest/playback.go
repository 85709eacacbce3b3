package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noFlowWater/yukebox-sub000/internal/app/engine"
)

type playRequest struct {
	URL       string `json:"url" validate:"required_without=Query"`
	Query     string `json:"query"`
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail"`
	Duration  int    `json:"duration" validate:"gte=0"`
}

type volumeRequest struct {
	Volume int `json:"volume" validate:"gte=0,lte=100"`
}

type seekRequest struct {
	Position float64 `json:"position" validate:"gte=0"`
}

func (h *Handler) playNow(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.engineFor(w, r)
	if !ok {
		return
	}
	var req playRequest
	if !h.decode(w, r, &req) {
		return
	}

	item, err := eng.PlayNow(r.Context(), engine.TrackRequest{
		URL:       req.URL,
		Query:     req.Query,
		Title:     req.Title,
		Thumbnail: req.Thumbnail,
		Duration:  req.Duration,
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *Handler) stop(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.engineFor(w, r)
	if !ok {
		return
	}
	if err := eng.Stop(r.Context()); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": eng.State().String()})
}

func (h *Handler) togglePause(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.engineFor(w, r)
	if !ok {
		return
	}
	state, err := eng.TogglePause(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": state.String()})
}

func (h *Handler) setVolume(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.engineFor(w, r)
	if !ok {
		return
	}
	var req volumeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := eng.SetVolume(r.Context(), req.Volume); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"volume": req.Volume})
}

func (h *Handler) seek(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.engineFor(w, r)
	if !ok {
		return
	}
	var req seekRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := eng.Seek(r.Context(), req.Position); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) playFromQueue(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.engineFor(w, r)
	if !ok {
		return
	}
	item, err := eng.PlayFromQueue(r.Context(), chi.URLParam(r, "itemID"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}
