package rest

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noFlowWater/yukebox-sub000/internal/domain/schedule"
)

type createScheduleRequest struct {
	URL         string    `json:"url" validate:"required_without=Query"`
	Query       string    `json:"query"`
	Title       string    `json:"title"`
	Duration    int       `json:"duration" validate:"gte=0"`
	ScheduledAt time.Time `json:"scheduled_at" validate:"required"`
	GroupID     *string   `json:"group_id"`
}

func (h *Handler) listSchedules(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	schedules, err := h.schedules.FindByRoom(r.Context(), roomID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, schedules)
}

func (h *Handler) createSchedule(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	if _, err := h.registry.GetOrCreate(r.Context(), roomID); err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	var req createScheduleRequest
	if !h.decode(w, r, &req) {
		return
	}

	s := &schedule.Schedule{
		ID:          uuid.New().String(),
		URL:         req.URL,
		Query:       req.Query,
		Title:       req.Title,
		Duration:    req.Duration,
		ScheduledAt: req.ScheduledAt,
		Status:      schedule.StatusPending,
		GroupID:     req.GroupID,
		RoomID:      roomID,
	}
	if err := h.schedules.Create(r.Context(), s); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}
