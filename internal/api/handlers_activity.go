package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/geosocial/proximity/internal/api/respond"
	"github.com/geosocial/proximity/internal/model"
	"github.com/geosocial/proximity/internal/services"
)

type ActivityHandler struct {
	svc *services.ActivityService
}

func NewActivityHandler(svc *services.ActivityService) *ActivityHandler {
	return &ActivityHandler{svc: svc}
}

func (h *ActivityHandler) CreateActivity(w http.ResponseWriter, r *http.Request) {
	var in struct {
		UserID          string           `json:"userId"`
		GroupID         *string          `json:"groupId,omitempty"`
		ActivityType    string           `json:"activityType"`
		Details         *string          `json:"details,omitempty"`
		Location        model.Coordinate `json:"location"`
		LifetimeSeconds int              `json:"lifetimeSeconds,omitempty"`
	}
	if err := decodeJSON(r, &in); err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	typ, err := model.ParseActivityType(in.ActivityType)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	if in.LifetimeSeconds < 0 {
		respond.WriteServiceError(w, model.NewValidationError("lifetimeSeconds", "must not be negative"))
		return
	}
	a, err := h.svc.Record(r.Context(), services.RecordActivity{
		UserID:   in.UserID,
		GroupID:  in.GroupID,
		Type:     typ,
		Details:  in.Details,
		Location: in.Location,
		Lifetime: time.Duration(in.LifetimeSeconds) * time.Second,
	})
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusCreated, a)
}

func (h *ActivityHandler) DeleteActivity(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), mux.Vars(r)["activityId"]); err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
