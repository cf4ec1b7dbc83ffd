package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/geosocial/proximity/internal/api/respond"
	"github.com/geosocial/proximity/internal/model"
	"github.com/geosocial/proximity/internal/services"
)

type UserHandler struct {
	users      *services.UserService
	activities *services.ActivityService
}

func NewUserHandler(users *services.UserService, activities *services.ActivityService) *UserHandler {
	return &UserHandler{users: users, activities: activities}
}

func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Nickname    string            `json:"nickname"`
		Password    string            `json:"password,omitempty"`
		IsTemporary bool              `json:"isTemporary"`
		Location    *model.Coordinate `json:"location,omitempty"`
	}
	if err := decodeJSON(r, &in); err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	u, err := h.users.Register(r.Context(), services.RegisterUser{
		Nickname:  in.Nickname,
		Password:  in.Password,
		Temporary: in.IsTemporary,
		Location:  in.Location,
	})
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusCreated, u)
}

func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.Get(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, u)
}

// UpdateLocation handles PUT /api/users/{userId}/location.
func (h *UserHandler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	var in model.Coordinate
	if err := decodeJSON(r, &in); err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	u, err := h.users.ReportLocation(r.Context(), mux.Vars(r)["userId"], in)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, u)
}

func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Nickname string `json:"nickname"`
	}
	if err := decodeJSON(r, &in); err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	u, err := h.users.Rename(r.Context(), mux.Vars(r)["userId"], in.Nickname)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, u)
}

func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.users.Delete(r.Context(), mux.Vars(r)["userId"]); err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandler) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.users.Groups(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	if groups == nil {
		groups = []*model.Group{}
	}
	respond.WriteJSON(w, http.StatusOK, groups)
}

func (h *UserHandler) ListActivities(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit")
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	acts, err := h.activities.ListForUser(r.Context(), mux.Vars(r)["userId"], limit)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	if acts == nil {
		acts = []*model.Activity{}
	}
	respond.WriteJSON(w, http.StatusOK, acts)
}
