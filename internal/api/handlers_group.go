package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/geosocial/proximity/internal/api/respond"
	"github.com/geosocial/proximity/internal/model"
	"github.com/geosocial/proximity/internal/services"
)

type GroupHandler struct {
	svc *services.GroupService
}

func NewGroupHandler(svc *services.GroupService) *GroupHandler { return &GroupHandler{svc: svc} }

func (h *GroupHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var in struct {
		CreatorID    string           `json:"creatorId"`
		Name         string           `json:"name"`
		LocationName string           `json:"locationName"`
		Location     model.Coordinate `json:"location"`
		Description  *string          `json:"description,omitempty"`
		Password     string           `json:"password,omitempty"`
	}
	if err := decodeJSON(r, &in); err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	g, err := h.svc.Create(r.Context(), services.CreateGroup{
		CreatorID:    in.CreatorID,
		Name:         in.Name,
		LocationName: in.LocationName,
		Location:     in.Location,
		Description:  in.Description,
		Password:     in.Password,
	})
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusCreated, g)
}

func (h *GroupHandler) GetGroup(w http.ResponseWriter, r *http.Request) {
	g, err := h.svc.Get(r.Context(), mux.Vars(r)["groupId"])
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, g)
}

// SearchGroups handles GET /api/groups/search?name=&limit=.
func (h *GroupHandler) SearchGroups(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit")
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	groups, err := h.svc.SearchByName(r.Context(), r.URL.Query().Get("name"), limit)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	if groups == nil {
		groups = []*model.Group{}
	}
	respond.WriteJSON(w, http.StatusOK, groups)
}

type membershipRequest struct {
	UserID   string `json:"userId"`
	Password string `json:"password,omitempty"`
}

func (h *GroupHandler) JoinGroup(w http.ResponseWriter, r *http.Request) {
	var in membershipRequest
	if err := decodeJSON(r, &in); err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	g, err := h.svc.Join(r.Context(), mux.Vars(r)["groupId"], in.UserID, in.Password)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, g)
}

func (h *GroupHandler) LeaveGroup(w http.ResponseWriter, r *http.Request) {
	var in membershipRequest
	if err := decodeJSON(r, &in); err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	g, err := h.svc.Leave(r.Context(), mux.Vars(r)["groupId"], in.UserID)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, g)
}

// UpdateLocation handles PUT /api/groups/{groupId}/location.
func (h *GroupHandler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	var in struct {
		LocationName string           `json:"locationName"`
		Location     model.Coordinate `json:"location"`
	}
	if err := decodeJSON(r, &in); err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	g, err := h.svc.Move(r.Context(), mux.Vars(r)["groupId"], in.LocationName, in.Location)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, g)
}

// UpdateGroup handles PATCH; omitted fields are left unchanged.
func (h *GroupHandler) UpdateGroup(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name        *string `json:"name,omitempty"`
		Description *string `json:"description,omitempty"`
	}
	if err := decodeJSON(r, &in); err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	g, err := h.svc.UpdateDetails(r.Context(), mux.Vars(r)["groupId"], in.Name, in.Description)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, g)
}

func (h *GroupHandler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), mux.Vars(r)["groupId"]); err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *GroupHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.svc.Members(r.Context(), mux.Vars(r)["groupId"])
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	if members == nil {
		members = []*model.GroupMembership{}
	}
	respond.WriteJSON(w, http.StatusOK, members)
}
