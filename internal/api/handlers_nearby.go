package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/geosocial/proximity/internal/api/respond"
	"github.com/geosocial/proximity/internal/model"
	"github.com/geosocial/proximity/internal/proximity"
)

// NearbyResponse is the body of GET /api/nearby/{kind}.
type NearbyResponse[T model.Entity] struct {
	Kind    model.Kind        `json:"kind"`
	Count   int               `json:"count"`
	Results []model.Result[T] `json:"results"`
}

type NearbyHandler struct {
	svc *proximity.Service
}

func NewNearbyHandler(svc *proximity.Service) *NearbyHandler { return &NearbyHandler{svc: svc} }

// FindNearby handles GET /api/nearby/{kind}?lat=&lon=&radius=&limit=.
func (h *NearbyHandler) FindNearby(w http.ResponseWriter, r *http.Request) {
	kind, err := model.ParseKind(mux.Vars(r)["kind"])
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	q, err := nearbyQuery(r)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	switch kind {
	case model.KindUser:
		serveNearby(r.Context(), w, h.svc.Users, q)
	case model.KindGroup:
		serveNearby(r.Context(), w, h.svc.Groups, q)
	case model.KindActivity:
		serveNearby(r.Context(), w, h.svc.Activities, q)
	}
}

func nearbyQuery(r *http.Request) (proximity.Query, error) {
	var q proximity.Query
	var err error
	if q.Latitude, err = requiredFloatParam(r, "lat"); err != nil {
		return q, err
	}
	if q.Longitude, err = requiredFloatParam(r, "lon"); err != nil {
		return q, err
	}
	if q.RadiusMeters, err = floatParam(r, "radius", 0); err != nil {
		return q, err
	}
	if q.Limit, err = intParam(r, "limit"); err != nil {
		return q, err
	}
	return q, nil
}

func serveNearby[T model.Entity](ctx context.Context, w http.ResponseWriter, s *proximity.Searcher[T], q proximity.Query) {
	hits, err := s.FindNearby(ctx, q)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	if hits == nil {
		hits = []model.Result[T]{}
	}
	respond.WriteJSON(w, http.StatusOK, NearbyResponse[T]{Kind: s.Kind(), Count: len(hits), Results: hits})
}
