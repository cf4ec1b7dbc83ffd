package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/geosocial/proximity/internal/api/recovery"
	"github.com/geosocial/proximity/internal/proximity"
	"github.com/geosocial/proximity/internal/services"
)

// Deps are the services the router exposes.
type Deps struct {
	Nearby     *proximity.Service
	Users      *services.UserService
	Groups     *services.GroupService
	Activities *services.ActivityService
	Health     HealthReporter
}

// NewRouter creates the HTTP router with every API route registered.
func NewRouter(d Deps) *mux.Router {
	router := mux.NewRouter()
	router.Use(recovery.Middleware)

	health := NewHealthHandler(d.Health)
	nearby := NewNearbyHandler(d.Nearby)
	users := NewUserHandler(d.Users, d.Activities)
	groups := NewGroupHandler(d.Groups)
	activities := NewActivityHandler(d.Activities)

	router.HandleFunc("/api/health", health.CheckHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	router.HandleFunc("/api/nearby/{kind}", nearby.FindNearby).Methods(http.MethodGet)

	router.HandleFunc("/api/users", users.CreateUser).Methods(http.MethodPost)
	router.HandleFunc("/api/users/{userId}", users.GetUser).Methods(http.MethodGet)
	router.HandleFunc("/api/users/{userId}", users.UpdateUser).Methods(http.MethodPatch)
	router.HandleFunc("/api/users/{userId}", users.DeleteUser).Methods(http.MethodDelete)
	router.HandleFunc("/api/users/{userId}/location", users.UpdateLocation).Methods(http.MethodPut)
	router.HandleFunc("/api/users/{userId}/groups", users.ListGroups).Methods(http.MethodGet)
	router.HandleFunc("/api/users/{userId}/activities", users.ListActivities).Methods(http.MethodGet)

	// search is registered before {groupId} so it is not captured as an id
	router.HandleFunc("/api/groups", groups.CreateGroup).Methods(http.MethodPost)
	router.HandleFunc("/api/groups/search", groups.SearchGroups).Methods(http.MethodGet)
	router.HandleFunc("/api/groups/{groupId}", groups.GetGroup).Methods(http.MethodGet)
	router.HandleFunc("/api/groups/{groupId}", groups.UpdateGroup).Methods(http.MethodPatch)
	router.HandleFunc("/api/groups/{groupId}", groups.DeleteGroup).Methods(http.MethodDelete)
	router.HandleFunc("/api/groups/{groupId}/join", groups.JoinGroup).Methods(http.MethodPost)
	router.HandleFunc("/api/groups/{groupId}/leave", groups.LeaveGroup).Methods(http.MethodPost)
	router.HandleFunc("/api/groups/{groupId}/location", groups.UpdateLocation).Methods(http.MethodPut)
	router.HandleFunc("/api/groups/{groupId}/members", groups.ListMembers).Methods(http.MethodGet)

	router.HandleFunc("/api/activities", activities.CreateActivity).Methods(http.MethodPost)
	router.HandleFunc("/api/activities/{activityId}", activities.DeleteActivity).Methods(http.MethodDelete)

	return router
}
