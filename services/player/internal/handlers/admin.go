package handlers

import (
	"net/http"

	"github.com/example/checkpoint-player/internal/platform/api"
	"github.com/example/checkpoint-player/services/player/internal/sessions"
)

type adminSessionsResponse struct {
	Items []sessions.Info `json:"items"`
	Count int             `json:"count"`
}

// ListSessions is the operator view of live sessions. Mount behind
// auth.RequireAdmin.
func ListSessions(registry *sessions.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		items := registry.List()
		api.WriteJSON(w, http.StatusOK, adminSessionsResponse{Items: items, Count: len(items)})
	}
}
