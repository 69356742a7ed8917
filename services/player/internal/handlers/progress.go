package handlers

import (
	"net/http"

	"github.com/example/checkpoint-player/internal/platform/api"
	"github.com/example/checkpoint-player/internal/platform/auth"
	"github.com/example/checkpoint-player/internal/platform/httpserver"
	"github.com/example/checkpoint-player/internal/progress"
)

type progressListResponse struct {
	Items []progressView `json:"items"`
}

// ListProgress returns the caller's progress on every video they opened.
func ListProgress(repo progress.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			api.Unauthorized(w, "AUTH_MISSING", "Missing auth", rid)
			return
		}
		recs, err := repo.ListByUser(r.Context(), uid)
		if err != nil {
			api.Internal(w, rid)
			return
		}
		out := progressListResponse{Items: make([]progressView, 0, len(recs))}
		for _, rec := range recs {
			out.Items = append(out.Items, toProgressView(rec))
		}
		api.WriteJSON(w, http.StatusOK, out)
	}
}
