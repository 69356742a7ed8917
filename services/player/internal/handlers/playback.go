package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/checkpoint-player/internal/catalog"
	"github.com/example/checkpoint-player/internal/gating"
	"github.com/example/checkpoint-player/internal/platform/api"
	"github.com/example/checkpoint-player/internal/platform/auth"
	"github.com/example/checkpoint-player/internal/platform/httpserver"
	"github.com/example/checkpoint-player/services/player/internal/evaluator"
	"github.com/example/checkpoint-player/services/player/internal/sessions"
)

type openSessionRequest struct {
	VideoID int64 `json:"video_id"`
}

type sessionResponse struct {
	SessionID  string             `json:"session_id"`
	Video      videoView          `json:"video"`
	Snapshot   snapshotView       `json:"snapshot"`
	Directives []gating.Directive `json:"directives"`
}

type timeRequest struct {
	T *float64 `json:"t"`
}

type timeResponse struct {
	Triggered  *questionView      `json:"triggered_question"`
	Snapshot   snapshotView       `json:"snapshot"`
	Directives []gating.Directive `json:"directives"`
}

type seekRequest struct {
	Target *float64 `json:"target"`
}

type seekResponse struct {
	Allowed            bool               `json:"allowed"`
	Reason             string             `json:"reason,omitempty"`
	Position           float64            `json:"position"`
	SnapBackTo         *float64           `json:"snap_back_to,omitempty"`
	BlockingQuestionID int64              `json:"blocking_question_id,omitempty"`
	Snapshot           snapshotView       `json:"snapshot"`
	Directives         []gating.Directive `json:"directives"`
}

type answerRequest struct {
	Answer string `json:"answer"`
}

type resolutionView struct {
	Kind           string  `json:"kind"`
	QuestionID     int64   `json:"question_id"`
	Correct        bool    `json:"correct"`
	RetriesLeft    *int    `json:"retries_left,omitempty"`
	Position       float64 `json:"position"`
	NewlyCompleted bool    `json:"newly_completed"`
}

type answerResponse struct {
	Resolution   resolutionView     `json:"resolution"`
	Explanation  string             `json:"explanation,omitempty"`
	Summary      string             `json:"summary,omitempty"`
	AllCompleted bool               `json:"all_completed"`
	Snapshot     snapshotView       `json:"snapshot"`
	Directives   []gating.Directive `json:"directives"`
}

// OpenSession loads a video for the caller and registers a new session. The
// directives carry the resume seek; the client starts playback itself.
func OpenSession(deps gating.Deps, registry *sessions.Registry, cfg gating.SessionConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			api.Unauthorized(w, "AUTH_MISSING", "Missing auth", rid)
			return
		}

		var req openSessionRequest
		if !decodeJSON(w, r, rid, &req) {
			return
		}
		if req.VideoID <= 0 {
			api.BadRequest(w, "INVALID_VIDEO_ID", "video_id must be positive", rid, nil)
			return
		}

		s, err := gating.Open(r.Context(), deps, gating.NewDirectiveSurface(0), uid, req.VideoID, cfg)
		if err != nil {
			writeLoadError(w, rid, httpserver.LoggerFromContext(r.Context(), cfg.Logger), err)
			return
		}
		e := registry.Add(uid, s)
		api.WriteJSON(w, http.StatusCreated, sessionResponse{
			SessionID:  e.ID,
			Video:      toVideoView(s.Video()),
			Snapshot:   toSnapshotView(s.Snapshot()),
			Directives: directives(s.Directives()),
		})
	}
}

func GetSession(registry *sessions.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		e, ok := lookupSession(w, r, rid, registry)
		if !ok {
			return
		}
		api.WriteJSON(w, http.StatusOK, sessionResponse{
			SessionID:  e.ID,
			Video:      toVideoView(e.Session.Video()),
			Snapshot:   toSnapshotView(e.Session.Snapshot()),
			Directives: directives(e.Session.Directives()),
		})
	}
}

// AdvanceTime reports the surface's playback time.
func AdvanceTime(registry *sessions.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		e, ok := lookupSession(w, r, rid, registry)
		if !ok {
			return
		}
		var req timeRequest
		if !decodeJSON(w, r, rid, &req) {
			return
		}
		if !validTime(req.T) {
			api.BadRequest(w, "INVALID_TIME", "t must be a playback time in seconds", rid, nil)
			return
		}

		res, err := e.Session.OnTimeAdvance(r.Context(), *req.T)
		if err != nil {
			writeSessionError(w, rid, err)
			return
		}
		out := timeResponse{Snapshot: toSnapshotView(res.Snapshot), Directives: directives(res.Directives)}
		if res.Triggered != nil {
			q := toQuestionView(*res.Triggered)
			out.Triggered = &q
		}
		api.WriteJSON(w, http.StatusOK, out)
	}
}

// Seek validates a user seek. A rejected seek is a 200 with allowed=false.
func Seek(registry *sessions.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		e, ok := lookupSession(w, r, rid, registry)
		if !ok {
			return
		}
		var req seekRequest
		if !decodeJSON(w, r, rid, &req) {
			return
		}
		if !validTime(req.Target) {
			api.BadRequest(w, "INVALID_TARGET", "target must be a playback time in seconds", rid, nil)
			return
		}

		res, err := e.Session.OnSeekAttempt(r.Context(), *req.Target)
		if err != nil {
			writeSessionError(w, rid, err)
			return
		}
		out := seekResponse{
			Allowed:    res.Allowed,
			Reason:     string(res.Reason),
			Position:   res.Position,
			Snapshot:   toSnapshotView(e.Session.Snapshot()),
			Directives: directives(res.Directives),
		}
		if !res.Allowed {
			pos := res.Position
			out.SnapBackTo = &pos
		}
		if res.Blocking != nil {
			out.BlockingQuestionID = res.Blocking.ID
		}
		api.WriteJSON(w, http.StatusOK, out)
	}
}

// SubmitAnswer grades the answer to the active question.
func SubmitAnswer(registry *sessions.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		e, ok := lookupSession(w, r, rid, registry)
		if !ok {
			return
		}
		var req answerRequest
		if !decodeJSON(w, r, rid, &req) || !validAnswer(w, rid, req.Answer) {
			return
		}

		res, err := e.Session.OnAnswerSubmit(r.Context(), req.Answer)
		if err != nil {
			writeSessionError(w, rid, err)
			return
		}
		rv := resolutionView{
			Kind:           string(res.Resolution.Kind),
			QuestionID:     res.Resolution.QuestionID,
			Correct:        res.Resolution.Kind == gating.ResolvedCorrect,
			Position:       res.Resolution.Position,
			NewlyCompleted: res.Resolution.NewlyCompleted,
		}
		if res.Resolution.Kind == gating.ResolvedRetry {
			n := res.Resolution.RetriesLeft
			rv.RetriesLeft = &n
		}
		api.WriteJSON(w, http.StatusOK, answerResponse{
			Resolution:   rv,
			Explanation:  res.Explanation,
			Summary:      res.Summary,
			AllCompleted: e.Session.AllCompleted(),
			Snapshot:     toSnapshotView(res.Snapshot),
			Directives:   directives(res.Directives),
		})
	}
}

// CloseSession unloads the session. Nothing is written on unload.
func CloseSession(registry *sessions.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			api.Unauthorized(w, "AUTH_MISSING", "Missing auth", rid)
			return
		}
		if err := registry.Remove(chi.URLParam(r, "id"), uid); err != nil {
			api.NotFound(w, "SESSION_NOT_FOUND", "Session not found", rid)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func lookupSession(w http.ResponseWriter, r *http.Request, rid string, registry *sessions.Registry) (*sessions.Entry, bool) {
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		api.Unauthorized(w, "AUTH_MISSING", "Missing auth", rid)
		return nil, false
	}
	e, err := registry.Get(chi.URLParam(r, "id"), uid)
	if err != nil {
		api.NotFound(w, "SESSION_NOT_FOUND", "Session not found", rid)
		return nil, false
	}
	return e, true
}

func writeLoadError(w http.ResponseWriter, rid string, log *zap.Logger, err error) {
	if errors.Is(err, catalog.ErrNotFound) {
		api.NotFound(w, "VIDEO_NOT_FOUND", "Video not found", rid)
		return
	}
	stage := "session"
	var le *gating.LoadError
	if errors.As(err, &le) {
		stage = le.Op
	}
	log.Warn("session load failed", zap.String("stage", stage), zap.Error(err))
	api.BadGateway(w, "LOAD_FAILED", "Could not load video", rid, map[string]any{"stage": stage})
}

func writeSessionError(w http.ResponseWriter, rid string, err error) {
	var ee *gating.EvaluatorError
	switch {
	case errors.As(err, &ee):
		if evaluator.IsInfrastructureError(ee.Err) {
			api.Unavailable(w, "EVALUATOR_UNAVAILABLE", "Answer could not be evaluated, resubmit to retry", rid,
				map[string]any{"question_id": ee.QuestionID})
			return
		}
		writeGRPCError(w, rid, ee.Err)
	case errors.Is(err, gating.ErrSessionClosed):
		api.NotFound(w, "SESSION_CLOSED", "Session closed", rid)
	case errors.Is(err, gating.ErrNotBlocked):
		api.Conflict(w, "NO_ACTIVE_QUESTION", "No question is active", rid, nil)
	case errors.Is(err, gating.ErrSubmissionInFlight):
		api.Conflict(w, "SUBMISSION_IN_FLIGHT", "An answer is already being evaluated", rid, nil)
	case errors.Is(err, gating.ErrEmptyAnswer):
		api.BadRequest(w, "EMPTY_ANSWER", "answer is required", rid, nil)
	default:
		api.Internal(w, rid)
	}
}
