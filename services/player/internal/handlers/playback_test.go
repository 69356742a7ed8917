package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/example/checkpoint-player/internal/catalog"
	"github.com/example/checkpoint-player/internal/evalrpc"
	"github.com/example/checkpoint-player/internal/gating"
	"github.com/example/checkpoint-player/internal/platform/auth"
	"github.com/example/checkpoint-player/internal/progress"
	"github.com/example/checkpoint-player/services/player/internal/sessions"
)

type stubEvaluator struct {
	outcome gating.Outcome
	err     error
	calls   int
}

func (s *stubEvaluator) SubmitAnswer(_ context.Context, _ gating.Submission) (gating.Outcome, error) {
	s.calls++
	return s.outcome, s.err
}

type testEnv struct {
	deps      gating.Deps
	registry  *sessions.Registry
	repo      *progress.MemoryRepository
	evaluator *stubEvaluator
}

func newTestEnv() *testEnv {
	store := catalog.NewMemoryStore()
	store.PutVideo(catalog.Video{ID: 1, Title: "Cells", Duration: 120, IsPublished: true})
	store.PutVideo(catalog.Video{ID: 2, Title: "Draft", Duration: 60})
	store.PutQuestion(catalog.Question{ID: 10, VideoID: 1, Timestamp: 30, Kind: gating.KindOneWord, Text: "Powerhouse of the cell?", CorrectAnswer: "mitochondria"})
	store.PutQuestion(catalog.Question{ID: 11, VideoID: 1, Timestamp: 60, Kind: gating.KindMultipleChoice, Text: "Pick one", Options: []string{"a", "b"}, CorrectAnswer: "b"})

	reader := catalog.NewReader(store)
	repo := progress.NewMemoryRepository()
	tracker := progress.NewTracker(repo, reader)
	eval := &stubEvaluator{}
	return &testEnv{
		deps: gating.Deps{
			Catalog:   reader,
			Progress:  tracker,
			Evaluator: eval,
			Sink:      tracker,
		},
		registry:  sessions.NewRegistry(time.Hour, nil),
		repo:      repo,
		evaluator: eval,
	}
}

// sessionReq builds a request with the id chi param set.
func sessionReq(method, url, id string, body any) *http.Request {
	var req *http.Request
	if body != nil {
		b, _ := json.Marshal(body)
		req = httptest.NewRequest(method, url, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, url, nil)
	}
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func asUser(req *http.Request, uid string) *http.Request {
	return req.WithContext(auth.WithUserID(req.Context(), uid))
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeBody(t, rr)
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func snapshotOf(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	snap, ok := body["snapshot"].(map[string]any)
	if !ok {
		t.Fatalf("missing snapshot in %v", body)
	}
	return snap
}

func hasDirective(body map[string]any, kind string) bool {
	list, _ := body["directives"].([]any)
	for _, d := range list {
		if m, ok := d.(map[string]any); ok && m["kind"] == kind {
			return true
		}
	}
	return false
}

func (e *testEnv) open(t *testing.T, uid string, videoID int64) string {
	t.Helper()
	req := asUser(sessionReq(http.MethodPost, "/v1/playback/sessions", "", map[string]any{"video_id": videoID}), uid)
	rr := httptest.NewRecorder()
	OpenSession(e.deps, e.registry, gating.SessionConfig{}).ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("open: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	id, _ := decodeBody(t, rr)["session_id"].(string)
	if id == "" {
		t.Fatal("open: missing session_id")
	}
	return id
}

func (e *testEnv) advance(t *testing.T, uid, id string, ts float64) map[string]any {
	t.Helper()
	rr := httptest.NewRecorder()
	AdvanceTime(e.registry).ServeHTTP(rr, asUser(sessionReq(http.MethodPost, "/time", id, map[string]any{"t": ts}), uid))
	if rr.Code != http.StatusOK {
		t.Fatalf("advance: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	return decodeBody(t, rr)
}

func (e *testEnv) answer(uid, id, answer string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	SubmitAnswer(e.registry).ServeHTTP(rr, asUser(sessionReq(http.MethodPost, "/answer", id, map[string]any{"answer": answer}), uid))
	return rr
}

func TestOpenSession_OK(t *testing.T) {
	env := newTestEnv()
	req := asUser(sessionReq(http.MethodPost, "/v1/playback/sessions", "", map[string]any{"video_id": 1}), "learner-1")
	rr := httptest.NewRecorder()
	OpenSession(env.deps, env.registry, gating.SessionConfig{}).ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	snap := snapshotOf(t, body)
	if snap["phase"] != "playing" || snap["total_questions"] != float64(2) {
		t.Fatalf("unexpected snapshot %v", snap)
	}
	if _, ok := body["directives"].([]any); !ok {
		t.Fatalf("directives should be an array, got %v", body["directives"])
	}
	if env.registry.Len() != 1 {
		t.Fatalf("expected 1 registered session, got %d", env.registry.Len())
	}
}

func TestOpenSession_Unauthenticated(t *testing.T) {
	env := newTestEnv()
	rr := httptest.NewRecorder()
	OpenSession(env.deps, env.registry, gating.SessionConfig{}).ServeHTTP(rr,
		sessionReq(http.MethodPost, "/v1/playback/sessions", "", map[string]any{"video_id": 1}))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestOpenSession_InvalidVideoID(t *testing.T) {
	env := newTestEnv()
	rr := httptest.NewRecorder()
	OpenSession(env.deps, env.registry, gating.SessionConfig{}).ServeHTTP(rr,
		asUser(sessionReq(http.MethodPost, "/v1/playback/sessions", "", map[string]any{"video_id": 0}), "learner-1"))
	if rr.Code != http.StatusBadRequest || errorCode(t, rr) != "INVALID_VIDEO_ID" {
		t.Fatalf("expected 400 INVALID_VIDEO_ID, got %d", rr.Code)
	}
}

func TestOpenSession_UnpublishedVideo(t *testing.T) {
	env := newTestEnv()
	rr := httptest.NewRecorder()
	OpenSession(env.deps, env.registry, gating.SessionConfig{}).ServeHTTP(rr,
		asUser(sessionReq(http.MethodPost, "/v1/playback/sessions", "", map[string]any{"video_id": 2}), "learner-1"))
	if rr.Code != http.StatusNotFound || errorCode(t, rr) != "VIDEO_NOT_FOUND" {
		t.Fatalf("expected 404 VIDEO_NOT_FOUND, got %d", rr.Code)
	}
	if env.registry.Len() != 0 {
		t.Fatal("no session should be registered on load failure")
	}
}

func TestAdvanceTime_TriggersQuestion(t *testing.T) {
	env := newTestEnv()
	id := env.open(t, "learner-1", 1)

	body := env.advance(t, "learner-1", id, 29.5)
	q, ok := body["triggered_question"].(map[string]any)
	if !ok || q["id"] != float64(10) {
		t.Fatalf("expected question 10 triggered, got %v", body["triggered_question"])
	}
	if snapshotOf(t, body)["phase"] != "blocked" || !hasDirective(body, "pause") {
		t.Fatalf("expected blocked with pause directive, got %v", body)
	}

	// Time updates are ignored while blocked.
	body = env.advance(t, "learner-1", id, 31)
	if body["triggered_question"] != nil || snapshotOf(t, body)["current_time"] != 29.5 {
		t.Fatalf("advance while blocked should be ignored, got %v", body)
	}
}

func TestAdvanceTime_NeverLeaksAnswer(t *testing.T) {
	env := newTestEnv()
	id := env.open(t, "learner-1", 1)
	rr := httptest.NewRecorder()
	AdvanceTime(env.registry).ServeHTTP(rr, asUser(sessionReq(http.MethodPost, "/time", id, map[string]any{"t": 30}), "learner-1"))
	if strings.Contains(rr.Body.String(), "mitochondria") {
		t.Fatalf("correct answer leaked: %s", rr.Body.String())
	}
}

func TestAdvanceTime_MissingT(t *testing.T) {
	env := newTestEnv()
	id := env.open(t, "learner-1", 1)
	rr := httptest.NewRecorder()
	AdvanceTime(env.registry).ServeHTTP(rr, asUser(sessionReq(http.MethodPost, "/time", id, map[string]any{}), "learner-1"))
	if rr.Code != http.StatusBadRequest || errorCode(t, rr) != "INVALID_TIME" {
		t.Fatalf("expected 400 INVALID_TIME, got %d", rr.Code)
	}
}

func TestSeek_RejectedPastIncompleteQuestion(t *testing.T) {
	env := newTestEnv()
	id := env.open(t, "learner-1", 1)

	rr := httptest.NewRecorder()
	Seek(env.registry).ServeHTTP(rr, asUser(sessionReq(http.MethodPost, "/seek", id, map[string]any{"target": 45}), "learner-1"))
	if rr.Code != http.StatusOK {
		t.Fatalf("rejected seek is still a 200, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["allowed"] != false || body["reason"] != "incomplete_prerequisite" {
		t.Fatalf("expected rejection, got %v", body)
	}
	if body["snap_back_to"] != float64(0) || body["blocking_question_id"] != float64(10) {
		t.Fatalf("unexpected snap back %v", body)
	}
}

func TestSeek_AllowedBeforeQuestion(t *testing.T) {
	env := newTestEnv()
	id := env.open(t, "learner-1", 1)

	rr := httptest.NewRecorder()
	Seek(env.registry).ServeHTTP(rr, asUser(sessionReq(http.MethodPost, "/seek", id, map[string]any{"target": 20}), "learner-1"))
	body := decodeBody(t, rr)
	if body["allowed"] != true || body["position"] != float64(20) {
		t.Fatalf("expected allowed seek to 20, got %v", body)
	}
	if _, ok := body["snap_back_to"]; ok {
		t.Fatal("snap_back_to should be omitted on allowed seeks")
	}
}

func TestSubmitAnswer_CorrectUnblocksAndPersists(t *testing.T) {
	env := newTestEnv()
	env.evaluator.outcome = gating.Outcome{Correct: true, Explanation: "Right"}
	id := env.open(t, "learner-1", 1)
	env.advance(t, "learner-1", id, 30)

	rr := env.answer("learner-1", id, "mitochondria")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	res := body["resolution"].(map[string]any)
	if res["kind"] != "correct" || res["correct"] != true || res["newly_completed"] != true {
		t.Fatalf("unexpected resolution %v", res)
	}
	if body["explanation"] != "Right" || !hasDirective(body, "play") {
		t.Fatalf("expected explanation and play directive, got %v", body)
	}
	if snapshotOf(t, body)["phase"] != "playing" {
		t.Fatalf("expected playing, got %v", snapshotOf(t, body))
	}

	rec, err := env.repo.Get(context.Background(), "learner-1", 1)
	if err != nil || len(rec.Completed) != 1 || rec.Completed[0] != 10 {
		t.Fatalf("completion not written through: %+v err=%v", rec, err)
	}
}

func TestSubmitAnswer_RetryReportsBudget(t *testing.T) {
	env := newTestEnv()
	env.evaluator.outcome = gating.Outcome{RetriesLeft: 2}
	id := env.open(t, "learner-1", 1)
	env.advance(t, "learner-1", id, 30)

	body := decodeBody(t, env.answer("learner-1", id, "nucleus"))
	res := body["resolution"].(map[string]any)
	if res["kind"] != "retry" || res["retries_left"] != float64(2) {
		t.Fatalf("unexpected resolution %v", res)
	}
	if snapshotOf(t, body)["retries_left"] != float64(2) {
		t.Fatalf("snapshot should carry the budget, got %v", snapshotOf(t, body))
	}
}

func TestSubmitAnswer_ExhaustedRewinds(t *testing.T) {
	env := newTestEnv()
	env.evaluator.outcome = gating.Outcome{RetriesLeft: 0, RewindSeconds: 20, Summary: "Mitochondria make ATP."}
	id := env.open(t, "learner-1", 1)
	env.advance(t, "learner-1", id, 29.5)

	body := decodeBody(t, env.answer("learner-1", id, "nucleus"))
	res := body["resolution"].(map[string]any)
	if res["kind"] != "rewound" || res["position"] != 9.5 {
		t.Fatalf("unexpected resolution %v", res)
	}
	if body["summary"] != "Mitochondria make ATP." || !hasDirective(body, "seek") {
		t.Fatalf("expected summary and seek directive, got %v", body)
	}
	rec, err := env.repo.Get(context.Background(), "learner-1", 1)
	if err != nil {
		t.Fatalf("expected a position record: %v", err)
	}
	if len(rec.Completed) != 0 {
		t.Fatalf("rewind must not complete the question: %+v", rec)
	}
}

func TestSubmitAnswer_EvaluatorUnavailable(t *testing.T) {
	env := newTestEnv()
	env.evaluator.err = status.Error(codes.Unavailable, "connection refused")
	id := env.open(t, "learner-1", 1)
	env.advance(t, "learner-1", id, 30)

	rr := env.answer("learner-1", id, "mitochondria")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %s", rr.Code, rr.Body.String())
	}
	e := decodeBody(t, rr)["error"].(map[string]any)
	if e["code"] != "EVALUATOR_UNAVAILABLE" || e["retryable"] != true {
		t.Fatalf("unexpected error %v", e)
	}

	e2, err := env.registry.Get(id, "learner-1")
	if err != nil || e2.Session.Snapshot().Phase != gating.PhaseBlocked {
		t.Fatal("session should stay blocked after an evaluator failure")
	}
}

func TestSubmitAnswer_EvaluatorQuestionNotFound(t *testing.T) {
	env := newTestEnv()
	st, _ := status.New(codes.NotFound, "question not found").WithDetails(&errdetails.ErrorInfo{
		Reason: evalrpc.ReasonQuestionNotFound, Domain: evalrpc.ErrorDomain,
	})
	env.evaluator.err = st.Err()
	id := env.open(t, "learner-1", 1)
	env.advance(t, "learner-1", id, 30)

	rr := env.answer("learner-1", id, "mitochondria")
	if rr.Code != http.StatusNotFound || errorCode(t, rr) != evalrpc.ReasonQuestionNotFound {
		t.Fatalf("expected 404 %s, got %d", evalrpc.ReasonQuestionNotFound, rr.Code)
	}
}

func TestSubmitAnswer_NoActiveQuestion(t *testing.T) {
	env := newTestEnv()
	id := env.open(t, "learner-1", 1)
	rr := env.answer("learner-1", id, "anything")
	if rr.Code != http.StatusConflict || errorCode(t, rr) != "NO_ACTIVE_QUESTION" {
		t.Fatalf("expected 409 NO_ACTIVE_QUESTION, got %d", rr.Code)
	}
	if env.evaluator.calls != 0 {
		t.Fatal("evaluator must not be called without an active question")
	}
}

func TestSubmitAnswer_EmptyAnswer(t *testing.T) {
	env := newTestEnv()
	id := env.open(t, "learner-1", 1)
	env.advance(t, "learner-1", id, 30)
	rr := env.answer("learner-1", id, "   ")
	if rr.Code != http.StatusBadRequest || errorCode(t, rr) != "EMPTY_ANSWER" {
		t.Fatalf("expected 400 EMPTY_ANSWER, got %d", rr.Code)
	}
}

func TestGetSession_OtherUser(t *testing.T) {
	env := newTestEnv()
	id := env.open(t, "learner-1", 1)
	rr := httptest.NewRecorder()
	GetSession(env.registry).ServeHTTP(rr, asUser(sessionReq(http.MethodGet, "/", id, nil), "learner-2"))
	if rr.Code != http.StatusNotFound || errorCode(t, rr) != "SESSION_NOT_FOUND" {
		t.Fatalf("expected 404 SESSION_NOT_FOUND, got %d", rr.Code)
	}
}

func TestCloseSession(t *testing.T) {
	env := newTestEnv()
	id := env.open(t, "learner-1", 1)

	rr := httptest.NewRecorder()
	CloseSession(env.registry).ServeHTTP(rr, asUser(sessionReq(http.MethodDelete, "/", id, nil), "learner-1"))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	GetSession(env.registry).ServeHTTP(rr, asUser(sessionReq(http.MethodGet, "/", id, nil), "learner-1"))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("closed session should be gone, got %d", rr.Code)
	}
}

func TestListProgress(t *testing.T) {
	env := newTestEnv()
	env.evaluator.outcome = gating.Outcome{Correct: true}
	id := env.open(t, "learner-1", 1)
	env.advance(t, "learner-1", id, 30)
	if rr := env.answer("learner-1", id, "mitochondria"); rr.Code != http.StatusOK {
		t.Fatalf("answer failed: %d", rr.Code)
	}

	rr := httptest.NewRecorder()
	ListProgress(env.repo).ServeHTTP(rr, asUser(httptest.NewRequest(http.MethodGet, "/v1/progress", nil), "learner-1"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	items := decodeBody(t, rr)["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	item := items[0].(map[string]any)
	completed := item["completed_questions"].([]any)
	if item["video_id"] != float64(1) || len(completed) != 1 || completed[0] != float64(10) {
		t.Fatalf("unexpected progress item %v", item)
	}
}

func TestListSessions(t *testing.T) {
	env := newTestEnv()
	env.open(t, "learner-1", 1)
	env.open(t, "learner-2", 1)

	rr := httptest.NewRecorder()
	ListSessions(env.registry).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/admin/sessions", nil))
	body := decodeBody(t, rr)
	if body["count"] != float64(2) {
		t.Fatalf("expected 2 sessions, got %v", body["count"])
	}
}
