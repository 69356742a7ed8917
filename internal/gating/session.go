package gating

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Catalog loads the immutable video and question data for a session.
type Catalog interface {
	LoadVideo(ctx context.Context, videoID int64) (Video, error)
	LoadQuestions(ctx context.Context, videoID int64) ([]Question, error)
}

// ProgressSource reads the durable progress record. A missing record is
// returned as a fresh, empty Progress.
type ProgressSource interface {
	LoadProgress(ctx context.Context, userID string, videoID int64) (*Progress, error)
}

// ProgressSink persists progress mutations. Both writes must be idempotent.
type ProgressSink interface {
	WriteCompletion(ctx context.Context, userID string, videoID, questionID int64) error
	WritePosition(ctx context.Context, userID string, videoID int64, position float64) error
}

// Submission is one answer sent to the Evaluator. SubmissionID is stable
// across transport retries of the same answer.
type Submission struct {
	SubmissionID string
	UserID       string
	VideoID      int64
	QuestionID   int64
	Answer       string
	ObservedTime float64
}

// Evaluator grades answers and owns the retry budget.
type Evaluator interface {
	SubmitAnswer(ctx context.Context, sub Submission) (Outcome, error)
}

// Deps are the collaborators of a Session.
type Deps struct {
	Catalog   Catalog
	Progress  ProgressSource
	Evaluator Evaluator
	Sink      ProgressSink
	Events    EventRecorder
}

// SessionConfig tunes a Session. Zero values select defaults.
type SessionConfig struct {
	// PositionInterval is the minimum time between position writes.
	PositionInterval time.Duration
	// EvaluatorTimeout bounds one evaluator call.
	EvaluatorTimeout time.Duration

	Logger *zap.Logger
	Now    func() time.Time
	NewID  func() string

	// LogFields adds caller-scoped fields, such as a request id, to the
	// lines a session logs while handling an event.
	LogFields func(ctx context.Context) []zap.Field
}

const (
	DefaultPositionInterval = 5 * time.Second
	DefaultEvaluatorTimeout = 10 * time.Second
)

func (c SessionConfig) withDefaults() SessionConfig {
	if c.PositionInterval <= 0 {
		c.PositionInterval = DefaultPositionInterval
	}
	if c.EvaluatorTimeout <= 0 {
		c.EvaluatorTimeout = DefaultEvaluatorTimeout
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.LogFields == nil {
		c.LogFields = func(context.Context) []zap.Field { return nil }
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.NewID == nil {
		c.NewID = uuid.NewString
	}
	return c
}

// AdvanceResult reports the effect of a time update.
type AdvanceResult struct {
	Triggered  *Question
	Snapshot   Snapshot
	Directives []Directive
}

// AnswerResult reports the effect of an evaluated answer.
type AnswerResult struct {
	Resolution  Resolution
	Explanation string
	Summary     string
	Snapshot    Snapshot
	Directives  []Directive
}

// directiveBuffer is implemented by surfaces that record commands for a
// remote player, such as DirectiveSurface.
type directiveBuffer interface {
	Drain() []Directive
	Reset()
}

// Session runs one Machine for one (user, video) view. Every event is
// serialized through the session lock; the evaluator call runs outside it.
type Session struct {
	userID string
	video  Video
	deps   Deps
	cfg    SessionConfig
	log    *zap.Logger

	mu         sync.Mutex
	m          *Machine
	buf        directiveBuffer
	closed     bool
	generation uint64
	inflight   bool

	// failed remembers the last submission that hit an evaluator error so a
	// resubmission of the same answer reuses its id.
	failed struct {
		questionID int64
		answer     string
		id         string
	}

	pendingCompletions []int64
	positionDirty      bool
	lastPositionTry    time.Time
}

// Open loads video, questions and progress concurrently and returns a
// session that is Playing at the saved position, or Blocked when the saved
// position is past an incomplete question. Any load failure is returned as a
// *LoadError and no session is created.
func Open(ctx context.Context, deps Deps, surface Surface, userID string, videoID int64, cfg SessionConfig) (*Session, error) {
	cfg = cfg.withDefaults()
	if deps.Events == nil {
		deps.Events = nopRecorder{}
	}

	var (
		video     Video
		questions []Question
		progress  *Progress
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := deps.Catalog.LoadVideo(gctx, videoID)
		if err != nil {
			return &LoadError{Op: "video", Err: err}
		}
		video = v
		return nil
	})
	g.Go(func() error {
		qs, err := deps.Catalog.LoadQuestions(gctx, videoID)
		if err != nil {
			return &LoadError{Op: "questions", Err: err}
		}
		questions = qs
		return nil
	})
	g.Go(func() error {
		p, err := deps.Progress.LoadProgress(gctx, userID, videoID)
		if err != nil {
			return &LoadError{Op: "progress", Err: err}
		}
		progress = p
		return nil
	})
	if err := g.Wait(); err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			return nil, le
		}
		return nil, &LoadError{Op: "session", Err: err}
	}
	if progress == nil {
		progress = NewProgress(userID, videoID, nil, 0)
	}
	video.ID = videoID

	if ds, ok := surface.(interface{ SetDuration(float64) }); ok && video.Duration > 0 && surface.Duration() == 0 {
		ds.SetDuration(video.Duration)
	}

	s := &Session{
		userID: userID,
		video:  video,
		deps:   deps,
		cfg:    cfg,
		log:    cfg.Logger.With(zap.String("user_id", userID), zap.Int64("video_id", videoID)),
		m:      NewMachine(surface),
	}
	s.buf, _ = surface.(directiveBuffer)
	q, blocked, err := s.m.Load(NewTimeline(questions), progress)
	if err != nil {
		return nil, &LoadError{Op: "session", Err: err}
	}
	if blocked {
		s.emit(ctx, Event{Kind: EventQuestionTriggered, QuestionID: q.ID, Position: s.m.Now()})
	}
	return s, nil
}

// UserID returns the opaque caller identity that owns the session.
func (s *Session) UserID() string { return s.userID }

// Video returns the loaded video.
func (s *Session) Video() Video { return s.video }

// Directives returns the surface commands issued since the last call. Every
// event result already carries its own commands; this picks up the ones
// issued while opening.
func (s *Session) Directives() []Directive {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drainLocked()
}

// OnTimeAdvance feeds a playback time update. Updates are ignored while a
// question is active.
func (s *Session) OnTimeAdvance(ctx context.Context, t float64) (AdvanceResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return AdvanceResult{}, ErrSessionClosed
	}

	var res AdvanceResult
	before := s.m.Now()
	if q, ok := s.m.Advance(t); ok {
		res.Triggered = &q
		s.emit(ctx, Event{Kind: EventQuestionTriggered, QuestionID: q.ID, Position: s.m.Now()})
	}
	if s.m.Now() != before {
		s.positionDirty = true
	}
	s.flushLocked(ctx, false)
	res.Snapshot = s.m.Snapshot()
	res.Directives = s.drainLocked()
	return res, nil
}

// OnSeekAttempt validates a user seek. A rejection is a normal result, not an
// error.
func (s *Session) OnSeekAttempt(ctx context.Context, target float64) (SeekResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return SeekResult{}, ErrSessionClosed
	}

	r := s.m.Seek(target)
	if !r.Allowed {
		ev := Event{Kind: EventSeekRejected, Position: r.Position, Reason: r.Reason}
		if r.Blocking != nil {
			ev.QuestionID = r.Blocking.ID
		} else if a := s.m.Active(); a != nil {
			ev.QuestionID = a.Question.ID
		}
		s.emit(ctx, ev)
		r.Directives = s.drainLocked()
		return r, nil
	}
	s.positionDirty = true
	s.flushLocked(ctx, false)
	r.Directives = s.drainLocked()
	return r, nil
}

// OnAnswerSubmit sends answer for the active question to the Evaluator and
// applies the outcome. Only one submission may be outstanding. On evaluator
// failure the question stays active and an *EvaluatorError is returned.
func (s *Session) OnAnswerSubmit(ctx context.Context, answer string) (AnswerResult, error) {
	answer = strings.TrimSpace(answer)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return AnswerResult{}, ErrSessionClosed
	}
	if s.inflight {
		s.mu.Unlock()
		return AnswerResult{}, ErrSubmissionInFlight
	}
	active := s.m.Active()
	if active == nil {
		s.mu.Unlock()
		return AnswerResult{}, ErrNotBlocked
	}
	if answer == "" {
		s.mu.Unlock()
		return AnswerResult{}, ErrEmptyAnswer
	}

	sub := Submission{
		SubmissionID: s.cfg.NewID(),
		UserID:       s.userID,
		VideoID:      s.video.ID,
		QuestionID:   active.Question.ID,
		Answer:       answer,
		ObservedTime: s.m.Now(),
	}
	if s.failed.questionID == sub.QuestionID && s.failed.answer == answer && s.failed.id != "" {
		sub.SubmissionID = s.failed.id
	}
	s.inflight = true
	gen := s.generation
	s.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.EvaluatorTimeout)
	outcome, evalErr := s.deps.Evaluator.SubmitAnswer(callCtx, sub)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight = false
	if s.closed || gen != s.generation {
		return AnswerResult{}, ErrSessionClosed
	}
	if evalErr != nil {
		s.failed.questionID, s.failed.answer, s.failed.id = sub.QuestionID, answer, sub.SubmissionID
		s.logger(ctx).Warn("gating: evaluator call failed",
			zap.Int64("question_id", sub.QuestionID),
			zap.String("submission_id", sub.SubmissionID),
			zap.Error(evalErr))
		return AnswerResult{}, &EvaluatorError{QuestionID: sub.QuestionID, Err: evalErr}
	}
	s.failed.questionID, s.failed.answer, s.failed.id = 0, "", ""

	res, err := s.m.ApplyOutcome(outcome)
	if err != nil {
		return AnswerResult{}, err
	}

	s.emit(ctx, Event{
		Kind:        EventAnswerEvaluated,
		QuestionID:  res.QuestionID,
		Position:    res.Position,
		Correct:     res.Kind == ResolvedCorrect,
		RetriesLeft: res.RetriesLeft,
	})
	switch res.Kind {
	case ResolvedCorrect:
		s.writeCompletionLocked(ctx, res.QuestionID)
		s.positionDirty = true
		s.flushLocked(ctx, true)
	case ResolvedRewind:
		s.emit(ctx, Event{Kind: EventVideoRewound, QuestionID: res.QuestionID, Position: res.Position})
		s.positionDirty = true
		s.flushLocked(ctx, false)
	}

	return AnswerResult{
		Resolution:  res,
		Explanation: outcome.Explanation,
		Summary:     outcome.Summary,
		Snapshot:    s.m.Snapshot(),
		Directives:  s.drainLocked(),
	}, nil
}

// OnUnload ends the session. An outstanding evaluator response is discarded,
// undelivered surface commands are dropped and nothing further is written.
// Unload is idempotent.
func (s *Session) OnUnload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.generation++
	s.pendingCompletions = nil
	s.positionDirty = false
	s.m.Unload()
	if s.buf != nil {
		s.buf.Reset()
	}
}

// Closed reports whether OnUnload has run.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Snapshot returns the render-facing state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m.Snapshot()
}

// AllCompleted reports whether every question of the video is completed.
func (s *Session) AllCompleted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	return s.m.Timeline().AllCompleted(s.m.Progress().IsCompleted)
}

func (s *Session) drainLocked() []Directive {
	if s.buf == nil {
		return nil
	}
	return s.buf.Drain()
}

func (s *Session) writeCompletionLocked(ctx context.Context, questionID int64) {
	if s.deps.Sink == nil {
		return
	}
	if err := s.deps.Sink.WriteCompletion(ctx, s.userID, s.video.ID, questionID); err != nil {
		s.logger(ctx).Warn("gating: completion write failed, will retry",
			zap.Int64("question_id", questionID), zap.Error(err))
		s.pendingCompletions = append(s.pendingCompletions, questionID)
	}
}

// flushLocked retries failed completion writes and writes the position when
// it changed and the throttle interval has elapsed. force skips the throttle.
func (s *Session) flushLocked(ctx context.Context, force bool) {
	if s.deps.Sink == nil {
		return
	}
	if len(s.pendingCompletions) > 0 {
		remaining := s.pendingCompletions[:0]
		for _, id := range s.pendingCompletions {
			if err := s.deps.Sink.WriteCompletion(ctx, s.userID, s.video.ID, id); err != nil {
				remaining = append(remaining, id)
			}
		}
		s.pendingCompletions = remaining
	}

	if !s.positionDirty {
		return
	}
	now := s.cfg.Now()
	if !force && !s.lastPositionTry.IsZero() && now.Sub(s.lastPositionTry) < s.cfg.PositionInterval {
		return
	}
	s.lastPositionTry = now
	pos := s.m.Now()
	if err := s.deps.Sink.WritePosition(ctx, s.userID, s.video.ID, pos); err != nil {
		s.logger(ctx).Debug("gating: position write failed", zap.Float64("position", pos), zap.Error(err))
		return
	}
	s.positionDirty = false
}

func (s *Session) logger(ctx context.Context) *zap.Logger {
	if fields := s.cfg.LogFields(ctx); len(fields) > 0 {
		return s.log.With(fields...)
	}
	return s.log
}

func (s *Session) emit(ctx context.Context, ev Event) {
	ev.UserID = s.userID
	ev.VideoID = s.video.ID
	s.deps.Events.Record(ctx, ev)
}
