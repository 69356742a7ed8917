package gating

// Machine is the gating state machine for one video view. It is not safe for
// concurrent use; Session serializes access.
//
// Transitions:
//
//	Idle    --Load-->               Playing | Blocked (resume past an incomplete question)
//	Playing --Advance(reached)-->   Blocked
//	Blocked --incorrect, retries--> Blocked
//	Blocked --correct-->            Playing (question completed)
//	Blocked --exhausted-->          Playing (rewound, question still incomplete)
//	any     --Unload-->             Idle
type Machine struct {
	surface  Surface
	timeline *Timeline
	progress *Progress

	phase  Phase
	active *ActiveQuestion
	now    float64
}

// NewMachine returns an Idle machine driving surface.
func NewMachine(surface Surface) *Machine {
	return &Machine{surface: surface}
}

// Load moves Idle to Playing at the saved position. When the saved position
// is at or past an incomplete question, or inside its trigger window, the
// machine blocks on it immediately instead of letting it be skipped.
func (m *Machine) Load(tl *Timeline, p *Progress) (Question, bool, error) {
	if m.phase != PhaseIdle {
		return Question{}, false, ErrAlreadyLoaded
	}
	if tl == nil {
		tl = NewTimeline(nil)
	}
	if p == nil {
		p = &Progress{}
	}
	m.timeline = tl
	m.progress = p
	m.phase = PhasePlaying
	m.now = m.clampToDuration(clampTime(p.Position))

	if q, ok := tl.FirstBlocking(m.now, p.IsCompleted); ok {
		m.now = q.Timestamp
		m.seekSurface(m.now)
		m.block(q)
		return q, true, nil
	}

	m.seekSurface(m.now)
	if q, ok := tl.Reached(m.now, m.now, p.IsCompleted); ok {
		m.block(q)
		return q, true, nil
	}
	return Question{}, false, nil
}

// Advance records a time update from the surface. Updates are ignored unless
// Playing. It returns the question that became active, if any.
func (m *Machine) Advance(t float64) (Question, bool) {
	if m.phase != PhasePlaying {
		return Question{}, false
	}
	prev := m.now
	m.now = m.clampToDuration(clampTime(t))

	// An incomplete question already at or behind the playhead comes first.
	// This happens when a question shares its timestamp with one that was
	// just resolved there.
	q, ok := m.timeline.FirstBlocking(m.now, m.progress.IsCompleted)
	if !ok {
		q, ok = m.timeline.Reached(prev, m.now, m.progress.IsCompleted)
	}
	if !ok {
		return Question{}, false
	}
	if m.now-q.Timestamp >= TriggerTolerance {
		// Stepped over the whole window; pull playback back to the question.
		m.now = q.Timestamp
		m.surface.Seek(m.now)
	}
	m.block(q)
	return q, true
}

// ApplyOutcome resolves the active question with the evaluator's verdict.
func (m *Machine) ApplyOutcome(o Outcome) (Resolution, error) {
	if m.phase != PhaseBlocked || m.active == nil {
		return Resolution{}, ErrNotBlocked
	}
	o = o.normalize()
	a := m.active

	if o.Correct {
		newly := m.progress.MarkCompleted(a.Question.ID)
		m.now = a.TriggerTime
		m.unblock()
		m.surface.Play()
		return Resolution{
			Kind:           ResolvedCorrect,
			QuestionID:     a.Question.ID,
			Position:       m.now,
			NewlyCompleted: newly,
		}, nil
	}

	retries := o.RetriesLeft
	if a.RetriesLeft != RetriesUnknown && retries >= a.RetriesLeft {
		// The budget only shrinks while the question is active.
		retries = a.RetriesLeft - 1
	}
	a.Attempts++

	if retries > 0 {
		a.RetriesLeft = retries
		return Resolution{Kind: ResolvedRetry, QuestionID: a.Question.ID, RetriesLeft: retries, Position: m.now}, nil
	}

	target := RewindTarget(a.TriggerTime, o.RewindSeconds)
	m.now = target
	m.unblock()
	m.surface.Seek(target)
	m.surface.Play()
	return Resolution{Kind: ResolvedRewind, QuestionID: a.Question.ID, Position: target}, nil
}

// Unload discards all session state and returns to Idle. No surface commands
// are issued and nothing is written.
func (m *Machine) Unload() {
	m.phase = PhaseIdle
	m.active = nil
	m.timeline = nil
	m.progress = nil
	m.now = 0
}

// Phase returns the current state tag.
func (m *Machine) Phase() Phase { return m.phase }

// Now returns the machine's view of the playback time.
func (m *Machine) Now() float64 { return m.now }

// Active returns a copy of the active question, or nil unless Blocked.
func (m *Machine) Active() *ActiveQuestion {
	if m.active == nil {
		return nil
	}
	cp := *m.active
	return &cp
}

// Timeline returns the loaded timeline.
func (m *Machine) Timeline() *Timeline { return m.timeline }

// Progress returns the loaded progress record.
func (m *Machine) Progress() *Progress { return m.progress }

// Snapshot returns the render-facing state.
func (m *Machine) Snapshot() Snapshot {
	s := Snapshot{
		Phase:          m.phase,
		CurrentTime:    m.now,
		Active:         m.Active(),
		CompletedCount: m.progress.CompletedCount(),
		TotalQuestions: m.timeline.Len(),
		RetriesLeft:    RetriesUnknown,
	}
	if m.active != nil {
		s.RetriesLeft = m.active.RetriesLeft
	}
	return s
}

func (m *Machine) block(q Question) {
	m.phase = PhaseBlocked
	m.active = &ActiveQuestion{
		Question:    q,
		TriggerTime: m.now,
		RetriesLeft: RetriesUnknown,
	}
	m.surface.Pause()
}

func (m *Machine) unblock() {
	m.phase = PhasePlaying
	m.active = nil
}

func (m *Machine) seekSurface(t float64) {
	if t > 0 {
		m.surface.Seek(t)
	}
}

func (m *Machine) clampToDuration(t float64) float64 {
	if d := m.surface.Duration(); d > 0 && t > d {
		return d
	}
	return t
}
