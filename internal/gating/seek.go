package gating

// SeekRejection explains why a seek was refused.
type SeekRejection string

const (
	SeekAllowed                  SeekRejection = ""
	SeekRejectedIdle             SeekRejection = "idle"
	SeekRejectedBlocked          SeekRejection = "blocked"
	SeekRejectedIncompletePrereq SeekRejection = "incomplete_prerequisite"
)

// SeekResult is the machine's decision on a user seek.
type SeekResult struct {
	Allowed bool
	Reason  SeekRejection

	// Position is the playback time after the decision: the target when
	// allowed, the pre-seek time when rejected.
	Position float64

	// Blocking is the first incomplete question at or before the target.
	Blocking *Question

	// Directives are the surface commands the seek issued. Only Session
	// fills them, and only for a recording surface.
	Directives []Directive
}

// Seek validates a user-initiated seek. While Blocked every seek is refused.
// While Playing a seek is refused when any incomplete question lies at or
// before the target. Rejections snap the surface back to the pre-seek time.
func (m *Machine) Seek(target float64) SeekResult {
	switch m.phase {
	case PhaseIdle:
		return SeekResult{Reason: SeekRejectedIdle}
	case PhaseBlocked:
		m.surface.Seek(m.now)
		return SeekResult{Reason: SeekRejectedBlocked, Position: m.now}
	}

	target = m.clampToDuration(clampTime(target))
	if q, ok := m.timeline.FirstBlocking(target, m.progress.IsCompleted); ok {
		m.surface.Seek(m.now)
		return SeekResult{Reason: SeekRejectedIncompletePrereq, Position: m.now, Blocking: &q}
	}
	m.now = target
	return SeekResult{Allowed: true, Position: target}
}
