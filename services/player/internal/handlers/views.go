package handlers

import (
	"time"

	"github.com/example/checkpoint-player/internal/gating"
	"github.com/example/checkpoint-player/internal/progress"
)

type videoView struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Duration    float64 `json:"duration"`
}

type questionView struct {
	ID        int64    `json:"id"`
	Timestamp float64  `json:"timestamp"`
	Kind      string   `json:"kind"`
	Text      string   `json:"text"`
	Options   []string `json:"options,omitempty"`
}

type activeQuestionView struct {
	questionView
	TriggerTime float64 `json:"trigger_time"`
	Attempts    int     `json:"attempts"`
}

type snapshotView struct {
	Phase          string              `json:"phase"`
	CurrentTime    float64             `json:"current_time"`
	CompletedCount int                 `json:"completed_count"`
	TotalQuestions int                 `json:"total_questions"`
	RetriesLeft    *int                `json:"retries_left"`
	ActiveQuestion *activeQuestionView `json:"active_question"`
}

func toVideoView(v gating.Video) videoView {
	return videoView{ID: v.ID, Title: v.Title, Description: v.Description, Duration: v.Duration}
}

func toQuestionView(q gating.Question) questionView {
	return questionView{ID: q.ID, Timestamp: q.Timestamp, Kind: string(q.Kind), Text: q.Text, Options: q.Options}
}

func toSnapshotView(s gating.Snapshot) snapshotView {
	out := snapshotView{
		Phase:          s.Phase.String(),
		CurrentTime:    s.CurrentTime,
		CompletedCount: s.CompletedCount,
		TotalQuestions: s.TotalQuestions,
	}
	if s.RetriesLeft != gating.RetriesUnknown {
		n := s.RetriesLeft
		out.RetriesLeft = &n
	}
	if s.Active != nil {
		out.ActiveQuestion = &activeQuestionView{
			questionView: toQuestionView(s.Active.Question),
			TriggerTime:  s.Active.TriggerTime,
			Attempts:     s.Active.Attempts,
		}
	}
	return out
}

// directives never encodes as null.
func directives(d []gating.Directive) []gating.Directive {
	if d == nil {
		return []gating.Directive{}
	}
	return d
}

type progressView struct {
	VideoID            int64     `json:"video_id"`
	CompletedQuestions []int64   `json:"completed_questions"`
	Position           float64   `json:"position"`
	IsCompleted        bool      `json:"is_completed"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func toProgressView(r progress.Record) progressView {
	completed := r.Completed
	if completed == nil {
		completed = []int64{}
	}
	return progressView{
		VideoID:            r.VideoID,
		CompletedQuestions: completed,
		Position:           r.Position,
		IsCompleted:        r.IsCompleted,
		UpdatedAt:          r.UpdatedAt,
	}
}
