package progress

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

const (
	StreamName      = "PROGRESS"
	SubjectPosition = "progress.position"
	// ConsumerDurable is the durable pull consumer of SubjectPosition.
	ConsumerDurable = "progress_position"
)

// PositionEvent is the write-behind payload for a playback position.
type PositionEvent struct {
	EventID    string    `json:"event_id"`
	UserID     string    `json:"user_id"`
	VideoID    int64     `json:"video_id"`
	Position   float64   `json:"position"`
	ClientTsMs int64     `json:"client_ts_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// DecodePositionEvent parses and validates a PositionEvent.
func DecodePositionEvent(data []byte) (PositionEvent, error) {
	var ev PositionEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return PositionEvent{}, fmt.Errorf("decode position event: %w", err)
	}
	switch {
	case ev.EventID == "":
		return PositionEvent{}, fmt.Errorf("position event: missing event_id")
	case ev.UserID == "" || ev.VideoID <= 0:
		return PositionEvent{}, fmt.Errorf("position event %s: missing user or video", ev.EventID)
	case ev.Position < 0 || math.IsNaN(ev.Position):
		return PositionEvent{}, fmt.Errorf("position event %s: invalid position", ev.EventID)
	}
	return ev, nil
}
