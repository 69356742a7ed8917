package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"unicode/utf8"

	"github.com/example/checkpoint-player/internal/platform/api"
)

const (
	// Playback bodies are a video id, a time, a seek target or one answer.
	maxPlaybackBodyBytes = 8 << 10
	maxAnswerRunes       = 1000
	// maxPlaybackTime is 24h; longer media is not served.
	maxPlaybackTime = 24 * 60 * 60
)

// decodeJSON decodes exactly one JSON value of at most maxPlaybackBodyBytes
// into dst. On failure it writes a 400 (413 when oversized) and returns false.
func decodeJSON[T any](w http.ResponseWriter, r *http.Request, rid string, dst *T) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPlaybackBodyBytes))
	err := dec.Decode(dst)
	if err == nil && dec.Decode(&struct{}{}) != io.EOF {
		err = errors.New("trailing data after JSON body")
	}
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		api.WriteError(w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "Request body too large", rid,
			map[string]any{"limit_bytes": maxPlaybackBodyBytes})
		return false
	}
	api.BadRequest(w, "INVALID_JSON", "Invalid JSON", rid, nil)
	return false
}

// validTime reports whether v can be a playback time or seek target.
func validTime(v *float64) bool {
	return v != nil && *v >= 0 && *v <= maxPlaybackTime
}

// validAnswer rejects answers no question could expect. Empty answers are
// left to the session so the caller gets EMPTY_ANSWER.
func validAnswer(w http.ResponseWriter, rid, answer string) bool {
	if utf8.RuneCountInString(answer) > maxAnswerRunes {
		api.BadRequest(w, "ANSWER_TOO_LONG", "answer is too long", rid, map[string]any{"max_runes": maxAnswerRunes})
		return false
	}
	return true
}
