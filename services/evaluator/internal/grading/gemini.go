package grading

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/example/checkpoint-player/internal/catalog"
	"github.com/example/checkpoint-player/internal/gating"
)

// maxTranscriptRunes caps the transcript excerpt sent with a summary prompt.
const maxTranscriptRunes = 6000

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini grades free-text answers and writes recaps with a Gemini model.
// Multiple-choice answers are graded by the rule grader. Any model failure
// falls back to the rule grader or the static recap.
type Gemini struct {
	models   contentGenerator
	model    string
	timeout  time.Duration
	fallback RuleGrader
	log      *zap.Logger
}

func NewGemini(ctx context.Context, apiKey, model string, timeout time.Duration, log *zap.Logger) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create Gemini client: %w", err)
	}
	return newGemini(client.Models, model, timeout, log), nil
}

func newGemini(models contentGenerator, model string, timeout time.Duration, log *zap.Logger) *Gemini {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Gemini{models: models, model: model, timeout: timeout, log: log}
}

type gradeReply struct {
	Correct     bool   `json:"correct"`
	Explanation string `json:"explanation"`
	Hint        string `json:"hint"`
}

func (g *Gemini) Grade(ctx context.Context, q catalog.Question, answer string) (Verdict, error) {
	if q.Kind == gating.KindMultipleChoice {
		return g.fallback.Grade(ctx, q, answer)
	}
	// Exact matches never need the model.
	if v, _ := g.fallback.Grade(ctx, q, answer); v.Correct {
		return v, nil
	}

	prompt := fmt.Sprintf(`Grade a learner's answer to a checkpoint question.

Question: %s
Expected answer: %s
Learner answer: %s

Accept minor spelling or formatting differences and equivalent wording.
Reply with one JSON object: {"correct": boolean, "explanation": "one short sentence", "hint": "short hint when incorrect, else empty"}`,
		q.Text, q.CorrectAnswer, answer)

	text, err := g.generate(ctx, prompt, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"correct":     {Type: genai.TypeBoolean},
				"explanation": {Type: genai.TypeString},
				"hint":        {Type: genai.TypeString},
			},
			Required: []string{"correct", "explanation"},
		},
	})
	var reply gradeReply
	if err == nil {
		err = json.Unmarshal([]byte(text), &reply)
	}
	if err != nil {
		g.log.Warn("gemini grading failed, using rule grader", zap.Int64("question_id", q.ID), zap.Error(err))
		return g.fallback.Grade(ctx, q, answer)
	}
	v := Verdict{Correct: reply.Correct, Explanation: strings.TrimSpace(reply.Explanation), Hint: strings.TrimSpace(reply.Hint)}
	if v.Correct {
		v.Hint = ""
	}
	if v.Explanation == "" {
		v.Explanation = "Not quite."
		if v.Correct {
			v.Explanation = explanationOr(q, "Correct!")
		}
	}
	return v, nil
}

func (g *Gemini) Summarize(ctx context.Context, v catalog.Video, q catalog.Question) (string, error) {
	excerpt := transcriptBefore(v.Transcript, q.Timestamp, v.Duration)
	if excerpt == "" {
		return fallbackSummary, nil
	}
	prompt := fmt.Sprintf(`A learner used every attempt on the question %q.

Lecture excerpt:
%s

In 2-3 encouraging sentences, summarize the ideas from the excerpt they need to answer it. Do not reveal the answer outright.`,
		q.Text, excerpt)

	text, err := g.generate(ctx, prompt, nil)
	if err != nil || strings.TrimSpace(text) == "" {
		g.log.Warn("gemini summary failed", zap.Int64("question_id", q.ID), zap.Error(err))
		return fallbackSummary, nil
	}
	return strings.TrimSpace(text), nil
}

func (g *Gemini) generate(ctx context.Context, prompt string, cfg *genai.GenerateContentConfig) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	contents := []*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: prompt}}}}
	result, err := g.models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return "", err
	}
	return result.Text(), nil
}

// transcriptBefore returns the share of the transcript that plays before ts,
// assuming speech is spread evenly over the video, capped to the last
// maxTranscriptRunes runes.
func transcriptBefore(transcript string, ts, duration float64) string {
	r := []rune(strings.TrimSpace(transcript))
	if len(r) == 0 {
		return ""
	}
	end := len(r)
	if duration > 0 && ts < duration {
		end = int(float64(len(r)) * ts / duration)
	}
	start := max(0, end-maxTranscriptRunes)
	return string(r[start:end])
}
