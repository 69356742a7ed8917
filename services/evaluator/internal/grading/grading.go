// Package grading decides whether a submitted answer is correct.
package grading

import (
	"context"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/example/checkpoint-player/internal/catalog"
	"github.com/example/checkpoint-player/internal/gating"
)

type Verdict struct {
	Correct     bool
	Explanation string
	Hint        string
}

// Grader grades one answer against a question with its answer material.
type Grader interface {
	Grade(ctx context.Context, q catalog.Question, answer string) (Verdict, error)
}

// Summarizer writes the short recap shown after the retry budget is spent.
type Summarizer interface {
	Summarize(ctx context.Context, v catalog.Video, q catalog.Question) (string, error)
}

const fallbackSummary = "Review the part of the video just before this question, then try it again."

// StaticSummarizer returns the same recap for every question.
type StaticSummarizer struct{}

func (StaticSummarizer) Summarize(context.Context, catalog.Video, catalog.Question) (string, error) {
	return fallbackSummary, nil
}

var folder = cases.Fold()

// Normalize folds case and width, and reduces the answer to its words so
// formatting differences do not affect grading.
func Normalize(s string) string {
	s = folder.String(norm.NFKC.String(s))
	words := strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || (unicode.IsPunct(r) && r != '\'' && r != '-')
	})
	return strings.Join(words, " ")
}

// RuleGrader grades by normalized comparison. It is deterministic and never
// returns an error.
type RuleGrader struct{}

func (RuleGrader) Grade(_ context.Context, q catalog.Question, answer string) (Verdict, error) {
	got := Normalize(answer)
	want := Normalize(q.CorrectAnswer)

	var ok bool
	switch q.Kind {
	case gating.KindMultipleChoice:
		ok = got == want || Normalize(resolveOption(q.Options, got)) == want
	case gating.KindOneWord:
		if strings.Contains(got, " ") {
			return Verdict{Explanation: "Answer with a single word.", Hint: hintFor(q)}, nil
		}
		ok = closeEnough(got, want)
	default:
		ok = closeEnough(got, want)
	}
	if ok {
		return Verdict{Correct: true, Explanation: explanationOr(q, "Correct!")}, nil
	}
	return Verdict{Explanation: "Not quite.", Hint: hintFor(q)}, nil
}

// resolveOption maps an option letter ("b") or 1-based number ("2") to the
// option text. Anything else is returned unchanged.
func resolveOption(options []string, answer string) string {
	if len(options) == 0 {
		return answer
	}
	if len(answer) == 1 && answer[0] >= 'a' && answer[0] <= 'z' {
		if i := int(answer[0] - 'a'); i < len(options) {
			return options[i]
		}
	}
	if n, err := strconv.Atoi(answer); err == nil && n >= 1 && n <= len(options) {
		return options[n-1]
	}
	return answer
}

// closeEnough tolerates one typo in answers of six runes or more.
func closeEnough(got, want string) bool {
	if got == want {
		return true
	}
	if got == "" || utf8.RuneCountInString(want) < 6 {
		return false
	}
	return withinOneEdit([]rune(got), []rune(want))
}

func withinOneEdit(a, b []rune) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	if len(b)-len(a) > 1 {
		return false
	}
	i, j, edits := 0, 0, 0
	for i < len(a) && j < len(b) {
		if a[i] == b[j] {
			i++
			j++
			continue
		}
		edits++
		if edits > 1 {
			return false
		}
		if len(a) == len(b) {
			i++
		}
		j++
	}
	return edits+(len(b)-j)+(len(a)-i) <= 1
}

func explanationOr(q catalog.Question, def string) string {
	if s := strings.TrimSpace(q.Explanation); s != "" {
		return s
	}
	return def
}

func hintFor(q catalog.Question) string {
	if q.Kind == gating.KindMultipleChoice && len(q.Options) > 0 {
		return "Pick one of the listed options."
	}
	return "Rewatch the last few seconds before the question."
}
