package parse

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidShape means a field held a genuinely wrong type that no coercion
// could recover. Missing-but-recoverable fields never raise it; they default.
var ErrInvalidShape = errors.New("invalid response shape")

// Outline is the stage-1 result: the course skeleton.
type Outline struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Sessions    []SessionStub `json:"sessions"`
}

type SessionStub struct {
	Title           string   `json:"title"`
	Topics          []string `json:"topics"`
	Objectives      []string `json:"objectives"`
	DurationMinutes int      `json:"duration_minutes"`
}

// SessionDetail is the stage-2 result for one outline entry.
type SessionDetail struct {
	Title           string     `json:"title"`
	Overview        string     `json:"overview"`
	Topics          []string   `json:"topics"`
	Objectives      []string   `json:"objectives"`
	DurationMinutes int        `json:"duration_minutes"`
	Activities      []Activity `json:"activities"`
	Materials       []string   `json:"materials"`
}

type Activity struct {
	Title           string `json:"title"`
	Kind            string `json:"kind"`
	Description     string `json:"description"`
	DurationMinutes int    `json:"duration_minutes"`
}

// AssessmentSet is the stage-3 result.
type AssessmentSet struct {
	Quizzes     []Quiz       `json:"quizzes"`
	Assignments []Assignment `json:"assignments"`
	FinalExam   *FinalExam   `json:"final_exam"`
}

type Quiz struct {
	Title           string         `json:"title"`
	SessionPosition int            `json:"session_position"`
	Questions       []QuizQuestion `json:"questions"`
}

type QuizQuestion struct {
	Prompt      string   `json:"prompt"`
	Options     []string `json:"options"`
	AnswerIndex int      `json:"answer_index"`
	Explanation string   `json:"explanation"`
}

type Assignment struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Deliverables []string `json:"deliverables"`
}

type FinalExam struct {
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	DurationMinutes int      `json:"duration_minutes"`
	PassingScore    int      `json:"passing_score"`
	Sections        []string `json:"sections"`
}

// DecodeOutline validates and repairs a parsed object into an Outline.
// Missing recoverable fields default; wrong types error.
func DecodeOutline(obj map[string]any) (*Outline, error) {
	out := &Outline{
		Title:       stringField(obj, "title", "Untitled course"),
		Description: stringField(obj, "description", ""),
	}

	items, err := objectSlice(obj, "sessions")
	if err != nil {
		return nil, err
	}
	out.Sessions = make([]SessionStub, 0, len(items))
	for i, item := range items {
		stub := SessionStub{
			Title:           stringField(item, "title", fmt.Sprintf("Session %d", i+1)),
			Topics:          stringSlice(item["topics"]),
			Objectives:      stringSlice(item["objectives"]),
			DurationMinutes: intField(item, "duration_minutes", 60),
		}
		out.Sessions = append(out.Sessions, stub)
	}
	return out, nil
}

func DecodeSessionDetail(obj map[string]any) (*SessionDetail, error) {
	out := &SessionDetail{
		Title:           stringField(obj, "title", "Untitled session"),
		Overview:        stringField(obj, "overview", ""),
		Topics:          stringSlice(obj["topics"]),
		Objectives:      stringSlice(obj["objectives"]),
		DurationMinutes: intField(obj, "duration_minutes", 0),
		Materials:       stringSlice(obj["materials"]),
	}

	items, err := objectSlice(obj, "activities")
	if err != nil {
		return nil, err
	}
	out.Activities = make([]Activity, 0, len(items))
	for i, item := range items {
		out.Activities = append(out.Activities, Activity{
			Title:           stringField(item, "title", fmt.Sprintf("Activity %d", i+1)),
			Kind:            stringField(item, "kind", "discussion"),
			Description:     stringField(item, "description", ""),
			DurationMinutes: intField(item, "duration_minutes", 15),
		})
	}
	return out, nil
}

func DecodeAssessmentSet(obj map[string]any) (*AssessmentSet, error) {
	out := &AssessmentSet{}

	quizItems, err := objectSlice(obj, "quizzes")
	if err != nil {
		return nil, err
	}
	out.Quizzes = make([]Quiz, 0, len(quizItems))
	for qi, item := range quizItems {
		quiz := Quiz{
			Title:           stringField(item, "title", fmt.Sprintf("Quiz %d", qi+1)),
			SessionPosition: intField(item, "session_position", 0),
		}
		questionItems, err := objectSlice(item, "questions")
		if err != nil {
			return nil, fmt.Errorf("quiz %d: %w", qi+1, err)
		}
		quiz.Questions = make([]QuizQuestion, 0, len(questionItems))
		for _, q := range questionItems {
			quiz.Questions = append(quiz.Questions, QuizQuestion{
				Prompt:  stringField(q, "prompt", ""),
				Options: stringSlice(q["options"]),
				// The prompt asks for answer_index; models sometimes emit
				// correct_index instead. Accept both.
				AnswerIndex: intFieldFirst(q, 0, "answer_index", "correct_index"),
				Explanation: stringField(q, "explanation", ""),
			})
		}
		out.Quizzes = append(out.Quizzes, quiz)
	}

	assignmentItems, err := objectSlice(obj, "assignments")
	if err != nil {
		return nil, err
	}
	out.Assignments = make([]Assignment, 0, len(assignmentItems))
	for _, item := range assignmentItems {
		out.Assignments = append(out.Assignments, Assignment{
			Title:        stringField(item, "title", "Assignment"),
			Description:  stringField(item, "description", ""),
			Deliverables: stringSlice(item["deliverables"]),
		})
	}

	switch fe := obj["final_exam"].(type) {
	case nil:
		// Recoverable: validation downstream decides whether to warn.
	case map[string]any:
		out.FinalExam = &FinalExam{
			Title:           stringField(fe, "title", "Final exam"),
			Description:     stringField(fe, "description", ""),
			DurationMinutes: intField(fe, "duration_minutes", 90),
			PassingScore:    intField(fe, "passing_score", 70),
			Sections:        stringSlice(fe["sections"]),
		}
	default:
		return nil, fmt.Errorf(`%w: field "final_exam": expected object, got %T`, ErrInvalidShape, fe)
	}

	return out, nil
}

// ---- coercion helpers ----

func stringField(obj map[string]any, key, fallback string) string {
	switch v := obj[key].(type) {
	case nil:
		return fallback
	case string:
		if strings.TrimSpace(v) == "" {
			return fallback
		}
		return v
	case json.Number:
		return v.String()
	default:
		return fallback
	}
}

// stringSlice coerces a value into []string: arrays keep their string-able
// elements, a bare scalar becomes a single-element slice, anything else is
// treated as missing.
func stringSlice(v any) []string {
	switch t := v.(type) {
	case nil:
		return []string{}
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			switch s := e.(type) {
			case string:
				if strings.TrimSpace(s) != "" {
					out = append(out, s)
				}
			case json.Number:
				out = append(out, s.String())
			}
		}
		return out
	case string:
		if strings.TrimSpace(t) == "" {
			return []string{}
		}
		return []string{t}
	default:
		return []string{}
	}
}

// intFieldFirst coerces the first key present in obj; fallback when none are.
func intFieldFirst(obj map[string]any, fallback int, keys ...string) int {
	for _, k := range keys {
		if _, ok := obj[k]; ok {
			return intField(obj, k, fallback)
		}
	}
	return fallback
}

func intField(obj map[string]any, key string, fallback int) int {
	switch v := obj[key].(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return int(i)
		}
		if f, err := v.Float64(); err == nil {
			return int(f)
		}
		return fallback
	case float64:
		return int(v)
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
		return fallback
	default:
		return fallback
	}
}

// objectSlice reads a required array-of-objects field. A missing field
// defaults to empty; a scalar where the array should be is a real type error.
func objectSlice(obj map[string]any, key string) ([]map[string]any, error) {
	switch v := obj[key].(type) {
	case nil:
		return []map[string]any{}, nil
	case []any:
		out := make([]map[string]any, 0, len(v))
		for i, e := range v {
			m, ok := e.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: field %q element %d: expected object, got %T", ErrInvalidShape, key, i, e)
			}
			out = append(out, m)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: field %q: expected array, got %T", ErrInvalidShape, key, v)
	}
}
