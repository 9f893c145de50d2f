package brain

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ShayCichocki/hollon/pkg/models"
)

// Output sentinels a worker uses to steer the orchestrator.
const (
	DecomposeSentinel   = "DECOMPOSE_TASK:"
	SelfCorrectSentinel = "SELF_CORRECT:"
)

// Result is the decoded reply of an inference call. It is one of
// Direct, Decompose or SelfCorrect.
type Result interface {
	isResult()
}

// Direct is ordinary output: the worker did the task.
type Direct struct {
	Output string
}

// Decompose asks for the task to be broken into subtasks.
type Decompose struct {
	Reason   string
	Subtasks []models.WorkItem
}

// SelfCorrect asks for another attempt with the given reason as feedback.
// Err is set when the attempt is retried because a decompose request could
// not be decoded; it is a *ParseError.
type SelfCorrect struct {
	Reason string
	Err    error
}

func (Direct) isResult()      {}
func (Decompose) isResult()   {}
func (SelfCorrect) isResult() {}

// ParseResult decodes raw inference output. A decompose request whose
// payload cannot be decoded is returned as a SelfCorrect so the worker can
// try again with the parse error as feedback.
func ParseResult(output string) Result {
	trimmed := strings.TrimSpace(output)

	switch {
	case strings.HasPrefix(trimmed, SelfCorrectSentinel):
		reason := strings.TrimSpace(strings.TrimPrefix(trimmed, SelfCorrectSentinel))
		if reason == "" {
			reason = "worker requested another attempt"
		}
		return SelfCorrect{Reason: reason}

	case strings.HasPrefix(trimmed, DecomposeSentinel):
		body := strings.TrimSpace(strings.TrimPrefix(trimmed, DecomposeSentinel))
		reason, payload := splitReason(body)
		items, payloadReason, err := decodeWorkItems(payload)
		if err != nil {
			return SelfCorrect{Reason: fmt.Sprintf("decomposition request could not be parsed: %v", err), Err: err}
		}
		if reason == "" {
			reason = payloadReason
		}
		return Decompose{Reason: reason, Subtasks: items}
	}

	return Direct{Output: output}
}

// splitReason separates free text preceding the JSON payload.
func splitReason(body string) (string, string) {
	idx := strings.IndexAny(body, "[{`")
	if idx < 0 {
		return strings.TrimSpace(body), ""
	}
	return strings.TrimSpace(body[:idx]), body[idx:]
}

// ParseError reports inference output that does not hold valid work items.
type ParseError struct {
	Reason  string
	Snippet string
}

func (e *ParseError) Error() string {
	if e.Snippet == "" {
		return "parse work items: " + e.Reason
	}
	return fmt.Sprintf("parse work items: %s (near %q)", e.Reason, e.Snippet)
}

// ParseWorkItems decodes work items from text holding either a JSON array or
// an object with a "subtasks" (or "tasks") array. Markdown code fences and
// surrounding prose are ignored.
func ParseWorkItems(text string) ([]models.WorkItem, error) {
	items, _, err := decodeWorkItems(text)
	return items, err
}

type rawWorkItem struct {
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	AcceptanceCriteria []string `json:"acceptance_criteria"`
	RequiredSkills     []string `json:"required_skills"`
	AffectedFiles      []string `json:"affected_files"`
	FilesLikelyTouched []string `json:"files_likely_touched"`
	DependsOn          []string `json:"depends_on"`
	Dependencies       []string `json:"dependencies"`
	Priority           string   `json:"priority"`
	EstimatedCommits   int      `json:"estimated_commits"`
	Type               string   `json:"type"`
}

type rawEnvelope struct {
	Reason   string        `json:"reason"`
	Subtasks []rawWorkItem `json:"subtasks"`
	Tasks    []rawWorkItem `json:"tasks"`
}

func decodeWorkItems(text string) ([]models.WorkItem, string, error) {
	payload := extractJSON(text)
	if payload == "" {
		return nil, "", &ParseError{Reason: "no JSON payload found", Snippet: snippet(text)}
	}

	var raw []rawWorkItem
	var reason string
	if payload[0] == '[' {
		if err := json.Unmarshal([]byte(payload), &raw); err != nil {
			return nil, "", &ParseError{Reason: err.Error(), Snippet: snippet(payload)}
		}
	} else {
		var env rawEnvelope
		if err := json.Unmarshal([]byte(payload), &env); err != nil {
			return nil, "", &ParseError{Reason: err.Error(), Snippet: snippet(payload)}
		}
		raw = env.Subtasks
		if len(raw) == 0 {
			raw = env.Tasks
		}
		reason = env.Reason
	}

	if len(raw) == 0 {
		return nil, "", &ParseError{Reason: "no work items", Snippet: snippet(payload)}
	}

	items := make([]models.WorkItem, 0, len(raw))
	for i, r := range raw {
		title := strings.TrimSpace(r.Title)
		if title == "" {
			return nil, "", &ParseError{Reason: fmt.Sprintf("work item %d has no title", i)}
		}
		files := r.AffectedFiles
		if len(files) == 0 {
			files = r.FilesLikelyTouched
		}
		deps := r.DependsOn
		if len(deps) == 0 {
			deps = r.Dependencies
		}
		items = append(items, models.WorkItem{
			Title:              title,
			Description:        strings.TrimSpace(r.Description),
			AcceptanceCriteria: r.AcceptanceCriteria,
			RequiredSkills:     r.RequiredSkills,
			AffectedFiles:      files,
			DependsOn:          deps,
			Priority:           models.ParsePriority(strings.TrimSpace(r.Priority)),
			EstimatedCommits:   r.EstimatedCommits,
			Kind:               parseKind(r.Type),
		})
	}
	return items, reason, nil
}

func parseKind(s string) models.Specialization {
	switch models.Specialization(strings.ToLower(strings.TrimSpace(s))) {
	case models.SpecializationPlanning:
		return models.SpecializationPlanning
	case models.SpecializationTesting:
		return models.SpecializationTesting
	case models.SpecializationIntegration:
		return models.SpecializationIntegration
	default:
		return models.SpecializationImplementation
	}
}

// extractJSON returns the first balanced JSON array or object in text,
// looking inside a fenced code block first.
func extractJSON(text string) string {
	if start := strings.Index(text, "```"); start >= 0 {
		rest := text[start+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			if s := balanced(rest[:end]); s != "" {
				return s
			}
		}
	}
	return balanced(text)
}

// balanced scans for the first '[' or '{' and returns the text up to its
// matching close, honouring JSON string literals.
func balanced(text string) string {
	start := strings.IndexAny(text, "[{")
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[', '{':
			depth++
		case ']', '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= 80 {
		return s
	}
	cut := 80
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
