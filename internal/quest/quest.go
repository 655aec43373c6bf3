package quest

import (
	"bytes"
	"encoding/json"
	"strings"
)

// ===== Domain Models =====

// Quest is one step of a plan produced by the backend. It is never mutated
// after it has been decoded.
type Quest struct {
	ID              string `json:"id,omitempty"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
}

// Quest nodes from the graph store are keyed by "name", plan sub-tasks by "title".
type wireQuest struct {
	ID              json.RawMessage `json:"id"`
	Title           string          `json:"title"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	DurationMinutes int             `json:"duration_minutes"`
}

// UnmarshalJSON accepts both quest encodings used by the backend and an
// identifier given either as a string or as a number.
func (q *Quest) UnmarshalJSON(data []byte) error {
	var w wireQuest
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	title := w.Title
	if title == "" {
		title = w.Name
	}
	*q = Quest{
		ID:              identifier(w.ID),
		Title:           title,
		Description:     w.Description,
		DurationMinutes: w.DurationMinutes,
	}
	return nil
}

func identifier(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return strings.Trim(string(raw), `"`)
}

// Status is the display state of a quest relative to the cursor.
type Status int

const (
	StatusCompleted Status = iota
	StatusActive
	StatusFuture
)

func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusActive:
		return "active"
	case StatusFuture:
		return "future"
	default:
		return "unknown"
	}
}

// ParsePlan deserializes a quest plan. The payload is either a JSON array of
// quests or a parsed-goal object carrying them under "sub_tasks". The boolean
// is false when the payload is absent or malformed.
func ParsePlan(raw string) ([]Quest, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}
	var plan []Quest
	if err := json.Unmarshal([]byte(raw), &plan); err == nil {
		return plan, true
	}
	var goal struct {
		SubTasks *[]Quest `json:"sub_tasks"`
	}
	if err := json.Unmarshal([]byte(raw), &goal); err == nil && goal.SubTasks != nil {
		return *goal.SubTasks, true
	}
	return nil, false
}
