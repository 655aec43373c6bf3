package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"skillforge/internal/quest"
)

// GoalShape names the response layout the goal endpoint answered with.
type GoalShape int

const (
	// ShapeSingle is {name, description}: the goal itself is the only quest.
	ShapeSingle GoalShape = iota + 1
	// ShapePlan is {full_plan_json, first_quest} at the top level; "quest"
	// stands in for first_quest. {goal_title, sub_tasks} is also a plan, and
	// the whole body is kept as the plan text.
	ShapePlan
	// ShapeNested is {goal: {full_plan_json, first_quest}}.
	ShapeNested
)

func (s GoalShape) String() string {
	switch s {
	case ShapeSingle:
		return "single"
	case ShapePlan:
		return "plan"
	case ShapeNested:
		return "nested"
	default:
		return "unknown"
	}
}

// GoalResponse is the normalized result of a goal submission.
type GoalResponse struct {
	Shape GoalShape
	// Title is the goal name as echoed by the backend, if any.
	Title       string
	Description string
	// PlanJSON is the serialized plan, untouched; decoding it is the
	// tracker's job.
	PlanJSON   string
	FirstQuest *quest.Quest
	Raw        json.RawMessage
}

type goalEnvelope struct {
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	GoalText     string          `json:"goal_text"`
	GoalTitle    string          `json:"goal_title"`
	FullPlanJSON json.RawMessage `json:"full_plan_json"`
	FirstQuest   json.RawMessage `json:"first_quest"`
	Quest        json.RawMessage `json:"quest"`
	SubTasks     json.RawMessage `json:"sub_tasks"`
	Goal         json.RawMessage `json:"goal"`
}

// DecodeGoalResponse classifies body into one of the known goal response
// shapes and validates it. A malformed first quest candidate is skipped; a
// plan shape with neither a plan nor a usable quest is rejected.
func DecodeGoalResponse(body []byte) (*GoalResponse, error) {
	var top goalEnvelope
	if err := json.Unmarshal(body, &top); err != nil {
		return nil, fmt.Errorf("decode goal response: %w", err)
	}
	raw := json.RawMessage(bytes.Clone(body))

	if isObject(top.Goal) {
		var nested goalEnvelope
		if err := json.Unmarshal(top.Goal, &nested); err != nil {
			return nil, fmt.Errorf("decode nested goal: %w", err)
		}
		if present(nested.FullPlanJSON) || present(nested.FirstQuest) {
			plan := planText(nested.FullPlanJSON)
			first := firstQuest(nested.FirstQuest, top.FirstQuest, top.Quest)
			if plan != "" || first != nil {
				return &GoalResponse{
					Shape:       ShapeNested,
					Title:       firstNonEmpty(nested.GoalText, nested.GoalTitle, nested.Name, top.Name),
					Description: firstNonEmpty(nested.Description, top.Description),
					PlanJSON:    plan,
					FirstQuest:  first,
					Raw:         raw,
				}, nil
			}
		}
	}

	if present(top.FullPlanJSON) || present(top.FirstQuest) || isObject(top.Quest) {
		plan := planText(top.FullPlanJSON)
		first := firstQuest(top.FirstQuest, top.Quest)
		if plan != "" || first != nil {
			return &GoalResponse{
				Shape:       ShapePlan,
				Title:       firstNonEmpty(top.GoalText, top.GoalTitle, top.Name),
				Description: top.Description,
				PlanJSON:    plan,
				FirstQuest:  first,
				Raw:         raw,
			}, nil
		}
	}

	if isArray(top.SubTasks) {
		return &GoalResponse{
			Shape:       ShapePlan,
			Title:       firstNonEmpty(top.GoalTitle, top.GoalText, top.Name),
			Description: top.Description,
			PlanJSON:    string(bytes.TrimSpace(body)),
			Raw:         raw,
		}, nil
	}

	if top.Name != "" {
		return &GoalResponse{
			Shape:       ShapeSingle,
			Title:       top.Name,
			Description: top.Description,
			FirstQuest:  &quest.Quest{Title: top.Name, Description: top.Description},
			Raw:         raw,
		}, nil
	}

	return nil, ErrUnknownGoalShape
}

func present(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}

func isArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}

// full_plan_json is normally a string holding JSON, but an inline array is
// handed over verbatim.
func planText(raw json.RawMessage) string {
	if !present(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// firstQuest returns the first candidate that decodes as a quest.
func firstQuest(candidates ...json.RawMessage) *quest.Quest {
	for _, raw := range candidates {
		if !present(raw) {
			continue
		}
		var q quest.Quest
		if err := json.Unmarshal(raw, &q); err != nil {
			continue
		}
		return &q
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
