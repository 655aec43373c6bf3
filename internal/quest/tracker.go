package quest

// Tracker holds an ordered quest plan and a cursor on the quest currently
// being worked on. The cursor starts at 0, never decreases, and never moves
// past the last quest.
//
// A Tracker is not safe for concurrent use; the owning session serializes
// access.
type Tracker struct {
	plan   []Quest
	cursor int
}

// NewTracker returns a tracker with an empty plan.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Initialize replaces the plan with the one deserialized from rawPlan and
// resets the cursor. A missing or malformed payload yields an empty plan.
// The returned active quest is the first quest of the plan, or fallback
// when the plan is empty.
func (t *Tracker) Initialize(rawPlan string, fallback *Quest) ([]Quest, *Quest) {
	plan, _ := ParsePlan(rawPlan)
	if plan == nil {
		plan = []Quest{}
	}
	t.plan = plan
	t.cursor = 0

	if len(plan) > 0 {
		first := plan[0]
		return t.Plan(), &first
	}
	if fallback != nil {
		fb := *fallback
		return t.Plan(), &fb
	}
	return t.Plan(), nil
}

// Advance moves the cursor to the next quest and returns it. When the
// cursor already sits on the last quest it stays put and Advance returns
// nil.
func (t *Tracker) Advance() *Quest {
	if t.cursor >= len(t.plan)-1 {
		return nil
	}
	t.cursor++
	next := t.plan[t.cursor]
	return &next
}

// Classify reports how the quest at index relates to the cursor.
func (t *Tracker) Classify(index int) Status {
	switch {
	case index < t.cursor:
		return StatusCompleted
	case index == t.cursor:
		return StatusActive
	default:
		return StatusFuture
	}
}

// Statuses classifies every quest of the plan.
func (t *Tracker) Statuses() []Status {
	out := make([]Status, len(t.plan))
	for i := range t.plan {
		out[i] = t.Classify(i)
	}
	return out
}

// Cursor returns the index of the current quest.
func (t *Tracker) Cursor() int { return t.cursor }

// Plan returns a copy of the plan.
func (t *Tracker) Plan() []Quest {
	out := make([]Quest, len(t.plan))
	copy(out, t.plan)
	return out
}
