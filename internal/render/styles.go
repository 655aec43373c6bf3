// Package render draws session output to a terminal.
package render

import (
	"github.com/charmbracelet/lipgloss"

	"skillforge/internal/quest"
)

var (
	Accent  = lipgloss.Color("#8BC34A")
	Primary = lipgloss.Color("#2196F3")
	Muted   = lipgloss.Color("#7a8594")
	Danger  = lipgloss.Color("#e53935")
)

// Styles holds the styles for one output stream.
type Styles struct {
	Label     lipgloss.Style
	Completed lipgloss.Style
	Active    lipgloss.Style
	Future    lipgloss.Style
	Error     lipgloss.Style
}

// NewStyles builds styles bound to r. With plain set no colors or
// attributes are applied.
func NewStyles(r *lipgloss.Renderer, plain bool) Styles {
	if plain {
		s := r.NewStyle()
		return Styles{Label: s, Completed: s, Active: s, Future: s, Error: s}
	}
	return Styles{
		Label:     r.NewStyle().Foreground(Primary).Bold(true),
		Completed: r.NewStyle().Foreground(Muted).Strikethrough(true),
		Active:    r.NewStyle().Foreground(Accent).Bold(true),
		Future:    r.NewStyle().Foreground(Muted),
		Error:     r.NewStyle().Foreground(Danger).Bold(true),
	}
}

// ForStatus picks the quest style for a display state.
func (s Styles) ForStatus(st quest.Status) lipgloss.Style {
	switch st {
	case quest.StatusCompleted:
		return s.Completed
	case quest.StatusActive:
		return s.Active
	default:
		return s.Future
	}
}

func marker(st quest.Status) string {
	switch st {
	case quest.StatusCompleted:
		return "[x]"
	case quest.StatusActive:
		return "[>]"
	default:
		return "[ ]"
	}
}
