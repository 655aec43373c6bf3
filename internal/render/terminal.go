package render

import (
	"crypto/ecdsa"
	"fmt"
	"html"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/microcosm-cc/bluemonday"

	"skillforge/internal/credential"
	"skillforge/internal/quest"
	"skillforge/internal/session"
)

var labels = map[session.Element]string{
	session.ElementUserResult:           "User",
	session.ElementQuestDisplay:         "Goal",
	session.ElementActiveQuest:          "Active quest",
	session.ElementQuestList:            "Quests",
	session.ElementAccomplishmentResult: "Accomplishment",
	session.ElementCredential:           "Credential",
}

// Terminal writes each element as a labelled block.
type Terminal struct {
	mu        sync.Mutex
	out       io.Writer
	styles    Styles
	policy    *bluemonday.Policy
	issuerKey *ecdsa.PublicKey
}

type Option func(*Terminal)

// WithPlain disables colors regardless of the terminal.
func WithPlain(plain bool) Option {
	return func(t *Terminal) {
		if plain {
			t.styles = NewStyles(lipgloss.NewRenderer(t.out), true)
		}
	}
}

// WithIssuerKey makes credential output report signature validity.
func WithIssuerKey(key *ecdsa.PublicKey) Option {
	return func(t *Terminal) { t.issuerKey = key }
}

func NewTerminal(out io.Writer, opts ...Option) *Terminal {
	t := &Terminal{
		out:    out,
		styles: NewStyles(lipgloss.NewRenderer(out), false),
		policy: bluemonday.StrictPolicy(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Show prints text under the element's label. Markup from the backend is
// stripped first.
func (t *Terminal) Show(el session.Element, text string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	body := t.Sanitize(text)
	if el == session.ElementCredential {
		body = t.describeCredential(text)
	}
	t.block(el, body)
}

// ShowQuests prints the plan, one line per quest, styled by status.
func (t *Terminal) ShowQuests(quests []quest.Quest, statuses []quest.Status) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(quests) == 0 {
		t.block(session.ElementQuestList, t.styles.Future.Render("No quests yet"))
		return
	}
	lines := make([]string, 0, len(quests))
	for i, q := range quests {
		st := quest.StatusFuture
		if i < len(statuses) {
			st = statuses[i]
		}
		line := fmt.Sprintf("%s %d. %s", marker(st), i+1, t.Sanitize(q.Title))
		if q.DurationMinutes > 0 {
			line += fmt.Sprintf(" (%d min)", q.DurationMinutes)
		}
		lines = append(lines, t.styles.ForStatus(st).Render(line))
	}
	t.block(session.ElementQuestList, strings.Join(lines, "\n"))
}

// Error prints a failed action.
func (t *Terminal) Error(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, t.styles.Error.Render("error:")+" "+t.Sanitize(err.Error()))
}

// Sanitize removes all markup and decodes entities so plain text survives.
func (t *Terminal) Sanitize(s string) string {
	return strings.TrimSpace(html.UnescapeString(t.policy.Sanitize(s)))
}

// must be called with mu held
func (t *Terminal) block(el session.Element, body string) {
	label, ok := labels[el]
	if !ok {
		label = string(el)
	}
	fmt.Fprintln(t.out, t.styles.Label.Render(label+":"))
	for _, line := range strings.Split(body, "\n") {
		fmt.Fprintln(t.out, "  "+line)
	}
}

func (t *Terminal) describeCredential(token string) string {
	token = strings.TrimSpace(token)
	c, err := credential.Decode(token)
	if err != nil {
		return t.Sanitize(token)
	}
	return t.Sanitize(Credential(c, t.verify(token))) + "\n" + token
}

func (t *Terminal) verify(token string) string {
	if t.issuerKey == nil {
		return ""
	}
	if _, err := credential.Verify(token, t.issuerKey); err != nil {
		return "invalid (" + err.Error() + ")"
	}
	return "verified"
}

// Credential formats the readable fields of a decoded credential. signature
// is omitted when empty.
func Credential(c *credential.Credential, signature string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Accomplishment: %s", c.Accomplishment.Name)
	if c.Accomplishment.Description != "" {
		fmt.Fprintf(&b, "\nDescription:    %s", c.Accomplishment.Description)
	}
	if !c.AchievedOn.IsZero() {
		fmt.Fprintf(&b, "\nAchieved on:    %s", c.AchievedOn.Format("2006-01-02 15:04 MST"))
	}
	if c.Issuer != "" {
		fmt.Fprintf(&b, "\nIssuer:         %s", c.Issuer)
	}
	if c.Subject != "" {
		fmt.Fprintf(&b, "\nSubject:        %s", c.Subject)
	}
	if c.ID != "" {
		fmt.Fprintf(&b, "\nCredential ID:  %s", c.ID)
	}
	if len(c.Types) > 0 {
		fmt.Fprintf(&b, "\nTypes:          %s", strings.Join(c.Types, ", "))
	}
	if signature != "" {
		fmt.Fprintf(&b, "\nSignature:      %s", signature)
	}
	return b.String()
}
