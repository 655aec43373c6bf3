// Package session holds the state of one signed-in user (bearer token,
// quest tracker, active quest) and maps named actions to handlers that talk
// to the backend and update a View.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"skillforge/internal/api"
	"skillforge/internal/files"
	"skillforge/internal/quest"
)

// Action names accepted by Dispatch.
const (
	ActionRegister   = "register"
	ActionLogin      = "login"
	ActionGoal       = "goal"
	ActionAccomplish = "accomplish"
	ActionCredential = "credential"
	ActionQuests     = "quests"
	ActionStatus     = "status"
	ActionLogout     = "logout"
)

const (
	msgNoActiveQuest = "No active quest"
	msgAllComplete   = "All quests complete"
)

var (
	ErrNotLoggedIn   = errors.New("not logged in")
	ErrUnknownAction = errors.New("unknown action")
	ErrEmptyInput    = errors.New("input must not be empty")
)

// Backend is the subset of the API client the handlers use.
type Backend interface {
	Register(ctx context.Context, req api.RegisterRequest) (json.RawMessage, error)
	Login(ctx context.Context, username, password string) (string, error)
	SubmitGoal(ctx context.Context, token, goal string) (*api.GoalResponse, error)
	SubmitAccomplishment(ctx context.Context, token string, req api.AccomplishmentRequest) (*api.AccomplishmentResponse, error)
	IssueCredential(ctx context.Context, token, accomplishmentID string) (string, error)
}

// Wallet stores issued credentials. It is optional.
type Wallet interface {
	Save(e *files.Entry) error
}

// Input carries the form fields an action may read. Each action ignores the
// fields it does not use.
type Input struct {
	Email            string
	Password         string
	Name             string
	Goal             string
	Accomplishment   string
	AccomplishmentID string
}

// Handler runs one action.
type Handler func(ctx context.Context, in Input) error

type Session struct {
	mu sync.Mutex

	backend Backend
	view    View
	wallet  Wallet
	logger  *zap.Logger

	token   string
	tracker *quest.Tracker
	active  *quest.Quest
	// complete is set once the last quest of the plan is accomplished.
	complete bool

	handlers map[string]Handler
}

type Option func(*Session)

func WithWallet(w Wallet) Option {
	return func(s *Session) { s.wallet = w }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// New returns a logged-out session with an empty quest plan.
func New(backend Backend, view View, opts ...Option) *Session {
	s := &Session{
		backend: backend,
		view:    view,
		logger:  zap.NewNop(),
		tracker: quest.NewTracker(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.handlers = map[string]Handler{
		ActionRegister:   s.Register,
		ActionLogin:      s.Login,
		ActionGoal:       s.SubmitGoal,
		ActionAccomplish: s.Accomplish,
		ActionCredential: s.IssueCredential,
		ActionQuests:     s.Quests,
		ActionStatus:     s.Status,
		ActionLogout:     s.Logout,
	}
	return s
}

// Dispatch runs the handler registered for action.
func (s *Session) Dispatch(ctx context.Context, action string, in Input) error {
	h, ok := s.handlers[strings.ToLower(strings.TrimSpace(action))]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	return h(ctx, in)
}

// Actions lists the registered action names in sorted order.
func (s *Session) Actions() []string {
	names := make([]string, 0, len(s.handlers))
	for name := range s.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Session) LoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token != ""
}

// ActiveQuest returns a copy of the quest awaiting an accomplishment, or nil.
func (s *Session) ActiveQuest() *quest.Quest {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return nil
	}
	q := *s.active
	return &q
}

// ===== Handlers =====

// Register creates an account and shows the backend's raw reply.
func (s *Session) Register(ctx context.Context, in Input) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.backend.Register(ctx, api.RegisterRequest{
		Email:    in.Email,
		Password: in.Password,
		Name:     in.Name,
	})
	if err != nil {
		s.logger.Warn("register failed", zap.String("email", in.Email), zap.Error(err))
		return err
	}
	s.logger.Info("registered", zap.String("email", in.Email))
	s.view.Show(ElementUserResult, string(raw))
	return nil
}

// Login keeps the returned bearer token in memory.
func (s *Session) Login(ctx context.Context, in Input) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, err := s.backend.Login(ctx, in.Email, in.Password)
	if err != nil {
		s.logger.Warn("login failed", zap.String("email", in.Email), zap.Error(err))
		return err
	}
	s.token = token
	s.logger.Info("logged in", zap.String("email", in.Email))
	s.view.Show(ElementUserResult, "Logged in as "+in.Email)
	return nil
}

// SubmitGoal sends the goal text and starts a new quest plan from the reply,
// discarding any previous progress.
func (s *Session) SubmitGoal(ctx context.Context, in Input) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token == "" {
		return ErrNotLoggedIn
	}
	goal := strings.TrimSpace(in.Goal)
	if goal == "" {
		return fmt.Errorf("goal: %w", ErrEmptyInput)
	}

	resp, err := s.backend.SubmitGoal(ctx, s.token, goal)
	if err != nil {
		s.logger.Warn("goal submission failed", zap.Error(err))
		return err
	}

	plan, active := s.tracker.Initialize(resp.PlanJSON, resp.FirstQuest)
	s.active = active
	s.complete = false
	s.logger.Info("goal accepted",
		zap.Stringer("shape", resp.Shape),
		zap.Int("quests", len(plan)),
		zap.Bool("active", active != nil))

	s.view.Show(ElementQuestDisplay, describeGoal(resp))
	s.showActive()
	s.view.ShowQuests(plan, s.tracker.Statuses())
	return nil
}

// Accomplish records an accomplishment against the active quest, moves to
// the next quest and issues the credential. Without an active quest it does
// nothing. A failed issuance is reported after the move; the credential can
// be requested again with IssueCredential.
func (s *Session) Accomplish(ctx context.Context, in Input) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		s.logger.Debug("accomplishment ignored: no active quest")
		return nil
	}
	if s.token == "" {
		return ErrNotLoggedIn
	}

	active := *s.active
	resp, err := s.backend.SubmitAccomplishment(ctx, s.token, api.AccomplishmentRequest{
		Name:        active.Title,
		Description: in.Accomplishment,
		QuestID:     active.ID,
	})
	if err != nil {
		s.logger.Warn("accomplishment failed", zap.String("quest_id", active.ID), zap.Error(err))
		return err
	}
	s.view.Show(ElementAccomplishmentResult, describeAccomplishment(resp))

	s.active = s.tracker.Advance()
	s.complete = s.active == nil
	s.logger.Info("quest accomplished",
		zap.String("quest_id", active.ID),
		zap.Int("cursor", s.tracker.Cursor()),
		zap.Bool("exhausted", s.active == nil))

	id := resp.Accomplishment.ID
	jwt, issueErr := s.backend.IssueCredential(ctx, s.token, id)
	if issueErr == nil {
		s.view.Show(ElementCredential, jwt)
		s.store(&files.Entry{
			AccomplishmentID: id,
			QuestID:          active.ID,
			QuestTitle:       active.Title,
			JWT:              jwt,
		})
	}

	s.showActive()
	s.view.ShowQuests(s.tracker.Plan(), s.tracker.Statuses())

	if issueErr != nil {
		s.logger.Warn("credential issuance failed", zap.String("accomplishment_id", id), zap.Error(issueErr))
		return fmt.Errorf("accomplishment %s recorded but credential not issued: %w", id, issueErr)
	}
	return nil
}

// IssueCredential requests the credential for an explicit accomplishment id.
func (s *Session) IssueCredential(ctx context.Context, in Input) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token == "" {
		return ErrNotLoggedIn
	}
	id := strings.TrimSpace(in.AccomplishmentID)
	jwt, err := s.backend.IssueCredential(ctx, s.token, id)
	if err != nil {
		s.logger.Warn("credential issuance failed", zap.String("accomplishment_id", id), zap.Error(err))
		return err
	}
	s.view.Show(ElementCredential, jwt)
	s.store(&files.Entry{AccomplishmentID: id, JWT: jwt})
	return nil
}

// Quests redraws the quest list from the current plan.
func (s *Session) Quests(_ context.Context, _ Input) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.view.ShowQuests(s.tracker.Plan(), s.tracker.Statuses())
	return nil
}

// Status shows the login state and the active quest.
func (s *Session) Status(_ context.Context, _ Input) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token == "" {
		s.view.Show(ElementUserResult, "Not logged in")
	} else {
		s.view.Show(ElementUserResult, "Logged in")
	}
	s.showActive()
	return nil
}

// Logout forgets the token and the quest plan, as a page reload would.
func (s *Session) Logout(_ context.Context, _ Input) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = ""
	s.active = nil
	s.complete = false
	s.tracker = quest.NewTracker()
	s.logger.Info("logged out")
	s.view.Show(ElementUserResult, "Logged out")
	return nil
}

// ===== Helpers =====

// showActive must be called with mu held.
func (s *Session) showActive() {
	switch {
	case s.active != nil:
		s.view.Show(ElementActiveQuest, describeQuest(s.active))
	case s.complete:
		s.view.Show(ElementActiveQuest, msgAllComplete)
	default:
		s.view.Show(ElementActiveQuest, msgNoActiveQuest)
	}
}

// store saves to the wallet when one is configured. A wallet failure is
// logged and does not undo progress.
func (s *Session) store(e *files.Entry) {
	if s.wallet == nil {
		return
	}
	if err := s.wallet.Save(e); err != nil {
		s.logger.Warn("wallet save failed", zap.String("accomplishment_id", e.AccomplishmentID), zap.Error(err))
		return
	}
	s.logger.Debug("credential saved", zap.String("entry_id", e.ID))
}

func describeQuest(q *quest.Quest) string {
	if q.Description == "" {
		return q.Title
	}
	return q.Title + ": " + q.Description
}

func describeGoal(resp *api.GoalResponse) string {
	switch {
	case resp.Title != "" && resp.Description != "":
		return resp.Title + ": " + resp.Description
	case resp.Title != "":
		return resp.Title
	case resp.FirstQuest != nil:
		return describeQuest(resp.FirstQuest)
	default:
		return "Goal accepted"
	}
}

func describeAccomplishment(resp *api.AccomplishmentResponse) string {
	var b strings.Builder
	if resp.Message != "" {
		b.WriteString(resp.Message)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Accomplishment %s: %s", resp.Accomplishment.ID, resp.Accomplishment.Name)
	for _, sk := range resp.ProcessedSkills {
		fmt.Fprintf(&b, "\n  %s (%s)", sk.Skill, sk.Level)
	}
	return b.String()
}
