package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Endpoint paths, relative to the server base URL.
const (
	PathRegister      = "/api/users/"
	PathToken         = "/api/token"
	PathGoalParse     = "/api/goals/parse"
	PathAccomplish    = "/api/accomplishments/process"
	pathIssueTemplate = "/api/accomplishments/%s/issue-credential"
)

// PathIssueCredential returns the credential issuance path for an accomplishment.
func PathIssueCredential(accomplishmentID string) string {
	return fmt.Sprintf(pathIssueTemplate, url.PathEscape(accomplishmentID))
}

// Client talks to the skillforge backend. It holds no session state: the
// bearer token is passed on every authenticated call.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	logger     *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithTimeout sets a per-request timeout. Zero means none. It applies to a
// copy of the HTTP client, so a client passed to WithHTTPClient is not
// modified.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 {
		hc := *c.httpClient
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}
	return c
}

// ===== Request / Response Types =====

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type AccomplishmentRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	QuestID     string `json:"quest_id,omitempty"`
}

type Accomplishment struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type SkillLevel struct {
	Skill string `json:"skill"`
	Level string `json:"level"`
}

type AccomplishmentResponse struct {
	Message         string         `json:"message"`
	Accomplishment  Accomplishment `json:"accomplishment"`
	ProcessedSkills []SkillLevel   `json:"processed_skills"`
}

type credentialResponse struct {
	JWT string `json:"verifiable_credential_jwt"`
}

// ===== Endpoints =====

// Register creates an account and returns the backend's response untouched.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (json.RawMessage, error) {
	body, err := c.postJSON(ctx, PathRegister, "", req)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	return json.RawMessage(body), nil
}

// Login exchanges credentials for a bearer token. The request is
// form-encoded, as the OAuth2 password flow requires.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	body, err := c.do(ctx, http.MethodPost, PathToken, "", "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	var tok TokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("login: decode response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("login: %w", ErrMissingToken)
	}
	return tok.AccessToken, nil
}

// SubmitGoal asks the backend to decompose a goal into a quest plan.
func (c *Client) SubmitGoal(ctx context.Context, token, goal string) (*GoalResponse, error) {
	body, err := c.postJSON(ctx, PathGoalParse, token, map[string]string{"goal": goal})
	if err != nil {
		return nil, fmt.Errorf("submit goal: %w", err)
	}
	res, err := DecodeGoalResponse(body)
	if err != nil {
		return nil, fmt.Errorf("submit goal: %w", err)
	}
	c.logger.Debug("goal decoded", zap.Stringer("shape", res.Shape), zap.Bool("has_plan", res.PlanJSON != ""))
	return res, nil
}

// SubmitAccomplishment records an accomplishment against a quest.
func (c *Client) SubmitAccomplishment(ctx context.Context, token string, req AccomplishmentRequest) (*AccomplishmentResponse, error) {
	body, err := c.postJSON(ctx, PathAccomplish, token, req)
	if err != nil {
		return nil, fmt.Errorf("submit accomplishment: %w", err)
	}
	var res AccomplishmentResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("submit accomplishment: decode response: %w", err)
	}
	if res.Accomplishment.ID == "" {
		return nil, fmt.Errorf("submit accomplishment: %w", ErrMissingAccomplishmentRef)
	}
	return &res, nil
}

// IssueCredential requests a signed verifiable credential for an
// accomplishment and returns the JWT.
func (c *Client) IssueCredential(ctx context.Context, token, accomplishmentID string) (string, error) {
	id, err := uuid.Parse(strings.TrimSpace(accomplishmentID))
	if err != nil {
		return "", fmt.Errorf("issue credential: %w: %q", ErrInvalidAccomplishmentID, accomplishmentID)
	}
	body, err := c.do(ctx, http.MethodPost, PathIssueCredential(id.String()), token, "", nil)
	if err != nil {
		return "", fmt.Errorf("issue credential: %w", err)
	}
	var res credentialResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return "", fmt.Errorf("issue credential: decode response: %w", err)
	}
	if res.JWT == "" {
		return "", fmt.Errorf("issue credential: %w", ErrMissingCredential)
	}
	return res.JWT, nil
}

// ===== Helpers =====

func (c *Client) postJSON(ctx context.Context, path, token string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, http.MethodPost, path, token, "application/json", bytes.NewReader(data))
}

func (c *Client) do(ctx context.Context, method, path, token, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	c.logger.Debug("request done",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("backend error", zap.String("path", path), zap.Int("status", resp.StatusCode))
		return nil, newStatusError(resp.StatusCode, b)
	}
	return b, nil
}
