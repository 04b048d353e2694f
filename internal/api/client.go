package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pefman/critsim/internal/game"
	"github.com/pefman/critsim/internal/models"
	"github.com/pefman/critsim/internal/session"
)

var defaultHTTPClient = &http.Client{Timeout: 2 * time.Minute}

// Config holds API configuration
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
}

type Client struct {
	config Config
}

func NewClient(baseURL string) *Client {
	return NewClientWithConfig(Config{BaseURL: baseURL})
}

func NewClientWithConfig(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = defaultHTTPClient
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{config: cfg}
}

// APIError is a non-2xx response from the service, or an error message
// pushed over the websocket (Status 0).
type APIError struct {
	Status  int
	Message string
	// set for 422 responses
	warning bool
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return "api: " + e.Message
	}
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

// Unwrap lets errors.Is(err, models.ErrEmptyDataset) see through a 422.
func (e *APIError) Unwrap() error {
	if e.warning {
		return models.ErrEmptyDataset
	}
	return nil
}

func (c *Client) apiDo(ctx context.Context, method, path string, body, out interface{}) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.config.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Message string `json:"message"`
			Warning string `json:"warning"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		apiErr := &APIError{Status: resp.StatusCode, Message: e.Message}
		if resp.StatusCode == http.StatusUnprocessableEntity {
			apiErr.warning = true
			apiErr.Message = e.Warning
		}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// SimulateRequest is the body of the simulate endpoints. Seed and BatchSize
// are optional; zero Trials lets the server pick its default. SessionID makes
// Trace and Stream use that session's patterns.
type SimulateRequest struct {
	SessionID    string                 `json:"session_id,omitempty"`
	Patterns     []models.AttackPattern `json:"patterns,omitempty"`
	TargetDamage float64                `json:"target_damage"`
	Trials       int                    `json:"trials,omitempty"`
	Seed         *int64                 `json:"seed,omitempty"`
	BatchSize    int                    `json:"batch_size,omitempty"`
}

func (c *Client) Health(ctx context.Context) error {
	var out struct {
		OK bool `json:"ok"`
	}
	if err := c.apiDo(ctx, http.MethodGet, "/api/healthz", nil, &out); err != nil {
		return err
	}
	if !out.OK {
		return fmt.Errorf("api unhealthy")
	}
	return nil
}

// Simulate runs a stateless estimate.
func (c *Client) Simulate(ctx context.Context, req SimulateRequest) (models.SimulationResult, error) {
	var res models.SimulationResult
	err := c.apiDo(ctx, http.MethodPost, "/api/simulate", req, &res)
	return res, err
}

// Trace plays one trial on the server and returns every roll.
func (c *Client) Trace(ctx context.Context, req SimulateRequest) (game.TrialTrace, error) {
	var tr game.TrialTrace
	err := c.apiDo(ctx, http.MethodPost, "/api/trace", req, &tr)
	return tr, err
}

func (c *Client) CreateSession(ctx context.Context) (session.Summary, error) {
	var out session.Summary
	err := c.apiDo(ctx, http.MethodPost, "/api/sessions", nil, &out)
	return out, err
}

func (c *Client) GetSession(ctx context.Context, id string) (session.Summary, error) {
	var out session.Summary
	err := c.apiDo(ctx, http.MethodGet, "/api/sessions/"+id, nil, &out)
	return out, err
}

func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.apiDo(ctx, http.MethodDelete, "/api/sessions/"+id, nil, nil)
}

// AddPattern appends p to the session and returns its 0-based index.
func (c *Client) AddPattern(ctx context.Context, id string, p models.AttackPattern) (int, error) {
	var out struct {
		Index int `json:"index"`
	}
	err := c.apiDo(ctx, http.MethodPost, "/api/sessions/"+id+"/patterns", p, &out)
	return out.Index, err
}

func (c *Client) ListPatterns(ctx context.Context, id string) ([]models.AttackPattern, error) {
	var out []models.AttackPattern
	err := c.apiDo(ctx, http.MethodGet, "/api/sessions/"+id+"/patterns", nil, &out)
	return out, err
}

func (c *Client) RemovePattern(ctx context.Context, id string, index int) error {
	return c.apiDo(ctx, http.MethodDelete, fmt.Sprintf("/api/sessions/%s/patterns/%d", id, index), nil, nil)
}

// SimulateSession runs over the session's patterns; req.Patterns is ignored.
func (c *Client) SimulateSession(ctx context.Context, id string, req SimulateRequest) (models.SimulationResult, error) {
	req.Patterns, req.SessionID = nil, ""
	var res models.SimulationResult
	err := c.apiDo(ctx, http.MethodPost, "/api/sessions/"+id+"/simulate", req, &res)
	return res, err
}
