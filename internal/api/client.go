package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rosa/ecogoals-sync/internal/models"
)

// Envelope is the wire format every remote endpoint responds with.
// A failed call is a response with Success=false, not an exception.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Client is the remote goal authority as the engine sees it.
type Client interface {
	ListGoals(ctx context.Context, token string) ([]models.Goal, error)
	CreateGoal(ctx context.Context, token string, req models.CreateGoalRequest) (*models.Goal, error)
	UpdateGoal(ctx context.Context, token string, id uuid.UUID, req models.UpdateGoalRequest) (*models.Goal, error)
	DeleteGoal(ctx context.Context, token string, id uuid.UUID) error
	GetGoalStats(ctx context.Context, token string) (*models.GoalStats, error)
}

// HTTPClient talks to the remote goal API over HTTP.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *HTTPClient) ListGoals(ctx context.Context, token string) ([]models.Goal, error) {
	var goals []models.Goal
	if err := c.do(ctx, http.MethodGet, "/api/goals", token, nil, &goals); err != nil {
		return nil, err
	}
	return goals, nil
}

func (c *HTTPClient) CreateGoal(ctx context.Context, token string, req models.CreateGoalRequest) (*models.Goal, error) {
	var goal models.Goal
	if err := c.do(ctx, http.MethodPost, "/api/goals", token, req, &goal); err != nil {
		return nil, err
	}
	return &goal, nil
}

func (c *HTTPClient) UpdateGoal(ctx context.Context, token string, id uuid.UUID, req models.UpdateGoalRequest) (*models.Goal, error) {
	var goal models.Goal
	if err := c.do(ctx, http.MethodPut, "/api/goals/"+id.String(), token, req, &goal); err != nil {
		return nil, err
	}
	return &goal, nil
}

func (c *HTTPClient) DeleteGoal(ctx context.Context, token string, id uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/api/goals/"+id.String(), token, nil, nil)
}

func (c *HTTPClient) GetGoalStats(ctx context.Context, token string) (*models.GoalStats, error) {
	var stats models.GoalStats
	if err := c.do(ctx, http.MethodGet, "/api/goals/stats", token, nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path, token string, body, out interface{}) error {
	// An expired token will be rejected anyway; classify it here without
	// burning a round trip.
	if TokenExpired(token) {
		return fmt.Errorf("%w: token expired", models.ErrAuth)
	}

	var reqBody *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", models.ErrAuth, resp.StatusCode)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", models.ErrTransient, resp.StatusCode)
	}

	var env Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%w: decode response: %v", models.ErrTransient, err)
	}
	if !env.Success {
		msg := env.Error
		if msg == "" {
			msg = fmt.Sprintf("request failed with status %d", resp.StatusCode)
		}
		return fmt.Errorf("remote: %s", msg)
	}

	if out != nil && env.Data != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("%w: decode data: %v", models.ErrTransient, err)
		}
	}
	return nil
}

// TokenExpired checks the token's exp claim without verifying the
// signature. Verification is the server's job; this is only a preflight.
func TokenExpired(token string) bool {
	claims := jwt.RegisteredClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(token, &claims)
	if err != nil || claims.ExpiresAt == nil {
		return false
	}
	return claims.ExpiresAt.Before(time.Now())
}
