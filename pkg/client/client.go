package client

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

	"github.com/gorilla/websocket"

	"github.com/terra-clan/daily-missions/internal/models"
)

// Client is a Go SDK for the daily-missions API
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	dialer     *websocket.Dialer
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new daily-missions client
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		dialer: websocket.DefaultDialer,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError is an error envelope returned by the server
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: %s - %s", e.Code, e.Message)
}

// Definition list response
type definitionList struct {
	Definitions []*models.Definition `json:"definitions"`
	Total       int                  `json:"total"`
}

// ListDefinitions returns the catalog, optionally filtered by difficulty
func (c *Client) ListDefinitions(ctx context.Context, difficulty string) ([]*models.Definition, error) {
	path := "/api/v1/definitions"
	if difficulty != "" {
		path += "?difficulty=" + url.QueryEscape(difficulty)
	}

	var result definitionList
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Definitions, nil
}

// GetDefinition retrieves a definition by ID
func (c *Client) GetDefinition(ctx context.Context, id string) (*models.Definition, error) {
	var def models.Definition
	if err := c.do(ctx, http.MethodGet, "/api/v1/definitions/"+url.PathEscape(id), nil, &def); err != nil {
		return nil, err
	}
	return &def, nil
}

// GetMissions returns the player's current missions
func (c *Client) GetMissions(ctx context.Context, playerID string) (*models.MissionsView, error) {
	var view models.MissionsView
	if err := c.do(ctx, http.MethodGet, playerPath(playerID, "/missions"), nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// Progress reports gameplay progress for a mission type
func (c *Client) Progress(ctx context.Context, playerID string, missionType models.MissionType, amount int) (*models.ProgressView, error) {
	req := models.ProgressRequest{Type: missionType, Amount: &amount}

	var view models.ProgressView
	if err := c.do(ctx, http.MethodPost, playerPath(playerID, "/progress"), req, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// Claim collects the reward of a completed mission
func (c *Client) Claim(ctx context.Context, playerID string, slot int) (*models.ClaimView, error) {
	var view models.ClaimView
	if err := c.do(ctx, http.MethodPost, playerPath(playerID, fmt.Sprintf("/missions/%d/claim", slot)), nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// SetLevel stores the player's level
func (c *Client) SetLevel(ctx context.Context, playerID string, level int) error {
	return c.do(ctx, http.MethodPut, playerPath(playerID, "/level"), models.LevelRequest{Level: &level}, nil)
}

// ResetMissions forces a new assignment. Requires the admin permission.
func (c *Client) ResetMissions(ctx context.Context, playerID string) (*models.MissionsView, error) {
	var view models.MissionsView
	if err := c.do(ctx, http.MethodPost, playerPath(playerID, "/missions/reset"), nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// ClearMissions deletes the player's stored missions. Requires the admin
// permission.
func (c *Client) ClearMissions(ctx context.Context, playerID string) error {
	return c.do(ctx, http.MethodDelete, playerPath(playerID, "/missions"), nil, nil)
}

// Health checks if the service is healthy
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// EventStream reads mission events for one player
type EventStream struct {
	conn *websocket.Conn
}

// Subscribe opens the player's event stream. The first message is a
// snapshot of the current missions.
func (c *Client) Subscribe(ctx context.Context, playerID string) (*EventStream, error) {
	wsURL := strings.Replace(c.baseURL, "http", "ws", 1) + playerPath(playerID, "/events")

	header := http.Header{}
	if c.apiKey != "" {
		header.Set("Authorization", "Bearer "+c.apiKey)
	}

	conn, resp, err := c.dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			if apiErr := decodeError(resp.StatusCode, body); apiErr != nil {
				return nil, apiErr
			}
		}
		return nil, fmt.Errorf("failed to open event stream: %w", err)
	}

	return &EventStream{conn: conn}, nil
}

// Next blocks until the next message arrives
func (s *EventStream) Next() (*models.StreamMessage, error) {
	var msg models.StreamMessage
	if err := s.conn.ReadJSON(&msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Close closes the stream
func (s *EventStream) Close() error {
	return s.conn.Close()
}

func playerPath(playerID, suffix string) string {
	return "/api/v1/players/" + url.PathEscape(playerID) + suffix
}

// do performs a request and unwraps the response envelope into out
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	status, resp, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	if apiErr := decodeError(status, resp); apiErr != nil {
		return apiErr
	}

	if out == nil {
		return nil
	}

	var result struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if err := json.Unmarshal(result.Data, out); err != nil {
		return fmt.Errorf("failed to unmarshal response data: %w", err)
	}
	return nil
}

// decodeError returns nil for successful responses
func decodeError(status int, body []byte) *APIError {
	var result struct {
		Success bool `json:"success"`
		Error   *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(body, &result); err != nil {
		if status >= 400 {
			return &APIError{StatusCode: status, Code: "http_error", Message: strings.TrimSpace(string(body))}
		}
		return nil
	}

	if result.Success && status < 400 {
		return nil
	}

	apiErr := &APIError{StatusCode: status, Code: "unknown_error", Message: http.StatusText(status)}
	if result.Error != nil {
		apiErr.Code = result.Error.Code
		apiErr.Message = result.Error.Message
	}
	return apiErr
}

// doRequest performs an HTTP request
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}

	return resp.StatusCode, respBody, nil
}
