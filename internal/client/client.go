// Package client provides an HTTP and WebSocket client for the turnmark server.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/turnmark/internal/server"
)

// Client talks to a running turnmark server.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// New creates a new client.
// If endpoint is empty, uses TURNMARK_SERVER_URL env var or defaults to localhost:8080.
// Timeout can be configured via TURNMARK_CLIENT_TIMEOUT env var (default 30s).
func New(endpoint string) *Client {
	if endpoint == "" {
		endpoint = os.Getenv("TURNMARK_SERVER_URL")
	}
	if endpoint == "" {
		endpoint = "http://localhost:8080"
	}

	timeout := 30 * time.Second
	if t := os.Getenv("TURNMARK_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Endpoint returns the server base URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// get performs a GET request and returns the response for a 200 status.
// The caller closes the body.
func (c *Client) get(ctx context.Context, path string, query url.Values) (*http.Response, error) {
	u := c.endpoint + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("server error: %s - %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return resp, nil
}

// getJSON performs a GET request and decodes the JSON response into result.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, result any) error {
	resp, err := c.get(ctx, path, query)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// =============================================================================
// HTTP OPERATIONS
// =============================================================================

// ServerStats is the response of GET /stats.
type ServerStats struct {
	UptimeSeconds float64         `json:"uptimeSeconds"`
	Commit        *OperationStats `json:"commit,omitempty"`
	StoreSave     *OperationStats `json:"storeSave,omitempty"`
	StoreLoad     *OperationStats `json:"storeLoad,omitempty"`
	Export        *OperationStats `json:"export,omitempty"`
	WSMessage     *OperationStats `json:"wsMessage,omitempty"`
	Sessions      []SessionInfo   `json:"sessions"`
}

// OperationStats holds timing stats for one operation.
type OperationStats struct {
	Count       int64   `json:"count"`
	Failures    int64   `json:"failures"`
	TotalTimeMs int64   `json:"totalTimeMs"`
	AvgTimeMs   float64 `json:"avgTimeMs"`
	MinTimeMs   int64   `json:"minTimeMs"`
	MaxTimeMs   int64   `json:"maxTimeMs"`
}

// SessionInfo is a conversation claimed by an open WebSocket session.
type SessionInfo struct {
	ID       string    `json:"id"`
	Key      Key       `json:"key"`
	Remote   string    `json:"remote"`
	OpenedAt time.Time `json:"openedAt"`
}

// Key identifies a conversation.
type Key struct {
	CustomerID     string `json:"customerId"`
	ConversationID string `json:"conversationId"`
}

func (k Key) String() string {
	return k.CustomerID + "/" + k.ConversationID
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.get(ctx, "/health", nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// GetServerStats returns in-memory runtime statistics and open sessions.
func (c *Client) GetServerStats(ctx context.Context) (*ServerStats, error) {
	var stats ServerStats
	if err := c.getJSON(ctx, "/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// ListConversations returns the server's catalog with annotation status.
func (c *Client) ListConversations(ctx context.Context) ([]server.ConversationInfo, error) {
	var convs []server.ConversationInfo
	if err := c.getJSON(ctx, "/conversations", nil, &convs); err != nil {
		return nil, err
	}
	return convs, nil
}

// Suggest returns vocabulary entries of kind ("intents" or "slot-keys")
// starting with prefix.
func (c *Client) Suggest(ctx context.Context, kind, prefix string) ([]string, error) {
	var out []string
	query := url.Values{}
	if prefix != "" {
		query.Set("prefix", prefix)
	}
	if err := c.getJSON(ctx, "/vocab/"+url.PathEscape(kind), query, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ExportCSV streams the CSV export to w and returns the row count reported
// by the server.
func (c *Client) ExportCSV(ctx context.Context, w io.Writer) (int, error) {
	resp, err := c.get(ctx, "/export.csv", nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(w, resp.Body); err != nil {
		return 0, fmt.Errorf("read export: %w", err)
	}
	rows, _ := strconv.Atoi(resp.Header.Get("X-Export-Rows"))
	return rows, nil
}

// =============================================================================
// WEBSOCKET SESSIONS
// =============================================================================

// RemoteError is an error frame returned by the server. The session stays
// usable after it.
type RemoteError struct {
	Request string
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Request, e.Message, e.Code)
}

// Session is an annotation session over WebSocket. Send is request/response:
// the server answers every message with exactly one frame.
type Session struct {
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
}

// Dial opens an annotation session.
func (c *Client) Dial(ctx context.Context) (*Session, error) {
	// Convert HTTP endpoint to WebSocket endpoint
	wsEndpoint := c.endpoint
	wsEndpoint = strings.Replace(wsEndpoint, "http://", "ws://", 1)
	wsEndpoint = strings.Replace(wsEndpoint, "https://", "wss://", 1)

	u, err := url.Parse(wsEndpoint + "/ws")
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket connect: %w", err)
	}
	return &Session{conn: conn}, nil
}

// Send writes msg and waits for the server's reply. An error frame is
// returned as *RemoteError.
func (s *Session) Send(ctx context.Context, msg server.ClientMessage) (*server.StateFrame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Handle context cancellation in a separate goroutine
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-done:
		}
	}()

	if err := s.conn.WriteJSON(msg); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("send %s: %w", msg.Type, err)
	}

	_, data, err := s.conn.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("read reply: %w", err)
	}

	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("unmarshal reply: %w", err)
	}

	switch head.Type {
	case "state":
		var frame server.StateFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			return nil, fmt.Errorf("unmarshal state: %w", err)
		}
		return &frame, nil
	case "error":
		var frame server.ErrorFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			return nil, fmt.Errorf("unmarshal error frame: %w", err)
		}
		return nil, &RemoteError{Request: frame.Request, Code: frame.Code, Message: frame.Error}
	default:
		return nil, fmt.Errorf("unexpected frame type %q", head.Type)
	}
}

// Close ends the session. The server saves the open conversation.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return s.conn.Close()
}

// IsRemote reports whether err is an error frame with the given code.
func IsRemote(err error, code string) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Code == code
}
