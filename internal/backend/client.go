package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jonathan/job-agent/internal/schemas"
	"github.com/jonathan/job-agent/internal/types"
)

const (
	// DefaultTimeout is the request timeout for non-streaming calls
	DefaultTimeout = 30 * time.Second
	// DefaultFinishGrace is how long a stream keeps reading after finish
	// for late result frames when the backend leaves the socket open
	DefaultFinishGrace = 10 * time.Second
)

const maxErrorBody = 64 << 10

// Config holds the backend endpoints and the fallback credential
type Config struct {
	BaseURL string
	// StreamURL is the WebSocket base; derived from BaseURL when empty
	StreamURL string
	Token     string
	Timeout   time.Duration
	// FinishGrace bounds reading after a finish frame (default DefaultFinishGrace)
	FinishGrace time.Duration
}

// Client talks to the automation backend over HTTP and WebSocket
type Client struct {
	baseURL   string
	streamURL string
	token     string
	grace     time.Duration
	http      *http.Client
	dialer    *websocket.Dialer
	validator *schemas.Validator
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the HTTP client used for non-streaming calls
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger (default slog.Default())
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithClock sets the time source used for credential expiry checks
func WithClock(fn func() time.Time) Option {
	return func(c *Client) { c.now = fn }
}

// New creates a backend client
func New(cfg Config, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid backend URL %q", cfg.BaseURL)
	}

	streamURL := strings.TrimRight(cfg.StreamURL, "/")
	if streamURL == "" {
		ws := *base
		switch base.Scheme {
		case "https":
			ws.Scheme = "wss"
		default:
			ws.Scheme = "ws"
		}
		streamURL = ws.String()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	grace := cfg.FinishGrace
	if grace <= 0 {
		grace = DefaultFinishGrace
	}

	validator, err := schemas.Get(schemas.StreamMessage)
	if err != nil {
		return nil, fmt.Errorf("failed to load stream message schema: %w", err)
	}

	c := &Client{
		baseURL:   base.String(),
		streamURL: streamURL,
		token:     cfg.Token,
		grace:     grace,
		http:      &http.Client{Timeout: timeout},
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		validator: validator,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type startResponse struct {
	Identifier string `json:"identifier"`
}

// StartApplication asks the backend to begin a run and returns its identifier
func (c *Client) StartApplication(ctx context.Context, req StartRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to encode start request: %w", err)
	}

	var resp startResponse
	if err := c.do(ctx, http.MethodPost, "/applications", body, "application", "", &resp); err != nil {
		return "", err
	}
	if resp.Identifier == "" {
		return "", &ServerError{StatusCode: http.StatusOK, Message: "response carries no identifier"}
	}
	return resp.Identifier, nil
}

// FetchApplicationHistory loads the durable record of a run
func (c *Client) FetchApplicationHistory(ctx context.Context, id string) (*types.ApplicationRecord, error) {
	var record types.ApplicationRecord
	if err := c.do(ctx, http.MethodGet, "/applications/"+url.PathEscape(id), nil, "application", id, &record); err != nil {
		return nil, err
	}
	if record.Identifier == "" {
		record.Identifier = id
	}
	return &record, nil
}

// ListResumes returns the user's stored résumés
func (c *Client) ListResumes(ctx context.Context) ([]types.Resume, error) {
	var resumes []types.Resume
	if err := c.do(ctx, http.MethodGet, "/resumes", nil, "resumes", "", &resumes); err != nil {
		return nil, err
	}
	return resumes, nil
}

// StreamApplicationEvents opens the live event stream of a run
func (c *Client) StreamApplicationEvents(ctx context.Context, id string) (Stream, error) {
	token, err := c.credential(ctx)
	if err != nil {
		return nil, err
	}

	target := c.streamURL + "/applications/" + url.PathEscape(id) + "/events"
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := c.dialer.DialContext(ctx, target, header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusSwitchingProtocols {
				return nil, statusError(resp.StatusCode, readErrorBody(resp.Body), "application", id)
			}
		}
		return nil, &TransportError{Op: "stream " + id, Cause: err}
	}

	c.logger.Debug("agent stream opened", "application_id", id)
	return newWSStream(conn, id, c.validator, c.logger, c.grace), nil
}

func (c *Client) credential(ctx context.Context) (string, error) {
	token := TokenFromContext(ctx)
	if token == "" {
		token = c.token
	}
	if err := CheckCredential(token, c.now()); err != nil {
		return "", err
	}
	return token, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, resource, id string, out any) error {
	token, err := c.credential(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: method + " " + path, Cause: err}
	}
	defer resp.Body.Close()

	c.logger.Debug("backend request",
		"method", method, "path", path, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp.StatusCode, readErrorBody(resp.Body), resource, id)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ServerError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("invalid response body: %v", err)}
	}
	return nil
}

// statusError maps a non-success status onto the error taxonomy
func statusError(status int, message, resource, id string) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &AuthError{Message: orDefault(message, http.StatusText(status))}
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return &ValidationError{Message: orDefault(message, http.StatusText(status))}
	case http.StatusNotFound:
		return &NotFoundError{Resource: resource, ID: id}
	default:
		return &ServerError{StatusCode: status, Message: message}
	}
}

func readErrorBody(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(data) == 0 {
		return ""
	}
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &payload) == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return strings.TrimSpace(string(data))
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
