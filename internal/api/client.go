// Package api is the client for the remote task service. It sends requests
// and reports failures as-is; classifying them is left to the caller.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/tgienger/tareas/internal/models"
)

// DefaultBaseURL is the hosted task service
const DefaultBaseURL = "https://tareasnode.onrender.com/api"

// Authenticator wraps a transport so requests carry the session credential
type Authenticator interface {
	Transport(base http.RoundTripper) http.RoundTripper
}

// Config configures a Client
type Config struct {
	BaseURL   string
	Auth      Authenticator
	Transport http.RoundTripper // nil means http.DefaultTransport
	Logger    *log.Logger
}

// Client talks to the task service. Task calls are authenticated; the
// register and login calls are not. There are no retries and no timeout.
type Client struct {
	baseURL string
	authed  *http.Client
	anon    *http.Client
	logger  *log.Logger
}

// New creates a new API client
func New(cfg Config) *Client {
	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	authed := &http.Client{Transport: base}
	if cfg.Auth != nil {
		authed = &http.Client{Transport: cfg.Auth.Transport(base)}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		authed:  authed,
		anon:    &http.Client{Transport: base},
		logger:  logger,
	}
}

// RemoteError is a non-success response from the service
type RemoteError struct {
	Method    string
	Path      string
	Status    int
	Body      []byte
	RequestID string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, http.StatusText(e.Status))
}

// AsRemoteError extracts a *RemoteError from err
func AsRemoteError(err error) (*RemoteError, bool) {
	var re *RemoteError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// List fetches every task of the authenticated user, in server order
func (c *Client) List(ctx context.Context) ([]models.Task, error) {
	var tasks []models.Task
	if err := c.do(ctx, c.authed, http.MethodGet, "/tasks", nil, &tasks); err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	return tasks, nil
}

type createRequest struct {
	Title       string      `json:"titulo"`
	Description string      `json:"descripcion"`
	DueDate     models.Date `json:"fechaLimite,omitzero"`
}

type createResponse struct {
	Task models.Task `json:"task"`
}

// Create creates a task and returns it with its server-assigned ID.
// The title is not validated here.
func (c *Client) Create(ctx context.Context, title, description string, due models.Date) (*models.Task, error) {
	req := createRequest{Title: title, Description: description, DueDate: due}
	var resp createResponse
	if err := c.do(ctx, c.authed, http.MethodPost, "/tasks", req, &resp); err != nil {
		return nil, err
	}
	return &resp.Task, nil
}

// Update applies a partial update to the task
func (c *Client) Update(ctx context.Context, id models.ID, update models.TaskUpdate) error {
	return c.do(ctx, c.authed, http.MethodPut, taskPath(id), update, nil)
}

// Delete deletes the task
func (c *Client) Delete(ctx context.Context, id models.ID) error {
	return c.do(ctx, c.authed, http.MethodDelete, taskPath(id), nil, nil)
}

type registerRequest struct {
	Name     string `json:"nombre"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates a new account
func (c *Client) Register(ctx context.Context, name, email, password string) error {
	req := registerRequest{Name: name, Email: email, Password: password}
	return c.do(ctx, c.anon, http.MethodPost, "/auth/register", req, nil)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// Login exchanges email and password for a bearer token
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var resp loginResponse
	if err := c.do(ctx, c.anon, http.MethodPost, "/auth/login", loginRequest{Email: email, Password: password}, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", fmt.Errorf("login: empty token in response")
	}
	return resp.Token, nil
}

func taskPath(id models.ID) string {
	return "/tasks/" + url.PathEscape(id.String())
}

func (c *Client) do(ctx context.Context, hc *http.Client, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := hc.Do(req)
	if err != nil {
		c.logger.Error("request failed", "method", method, "path", path, "request_id", requestID, "error", err)
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("request rejected", "method", method, "path", path, "status", resp.StatusCode, "request_id", requestID)
		return &RemoteError{
			Method:    method,
			Path:      path,
			Status:    resp.StatusCode,
			Body:      data,
			RequestID: requestID,
		}
	}
	c.logger.Debug("request ok", "method", method, "path", path, "status", resp.StatusCode, "request_id", requestID)

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
