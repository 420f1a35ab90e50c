// Package apiclient talks to the REST collaborator that owns accounts,
// threads and messages. The relay only carries hints; this client is the
// system of record for everything the core caches.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"mini-live-chat/go-core/pkg/models"
)

type Client struct {
	baseURL string
	httpc   *http.Client

	mu    sync.RWMutex
	token string
}

func New(baseURL string, httpc *http.Client) *Client {
	if httpc == nil {
		httpc = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   httpc,
	}
}

// SetToken installs the bearer token used on every subsequent request.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// LoginResponse is what the auth collaborator returns on signup and login.
type LoginResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

func (c *Client) Signup(ctx context.Context, displayName, email, password string) (LoginResponse, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return LoginResponse{}, fmt.Errorf("%w: email and password are required", ErrValidation)
	}
	var out LoginResponse
	err := c.do(ctx, http.MethodPost, "/auth/signup", map[string]string{
		"displayName": displayName,
		"email":       email,
		"password":    password,
	}, &out)
	return out, err
}

func (c *Client) Login(ctx context.Context, email, password string) (LoginResponse, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return LoginResponse{}, fmt.Errorf("%w: email and password are required", ErrValidation)
	}
	var out LoginResponse
	err := c.do(ctx, http.MethodPost, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &out)
	return out, err
}

func (c *Client) Me(ctx context.Context) (models.User, error) {
	var out models.User
	err := c.do(ctx, http.MethodGet, "/users/me", nil, &out)
	return out, err
}

func (c *Client) SearchUsers(ctx context.Context, query string) ([]models.User, error) {
	var out []models.User
	err := c.do(ctx, http.MethodGet, "/users/search?q="+url.QueryEscape(query), nil, &out)
	return out, err
}

// Threads lists the local user's threads, participants and last message
// populated, newest first.
func (c *Client) Threads(ctx context.Context) ([]models.Thread, error) {
	var out []models.Thread
	err := c.do(ctx, http.MethodGet, "/threads", nil, &out)
	return out, err
}

// Messages fetches the newest window of a thread's transcript, ascending by
// timestamp, capped server-side.
func (c *Client) Messages(ctx context.Context, threadID string) ([]models.Message, error) {
	if strings.TrimSpace(threadID) == "" {
		return nil, fmt.Errorf("%w: thread id is required", ErrValidation)
	}
	var out struct {
		Messages []models.Message `json:"messages"`
	}
	err := c.do(ctx, http.MethodGet, "/messages/"+url.PathEscape(threadID), nil, &out)
	return out.Messages, err
}

// SendMessageRequest targets either an existing thread or a participant set
// that the server resolves (find-or-create) to a canonical thread.
type SendMessageRequest struct {
	Text           string   `json:"text"`
	ThreadID       string   `json:"threadId,omitempty"`
	ParticipantIDs []string `json:"participantIds,omitempty"`
}

// SendMessageResponse returns the stored message plus the thread it landed
// in, which is how callers learn the id of a freshly created thread.
type SendMessageResponse struct {
	Message models.Message `json:"message"`
	Thread  models.Thread  `json:"thread"`
}

func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (SendMessageResponse, error) {
	if strings.TrimSpace(req.Text) == "" {
		return SendMessageResponse{}, fmt.Errorf("%w: message text is required", ErrValidation)
	}
	if strings.TrimSpace(req.ThreadID) == "" && len(req.ParticipantIDs) == 0 {
		return SendMessageResponse{}, fmt.Errorf("%w: either threadId or participantIds must be provided", ErrValidation)
	}
	var out SendMessageResponse
	err := c.do(ctx, http.MethodPost, "/messages", req, &out)
	return out, err
}

// UpdateMessageRequest is a partial update; nil fields are left untouched.
type UpdateMessageRequest struct {
	Text      *string   `json:"text,omitempty"`
	Reactions *[]string `json:"reactions,omitempty"`
	Status    *string   `json:"status,omitempty"`
}

func (c *Client) UpdateMessage(ctx context.Context, messageID string, req UpdateMessageRequest) (models.Message, error) {
	if strings.TrimSpace(messageID) == "" {
		return models.Message{}, fmt.Errorf("%w: message id is required", ErrValidation)
	}
	var out struct {
		Message models.Message `json:"message"`
	}
	err := c.do(ctx, http.MethodPatch, "/messages/"+url.PathEscape(messageID), req, &out)
	return out.Message, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.bearer(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("api transport: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var payload struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = json.Unmarshal(raw, &payload)
		return statusError(resp.StatusCode, payload.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("api decode: %w", err)
	}
	return nil
}
