// Package restapi is the HTTP side of the chat server: identity lookup,
// contacts, history, user search, uploads and logout. Every call is a plain
// request/response; authentication failures surface as ErrUnauthorized.
package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"
)

// SessionCookie is the cookie the server reads the access token from
const SessionCookie = "access_token"

// MinSearchLength is the shortest prefix the search endpoint accepts
const MinSearchLength = 2

var (
	// ErrUnauthorized means the session is missing or expired
	ErrUnauthorized = errors.New("not authenticated")
	// ErrNotFound means the addressed user or resource does not exist
	ErrNotFound = errors.New("not found")
)

// StatusError is a non-2xx response
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: HTTP %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.Status, e.Body)
}

// Is maps 401 to ErrUnauthorized and 404 to ErrNotFound
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	}
	return false
}

// HistoryMessage is one stored message returned by the history endpoints
type HistoryMessage struct {
	Sender    string
	Content   string
	Timestamp string
	// Filename and FilePath are set for file messages
	Filename string
	FilePath string
}

// IsFile reports whether the entry is a file message
func (m HistoryMessage) IsFile() bool {
	return m.Filename != "" && m.FilePath != ""
}

// Client talks to the chat server's REST endpoints
type Client struct {
	baseURL *url.URL
	token   string
	http    *http.Client
	logger  *log.Logger
}

// NewClient creates a client for baseURL authenticating with the session token
func NewClient(baseURL, token string) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server url %q: scheme must be http or https", baseURL)
	}
	return &Client{
		baseURL: u,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// SetLogger sets a logger for request failures
func (c *Client) SetLogger(logger *log.Logger) {
	c.logger = logger
}

// SetHTTPClient replaces the underlying HTTP client
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.http = hc
}

// BaseURL returns the server root
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

func (c *Client) logf(format string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}

// CurrentUser returns the identity bound to the session
func (c *Client) CurrentUser(ctx context.Context) (string, error) {
	var resp struct {
		Username string `json:"username"`
	}
	if err := c.getJSON(ctx, "current user", "/users/me", nil, &resp); err != nil {
		return "", err
	}
	if resp.Username == "" {
		return "", fmt.Errorf("current user: empty username in response")
	}
	return resp.Username, nil
}

type userEntry struct {
	Username string `json:"username"`
}

func usernames(entries []userEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Username != "" {
			out = append(out, e.Username)
		}
	}
	return out
}

// Contacts returns the identities the user has talked to
func (c *Client) Contacts(ctx context.Context) ([]string, error) {
	var resp []userEntry
	if err := c.getJSON(ctx, "contacts", "/users/contacts", nil, &resp); err != nil {
		return nil, err
	}
	return usernames(resp), nil
}

// SearchUsers returns identities starting with prefix. Prefixes shorter than
// MinSearchLength return no results without a request.
func (c *Client) SearchUsers(ctx context.Context, prefix string) ([]string, error) {
	prefix = strings.TrimSpace(prefix)
	if utf8.RuneCountInString(prefix) < MinSearchLength {
		return nil, nil
	}
	var resp []userEntry
	if err := c.getJSON(ctx, "search users", "/users/search", url.Values{"q": {prefix}}, &resp); err != nil {
		return nil, err
	}
	return usernames(resp), nil
}

// GeneralHistory returns the latest general chat messages
func (c *Client) GeneralHistory(ctx context.Context) ([]HistoryMessage, error) {
	var resp []struct {
		Username  string `json:"username"`
		Content   string `json:"content"`
		Timestamp string `json:"timestamp"`
	}
	if err := c.getJSON(ctx, "general history", "/messages", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]HistoryMessage, 0, len(resp))
	for _, m := range resp {
		out = append(out, HistoryMessage{Sender: m.Username, Content: m.Content, Timestamp: m.Timestamp})
	}
	return out, nil
}

// PrivateHistory returns the conversation with counterpart
func (c *Client) PrivateHistory(ctx context.Context, counterpart string) ([]HistoryMessage, error) {
	var resp []struct {
		Sender      string `json:"sender"`
		Content     string `json:"content"`
		Timestamp   string `json:"timestamp"`
		MessageType string `json:"message_type"`
		Filename    string `json:"filename"`
		FilePath    string `json:"file_path"`
	}
	q := url.Values{"with_user": {counterpart}}
	if err := c.getJSON(ctx, "private history", "/messages/private", q, &resp); err != nil {
		return nil, err
	}
	out := make([]HistoryMessage, 0, len(resp))
	for _, m := range resp {
		h := HistoryMessage{Sender: m.Sender, Content: m.Content, Timestamp: m.Timestamp}
		if m.MessageType == "file" {
			h.Filename = m.Filename
			h.FilePath = m.FilePath
		}
		out = append(out, h)
	}
	return out, nil
}

// Upload sends the file at path as multipart form field "file" and returns
// the filename the server stored it under
func (c *Client) Upload(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("upload: read %s: %w", path, err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/upload/", nil, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp struct {
		Filename string `json:"filename"`
	}
	if err := c.do(req, "upload", &resp); err != nil {
		return "", err
	}
	if resp.Filename == "" {
		return "", fmt.Errorf("upload: empty filename in response")
	}
	return resp.Filename, nil
}

// Logout ends the session server-side
func (c *Client) Logout(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodPost, "/logout", nil, nil)
	if err != nil {
		return err
	}
	return c.do(req, "logout", nil)
}

// WebSocketURL builds the ws:// or wss:// URL for path on the same host
func (c *Client) WebSocketURL(path string) string {
	u := c.BaseURL()
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String()
}

// EndpointFor returns the websocket URL builder for a path template such
// as "/ws/{id}". The identity is escaped by the URL encoder.
func (c *Client) EndpointFor(pathTemplate string) func(identity string) string {
	return func(identity string) string {
		return c.WebSocketURL(strings.ReplaceAll(pathTemplate, "{id}", identity))
	}
}

// CookieHeader renders the session cookie for the websocket handshake.
// It is empty when the client has no token.
func (c *Client) CookieHeader() string {
	if c.token == "" {
		return ""
	}
	return (&http.Cookie{Name: SessionCookie, Value: "Bearer " + c.token}).String()
}

func (c *Client) getJSON(ctx context.Context, op, path string, query url.Values, out interface{}) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	return c.do(req, op, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	u := c.BaseURL()
	u.Path = strings.TrimRight(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "Bearer " + c.token})
	}
	return req, nil
}

func (c *Client) do(req *http.Request, op string, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		c.logf("%s failed: %v", op, err)
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := &StatusError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		c.logf("%v", err)
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}
