package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/splax/reelview/internal/domain"
)

// Client provides typed access to the reelview API for interactive tools.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// New constructs a Client pointing at the provided API base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = "http://localhost:3000"
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// APIError represents an error response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	return fmt.Sprintf("api request failed (%d): %s", e.Status, e.Message)
}

// StatusOf returns the HTTP status carried by err, or 0 when err is not an
// APIError.
func StatusOf(err error) int {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

func (c *Client) do(ctx context.Context, method, path string, body any, token string, v any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint := c.baseURL + path
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		msg := extractError(resp.Body)
		return APIError{Status: resp.StatusCode, Message: msg}
	}

	if v == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func extractError(body io.Reader) string {
	if body == nil {
		return ""
	}
	var payload struct {
		Msg string `json:"msg"`
	}
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return ""
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return strings.TrimSpace(string(data))
	}
	return strings.TrimSpace(payload.Msg)
}

// SessionResponse is returned by signup and login.
type SessionResponse struct {
	Token string `json:"token"`
	Name  string `json:"name"`
}

// Signup registers an account and returns its first session.
func (c *Client) Signup(ctx context.Context, name, email, password string) (SessionResponse, error) {
	body := map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
	}
	var resp SessionResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/signup", body, "", &resp); err != nil {
		return SessionResponse{}, err
	}
	return resp, nil
}

// Login exchanges credentials for a session token.
func (c *Client) Login(ctx context.Context, email, password string) (SessionResponse, error) {
	body := map[string]string{
		"email":    email,
		"password": password,
	}
	var resp SessionResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", body, "", &resp); err != nil {
		return SessionResponse{}, err
	}
	return resp, nil
}

// ListWatchlist returns the server-side watchlist of the token's user.
func (c *Client) ListWatchlist(ctx context.Context, token string) ([]domain.WatchlistEntry, error) {
	var entries []domain.WatchlistEntry
	if err := c.do(ctx, http.MethodGet, "/api/watchlist", nil, token, &entries); err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []domain.WatchlistEntry{}
	}
	return entries, nil
}

// AddToWatchlist stores entry on the server. Adding an existing entry succeeds.
func (c *Client) AddToWatchlist(ctx context.Context, token string, entry domain.WatchlistEntry) error {
	var resp struct {
		Success bool `json:"success"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/watchlist", entry, token, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("watchlist add not acknowledged")
	}
	return nil
}

// TitleList is the body of the list endpoints.
type TitleList struct {
	Results []domain.Title `json:"results"`
}

// Trending returns this week's trending titles.
func (c *Client) Trending(ctx context.Context, kind domain.Kind) ([]domain.Title, error) {
	var resp TitleList
	if err := c.do(ctx, http.MethodGet, "/api/trending?type="+url.QueryEscape(string(kind)), nil, "", &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// Browse searches or filters the catalog.
func (c *Client) Browse(ctx context.Context, q domain.BrowseQuery) ([]domain.Title, error) {
	values := url.Values{}
	values.Set("type", string(q.Kind.OrDefault()))
	if q.Page > 0 {
		values.Set("page", strconv.Itoa(q.Page))
	}
	for key, value := range map[string]string{
		"search":   q.Search,
		"genre":    q.Genre,
		"rating":   q.Rating,
		"language": q.Language,
		"mood":     q.Mood,
	} {
		if value = strings.TrimSpace(value); value != "" {
			values.Set(key, value)
		}
	}
	var resp TitleList
	if err := c.do(ctx, http.MethodGet, "/api/movies?"+values.Encode(), nil, "", &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// Details returns the aggregated detail record of one title. A nil
// Details.Details means the server could not resolve it.
func (c *Client) Details(ctx context.Context, kind domain.Kind, id int64) (domain.Details, error) {
	path := fmt.Sprintf("/api/movie/%d?type=%s", id, url.QueryEscape(string(kind.OrDefault())))
	var resp domain.Details
	if err := c.do(ctx, http.MethodGet, path, nil, "", &resp); err != nil {
		return domain.Details{}, err
	}
	return resp, nil
}
