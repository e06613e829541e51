// Package tmdb is a small client for the TMDB v3 REST API.
package tmdb

import (
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

	"golang.org/x/time/rate"

	"github.com/splax/reelview/internal/domain"
)

const defaultBaseURL = "https://api.themoviedb.org/3"

// ErrNoAPIKey is returned by every call when the client has no API key.
var ErrNoAPIKey = errors.New("tmdb api key not configured")

// StatusError reports a non-200 upstream response.
type StatusError struct {
	Path   string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tmdb %s returned %d", e.Path, e.Status)
}

// Options tunes a Client.
type Options struct {
	BaseURL       string
	Timeout       time.Duration
	RatePerSecond float64
	HTTPClient    *http.Client
}

// Client issues rate limited requests against TMDB.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// New constructs a Client. A zero RatePerSecond disables throttling.
func New(apiKey string, opts Options) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RatePerSecond > 0 {
		burst := int(opts.RatePerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}
	return &Client{apiKey: apiKey, baseURL: base, http: httpClient, limiter: limiter}
}

// Result is one entry of a TMDB list response.
type Result struct {
	ID               int64   `json:"id"`
	Title            string  `json:"title"`
	Name             string  `json:"name"`
	Overview         string  `json:"overview"`
	PosterPath       string  `json:"poster_path"`
	BackdropPath     string  `json:"backdrop_path"`
	VoteAverage      float64 `json:"vote_average"`
	ReleaseDate      string  `json:"release_date"`
	FirstAirDate     string  `json:"first_air_date"`
	OriginalLanguage string  `json:"original_language"`
}

type listResponse struct {
	Results []Result `json:"results"`
}

// Video is one entry of the videos endpoint.
type Video struct {
	Key  string `json:"key"`
	Site string `json:"site"`
	Type string `json:"type"`
}

type videosResponse struct {
	Results []Video `json:"results"`
}

// ProviderRegion carries the watch link for one region.
type ProviderRegion struct {
	Link string `json:"link"`
}

type providersResponse struct {
	Results map[string]ProviderRegion `json:"results"`
}

// DiscoverParams are the filters forwarded to the discover endpoint. Empty
// fields are omitted.
type DiscoverParams struct {
	Genre    string
	Rating   string
	Language string
	Page     int
}

// Trending returns this week's trending titles.
func (c *Client) Trending(ctx context.Context, kind domain.Kind) ([]Result, error) {
	var res listResponse
	if err := c.get(ctx, "/trending/"+string(kind)+"/week", nil, &res); err != nil {
		return nil, err
	}
	return res.Results, nil
}

// Search runs a free text search.
func (c *Client) Search(ctx context.Context, kind domain.Kind, query string, page int) ([]Result, error) {
	q := url.Values{}
	q.Set("query", query)
	q.Set("page", strconv.Itoa(pageOrFirst(page)))
	var res listResponse
	if err := c.get(ctx, "/search/"+string(kind), q, &res); err != nil {
		return nil, err
	}
	return res.Results, nil
}

// Discover lists titles by popularity with optional filters.
func (c *Client) Discover(ctx context.Context, kind domain.Kind, params DiscoverParams) ([]Result, error) {
	q := url.Values{}
	q.Set("sort_by", "popularity.desc")
	q.Set("page", strconv.Itoa(pageOrFirst(params.Page)))
	if params.Genre != "" {
		q.Set("with_genres", params.Genre)
	}
	if params.Rating != "" {
		q.Set("vote_average.gte", params.Rating)
	}
	if params.Language != "" {
		q.Set("with_original_language", params.Language)
	}
	var res listResponse
	if err := c.get(ctx, "/discover/"+string(kind), q, &res); err != nil {
		return nil, err
	}
	return res.Results, nil
}

// Details fetches the detail record of one title.
func (c *Client) Details(ctx context.Context, kind domain.Kind, id int64) (*domain.TitleDetails, error) {
	var details domain.TitleDetails
	if err := c.get(ctx, itemPath(kind, id, ""), nil, &details); err != nil {
		return nil, err
	}
	return &details, nil
}

// Credits fetches the cast and crew of one title.
func (c *Client) Credits(ctx context.Context, kind domain.Kind, id int64) (*domain.Credits, error) {
	var credits domain.Credits
	if err := c.get(ctx, itemPath(kind, id, "/credits"), nil, &credits); err != nil {
		return nil, err
	}
	return &credits, nil
}

// Videos fetches the videos attached to one title.
func (c *Client) Videos(ctx context.Context, kind domain.Kind, id int64) ([]Video, error) {
	var res videosResponse
	if err := c.get(ctx, itemPath(kind, id, "/videos"), nil, &res); err != nil {
		return nil, err
	}
	return res.Results, nil
}

// WatchProviders returns the per-region watch links of one title.
func (c *Client) WatchProviders(ctx context.Context, kind domain.Kind, id int64) (map[string]ProviderRegion, error) {
	var res providersResponse
	if err := c.get(ctx, itemPath(kind, id, "/watch/providers"), nil, &res); err != nil {
		return nil, err
	}
	return res.Results, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, v any) error {
	if c.apiKey == "" {
		return ErrNoAPIKey
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("build tmdb url: %w", err)
	}
	q := u.Query()
	for key, values := range query {
		for _, value := range values {
			q.Add(key, value)
		}
	}
	q.Set("api_key", c.apiKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("tmdb %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &StatusError{Path: path, Status: resp.StatusCode}
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode tmdb %s: %w", path, err)
	}
	return nil
}

func itemPath(kind domain.Kind, id int64, suffix string) string {
	return "/" + string(kind) + "/" + strconv.FormatInt(id, 10) + suffix
}

func pageOrFirst(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

// PosterURL returns the w500 image URL for a poster path.
func PosterURL(path string) string {
	if path == "" {
		return ""
	}
	return "https://image.tmdb.org/t/p/w500" + path
}
