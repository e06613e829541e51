package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/splax/reelview/internal/domain"
	"github.com/splax/reelview/internal/repository/memory"
	"github.com/splax/reelview/internal/service/auth"
	"github.com/splax/reelview/internal/service/catalog"
	"github.com/splax/reelview/internal/service/watchlist"
	"github.com/splax/reelview/internal/tmdb"
	"github.com/splax/reelview/pkg/config"
)

type testEnv struct {
	router *Router
	auth   auth.Service
	store  *memory.Store
}

func newTestEnv(t *testing.T, upstreamURL string, opts Options) *testEnv {
	t.Helper()
	return newTestEnvWithConfig(t, upstreamURL, opts, config.APIConfig{JWTSecret: "test-secret"})
}

func newTestEnvWithConfig(t *testing.T, upstreamURL string, opts Options, cfg config.APIConfig) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()
	authSvc := auth.New(store, logger, cfg)
	watchSvc := watchlist.New(store, logger)
	upstream := tmdb.New("test-key", tmdb.Options{BaseURL: upstreamURL})
	catalogSvc := catalog.New(upstream, logger, catalog.Options{Region: "IN"})
	router := NewRouter(logger, authSvc, watchSvc, catalogSvc, NewMemoryRateLimiter(), opts)
	t.Cleanup(router.Close)
	return &testEnv{router: router, auth: authSvc, store: store}
}

// deadUpstream returns the URL of a server that has already shut down.
func deadUpstream() string {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	return url
}

func (e *testEnv) do(t *testing.T, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch v := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(v)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeMsg(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return body.Msg
}

func signup(t *testing.T, env *testEnv, email string) string {
	t.Helper()
	rec := env.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{"name": "Ann", "email": email, "password": "hunter22"})
	if rec.Code != http.StatusOK {
		t.Fatalf("signup: expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	var resp sessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode signup: %v", err)
	}
	if resp.Token == "" || resp.Name != "Ann" {
		t.Fatalf("unexpected signup response %+v", resp)
	}
	return resp.Token
}

func TestSignupListAddListScenario(t *testing.T) {
	env := newTestEnv(t, deadUpstream(), Options{})
	token := signup(t, env, "ann@example.com")
	bearer := "Bearer " + token

	rec := env.do(t, http.MethodGet, "/api/watchlist", bearer, nil)
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("initial list: %d %s", rec.Code, rec.Body.String())
	}

	for i := 0; i < 2; i++ {
		rec = env.do(t, http.MethodPost, "/api/watchlist", bearer, map[string]any{"id": 27205, "type": "movie"})
		if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"success":true}` {
			t.Fatalf("add #%d: %d %s", i, rec.Code, rec.Body.String())
		}
	}

	rec = env.do(t, http.MethodGet, "/api/watchlist", bearer, nil)
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `[{"id":27205,"type":"movie"}]` {
		t.Fatalf("final list: %d %s", rec.Code, rec.Body.String())
	}
}

func TestWatchlistAuthFailures(t *testing.T) {
	env := newTestEnv(t, deadUpstream(), Options{})
	token := signup(t, env, "ann@example.com")

	rec := env.do(t, http.MethodGet, "/api/watchlist", "", nil)
	if rec.Code != http.StatusUnauthorized || decodeMsg(t, rec) != "No token" {
		t.Fatalf("missing header: %d %s", rec.Code, rec.Body.String())
	}
	rec = env.do(t, http.MethodGet, "/api/watchlist", "Bearer", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("empty bearer: expected 401, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/api/watchlist", "Bearer not-a-jwt", nil)
	if rec.Code != http.StatusForbidden || decodeMsg(t, rec) != "Invalid token" {
		t.Fatalf("bad token: %d %s", rec.Code, rec.Body.String())
	}
	rec = env.do(t, http.MethodPost, "/api/watchlist", "Bearer "+token+"x", map[string]any{"id": 1, "type": "movie"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("tampered token: expected 403, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/api/watchlist", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("bare token should be accepted, got %d", rec.Code)
	}
}

func TestWatchlistUserGone(t *testing.T) {
	env := newTestEnv(t, deadUpstream(), Options{})
	token, err := env.auth.Issue("ghost")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	rec := env.do(t, http.MethodGet, "/api/watchlist", "Bearer "+token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", rec.Code, rec.Body.String())
	}
	rec = env.do(t, http.MethodPost, "/api/watchlist", "Bearer "+token, map[string]any{"id": 550, "type": "movie"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestWatchlistBadBodies(t *testing.T) {
	env := newTestEnv(t, deadUpstream(), Options{})
	bearer := "Bearer " + signup(t, env, "ann@example.com")

	cases := map[string]any{
		"malformed": "{",
		"bad type":  map[string]any{"id": 550, "type": "book"},
		"zero id":   map[string]any{"id": 0, "type": "tv"},
	}
	for name, body := range cases {
		rec := env.do(t, http.MethodPost, "/api/watchlist", bearer, body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d %s", name, rec.Code, rec.Body.String())
		}
	}
	rec := env.do(t, http.MethodDelete, "/api/watchlist", bearer, nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestSignupAndLoginErrors(t *testing.T) {
	env := newTestEnv(t, deadUpstream(), Options{})
	signup(t, env, "ann@example.com")

	rec := env.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{"email": "ANN@example.com", "password": "other"})
	if rec.Code != http.StatusBadRequest || decodeMsg(t, rec) != "User already exists" {
		t.Fatalf("duplicate signup: %d %s", rec.Code, rec.Body.String())
	}
	rec = env.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{"email": "bob@example.com"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing password: expected 400, got %d", rec.Code)
	}
	if env.store.Len() != 1 {
		t.Fatalf("expected one stored user, got %d", env.store.Len())
	}

	rec = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ann@example.com", "password": "wrong"})
	if rec.Code != http.StatusUnauthorized || decodeMsg(t, rec) != "Invalid credentials" {
		t.Fatalf("wrong password: %d %s", rec.Code, rec.Body.String())
	}
	rec = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "nobody@example.com", "password": "hunter22"})
	if rec.Code != http.StatusUnauthorized || decodeMsg(t, rec) != "Invalid credentials" {
		t.Fatalf("unknown email: %d %s", rec.Code, rec.Body.String())
	}
	rec = env.do(t, http.MethodPost, "/api/auth/login", "", "not json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed login: expected 400, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ann@example.com", "password": "hunter22"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	var resp sessionResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Token == "" || resp.Name != "Ann" {
		t.Fatalf("unexpected login response %+v", resp)
	}
}

func TestSignupRateLimited(t *testing.T) {
	env := newTestEnv(t, deadUpstream(), Options{})
	var last *httptest.ResponseRecorder
	for i := 0; i <= rateLimitSignup; i++ {
		last = env.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{"email": "x" + string(rune('a'+i)) + "@example.com", "password": "pw"})
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after %d signups, got %d", rateLimitSignup, last.Code)
	}
	if last.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("expected remaining 0, got %q", last.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestSignupRateLimitIgnoresForwardedFor(t *testing.T) {
	env := newTestEnv(t, deadUpstream(), Options{})
	var last *httptest.ResponseRecorder
	for i := 0; i <= rateLimitSignup; i++ {
		raw, _ := json.Marshal(map[string]string{"email": "y" + string(rune('a'+i)) + "@example.com", "password": "pw"})
		req := httptest.NewRequest(http.MethodPost, "/api/auth/signup", bytes.NewReader(raw))
		req.Header.Set("X-Forwarded-For", "198.51.100."+strconv.Itoa(i+1))
		last = httptest.NewRecorder()
		env.router.ServeHTTP(last, req)
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("rotating X-Forwarded-For: expected 429, got %d", last.Code)
	}
}

func TestSignupOverlongPassword(t *testing.T) {
	env := newTestEnv(t, deadUpstream(), Options{})
	rec := env.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{"email": "long@b.com", "password": strings.Repeat("p", 100)})
	if rec.Code != http.StatusBadRequest || decodeMsg(t, rec) != "Password must be at most 72 bytes" {
		t.Fatalf("overlong password: %d %s", rec.Code, rec.Body.String())
	}
	if env.store.Len() != 0 {
		t.Fatalf("expected no stored user, got %d", env.store.Len())
	}
}

func TestSignupWithoutSecretLeavesNoAccount(t *testing.T) {
	env := newTestEnvWithConfig(t, deadUpstream(), Options{}, config.APIConfig{})
	for i := 0; i < 2; i++ {
		rec := env.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{"email": "a@b.com", "password": "hunter22"})
		if rec.Code != http.StatusInternalServerError || decodeMsg(t, rec) != "Server error" {
			t.Fatalf("attempt %d: %d %s", i, rec.Code, rec.Body.String())
		}
	}
	if env.store.Len() != 0 {
		t.Fatalf("expected no stored user, got %d", env.store.Len())
	}
}

func TestCatalogDegradesWhenUpstreamDown(t *testing.T) {
	env := newTestEnv(t, deadUpstream(), Options{})

	for _, target := range []string{"/api/trending?type=movie", "/api/movies?type=tv&mood=happy", "/api/movies?search=dune&page=x"} {
		rec := env.do(t, http.MethodGet, target, "", nil)
		if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"results":[]}` {
			t.Fatalf("%s: %d %s", target, rec.Code, rec.Body.String())
		}
	}
	rec := env.do(t, http.MethodGet, "/api/movie/550?type=movie", "", nil)
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{}` {
		t.Fatalf("details: %d %s", rec.Code, rec.Body.String())
	}
}

func TestCatalogProxiesUpstream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/trending/tv/week":
			_, _ = w.Write([]byte(`{"results":[{"id":1399,"name":"Game of Thrones","vote_average":8.4}]}`))
		case "/movie/550":
			_, _ = w.Write([]byte(`{"id":550,"title":"Fight Club"}`))
		case "/movie/550/videos":
			_, _ = w.Write([]byte(`{"results":[{"key":"yt1","site":"YouTube","type":"Trailer"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer upstream.Close()
	env := newTestEnv(t, upstream.URL, Options{})

	rec := env.do(t, http.MethodGet, "/api/trending?type=tv", "", nil)
	var list catalog.TitleList
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode trending: %v", err)
	}
	if len(list.Results) != 1 || list.Results[0].Type != domain.KindShow {
		t.Fatalf("unexpected trending %s", rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/api/movie/550", "", nil)
	var details domain.Details
	if err := json.Unmarshal(rec.Body.Bytes(), &details); err != nil {
		t.Fatalf("decode details: %v", err)
	}
	if details.Details == nil || details.Details.Title != "Fight Club" || details.TrailerKey != "yt1" {
		t.Fatalf("unexpected details %s", rec.Body.String())
	}
	if details.Credits != nil || details.OTTLink != "" {
		t.Fatalf("failed secondary lookups should be blank, got %s", rec.Body.String())
	}
}

func TestHealthzReportsComponents(t *testing.T) {
	env := newTestEnv(t, deadUpstream(), Options{Health: map[string]HealthCheck{
		"database": func(context.Context) error { return nil },
		"cache":    func(context.Context) error { return errors.New("connection refused") },
	}})
	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var body struct {
		Status     string                       `json:"status"`
		Components map[string]map[string]string `json:"components"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "degraded" || body.Components["database"]["status"] != "up" || body.Components["cache"]["status"] != "down" {
		t.Fatalf("unexpected health body %s", rec.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, deadUpstream(), Options{})
	env.do(t, http.MethodGet, "/api/trending", "", nil)
	rec := env.do(t, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "reelview_api_http_requests_total") {
		t.Fatalf("expected request counter in exposition, got %d", rec.Code)
	}
}

func TestStaticClientFallsBackToIndex(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>reel</html>"), 0o644); err != nil {
		t.Fatalf("write index: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0o644); err != nil {
		t.Fatalf("write js: %v", err)
	}
	env := newTestEnv(t, deadUpstream(), Options{WebDir: dir})

	rec := env.do(t, http.MethodGet, "/app.js", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "console.log") {
		t.Fatalf("asset: %d %s", rec.Code, rec.Body.String())
	}
	rec = env.do(t, http.MethodGet, "/watchlist", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "reel") {
		t.Fatalf("fallback: %d %s", rec.Code, rec.Body.String())
	}
	rec = env.do(t, http.MethodGet, "/api/unknown", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown api route should be 404, got %d", rec.Code)
	}
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		header string
		token  string
		err    error
	}{
		{"", "", errNoToken},
		{"   ", "", errNoToken},
		{"Bearer", "", errNoToken},
		{"Bearer abc", "abc", nil},
		{"bearer abc", "abc", nil},
		{"abc", "abc", nil},
		{"Basic abc", "", errMalformedHeader},
		{"Bearer a b", "", errMalformedHeader},
	}
	for _, tc := range cases {
		token, err := bearerToken(tc.header)
		if token != tc.token || !errors.Is(err, tc.err) {
			t.Errorf("bearerToken(%q) = %q, %v; want %q, %v", tc.header, token, err, tc.token, tc.err)
		}
	}
}
