package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/splax/reelview/internal/domain"
	"github.com/splax/reelview/internal/repository"
	"github.com/splax/reelview/internal/service/auth"
	"github.com/splax/reelview/internal/service/catalog"
	"github.com/splax/reelview/internal/service/watchlist"
)

// HealthCheck probes one backing component.
type HealthCheck func(context.Context) error

// Options carries the optional router collaborators.
type Options struct {
	// WebDir is served at / with index.html as the fallback for unknown paths.
	// The static site is skipped when the directory does not exist.
	WebDir string
	Health map[string]HealthCheck
}

// Router wires HTTP endpoints to services.
type Router struct {
	mux       *http.ServeMux
	logger    *slog.Logger
	auth      auth.Service
	watchlist watchlist.Service
	catalog   *catalog.Service
	limiter   RateLimiter
	health    map[string]HealthCheck
	webDir    string

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
	watchlistAdds      *prometheus.CounterVec
}

const (
	rateWindowDefault  = time.Minute
	rateLimitSignup    = 5
	rateLimitLogin     = 12
	rateLimitUserWrite = 60
	rateLimitUserRead  = 120
	rateLimitCatalog   = 120
	healthCheckTimeout = 2 * time.Second
	maxBodyBytes       = 1 << 20
)

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, authSvc auth.Service, watchlistSvc watchlist.Service, catalogSvc *catalog.Service, limiter RateLimiter, opts Options) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		mux:       http.NewServeMux(),
		logger:    logger,
		auth:      authSvc,
		watchlist: watchlistSvc,
		catalog:   catalogSvc,
		limiter:   limiter,
		health:    opts.Health,
		webDir:    strings.TrimSpace(opts.WebDir),
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit("/healthz", r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc("/api/auth/signup", r.audit("/api/auth/signup", r.withRateLimit("/api/auth/signup", rateLimitSignup, rateWindowDefault, r.handleSignup)))
	r.mux.HandleFunc("/api/auth/login", r.audit("/api/auth/login", r.withRateLimit("/api/auth/login", rateLimitLogin, rateWindowDefault, r.handleLogin)))
	r.mux.HandleFunc("/api/watchlist", r.audit("/api/watchlist", r.requireAuth(r.handleWatchlist)))
	r.mux.HandleFunc("/api/trending", r.audit("/api/trending", r.withRateLimit("/api/trending", rateLimitCatalog, rateWindowDefault, r.handleTrending)))
	r.mux.HandleFunc("/api/movies", r.audit("/api/movies", r.withRateLimit("/api/movies", rateLimitCatalog, rateWindowDefault, r.handleBrowse)))
	r.mux.HandleFunc("/api/movie/", r.audit("/api/movie/{id}", r.withRateLimit("/api/movie/{id}", rateLimitCatalog, rateWindowDefault, r.handleDetails)))
	r.mux.HandleFunc("/api/", r.audit("/api/", func(w http.ResponseWriter, _ *http.Request) { r.notFound(w) }))
	if r.webDir != "" {
		if info, err := os.Stat(r.webDir); err == nil && info.IsDir() {
			r.mux.Handle("/", spaHandler(r.webDir))
		} else {
			r.logger.Warn("web directory unavailable, static client disabled", "dir", r.webDir)
		}
	}
}

type credentialsPayload struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token string `json:"token"`
	Name  string `json:"name"`
}

func (r *Router) handleSignup(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload credentialsPayload
	if !r.decodeJSON(w, req, &payload) {
		return
	}
	result, err := r.auth.Signup(req.Context(), payload.Name, payload.Email, payload.Password)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Token: result.Token, Name: result.User.Name})
}

func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload credentialsPayload
	if !r.decodeJSON(w, req, &payload) {
		return
	}
	result, err := r.auth.Login(req.Context(), payload.Email, payload.Password)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Token: result.Token, Name: result.User.Name})
}

func (r *Router) handleWatchlist(w http.ResponseWriter, req *http.Request) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for watchlist", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	session := auth.Session{UserID: info.UserID}

	switch req.Method {
	case http.MethodGet:
		if !r.allow(w, req, "/api/watchlist", rateLimitUserRead) {
			return
		}
		entries, err := r.watchlist.List(req.Context(), session)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	case http.MethodPost:
		if !r.allow(w, req, "/api/watchlist", rateLimitUserWrite) {
			return
		}
		var payload struct {
			ID   int64  `json:"id"`
			Type string `json:"type"`
		}
		if !r.decodeJSON(w, req, &payload) {
			return
		}
		kind, err := domain.ParseKind(payload.Type)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		added, err := r.watchlist.Add(req.Context(), session, domain.WatchlistEntry{ItemID: payload.ID, Kind: kind})
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		r.recordWatchlistAdd(added)
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleTrending(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	kind := domain.KindOrDefault(req.URL.Query().Get("type"))
	writeJSON(w, http.StatusOK, r.catalog.Trending(req.Context(), kind))
}

func (r *Router) handleBrowse(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	q := req.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	query := domain.BrowseQuery{
		Kind:     domain.KindOrDefault(q.Get("type")),
		Page:     page,
		Search:   q.Get("search"),
		Genre:    q.Get("genre"),
		Rating:   q.Get("rating"),
		Language: q.Get("language"),
		Mood:     q.Get("mood"),
	}
	writeJSON(w, http.StatusOK, r.catalog.Browse(req.Context(), query))
}

func (r *Router) handleDetails(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	rawID := strings.Trim(strings.TrimPrefix(req.URL.Path, "/api/movie/"), "/")
	if rawID == "" || strings.Contains(rawID, "/") {
		r.notFound(w)
		return
	}
	id, _ := strconv.ParseInt(rawID, 10, 64)
	kind := domain.KindOrDefault(req.URL.Query().Get("type"))
	writeJSON(w, http.StatusOK, r.catalog.Details(req.Context(), kind, id))
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	for name, check := range r.health {
		if check == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		err := check(ctx)
		cancel()
		if err != nil {
			status = "degraded"
			components[name] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
			continue
		}
		components[name] = map[string]any{"status": "up"}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func (r *Router) decodeJSON(w http.ResponseWriter, req *http.Request, v any) bool {
	req.Body = http.MaxBytesReader(w, req.Body, maxBodyBytes)
	if err := json.NewDecoder(req.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// writeServiceError maps service and storage errors to a status code.
func (r *Router) writeServiceError(w http.ResponseWriter, req *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrMissingFields):
		writeError(w, http.StatusBadRequest, "Email and password required")
	case errors.Is(err, auth.ErrInvalidPassword):
		writeError(w, http.StatusBadRequest, "Password must be at most 72 bytes")
	case errors.Is(err, repository.ErrDuplicateEmail):
		writeError(w, http.StatusBadRequest, "User already exists")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, auth.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "No token")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, http.StatusForbidden, "Invalid token")
	case errors.Is(err, watchlist.ErrInvalidEntry):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, watchlist.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, context.Canceled):
		r.logger.Debug("request cancelled", "path", req.URL.Path)
		writeError(w, statusClientClosedRequest, "request cancelled")
	default:
		r.logger.Error("request failed", "path", req.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "Server error")
	}
}

// statusClientClosedRequest is the de facto code for a client that went away.
const statusClientClosedRequest = 499

func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)
		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		r.recordRequestMetrics(req.Method, route, status, duration)

		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := remoteHost(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
			fields = append(fields, "forwarded_for", forwarded)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if info, ok := authInfoFromContext(ctx); ok {
			actor = "user"
			fields = append(fields, "user_id", info.UserID)
		}
		fields = append(fields, "actor", actor)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *Router) applyRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	if limit <= 0 {
		return
	}
	remaining := limit - decision.count
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.windowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
	}
}

// spaHandler serves files from dir and falls back to index.html so client
// side routes resolve.
func spaHandler(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))
	index := filepath.Join(dir, "index.html")
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet && req.Method != http.MethodHead {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		name := path.Clean("/" + req.URL.Path)
		if info, err := os.Stat(filepath.Join(dir, filepath.FromSlash(name))); err == nil && !info.IsDir() {
			files.ServeHTTP(w, req)
			return
		}
		http.ServeFile(w, req, index)
	})
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
