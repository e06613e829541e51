// Package catalog proxies TMDB browse and detail lookups. Every upstream
// failure is collapsed into an empty response so clients always get a 200.
package catalog

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/splax/reelview/internal/domain"
	"github.com/splax/reelview/internal/tmdb"
)

// Upstream is the subset of the TMDB client used by the service.
type Upstream interface {
	Trending(ctx context.Context, kind domain.Kind) ([]tmdb.Result, error)
	Search(ctx context.Context, kind domain.Kind, query string, page int) ([]tmdb.Result, error)
	Discover(ctx context.Context, kind domain.Kind, params tmdb.DiscoverParams) ([]tmdb.Result, error)
	Details(ctx context.Context, kind domain.Kind, id int64) (*domain.TitleDetails, error)
	Credits(ctx context.Context, kind domain.Kind, id int64) (*domain.Credits, error)
	Videos(ctx context.Context, kind domain.Kind, id int64) ([]tmdb.Video, error)
	WatchProviders(ctx context.Context, kind domain.Kind, id int64) (map[string]tmdb.ProviderRegion, error)
}

// TitleList is the body of every list endpoint.
type TitleList struct {
	Results []domain.Title `json:"results"`
}

// Options configures a Service.
type Options struct {
	Cache    Cache
	CacheTTL time.Duration
	// Region selects the watch provider link; US is tried after it.
	Region     string
	Registerer prometheus.Registerer
}

// Service serves catalog lookups.
type Service struct {
	upstream Upstream
	logger   *slog.Logger
	cache    Cache
	ttl      time.Duration
	regions  []string
	metrics  *metrics
}

// New constructs a Service. A nil cache disables caching.
func New(upstream Upstream, logger *slog.Logger, opts Options) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		upstream: upstream,
		logger:   logger,
		cache:    opts.Cache,
		ttl:      opts.CacheTTL,
		regions:  providerRegions(opts.Region),
		metrics:  newMetrics(opts.Registerer),
	}
}

var moodGenres = map[domain.Kind]map[string]string{
	domain.KindMovie: {
		"happy":     "35",
		"sad":       "18",
		"excited":   "28",
		"scared":    "27",
		"romantic":  "10749",
		"curious":   "99",
		"relaxed":   "16",
		"thrilling": "53",
	},
	domain.KindShow: {
		"happy":     "35",
		"sad":       "18",
		"excited":   "10759",
		"scared":    "9648",
		"romantic":  "18",
		"curious":   "99",
		"relaxed":   "16",
		"thrilling": "80",
	},
}

// GenreForMood maps a mood to the TMDB genre id used for kind.
func GenreForMood(kind domain.Kind, mood string) (string, bool) {
	genre, ok := moodGenres[kind.OrDefault()][strings.ToLower(strings.TrimSpace(mood))]
	return genre, ok
}

// Trending returns this week's trending titles of kind.
func (s *Service) Trending(ctx context.Context, kind domain.Kind) TitleList {
	kind = kind.OrDefault()
	return s.list(ctx, "trending", "trending:"+string(kind), kind, func() ([]tmdb.Result, error) {
		return s.upstream.Trending(ctx, kind)
	})
}

// Browse searches when q.Search is set and discovers by filters otherwise.
func (s *Service) Browse(ctx context.Context, q domain.BrowseQuery) TitleList {
	kind := q.Kind.OrDefault()
	page := q.Page
	if page < 1 {
		page = 1
	}
	search := strings.TrimSpace(q.Search)
	if search != "" {
		key := "search:" + string(kind) + ":" + strconv.Itoa(page) + ":" + url.QueryEscape(search)
		return s.list(ctx, "search", key, kind, func() ([]tmdb.Result, error) {
			return s.upstream.Search(ctx, kind, search, page)
		})
	}

	params := tmdb.DiscoverParams{
		Genre:    strings.TrimSpace(q.Genre),
		Rating:   strings.TrimSpace(q.Rating),
		Language: strings.TrimSpace(q.Language),
		Page:     page,
	}
	if params.Genre == "" && q.Mood != "" {
		if genre, ok := GenreForMood(kind, q.Mood); ok {
			params.Genre = genre
		}
	}
	values := url.Values{}
	values.Set("genre", params.Genre)
	values.Set("rating", params.Rating)
	values.Set("language", params.Language)
	values.Set("page", strconv.Itoa(page))
	key := "discover:" + string(kind) + ":" + values.Encode()
	return s.list(ctx, "discover", key, kind, func() ([]tmdb.Result, error) {
		return s.upstream.Discover(ctx, kind, params)
	})
}

func (s *Service) list(ctx context.Context, op, key string, kind domain.Kind, fetch func() ([]tmdb.Result, error)) TitleList {
	var cached TitleList
	if s.fromCache(ctx, op, key, &cached) {
		return cached
	}
	results, err := fetch()
	if err != nil {
		s.degraded(ctx, op, err, "type", kind)
		return TitleList{Results: []domain.Title{}}
	}
	list := TitleList{Results: reshape(results, kind)}
	s.toCache(ctx, key, list)
	return list
}

// Details aggregates the detail record, credits, trailer and watch link of one
// title. When the detail record itself cannot be fetched the zero Details is
// returned; failures of the secondary lookups only blank their own field.
func (s *Service) Details(ctx context.Context, kind domain.Kind, id int64) domain.Details {
	kind = kind.OrDefault()
	if id <= 0 {
		return domain.Details{}
	}
	key := "details:" + string(kind) + ":" + strconv.FormatInt(id, 10)
	var cached domain.Details
	if s.fromCache(ctx, "details", key, &cached) {
		return cached
	}

	var (
		wg        sync.WaitGroup
		details   *domain.TitleDetails
		credits   *domain.Credits
		videos    []tmdb.Video
		providers map[string]tmdb.ProviderRegion
		errs      [4]error
	)
	wg.Add(4)
	go func() {
		defer wg.Done()
		details, errs[0] = s.upstream.Details(ctx, kind, id)
	}()
	go func() {
		defer wg.Done()
		credits, errs[1] = s.upstream.Credits(ctx, kind, id)
	}()
	go func() {
		defer wg.Done()
		videos, errs[2] = s.upstream.Videos(ctx, kind, id)
	}()
	go func() {
		defer wg.Done()
		providers, errs[3] = s.upstream.WatchProviders(ctx, kind, id)
	}()
	wg.Wait()

	if errs[0] != nil || details == nil {
		s.degraded(ctx, "details", errs[0], "type", kind, "id", id)
		return domain.Details{}
	}
	out := domain.Details{Details: details}
	complete := true
	for i, op := range []string{"credits", "videos", "providers"} {
		if errs[i+1] != nil {
			complete = false
			s.degraded(ctx, op, errs[i+1], "type", kind, "id", id)
		}
	}
	if errs[1] == nil {
		out.Credits = credits
	}
	if errs[2] == nil {
		out.TrailerKey = PickTrailer(videos)
	}
	if errs[3] == nil {
		out.OTTLink = s.providerLink(providers)
	}
	if complete {
		s.toCache(ctx, key, out)
	}
	return out
}

// PickTrailer returns the key of the first YouTube trailer, falling back to the
// first YouTube video of any type.
func PickTrailer(videos []tmdb.Video) string {
	fallback := ""
	for _, video := range videos {
		if !strings.EqualFold(video.Site, "YouTube") || video.Key == "" {
			continue
		}
		if video.Type == "Trailer" {
			return video.Key
		}
		if fallback == "" {
			fallback = video.Key
		}
	}
	return fallback
}

func (s *Service) providerLink(providers map[string]tmdb.ProviderRegion) string {
	for _, region := range s.regions {
		if entry, ok := providers[region]; ok && entry.Link != "" {
			return entry.Link
		}
	}
	return ""
}

func providerRegions(region string) []string {
	region = strings.ToUpper(strings.TrimSpace(region))
	if region == "" || region == "US" {
		return []string{"US"}
	}
	return []string{region, "US"}
}

func reshape(results []tmdb.Result, kind domain.Kind) []domain.Title {
	titles := make([]domain.Title, 0, len(results))
	for _, r := range results {
		titles = append(titles, domain.Title{
			ID:               r.ID,
			Title:            r.Title,
			Name:             r.Name,
			Overview:         r.Overview,
			PosterPath:       r.PosterPath,
			BackdropPath:     r.BackdropPath,
			VoteAverage:      r.VoteAverage,
			ReleaseDate:      r.ReleaseDate,
			FirstAirDate:     r.FirstAirDate,
			OriginalLanguage: r.OriginalLanguage,
			Type:             kind,
		})
	}
	return titles
}

func (s *Service) fromCache(ctx context.Context, op, key string, v any) bool {
	if s.cache == nil {
		return false
	}
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("catalog cache read failed", "key", key, "error", err)
		return false
	}
	if ok {
		if err := json.Unmarshal(raw, v); err != nil {
			s.logger.Warn("catalog cache entry corrupt", "key", key, "error", err)
			ok = false
		}
	}
	s.metrics.cacheLookup(op, ok)
	return ok
}

func (s *Service) toCache(ctx context.Context, key string, v any) {
	if s.cache == nil || s.ttl <= 0 {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.ttl); err != nil {
		s.logger.Warn("catalog cache write failed", "key", key, "error", err)
	}
}

func (s *Service) degraded(ctx context.Context, op string, err error, attrs ...any) {
	s.metrics.upstreamFailure(op)
	if ctx.Err() != nil {
		s.logger.Debug("catalog request cancelled", append([]any{"op", op, "error", err}, attrs...)...)
		return
	}
	s.logger.Warn("catalog upstream degraded", append([]any{"op", op, "error", err}, attrs...)...)
}
