package websearch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"support-rag/internal/config"
	"support-rag/internal/metrics"
	"support-rag/internal/models"
)

// NoResults is the text recorded when a search succeeds but finds nothing.
const NoResults = "(no search results)"

// maxAllowedURLs caps how many allow-listed sources one search reads.
const maxAllowedURLs = 8

// Request is one web search. A non-empty AllowedURLs switches the search to
// reading only those sources.
type Request struct {
	Query       string
	AllowedURLs []string
}

type Searcher interface {
	Search(ctx context.Context, req Request) (models.SearchResult, error)
}

// SearcherFunc adapts a function to Searcher.
type SearcherFunc func(ctx context.Context, req Request) (models.SearchResult, error)

func (f SearcherFunc) Search(ctx context.Context, req Request) (models.SearchResult, error) {
	return f(ctx, req)
}

// New builds the configured searcher behind its rate limit and timeout.
func New(ctx context.Context, cfg *config.SearchConfig) (Searcher, error) {
	var (
		s   Searcher
		err error
	)
	switch strings.ToLower(cfg.Provider) {
	case "brave":
		s, err = NewBrave(cfg)
	case "gemini", "":
		s, err = NewGemini(ctx, cfg)
	default:
		err = fmt.Errorf("unsupported search provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return Limit(s, cfg.RequestsPerSecond, cfg.Burst, cfg.Timeout), nil
}

type limited struct {
	next    Searcher
	limiter *rate.Limiter
	timeout time.Duration
}

// Limit throttles next and bounds each search by timeout.
func Limit(next Searcher, rps float64, burst int, timeout time.Duration) Searcher {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst <= 0 {
		burst = 1
	}
	return &limited{next: next, limiter: rate.NewLimiter(limit, burst), timeout: timeout}
}

func (l *limited) Search(ctx context.Context, req Request) (models.SearchResult, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return models.SearchResult{}, fmt.Errorf("waiting for search rate limit: %w", err)
	}
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	res, err := l.next.Search(ctx, req)
	metrics.ObserveCall("search", err)
	if err != nil {
		return models.SearchResult{}, err
	}
	log.Debug().Str("query", req.Query).Int("citations", len(res.Citations)).Msg("Search finished")
	return res, nil
}

// NormalizeURL drops the query string and fragment.
func NormalizeURL(raw string) string {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		return raw[:i]
	}
	return raw
}

// DedupeCitations keeps the first citation per normalized URL and drops
// citations without a URL.
func DedupeCitations(in []models.Citation) []models.Citation {
	seen := make(map[string]bool, len(in))
	out := make([]models.Citation, 0, len(in))
	for _, c := range in {
		c.URL = strings.TrimSpace(c.URL)
		if c.URL == "" {
			continue
		}
		key := NormalizeURL(c.URL)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}

// DomainOf returns the host of u without a leading "www.", or "" if u does
// not parse.
func DomainOf(u string) string {
	parsed, err := url.Parse(strings.TrimSpace(u))
	if err != nil || parsed.Hostname() == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
}

var errEmptyQuery = errors.New("empty search query")
