package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"support-rag/internal/config"
	"support-rag/internal/models"
)

const defaultBraveURL = "https://api.search.brave.com"

// Brave queries the Brave Search web endpoint.
type Brave struct {
	apiKey   string
	baseURL  string
	count    int
	country  string
	language string
	client   *http.Client
}

func NewBrave(cfg *config.SearchConfig) (*Brave, error) {
	if cfg.Key == "" {
		return nil, fmt.Errorf("brave search key is required")
	}
	base := cfg.BaseURL
	if base == "" {
		base = defaultBraveURL
	}
	return &Brave{
		apiKey:   cfg.Key,
		baseURL:  strings.TrimSuffix(base, "/"),
		count:    cfg.Count,
		country:  cfg.Country,
		language: cfg.Language,
		client:   &http.Client{},
	}, nil
}

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

func (b *Brave) Search(ctx context.Context, req Request) (models.SearchResult, error) {
	if strings.TrimSpace(req.Query) == "" {
		return models.SearchResult{}, errEmptyQuery
	}

	q := url.Values{}
	q.Set("q", req.Query)
	q.Set("count", strconv.Itoa(b.count))
	if b.country != "" {
		q.Set("country", b.country)
	}
	if b.language != "" {
		q.Set("search_lang", b.language)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/res/v1/web/search?"+q.Encode(), nil)
	if err != nil {
		return models.SearchResult{}, err
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Subscription-Token", b.apiKey)

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return models.SearchResult{}, fmt.Errorf("brave search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return models.SearchResult{}, fmt.Errorf("brave search failed: %d, %s", resp.StatusCode, string(body))
	}

	var parsed braveResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return models.SearchResult{}, fmt.Errorf("decode brave response: %w", err)
	}

	allowed := allowedDomains(req.AllowedURLs)
	var (
		lines     []string
		citations []models.Citation
	)
	for _, r := range parsed.Web.Results {
		if len(allowed) > 0 && !allowed[DomainOf(r.URL)] {
			continue
		}
		citations = append(citations, models.Citation{URL: r.URL, Title: r.Title})
	}
	citations = DedupeCitations(citations)
	for _, c := range citations {
		for _, r := range parsed.Web.Results {
			if r.URL == c.URL {
				lines = append(lines, fmt.Sprintf("- %s: %s (%s)", r.Title, r.Description, r.URL))
				break
			}
		}
	}
	log.Debug().Str("query", req.Query).Int("results", len(parsed.Web.Results)).Int("kept", len(citations)).Msg("Brave search")

	if len(citations) == 0 {
		return models.PlainResult(NoResults), nil
	}
	return models.CitedResult(strings.Join(lines, "\n"), citations), nil
}

func allowedDomains(urls []string) map[string]bool {
	if len(urls) == 0 {
		return nil
	}
	out := make(map[string]bool, len(urls))
	for _, u := range urls {
		if d := DomainOf(u); d != "" {
			out[d] = true
		}
	}
	return out
}
