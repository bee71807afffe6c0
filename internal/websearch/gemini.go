package websearch

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"support-rag/internal/config"
	"support-rag/internal/llmservice"
	"support-rag/internal/models"
)

// Gemini searches through a Gemini model grounded with Google Search, or
// with the URL context tool when an allow-list is given.
type Gemini struct {
	client *genai.Client
	model  string
}

func NewGemini(ctx context.Context, cfg *config.SearchConfig) (*Gemini, error) {
	client, err := llmservice.NewGenAIClient(ctx, cfg.Key, cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) Search(ctx context.Context, req Request) (models.SearchResult, error) {
	if strings.TrimSpace(req.Query) == "" {
		return models.SearchResult{}, errEmptyQuery
	}

	prompt := fmt.Sprintf(models.WebResearchPromptTemplate, req.Query)
	tool := &genai.Tool{GoogleSearch: &genai.GoogleSearch{}}
	if len(req.AllowedURLs) > 0 {
		sources := req.AllowedURLs
		if len(sources) > maxAllowedURLs {
			sources = sources[:maxAllowedURLs]
		}
		prompt = fmt.Sprintf(models.URLContextPromptTemplate, req.Query, strings.Join(sources, "\n"))
		tool = &genai.Tool{URLContext: &genai.URLContext{}}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0),
		Tools:       []*genai.Tool{tool},
	})
	if err != nil {
		return models.SearchResult{}, fmt.Errorf("gemini grounded search: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		text = NoResults
	}
	citations := DedupeCitations(groundingCitations(resp))
	log.Debug().Str("query", req.Query).Int("citations", len(citations)).Bool("url_context", len(req.AllowedURLs) > 0).Msg("Gemini search")
	if len(citations) == 0 {
		return models.PlainResult(text), nil
	}
	return models.CitedResult(text, citations), nil
}

func groundingCitations(resp *genai.GenerateContentResponse) []models.Citation {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].GroundingMetadata == nil {
		return nil
	}
	var out []models.Citation
	for _, chunk := range resp.Candidates[0].GroundingMetadata.GroundingChunks {
		if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" {
			continue
		}
		out = append(out, models.Citation{URL: chunk.Web.URI, Title: chunk.Web.Title})
	}
	return out
}
