package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"google.golang.org/genai"

	"support-rag/internal/config"
	"support-rag/internal/llmservice"
)

// NewEmbedder creates the embedder for the configured provider. All
// providers satisfy langchaingo's embeddings.Embedder.
func NewEmbedder(ctx context.Context, cfg *config.LLMConfig) (embeddings.Embedder, error) {
	log.Debug().Interface("config", map[string]string{
		"provider":        cfg.Provider,
		"base_url":        cfg.BaseURL,
		"embedding_model": cfg.Model,
	}).Msg("Loaded embedder config")

	if strings.EqualFold(cfg.Provider, "gemini") {
		return NewGenAIEmbedder(ctx, cfg)
	}

	llm, err := llmservice.NewModel(cfg)
	if err != nil {
		return nil, fmt.Errorf("error initializing embedding model: %w", err)
	}
	client, ok := llm.(embeddings.EmbedderClient)
	if !ok {
		return nil, fmt.Errorf("provider %q cannot create embeddings", cfg.Provider)
	}
	embedder, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("error creating embedder: %w", err)
	}
	return embedder, nil
}

// GenAIEmbedder embeds text with a Gemini embedding model.
type GenAIEmbedder struct {
	client *genai.Client
	model  string
}

func NewGenAIEmbedder(ctx context.Context, cfg *config.LLMConfig) (*GenAIEmbedder, error) {
	client, err := llmservice.NewGenAIClient(ctx, cfg.Key, cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-embedding-001"
	}
	return &GenAIEmbedder{client: client, model: model}, nil
}

func (e *GenAIEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embed(ctx, []string{text}, "RETRIEVAL_QUERY")
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *GenAIEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return e.embed(ctx, texts, "RETRIEVAL_DOCUMENT")
}

func (e *GenAIEmbedder) embed(ctx context.Context, texts []string, task string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}
	result, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{TaskType: task})
	if err != nil {
		return nil, fmt.Errorf("GenAI embed failed: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("GenAI returned %d embeddings for %d texts", len(result.Embeddings), len(texts))
	}
	out := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		out[i] = emb.Values
	}
	return out, nil
}

// EmbedTexts embeds texts in batches of batchSize, logging progress.
func EmbedTexts(ctx context.Context, embedder embeddings.Embedder, texts []string, batchSize int) ([][]float32, error) {
	if len(texts) == 0 {
		log.Info().Msg("No texts to embed")
		return nil, nil
	}
	if batchSize <= 0 {
		batchSize = 32
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))
		vecs, err := embedder.EmbedDocuments(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("embed batch %d-%d: got %d vectors", start, end, len(vecs))
		}
		out = append(out, vecs...)
		log.Debug().Int("done", end).Int("total", len(texts)).Msg("Embedded batch")
	}
	return out, nil
}
