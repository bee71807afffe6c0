package llmservice

import (
	"context"
	"fmt"

	"support-rag/internal/config"

	"google.golang.org/genai"
)

// GenAI generates with a Gemini model through the Google GenAI SDK.
type GenAI struct {
	client      *genai.Client
	model       string
	temperature float64
}

// NewGenAIClient creates the SDK client shared by generation and grounded search.
func NewGenAIClient(ctx context.Context, apiKey, baseURL string) (*genai.Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return client, nil
}

func NewGenAI(ctx context.Context, cfg *config.LLMConfig) (*GenAI, error) {
	client, err := NewGenAIClient(ctx, cfg.Key, cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &GenAI{client: client, model: model, temperature: cfg.Temperature}, nil
}

func (g *GenAI) Generate(ctx context.Context, req Request) (string, error) {
	temperature := g.temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	gc := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(temperature)),
	}
	if req.System != "" {
		gc.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.Format == FormatJSON {
		gc.ResponseMIMEType = "application/json"
		if req.Schema != nil {
			gc.ResponseJsonSchema = req.Schema
		}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(req.Prompt), gc)
	if err != nil {
		return "", fmt.Errorf("%w: GenAI generate failed: %v", ErrTransient, err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("%w: GenAI returned no text", ErrMalformed)
	}
	return stripThinking(text), nil
}
