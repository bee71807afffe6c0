package llmservice

import (
	"context"
	"fmt"
	"strings"

	"support-rag/internal/config"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// LangChain generates through any langchaingo model: an OpenAI-compatible
// endpoint such as OpenRouter, or a local Ollama server.
type LangChain struct {
	llm         llms.Model
	temperature float64
}

func NewLangChain(cfg *config.LLMConfig) (*LangChain, error) {
	llm, err := NewModel(cfg)
	if err != nil {
		return nil, err
	}
	return &LangChain{llm: llm, temperature: cfg.Temperature}, nil
}

// NewLangChainWithModel wraps an already constructed model.
func NewLangChainWithModel(llm llms.Model, temperature float64) *LangChain {
	return &LangChain{llm: llm, temperature: temperature}
}

// NewModel builds the langchaingo model for cfg.
func NewModel(cfg *config.LLMConfig) (llms.Model, error) {
	switch strings.ToLower(cfg.Provider) {
	case "ollama":
		return ollama.New(
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithModel(cfg.Model),
		)
	default:
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
			openai.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.New(opts...)
	}
}

func (c *LangChain) Generate(ctx context.Context, req Request) (string, error) {
	var messages []llms.MessageContent
	if req.System != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt))

	temperature := c.temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	opts := []llms.CallOption{llms.WithTemperature(temperature)}
	if req.Format == FormatJSON {
		opts = append(opts, llms.WithJSONMode())
	}

	resp, err := c.llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransient, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty response", ErrMalformed)
	}
	log.Debug().Str("stop_reason", resp.Choices[0].StopReason).Msg("LangChain generation finished")
	return stripThinking(resp.Choices[0].Content), nil
}
