package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"support-rag/internal/config"
	"support-rag/internal/llmservice"
	"support-rag/internal/models"
)

// Analysis classifies an incoming question.
type Analysis struct {
	ToolService string   `json:"tool_service"`
	InquiryType string   `json:"inquiry_type"`
	Summary     string   `json:"summary"`
	Confidence  *float64 `json:"confidence"`
}

type Route string

const (
	RouteAuto   Route = "auto"
	RouteReview Route = "review"
)

type Decision struct {
	Route  Route  `json:"route"`
	Reason string `json:"reason"`
}

func (d Decision) Auto() bool { return d.Route == RouteAuto }

func schema(cfg *config.RoutingConfig) map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{"tool_service", "inquiry_type", "summary", "confidence"},
		"properties": map[string]any{
			"tool_service": map[string]any{"type": "string", "enum": toAny(cfg.ToolServices)},
			"inquiry_type": map[string]any{"type": "string", "enum": toAny(cfg.InquiryTypes)},
			"summary":      map[string]any{"type": "string"},
			"confidence":   map[string]any{"type": "number", "minimum": 0, "maximum": 1},
		},
	}
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func bullets(ss []string) string {
	lines := make([]string, len(ss))
	for i, s := range ss {
		lines[i] = "- " + s
	}
	return strings.Join(lines, "\n")
}

// Analyze asks the model to classify question against the configured tool
// and inquiry lists.
func Analyze(ctx context.Context, gen llmservice.Generator, cfg *config.RoutingConfig, question string) (Analysis, error) {
	s := schema(cfg)
	prompt := fmt.Sprintf(models.AnalysisPromptTemplate, bullets(cfg.ToolServices), bullets(cfg.InquiryTypes), question)
	var out Analysis
	err := llmservice.GenerateJSON(ctx, gen, llmservice.Request{
		Prompt:      prompt,
		Schema:      s,
		Temperature: llmservice.Temp(0),
	}, &out)
	if err != nil {
		return Analysis{}, fmt.Errorf("analyze question: %w", err)
	}
	log.Debug().Str("tool", out.ToolService).Str("type", out.InquiryType).Msg("Question analysed")
	return out, nil
}

// Decide routes a question to automatic answering only when the model gave a
// confidence at or above the threshold and the inquiry type names no
// restricted category.
func Decide(a Analysis, cfg *config.RoutingConfig) Decision {
	if a.Confidence == nil {
		return Decision{Route: RouteReview, Reason: "no confidence reported"}
	}
	for _, ng := range cfg.NGCategories {
		if ng != "" && strings.Contains(a.InquiryType, ng) {
			return Decision{Route: RouteReview, Reason: fmt.Sprintf("inquiry type %q is restricted", a.InquiryType)}
		}
	}
	if *a.Confidence < cfg.AutoAnswerThreshold {
		return Decision{Route: RouteReview, Reason: fmt.Sprintf("confidence %.2f below %.2f", *a.Confidence, cfg.AutoAnswerThreshold)}
	}
	return Decision{Route: RouteAuto, Reason: fmt.Sprintf("confidence %.2f", *a.Confidence)}
}
