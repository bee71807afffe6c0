package summarize

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"support-rag/internal/llmservice"
	"support-rag/internal/models"
)

// minBodyChars is the smallest summary worth keeping a reference suffix for.
const minBodyChars = 80

var blankRunRe = regexp.MustCompile(`\n{3,}`)

// Summarizer produces length-bounded summaries and the final answer.
type Summarizer struct {
	gen        llmservice.Generator
	language   string
	finalChars int
}

func New(gen llmservice.Generator, language string, finalChars int) *Summarizer {
	if language == "" {
		language = "English"
	}
	return &Summarizer{gen: gen, language: language, finalChars: finalChars}
}

// Summarize asks for a bulleted, fact-only summary of text. The result never
// exceeds maxChars runes whatever the model returns. Empty text yields "".
func (s *Summarizer) Summarize(ctx context.Context, text string, maxChars int, extra string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" || maxChars <= 0 {
		return "", nil
	}
	extraLine := ""
	if extra != "" {
		extraLine = "- " + extra
	}
	out, err := s.gen.Generate(ctx, llmservice.Request{
		Prompt:      fmt.Sprintf(models.SummaryPromptTemplate, s.language, maxChars, extraLine, text),
		Temperature: llmservice.Temp(0),
	})
	if err != nil {
		return "", err
	}
	out = blankRunRe.ReplaceAllString(strings.TrimSpace(out), "\n\n")
	return HardTrim(out, maxChars), nil
}

// SummarizeWithReference summarizes text and appends "(Reference: ...)" for
// refs, reserving room for the suffix so the whole stays within maxChars.
// When the summary call fails the raw text is hard-trimmed instead.
func (s *Summarizer) SummarizeWithReference(ctx context.Context, text string, maxChars int, extra string, refs []string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	suffix := ""
	if len(refs) > 0 {
		suffix = "\n(Reference: " + strings.Join(refs, ", ") + ")"
	}
	budget := maxChars - utf8.RuneCountInString(suffix)
	if budget < minBodyChars {
		suffix = ""
		budget = maxChars
	}

	body, err := s.Summarize(ctx, text, budget, extra)
	if err != nil {
		log.Warn().Err(err).Msg("Summary failed, trimming source text")
		body = HardTrim(text, budget)
	}
	if body == "" {
		return ""
	}
	return body + suffix
}

// Finalize merges the internal and web summaries into the final answer,
// bounded by the configured final length. An empty model answer is an error.
func (s *Summarizer) Finalize(ctx context.Context, question, internalSummary, webSummary string) (string, error) {
	out, err := s.gen.Generate(ctx, llmservice.Request{
		System:      fmt.Sprintf(models.FinalSystemPrompt, s.language, s.finalChars),
		Prompt:      fmt.Sprintf(models.FinalUserTemplate, question, internalSummary, webSummary),
		Temperature: llmservice.Temp(0),
	})
	if err != nil {
		return "", err
	}
	final := SmartTrim(out, s.finalChars, DefaultTrimOptions())
	if final == "" {
		return "", fmt.Errorf("%w: empty final answer", llmservice.ErrMalformed)
	}
	return final, nil
}
