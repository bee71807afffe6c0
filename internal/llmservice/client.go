package llmservice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"support-rag/internal/config"
	"support-rag/internal/metrics"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Format selects free text or a single JSON object as the model output.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

var (
	// ErrTransient covers timeouts, transport failures and non-2xx responses.
	ErrTransient = errors.New("transient generation failure")
	// ErrMalformed means the model answered but the output could not be used.
	ErrMalformed = errors.New("malformed model output")
)

// Request is one generation call. Schema is only consulted for FormatJSON.
type Request struct {
	Prompt      string
	System      string
	Format      Format
	Schema      map[string]any
	Temperature *float64
}

// Temp is a helper for Request.Temperature.
func Temp(v float64) *float64 { return &v }

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// New builds the generator described by cfg, wrapped with its rate limit and
// per-call timeout.
func New(ctx context.Context, cfg *config.LLMConfig) (Generator, error) {
	log.Debug().Str("provider", cfg.Provider).Str("model", cfg.Model).Msg("Creating generator")

	var (
		gen Generator
		err error
	)
	switch strings.ToLower(cfg.Provider) {
	case "gemini":
		gen, err = NewGenAI(ctx, cfg)
	case "openai", "ollama", "":
		gen, err = NewLangChain(cfg)
	default:
		err = fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return Limit(gen, cfg.RequestsPerSecond, cfg.Burst, cfg.Timeout), nil
}

type limited struct {
	next    Generator
	limiter *rate.Limiter
	timeout time.Duration
}

// Limit throttles next with a token bucket and bounds each call by timeout.
// A non-positive rps disables throttling.
func Limit(next Generator, rps float64, burst int, timeout time.Duration) Generator {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst <= 0 {
		burst = 1
	}
	return &limited{next: next, limiter: rate.NewLimiter(limit, burst), timeout: timeout}
}

func (l *limited) Generate(ctx context.Context, req Request) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: waiting for rate limit: %v", ErrTransient, err)
	}
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := l.next.Generate(ctx, req)
	metrics.ObserveCall("llm", err)
	if err != nil {
		if !errors.Is(err, ErrTransient) && !errors.Is(err, ErrMalformed) {
			err = fmt.Errorf("%w: %w", ErrTransient, err)
		}
		log.Warn().Err(err).Dur("elapsed", time.Since(start)).Msg("Generation failed")
		return "", err
	}
	log.Debug().Dur("elapsed", time.Since(start)).Int("chars", len(out)).Msg("Generated content")
	return out, nil
}
