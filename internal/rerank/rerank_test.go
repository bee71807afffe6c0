package rerank

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"support-rag/internal/config"
	"support-rag/internal/llmservice"
	"support-rag/internal/models"
)

func candidates(n int) []models.ScoredChunk {
	out := make([]models.ScoredChunk, n)
	for i := range out {
		out[i] = models.ScoredChunk{
			Chunk: models.Chunk{Label: fmt.Sprintf("slide %d", i+1), Body: fmt.Sprintf("body %d", i+1), Index: i},
			Score: float64(n - i),
		}
	}
	return out
}

func labels(in []models.ScoredChunk) []string {
	var out []string
	for _, c := range in {
		out = append(out, c.Chunk.Label)
	}
	return out
}

func fixed(reply string, err error) llmservice.Generator {
	return llmservice.GeneratorFunc(func(ctx context.Context, req llmservice.Request) (string, error) {
		return reply, err
	})
}

func newReranker(gen llmservice.Generator) *Reranker {
	return New(gen, &config.Default().RAG)
}

func TestRerankOrdersByModelScore(t *testing.T) {
	r := newReranker(fixed(`{"ranking":[{"idx":2,"score":0.4},{"idx":5,"score":0.9},{"idx":1,"score":0.7}]}`, nil))
	got := r.Rerank(context.Background(), "q", candidates(6))
	assert.Equal(t, []string{"slide 5", "slide 1", "slide 2"}, labels(got))
}

func TestRerankGuardsIndicesAndFillsLexically(t *testing.T) {
	r := newReranker(fixed(`{"ranking":[{"idx":0,"score":1},{"idx":42,"score":0.9},{"idx":4,"score":0.8},{"idx":4,"score":0.7}]}`, nil))
	got := r.Rerank(context.Background(), "q", candidates(5))
	assert.Equal(t, []string{"slide 4", "slide 1", "slide 2"}, labels(got))
}

func TestRerankMalformedFallsBackToLexicalTop3(t *testing.T) {
	in := candidates(10)
	for _, reply := range []string{"not json", `{"ranking":"x"}`, ""} {
		got := newReranker(fixed(reply, nil)).Rerank(context.Background(), "q", in)
		assert.Equal(t, in[:3], got, reply)
	}
	got := newReranker(fixed("", llmservice.ErrTransient)).Rerank(context.Background(), "q", in)
	assert.Equal(t, in[:3], got)
}

func TestRerankFewCandidates(t *testing.T) {
	got := newReranker(fixed(`{"ranking":[]}`, nil)).Rerank(context.Background(), "q", candidates(2))
	assert.Equal(t, []string{"slide 1", "slide 2"}, labels(got))
	assert.Empty(t, newReranker(fixed("", nil)).Rerank(context.Background(), "q", nil))
}

func TestRerankPromptLimitsCandidates(t *testing.T) {
	in := candidates(25)
	in[0].Chunk.Body = strings.Repeat("パ", 2000)

	var prompt string
	gen := llmservice.GeneratorFunc(func(ctx context.Context, req llmservice.Request) (string, error) {
		prompt = req.Prompt
		assert.Equal(t, llmservice.FormatJSON, req.Format)
		require.NotNil(t, req.Schema)
		return `{"ranking":[{"idx":20,"score":1}]}`, nil
	})
	got := newReranker(gen).Rerank(context.Background(), "reset password", in)
	assert.Equal(t, "slide 20", got[0].Chunk.Label)

	assert.Contains(t, prompt, "\n20. --- slide 20 ---")
	assert.NotContains(t, prompt, "21. --- slide 21 ---")
	assert.Contains(t, prompt, "reset password")
	first := strings.SplitN(strings.SplitN(prompt, "1. ", 2)[1], "\n\n", 2)[0]
	assert.Equal(t, 800, utf8.RuneCountInString(first))
}
