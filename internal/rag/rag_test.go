package rag

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"support-rag/internal/config"
	"support-rag/internal/llmservice"
	"support-rag/internal/models"
	"support-rag/internal/websearch"
)

// pipelineModel answers each pipeline prompt with a fixed script. Summaries
// echo their source text; the final answer quotes the external summary and
// then rambles past the length limit.
type pipelineModel struct {
	keywords string
	queries  string
	ranking  string
}

func (m pipelineModel) Generate(ctx context.Context, req llmservice.Request) (string, error) {
	switch {
	case req.System != "":
		parts := strings.SplitN(req.Prompt, "# External summary\n", 2)
		return "- " + parts[len(parts)-1] + "\n" + strings.Repeat("More detail follows here. ", 60), nil
	case strings.Contains(req.Prompt, "most important keywords"):
		return m.keywords, nil
	case strings.Contains(req.Prompt, "web search queries"):
		return m.queries, nil
	case strings.Contains(req.Prompt, "You evaluate research results"):
		return `{"is_sufficient": true, "knowledge_gap": "", "follow_up_queries": []}`, nil
	case strings.Contains(req.Prompt, "Score each excerpt"):
		return m.ranking, nil
	case strings.Contains(req.Prompt, "Summarise the content below"):
		parts := strings.SplitN(req.Prompt, "\n---\n", 2)
		return "- " + parts[1], nil
	}
	return "", errors.New("unexpected prompt")
}

const resetURL = "https://support.example.com/reset"

func resetSearcher(calls *[]string) websearch.Searcher {
	return websearch.SearcherFunc(func(ctx context.Context, req websearch.Request) (models.SearchResult, error) {
		*calls = append(*calls, req.Query)
		return models.CitedResult("Open the self-service portal and choose Forgot password.",
			[]models.Citation{{URL: resetURL, Title: "Reset your password"}}), nil
	})
}

func TestQueryWebOnly(t *testing.T) {
	gen := pipelineModel{queries: `{"query": ["reset password internal tool"], "rationale": "direct"}`}
	var calls []string
	r := NewRAG(config.Default(), gen, resetSearcher(&calls), nil)

	res := r.Query(context.Background(), "How do I reset my password for the internal tool?")

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, "", res.InternalSummary)
	assert.Empty(t, res.InternalRefs)
	assert.Equal(t, 1, res.LoopCount)
	assert.Equal(t, []string{"reset password internal tool"}, res.IssuedQueries)
	assert.Equal(t, calls, res.IssuedQueries)

	assert.LessOrEqual(t, utf8.RuneCountInString(res.WebSummary), 300)
	assert.Contains(t, res.WebSummary, "Forgot password")
	assert.Contains(t, res.WebSummary, "(Reference: "+resetURL+")")

	assert.LessOrEqual(t, utf8.RuneCountInString(res.FinalAnswer), 600)
	assert.Contains(t, res.FinalAnswer, resetURL)
	assert.False(t, res.SynthesisFailed)
	assert.Equal(t, []string{resetURL}, res.WebRefs)
	assert.Equal(t, []models.Citation{{URL: resetURL, Title: "Reset your password"}}, res.Citations)
}

func writeDoc(t *testing.T, dir, name, body string) string {
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestQueryWithInternalDocuments(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.RAG.Documents = []string{
		writeDoc(t, dir, "vpn.txt", "VPN drops need a client restart."),
		writeDoc(t, dir, "reset.txt", "To reset a password open the self-service portal. Codes expire after 10 minutes."),
	}
	gen := pipelineModel{
		keywords: `{"keywords": ["password reset", "portal"]}`,
		queries:  `{"query": ["password reset portal"]}`,
		ranking:  `{"ranking": [{"idx": 1, "score": 0.9}]}`,
	}
	var calls []string
	res := NewRAG(cfg, gen, resetSearcher(&calls), nil).Query(context.Background(), "How do I reset my password?")

	require.Len(t, res.LexicalCandidates, 1)
	assert.Equal(t, "doc: reset.txt", res.LexicalCandidates[0].Chunk.Label)
	assert.Equal(t, []string{"doc: reset.txt"}, res.InternalProvenance)
	assert.Equal(t, []string{"doc: reset.txt"}, res.InternalRefs)
	require.Len(t, res.RerankedTop, 1)
	assert.True(t, strings.HasPrefix(res.RerankedTop[0], "--- doc: reset.txt ---\n"))

	assert.LessOrEqual(t, utf8.RuneCountInString(res.InternalSummary), 300)
	assert.Contains(t, res.InternalSummary, "Codes expire after 10 minutes")
	assert.True(t, strings.HasSuffix(res.InternalSummary, "\n(Reference: doc: reset.txt)"))
	assert.LessOrEqual(t, utf8.RuneCountInString(res.FinalAnswer), 600)
}

func TestKeywordsFallback(t *testing.T) {
	r := NewRAG(config.Default(), pipelineModel{keywords: "no json here"}, nil, nil)
	assert.Equal(t, []string{}, r.Keywords(context.Background(), "q"))

	r = NewRAG(config.Default(), pipelineModel{keywords: `{"keywords": ["a", " ", "b", "c", "d", "e", "f"]}`}, nil, nil)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, r.Keywords(context.Background(), "q"))
}

func TestQueryFallbacksAreDeterministic(t *testing.T) {
	down := llmservice.GeneratorFunc(func(ctx context.Context, req llmservice.Request) (string, error) {
		return "", llmservice.ErrTransient
	})
	searcher := websearch.SearcherFunc(func(ctx context.Context, req websearch.Request) (models.SearchResult, error) {
		return models.PlainResult("See https://kb.example.com/a for the reset steps."), nil
	})
	cfg := config.Default()
	cfg.RAG.Documents = []string{writeDoc(t, t.TempDir(), "reset.txt", "password reset steps")}

	first := NewRAG(cfg, down, searcher, nil).Query(context.Background(), "reset password")
	second := NewRAG(cfg, down, searcher, nil).Query(context.Background(), "reset password")

	for _, res := range []models.Result{first, second} {
		assert.Equal(t, models.FallbackAnswer, res.FinalAnswer)
		assert.True(t, res.SynthesisFailed)
		assert.Empty(t, res.InternalSummary)
		assert.Equal(t, []string{"reset password"}, res.IssuedQueries)
		assert.Equal(t, 1, res.LoopCount)
		assert.Equal(t, "See https://kb.example.com/a for the reset steps.\n(Reference: https://kb.example.com/a)", res.WebSummary)
		assert.Empty(t, res.WebRefs)
	}
	assert.Equal(t, first.WebSummary, second.WebSummary)
	assert.NotEqual(t, first.RunID, second.RunID)
}

type fakeCases struct {
	hits []models.CaseHit
	err  error
}

func (f fakeCases) Search(ctx context.Context, question string, topK int) ([]models.CaseHit, error) {
	return f.hits, f.err
}

func TestQueryCaseAppendix(t *testing.T) {
	gen := pipelineModel{queries: `{"query": ["q"]}`}
	cfg := config.Default()
	cfg.CaseIndex.Enabled = true
	var calls []string

	hits := []models.CaseHit{{Row: 3, URL: "https://sheet.test/#A3", Score: 0.9}}
	res := NewRAG(cfg, gen, resetSearcher(&calls), fakeCases{hits: hits}).Query(context.Background(), "password")
	assert.Equal(t, hits, res.SimilarCases)
	assert.Equal(t, "Similar past cases:\n1. https://sheet.test/#A3", res.CaseAppendix)
	assert.True(t, strings.HasSuffix(res.ChatText(), "Similar past cases:\n1. https://sheet.test/#A3"))
	assert.LessOrEqual(t, utf8.RuneCountInString(res.FinalAnswer), 600)

	res = NewRAG(cfg, gen, resetSearcher(&calls), fakeCases{err: errors.New("index corrupt")}).Query(context.Background(), "password")
	assert.Empty(t, res.SimilarCases)
	assert.Empty(t, res.CaseAppendix)
	assert.False(t, res.SynthesisFailed)
}

func TestRepresentativeURL(t *testing.T) {
	assert.Equal(t, "https://a.test/x", representativeURL([]models.Citation{{URL: ""}, {URL: "https://a.test/x"}}, "https://b.test"))
	assert.Equal(t, "https://b.test/page", representativeURL(nil, "see https://b.test/page) for more"))
	assert.Equal(t, "", representativeURL(nil, "no links"))
}
