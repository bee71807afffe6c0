package rag

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"support-rag/internal/chromemdb"
	"support-rag/internal/config"
	"support-rag/internal/helper"
	"support-rag/internal/llmservice"
	"support-rag/internal/metrics"
	"support-rag/internal/models"
	"support-rag/internal/parser"
	"support-rag/internal/ranker"
	"support-rag/internal/rerank"
	"support-rag/internal/research"
	"support-rag/internal/summarize"
	"support-rag/internal/websearch"
)

const (
	maxKeywords  = 5
	maxRefs      = 2
	internalNote = "Use only what the internal material says. Keep numbers and conditions exactly as written"
	webNote      = "Do not add general statements that are not in the text"
)

var (
	urlRe = regexp.MustCompile(models.URLRegex)

	keywordSchema = map[string]any{
		"type":     "object",
		"required": []any{"keywords"},
		"properties": map[string]any{
			"keywords": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
	}
)

// CaseSearcher looks up similar past cases. *chromemdb.CaseIndex satisfies it.
type CaseSearcher interface {
	Search(ctx context.Context, question string, topK int) ([]models.CaseHit, error)
}

type RAG struct {
	cfg        *config.Config
	gen        llmservice.Generator
	fetcher    *parser.Fetcher
	reranker   *rerank.Reranker
	research   *research.Loop
	summarizer *summarize.Summarizer
	cases      CaseSearcher
	now        func() time.Time
}

// NewRAG wires the pipeline stages. cases may be nil when no case index is
// configured.
func NewRAG(cfg *config.Config, gen llmservice.Generator, searcher websearch.Searcher, cases CaseSearcher) *RAG {
	return &RAG{
		cfg:        cfg,
		gen:        gen,
		fetcher:    parser.NewFetcher(&cfg.RAG),
		reranker:   rerank.New(gen, &cfg.RAG),
		research:   research.New(gen, searcher, &cfg.Research),
		summarizer: summarize.New(gen, cfg.Research.Language, cfg.RAG.FinalChars),
		cases:      cases,
		now:        time.Now,
	}
}

// Query answers one question end to end. It never fails: every stage has a
// fallback, and a failed final synthesis yields models.FallbackAnswer.
func (r *RAG) Query(ctx context.Context, question string) models.Result {
	start := r.now()
	question = strings.TrimSpace(question)
	st := models.NewResearchState(question)

	runID, err := helper.GenerateUUID()
	if err != nil {
		runID = fmt.Sprintf("run-%d", start.UnixNano())
	}
	res := models.Result{RunID: runID, Question: question, StartedAt: start}
	logger := log.With().Str("run_id", runID).Logger()

	// internal material
	candidates := r.rankInternal(ctx, question)
	res.LexicalCandidates = candidates
	if len(candidates) > 0 {
		st.InternalTop = r.reranker.Rerank(ctx, question, candidates)
		texts := make([]string, len(st.InternalTop))
		for i, sc := range st.InternalTop {
			texts[i] = sc.Chunk.Text()
			res.InternalProvenance = append(res.InternalProvenance, sc.Chunk.Label)
		}
		res.RerankedTop = texts
		res.InternalRefs = firstN(res.InternalProvenance, maxRefs)
		st.InternalSummary = r.summarizer.SummarizeWithReference(ctx,
			strings.Join(texts, models.ContextSeparator), r.cfg.RAG.SummaryChars, internalNote, res.InternalRefs)
		logger.Info().Int("candidates", len(candidates)).Strs("top", res.InternalProvenance).Msg("Internal summary ready")
	} else {
		logger.Info().Msg("No relevant internal material")
	}

	// web research
	r.research.Run(ctx, st)
	citations := websearch.DedupeCitations(st.Citations)
	webText := strings.Join(st.WebFragments, models.ContextSeparator)
	var webRefs []string
	if ref := representativeURL(citations, webText); ref != "" {
		webRefs = []string{ref}
	}
	st.WebSummary = r.summarizer.SummarizeWithReference(ctx, webText, r.cfg.RAG.SummaryChars, webNote, webRefs)

	// similar past cases
	if r.cases != nil && r.cfg.CaseIndex.Enabled {
		hits, err := r.cases.Search(ctx, question, r.cfg.CaseIndex.TopK)
		if err != nil {
			logger.Warn().Err(err).Msg("Case lookup failed, continuing without it")
			metrics.Fallback("case_index")
		} else {
			res.SimilarCases = hits
			res.CaseAppendix = chromemdb.Appendix(hits)
		}
	}

	// final answer
	final, err := r.summarizer.Finalize(ctx, question, st.InternalSummary, st.WebSummary)
	if err != nil {
		logger.Error().Err(err).Msg("Final synthesis failed, sending fallback answer")
		metrics.Fallback("synthesis")
		final = models.FallbackAnswer
		res.SynthesisFailed = true
	}
	st.FinalAnswer = final

	res.FinalAnswer = st.FinalAnswer
	res.InternalSummary = st.InternalSummary
	res.WebSummary = st.WebSummary
	res.IssuedQueries = st.IssuedQueries
	res.WebFragments = st.WebFragments
	res.Citations = citations
	res.LoopCount = st.LoopCount
	for _, c := range firstN(citations, maxRefs) {
		res.WebRefs = append(res.WebRefs, c.URL)
	}
	res.Duration = r.now().Sub(start)
	metrics.RunDuration.Observe(res.Duration.Seconds())

	logger.Info().
		Int("queries", len(res.IssuedQueries)).
		Int("loops", res.LoopCount).
		Bool("synthesis_failed", res.SynthesisFailed).
		Dur("took", res.Duration).
		Msg("Answer ready")
	return res
}

// rankInternal fetches and chunks the configured documents and returns the
// lexical candidates for the question's keywords.
func (r *RAG) rankInternal(ctx context.Context, question string) []models.ScoredChunk {
	if len(r.cfg.RAG.Documents) == 0 {
		return nil
	}
	docs := r.fetcher.FetchAll(ctx, r.cfg.RAG.Documents)
	chunks := parser.ChunkText(parser.JoinDocuments(docs))
	if len(chunks) == 0 {
		return nil
	}

	keywords := r.Keywords(ctx, question)
	log.Debug().Strs("keywords", keywords).Int("chunks", len(chunks)).Msg("Ranking internal chunks")
	corpus := ranker.NewCorpus(chunks)
	params := ranker.Params{K1: r.cfg.RAG.K1, B: r.cfg.RAG.B}
	return ranker.Rank(corpus, ranker.QueryTokens(keywords), params, r.cfg.RAG.CandidateLimit)
}

// Keywords extracts up to five search keywords for internal documents. Any
// failure yields an empty list.
func (r *RAG) Keywords(ctx context.Context, question string) []string {
	var out struct {
		Keywords []string `json:"keywords"`
	}
	err := llmservice.GenerateJSON(ctx, r.gen, llmservice.Request{
		Prompt:      fmt.Sprintf(models.KeywordPromptTemplate, maxKeywords, question),
		Schema:      keywordSchema,
		Temperature: llmservice.Temp(0),
	}, &out)
	if err != nil {
		log.Warn().Err(err).Msg("Keyword extraction failed, continuing without keywords")
		metrics.Fallback("keywords")
		return []string{}
	}
	keywords := make([]string, 0, maxKeywords)
	for _, k := range out.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			keywords = append(keywords, k)
		}
		if len(keywords) == maxKeywords {
			break
		}
	}
	return keywords
}

// representativeURL prefers the first citation and falls back to the first
// URL that appears in the text.
func representativeURL(citations []models.Citation, text string) string {
	for _, c := range citations {
		if c.URL != "" {
			return c.URL
		}
	}
	return urlRe.FindString(text)
}

func firstN[T any](s []T, n int) []T {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
