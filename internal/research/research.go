package research

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"support-rag/internal/config"
	"support-rag/internal/llmservice"
	"support-rag/internal/metrics"
	"support-rag/internal/models"
	"support-rag/internal/websearch"
)

var querySchema = map[string]any{
	"type":     "object",
	"required": []any{"query"},
	"properties": map[string]any{
		"query":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"rationale": map[string]any{"type": "string"},
	},
}

var reflectionSchema = map[string]any{
	"type":     "object",
	"required": []any{"is_sufficient"},
	"properties": map[string]any{
		"is_sufficient":     map[string]any{"type": "boolean"},
		"knowledge_gap":     map[string]any{"type": "string"},
		"follow_up_queries": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
	},
}

type queryList struct {
	Query     []string `json:"query"`
	Rationale string   `json:"rationale"`
}

// Loop runs iterative web research with reflection for one question at a
// time. It holds no per-question state; everything lives in ResearchState.
type Loop struct {
	gen      llmservice.Generator
	searcher websearch.Searcher
	cfg      *config.ResearchConfig
	now      func() time.Time
}

func New(gen llmservice.Generator, searcher websearch.Searcher, cfg *config.ResearchConfig) *Loop {
	return &Loop{gen: gen, searcher: searcher, cfg: cfg, now: time.Now}
}

// GenerateQueries asks for n diverse web queries for question.
func (l *Loop) GenerateQueries(ctx context.Context, question string, n int) ([]string, error) {
	prompt := fmt.Sprintf(models.QueryPromptTemplate, l.now().Format("2006-01-02"), question, n)
	var out queryList
	if err := llmservice.GenerateJSON(ctx, l.gen, llmservice.Request{Prompt: prompt, Schema: querySchema}, &out); err != nil {
		return nil, err
	}
	var queries []string
	seen := map[string]bool{}
	for _, q := range out.Query {
		q = strings.TrimSpace(q)
		if q == "" || seen[q] {
			continue
		}
		seen[q] = true
		queries = append(queries, q)
	}
	log.Debug().Strs("queries", queries).Str("rationale", out.Rationale).Msg("Generated search queries")
	return queries, nil
}

// Reflect judges whether the fragments gathered so far answer the question.
// Any failure counts as sufficient so the loop always ends.
func (l *Loop) Reflect(ctx context.Context, st *models.ResearchState) models.Reflection {
	prompt := fmt.Sprintf(models.ReflectionPromptTemplate, st.Question, strings.Join(st.WebFragments, models.ContextSeparator))
	var out models.Reflection
	if err := llmservice.GenerateJSON(ctx, l.gen, llmservice.Request{Prompt: prompt, Schema: reflectionSchema}, &out); err != nil {
		log.Warn().Err(err).Msg("Reflection failed, treating evidence as sufficient")
		metrics.Fallback("reflection")
		return models.SufficientReflection()
	}
	if out.FollowUpQueries == nil {
		out.FollowUpQueries = []string{}
	}
	return out
}

// Run performs the research loop, recording queries, fragments, citations
// and the loop count on st. It issues at most MaxTotalQueries searches over
// at most MaxResearchLoops iterations.
func (l *Loop) Run(ctx context.Context, st *models.ResearchState) {
	maxTotal := l.cfg.MaxTotalQueries

	initial, err := l.GenerateQueries(ctx, st.Question, l.cfg.InitialQueryCount)
	if err != nil || len(initial) == 0 {
		log.Warn().Err(err).Msg("Query generation failed, searching the question itself")
		metrics.Fallback("query_generation")
		initial = []string{strings.TrimSpace(st.Question)}
	}

	var pending []string
	for _, q := range initial {
		if len(pending) >= l.cfg.InitialQueryCount || len(pending) >= maxTotal {
			break
		}
		if q == "" || st.Seen(q) {
			continue
		}
		st.MarkSeen(q)
		pending = append(pending, q)
	}

	for loop := 0; loop < l.cfg.MaxResearchLoops && len(pending) > 0; loop++ {
		st.LoopCount = loop + 1
		for _, q := range pending {
			if len(st.IssuedQueries) >= maxTotal {
				break
			}
			if !st.Issue(q) {
				continue
			}
			log.Info().Int("loop", st.LoopCount).Int("max_loops", l.cfg.MaxResearchLoops).Str("query", q).Msg("Web research")
			res, err := l.searcher.Search(ctx, websearch.Request{Query: q, AllowedURLs: l.cfg.AllowedURLs})
			if err != nil {
				log.Warn().Err(err).Str("query", q).Msg("Search failed, skipping")
				metrics.Fallback("search")
				continue
			}
			record(st, res)
		}
		pending = nil

		verdict := l.Reflect(ctx, st)
		if verdict.IsSufficient {
			log.Info().Int("loop", st.LoopCount).Msg("Evidence judged sufficient")
			break
		}
		log.Info().Str("gap", verdict.KnowledgeGap).Strs("follow_ups", verdict.FollowUpQueries).Msg("Knowledge gap found")

		for _, q := range Diversify(st, verdict.FollowUpQueries, l.cfg.MaxFollowUps, l.cfg.PenalizedDomains) {
			if len(st.IssuedQueries)+len(pending) >= maxTotal {
				log.Info().Int("max_total_queries", maxTotal).Msg("Query budget exhausted")
				break
			}
			pending = append(pending, q)
		}
	}
	metrics.ResearchQueries.Observe(float64(len(st.IssuedQueries)))
}

// Diversify filters follow-up queries against those already seen, keeps at
// most maxFollowUps, and appends a -site: exclusion for up to penalized
// previously seen domains. Accepted queries are marked seen on st.
func Diversify(st *models.ResearchState, followUps []string, maxFollowUps, penalized int) []string {
	var exclusions []string
	for _, d := range st.SeenDomains {
		if len(exclusions) >= penalized {
			break
		}
		exclusions = append(exclusions, "-site:"+d)
	}
	suffix := strings.Join(exclusions, " ")

	var out []string
	for _, q := range followUps {
		if len(out) >= maxFollowUps {
			break
		}
		q = strings.TrimSpace(q)
		if q == "" || st.Seen(q) {
			continue
		}
		st.MarkSeen(q)
		full := q
		if suffix != "" {
			full = q + " " + suffix
			if st.Seen(full) {
				continue
			}
			st.MarkSeen(full)
		}
		out = append(out, full)
	}
	return out
}

func record(st *models.ResearchState, res models.SearchResult) {
	if text := strings.TrimSpace(res.Text); text != "" {
		st.WebFragments = append(st.WebFragments, text)
	}
	if res.Kind != models.ResultCited {
		return
	}
	for _, c := range res.Citations {
		if c.URL == "" {
			continue
		}
		st.AddDomain(websearch.DomainOf(c.URL))
		st.Citations = append(st.Citations, c)
	}
}
