package rerank

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"support-rag/internal/config"
	"support-rag/internal/helper"
	"support-rag/internal/llmservice"
	"support-rag/internal/metrics"
	"support-rag/internal/models"
)

// TopN is how many chunks survive re-ranking.
const TopN = 3

var rankingSchema = map[string]any{
	"type":     "object",
	"required": []any{"ranking"},
	"properties": map[string]any{
		"ranking": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []any{"idx", "score"},
				"properties": map[string]any{
					"idx":   map[string]any{"type": "integer"},
					"score": map[string]any{"type": "number"},
				},
			},
		},
	},
}

type ranking struct {
	Ranking []struct {
		Idx   int     `json:"idx"`
		Score float64 `json:"score"`
	} `json:"ranking"`
}

// Reranker asks the model to pick the most relevant lexical candidates.
type Reranker struct {
	gen            llmservice.Generator
	candidateLimit int
	inputMax       int
}

func New(gen llmservice.Generator, cfg *config.RAGConfig) *Reranker {
	return &Reranker{gen: gen, candidateLimit: cfg.CandidateLimit, inputMax: cfg.RerankInputMax}
}

// Rerank returns up to TopN candidates ordered by model relevance. It never
// fails: any generation or parse problem yields the lexical top TopN, and
// when the model names fewer than TopN usable candidates the rest are filled
// in lexical order.
func (r *Reranker) Rerank(ctx context.Context, question string, scored []models.ScoredChunk) []models.ScoredChunk {
	if len(scored) == 0 {
		return nil
	}
	candidates := scored
	if r.candidateLimit > 0 && len(candidates) > r.candidateLimit {
		candidates = candidates[:r.candidateLimit]
	}

	prompt := fmt.Sprintf(models.RerankPromptTemplate, question, r.formatCandidates(candidates))
	var out ranking
	err := llmservice.GenerateJSON(ctx, r.gen, llmservice.Request{
		Prompt:      prompt,
		Schema:      rankingSchema,
		Temperature: llmservice.Temp(0),
	}, &out)
	if err != nil {
		log.Warn().Err(err).Msg("Re-rank failed, using lexical order")
		metrics.Fallback("rerank")
		return lexicalTop(candidates)
	}

	sort.SliceStable(out.Ranking, func(i, j int) bool { return out.Ranking[i].Score > out.Ranking[j].Score })

	picked := make([]models.ScoredChunk, 0, TopN)
	used := make(map[int]bool, TopN)
	for _, item := range out.Ranking {
		if len(picked) == TopN {
			break
		}
		i := item.Idx - 1
		if i < 0 || i >= len(candidates) || used[i] {
			log.Debug().Int("idx", item.Idx).Msg("Ignoring invalid re-rank index")
			continue
		}
		used[i] = true
		picked = append(picked, candidates[i])
	}
	for i := 0; i < len(candidates) && len(picked) < TopN; i++ {
		if !used[i] {
			used[i] = true
			picked = append(picked, candidates[i])
		}
	}
	return picked
}

func (r *Reranker) formatCandidates(candidates []models.ScoredChunk) string {
	items := make([]string, len(candidates))
	for i, c := range candidates {
		items[i] = fmt.Sprintf("%d. %s", i+1, helper.TruncateRunes(c.Chunk.Text(), r.inputMax))
	}
	return strings.Join(items, models.ContextSeparator)
}

func lexicalTop(candidates []models.ScoredChunk) []models.ScoredChunk {
	n := min(TopN, len(candidates))
	out := make([]models.ScoredChunk, n)
	copy(out, candidates[:n])
	return out
}
