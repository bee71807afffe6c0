// Package ranker scores chunks against query keywords with BM25.
package ranker

import (
	"math"
	"sort"

	"support-rag/internal/models"
)

const (
	DefaultK1    = 1.5
	DefaultB     = 0.75
	DefaultLimit = 20
)

type Params struct {
	K1 float64
	B  float64
}

func DefaultParams() Params {
	return Params{K1: DefaultK1, B: DefaultB}
}

// Corpus holds the per-question statistics BM25 needs. Build one per chunk
// set; it is never shared between questions.
type Corpus struct {
	chunks []models.Chunk
	docs   [][]string
	idf    map[string]float64
	avgLen float64
}

func NewCorpus(chunks []models.Chunk) *Corpus {
	c := &Corpus{
		chunks: chunks,
		docs:   make([][]string, len(chunks)),
		idf:    make(map[string]float64),
	}
	if len(chunks) == 0 {
		return c
	}

	df := make(map[string]int)
	total := 0
	for i, ch := range chunks {
		toks := Tokenize(ch.Text())
		c.docs[i] = toks
		total += len(toks)
		seen := make(map[string]struct{}, len(toks))
		for _, t := range toks {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			df[t]++
		}
	}

	n := float64(len(chunks))
	for t, f := range df {
		c.idf[t] = math.Log((n-float64(f)+0.5)/(float64(f)+0.5) + 1)
	}
	c.avgLen = float64(total) / n
	return c
}

func (c *Corpus) Len() int { return len(c.chunks) }

func (c *Corpus) IDF(term string) float64 { return c.idf[term] }

func (c *Corpus) AvgLen() float64 { return c.avgLen }

// Score computes the BM25 score of one tokenized document. Repeated query
// tokens count once.
func Score(docTokens, queryTokens []string, c *Corpus, p Params) float64 {
	if len(docTokens) == 0 || len(queryTokens) == 0 {
		return 0
	}
	tf := make(map[string]int, len(docTokens))
	for _, t := range docTokens {
		tf[t]++
	}
	avg := c.avgLen
	if avg <= 0 {
		avg = float64(len(docTokens))
	}
	norm := p.K1 * (1 - p.B + p.B*float64(len(docTokens))/avg)

	var score float64
	seen := make(map[string]struct{}, len(queryTokens))
	for _, q := range queryTokens {
		if _, ok := seen[q]; ok {
			continue
		}
		seen[q] = struct{}{}
		f := float64(tf[q])
		if f == 0 {
			continue
		}
		score += c.idf[q] * (f * (p.K1 + 1)) / (f + norm)
	}
	return score
}

// Rank scores every chunk in the corpus, drops non-positive scores and
// returns at most limit candidates, best first. Equal scores keep corpus order.
func Rank(c *Corpus, queryTokens []string, p Params, limit int) []models.ScoredChunk {
	if c == nil || c.Len() == 0 || len(queryTokens) == 0 {
		return nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	scored := make([]models.ScoredChunk, 0, c.Len())
	for i, doc := range c.docs {
		s := Score(doc, queryTokens, c, p)
		if s <= 0 {
			continue
		}
		scored = append(scored, models.ScoredChunk{Chunk: c.chunks[i], Score: s})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}
