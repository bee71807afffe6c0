package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/xuri/excelize/v2"

	"support-rag/internal/config"
	"support-rag/internal/embedding"
	"support-rag/internal/models"
)

// CaseEntry is one past case before embedding.
type CaseEntry struct {
	Row  int
	URL  string
	Text string
}

// ReadCases turns every data row of a workbook sheet into a case. The text
// is one "header: value" line per column; the URL is baseURL + "A" + row.
// An empty sheet name means the first sheet.
func ReadCases(path, sheet, baseURL string) ([]CaseEntry, error) {
	wb, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open case workbook: %w", err)
	}
	defer wb.Close()

	if sheet == "" {
		sheet = wb.GetSheetName(0)
	}
	rows, err := wb.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(rows) < 2 {
		return nil, nil
	}

	headers := rows[0]
	var cases []CaseEntry
	for i, row := range rows[1:] {
		lines := make([]string, 0, len(headers))
		empty := true
		for c, h := range headers {
			v := ""
			if c < len(row) {
				v = strings.TrimSpace(row[c])
			}
			if v != "" {
				empty = false
			}
			lines = append(lines, h+": "+v)
		}
		if empty {
			continue
		}
		n := i + 2
		cases = append(cases, CaseEntry{Row: n, URL: baseURL + "A" + strconv.Itoa(n), Text: strings.Join(lines, "\n")})
	}
	return cases, nil
}

// CaseIndex is the similar-past-cases index: rebuilt wholesale, searched by
// cosine similarity.
type CaseIndex struct {
	cfg      *config.CaseIndexConfig
	embedder embeddings.Embedder
}

func NewCaseIndex(cfg *config.CaseIndexConfig, embedder embeddings.Embedder) *CaseIndex {
	return &CaseIndex{cfg: cfg, embedder: embedder}
}

func (ci *CaseIndex) manager() *VectorDBManager {
	embed := func(ctx context.Context, text string) ([]float32, error) {
		return ci.embedder.EmbedQuery(ctx, text)
	}
	return NewVectorDBManager(ci.cfg.Path, ci.cfg.Collection, ci.cfg.Compress, ci.cfg.EncryptionKey, embed)
}

// Rebuild embeds cases and replaces the index file with them.
func (ci *CaseIndex) Rebuild(ctx context.Context, cases []CaseEntry) (int, error) {
	var usable []CaseEntry
	for _, c := range cases {
		if strings.TrimSpace(c.Text) != "" {
			usable = append(usable, c)
		}
	}
	texts := make([]string, len(usable))
	for i, c := range usable {
		texts[i] = c.Text
	}
	vectors, err := embedding.EmbedTexts(ctx, ci.embedder, texts, 32)
	if err != nil {
		return 0, err
	}

	m := ci.manager()
	if err := m.DeleteCollection(); err != nil {
		return 0, err
	}
	if _, err := m.GetOrCreateCollection(); err != nil {
		return 0, err
	}
	docs := make([]chromem.Document, len(usable))
	for i, c := range usable {
		docs[i] = chromem.Document{
			ID:        "row-" + strconv.Itoa(c.Row),
			Content:   c.Text,
			Metadata:  map[string]string{"row": strconv.Itoa(c.Row), "url": c.URL},
			Embedding: vectors[i],
		}
	}
	if len(docs) > 0 {
		if err := m.CreateDocs(ctx, docs); err != nil {
			return 0, err
		}
	}
	if err := m.Export(); err != nil {
		return 0, err
	}
	log.Info().Int("cases", len(docs)).Str("file", ci.cfg.Path).Msg("Rebuilt case index")
	return len(docs), nil
}

// Search returns the topK most similar past cases. A missing index file
// yields no hits and no error.
func (ci *CaseIndex) Search(ctx context.Context, question string, topK int) ([]models.CaseHit, error) {
	if topK <= 0 {
		topK = ci.cfg.TopK
	}
	m := ci.manager()
	if err := m.Import(); err != nil {
		if errors.Is(err, ErrNoIndex) {
			log.Debug().Str("file", ci.cfg.Path).Msg("No case index, skipping")
			return nil, nil
		}
		return nil, err
	}
	if m.Count() == 0 {
		return nil, nil
	}

	q, err := ci.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	results, err := m.QueryEmbedding(ctx, q, topK)
	if err != nil {
		return nil, err
	}

	hits := make([]models.CaseHit, 0, len(results))
	for _, r := range results {
		row, _ := strconv.Atoi(r.Metadata["row"])
		hits = append(hits, models.CaseHit{Row: row, URL: r.Metadata["url"], Score: r.Similarity})
	}
	return hits, nil
}

// Appendix renders hits as the numbered similar-cases block.
func Appendix(hits []models.CaseHit) string {
	if len(hits) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Similar past cases:")
	for i, h := range hits {
		fmt.Fprintf(&b, "\n%d. %s", i+1, h.URL)
	}
	return b.String()
}
