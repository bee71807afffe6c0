package parser

import (
	"regexp"
	"strings"

	"support-rag/internal/models"
)

var markerRe = regexp.MustCompile(models.MarkerRegex)

// ChunkText splits marker-annotated text into labeled chunks. Splits happen
// only at "--- label ---" lines; text before the first marker is dropped, so
// text without markers yields no chunks. Whitespace-only bodies are skipped.
func ChunkText(text string) []models.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	locs := markerRe.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}

	var chunks []models.Chunk
	for i, loc := range locs {
		label := strings.TrimSpace(text[loc[2]:loc[3]])
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		body := strings.TrimSpace(text[loc[1]:end])
		if body == "" {
			continue
		}
		chunks = append(chunks, models.Chunk{Label: label, Body: body, Index: i})
	}
	return chunks
}

// Labels returns the provenance labels of chunks in order.
func Labels(chunks []models.Chunk) []string {
	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, c.Label)
	}
	return out
}
