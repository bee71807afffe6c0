package db

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"support-rag/internal/models"
)

func sampleResult() models.Result {
	return models.Result{
		RunID:           "run-1",
		Question:        "How do I reset my password?",
		FinalAnswer:     "- Use the portal (Reference: https://support.example.com/reset)",
		WebSummary:      "- Use the portal",
		IssuedQueries:   []string{"reset password portal"},
		WebRefs:         []string{"https://support.example.com/reset"},
		Citations:       []models.Citation{{URL: "https://support.example.com/reset", Title: "Reset"}},
		SimilarCases:    []models.CaseHit{{Row: 3, URL: "https://sheet.test/#A3", Score: 0.9}},
		LoopCount:       1,
		SynthesisFailed: false,
		StartedAt:       time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		Duration:        1500 * time.Millisecond,
	}
}

func TestNewRunRecord(t *testing.T) {
	rec := NewRunRecord(sampleResult(), "auto")
	assert.Equal(t, "run-1", rec.ID)
	assert.Equal(t, "auto", rec.Route)
	assert.Equal(t, int64(1500), rec.DurationMillis)
	assert.Equal(t, []string{"reset password portal"}, rec.IssuedQueries)
	assert.Equal(t, 3, rec.SimilarCases[0].Row)
	assert.Empty(t, rec.InternalSummary)
}

func TestFileSink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	sink := FileSink{Dir: dir}
	require.NoError(t, sink.Record(context.Background(), sampleResult(), "human"))

	data, err := os.ReadFile(filepath.Join(dir, "answer_log_run-1.json"))
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "How do I reset my password?", got["question"])
	assert.Equal(t, "human", got["route"])
	assert.Equal(t, float64(1), got["research_loop_count"])
}

type failingSink struct{ calls *int }

func (f failingSink) Record(ctx context.Context, res models.Result, route string) error {
	*f.calls++
	return errors.New("down")
}

func TestMultiSinkContinuesPastFailure(t *testing.T) {
	calls := 0
	dir := t.TempDir()
	err := MultiSink{failingSink{&calls}, FileSink{Dir: dir}}.Record(context.Background(), sampleResult(), "")
	assert.EqualError(t, err, "down")
	assert.Equal(t, 1, calls)
	assert.FileExists(t, filepath.Join(dir, "answer_log_run-1.json"))
}
