package db

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"

	"support-rag/internal/helper"
	"support-rag/internal/models"
)

// Sink receives one record per answered question.
type Sink interface {
	Record(ctx context.Context, res models.Result, route string) error
}

// FileSink writes each run as answer_log_<run id>.json under Dir.
type FileSink struct {
	Dir string
}

func (s FileSink) Path(runID string) string {
	return filepath.Join(s.Dir, fmt.Sprintf("answer_log_%s.json", runID))
}

func (s FileSink) Record(ctx context.Context, res models.Result, route string) error {
	return helper.WriteJSONFile(s.Path(res.RunID), struct {
		models.Result
		Route string `json:"route,omitempty"`
	}{res, route})
}

// TableSink inserts runs into the research_runs table.
type TableSink struct {
	DB *bun.DB
}

func (s TableSink) Record(ctx context.Context, res models.Result, route string) error {
	return StoreRun(ctx, s.DB, NewRunRecord(res, route))
}

// MultiSink fans a record out to every sink. A failing sink is logged and
// does not stop the others; the first error is returned.
type MultiSink []Sink

func (m MultiSink) Record(ctx context.Context, res models.Result, route string) error {
	var first error
	for _, s := range m {
		if err := s.Record(ctx, res, route); err != nil {
			log.Error().Err(err).Str("run_id", res.RunID).Msg("Failed to record run")
			if first == nil {
				first = err
			}
		}
	}
	return first
}
