package db

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"support-rag/internal/config"
	"support-rag/internal/models"
)

// RunRecord is the audit row written for every answered question.
type RunRecord struct {
	bun.BaseModel `bun:"table:research_runs,alias:r"`

	ID              string            `bun:"id,pk"`
	Question        string            `bun:"question,notnull"`
	FinalAnswer     string            `bun:"final_answer,notnull"`
	InternalSummary string            `bun:"internal_summary"`
	WebSummary      string            `bun:"web_summary"`
	IssuedQueries   []string          `bun:"issued_queries,array"`
	InternalRefs    []string          `bun:"internal_refs,array"`
	WebRefs         []string          `bun:"web_refs,array"`
	Citations       []models.Citation `bun:"citations,type:jsonb"`
	SimilarCases    []models.CaseHit  `bun:"similar_cases,type:jsonb"`
	LoopCount       int               `bun:"loop_count"`
	SynthesisFailed bool              `bun:"synthesis_failed"`
	Route           string            `bun:"route"`
	StartedAt       time.Time         `bun:"started_at,notnull"`
	DurationMillis  int64             `bun:"duration_ms"`
}

// NewRunRecord flattens a pipeline result into an audit row.
func NewRunRecord(res models.Result, route string) *RunRecord {
	return &RunRecord{
		ID:              res.RunID,
		Question:        res.Question,
		FinalAnswer:     res.FinalAnswer,
		InternalSummary: res.InternalSummary,
		WebSummary:      res.WebSummary,
		IssuedQueries:   res.IssuedQueries,
		InternalRefs:    res.InternalRefs,
		WebRefs:         res.WebRefs,
		Citations:       res.Citations,
		SimilarCases:    res.SimilarCases,
		LoopCount:       res.LoopCount,
		SynthesisFailed: res.SynthesisFailed,
		Route:           route,
		StartedAt:       res.StartedAt,
		DurationMillis:  res.Duration.Milliseconds(),
	}
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	dsn := cfg.DSN
	if !strings.Contains(dsn, "sslmode=") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "sslmode=disable"
	}
	opts := []pgdriver.Option{pgdriver.WithDSN(dsn)}
	if cfg.Password != "" {
		opts = append(opts, pgdriver.WithPassword(cfg.Password))
	}
	return sql.OpenDB(pgdriver.NewConnector(opts...)), nil
}

func InitDB(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().Model((*RunRecord)(nil)).IfNotExists().Exec(ctx)
	return err
}

func StoreRun(ctx context.Context, db *bun.DB, rec *RunRecord) error {
	_, err := db.NewInsert().Model(rec).Exec(ctx)
	return err
}

// RecentRuns returns the newest runs first.
func RecentRuns(ctx context.Context, db *bun.DB, limit int) ([]RunRecord, error) {
	var runs []RunRecord
	err := db.NewSelect().
		Model(&runs).
		OrderExpr("started_at DESC").
		Limit(limit).
		Scan(ctx)
	return runs, err
}

func DropRuns(ctx context.Context, db *bun.DB) error {
	_, err := db.NewDropTable().Model((*RunRecord)(nil)).IfExists().Exec(ctx)
	return err
}
