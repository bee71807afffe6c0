package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"support-rag/internal/analysis"
	"support-rag/internal/chromemdb"
	"support-rag/internal/config"
	"support-rag/internal/db"
	"support-rag/internal/embedding"
	"support-rag/internal/llmservice"
	"support-rag/internal/models"
	"support-rag/internal/rag"
	"support-rag/internal/websearch"
)

type pipeline struct {
	cfg   *config.Config
	gen   llmservice.Generator
	rag   *rag.RAG
	sink  db.Sink
	close func()
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	log.Debug().Str("llm", cfg.LLM.Provider).Str("search", cfg.Search.Provider).Int("documents", len(cfg.RAG.Documents)).Msg("Loaded config")
	return cfg, nil
}

func newCaseIndex(ctx context.Context, cfg *config.Config) (*chromemdb.CaseIndex, error) {
	embedder, err := embedding.NewEmbedder(ctx, &cfg.EmbedLLM)
	if err != nil {
		return nil, fmt.Errorf("error initializing embedder: %w", err)
	}
	return chromemdb.NewCaseIndex(&cfg.CaseIndex, embedder), nil
}

func newPipeline(ctx context.Context, cfgPath string) (*pipeline, error) {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	gen, err := llmservice.New(ctx, &cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("error initializing generator: %w", err)
	}
	searcher, err := websearch.New(ctx, &cfg.Search)
	if err != nil {
		return nil, fmt.Errorf("error initializing web search: %w", err)
	}

	var cases rag.CaseSearcher
	if cfg.CaseIndex.Enabled {
		idx, err := newCaseIndex(ctx, cfg)
		if err != nil {
			return nil, err
		}
		cases = idx
	}

	p := &pipeline{cfg: cfg, gen: gen, rag: rag.NewRAG(cfg, gen, searcher, cases), close: func() {}}
	if err := p.openSink(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// openSink sets up the answer log: a JSON file per run and, when a database
// is configured, a research_runs row.
func (p *pipeline) openSink(ctx context.Context) error {
	var sinks db.MultiSink
	if p.cfg.Audit.Dir != "" {
		sinks = append(sinks, db.FileSink{Dir: p.cfg.Audit.Dir})
	}
	if p.cfg.Database.Enabled {
		bunDB, err := openDB(ctx, p.cfg)
		if err != nil {
			return err
		}
		sinks = append(sinks, db.TableSink{DB: bunDB})
		p.close = func() { bunDB.Close() }
	}
	p.sink = sinks
	return nil
}

// answer analyses, routes and answers one question, then records the run.
func (p *pipeline) answer(ctx context.Context, question string) (models.Result, analysis.Decision) {
	decision := analysis.Decision{Route: analysis.RouteReview, Reason: "analysis failed"}
	a, err := analysis.Analyze(ctx, p.gen, &p.cfg.Routing, question)
	if err != nil {
		log.Warn().Err(err).Msg("Question analysis failed, routing to review")
	} else {
		decision = analysis.Decide(a, &p.cfg.Routing)
	}

	res := p.rag.Query(ctx, question)
	if err := p.sink.Record(ctx, res, string(decision.Route)); err != nil {
		log.Error().Err(err).Str("run_id", res.RunID).Msg("Error recording run")
	}
	return res, decision
}
