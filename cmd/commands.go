package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"

	"support-rag/internal/analysis"
	"support-rag/internal/chromemdb"
	"support-rag/internal/config"
	"support-rag/internal/db"
	"support-rag/internal/helper"
	"support-rag/internal/llmservice"
	"support-rag/internal/metrics"
)

func askCMD(cfgPath *string) *cobra.Command {
	var asJSON bool
	ask := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer one question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := newPipeline(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer p.close()

			res, decision := p.answer(ctx, strings.Join(args, " "))
			if asJSON {
				helper.PrettyPrint(res)
				return nil
			}
			fmt.Printf("route: %s (%s)\n\n%s\n", decision.Route, decision.Reason, res.ChatText())
			return nil
		},
	}
	ask.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	return ask
}

func batchCMD(cfgPath *string) *cobra.Command {
	var (
		file        string
		metricsPort int
	)
	batch := &cobra.Command{
		Use:   "batch",
		Short: "Answer every question in a file, one per line, in order",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			questions, err := readQuestions(file)
			if err != nil {
				return err
			}
			p, err := newPipeline(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer p.close()
			if metricsPort > 0 {
				metrics.Serve(ctx, metricsPort)
			}

			for i, q := range questions {
				if ctx.Err() != nil {
					log.Warn().Int("remaining", len(questions)-i).Msg("Batch interrupted")
					break
				}
				res, decision := p.answer(ctx, q)
				log.Info().
					Int("n", i+1).
					Int("of", len(questions)).
					Str("run_id", res.RunID).
					Str("route", string(decision.Route)).
					Bool("synthesis_failed", res.SynthesisFailed).
					Msg("Question processed")
			}
			return nil
		},
	}
	batch.Flags().StringVarP(&file, "file", "f", "", "file with one question per line")
	batch.Flags().IntVar(&metricsPort, "metrics-port", 0, "serve Prometheus metrics on this port (0 = off)")
	_ = batch.MarkFlagRequired("file")
	return batch
}

func readQuestions(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening questions file: %w", err)
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if q := strings.TrimSpace(sc.Text()); q != "" && !strings.HasPrefix(q, "#") {
			out = append(out, q)
		}
	}
	return out, sc.Err()
}

func analyzeCMD(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze [question]",
		Short: "Classify a question and show the routing decision",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			gen, err := llmservice.New(ctx, &cfg.LLM)
			if err != nil {
				return err
			}
			a, err := analysis.Analyze(ctx, gen, &cfg.Routing, strings.Join(args, " "))
			if err != nil {
				return err
			}
			helper.PrettyPrint(struct {
				Analysis analysis.Analysis `json:"analysis"`
				Decision analysis.Decision `json:"decision"`
			}{a, analysis.Decide(a, &cfg.Routing)})
			return nil
		},
	}
}

func indexCMD(cfgPath *string) *cobra.Command {
	index := &cobra.Command{
		Use:   "index",
		Short: "Manage the similar past cases index",
	}

	var source, sheet string
	rebuild := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the index from the past cases workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			if source == "" {
				source = cfg.CaseIndex.SourceFile
			}
			if sheet == "" {
				sheet = cfg.CaseIndex.SourceSheet
			}
			if source == "" {
				return fmt.Errorf("no case workbook: set case_index.source_file or pass --source")
			}
			cases, err := chromemdb.ReadCases(source, sheet, cfg.CaseIndex.BaseURL)
			if err != nil {
				return err
			}
			idx, err := newCaseIndex(ctx, cfg)
			if err != nil {
				return err
			}
			n, err := idx.Rebuild(ctx, cases)
			if err != nil {
				return err
			}
			fmt.Printf("indexed %d cases into %s\n", n, cfg.CaseIndex.Path)
			return nil
		},
	}
	rebuild.Flags().StringVar(&source, "source", "", "past cases workbook (default case_index.source_file)")
	rebuild.Flags().StringVar(&sheet, "sheet", "", "sheet name (default case_index.source_sheet, then the first sheet)")

	var topK int
	search := &cobra.Command{
		Use:   "search [question]",
		Short: "Show the past cases most similar to a question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			idx, err := newCaseIndex(ctx, cfg)
			if err != nil {
				return err
			}
			hits, err := idx.Search(ctx, strings.Join(args, " "), topK)
			if err != nil {
				return err
			}
			if len(hits) == 0 {
				fmt.Println("no similar cases")
				return nil
			}
			for _, h := range hits {
				fmt.Printf("%.3f  row %d  %s\n", h.Score, h.Row, h.URL)
			}
			return nil
		},
	}
	search.Flags().IntVarP(&topK, "top-k", "k", 0, "number of cases (default case_index.top_k)")

	index.AddCommand(rebuild, search)
	return index
}

func runsCMD(cfgPath *string) *cobra.Command {
	runs := &cobra.Command{
		Use:   "runs",
		Short: "Inspect the research_runs answer log",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "Show the most recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd.Context(), *cfgPath, func(ctx context.Context, bunDB *bun.DB) error {
				records, err := db.RecentRuns(ctx, bunDB, limit)
				if err != nil {
					return err
				}
				for _, r := range records {
					fmt.Printf("%s  %s  %-6s  loops=%d  %s\n", r.StartedAt.Format("2006-01-02 15:04"), r.ID, r.Route, r.LoopCount, r.Question)
				}
				return nil
			})
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs")

	drop := &cobra.Command{
		Use:   "drop",
		Short: "Drop the research_runs table",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd.Context(), *cfgPath, func(ctx context.Context, bunDB *bun.DB) error {
				if err := db.DropRuns(ctx, bunDB); err != nil {
					return err
				}
				log.Info().Msg("Dropped research_runs")
				return nil
			})
		},
	}

	runs.AddCommand(list, drop)
	return runs
}

func openDB(ctx context.Context, cfg *config.Config) (*bun.DB, error) {
	dbClient, err := db.ConnectDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}
	bunDB := db.NewDB(dbClient, cfg.Database.Debug)
	if err := db.InitDB(ctx, bunDB); err != nil {
		bunDB.Close()
		return nil, fmt.Errorf("error initializing database: %w", err)
	}
	return bunDB, nil
}

func withDB(ctx context.Context, cfgPath string, fn func(context.Context, *bun.DB) error) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	if !cfg.Database.Enabled {
		return fmt.Errorf("database is not enabled in %s", cfgPath)
	}
	bunDB, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer bunDB.Close()
	return fn(ctx, bunDB)
}
