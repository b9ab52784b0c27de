package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ksu-assistant/backend/internal/evaluation"
	"github.com/ksu-assistant/backend/internal/knowledge"
	"github.com/ksu-assistant/backend/internal/llm"
	"github.com/ksu-assistant/backend/internal/query"
	"github.com/ksu-assistant/backend/internal/validation"
	"github.com/ksu-assistant/backend/pkg/config"
	appLogger "github.com/ksu-assistant/backend/pkg/logger"
)

func main() {
	var (
		datasetPath   string
		knowledgePath string
		jsonOutput    bool
		parallel      bool
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run a question dataset through the answer pipeline",
		Long: `evaluate asks every question of a JSON dataset against the configured
generation backend and reports intent accuracy, keyword coverage, validity,
cache hits and latency.`,
		Example: `  evaluate --dataset data/eval.json
  evaluate -d data/eval.json --parallel --json`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), datasetPath, knowledgePath, parallel, jsonOutput)
		},
	}

	cmd.Flags().StringVarP(&datasetPath, "dataset", "d", "", "Path to the dataset JSON file")
	cmd.Flags().StringVarP(&knowledgePath, "knowledge", "k", "", "Knowledge document (defaults to knowledge.path from config)")
	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Print the report as JSON")
	cmd.Flags().BoolVar(&parallel, "parallel", false, "Generate several candidates per question")
	_ = cmd.MarkFlagRequired("dataset")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, datasetPath, knowledgePath string, parallel, jsonOutput bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := appLogger.Init(cfg.Logging.Level, "console", "stderr"); err != nil {
		return err
	}
	defer appLogger.Sync()

	if knowledgePath == "" {
		knowledgePath = cfg.Knowledge.Path
	}
	doc, err := knowledge.LoadFile(knowledgePath)
	if err != nil {
		return err
	}

	dataset, err := evaluation.LoadDataset(datasetPath)
	if err != nil {
		return err
	}

	healthTimeout := time.Duration(cfg.LLM.HealthTimeoutSec) * time.Second
	backend := llm.NewBackend(ctx, llm.BackendConfig{
		BaseURL:  cfg.LLM.BaseURL,
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey,
		Protocol: llm.Protocol(cfg.LLM.Protocol),
	}, &http.Client{Timeout: healthTimeout})

	client := llm.NewClient(backend, llm.Config{
		Timeout:       time.Duration(cfg.LLM.TimeoutSec) * time.Second,
		HealthTimeout: healthTimeout,
		MaxAttempts:   cfg.LLM.MaxAttempts,
		RetryBackoff:  time.Duration(cfg.LLM.RetryBackoffMs) * time.Millisecond,
	})
	if err := client.Ping(ctx); err != nil {
		return fmt.Errorf("generation backend is not reachable: %w", err)
	}

	engine := query.NewEngine(knowledge.NewStaticProvider(doc), client, query.Config{
		Parallel:            parallel || cfg.LLM.Parallel,
		Candidates:          cfg.LLM.Candidates,
		MaxRegenerations:    cfg.Validation.MaxRegenerations,
		MinCriticalLength:   cfg.Validation.MinCriticalLength,
		CriticalKinds:       validation.ParseKinds(cfg.Validation.CriticalKinds),
		CacheSize:           cfg.Cache.MaxSize,
		CacheTTL:            time.Duration(cfg.Cache.TTLHours) * time.Hour,
		SimilarityThreshold: cfg.Cache.SimilarityThreshold,
		ContextBudget:       cfg.Context.Budget,
		SoftOverflow:        cfg.Context.SoftOverflow,
		FallbackPhones:      cfg.Contacts.FallbackPhones,
	})

	report, err := evaluation.NewEvaluator(engine).RunDataset(ctx, dataset)
	if err != nil {
		appLogger.Warn("Evaluation interrupted", zap.Int("answered", report.Answered), zap.Error(err))
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	fmt.Print(evaluation.FormatReport(report))
	return err
}
