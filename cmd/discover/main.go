// Package main is the entry point for the strategy-discovery loop.
// Grounded on the teacher's cmd/server/main.go: flag-driven bring-up,
// console zap encoder, signal.Notify-based graceful shutdown — narrowed
// from a multi-service trading backend to LearningLoop's single
// sequential control flow.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/atlas-desktop/strategy-discovery/internal/api"
	"github.com/atlas-desktop/strategy-discovery/internal/champion"
	"github.com/atlas-desktop/strategy-discovery/internal/config"
	"github.com/atlas-desktop/strategy-discovery/internal/dataaccessor"
	"github.com/atlas-desktop/strategy-discovery/internal/executor"
	"github.com/atlas-desktop/strategy-discovery/internal/factorgraph"
	"github.com/atlas-desktop/strategy-discovery/internal/factorregistry"
	"github.com/atlas-desktop/strategy-discovery/internal/history"
	"github.com/atlas-desktop/strategy-discovery/internal/llm"
	"github.com/atlas-desktop/strategy-discovery/internal/loop"
	"github.com/atlas-desktop/strategy-discovery/internal/monitoring"
	"github.com/atlas-desktop/strategy-discovery/internal/sandbox"
	"github.com/atlas-desktop/strategy-discovery/internal/sandbox/goroutine"
	"github.com/atlas-desktop/strategy-discovery/internal/sandbox/process"
	"github.com/atlas-desktop/strategy-discovery/internal/simulator"
	"github.com/atlas-desktop/strategy-discovery/internal/templategen"
	"github.com/atlas-desktop/strategy-discovery/internal/validator"
	"github.com/shopspring/decimal"
)

const (
	exitOK        = 0
	exitFatal     = 1
	exitCancelled = 130
)

func main() {
	if len(os.Args) < 2 || os.Args[1] != "run" {
		fmt.Fprintln(os.Stderr, "usage: discover run [--config PATH] [--max-iterations N] [--resume] [--history PATH]")
		os.Exit(exitFatal)
	}

	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "path to a YAML config file")
	maxIterations := fs.Int("max-iterations", 0, "override the configured max_iterations (0 = use config)")
	historyPath := fs.String("history", "", "override the configured history.jsonl path")
	resume := fs.Bool("resume", true, "resume from the existing history log instead of starting fresh")
	logLevel := fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.Parse(os.Args[2:])

	logger := setupLogger(*logLevel)
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	if *maxIterations > 0 {
		cfg.MaxIterations = *maxIterations
	}
	if *historyPath != "" {
		cfg.HistoryPath = *historyPath
	}
	if apiKey := os.Getenv("DISCOVERY_LLM_API_KEY"); apiKey != "" {
		cfg.LLMAPIKey = apiKey
	}

	hist, err := history.New(logger, cfg.HistoryPath)
	if err != nil {
		logger.Fatal("failed to open history log", zap.Error(err))
	}
	if !*resume {
		logger.Warn("--resume=false requested but history is append-only; iteration numbering still resumes from the existing log")
	}

	champ, err := champion.New(logger, cfg.ChampionPath, cfg.Champion)
	if err != nil {
		logger.Fatal("failed to load champion record", zap.Error(err))
	}

	manifest := dataaccessor.DefaultManifest()
	access := dataaccessor.New(logger, manifest, "./data")
	factorReg := factorregistry.Default()

	mutator := factorgraph.New(factorReg)
	validate := validator.New(cfg.Validator, access)

	var runtime sandbox.Runtime
	switch cfg.Isolation {
	case config.IsolationProcess:
		runtime = process.New(logger, cfg.SandboxMaxHeapMB)
	default:
		runtime = goroutine.New(logger)
	}

	sandboxExec := sandbox.New(logger, runtime, access, factorReg, validate, sandbox.Config{
		Symbols:        cfg.Simulator.Symbols,
		PriceKey:       cfg.Simulator.PriceKey,
		InitialCapital: decimal.NewFromFloat(cfg.Simulator.InitialCapital),
		FeeFraction:    decimal.NewFromFloat(cfg.Simulator.FeeFraction),
		TaxFraction:    decimal.NewFromFloat(cfg.Simulator.TaxFraction),
		Rebalance:      orDefaultRebalance(cfg.Simulator.Rebalance),
	})

	templateReg := templategen.NewRegistry()
	templateReg.Register(templategen.MomentumTemplate())
	templateGen := templategen.New(logger, llmClient(cfg), templateReg, manifest, templategen.Config{
		Model:    cfg.LLMModel,
		RetryMax: cfg.RetryMax,
	})

	registry := prometheus.NewRegistry()
	sink := monitoring.NewPrometheusSink(registry)

	iterExec := executor.New(logger, executor.Config{
		InnovationRate:         cfg.InnovationRate,
		SandboxTimeout:         cfg.SandboxTimeout,
		TemplateName:           "momentum",
		DynamicSharpeThreshold: cfg.DynamicSharpeThreshold,
		StatisticalThreshold:   cfg.StatisticalThreshold,
		MaxDrawdownBound:       cfg.MaxDrawdownBound,
	}, templateGen, mutator, validate, sandboxExec, champ, hist, sink, rand.New(rand.NewSource(time.Now().UnixNano())))
	iterExec.SetCohortSource(historyCohort{hist: hist})

	learningLoop := loop.New(logger, loop.Config{
		MaxIterations:        cfg.MaxIterations,
		ShutdownGraceSeconds: cfg.ShutdownGraceSeconds,
	}, iterExec, hist)

	statusServer := api.New(logger, api.Config{
		Host:         "0.0.0.0",
		Port:         8090,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}, learningLoop, champ)

	graceful, stopGraceful := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopGraceful()
	force, stopForce := loop.GraceContext(graceful, time.Duration(cfg.ShutdownGraceSeconds)*time.Second)
	defer stopForce()

	forceSignals := make(chan os.Signal, 1)
	signal.Notify(forceSignals, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-graceful.Done()
		logger.Info("shutdown signal received, finishing in-flight iteration")
		<-forceSignals // the first signal is delivered here too
		<-forceSignals // second signal
		logger.Warn("second shutdown signal received, forcing termination")
		stopForce()
	}()

	go func() {
		if err := statusServer.Start(); err != nil {
			logger.Error("status API error", zap.Error(err))
		}
	}()

	summary, runErr := learningLoop.Run(graceful, force)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := statusServer.Stop(shutdownCtx); err != nil {
		logger.Warn("status API shutdown error", zap.Error(err))
	}

	logger.Info("run summary",
		zap.Int("totalIterations", summary.TotalIterations),
		zap.Any("countsByLevel", summary.CountsByLevel),
		zap.Float64("bestSharpeSeen", summary.BestSharpeSeen),
		zap.Bool("hasBestSharpe", summary.HasBestSharpe),
		zap.Duration("wallTime", summary.WallTime),
		zap.Bool("stoppedEarly", summary.StoppedEarly),
	)

	switch {
	case runErr != nil:
		logger.Error("fatal infrastructure error", zap.Error(runErr))
		os.Exit(exitFatal)
	case summary.StoppedEarly:
		os.Exit(exitCancelled)
	default:
		os.Exit(exitOK)
	}
}

// historyCohort adapts *history.History to champion.CohortSource, reading
// back recent records' Sharpe ratios without making champion import
// history directly.
type historyCohort struct {
	hist *history.History
}

func (h historyCohort) RecentSharpes(n int) ([]float64, error) {
	records, err := h.hist.Recent(n)
	if err != nil {
		return nil, fmt.Errorf("historyCohort: recent records: %w", err)
	}
	sharpes := make([]float64, 0, len(records))
	for _, rec := range records {
		if rec.Metrics == nil {
			continue
		}
		sharpe, _ := rec.Metrics.SharpeRatio.Float64()
		sharpes = append(sharpes, sharpe)
	}
	return sharpes, nil
}

// llmClient builds the provider chain TemplateParameterGenerator talks
// to. Absence of an API key degrades to factor-graph-only mode: every
// LLM call fails immediately and IterationExecutor's single fallback
// always lands on FactorGraphMutator (spec.md §6's "absence of LLM key
// degrades to factor-graph-only mode").
func llmClient(cfg config.Config) llm.Client {
	if cfg.LLMAPIKey == "" {
		return llm.NewAlwaysMalformedClient()
	}
	return llm.NewChain(llm.NewOpenAIClient(cfg.LLMAPIKey, cfg.LLMBaseURL))
}

func orDefaultRebalance(r simulator.RebalanceFrequency) simulator.RebalanceFrequency {
	if r == "" {
		return simulator.RebalanceDaily
	}
	return r
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
