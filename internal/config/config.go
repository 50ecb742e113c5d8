// Package config loads every tunable named in spec.md §4 via viper,
// generalizing the teacher's cmd/server/main.go flag-driven config into a
// full YAML/ENV-backed object (SPEC_FULL §2.1).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/atlas-desktop/strategy-discovery/internal/champion"
	"github.com/atlas-desktop/strategy-discovery/internal/simulator"
	"github.com/atlas-desktop/strategy-discovery/internal/validator"
)

// IsolationGoroutine and IsolationProcess name the two Runtime backends
// cmd/discover/main.go can wire, matching the accepted values of the
// isolation config key (DISCOVERY_ISOLATION).
const (
	IsolationGoroutine = "goroutine"
	IsolationProcess   = "process"
)

// Config is the full set of tunables the learning loop needs.
type Config struct {
	HistoryPath  string
	ChampionPath string
	MaxIterations int

	InnovationRate float64 // probability of choosing the LLM path over factor-graph

	SandboxTimeout       time.Duration
	SandboxMaxHeapMB     uint64
	SandboxConcurrency   int
	Isolation            string // "goroutine" or "process"

	RetryMax int // TemplateParameterGenerator's LLM schema-retry budget

	DynamicSharpeThreshold float64
	StatisticalThreshold   float64 // ~0.5 Bonferroni-corrected bound (spec.md §4.5/§9); classification/promotion use max(dynamic, statistical)
	MaxDrawdownBound       float64

	Simulator SimulatorConfig
	Validator validator.Config
	Champion  champion.Config

	LLMModel      string
	LLMAPIKey     string
	LLMBaseURL    string

	ShutdownGraceSeconds int // second cancel-signal grace deadline (SPEC_FULL §9: 5s)
}

// SimulatorConfig mirrors sandbox.Config's simulator-facing fields so
// viper can populate it without importing the sandbox package (which
// would create an import cycle through process/goroutine runtimes).
type SimulatorConfig struct {
	Symbols        []string
	PriceKey       string
	InitialCapital float64
	FeeFraction    float64
	TaxFraction    float64
	Rebalance      simulator.RebalanceFrequency
}

// Load reads config from (in order of increasing precedence): built-in
// defaults, an optional YAML file at path, and environment variables
// prefixed DISCOVERY_ (e.g. DISCOVERY_INNOVATION_RATE).
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("discovery")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	cfg := Config{
		HistoryPath:            v.GetString("history_path"),
		ChampionPath:           v.GetString("champion_path"),
		MaxIterations:          v.GetInt("max_iterations"),
		InnovationRate:         v.GetFloat64("innovation_rate"),
		SandboxTimeout:         v.GetDuration("sandbox_timeout"),
		SandboxMaxHeapMB:       uint64(v.GetInt64("sandbox_max_heap_mb")),
		SandboxConcurrency:     v.GetInt("sandbox_concurrency"),
		Isolation:              v.GetString("isolation"),
		RetryMax:               v.GetInt("retry_max"),
		DynamicSharpeThreshold: v.GetFloat64("dynamic_sharpe_threshold"),
		StatisticalThreshold:   v.GetFloat64("statistical_threshold"),
		MaxDrawdownBound:       v.GetFloat64("max_drawdown_bound"),
		LLMModel:               v.GetString("llm_model"),
		LLMAPIKey:              v.GetString("llm_api_key"),
		LLMBaseURL:             v.GetString("llm_base_url"),
		ShutdownGraceSeconds:   v.GetInt("shutdown_grace_seconds"),
		Simulator: SimulatorConfig{
			Symbols:        v.GetStringSlice("simulator.symbols"),
			PriceKey:       v.GetString("simulator.price_key"),
			InitialCapital: v.GetFloat64("simulator.initial_capital"),
			FeeFraction:    v.GetFloat64("simulator.fee_fraction"),
			TaxFraction:    v.GetFloat64("simulator.tax_fraction"),
			Rebalance:      simulator.RebalanceFrequency(v.GetString("simulator.rebalance")),
		},
		Validator: validator.Config{
			StopLossMin:       decimal.NewFromFloat(v.GetFloat64("validator.stop_loss_min")),
			StopLossMax:       decimal.NewFromFloat(v.GetFloat64("validator.stop_loss_max")),
			PortfolioCountMin: v.GetInt("validator.portfolio_count_min"),
			PortfolioCountMax: v.GetInt("validator.portfolio_count_max"),
		},
		Champion: champion.Config{
			DrawdownTolerance: v.GetFloat64("champion.drawdown_tolerance"),
			WinRateTolerance:  v.GetFloat64("champion.win_rate_tolerance"),
			MinTradeCountAvg:  v.GetFloat64("champion.min_trade_count_avg"),
			CohortWindow:      v.GetInt("champion.cohort_window"),
			BaseChurnMargin:   v.GetFloat64("champion.base_churn_margin"),
			ChurnSlope:        v.GetFloat64("champion.churn_slope"),
			StalenessLimit:    v.GetInt("champion.staleness_limit"),
		},
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("history_path", "./state/history.jsonl")
	v.SetDefault("champion_path", "./state/champion.json")
	v.SetDefault("max_iterations", 1000)
	v.SetDefault("innovation_rate", 0.2)
	v.SetDefault("sandbox_timeout", 30*time.Second)
	v.SetDefault("sandbox_max_heap_mb", 512)
	v.SetDefault("sandbox_concurrency", 4)
	v.SetDefault("isolation", IsolationGoroutine)
	v.SetDefault("retry_max", 3)
	v.SetDefault("dynamic_sharpe_threshold", 0.8)
	v.SetDefault("statistical_threshold", 0.5)
	v.SetDefault("max_drawdown_bound", 0.25)
	v.SetDefault("llm_model", "gpt-4o-mini")
	v.SetDefault("shutdown_grace_seconds", 5)

	v.SetDefault("simulator.symbols", []string{})
	v.SetDefault("simulator.price_key", "adj_close")
	v.SetDefault("simulator.initial_capital", 1000000.0)
	v.SetDefault("simulator.fee_fraction", 0.001425)
	v.SetDefault("simulator.tax_fraction", 0.003)
	v.SetDefault("simulator.rebalance", string(simulator.RebalanceDaily))

	v.SetDefault("validator.stop_loss_min", 0.05)
	v.SetDefault("validator.stop_loss_max", 0.20)
	v.SetDefault("validator.portfolio_count_min", 5)
	v.SetDefault("validator.portfolio_count_max", 30)

	v.SetDefault("champion.drawdown_tolerance", 0.02)
	v.SetDefault("champion.win_rate_tolerance", 0.05)
	v.SetDefault("champion.min_trade_count_avg", 5.0)
	v.SetDefault("champion.cohort_window", 50)
	v.SetDefault("champion.base_churn_margin", 0.01)
	v.SetDefault("champion.churn_slope", 0.002)
	v.SetDefault("champion.staleness_limit", 25)
}
