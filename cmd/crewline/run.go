package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/crewline/crewline"
	"github.com/crewline/crewline/crew"
	"github.com/crewline/crewline/internal/server"
	"github.com/crewline/crewline/internal/telemetry"
	"github.com/crewline/crewline/llm/tools"
)

// inputFlags collects repeated --input name=value pairs.
type inputFlags struct {
	values map[string]string
}

func (f *inputFlags) String() string {
	if len(f.values) == 0 {
		return ""
	}
	pairs := make([]string, 0, len(f.values))
	for k, v := range f.values {
		pairs = append(pairs, k+"="+v)
	}
	return strings.Join(pairs, ",")
}

func (f *inputFlags) Set(raw string) error {
	name, value, ok := strings.Cut(raw, "=")
	if !ok || name == "" {
		return fmt.Errorf("input %q is not name=value", raw)
	}
	if f.values == nil {
		f.values = make(map[string]string)
	}
	f.values[name] = value
	return nil
}

func runRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	pipelinePath := fs.String("pipeline", "", "Path to pipeline file (built-in pipeline when empty)")
	marketDataURL := fs.String("marketdata-url", "", "Market-data backend base URL")
	marketDataKey := fs.String("marketdata-key", "", "Market-data API key")
	jsonOut := fs.Bool("json", false, "Print the full run result as JSON")
	var inputs inputFlags
	fs.Var(&inputs, "input", "Pipeline input as name=value (repeatable)")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("starting crewline",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("telemetry init failed", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelProviders.Shutdown(ctx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	opts := []crewline.Option{
		crewline.WithConfig(cfg),
		crewline.WithLogger(logger),
	}
	if *marketDataURL != "" {
		opts = append(opts, crewline.WithMarketData(tools.MarketDataConfig{
			BaseURL: *marketDataURL,
			APIKey:  *marketDataKey,
		}))
	}
	if !*jsonOut {
		opts = append(opts, crewline.WithStepCallback(printStep))
	}

	eng, err := crewline.New(opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to assemble engine: %v\n", err)
		os.Exit(1)
	}
	defer eng.Close()

	var metricsServer *server.Manager
	if cfg.Metrics.Enabled {
		metricsServer = startMetricsServer(eng, logger)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			metricsServer.Shutdown(ctx)
		}()
	}

	spec, err := resolvePipeline(*pipelinePath, *marketDataURL != "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	c, err := eng.BuildCrew(spec)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build pipeline: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := c.Run(ctx, inputs.values)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Run failed: %v\n", err)
		os.Exit(1)
	}

	if *jsonOut {
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode result: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(out))
		return
	}

	fmt.Println()
	if result.Degraded {
		fmt.Printf("Run %s finished degraded (%d tasks, %d tokens, %s)\n",
			result.RunID, len(result.Tasks), result.Usage.TotalTokens, result.Duration.Round(time.Millisecond))
	} else {
		fmt.Printf("Run %s completed (%d tasks, %d tokens, %s)\n",
			result.RunID, len(result.Tasks), result.Usage.TotalTokens, result.Duration.Round(time.Millisecond))
	}
	fmt.Println()
	fmt.Println(result.Output)
}

// printStep is the live progress line for non-JSON runs.
func printStep(tr crew.TaskResult) {
	mark := "done"
	if tr.Degraded {
		mark = "degraded: " + tr.DegradedReason
	}
	fmt.Printf("[%d] %s (%s) %s in %s\n",
		tr.Seq, tr.TaskID, tr.Agent, mark, tr.Duration.Round(time.Millisecond))
}

// startMetricsServer exposes the Prometheus registry and a liveness
// probe on the configured metrics address.
func startMetricsServer(eng *crewline.Engine, logger *zap.Logger) *server.Manager {
	cfg := eng.Config().Metrics

	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(eng.MetricsRegistry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	srvCfg := server.DefaultConfig()
	srvCfg.Addr = cfg.Addr

	mgr := server.NewManager(mux, srvCfg, logger)
	if err := mgr.Start(); err != nil {
		logger.Warn("metrics server failed to start", zap.Error(err))
	}
	return mgr
}

// resolvePipeline loads the pipeline file, or falls back to the built-in
// equity research pipeline. The built-in pipeline leans on the stock
// tools, so it refuses to run without a market-data backend.
func resolvePipeline(path string, marketData bool) (*crew.PipelineSpec, error) {
	if path != "" {
		spec, err := crew.LoadPipeline(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load pipeline: %w", err)
		}
		return spec, nil
	}
	if !marketData {
		return nil, fmt.Errorf("the built-in pipeline needs --marketdata-url; pass --pipeline to run your own")
	}
	return defaultPipeline(), nil
}

// defaultPipeline is the bundled equity research crew: two gathering
// tasks feed an analysis whose verdict the final task condenses.
func defaultPipeline() *crew.PipelineSpec {
	return &crew.PipelineSpec{
		Name: "equity-research",
		Agents: []crew.AgentSpec{
			{
				Name:          "financial_analyst",
				Goal:          "Build an accurate picture of how a stock is trading right now",
				Backstory:     "A buy-side analyst who trusts numbers over narratives and always cites the figures behind a claim.",
				MaxIterations: 4,
				CacheEnabled:  true,
				Tools:         []string{"stock_price"},
			},
			{
				Name:          "news_researcher",
				Goal:          "Surface the news flow that is moving a stock",
				Backstory:     "A former newsroom editor who separates market-moving stories from noise and never buries the timeline.",
				MaxIterations: 4,
				CacheEnabled:  true,
				Tools:         []string{"stock_news"},
			},
			{
				Name:      "senior_advisor",
				Goal:      "Turn raw research into an investment stance a client can act on",
				Backstory: "A portfolio manager with two decades of cycles behind them; cautious with conviction, explicit about risk.",
			},
		},
		Tasks: []crew.TaskSpec{
			{
				ID:             "financials",
				Description:    "Collect the current trading snapshot for {{stock}}: last price, day change, day range and volume. Use the stock_price tool and report the raw figures.",
				ExpectedOutput: "A short factual snapshot of the latest trading data with every figure attributed to the quote.",
				Agent:          "financial_analyst",
			},
			{
				ID:             "news",
				Description:    "Gather recent headlines about {{stock}} with the stock_news tool. Keep the five most relevant items with dates and one-line summaries.",
				ExpectedOutput: "A dated list of up to five relevant headlines with one-line summaries.",
				Agent:          "news_researcher",
			},
			{
				ID:             "analysis",
				Description:    "Weigh the trading snapshot against the news flow for {{stock}}. Name the forces behind the current price action and the risks that could reverse it.",
				ExpectedOutput: "An analysis connecting price action to news flow, with explicit risks.",
				Agent:          "senior_advisor",
				Context:        []string{"financials", "news"},
			},
			{
				ID:             "recommendation",
				Description:    "Condense the analysis of {{stock}} into a stance: BUY, HOLD or SELL, the reasoning in three sentences or fewer, and the single biggest risk to the call.",
				ExpectedOutput: "One of BUY, HOLD or SELL with brief reasoning and the main risk.",
				Agent:          "senior_advisor",
				Context:        []string{"analysis"},
			},
		},
	}
}
