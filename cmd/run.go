package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/nonprofit-cli/internal/collect"
	"github.com/sells-group/nonprofit-cli/internal/config"
	"github.com/sells-group/nonprofit-cli/internal/cost"
	"github.com/sells-group/nonprofit-cli/internal/export"
	"github.com/sells-group/nonprofit-cli/internal/extract"
	"github.com/sells-group/nonprofit-cli/internal/fetcher"
	"github.com/sells-group/nonprofit-cli/internal/model"
	"github.com/sells-group/nonprofit-cli/internal/monitoring"
	"github.com/sells-group/nonprofit-cli/internal/ocr"
	"github.com/sells-group/nonprofit-cli/internal/pipeline"
	"github.com/sells-group/nonprofit-cli/internal/resilience"
	"github.com/sells-group/nonprofit-cli/internal/resolve"
	anthropicpkg "github.com/sells-group/nonprofit-cli/pkg/anthropic"
	"github.com/sells-group/nonprofit-cli/pkg/propublica"
)

var (
	runState       string
	runMethod      string
	runSync        bool
	runQueries     string
	runLimit       int
	runOutput      string
	runMonitorAddr string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Collect and resolve financial data for one state",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyRunFlags(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}
		return executeRun(ctx, cfg, cmd.OutOrStdout())
	},
}

// applyRunFlags overlays explicitly set flags onto the loaded config.
func applyRunFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("state") {
		c.Pipeline.State = runState
	}
	if flags.Changed("method") {
		c.Pipeline.ParsingMethod = runMethod
	}
	if flags.Changed("sync") && runSync {
		c.Pipeline.Mode = config.ModeSync
	}
	if flags.Changed("queries") {
		c.Pipeline.QueryFile = runQueries
	}
	if flags.Changed("limit") {
		c.Pipeline.Limit = runLimit
	}
	if flags.Changed("output") {
		c.Export.OutputDir = runOutput
	}
	if flags.Changed("monitor-addr") {
		c.Monitor.Addr = runMonitorAddr
	}
}

// executeRun performs one full run and exports whatever it produced, even
// when ctx is cancelled part way.
func executeRun(ctx context.Context, c *config.Config, out io.Writer) error {
	state, ok := collect.LookupState(c.Pipeline.State)
	if !ok {
		return eris.Errorf("unknown state %q", c.Pipeline.State)
	}
	queries, err := resolveQueries(c.Pipeline, state)
	if err != nil {
		return err
	}
	method := c.Pipeline.ParsingMethod

	if c.Monitor.LogFile != "" {
		restore, err := monitoring.AttachLogFile(c.Monitor.LogFile)
		if err != nil {
			return err
		}
		defer restore()
	}

	stats := model.NewRunStatistics(uuid.NewString(), state.Name, method)
	log := zap.L().With(zap.String("run_id", stats.Snapshot().RunID), zap.String("state", state.Code))
	log.Info("run starting",
		zap.String("method", method),
		zap.String("mode", c.Pipeline.Mode),
		zap.Int("queries", queries.Len()),
	)

	lanes := resilience.NewLanes(resilience.FromCooldownConfig(c.Pipeline.CooldownSecs, c.Pipeline.MaxCooldownSecs))
	directory := propublica.NewClient(directoryFetcher(c.ProPublica), propublica.WithBaseURL(c.ProPublica.BaseURL))

	collector := collect.New(directory,
		collect.WithPageSize(c.ProPublica.PageSize),
		collect.WithMaxPages(c.ProPublica.MaxPages),
		collect.WithPageDelay(time.Duration(c.ProPublica.PageDelayMs)*time.Millisecond),
		collect.WithCooldown(lanes.Get(pipeline.LaneDirectory)),
		collect.WithProgress(
			func(term string) { stats.SetCurrent("search: " + term) },
			func(term string, done, total, added int) {
				log.Debug("search term finished",
					zap.String("term", term),
					zap.Int("done", done),
					zap.Int("total", total),
					zap.Int("added", added),
				)
			},
		),
	)

	extractor, err := buildExtractor(c, stats)
	if err != nil {
		return err
	}
	resolver := resolve.New(directory, extractor,
		resolve.WithBounds(resolve.Bounds{Min: c.Pipeline.RevenueMin, Max: c.Pipeline.RevenueMax}),
		resolve.WithCeilings(c.Pipeline.MaxConcurrentAPI, c.Pipeline.MaxConcurrentExtraction),
		resolve.WithExtractionLane(lanes.Get(pipeline.LaneExtraction)),
	)

	hub := monitoring.NewHub()
	sink := monitoring.NewSink(c.Monitor.StatsFile, hub)

	// Background services outlive ctx so the final snapshot is still served
	// while the export is written.
	bgCtx, stopBackground := context.WithCancel(context.WithoutCancel(ctx))
	defer stopBackground()
	startBackground(bgCtx, c.Monitor, hub, stats)

	coord := pipeline.New(collector, resolver, lanes, stats, pipeline.OptionsFromConfig(c.Pipeline), sink)
	result, err := coord.Run(ctx, state, queries)
	if err != nil {
		return eris.Wrap(err, "run")
	}

	path, err := export.WriteToDir(c.Export.OutputDir, export.Report{
		StateName:   state.Name,
		Method:      method,
		Records:     result.Records,
		Stats:       result.Stats,
		Unresolved:  result.Unresolved,
		Collected:   result.Collected,
		Interrupted: result.Interrupted,
	})
	if err != nil {
		return err
	}

	return printSummary(out, path, result)
}

func directoryFetcher(pc config.ProPublicaConfig) *fetcher.HTTPFetcher {
	opts := fetcher.HTTPOptions{
		Source:       string(model.SourceDirectory),
		UserAgent:    pc.UserAgent,
		AltUserAgent: pc.AltUserAgent,
		Timeout:      time.Duration(pc.TimeoutSecs) * time.Second,
	}
	if pc.RateLimitPerSec > 0 {
		burst := pc.Burst
		if burst <= 0 {
			burst = 1
		}
		opts.RateLimiters = map[string]*rate.Limiter{
			fetcher.ProPublicaHost: rate.NewLimiter(rate.Limit(pc.RateLimitPerSec), burst),
		}
	}
	return fetcher.NewHTTPFetcher(opts)
}

func documentFetcher(pc config.ProPublicaConfig) *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		Source:       string(model.SourceDocument),
		UserAgent:    pc.UserAgent,
		AltUserAgent: pc.AltUserAgent,
		Headers:      fetcher.DocumentHeaders(),
		Timeout:      2 * time.Duration(max(pc.TimeoutSecs, 30)) * time.Second,
	})
}

// buildExtractor assembles the strategy chain for the configured parsing
// method. OCR is always present as the last strategy.
func buildExtractor(c *config.Config, stats *model.RunStatistics) (*extract.Extractor, error) {
	text, err := ocr.NewExtractor(c.OCR)
	if err != nil {
		return nil, err
	}

	var ai extract.Strategy
	if c.Pipeline.ParsingMethod == config.ParsingMethodAI {
		client := anthropicpkg.NewClient(c.Anthropic.Key, anthropicpkg.WithBaseURL(c.Anthropic.BaseURL))
		retry := resilience.FromRetryConfig(
			c.Retry.MaxAttempts,
			c.Retry.InitialBackoffMs,
			c.Retry.MaxBackoffMs,
			c.Retry.Multiplier,
			c.Retry.JitterFraction,
		)
		ai = extract.NewAIStrategy(client, c.Anthropic, retry,
			extract.WithCostRecorder(stats.AddCost),
			extract.WithCalculator(cost.NewCalculator(cost.FromConfig(c.Pricing))),
		)
	}

	chain := extract.Chain(c.Pipeline.ParsingMethod, ai, extract.NewOCRStrategy(text))
	return extract.New(documentFetcher(c.ProPublica), chain, c.OCR.TempDir), nil
}

// startBackground launches the progress server and alert checker when they
// are configured. Both stop when ctx is cancelled.
func startBackground(ctx context.Context, mc config.MonitorConfig, hub *monitoring.Hub, stats *model.RunStatistics) {
	if mc.Addr != "" {
		srv := monitoring.NewServer(mc.Addr, hub, stats)
		go func() {
			if err := srv.Start(ctx); err != nil {
				zap.L().Error("progress server stopped", zap.Error(err))
			}
		}()
	}
	if mc.WebhookURL != "" {
		checker := monitoring.NewChecker(stats, monitoring.NewAlerter(mc), time.Duration(mc.CheckIntervalSecs)*time.Second)
		go checker.Run(ctx)
	}
}

func printSummary(out io.Writer, path string, result *pipeline.Result) error {
	s := result.Stats
	status := "complete"
	if result.Interrupted {
		status = "interrupted"
	}
	_, err := fmt.Fprintf(out,
		"%s: %d records written to %s\ncollected %d, processed %d/%d (api %d, ai %d, ocr %d, n/a %d, rate limited %d, errors %d), cost $%.4f\n",
		status, len(result.Records), path,
		result.Collected, s.Processed, s.Total,
		s.API, s.AISuccess, s.OCRSuccess, s.NotAvailable, s.RateLimited, s.Errors,
		s.AICostUSD,
	)
	return err
}

func init() {
	runCmd.Flags().StringVar(&runState, "state", "", "state code or name, e.g. CT")
	runCmd.Flags().StringVar(&runMethod, "method", config.ParsingMethodAI, "document parsing method: ai or ocr")
	runCmd.Flags().BoolVar(&runSync, "sync", false, "resolve organizations one at a time")
	runCmd.Flags().StringVar(&runQueries, "queries", "", "YAML query file")
	runCmd.Flags().IntVar(&runLimit, "limit", 0, "resolve at most N organizations (0 = all)")
	runCmd.Flags().StringVar(&runOutput, "output", "", "output directory for the spreadsheet")
	runCmd.Flags().StringVar(&runMonitorAddr, "monitor-addr", "", "serve progress over HTTP on this address, e.g. :8090")
	rootCmd.AddCommand(runCmd)
}
