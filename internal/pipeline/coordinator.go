// Package pipeline runs one enrichment pass: collect the identifiers of a
// jurisdiction, resolve each one and account for every outcome.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/sells-group/nonprofit-cli/internal/collect"
	"github.com/sells-group/nonprofit-cli/internal/config"
	"github.com/sells-group/nonprofit-cli/internal/model"
	"github.com/sells-group/nonprofit-cli/internal/resilience"
)

// Cooldown lane names. The ai and document sources share the extraction
// lane.
const (
	LaneDirectory  = "directory"
	LaneExtraction = "extraction"
)

// LaneFor maps a rate-limited source onto its cooldown lane.
func LaneFor(src model.Source) string {
	if src == model.SourceDirectory {
		return LaneDirectory
	}
	return LaneExtraction
}

// Collector gathers the identifiers of one jurisdiction.
type Collector interface {
	Collect(ctx context.Context, stateCode string, queries collect.QuerySet) (model.IdentifierSet, error)
}

// Resolver resolves one organization.
type Resolver interface {
	Resolve(ctx context.Context, org model.Organization) model.Outcome
}

// Observer receives statistics as the run progresses.
type Observer interface {
	Progress(snap model.StatsSnapshot)
	Finished(snap model.StatsSnapshot)
}

// Options tune dispatch.
type Options struct {
	// Mode is config.ModeAsync or config.ModeSync.
	Mode string
	// Workers bounds concurrently resolving organizations in async mode.
	Workers int
	// SyncDelay separates dispatches in sync mode.
	SyncDelay time.Duration
	// ProgressEvery publishes progress after this many outcomes.
	ProgressEvery int
	// GracePeriod is how long in-flight work may finish after cancellation.
	GracePeriod time.Duration
	// Limit caps how many organizations are dispatched. 0 means all.
	Limit int
}

// DefaultOptions returns async dispatch with 20 workers.
func DefaultOptions() Options {
	return Options{
		Mode:          config.ModeAsync,
		Workers:       20,
		SyncDelay:     500 * time.Millisecond,
		ProgressEvery: 5,
		GracePeriod:   30 * time.Second,
	}
}

// OptionsFromConfig builds dispatch options from pipeline config.
func OptionsFromConfig(cfg config.PipelineConfig) Options {
	o := DefaultOptions()
	if cfg.Mode != "" {
		o.Mode = cfg.Mode
	}
	if cfg.MaxWorkers > 0 {
		o.Workers = cfg.MaxWorkers
	}
	if cfg.SyncDelayMs >= 0 {
		o.SyncDelay = time.Duration(cfg.SyncDelayMs) * time.Millisecond
	}
	if cfg.ProgressEvery > 0 {
		o.ProgressEvery = cfg.ProgressEvery
	}
	if cfg.GracePeriodSecs > 0 {
		o.GracePeriod = time.Duration(cfg.GracePeriodSecs) * time.Second
	}
	o.Limit = cfg.Limit
	return o
}

// Result is everything a run produced. It is returned even when the run
// was cancelled.
type Result struct {
	Records    []model.FinancialRecord
	Stats      model.StatsSnapshot
	Unresolved []resilience.DLQEntry
	// Collected is the size of the identifier set before Limit.
	Collected int
	// Interrupted is set when the run stopped before every identifier was
	// dispatched and resolved.
	Interrupted bool
}

// Coordinator drives a run.
type Coordinator struct {
	collector Collector
	resolver  Resolver
	lanes     *resilience.Lanes
	stats     *model.RunStatistics
	observers []Observer
	opts      Options

	mu         sync.Mutex
	records    []model.FinancialRecord
	dispatched map[string]struct{}
	inFlight   map[string]model.Organization
	dlq        resilience.DLQ

	// accounting tracks outcomes taken off inFlight but not yet counted.
	accounting sync.WaitGroup
}

// New creates a Coordinator. stats is shared with whoever displays
// progress; lanes must be the same registry the collector and resolver
// wait on.
func New(collector Collector, resolver Resolver, lanes *resilience.Lanes, stats *model.RunStatistics, opts Options, observers ...Observer) *Coordinator {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.ProgressEvery < 1 {
		opts.ProgressEvery = 1
	}
	stats.WatchCooldowns(lanes.Remaining)
	return &Coordinator{
		collector:  collector,
		resolver:   resolver,
		lanes:      lanes,
		stats:      stats,
		observers:  observers,
		opts:       opts,
		dispatched: make(map[string]struct{}),
		inFlight:   make(map[string]model.Organization),
	}
}

// Run collects and resolves every organization of state. Only problems
// found before dispatch are returned as errors; after that the result
// always carries whatever was accumulated, including on cancellation.
func (c *Coordinator) Run(ctx context.Context, state collect.State, queries collect.QuerySet) (*Result, error) {
	if state.Code == "" {
		return nil, eris.New("pipeline: state is required")
	}
	if queries.Len() == 0 {
		return nil, eris.New("pipeline: query set is empty")
	}

	log := zap.L().With(zap.String("state", state.Code))
	log.Info("pipeline: collecting identifiers", zap.Int("terms", queries.Len()))
	c.stats.SetCurrent("collecting identifiers")

	ids, err := c.collector.Collect(ctx, state.Code, queries)
	collected := ids.Len()
	if err != nil {
		if ctx.Err() == nil {
			return nil, eris.Wrap(err, "pipeline: collect")
		}
		log.Warn("pipeline: collection interrupted", zap.Int("collected", collected))
		return c.finish(collected, true), nil
	}

	ids = ids.Limit(c.opts.Limit)
	c.stats.SetTotal(ids.Len())
	log.Info("pipeline: dispatching",
		zap.Int("collected", collected),
		zap.Int("dispatching", ids.Len()),
		zap.String("mode", c.opts.Mode),
	)
	c.publish(false)

	interrupted := c.dispatch(ctx, ids.Organizations())
	return c.finish(collected, interrupted), nil
}

// dispatch resolves every organization and reports whether the run was cut
// short.
func (c *Coordinator) dispatch(ctx context.Context, orgs []model.Organization) bool {
	// Work runs on its own context so in-flight calls survive the grace
	// period after ctx is cancelled.
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()

	workers := c.opts.Workers
	if c.opts.Mode == config.ModeSync {
		workers = 1
	}
	slots := semaphore.NewWeighted(int64(workers))
	directoryLane := c.lanes.Get(LaneDirectory)

	g := new(errgroup.Group)
	for i, org := range orgs {
		if ctx.Err() != nil {
			break
		}
		if !c.claim(org) {
			continue
		}
		if c.opts.Mode == config.ModeSync && i > 0 && !sleep(ctx, c.opts.SyncDelay) {
			c.unclaim(org)
			break
		}
		if err := slots.Acquire(ctx, 1); err != nil {
			c.unclaim(org)
			break
		}
		// The lane is checked with the slot held so a trip by the work that
		// just released it is seen.
		if directoryLane.Active() {
			zap.L().Info("pipeline: directory cooling down, dispatch paused",
				zap.Duration("remaining", directoryLane.Remaining()),
			)
		}
		if err := directoryLane.Wait(ctx); err != nil {
			slots.Release(1)
			c.unclaim(org)
			break
		}
		g.Go(func() error {
			defer slots.Release(1)
			c.stats.SetCurrent(org.Name)
			c.handle(org, c.resolver.Resolve(workCtx, org))
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
		return ctx.Err() != nil
	case <-ctx.Done():
	}

	zap.L().Warn("pipeline: cancelled, waiting for in-flight work",
		zap.Duration("grace_period", c.opts.GracePeriod),
		zap.Int("in_flight", c.inFlightCount()),
	)
	timer := time.NewTimer(c.opts.GracePeriod)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		cancelWork()
		c.abandonInFlight()
	}
	return true
}

// claim marks org as dispatched. It reports false for an EIN already seen
// this run.
func (c *Coordinator) claim(org model.Organization) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.dispatched[org.EIN]; dup {
		return false
	}
	c.dispatched[org.EIN] = struct{}{}
	c.inFlight[org.EIN] = org
	return true
}

func (c *Coordinator) unclaim(org model.Organization) {
	c.mu.Lock()
	delete(c.inFlight, org.EIN)
	c.mu.Unlock()
}

func (c *Coordinator) inFlightCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inFlight)
}

// handle accounts for one outcome. Outcomes for organizations that were
// already written off at shutdown are dropped.
func (c *Coordinator) handle(org model.Organization, out model.Outcome) {
	c.mu.Lock()
	if _, ok := c.inFlight[org.EIN]; !ok {
		c.mu.Unlock()
		return
	}
	delete(c.inFlight, org.EIN)
	if rec, ok := out.Record(); ok {
		c.records = append(c.records, rec)
	}
	c.accounting.Add(1)
	c.mu.Unlock()

	defer c.accounting.Done()
	c.account(org, out)
}

// abandonInFlight records every organization still running as cancelled.
func (c *Coordinator) abandonInFlight() {
	c.mu.Lock()
	abandoned := make([]model.Organization, 0, len(c.inFlight))
	for _, org := range c.inFlight {
		abandoned = append(abandoned, org)
	}
	c.inFlight = make(map[string]model.Organization)
	c.mu.Unlock()

	for _, org := range abandoned {
		c.account(org, model.Failed(eris.Wrap(model.ErrCancelled, "pipeline: grace period expired")))
	}
}

func (c *Coordinator) account(org model.Organization, out model.Outcome) {
	cat := model.Classify(out)
	n := c.stats.Record(cat)

	log := zap.L().With(zap.String("ein", org.EIN), zap.String("category", string(cat)))
	urgent := false
	switch {
	case out.IsSuccess():
		c.settle(out)
		log.Debug("pipeline: resolved")
	case out.IsRateLimited():
		src, _ := out.RateLimitSource()
		if src != model.SourceDirectory {
			c.lanes.Get(LaneDirectory).Success()
		}
		lane := c.lanes.Get(LaneFor(src))
		pause := lane.Trip()
		log.Warn("pipeline: rate limited",
			zap.String("source", string(src)),
			zap.String("lane", lane.Name()),
			zap.Duration("pause", pause),
		)
		urgent = true
	case out.IsUnavailable():
		c.settle(out)
		reason, _ := out.Reason()
		log.Debug("pipeline: no usable data", zap.String("reason", string(reason)))
	default:
		log.Error("pipeline: resolve failed", zap.Error(out.Err()))
		urgent = true
	}

	if entry, ok := resilience.NewDLQEntry(org, out, time.Now()); ok {
		c.dlq.Add(entry)
	}

	if urgent || n%c.opts.ProgressEvery == 0 {
		c.publish(false)
	}
}

// settle ends escalation on the lanes whose dependency answered. Every
// success or unavailable outcome got past the directory. A record read from
// a document, or a document with nothing in it, got past extraction too.
func (c *Coordinator) settle(out model.Outcome) {
	c.lanes.Get(LaneDirectory).Success()
	extracted := false
	if rec, ok := out.Record(); ok {
		extracted = rec.Provenance != model.ProvenanceDirectory
	} else if reason, ok := out.Reason(); ok {
		extracted = reason == model.ReasonNoExtractableData
	}
	if extracted {
		c.lanes.Get(LaneExtraction).Success()
	}
}

func (c *Coordinator) publish(final bool) {
	snap := c.stats.Snapshot()
	if !final {
		zap.L().Info("pipeline: progress",
			zap.Int("processed", snap.Processed),
			zap.Int("total", snap.Total),
			zap.Int("api", snap.API),
			zap.Int("ai", snap.AISuccess),
			zap.Int("ocr", snap.OCRSuccess),
			zap.Int("not_available", snap.NotAvailable),
			zap.Int("rate_limited", snap.RateLimited),
			zap.Int("errors", snap.Errors),
		)
	}
	for _, o := range c.observers {
		if final {
			o.Finished(snap)
		} else {
			o.Progress(snap)
		}
	}
}

func (c *Coordinator) finish(collected int, interrupted bool) *Result {
	c.accounting.Wait()
	c.stats.SetCurrent("complete")
	snap := c.stats.Snapshot()

	c.mu.Lock()
	records := make([]model.FinancialRecord, len(c.records))
	copy(records, c.records)
	c.mu.Unlock()

	log := zap.L().With(zap.String("state", snap.State))
	log.Info("pipeline: run complete",
		zap.String("run_id", snap.RunID),
		zap.Int("collected", collected),
		zap.Int("processed", snap.Processed),
		zap.Int("records", len(records)),
		zap.Bool("interrupted", interrupted),
		zap.Float64("elapsed_secs", snap.ElapsedSeconds),
		zap.Float64("ai_cost_usd", snap.AICostUSD),
	)
	if snap.RateLimited > 0 {
		log.Warn("pipeline: some organizations were rate limited; rerun later to fill them in",
			zap.Int("rate_limited", snap.RateLimited))
	}
	if snap.Errors > 0 {
		log.Warn("pipeline: some organizations failed", zap.Int("errors", snap.Errors))
	}

	c.publish(true)
	return &Result{
		Records:     records,
		Stats:       snap,
		Unresolved:  c.dlq.Entries(),
		Collected:   collected,
		Interrupted: interrupted,
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
