// Package collect gathers the organizations of one jurisdiction from the
// directory search API.
package collect

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/nonprofit-cli/internal/model"
	"github.com/sells-group/nonprofit-cli/internal/resilience"
	"github.com/sells-group/nonprofit-cli/pkg/propublica"
)

// Defaults mirror the directory API: 25 results per page and at most 400
// pages per query.
const (
	DefaultPageSize = 25
	DefaultMaxPages = 400
	DefaultWorkers  = 4

	// maxRateLimitRetries bounds how often one page is retried after its
	// lane cools down.
	maxRateLimitRetries = 3
)

// ProgressFunc is called after each term completes.
type ProgressFunc func(term string, done, total, added int)

// Collector pages through directory search results for every query term.
type Collector struct {
	client    propublica.Client
	pageSize  int
	maxPages  int
	pageDelay time.Duration
	workers   int
	lane      *resilience.Cooldown
	onTerm    ProgressFunc
	onStart   func(term string)
}

// Option configures a Collector.
type Option func(*Collector)

// WithPageSize sets the page size that marks the last page.
func WithPageSize(n int) Option {
	return func(c *Collector) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithMaxPages caps pages per term. n <= 0 removes the cap.
func WithMaxPages(n int) Option {
	return func(c *Collector) { c.maxPages = n }
}

// WithPageDelay pauses between pages of one term.
func WithPageDelay(d time.Duration) Option {
	return func(c *Collector) { c.pageDelay = d }
}

// WithWorkers sets how many terms are searched concurrently.
func WithWorkers(n int) Option {
	return func(c *Collector) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithCooldown makes the collector honor and trip the directory lane.
func WithCooldown(lane *resilience.Cooldown) Option {
	return func(c *Collector) { c.lane = lane }
}

// WithProgress registers callbacks for term start and completion.
func WithProgress(onStart func(term string), onDone ProgressFunc) Option {
	return func(c *Collector) {
		c.onStart = onStart
		c.onTerm = onDone
	}
}

// New creates a Collector over a directory client.
func New(client propublica.Client, opts ...Option) *Collector {
	c := &Collector{
		client:   client,
		pageSize: DefaultPageSize,
		maxPages: DefaultMaxPages,
		workers:  DefaultWorkers,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Collect searches every term of queries within stateCode and merges the
// results by EIN. A failing term is logged and skipped. On cancellation the
// organizations gathered so far are returned with the context error.
func (c *Collector) Collect(ctx context.Context, stateCode string, queries QuerySet) (model.IdentifierSet, error) {
	if stateCode == "" {
		return model.IdentifierSet{}, eris.New("collect: state code is required")
	}

	terms := queries.Terms()
	found := newFoundSet()
	var done atomic.Int64

	g := new(errgroup.Group)
	g.SetLimit(c.workers)

	for _, term := range terms {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if c.onStart != nil {
				c.onStart(term)
			}
			added, err := c.collectTerm(ctx, stateCode, term, found)
			if err != nil && ctx.Err() == nil {
				zap.L().Warn("collect: term failed, skipping",
					zap.String("term", term),
					zap.String("state", stateCode),
					zap.Int("added", added),
					zap.Error(err),
				)
			}
			n := int(done.Add(1))
			zap.L().Debug("collect: term complete",
				zap.String("term", term),
				zap.Int("added", added),
				zap.Int("done", n),
				zap.Int("total", len(terms)),
			)
			if c.onTerm != nil {
				c.onTerm(term, n, len(terms), added)
			}
			return nil
		})
	}
	_ = g.Wait()

	set := found.identifierSet()
	if err := ctx.Err(); err != nil {
		return set, eris.Wrap(err, "collect: cancelled")
	}

	zap.L().Info("collect: complete",
		zap.String("state", stateCode),
		zap.Int("terms", len(terms)),
		zap.Int("organizations", set.Len()),
	)
	return set, nil
}

// collectTerm pages through one term until a short or empty page, an
// error, or the page cap. It returns how many new organizations it added.
func (c *Collector) collectTerm(ctx context.Context, stateCode, term string, found *foundSet) (int, error) {
	added := 0
	for page := 0; c.maxPages <= 0 || page < c.maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return added, err
		}
		resp, err := c.searchPage(ctx, stateCode, term, page)
		if err != nil {
			return added, err
		}
		for _, s := range resp.Organizations {
			if found.add(s.Organization()) {
				added++
			}
		}
		if len(resp.Organizations) < c.pageSize {
			return added, nil
		}
		if !pause(ctx, c.pageDelay) {
			return added, ctx.Err()
		}
	}
	return added, nil
}

// searchPage fetches one page. A rate-limited page trips the lane, waits
// for it to reopen and is retried.
func (c *Collector) searchPage(ctx context.Context, stateCode, term string, page int) (*propublica.SearchResponse, error) {
	for attempt := 0; ; attempt++ {
		if c.lane != nil {
			if err := c.lane.Wait(ctx); err != nil {
				return nil, err
			}
		}
		resp, err := c.client.Search(ctx, term, stateCode, page)
		if err == nil {
			if c.lane != nil {
				c.lane.Success()
			}
			return resp, nil
		}
		if !resilience.IsRateLimit(err) || c.lane == nil || attempt >= maxRateLimitRetries {
			return nil, err
		}
		pauseFor := c.lane.Trip()
		zap.L().Warn("collect: directory rate limited, cooling down",
			zap.String("term", term),
			zap.Int("page", page),
			zap.Duration("pause", pauseFor),
		)
	}
}

func pause(ctx context.Context, d time.Duration) bool {
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

// foundSet merges organizations by EIN; the first name seen wins.
type foundSet struct {
	mu   sync.Mutex
	seen map[string]struct{}
	orgs []model.Organization
}

func newFoundSet() *foundSet {
	return &foundSet{seen: make(map[string]struct{})}
}

func (f *foundSet) add(o model.Organization) bool {
	if o.EIN == "" {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, dup := f.seen[o.EIN]; dup {
		return false
	}
	f.seen[o.EIN] = struct{}{}
	f.orgs = append(f.orgs, o)
	return true
}

func (f *foundSet) identifierSet() model.IdentifierSet {
	f.mu.Lock()
	defer f.mu.Unlock()
	return model.NewIdentifierSet(f.orgs)
}
