package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/nonprofit-cli/internal/resilience"
	"github.com/sells-group/nonprofit-cli/pkg/propublica"
)

// fakeDirectory serves search pages from a function.
type fakeDirectory struct {
	search func(query string, page int) (*propublica.SearchResponse, error)

	mu    sync.Mutex
	calls []string
}

func (f *fakeDirectory) Search(_ context.Context, query, stateCode string, page int) (*propublica.SearchResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fmt.Sprintf("%s/%s/%d", query, stateCode, page))
	f.mu.Unlock()
	return f.search(query, page)
}

func (f *fakeDirectory) Organization(context.Context, string) (*propublica.OrganizationResponse, error) {
	return nil, eris.New("not used")
}

func (f *fakeDirectory) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func page(orgs ...propublica.OrganizationSummary) *propublica.SearchResponse {
	return &propublica.SearchResponse{Organizations: orgs}
}

func org(ein int, name string) propublica.OrganizationSummary {
	return propublica.OrganizationSummary{EIN: json.Number(fmt.Sprint(ein)), Name: name}
}

// fullPage returns n organizations with EINs starting at base.
func fullPage(base, n int) *propublica.SearchResponse {
	resp := &propublica.SearchResponse{}
	for i := 0; i < n; i++ {
		resp.Organizations = append(resp.Organizations, org(base+i, fmt.Sprintf("Org %d", base+i)))
	}
	return resp
}

func TestCollect_PaginatesUntilShortPage(t *testing.T) {
	dir := &fakeDirectory{search: func(_ string, p int) (*propublica.SearchResponse, error) {
		switch p {
		case 0:
			return fullPage(100, 3), nil
		case 1:
			return fullPage(200, 3), nil
		default:
			return fullPage(300, 1), nil
		}
	}}

	c := New(dir, WithPageSize(3), WithWorkers(1))
	set, err := c.Collect(context.Background(), "CT", NewQuerySet("arts"))
	require.NoError(t, err)
	assert.Equal(t, 7, set.Len())
	assert.Equal(t, []string{"arts/CT/0", "arts/CT/1", "arts/CT/2"}, dir.Calls())
}

func TestCollect_EmptyPageEndsTerm(t *testing.T) {
	dir := &fakeDirectory{search: func(_ string, p int) (*propublica.SearchResponse, error) {
		if p == 0 {
			return fullPage(100, 2), nil
		}
		return page(), nil
	}}

	set, err := New(dir, WithPageSize(2)).Collect(context.Background(), "CT", NewQuerySet("arts"))
	require.NoError(t, err)
	assert.Equal(t, 2, set.Len())
	assert.Len(t, dir.Calls(), 2)
}

func TestCollect_StopsAtMaxPages(t *testing.T) {
	dir := &fakeDirectory{search: func(_ string, p int) (*propublica.SearchResponse, error) {
		return fullPage(p*10, 2), nil
	}}

	set, err := New(dir, WithPageSize(2), WithMaxPages(4)).Collect(context.Background(), "CT", NewQuerySet("arts"))
	require.NoError(t, err)
	assert.Len(t, dir.Calls(), 4)
	assert.Equal(t, 8, set.Len())
}

func TestCollect_DedupKeepsFirstName(t *testing.T) {
	dir := &fakeDirectory{search: func(q string, _ int) (*propublica.SearchResponse, error) {
		if q == "arts" {
			return page(org(61234567, "Hartford Arts Council"), org(223456789, "Shoreline Arts")), nil
		}
		return page(org(61234567, "HARTFORD ARTS COUNCIL INC")), nil
	}}

	set, err := New(dir, WithWorkers(1)).Collect(context.Background(), "CT", NewQuerySet("arts", "council"))
	require.NoError(t, err)
	require.Equal(t, 2, set.Len())

	orgs := set.Organizations()
	assert.Equal(t, "061234567", orgs[0].EIN)
	assert.Equal(t, "Hartford Arts Council", orgs[0].Name)
	assert.Equal(t, "223456789", orgs[1].EIN)
}

func TestCollect_FailingTermIsSkipped(t *testing.T) {
	dir := &fakeDirectory{search: func(q string, _ int) (*propublica.SearchResponse, error) {
		if q == "broken" {
			return nil, eris.New("upstream 500")
		}
		return page(org(111111111, "Kept")), nil
	}}

	set, err := New(dir).Collect(context.Background(), "CT", NewQuerySet("broken", "arts"))
	require.NoError(t, err)
	assert.Equal(t, 1, set.Len())
}

func TestCollect_RateLimitedPageIsRetried(t *testing.T) {
	var attempts atomic.Int32
	dir := &fakeDirectory{search: func(_ string, _ int) (*propublica.SearchResponse, error) {
		if attempts.Add(1) == 1 {
			return nil, resilience.NewRateLimitError("directory", 429, eris.New("slow down"))
		}
		return page(org(111111111, "After Cooldown")), nil
	}}
	lane := resilience.NewCooldown("directory", resilience.CooldownConfig{Period: time.Millisecond})

	set, err := New(dir, WithCooldown(lane)).Collect(context.Background(), "CT", NewQuerySet("arts"))
	require.NoError(t, err)
	assert.Equal(t, 1, set.Len())
	assert.Equal(t, 1, lane.Trips())
	assert.Equal(t, int32(2), attempts.Load())
}

func TestCollect_RateLimitGivesUpAfterRetries(t *testing.T) {
	dir := &fakeDirectory{search: func(_ string, _ int) (*propublica.SearchResponse, error) {
		return nil, resilience.NewRateLimitError("directory", 429, eris.New("slow down"))
	}}
	lane := resilience.NewCooldown("directory", resilience.CooldownConfig{Period: time.Millisecond, MaxPeriod: 2 * time.Millisecond})

	set, err := New(dir, WithCooldown(lane)).Collect(context.Background(), "CT", NewQuerySet("arts"))
	require.NoError(t, err)
	assert.Equal(t, 0, set.Len())
	assert.Len(t, dir.Calls(), maxRateLimitRetries+1)
}

func TestCollect_CancelReturnsPartialSet(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dir := &fakeDirectory{search: func(q string, _ int) (*propublica.SearchResponse, error) {
		if q == "arts" {
			cancel()
			return page(org(111111111, "Early")), nil
		}
		return page(org(222222222, "Late")), nil
	}}

	set, err := New(dir, WithWorkers(1)).Collect(ctx, "CT", NewQuerySet("arts", "health", "youth"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, set.Len())
}

func TestCollect_ReportsProgress(t *testing.T) {
	dir := &fakeDirectory{search: func(q string, _ int) (*propublica.SearchResponse, error) {
		if q == "arts" {
			return page(org(1, "A"), org(2, "B")), nil
		}
		return page(org(2, "B")), nil
	}}

	var started []string
	var added []int
	var mu sync.Mutex
	c := New(dir, WithWorkers(1), WithProgress(
		func(term string) {
			mu.Lock()
			started = append(started, term)
			mu.Unlock()
		},
		func(_ string, done, total, n int) {
			mu.Lock()
			added = append(added, n)
			mu.Unlock()
			assert.Equal(t, 2, total)
			assert.LessOrEqual(t, done, total)
		},
	))

	_, err := c.Collect(context.Background(), "CT", NewQuerySet("arts", "youth"))
	require.NoError(t, err)
	assert.Equal(t, []string{"arts", "youth"}, started)
	assert.Equal(t, []int{2, 0}, added)
}

func TestCollect_RequiresState(t *testing.T) {
	_, err := New(&fakeDirectory{}).Collect(context.Background(), "", NewQuerySet("arts"))
	require.Error(t, err)
}
