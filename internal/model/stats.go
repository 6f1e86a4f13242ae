package model

import (
	"sync"
	"time"
)

// RunStatistics tracks progress of one enrichment run. All methods are
// safe for concurrent use.
type RunStatistics struct {
	mu sync.Mutex

	runID  string
	state  string
	method string

	start     time.Time
	total     int
	processed int
	counts    map[Category]int
	current   string
	costUSD   float64

	cooldowns func() map[string]time.Duration
	nowFunc   func() time.Time
}

// NewRunStatistics starts the clock for a run.
func NewRunStatistics(runID, state, method string) *RunStatistics {
	return newRunStatistics(runID, state, method, time.Now)
}

func newRunStatistics(runID, state, method string, now func() time.Time) *RunStatistics {
	return &RunStatistics{
		runID:   runID,
		state:   state,
		method:  method,
		start:   now(),
		counts:  make(map[Category]int, len(Categories())),
		nowFunc: now,
	}
}

// SetTotal records how many organizations will be dispatched.
func (s *RunStatistics) SetTotal(n int) {
	s.mu.Lock()
	s.total = n
	s.mu.Unlock()
}

// SetCurrent records the current activity shown to the monitor.
func (s *RunStatistics) SetCurrent(activity string) {
	s.mu.Lock()
	s.current = activity
	s.mu.Unlock()
}

// Record counts one classified outcome and returns the processed total.
func (s *RunStatistics) Record(c Category) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[c]++
	s.processed++
	return s.processed
}

// AddCost adds AI spend in USD.
func (s *RunStatistics) AddCost(usd float64) {
	if usd <= 0 {
		return
	}
	s.mu.Lock()
	s.costUSD += usd
	s.mu.Unlock()
}

// WatchCooldowns makes every snapshot report the lanes that remaining says
// are paused.
func (s *RunStatistics) WatchCooldowns(remaining func() map[string]time.Duration) {
	s.mu.Lock()
	s.cooldowns = remaining
	s.mu.Unlock()
}

// Snapshot returns an immutable copy of the current statistics.
func (s *RunStatistics) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	elapsed := s.nowFunc().Sub(s.start)
	snap := StatsSnapshot{
		RunID:          s.runID,
		State:          s.state,
		ParsingMethod:  s.method,
		StartedAt:      s.start,
		Total:          s.total,
		Processed:      s.processed,
		API:            s.counts[CategoryAPI],
		AISuccess:      s.counts[CategoryAISuccess],
		OCRSuccess:     s.counts[CategoryOCRSuccess],
		NotAvailable:   s.counts[CategoryNotAvailable],
		RateLimited:    s.counts[CategoryRateLimited],
		Errors:         s.counts[CategoryError],
		CurrentQuery:   s.current,
		ElapsedSeconds: elapsed.Seconds(),
		AICostUSD:      s.costUSD,
	}
	snap.PDF = snap.AISuccess + snap.OCRSuccess
	if s.total > 0 {
		snap.ProgressPercent = float64(s.processed) / float64(s.total) * 100
	}
	if s.processed > 0 {
		snap.AvgPerOrgSeconds = elapsed.Seconds() / float64(s.processed)
	}
	if s.cooldowns != nil {
		for lane, d := range s.cooldowns() {
			if d <= 0 {
				continue
			}
			if snap.Cooldowns == nil {
				snap.Cooldowns = make(map[string]float64)
			}
			snap.Cooldowns[lane] = d.Seconds()
		}
	}
	return snap
}

// StatsSnapshot is a point-in-time copy of RunStatistics. The JSON layout is
// what the monitor stats file and the /stats endpoint serve.
type StatsSnapshot struct {
	RunID            string    `json:"run_id"`
	State            string    `json:"state_name"`
	ParsingMethod    string    `json:"parsing_method"`
	StartedAt        time.Time `json:"started_at"`
	Total            int       `json:"total_orgs"`
	Processed        int       `json:"completed_orgs"`
	API              int       `json:"api_count"`
	AISuccess        int       `json:"ai_count"`
	OCRSuccess       int       `json:"ocr_count"`
	PDF              int       `json:"pdf_count"`
	NotAvailable     int       `json:"na_count"`
	RateLimited      int       `json:"rate_limit_count"`
	Errors           int       `json:"error_count"`
	CurrentQuery     string    `json:"current_query"`
	ElapsedSeconds   float64   `json:"elapsed_time"`
	ProgressPercent  float64   `json:"progress_percent"`
	AvgPerOrgSeconds float64   `json:"avg_per_org_secs"`
	AICostUSD        float64   `json:"ai_cost_usd"`
	// Cooldowns holds the seconds left on each paused lane.
	Cooldowns map[string]float64 `json:"cooldowns,omitempty"`
}

// Count returns the tally for one category.
func (s StatsSnapshot) Count(c Category) int {
	switch c {
	case CategoryAPI:
		return s.API
	case CategoryAISuccess:
		return s.AISuccess
	case CategoryOCRSuccess:
		return s.OCRSuccess
	case CategoryNotAvailable:
		return s.NotAvailable
	case CategoryRateLimited:
		return s.RateLimited
	case CategoryError:
		return s.Errors
	default:
		return 0
	}
}

// Resolved is the number of organizations that produced a record.
func (s StatsSnapshot) Resolved() int {
	return s.API + s.AISuccess + s.OCRSuccess
}
