package llm

import (
	"sort"
	"sync"
	"time"
)

// Operation names recorded by the provider clients.
const (
	OpCaption = "caption"
	OpEmbed   = "embed"
)

type callSample struct {
	at      time.Time
	latency time.Duration
	failed  bool
}

// LatencySummary aggregates the calls of one operation inside the window.
type LatencySummary struct {
	Calls  int     `json:"calls"`
	Errors int     `json:"errors"`
	MinMs  int64   `json:"min_ms"`
	MaxMs  int64   `json:"max_ms"`
	AvgMs  float64 `json:"avg_ms"`
	P50Ms  float64 `json:"p50_ms"`
	P95Ms  float64 `json:"p95_ms"`
	P99Ms  float64 `json:"p99_ms"`
}

// Stats keeps a rolling window of provider call latencies per operation.
// A nil *Stats is valid and records nothing.
type Stats struct {
	mu      sync.Mutex
	window  time.Duration
	samples map[string][]callSample
	now     func() time.Time
}

func NewStats(window time.Duration) *Stats {
	if window <= 0 {
		window = time.Hour
	}
	return &Stats{
		window:  window,
		samples: make(map[string][]callSample),
		now:     time.Now,
	}
}

// Observe records one call. Negative latencies count as zero.
func (s *Stats) Observe(op string, latency time.Duration, err error) {
	if s == nil {
		return
	}
	if latency < 0 {
		latency = 0
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.samples[op] = append(s.prune(s.samples[op], now), callSample{at: now, latency: latency, failed: err != nil})
}

// track returns a func that records the elapsed time of a call started now.
func (s *Stats) track(op string) func(error) {
	if s == nil {
		return func(error) {}
	}
	start := s.now()
	return func(err error) { s.Observe(op, s.now().Sub(start), err) }
}

// Snapshot summarizes every operation seen inside the window.
func (s *Stats) Snapshot() map[string]LatencySummary {
	out := make(map[string]LatencySummary)
	if s == nil {
		return out
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for op, list := range s.samples {
		list = s.prune(list, now)
		s.samples[op] = list
		if len(list) == 0 {
			continue
		}
		out[op] = summarize(list)
	}
	return out
}

func (s *Stats) prune(list []callSample, now time.Time) []callSample {
	cutoff := now.Add(-s.window)
	kept := list[:0]
	for _, sm := range list {
		if !sm.at.Before(cutoff) {
			kept = append(kept, sm)
		}
	}
	return kept
}

func summarize(list []callSample) LatencySummary {
	ms := make([]int64, len(list))
	var sum int64
	errs := 0
	for i, sm := range list {
		ms[i] = sm.latency.Milliseconds()
		sum += ms[i]
		if sm.failed {
			errs++
		}
	}
	sort.Slice(ms, func(i, j int) bool { return ms[i] < ms[j] })
	return LatencySummary{
		Calls:  len(ms),
		Errors: errs,
		MinMs:  ms[0],
		MaxMs:  ms[len(ms)-1],
		AvgMs:  float64(sum) / float64(len(ms)),
		P50Ms:  percentile(ms, 50),
		P95Ms:  percentile(ms, 95),
		P99Ms:  percentile(ms, 99),
	}
}

// percentile interpolates linearly between the closest ranks of sorted.
func percentile(sorted []int64, pct float64) float64 {
	switch {
	case len(sorted) == 0:
		return 0
	case pct <= 0:
		return float64(sorted[0])
	case pct >= 100:
		return float64(sorted[len(sorted)-1])
	}
	rank := float64(len(sorted)-1) * pct / 100
	lower := int(rank)
	if lower+1 >= len(sorted) {
		return float64(sorted[lower])
	}
	lo, hi := float64(sorted[lower]), float64(sorted[lower+1])
	return lo + (hi-lo)*(rank-float64(lower))
}
