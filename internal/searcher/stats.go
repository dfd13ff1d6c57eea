package searcher

import (
	"sync"
	"time"

	"github.com/dshills/docsearch-mcp/pkg/types"
)

// slowQueryCapacity bounds the slow-query ring
const slowQueryCapacity = 10

// statsRecorder keeps running search counters
type statsRecorder struct {
	mu        sync.Mutex
	threshold time.Duration

	total   int64
	hits    int64
	failed  int64
	average time.Duration

	// slow is a ring buffer; next is the slot written next
	slow []types.SlowQuery
	next int
}

func newStatsRecorder(threshold time.Duration) *statsRecorder {
	if threshold <= 0 {
		threshold = time.Second
	}
	return &statsRecorder{
		threshold: threshold,
		slow:      make([]types.SlowQuery, 0, slowQueryCapacity),
	}
}

func (r *statsRecorder) record(query, outcome string, elapsed time.Duration, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.total++
	switch outcome {
	case OutcomeHit:
		r.hits++
	case OutcomeError:
		r.failed++
	}

	// Running mean
	r.average += (elapsed - r.average) / time.Duration(r.total)

	if elapsed > r.threshold {
		entry := types.SlowQuery{Query: query, Duration: elapsed, Timestamp: now}
		if len(r.slow) < slowQueryCapacity {
			r.slow = append(r.slow, entry)
		} else {
			r.slow[r.next] = entry
		}
		r.next = (r.next + 1) % slowQueryCapacity
	}
}

func (r *statsRecorder) snapshot() types.SearchStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := types.SearchStats{
		TotalSearches:     r.total,
		CacheHits:         r.hits,
		FailedSearches:    r.failed,
		AverageSearchTime: r.average,
		SlowQueries:       make([]types.SlowQuery, 0, len(r.slow)),
	}

	// Oldest first
	if len(r.slow) < slowQueryCapacity {
		stats.SlowQueries = append(stats.SlowQueries, r.slow...)
	} else {
		stats.SlowQueries = append(stats.SlowQueries, r.slow[r.next:]...)
		stats.SlowQueries = append(stats.SlowQueries, r.slow[:r.next]...)
	}
	return stats
}
