package cache

import (
	"math"
	"sync"
)

// AccessStats is a point-in-time snapshot of the cache access counters.
// Hits and misses are counted per item: a request that serves two cached
// records and fetches three registers two hits and three misses.
type AccessStats struct {
	Hits           uint64  `json:"cache_hits"`
	Misses         uint64  `json:"cache_misses"`
	Writes         uint64  `json:"cache_writes"`
	Updates        uint64  `json:"cache_updates"`
	TotalRequests  uint64  `json:"total_requests"`
	HitRatePercent float64 `json:"hit_rate_percent"`
	Enabled        bool    `json:"cache_enabled"`
}

// accessCounters are process-lifetime counters, never persisted; they reset
// on restart.
type accessCounters struct {
	mu      sync.Mutex
	hits    uint64
	misses  uint64
	writes  uint64
	updates uint64
}

func (c *accessCounters) hit(n int) {
	c.mu.Lock()
	c.hits += uint64(n)
	c.mu.Unlock()
}

func (c *accessCounters) miss(n int) {
	c.mu.Lock()
	c.misses += uint64(n)
	c.mu.Unlock()
}

func (c *accessCounters) write() {
	c.mu.Lock()
	c.writes++
	c.mu.Unlock()
}

func (c *accessCounters) update() {
	c.mu.Lock()
	c.updates++
	c.mu.Unlock()
}

func (c *accessCounters) snapshot(enabled bool) AccessStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := AccessStats{
		Hits:          c.hits,
		Misses:        c.misses,
		Writes:        c.writes,
		Updates:       c.updates,
		TotalRequests: c.hits + c.misses,
		Enabled:       enabled,
	}
	if stats.TotalRequests > 0 {
		rate := float64(stats.Hits) / float64(stats.TotalRequests) * 100
		stats.HitRatePercent = math.Round(rate*100) / 100
	}
	return stats
}
