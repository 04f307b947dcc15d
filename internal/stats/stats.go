// Package stats tracks the forwarder's per-link error counters and
// content-store hit/miss rates (spec §7 "Propagation": errors are recorded
// in per-component counters, never torn down). Single-threaded dispatcher
// discipline (spec §5) means every counter here is a plain int64, not an
// atomic: only the dispatcher goroutine ever mutates them.
package stats

import "fmt"

// LinkCounters accumulates the error taxonomy of spec §7 for one
// connection.
type LinkCounters struct {
	MalformedPacket  int64
	NoRoute          int64
	HopLimitExceeded int64
	PitOverflow      int64
	SendFailed       int64
}

// CacheCounters tracks content-store lookup outcomes.
type CacheCounters struct {
	Hits   int64
	Misses int64
	Puts   int64
	Evicts int64
}

// HitRate returns Hits/(Hits+Misses), or 0 if there have been no lookups
// yet.
func (c CacheCounters) HitRate() float64 {
	total := c.Hits + c.Misses
	if total == 0 {
		return 0
	}
	return float64(c.Hits) / float64(total)
}

// Registry owns every link's counters plus the single process-wide cache
// counters, keyed the same way internal/connection.Table keys connections.
type Registry struct {
	Links map[uint32]*LinkCounters
	Cache CacheCounters
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{Links: make(map[uint32]*LinkCounters)}
}

// Link returns the counters for connID, creating them on first use.
func (r *Registry) Link(connID uint32) *LinkCounters {
	c, ok := r.Links[connID]
	if !ok {
		c = &LinkCounters{}
		r.Links[connID] = c
	}
	return c
}

// Forget drops connID's counters, called by the listeners (internal/listener)
// when a connection's read loop tears it down, so the registry doesn't grow
// unboundedly across connection churn.
func (r *Registry) Forget(connID uint32) {
	delete(r.Links, connID)
}

// humanCount renders a count with a K/M/G suffix, following
// ingest/rates.go's HumanCount scaling thresholds.
func humanCount(v int64) string {
	f := float64(v)
	switch {
	case f < 1000:
		return fmt.Sprintf("%d", v)
	case f < 1000*1000:
		return fmt.Sprintf("%.2fK", f/1000)
	case f < 1000*1000*1000:
		return fmt.Sprintf("%.2fM", f/(1000*1000))
	default:
		return fmt.Sprintf("%.2fG", f/(1000*1000*1000))
	}
}

// String renders a link's counters in a compact human-readable form, for
// the CLI/status surfaces.
func (c LinkCounters) String() string {
	return fmt.Sprintf("malformed=%s noroute=%s hoplimit=%s pitoverflow=%s sendfailed=%s",
		humanCount(c.MalformedPacket), humanCount(c.NoRoute), humanCount(c.HopLimitExceeded),
		humanCount(c.PitOverflow), humanCount(c.SendFailed))
}

// String renders the cache counters in a compact human-readable form.
func (c CacheCounters) String() string {
	return fmt.Sprintf("hits=%s misses=%s puts=%s evicts=%s rate=%.1f%%",
		humanCount(c.Hits), humanCount(c.Misses), humanCount(c.Puts), humanCount(c.Evicts), c.HitRate()*100)
}
