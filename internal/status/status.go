// Package status implements the optional HTTP/websocket admin surface of
// spec §6.6: a point-in-time Snapshot of forwarder health, served as JSON
// over GET /status and pushed periodically over a websocket feed for live
// dashboards, grounded on the same "leveled counters summarized for an
// external viewer" shape as the teacher's rates.go, with the websocket
// transport itself grounded on client/websocketRouter's server-side
// upgrade-and-push loop.
package status

import (
	"time"

	"github.com/PARC/Metis/internal/cpi"
)

// Snapshot is the point-in-time admin view of one forwarder instance.
type Snapshot struct {
	Connections int                    `json:"connections"`
	PITEntries  int                    `json:"pit_entries"`
	RouteCount  int                    `json:"route_count"`
	Cache       cpi.CacheStatsSnapshot `json:"cache"`
	Debug       bool                   `json:"debug"`
	CollectedAt time.Time              `json:"collected_at"`
}

// Sources is the subset of the forwarder's live state a Collector reads.
// Holding only these narrow accessors, rather than the full Handler, keeps
// the admin surface from being able to mutate anything it reports on.
type Sources struct {
	ConnectionCount func() int
	PITEntryCount   func() int
	RouteCount      func() int
	CacheStats      func() cpi.CacheStatsSnapshot
	Debug           func() bool
	Now             func() time.Time
}

// Collector builds Snapshots on demand from Sources.
type Collector struct {
	src Sources
}

// NewCollector constructs a Collector over src.
func NewCollector(src Sources) *Collector {
	return &Collector{src: src}
}

// Collect takes a fresh Snapshot.
func (c *Collector) Collect() Snapshot {
	now := time.Now
	if c.src.Now != nil {
		now = c.src.Now
	}
	return Snapshot{
		Connections: c.src.ConnectionCount(),
		PITEntries:  c.src.PITEntryCount(),
		RouteCount:  c.src.RouteCount(),
		Cache:       c.src.CacheStats(),
		Debug:       c.src.Debug(),
		CollectedAt: now(),
	}
}
