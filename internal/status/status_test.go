package status

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PARC/Metis/internal/cpi"
)

func testSources() Sources {
	return Sources{
		ConnectionCount: func() int { return 3 },
		PITEntryCount:   func() int { return 7 },
		RouteCount:      func() int { return 2 },
		CacheStats:      func() cpi.CacheStatsSnapshot { return cpi.CacheStatsSnapshot{Hits: 5, Misses: 1} },
		Debug:           func() bool { return true },
	}
}

func TestCollectorCollect(t *testing.T) {
	c := NewCollector(testSources())
	snap := c.Collect()
	assert.Equal(t, 3, snap.Connections)
	assert.Equal(t, 7, snap.PITEntries)
	assert.Equal(t, 2, snap.RouteCount)
	assert.EqualValues(t, 5, snap.Cache.Hits)
	assert.True(t, snap.Debug)
	assert.False(t, snap.CollectedAt.IsZero())
}

func TestServerHandlesStatusJSON(t *testing.T) {
	c := NewCollector(testSources())
	srv := NewServer(c, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var snap Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, 3, snap.Connections)
	assert.Equal(t, 2, snap.RouteCount)
}

func TestServerPushesWebsocketSnapshots(t *testing.T) {
	c := NewCollector(testSources())
	srv := NewServer(c, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/status/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var snap Snapshot
	require.NoError(t, conn.ReadJSON(&snap))
	assert.Equal(t, 7, snap.PITEntries)
}
