// Package main is metisd-status, a thin standalone CLI that polls a
// running metisd's status surface (spec §6.6) from outside its process:
// one JSON snapshot by default, or a live feed over the websocket push
// endpoint with -watch.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"github.com/PARC/Metis/internal/config"
	"github.com/PARC/Metis/internal/status"
)

var (
	bind  = flag.String("bind", config.DefaultStatusBind, "Address:port of the metisd status surface to poll")
	watch = flag.Bool("watch", false, "Stream live snapshots over the status websocket feed instead of one request")
)

func main() {
	flag.Parse()

	if *watch {
		if err := streamSnapshots(*bind); err != nil {
			fmt.Fprintf(os.Stderr, "metisd-status: %v\n", err)
			os.Exit(1)
		}
		return
	}

	snap, err := fetchSnapshot(*bind)
	if err != nil {
		fmt.Fprintf(os.Stderr, "metisd-status: %v\n", err)
		os.Exit(1)
	}
	printSnapshot(snap)
}

func fetchSnapshot(bind string) (status.Snapshot, error) {
	var snap status.Snapshot
	u := url.URL{Scheme: "http", Host: bind, Path: "/status"}
	resp, err := http.Get(u.String())
	if err != nil {
		return snap, fmt.Errorf("fetching %s: %w", u.String(), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return snap, fmt.Errorf("%s returned %s", u.String(), resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return snap, fmt.Errorf("decoding status response: %w", err)
	}
	return snap, nil
}

func streamSnapshots(bind string) error {
	u := url.URL{Scheme: "ws", Host: bind, Path: "/status/ws"}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", u.String(), err)
	}
	defer conn.Close()

	for {
		var snap status.Snapshot
		if err := conn.ReadJSON(&snap); err != nil {
			return fmt.Errorf("reading snapshot: %w", err)
		}
		printSnapshot(snap)
	}
}

func printSnapshot(snap status.Snapshot) {
	fmt.Printf("%s  connections=%d pit=%d routes=%d cache(hits=%d misses=%d rate=%.2f%%) debug=%v\n",
		snap.CollectedAt.Format(time.RFC3339),
		snap.Connections, snap.PITEntries, snap.RouteCount,
		snap.Cache.Hits, snap.Cache.Misses, snap.Cache.HitRate*100,
		snap.Debug)
}
