package listener

import (
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/PARC/Metis/internal/connection"
	"github.com/PARC/Metis/internal/dispatcher"
	"github.com/PARC/Metis/internal/stats"
)

func TestLocalListenerFramesAndDelivers(t *testing.T) {
	disp := dispatcher.NewVirtualDispatcher()
	sink := newRecordingSink()
	table := connection.NewTable()
	st := stats.NewRegistry()

	sockPath := filepath.Join(t.TempDir(), "metis.sock")
	l, err := ListenLocal(sockPath, disp, sink, table, st, nil)
	if err != nil {
		t.Fatalf("ListenLocal: %v", err)
	}
	defer l.Close()
	l.Serve()

	conn, err := net.Dial("unix", sockPath)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	pkt := buildTestInterest(t)
	if _, err := conn.Write(pkt); err != nil {
		t.Fatalf("Write: %v", err)
	}

	select {
	case msg := <-sink.ch:
		if _, ok := msg.Name(); !ok {
			t.Fatal("expected delivered message to carry a name")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivered message")
	}

	if table.Len() != 1 {
		t.Fatalf("expected 1 registered connection, got %d", table.Len())
	}
	for _, c := range table.Entries() {
		if !c.IsLocal() {
			t.Fatal("expected local listener's connection to report IsLocal() == true")
		}
	}
}
