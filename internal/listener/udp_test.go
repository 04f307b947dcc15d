package listener

import (
	"net"
	"testing"
	"time"

	"github.com/PARC/Metis/internal/connection"
	"github.com/PARC/Metis/internal/dispatcher"
	"github.com/PARC/Metis/internal/stats"
)

func TestUDPListenerCreatesPeerConnectionAndDelivers(t *testing.T) {
	disp := dispatcher.NewVirtualDispatcher()
	sink := newRecordingSink()
	table := connection.NewTable()
	st := stats.NewRegistry()

	l, err := ListenUDP("127.0.0.1:0", disp, sink, table, st, nil)
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	defer l.Close()
	l.Serve()

	client, err := net.Dial("udp", l.conn.LocalAddr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	pkt := buildTestInterest(t)
	if _, err := client.Write(pkt); err != nil {
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

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && table.Len() == 0 {
		time.Sleep(10 * time.Millisecond)
	}
	if table.Len() != 1 {
		t.Fatalf("expected 1 registered peer connection, got %d", table.Len())
	}

	// A second datagram from the same peer must reuse the existing
	// connection rather than registering a new one.
	if _, err := client.Write(pkt); err != nil {
		t.Fatalf("Write: %v", err)
	}
	select {
	case <-sink.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for second delivered message")
	}
	if table.Len() != 1 {
		t.Fatalf("expected peer connection count to stay at 1, got %d", table.Len())
	}
}
