package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

func sampleConfig() string {
	return `
[global]
log-level = INFO
pit-capacity = 100

[tcp "listen"]
bind-string = "0.0.0.0:9695"

[udp "listen"]
bind-string = "0.0.0.0:9695"

[local "listen"]
socket-path = "/tmp/metis.sock"

[ether "listen"]
interface = "eth0"
ether-type = "0x0801"

[route "default"]
prefix = "ccnx:/"
nexthop-connection = "listen"
`
}

func TestLoadAndVerify(t *testing.T) {
	var c Config
	if err := LoadConfigBytes(&c, []byte(sampleConfig())); err != nil {
		t.Fatalf("LoadConfigBytes: %v", err)
	}
	if err := c.Verify(); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if c.Global.PIT_Capacity != 100 {
		t.Fatalf("expected PIT-Capacity 100, got %d", c.Global.PIT_Capacity)
	}
	if c.Global.Cache_Capacity != DefaultCacheCapacity {
		t.Fatalf("expected default cache capacity, got %d", c.Global.Cache_Capacity)
	}
	tcp, ok := c.TCP["listen"]
	if !ok || tcp.Bind_String != "0.0.0.0:9695" {
		t.Fatalf("expected tcp listener section, got %+v", c.TCP)
	}
	eth, ok := c.Ether["listen"]
	if !ok {
		t.Fatal("expected ether listener section")
	}
	if et := eth.EtherType(); et != 0x0801 {
		t.Fatalf("expected parsed ethertype 0x0801, got %#x", et)
	}
}

func TestVerifyRejectsNoListeners(t *testing.T) {
	var c Config
	if err := LoadConfigBytes(&c, []byte("[global]\nlog-level=INFO\n")); err != nil {
		t.Fatalf("LoadConfigBytes: %v", err)
	}
	if err := c.Verify(); err != ErrNoListeners {
		t.Fatalf("expected ErrNoListeners, got %v", err)
	}
}

func TestVerifyRejectsBadLogLevel(t *testing.T) {
	var c Config
	body := sampleConfig() + "\n"
	if err := LoadConfigBytes(&c, []byte(body)); err != nil {
		t.Fatalf("LoadConfigBytes: %v", err)
	}
	c.Global.Log_Level = "NOPE"
	if err := c.Verify(); err != ErrInvalidLogLevel {
		t.Fatalf("expected ErrInvalidLogLevel, got %v", err)
	}
}

func TestVerifyRejectsMissingEtherInterface(t *testing.T) {
	var c Config
	if err := LoadConfigBytes(&c, []byte(`
[global]
[ether "bad"]
ether-type = "0x0801"
`)); err != nil {
		t.Fatalf("LoadConfigBytes: %v", err)
	}
	if err := c.Verify(); err == nil {
		t.Fatal("expected error for ether listener missing Interface")
	}
}

func TestSetForwarderUUIDPersistsAndReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "metis.conf")
	body := sampleConfig()
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	var c Config
	if err := LoadConfigFile(&c, path); err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	if err := c.Verify(); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if _, ok := c.Global.UUID(); ok {
		t.Fatal("expected no UUID set yet")
	}

	id := uuid.New()
	if err := c.Global.SetForwarderUUID(id, path); err != nil {
		t.Fatalf("SetForwarderUUID: %v", err)
	}
	if got, ok := c.Global.UUID(); !ok || got != id {
		t.Fatalf("expected in-memory UUID %v, got %v (ok=%v)", id, got, ok)
	}

	var reloaded Config
	if err := LoadConfigFile(&reloaded, path); err != nil {
		t.Fatalf("reload LoadConfigFile: %v", err)
	}
	if err := reloaded.Verify(); err != nil {
		t.Fatalf("reload Verify: %v", err)
	}
	if got, ok := reloaded.Global.UUID(); !ok || got != id {
		t.Fatalf("expected persisted UUID %v after reload, got %v (ok=%v)", id, got, ok)
	}
}
