// Package config loads and validates metisd's configuration file. The
// shape and loading mechanics follow gravwell's ingester config package:
// an ini-style file with a mandatory [Global] section plus any number of
// named sub-sections, parsed with gcfg and verified before use.
//
//	var c Config
//	if err := config.LoadConfigFile(&c, path); err != nil {
//		return err
//	}
//	if err := c.Verify(); err != nil {
//		return err
//	}
package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultLogLevel = `INFO`

	DefaultPITCapacity     = 65536
	DefaultCacheCapacity   = 16384
	DefaultCacheLifetime   = 30 * time.Second
	DefaultEtherSnapLen    = 65535
	DefaultStatusBind      = `127.0.0.1:8089`
)

var (
	ErrNoListeners          = errors.New("no listeners configured")
	ErrMissingBind          = errors.New("listener is missing a Bind-String")
	ErrMissingIface         = errors.New("ether listener is missing an Interface")
	ErrInvalidEtherType     = errors.New("ether listener has an invalid Ether-Type")
	ErrInvalidLogLevel      = errors.New("invalid Log-Level")
	ErrInvalidRoute         = errors.New("route is missing a Prefix or Nexthop-Connection")
	ErrGlobalSectionMissing = errors.New("Global config section not found")
)

// Config is metisd's top-level configuration. Global carries
// dispatcher/PIT/content-store tunables shared by every listener; the four
// listener maps (TCP, UDP, Local, Ether) describe the forwarder's external
// interfaces (spec.md §6) and Route lists its static routes, the same
// way SimpleRelay's config enumerates a map of named listeners per
// transport.
type Config struct {
	Global  Global
	TCP     map[string]*TCPListenerConfig
	UDP     map[string]*UDPListenerConfig
	Local   map[string]*LocalListenerConfig
	Ether   map[string]*EtherListenerConfig
	Route   map[string]*RouteConfig
}

// Global holds process-wide tunables: log destination/level, the
// generated-if-absent instance identity, and the core data-structure
// capacities (spec §4.3/§4.5).
type Global struct {
	Log_File              string `json:",omitempty"`
	Log_Level             string `json:",omitempty"`
	Forwarder_UUID         string `json:",omitempty"`
	PIT_Capacity           int    `json:",omitempty"`
	Cache_Capacity         int    `json:",omitempty"`
	Cache_Default_Lifetime string `json:",omitempty"`
	Status_Bind            string `json:",omitempty"`
	Debug                  bool   `json:",omitempty"`
}

// TCPListenerConfig binds a stream listener per internal/listener's
// ListenTCP.
type TCPListenerConfig struct {
	Bind_String string
}

// UDPListenerConfig binds a datagram listener per internal/listener's
// ListenUDP.
type UDPListenerConfig struct {
	Bind_String string
}

// LocalListenerConfig binds a PF_LOCAL stream listener at a filesystem
// socket path per internal/listener's ListenLocal.
type LocalListenerConfig struct {
	Socket_Path string
}

// EtherListenerConfig binds a raw Ethernet listener per internal/listener's
// ListenEther. Ether_Type is the hex-encoded (e.g. "0x0801") or decimal
// ethertype to filter on; Local_MAC lets an operator pin the source MAC
// used on transmit when the interface has more than one.
type EtherListenerConfig struct {
	Interface string
	Ether_Type string
	Local_MAC  string
	Snap_Len   int `json:",omitempty"`
}

// RouteConfig seeds a static FIB entry at startup, naming the connection by
// the section key of one of the TCP/UDP/Local/Ether listeners above, or by
// an outbound target added later via the CPI (spec §6.4).
type RouteConfig struct {
	Prefix              string
	Nexthop_Connection  string
	Cost                int `json:",omitempty"`
}

// Verify normalizes defaults and checks the configuration for sense,
// mirroring IngestConfig.Verify's load-defaults-then-check shape.
func (c *Config) Verify() error {
	c.Global.loadDefaults()

	if c.Global.Forwarder_UUID != `` {
		if _, err := uuid.Parse(c.Global.Forwarder_UUID); err != nil {
			return fmt.Errorf("malformed Forwarder-UUID %v: %w", c.Global.Forwarder_UUID, err)
		}
	}

	c.Global.Log_Level = strings.ToUpper(strings.TrimSpace(c.Global.Log_Level))
	switch c.Global.Log_Level {
	case `OFF`, `DEBUG`, `INFO`, `WARN`, `ERROR`, `FATAL`:
	default:
		return ErrInvalidLogLevel
	}

	if len(c.TCP)+len(c.UDP)+len(c.Local)+len(c.Ether) == 0 {
		return ErrNoListeners
	}
	for k, v := range c.TCP {
		if v == nil || v.Bind_String == `` {
			return fmt.Errorf("tcp %q: %w", k, ErrMissingBind)
		}
	}
	for k, v := range c.UDP {
		if v == nil || v.Bind_String == `` {
			return fmt.Errorf("udp %q: %w", k, ErrMissingBind)
		}
	}
	for k, v := range c.Local {
		if v == nil || v.Socket_Path == `` {
			return fmt.Errorf("local %q: %w", k, ErrMissingBind)
		}
	}
	for k, v := range c.Ether {
		if v == nil || v.Interface == `` {
			return fmt.Errorf("ether %q: %w", k, ErrMissingIface)
		}
		if _, err := v.etherType(); err != nil {
			return fmt.Errorf("ether %q: %w", k, ErrInvalidEtherType)
		}
		if v.Snap_Len == 0 {
			v.Snap_Len = DefaultEtherSnapLen
		}
	}
	for k, v := range c.Route {
		if v == nil || v.Prefix == `` || v.Nexthop_Connection == `` {
			return fmt.Errorf("route %q: %w", k, ErrInvalidRoute)
		}
	}
	return nil
}

func (g *Global) loadDefaults() {
	if g.Log_Level == `` {
		g.Log_Level = defaultLogLevel
	}
	if g.PIT_Capacity == 0 {
		g.PIT_Capacity = DefaultPITCapacity
	}
	if g.Cache_Capacity == 0 {
		g.Cache_Capacity = DefaultCacheCapacity
	}
	if g.Cache_Default_Lifetime == `` {
		g.Cache_Default_Lifetime = DefaultCacheLifetime.String()
	}
	if g.Status_Bind == `` {
		g.Status_Bind = DefaultStatusBind
	}
}

// CacheDefaultLifetime parses Cache-Default-Lifetime as a duration,
// returning DefaultCacheLifetime if it is unset or unparseable.
func (g *Global) CacheDefaultLifetime() time.Duration {
	if g.Cache_Default_Lifetime == `` {
		return DefaultCacheLifetime
	}
	d, err := time.ParseDuration(g.Cache_Default_Lifetime)
	if err != nil {
		return DefaultCacheLifetime
	}
	return d
}

// UUID returns the forwarder's instance identity. If the config file did
// not carry one, the caller (cmd/metisd) is responsible for generating one
// and persisting it with SetForwarderUUID.
func (g *Global) UUID() (id uuid.UUID, ok bool) {
	if g.Forwarder_UUID == `` {
		return
	}
	var err error
	if id, err = uuid.Parse(g.Forwarder_UUID); err != nil {
		return uuid.UUID{}, false
	}
	return id, true
}

// etherType parses Ether_Type, accepting either a "0x"-prefixed hex value
// or a decimal one, matching the loader's own ParseUint64 convention.
func (e *EtherListenerConfig) etherType() (uint16, error) {
	s := strings.TrimSpace(e.Ether_Type)
	if s == `` {
		return 0, errors.New("empty Ether-Type")
	}
	v, err := ParseUint64(s)
	if err != nil {
		return 0, err
	}
	if v > 0xffff {
		return 0, fmt.Errorf("Ether-Type %v overflows uint16", v)
	}
	return uint16(v), nil
}

// EtherType returns the parsed ethertype, valid only after Verify has
// succeeded.
func (e *EtherListenerConfig) EtherType() uint16 {
	v, _ := e.etherType()
	return v
}

// AppendDefaultPort appends defPort to bstr if bstr does not already name
// a port, matching gravwell's helper of the same name in ingest/config.
func AppendDefaultPort(bstr string, defPort uint16) string {
	if ip := net.ParseIP(bstr); ip != nil {
		return net.JoinHostPort(bstr, fmt.Sprintf("%d", defPort))
	}
	if _, _, err := net.SplitHostPort(bstr); err != nil {
		if aerr, ok := err.(*net.AddrError); ok && aerr.Err == "missing port in address" {
			return fmt.Sprintf("%s:%d", bstr, defPort)
		}
	}
	return bstr
}
