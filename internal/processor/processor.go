// Package processor implements the message processor pipeline (spec §4.7):
// the single on_message entry point every listener calls after a packet is
// framed, dispatching to the CS → PIT → FIB decision tree for Interests and
// the PIT-satisfy → forward → cache path for Content Objects.
package processor

import (
	"errors"

	"github.com/PARC/Metis/internal/connection"
	"github.com/PARC/Metis/internal/cstore"
	"github.com/PARC/Metis/internal/dispatcher"
	"github.com/PARC/Metis/internal/fib"
	"github.com/PARC/Metis/internal/metislog"
	"github.com/PARC/Metis/internal/pit"
	"github.com/PARC/Metis/internal/stats"
	"github.com/PARC/Metis/internal/wireformat"
)

// ErrNoRoute is recorded (not returned to the listener; spec §7 "a per-link
// error never tears down the forwarder") when an Interest's name has no
// FIB match.
var ErrNoRoute = errors.New("processor: no route")

// ControlHandler receives Control-kind messages, forwarding them to the
// out-of-scope configuration collaborator (spec §4.7: "Control → forward to
// configuration collaborator").
type ControlHandler func(msg *wireformat.Message)

// Processor wires the CS, PIT, FIB and connection table together behind the
// single on_message entry point. All of its state is owned by the
// dispatcher goroutine; nothing here takes a lock (spec §5).
type Processor struct {
	CS    *cstore.Store
	PIT   *pit.Table
	FIB   *fib.Table
	Conns *connection.Table
	Stats *stats.Registry
	Log   *metislog.Logger

	// Now returns the current dispatcher tick.
	Now func() wireformat.Tick

	// DefaultInterestLifetimeTicks is used for interests carrying no
	// Interest-Lifetime TLV.
	DefaultInterestLifetimeTicks wireformat.Tick

	// DefaultCacheLifetimeTicks is used for cacheable objects carrying
	// neither Expiry-Time nor Recommended-Cache-Time.
	DefaultCacheLifetimeTicks wireformat.Tick

	// LogDroppedInterestReturn enables optional debug logging of dropped
	// InterestReturn messages (spec §4.7: "drop (optional per-policy
	// logging)").
	LogDroppedInterestReturn bool

	// OnControl handles Control-kind messages. May be nil, in which case
	// Control messages are silently dropped (the configuration
	// collaborator is out of scope per spec §1).
	OnControl ControlHandler
}

// OnMessage is the single entry point every listener calls once a packet
// has been framed into a Message, per spec §4.7.
func (p *Processor) OnMessage(msg *wireformat.Message) {
	switch msg.Skeleton.Kind {
	case wireformat.KindControl:
		if p.OnControl != nil {
			p.OnControl(msg)
		}
	case wireformat.KindInterestReturn:
		if p.LogDroppedInterestReturn && p.Log != nil {
			p.Log.Debug("dropped InterestReturn", metislog.KV("conn", msg.IngressConn))
		}
	case wireformat.KindContentObject:
		p.processObject(msg)
	case wireformat.KindInterest:
		p.processInterest(msg)
	}
}

func (p *Processor) processInterest(msg *wireformat.Message) {
	name, ok := msg.Name()
	if !ok {
		return // malformed; Skeleton.Build already rejects Interests without a Name
	}
	keyID, _ := msg.KeyID()
	objHash, _ := msg.ObjectHashField()
	now := p.Now()

	if cached, ok := p.CS.Match(name, keyID, objHash, now); ok {
		p.Stats.Cache.Hits++
		p.sendTo(msg.IngressConn, cached)
		return
	}
	p.Stats.Cache.Misses++

	lifetime := p.DefaultInterestLifetimeTicks
	if millis, ok := msg.InterestLifetimeMillis(); ok {
		lifetime = dispatcher.MillisToTicks(millis)
	}

	verdict, entry, err := p.PIT.Receive(name, keyID, objHash, msg.IngressConn, now, lifetime)
	if err != nil {
		p.Stats.Link(uint32(msg.IngressConn)).PitOverflow++
		return
	}
	if verdict == pit.VerdictAggregated {
		return
	}

	nexthops, ok := p.FIB.Lookup(name)
	if !ok {
		p.PIT.Remove(entry)
		p.Stats.Link(uint32(msg.IngressConn)).NoRoute++
		if p.Log != nil {
			p.Log.Debug("no route", metislog.KV("conn", msg.IngressConn))
		}
		return
	}

	multi := len(nexthops) > 1
	for _, nh := range nexthops {
		if _, already := entry.Egress[nh.Connection]; already {
			continue
		}
		conn := p.Conns.FindByID(nh.Connection)
		if conn == nil || !conn.IsUp() {
			continue
		}

		out := msg
		if multi {
			out = msg.Clone()
		}
		if hl, present := out.HopLimit(); present {
			if hl == 0 {
				p.Stats.Link(uint32(nh.Connection)).HopLimitExceeded++
				continue
			}
			out.SetHopLimit(hl - 1)
			if hl-1 == 0 && !conn.IsLocal() {
				p.Stats.Link(uint32(nh.Connection)).HopLimitExceeded++
				continue
			}
		}
		if err := conn.Send(out); err != nil {
			p.Stats.Link(uint32(nh.Connection)).SendFailed++
			continue
		}
		entry.Egress[nh.Connection] = struct{}{}
	}
}

func (p *Processor) processObject(msg *wireformat.Message) {
	name, ok := msg.Name()
	if !ok {
		return
	}
	keyID, _ := msg.KeyID()
	objHash, _ := msg.ObjectHashField()

	egress := p.PIT.Satisfy(name, keyID, objHash)
	if len(egress) == 0 {
		return // unsolicited
	}

	localSent := false
	for c := range egress {
		conn := p.Conns.FindByID(c)
		if conn == nil || !conn.IsUp() {
			continue
		}
		if conn.IsLocal() {
			if localSent {
				continue // at-most-one-copy rule for local connections
			}
			localSent = true
		}
		if err := conn.Send(msg); err != nil {
			p.Stats.Link(uint32(c)).SendFailed++
		}
	}

	if p.cacheable(msg) {
		expiry := p.Now() + p.cacheLifetime(msg)
		if err := p.CS.Put(msg, name, keyID, p.objectHash(msg), expiry); err == nil {
			p.Stats.Cache.Puts++
		}
	}
}

// cacheable implements spec §4.7's "Cacheability" rule: cacheable unless
// cache-time == 0 or an explicit do-not-cache TLV is present.
func (p *Processor) cacheable(msg *wireformat.Message) bool {
	if msg.DoNotCache() {
		return false
	}
	if msg.CacheControlZero() {
		return false
	}
	return true
}

// cacheLifetime picks recommended-cache-time, then expiry-time, falling
// back to the configured global default, per spec §4.7.
func (p *Processor) cacheLifetime(msg *wireformat.Message) wireformat.Tick {
	if ms, ok := msg.RecommendedCacheTimeMillis(); ok {
		return dispatcher.MillisToTicks(ms)
	}
	if ms, ok := msg.ExpiryTimeMillis(); ok {
		return dispatcher.MillisToTicks(ms)
	}
	return p.DefaultCacheLifetimeTicks
}

func (p *Processor) objectHash(msg *wireformat.Message) []byte {
	h := msg.Skeleton.ComputeObjectHash(msg.Buf)
	return h[:]
}

func (p *Processor) sendTo(connID wireformat.ConnectionID, msg *wireformat.Message) {
	conn := p.Conns.FindByID(connID)
	if conn == nil || !conn.IsUp() {
		return
	}
	if err := conn.Send(msg); err != nil {
		p.Stats.Link(uint32(connID)).SendFailed++
	}
}
