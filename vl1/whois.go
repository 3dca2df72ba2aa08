package vl1

import (
	"net"
	"time"

	"github.com/vlcore/engine/identity"
)

// parkedPacket is a raw inbound packet received from an address the
// switch cannot yet resolve to a Peer. It is replayed once the WHOIS for
// its source completes, or dropped once rxTTL elapses (spec.md §4.3).
type parkedPacket struct {
	local  net.Addr
	remote net.Addr
	raw    []byte
	queued time.Time
}

type pendingWhois struct {
	target   identity.Address
	sentAt   time.Time
	waiting  []parkedPacket
}

// whoisTable tracks outstanding WHOIS queries and the packets parked
// behind them.
type whoisTable struct {
	rxTTL    time.Duration
	retry    time.Duration
	pending  map[identity.Address]*pendingWhois
}

func newWhoisTable(rxTTL, retry time.Duration) *whoisTable {
	return &whoisTable{rxTTL: rxTTL, retry: retry, pending: make(map[identity.Address]*pendingWhois)}
}

// Park records a raw packet from an unresolved source and reports whether
// a fresh WHOIS should be sent (true the first time, or after retry has
// elapsed with no answer).
func (w *whoisTable) Park(now time.Time, source identity.Address, local, remote net.Addr, raw []byte) (shouldQuery bool) {
	p, ok := w.pending[source]
	if !ok {
		p = &pendingWhois{target: source}
		w.pending[source] = p
		shouldQuery = true
	} else if now.Sub(p.sentAt) >= w.retry {
		shouldQuery = true
	}
	if shouldQuery {
		p.sentAt = now
	}
	p.waiting = append(p.waiting, parkedPacket{local: local, remote: remote, raw: raw, queued: now})
	return shouldQuery
}

// Resolve removes and returns the packets parked behind a now-answered
// WHOIS for source.
func (w *whoisTable) Resolve(source identity.Address) []parkedPacket {
	p, ok := w.pending[source]
	if !ok {
		return nil
	}
	delete(w.pending, source)
	return p.waiting
}

// Expire drops parked packets older than rxTTL, and any WHOIS whose
// parked set has gone empty as a result.
func (w *whoisTable) Expire(now time.Time) (expired int) {
	for addr, p := range w.pending {
		kept := p.waiting[:0]
		for _, pkt := range p.waiting {
			if now.Sub(pkt.queued) >= w.rxTTL {
				expired++
				continue
			}
			kept = append(kept, pkt)
		}
		p.waiting = kept
		if len(p.waiting) == 0 {
			delete(w.pending, addr)
		}
	}
	return
}
