package vl1

import (
	"time"

	"github.com/Arceliar/phony"

	"github.com/vlcore/engine/identity"
)

// ExpireState sweeps the dedup table, the reassembly table, and parked RX
// packets whose WHOIS never answered in time (spec.md §5's
// processBackgroundTasks step 2: "expire dead paths and parked RX"; dead
// paths themselves are expired per-peer by the caller, since only it
// knows every live Peer).
func (s *Switch) ExpireState(from phony.Actor, now time.Time) {
	phony.Block(s, func() {
		s.dedup.Expire(now)
		s.reasm.Expire(now)
		s.rxWhois.Expire(now)
	})
}

// HelloIfDue sends p a HELLO on its best path if one is due, or, if no
// path is active yet and the probe interval has elapsed, a HELLO probe to
// each of p's candidate paths. node calls this once per known peer during
// processBackgroundTasks' HELLO-refresh step.
func (s *Switch) HelloIfDue(from phony.Actor, dest identity.Address) {
	phony.Block(s, func() {
		p, _, ok := s.top.Lookup(dest)
		if !ok {
			return
		}
		now := time.Now()
		if best := p.BestPath(); best != nil {
			if p.DueForHello(now, s.helloEvery) {
				s.sendHello(p, best.Local, best.Remote)
			}
			return
		}
		if p.ShouldProbeHello(now, s.helloProbe) {
			for _, candidate := range p.Paths() {
				s.sendHello(p, candidate.Local, candidate.Remote)
			}
			p.NoteHelloSent(s, now)
		}
	})
}
