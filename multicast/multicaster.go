package multicast

import (
	"sort"
	"time"

	"github.com/Arceliar/phony"

	"github.com/vlcore/engine/identity"
)

// DefaultFanoutCap and DefaultLikeRefresh are spec.md §4.5's "fanout cap
// ~32" and "T_likeRefresh≈300s".
const (
	DefaultFanoutCap   = 32
	DefaultLikeRefresh = 300 * time.Second
	// DefaultGatherThreshold is how few known subscribers triggers a
	// MULTICAST_GATHER to an upstream peer, per spec.md §4.5.
	DefaultGatherThreshold = DefaultFanoutCap
	// DefaultSubscriberTTL drops a subscriber that hasn't refreshed its
	// LIKE in this long, so churned-away members eventually stop
	// receiving fanout traffic.
	DefaultSubscriberTTL = 2 * DefaultLikeRefresh
)

// Multicaster tracks, for every (network, group) this node knows about,
// which remote addresses have advertised a subscription, and which groups
// this node itself subscribes to (spec.md §4.5).
type Multicaster struct {
	phony.Inbox

	local identity.Address

	fanoutCap       int
	likeRefresh     time.Duration
	gatherThreshold int
	subscriberTTL   time.Duration

	known   map[subscriberKey]map[identity.Address]*Subscriber
	mySubs  map[subscriberKey]time.Time // group -> last time we sent our own LIKE
}

func New(local identity.Address) *Multicaster {
	return &Multicaster{
		local:           local,
		fanoutCap:       DefaultFanoutCap,
		likeRefresh:     DefaultLikeRefresh,
		gatherThreshold: DefaultGatherThreshold,
		subscriberTTL:   DefaultSubscriberTTL,
		known:           make(map[subscriberKey]map[identity.Address]*Subscriber),
		mySubs:          make(map[subscriberKey]time.Time),
	}
}

// Subscribe records local interest in (networkID, g), due for an
// immediate MULTICAST_LIKE; DueForRefresh will return it right away.
func (m *Multicaster) Subscribe(from phony.Actor, networkID uint64, g Group) {
	phony.Block(m, func() {
		key := subscriberKey{network: networkID, group: g.key()}
		m.mySubs[key] = time.Time{} // zero time is always "due"
	})
}

// Unsubscribe drops local interest in (networkID, g).
func (m *Multicaster) Unsubscribe(from phony.Actor, networkID uint64, g Group) {
	phony.Block(m, func() {
		delete(m.mySubs, subscriberKey{network: networkID, group: g.key()})
	})
}

// DueForRefresh returns every locally subscribed group whose LIKE hasn't
// been (re)sent within likeRefresh, per spec.md §4.5: "MULTICAST_LIKE sent
// on join/new-subscription/every T_likeRefresh≈300s".
func (m *Multicaster) DueForRefresh(now time.Time) (due []Subscription) {
	phony.Block(m, func() {
		for key, last := range m.mySubs {
			if now.Sub(last) < m.likeRefresh {
				continue
			}
			due = append(due, subscriptionFromKey(key))
		}
	})
	return
}

// MarkRefreshed records that a LIKE for (networkID, g) was just sent.
func (m *Multicaster) MarkRefreshed(from phony.Actor, networkID uint64, g Group, now time.Time) {
	phony.Block(m, func() {
		key := subscriberKey{network: networkID, group: g.key()}
		if _, subscribed := m.mySubs[key]; subscribed {
			m.mySubs[key] = now
		}
	})
}

// Subscription names one (network, group) pair a caller needs to act on.
type Subscription struct {
	NetworkID uint64
	Group     Group
}

func subscriptionFromKey(key subscriberKey) Subscription {
	var g Group
	copy(g.MAC[:], key.group.mac[:])
	g.ADI = beUint32(key.group.adi)
	return Subscription{NetworkID: key.network, Group: g}
}

// NoteLike records that subscriber has advertised interest in
// (networkID, g), refreshing its last-seen time if already known.
func (m *Multicaster) NoteLike(from phony.Actor, networkID uint64, g Group, subscriber identity.Address, now time.Time) {
	phony.Block(m, func() {
		key := subscriberKey{network: networkID, group: g.key()}
		set, ok := m.known[key]
		if !ok {
			set = make(map[identity.Address]*Subscriber)
			m.known[key] = set
		}
		set[subscriber] = &Subscriber{Address: subscriber, LastSeen: now.UnixNano()}
	})
}

// NoteGathered bulk-records subscribers learned from a MULTICAST_GATHER
// reply, without disturbing entries already fresher than now.
func (m *Multicaster) NoteGathered(from phony.Actor, networkID uint64, g Group, subs []identity.Address, now time.Time) {
	phony.Block(m, func() {
		key := subscriberKey{network: networkID, group: g.key()}
		set, ok := m.known[key]
		if !ok {
			set = make(map[identity.Address]*Subscriber)
			m.known[key] = set
		}
		for _, a := range subs {
			if existing, present := set[a]; present && existing.LastSeen > now.UnixNano() {
				continue
			}
			set[a] = &Subscriber{Address: a, LastSeen: now.UnixNano()}
		}
	})
}

// KnownSubscribers returns a snapshot of every subscriber currently known
// for (networkID, g).
func (m *Multicaster) KnownSubscribers(networkID uint64, g Group) []Subscriber {
	var out []Subscriber
	phony.Block(m, func() {
		set := m.known[subscriberKey{network: networkID, group: g.key()}]
		for _, s := range set {
			out = append(out, *s)
		}
	})
	return out
}

// Fanout picks up to the fanout cap of the most-recently-seen known
// subscribers of (networkID, g) to relay a MULTICAST_FRAME to directly,
// excluding the local address (spec.md §4.5: "fanout cap ~32 recipients
// biased toward freshly-seen").
func (m *Multicaster) Fanout(networkID uint64, g Group) []identity.Address {
	subs := m.KnownSubscribers(networkID, g)
	sort.Slice(subs, func(i, j int) bool { return subs[i].LastSeen > subs[j].LastSeen })
	out := make([]identity.Address, 0, m.fanoutCap)
	for _, s := range subs {
		if s.Address == m.local {
			continue
		}
		if len(out) >= m.fanoutCap {
			break
		}
		out = append(out, s.Address)
	}
	return out
}

// NeedsGather reports whether too few subscribers are known for
// (networkID, g) and a MULTICAST_GATHER should be sent upstream to find
// more, per spec.md §4.5.
func (m *Multicaster) NeedsGather(networkID uint64, g Group) bool {
	return len(m.KnownSubscribers(networkID, g)) < m.gatherThreshold
}

// Expire drops subscribers that haven't refreshed within subscriberTTL.
func (m *Multicaster) Expire(now time.Time) {
	phony.Block(m, func() {
		cutoff := now.Add(-m.subscriberTTL).UnixNano()
		for key, set := range m.known {
			for addr, s := range set {
				if s.LastSeen < cutoff {
					delete(set, addr)
				}
			}
			if len(set) == 0 {
				delete(m.known, key)
			}
		}
	})
}

func beUint32(b [4]byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
