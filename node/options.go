package node

import "time"

// Option configures a Node at construction time, following the teacher's
// functional-options shape (network/config.go) generalized from
// per-connection tunables to per-node ones.
type Option func(*Node)

// WithOnlineTimeout overrides T_online, the window within which at least
// one root peer must have had an authenticated receive for the node to
// consider itself ONLINE (spec.md §6).
func WithOnlineTimeout(d time.Duration) Option {
	return func(n *Node) { n.onlineTimeout = d }
}
