package vl2

import (
	"time"

	"github.com/vlcore/engine/identity"
)

// ConfigMaster answers NETWORK_CONFIG_REQUEST on behalf of a network's
// controller (spec.md §4.4; SPEC_FULL.md §6 NEW's `setNetconfMaster` host
// hook). A host can implement this itself (an external controller
// database) or use StaticController for a self-contained network.
type ConfigMaster interface {
	RequestConfig(now time.Time, requester identity.Address, nwid NetworkID, metadata map[string]string) (*NetworkConfig, Status)
}

// StaticController is a minimal in-process ConfigMaster: a fixed member
// allow-list (for private networks) and a static config template, built
// with functional options the way the teacher builds a NetworkConfig
// (network/config.go's Option pattern), generalized here from per-
// connection tunables to per-network ones.
type StaticController struct {
	mtu             int
	private         bool
	enableBroadcast bool
	multicastLimit  int
	members         map[identity.Address]bool
	assign          func(identity.Address) []string
	routes          []string
	revision        uint64
}

// Option configures a StaticController at construction time.
type Option func(*StaticController)

func WithMTU(mtu int) Option { return func(c *StaticController) { c.mtu = mtu } }

func WithPrivate(private bool) Option { return func(c *StaticController) { c.private = private } }

func WithBroadcast(enabled bool) Option {
	return func(c *StaticController) { c.enableBroadcast = enabled }
}

func WithMulticastLimit(n int) Option {
	return func(c *StaticController) { c.multicastLimit = n }
}

func WithMember(addr identity.Address) Option {
	return func(c *StaticController) { c.members[addr] = true }
}

func WithRoutes(routes ...string) Option {
	return func(c *StaticController) { c.routes = append(c.routes, routes...) }
}

func WithStaticAssignment(fn func(identity.Address) []string) Option {
	return func(c *StaticController) { c.assign = fn }
}

func NewStaticController(opts ...Option) *StaticController {
	c := &StaticController{
		mtu:            DefaultMTU,
		multicastLimit: DefaultMulticastLimit,
		members:        make(map[identity.Address]bool),
		revision:       1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RequestConfig implements ConfigMaster. Private networks deny any
// requester not on the allow-list; public networks admit everyone.
func (c *StaticController) RequestConfig(now time.Time, requester identity.Address, nwid NetworkID, metadata map[string]string) (*NetworkConfig, Status) {
	if c.private && !c.members[requester] {
		return nil, StatusAccessDenied
	}
	cfg := &NetworkConfig{
		NetworkID:       nwid,
		Revision:        c.revision,
		IssuedTo:        requester,
		MAC:             DeriveMAC(requester, nwid),
		Private:         c.private,
		EnableBroadcast: c.enableBroadcast,
		MTU:             c.mtu,
		MulticastLimit:  c.multicastLimit,
		Routes:          append([]string(nil), c.routes...),
	}
	if c.assign != nil {
		cfg.AssignedAddresses = c.assign(requester)
	}
	if c.private {
		cfg.COM = &COM{
			NetworkID: nwid,
			Issuer:    nwid.ControllerAddress(),
			Member:    requester,
			Timestamp: now.UnixNano(),
			Tuples: []Tuple{
				{ID: 0, Value: uint64(nwid), MaxDelta: 0},
			},
		}
	}
	return cfg, StatusOK
}

// AddMember grants requester access to a private network after
// construction (e.g. an operator approving a join request).
func (c *StaticController) AddMember(addr identity.Address) { c.members[addr] = true }

// RemoveMember revokes a previously granted private-network membership.
func (c *StaticController) RemoveMember(addr identity.Address) { delete(c.members, addr) }

// BumpRevision advances the controller's config revision, causing the
// next issued config to carry a CONFIG_UPDATE for members who re-request.
func (c *StaticController) BumpRevision() { c.revision++ }
