package vl2

import (
	"time"

	"github.com/Arceliar/phony"

	"github.com/vlcore/engine/identity"
	"github.com/vlcore/engine/vl1"
)

// Sender is the subset of *vl1.Switch a Network needs: enough to send a
// NETWORK_CONFIG_REQUEST without vl2 depending on the rest of vl1's
// surface. *vl1.Switch satisfies this directly.
type Sender interface {
	Send(from phony.Actor, dest identity.Address, verb vl1.Verb, payload []byte)
}

// PortConfigFunc is invoked on every status transition a joined network
// makes (spec.md §4.4/§6's port-config callback).
type PortConfigFunc func(event PortEvent, cfg *NetworkConfig)

// Network is one joined virtual network's client-side state machine:
// REQUESTING_CONFIGURATION until a controller answers, then OK (or a
// terminal denial), per spec.md §4.4.
type Network struct {
	phony.Inbox

	id     NetworkID
	local  *identity.Identity
	sender Sender

	// controller is set only when this node is this network's own
	// controller, letting join/leave resolve locally instead of over the
	// wire (used by single-process demos and the controller's own join).
	controller ConfigMaster

	status     Status
	config     *NetworkConfig
	portConfig PortConfigFunc

	requestedAt time.Time
	destroyed   bool
}

// New creates a Network in REQUESTING_CONFIGURATION, not yet joined.
func New(local *identity.Identity, id NetworkID, sender Sender, portConfig PortConfigFunc) *Network {
	return &Network{
		id:         id,
		local:      local,
		sender:     sender,
		status:     StatusRequestingConfiguration,
		portConfig: portConfig,
	}
}

// ID returns the network's ID.
func (n *Network) ID() NetworkID { return n.id }

// SetController installs a local ConfigMaster, letting Join resolve
// without a wire round trip. Used when this node is this network's own
// controller.
func (n *Network) SetController(c ConfigMaster) { n.controller = c }

// Status reports the network's current membership status.
func (n *Network) Status() Status {
	var s Status
	phony.Block(n, func() { s = n.status })
	return s
}

// Config returns the last NetworkConfig applied, or nil if none yet.
func (n *Network) Config() *NetworkConfig {
	var c *NetworkConfig
	phony.Block(n, func() { c = n.config })
	return c
}

// Join sends (or, for a self-controlled network, directly resolves) a
// NETWORK_CONFIG_REQUEST. Idempotent: re-joining an already-OK network
// just re-requests (refresh), per spec.md §4.4.
func (n *Network) Join(from phony.Actor, metadata map[string]string) {
	phony.Block(n, func() {
		n.requestedAt = time.Now()
		if n.controller != nil {
			cfg, status := n.controller.RequestConfig(n.requestedAt, n.local.Address(), n.id, metadata)
			n.applyLocked(status, cfg)
			return
		}
		if n.sender != nil {
			n.sender.Send(n, n.id.ControllerAddress(), vl1.VerbNetworkConfigRequest, EncodeConfigRequest(n.id, metadata))
		}
	})
}

// HandleConfigReply processes a NETWORK_CONFIG_REFRESH payload addressed
// to this network (node dispatches inbound refreshes here after matching
// the network ID).
func (n *Network) HandleConfigReply(from phony.Actor, payload []byte) {
	nwid, status, cfg, err := DecodeConfigRefresh(payload)
	if err != nil || nwid != n.id {
		return
	}
	phony.Block(n, func() { n.applyLocked(status, cfg) })
}

func (n *Network) applyLocked(status Status, cfg *NetworkConfig) {
	if n.destroyed {
		return
	}
	prevStatus := n.status
	prevRevision := uint64(0)
	if n.config != nil {
		prevRevision = n.config.Revision
	}
	n.status = status
	if status != StatusOK {
		return
	}
	n.config = cfg
	if prevStatus != StatusOK {
		n.emit(PortUp)
		return
	}
	if cfg != nil && cfg.Revision != prevRevision {
		n.emit(PortConfigUpdate)
	}
}

// AdmitFrame reports whether a frame from a peer presenting remoteCOM
// should be accepted on this network. Public networks (no local COM)
// admit everyone; private networks require compatibility (spec.md §4.4:
// "Inbound frames whose source peer lacks a compatible COM are dropped").
func (n *Network) AdmitFrame(remoteCOM *COM) bool {
	var ok bool
	phony.Block(n, func() {
		if n.config == nil || n.config.COM == nil {
			ok = true
			return
		}
		ok = n.config.COM.Compatible(remoteCOM)
	})
	return ok
}

// Leave tears the network down: DOWN followed by DESTROY (spec.md §4.4:
// "on leave/destroy it invokes DOWN/DESTROY"), exactly once.
func (n *Network) Leave(from phony.Actor) {
	phony.Block(n, func() {
		if n.destroyed {
			return
		}
		if n.status == StatusOK {
			n.emit(PortDown)
		}
		n.destroyed = true
		n.emit(PortDestroy)
	})
}

func (n *Network) emit(event PortEvent) {
	if n.portConfig == nil {
		return
	}
	n.portConfig(event, n.config)
}
