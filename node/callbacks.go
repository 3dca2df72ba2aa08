package node

import (
	"net"

	"github.com/vlcore/engine/vl2"
)

// DataStoreGetFunc mirrors spec.md §6's data-store get hook: it returns the
// number of bytes available for key at offset (the call may be satisfied
// with a partial read), -1 if the object doesn't exist, or -2 on a host
// I/O error. A -2 escalates the enclosing operation to ResultErrorDataStore
// (spec.md §7: "data-store callback's -2 result triggers a fatal result").
type DataStoreGetFunc func(key string, buf []byte, offset int64) int64

// DataStorePutFunc persists data under key; nil data means delete. secure
// asks the host to restrict the stored object's ACLs (used for identity
// secret material).
type DataStorePutFunc func(key string, data []byte, secure bool) error

// WireSendFunc transmits a fully-framed packet. local may be nil/
// unspecified, in which case the host picks an outbound interface.
type WireSendFunc func(local, remote net.Addr, raw []byte) error

// FrameFunc delivers a decoded virtual-Ethernet frame arriving on a
// joined network to the host's tap/bridge.
type FrameFunc func(networkID vl2.NetworkID, src, dst [6]byte, etherType uint16, vlanID uint16, payload []byte)

// NetworkConfigFunc reports a joined network's port state transitions
// (spec.md §6: UP/CONFIG_UPDATE/DOWN/DESTROY). The callback must not
// re-enter the engine with a mutating call.
type NetworkConfigFunc func(networkID vl2.NetworkID, event vl2.PortEvent, cfg *vl2.NetworkConfig)

// EventFunc delivers node lifecycle events. detail is event-specific
// (e.g. the colliding identity.Address for EventIdentityCollision, or a
// string for EventTrace); nil otherwise.
type EventFunc func(evt Event, detail interface{})

// Callbacks are the host hooks a Node needs, per spec.md §6. WireSend is
// the only required field; every other field is optional and simply
// skipped when nil.
type Callbacks struct {
	DataStoreGet  DataStoreGetFunc
	DataStorePut  DataStorePutFunc
	WireSend      WireSendFunc
	Frame         FrameFunc
	NetworkConfig NetworkConfigFunc
	Event         EventFunc
}

func (cb Callbacks) fireEvent(evt Event, detail interface{}) {
	if cb.Event != nil {
		cb.Event(evt, detail)
	}
}
