package main

import (
	"net"
	"sync"
)

// loopbackWire is an in-process stand-in for the UDP socket a real host
// would bind: spec.md §1 puts socket I/O out of the engine's scope
// entirely, so a minimal demo supplies its own WireSend/ProcessWirePacket
// wiring instead of opening one, the same shortcut cmd/ironwood-example's
// testNet-style harnesses use for development builds.
type loopbackWire struct {
	mu    sync.Mutex
	boxes map[string]chan packet
}

type packet struct {
	local, remote net.Addr
	raw           []byte
}

func newLoopbackWire() *loopbackWire {
	return &loopbackWire{boxes: make(map[string]chan packet)}
}

// register gives addr its own inbound queue and returns it for a reader
// goroutine to drain.
func (w *loopbackWire) register(addr net.Addr) <-chan packet {
	w.mu.Lock()
	defer w.mu.Unlock()
	box := make(chan packet, 256)
	w.boxes[addr.String()] = box
	return box
}

// send delivers raw to remote's inbound queue, or drops it silently if
// remote isn't a node this wire knows about (matching a real UDP send to
// an unreachable host: no error surfaces synchronously).
func (w *loopbackWire) send(local, remote net.Addr, raw []byte) error {
	w.mu.Lock()
	box, ok := w.boxes[remote.String()]
	w.mu.Unlock()
	if !ok {
		return nil
	}
	cp := append([]byte(nil), raw...)
	select {
	case box <- packet{local: local, remote: remote, raw: cp}:
	default:
		// Full queue: drop, same as a real socket buffer overrun.
	}
	return nil
}
