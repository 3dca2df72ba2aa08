package vl2

import (
	"testing"
	"time"
)

func TestNetworkJoinViaLocalControllerInvokesUpOnce(t *testing.T) {
	local := mustIdentity(t)
	var events []PortEvent
	n := New(local, NetworkID(local.Address())<<24, nil, func(e PortEvent, cfg *NetworkConfig) {
		events = append(events, e)
	})
	n.SetController(NewStaticController())

	n.Join(nil, nil)
	n.Join(nil, nil) // re-join while already OK must not re-emit UP

	if len(events) != 1 || events[0] != PortUp {
		t.Fatalf("expected exactly one UP event, got %v", events)
	}
	if n.Status() != StatusOK {
		t.Fatalf("expected StatusOK after a successful join, got %s", n.Status())
	}
}

func TestNetworkJoinDeniedNeverEmitsUp(t *testing.T) {
	local := mustIdentity(t)
	var events []PortEvent
	n := New(local, 1, nil, func(e PortEvent, cfg *NetworkConfig) { events = append(events, e) })
	n.SetController(NewStaticController(WithPrivate(true))) // local is not a member

	n.Join(nil, nil)

	if len(events) != 0 {
		t.Fatalf("expected no port events on denial, got %v", events)
	}
	if n.Status() != StatusAccessDenied {
		t.Fatalf("expected StatusAccessDenied, got %s", n.Status())
	}
}

func TestNetworkConfigUpdateOnRevisionBump(t *testing.T) {
	local := mustIdentity(t)
	var events []PortEvent
	n := New(local, 1, nil, func(e PortEvent, cfg *NetworkConfig) { events = append(events, e) })
	ctrl := NewStaticController()
	n.SetController(ctrl)

	n.Join(nil, nil)
	ctrl.BumpRevision()
	n.Join(nil, nil)

	if len(events) != 2 || events[0] != PortUp || events[1] != PortConfigUpdate {
		t.Fatalf("expected [UP, CONFIG_UPDATE], got %v", events)
	}
}

func TestNetworkLeaveEmitsDownThenDestroyExactlyOnce(t *testing.T) {
	local := mustIdentity(t)
	var events []PortEvent
	n := New(local, 1, nil, func(e PortEvent, cfg *NetworkConfig) { events = append(events, e) })
	n.SetController(NewStaticController())
	n.Join(nil, nil)

	n.Leave(nil)
	n.Leave(nil) // a second Leave must be a no-op

	if len(events) != 3 || events[1] != PortDown || events[2] != PortDestroy {
		t.Fatalf("expected [UP, DOWN, DESTROY], got %v", events)
	}
}

func TestNetworkAdmitFramePublicNetworkAlwaysAdmits(t *testing.T) {
	local := mustIdentity(t)
	n := New(local, 1, nil, nil)
	n.SetController(NewStaticController())
	n.Join(nil, nil)

	if !n.AdmitFrame(nil) {
		t.Fatal("a public network (no COM) must admit frames regardless of the sender's COM")
	}
}

func TestNetworkAdmitFramePrivateNetworkRequiresCompatibleCOM(t *testing.T) {
	local := mustIdentity(t)
	remote := mustIdentity(t)
	n := New(local, 1, nil, nil)
	ctrl := NewStaticController(WithPrivate(true), WithMember(local.Address()))
	n.SetController(ctrl)
	n.Join(nil, nil)

	remoteCfg, status := ctrl.RequestConfig(time.Now(), remote.Address(), 1, nil)
	if status != StatusAccessDenied {
		t.Fatalf("remote is not a member yet, expected ACCESS_DENIED, got %s", status)
	}
	if n.AdmitFrame(nil) {
		t.Fatal("a private network must reject a frame with no COM at all")
	}

	ctrl.AddMember(remote.Address())
	remoteCfg, status = ctrl.RequestConfig(time.Now(), remote.Address(), 1, nil)
	if status != StatusOK {
		t.Fatalf("expected OK once remote is added as a member, got %s", status)
	}
	if !n.AdmitFrame(remoteCfg.COM) {
		t.Fatal("two members of the same private network must present compatible COMs")
	}
}
