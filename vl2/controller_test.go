package vl2

import (
	"testing"
	"time"

	"github.com/vlcore/engine/identity"
)

func mustIdentity(t *testing.T) *identity.Identity {
	t.Helper()
	id, err := identity.Generate()
	if err != nil {
		t.Fatalf("identity.Generate: %v", err)
	}
	return id
}

func TestStaticControllerPublicNetworkAdmitsAnyone(t *testing.T) {
	c := NewStaticController()
	member := mustIdentity(t)
	cfg, status := c.RequestConfig(time.Now(), member.Address(), 1, nil)
	if status != StatusOK {
		t.Fatalf("expected OK on a public network, got %s", status)
	}
	if cfg.COM != nil {
		t.Fatal("a public network's config should carry no COM")
	}
}

func TestStaticControllerPrivateNetworkDeniesNonMember(t *testing.T) {
	c := NewStaticController(WithPrivate(true))
	outsider := mustIdentity(t)
	_, status := c.RequestConfig(time.Now(), outsider.Address(), 1, nil)
	if status != StatusAccessDenied {
		t.Fatalf("expected ACCESS_DENIED for a non-member on a private network, got %s", status)
	}
}

func TestStaticControllerPrivateNetworkAdmitsMember(t *testing.T) {
	member := mustIdentity(t)
	c := NewStaticController(WithPrivate(true), WithMember(member.Address()))
	cfg, status := c.RequestConfig(time.Now(), member.Address(), 1, nil)
	if status != StatusOK {
		t.Fatalf("expected OK for an allow-listed member, got %s", status)
	}
	if cfg.COM == nil {
		t.Fatal("a private network's config must carry a COM")
	}
}

func TestStaticControllerDerivesStableMAC(t *testing.T) {
	member := mustIdentity(t)
	c := NewStaticController()
	cfg1, _ := c.RequestConfig(time.Now(), member.Address(), 42, nil)
	cfg2, _ := c.RequestConfig(time.Now(), member.Address(), 42, nil)
	if cfg1.MAC != cfg2.MAC {
		t.Fatal("the same (address, network) pair must derive the same MAC every time")
	}
}

func TestWireRoundTripConfigRequest(t *testing.T) {
	meta := map[string]string{"clientVersion": "1.0.0"}
	raw := EncodeConfigRequest(NetworkID(7), meta)
	nwid, decoded, err := DecodeConfigRequest(raw)
	if err != nil {
		t.Fatalf("DecodeConfigRequest: %v", err)
	}
	if nwid != 7 || decoded["clientVersion"] != "1.0.0" {
		t.Fatalf("round trip mismatch: nwid=%d metadata=%v", nwid, decoded)
	}
}

func TestWireRoundTripConfigRefresh(t *testing.T) {
	member := mustIdentity(t)
	c := NewStaticController(WithPrivate(true), WithMember(member.Address()), WithMTU(1400))
	cfg, status := c.RequestConfig(time.Now(), member.Address(), 99, nil)

	raw := EncodeConfigRefresh(99, status, cfg)
	nwid, gotStatus, gotCfg, err := DecodeConfigRefresh(raw)
	if err != nil {
		t.Fatalf("DecodeConfigRefresh: %v", err)
	}
	if nwid != 99 || gotStatus != StatusOK {
		t.Fatalf("unexpected nwid/status: %d %s", nwid, gotStatus)
	}
	if gotCfg.MTU != 1400 || gotCfg.MAC != cfg.MAC {
		t.Fatal("decoded config does not match the encoded one")
	}
	if gotCfg.COM == nil || !gotCfg.COM.Compatible(cfg.COM) {
		t.Fatal("decoded COM must round-trip compatibly with the original")
	}
}
