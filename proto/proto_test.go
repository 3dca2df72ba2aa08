package proto

import (
	"bytes"
	"testing"

	"github.com/vlcore/engine/identity"
)

func testKey(b byte) *[32]byte {
	var k [32]byte
	for i := range k {
		k[i] = b
	}
	return &k
}

func TestSealOpenRoundTrip(t *testing.T) {
	key := testKey(7)
	h := &Header{
		PacketID: 0xdeadbeefcafebabe,
		Dest:     identity.Address(0x1122334455),
		Source:   identity.Address(0xaabbccddee),
		Cipher:   CipherSalsaPoly1305,
		Verb:     byte(VerbFrame),
	}
	payload := []byte("hello, virtual ethernet")
	wire := Seal(h, payload, key, nil)

	var h2 Header
	ciphertext, err := DecodeHeader(&h2, wire)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if h2.Dest != h.Dest || h2.Source != h.Source || h2.PacketID != h.PacketID {
		t.Fatal("decoded header fields do not match")
	}
	plaintext, err := Open(&h2, ciphertext, key)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(plaintext, payload) {
		t.Fatal("round trip did not recover the original payload")
	}
}

func TestReEncodeIsStable(t *testing.T) {
	key := testKey(3)
	h := &Header{
		PacketID: 42,
		Dest:     identity.Address(1),
		Source:   identity.Address(2),
		Cipher:   CipherSalsaPoly1305,
		Verb:     byte(VerbHello),
	}
	payload := []byte("round trip under a fixed packet ID")
	wireA := Seal(h, payload, key, nil)

	h2 := *h
	wireB := Seal(&h2, payload, key, nil)
	if !bytes.Equal(wireA, wireB) {
		t.Fatal("re-encoding with the same keys and packetID produced different bytes")
	}
}

func TestMACRejectsMutation(t *testing.T) {
	key := testKey(9)
	h := &Header{PacketID: 5, Dest: identity.Address(1), Source: identity.Address(2), Cipher: CipherSalsaPoly1305, Verb: byte(VerbFrame)}
	wire := Seal(h, []byte("payload data"), key, nil)

	for i := 0; i < len(wire); i++ {
		if i == 18 {
			continue // the hops nibble may be mutated by relays without invalidating the MAC
		}
		mutated := append([]byte(nil), wire...)
		mutated[i] ^= 0x01
		var h2 Header
		ciphertext, err := DecodeHeader(&h2, mutated)
		if err != nil {
			continue
		}
		if _, err := Open(&h2, ciphertext, key); err == nil {
			t.Fatalf("mutation at byte %d was not detected", i)
		}
	}
}

func TestHopsMutationDoesNotBreakMAC(t *testing.T) {
	key := testKey(11)
	h := &Header{PacketID: 99, Dest: identity.Address(1), Source: identity.Address(2), Cipher: CipherSalsaPoly1305, Verb: byte(VerbFrame)}
	wire := Seal(h, []byte("relayed payload"), key, nil)

	var h2 Header
	ciphertext, err := DecodeHeader(&h2, wire)
	if err != nil {
		t.Fatal(err)
	}
	h2.Hops++ // simulate a relay incrementing hops
	if _, err := Open(&h2, ciphertext, key); err != nil {
		t.Fatalf("incrementing hops should not invalidate the MAC: %v", err)
	}
}

func TestSplitPayloadLossless(t *testing.T) {
	payload := bytes.Repeat([]byte{0xab}, HeadPayloadMTU+5*TailFragmentMTU+13)
	head, tails, err := SplitPayload(payload)
	if err != nil {
		t.Fatal(err)
	}
	reassembled := append([]byte(nil), head...)
	for _, tail := range tails {
		reassembled = append(reassembled, tail...)
	}
	if !bytes.Equal(reassembled, payload) {
		t.Fatal("split+reassemble did not recover the original payload")
	}
}

func TestSplitPayloadRejectsOversized(t *testing.T) {
	payload := make([]byte, HeadPayloadMTU+16*TailFragmentMTU)
	if _, _, err := SplitPayload(payload); err == nil {
		t.Fatal("expected an error for a payload exceeding 16 fragments")
	}
}

func TestFragmentEncodeDecode(t *testing.T) {
	f := &Fragment{PacketID: 0x1234, Dest: identity.Address(7), FragNo: 2, TotalFrags: 4, Hops: 3}
	bs := f.Encode(nil)
	if !IsFragment(bs) {
		t.Fatal("encoded fragment was not recognized as a fragment")
	}
	var f2 Fragment
	if _, err := DecodeFragment(&f2, bs); err != nil {
		t.Fatal(err)
	}
	if f2 != *f {
		t.Fatalf("decoded fragment %+v does not match original %+v", f2, f)
	}
}
