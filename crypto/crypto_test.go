package crypto

import (
	"bytes"
	"crypto/ed25519"
	"testing"
)

func TestSignVerify(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(nil)
	var pk PublicKey
	var sk PrivateKey
	copy(pk[:], pub)
	copy(sk[:], priv)
	msg := []byte("this is a test")
	sig := sk.Sign(msg)
	if !pk.Verify(msg, &sig) {
		t.Fatal("verification failed")
	}
	if pk.Verify([]byte("different message"), &sig) {
		t.Fatal("verification should have failed")
	}
}

func TestAgreeSymmetric(t *testing.T) {
	_, privA, _ := ed25519.GenerateKey(nil)
	_, privB, _ := ed25519.GenerateKey(nil)
	pubA, agreeA := DeriveAgreementKeys(privA.Seed())
	pubB, agreeB := DeriveAgreementKeys(privB.Seed())
	sharedA, err := Agree(&agreeA, &pubB)
	if err != nil {
		t.Fatal(err)
	}
	sharedB, err := Agree(&agreeB, &pubA)
	if err != nil {
		t.Fatal(err)
	}
	if sharedA != sharedB {
		t.Fatal("shared secrets do not match")
	}
}

func TestSalsa2012RoundTrip(t *testing.T) {
	var key [32]byte
	for i := range key {
		key[i] = byte(i)
	}
	msg := bytes.Repeat([]byte("hello world, "), 20)
	ct := make([]byte, len(msg))
	Salsa2012XORKeyStream(ct, msg, 0xdeadbeef, 0, &key)
	if bytes.Equal(ct, msg) {
		t.Fatal("ciphertext equals plaintext")
	}
	pt := make([]byte, len(ct))
	Salsa2012XORKeyStream(pt, ct, 0xdeadbeef, 0, &key)
	if !bytes.Equal(pt, msg) {
		t.Fatal("round trip failed")
	}
}

func TestSalsa2012DifferentCountersDiffer(t *testing.T) {
	var key [32]byte
	msg := make([]byte, 128)
	out0 := make([]byte, len(msg))
	out1 := make([]byte, len(msg))
	Salsa2012XORKeyStream(out0, msg, 1, 0, &key)
	Salsa2012XORKeyStream(out1, msg, 1, 1, &key)
	if bytes.Equal(out0, out1) {
		t.Fatal("keystream did not change across block counters")
	}
}

func TestPoly1305SumVerify(t *testing.T) {
	var key [32]byte
	for i := range key {
		key[i] = byte(255 - i)
	}
	msg := []byte("authenticate this payload")
	tag := Poly1305Sum(&key, msg)
	if !Poly1305Verify(&key, msg, &tag) {
		t.Fatal("verify failed for valid tag")
	}
	tag[0] ^= 0xff
	if Poly1305Verify(&key, msg, &tag) {
		t.Fatal("verify succeeded for corrupted tag")
	}
}

func TestDictHasherDeterministicPerInstance(t *testing.T) {
	h := NewDictHasher()
	a := h.Hash([]byte("foo"))
	b := h.Hash([]byte("foo"))
	if a != b {
		t.Fatal("hash not deterministic within one hasher instance")
	}
	c := h.Hash([]byte("bar"))
	if a == c {
		t.Fatal("different inputs hashed to same value (possible but astronomically unlikely here)")
	}
}

func BenchmarkSalsa2012(b *testing.B) {
	var key [32]byte
	msg := make([]byte, 1400)
	out := make([]byte, len(msg))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Salsa2012XORKeyStream(out, msg, uint64(i), 0, &key)
	}
}
