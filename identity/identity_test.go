package identity

import "testing"

func TestGenerateRoundTrip(t *testing.T) {
	id, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if id.Address().IsReserved() {
		t.Fatal("generated a reserved address")
	}

	pubOnly := id.Serialize(false)
	parsed, err := Parse(pubOnly)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed.Address() != id.Address() {
		t.Fatal("address mismatch after round trip")
	}
	if parsed.HasPrivateKey() {
		t.Fatal("public-only parse should not carry a secret key")
	}

	msg := []byte("x")
	sig, err := id.Sign(msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !parsed.Verify(msg, &sig) {
		t.Fatal("signature should verify against the parsed public identity")
	}

	full := id.Serialize(true)
	parsedFull, err := Parse(full)
	if err != nil {
		t.Fatalf("Parse(full): %v", err)
	}
	if !parsedFull.HasPrivateKey() {
		t.Fatal("full parse should carry a secret key")
	}
}

func TestParseRejectsTamperedAddress(t *testing.T) {
	id, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	s := id.Serialize(false)
	// Change the first hex digit of the address field.
	first := "0"
	if s[0] == '0' {
		first = "1"
	}
	tampered := first + s[1:]
	if _, err := Parse(tampered); err == nil {
		t.Fatal("expected an error for a tampered address")
	}
}

func TestAgreeIsSymmetric(t *testing.T) {
	a, err := Generate()
	if err != nil {
		t.Fatal(err)
	}
	b, err := Generate()
	if err != nil {
		t.Fatal(err)
	}
	sharedA, err := a.Agree(b)
	if err != nil {
		t.Fatal(err)
	}
	sharedB, err := b.Agree(a)
	if err != nil {
		t.Fatal(err)
	}
	if sharedA != sharedB {
		t.Fatal("shared secrets do not match")
	}
}

func TestAddressReserved(t *testing.T) {
	if !AddressReservedZero.IsReserved() {
		t.Fatal("zero address should be reserved")
	}
	if !AddressReservedAll.IsReserved() {
		t.Fatal("all-ones address should be reserved")
	}
	if Address(1).IsReserved() {
		t.Fatal("address 1 should not be reserved")
	}
}
