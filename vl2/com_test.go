package vl2

import "testing"

func TestCOMCompatibleWithinDelta(t *testing.T) {
	a := &COM{Tuples: []Tuple{{ID: 1, Value: 100, MaxDelta: 10}}}
	b := &COM{Tuples: []Tuple{{ID: 1, Value: 105, MaxDelta: 20}}}
	if !a.Compatible(b) {
		t.Fatal("expected compatible: |100-105|=5 <= min(10,20)=10")
	}
	if !b.Compatible(a) {
		t.Fatal("Compatible must be symmetric")
	}
}

func TestCOMIncompatibleOutsideDelta(t *testing.T) {
	a := &COM{Tuples: []Tuple{{ID: 1, Value: 100, MaxDelta: 2}}}
	b := &COM{Tuples: []Tuple{{ID: 1, Value: 110, MaxDelta: 20}}}
	if a.Compatible(b) {
		t.Fatal("expected incompatible: |100-110|=10 > min(2,20)=2")
	}
	if b.Compatible(a) {
		t.Fatal("Compatible must be symmetric even when incompatible")
	}
}

func TestCOMUnsharedTupleIDsImposeNoConstraint(t *testing.T) {
	a := &COM{Tuples: []Tuple{{ID: 1, Value: 100, MaxDelta: 0}}}
	b := &COM{Tuples: []Tuple{{ID: 2, Value: 999999, MaxDelta: 0}}}
	if !a.Compatible(b) {
		t.Fatal("tuple ids present in only one COM must not constrain compatibility")
	}
}

func TestCOMNilIsIncompatible(t *testing.T) {
	a := &COM{Tuples: []Tuple{{ID: 1, Value: 1, MaxDelta: 1}}}
	if a.Compatible(nil) {
		t.Fatal("a nil COM can never be compatible")
	}
}
