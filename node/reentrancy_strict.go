//go:build vlcore_strict

package node

func reentrancyViolation() {
	panic("node: re-entrant mutating call detected")
}
