//go:build !vlcore_strict

package node

func reentrancyViolation() {}
