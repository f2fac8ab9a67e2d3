// Package timestamp implements the totally ordered timestamp that versions a
// mesh network dataset. Every node must derive the same order from the same
// bits, so the field priority used by Compare (seconds, then ticks, then the
// authoritative flag) is part of the protocol and must not change.
package timestamp
