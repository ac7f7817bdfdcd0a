// Package seqnum implements the half-range ordering rule for the 16-bit
// modular sequence numbers used on the wire: a precedes b iff
// (b - a) mod 2^16 lies in (0, 2^15). Raw `<` comparison is never valid
// across a wraparound, so every ordering decision in this repository goes
// through here instead.
package seqnum

import "github.com/lithdew/seq"

// Seq is a 16-bit modular sequence number.
type Seq = uint16

// Mod is the size of the sequence space.
const Mod = 1 << 16

// After reports whether a is strictly newer than b under the half-range rule.
func After(a, b Seq) bool {
	// Exactly half the range apart lies outside the open interval in both
	// directions.
	if a-b == 1<<15 {
		return false
	}
	return seq.GT(a, b)
}

// Before reports whether a is strictly older than b under the half-range rule.
func Before(a, b Seq) bool {
	return After(b, a)
}

// AfterOrEqual reports whether a is not older than b.
func AfterOrEqual(a, b Seq) bool {
	return a == b || After(a, b)
}

// Next returns a advanced by one, wrapping modulo 2^16.
func Next(a Seq) Seq {
	return a + 1
}

// Add returns a advanced by n, wrapping modulo 2^16.
func Add(a Seq, n uint16) Seq {
	return a + n
}

// Diff returns (b - a) mod 2^16, the forward distance from a to b.
func Diff(a, b Seq) uint16 {
	return b - a
}
