package cos

import "github.com/OneOfOne/xxhash"

// MLCG32 is the multiplicative congruential seed used for every xxhash
// checksum in this module, so two peers checksumming the same bytes always
// agree regardless of process or platform.
const MLCG32 = 1103515245

// Checksum64 is the xxhash64 of b seeded with MLCG32 (the checksum that
// transport.Stats.OnSendPayload logs), so a checksum computed on one peer is
// directly comparable to one computed on another.
func Checksum64(b []byte) uint64 {
	return xxhash.Checksum64S(b, MLCG32)
}
