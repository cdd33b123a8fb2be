package engine

import "github.com/ais-hpc/exstack/cmn/xoshiro256"

// Permutation is each peer's session-local, reseedable-on-reset order in
// which it visits destinations when flushing (§3 "random peer
// permutation", §9: "exists solely to avoid synchronized hot-spotting...
// any fixed but peer-dependent permutation suffices").
type Permutation struct {
	order []int
	seed  uint64
}

// NewPermutation builds a permutation of [0, p) seeded from (self, epoch)
// so that distinct peers (almost certainly) pick distinct orders, and a
// given peer's order changes across Reset "epochs".
func NewPermutation(self, p int, epoch uint64) *Permutation {
	seed := xoshiro256.Hash(uint64(self)*0x100000001b3 ^ epoch)
	rng := xoshiro256.New(seed)
	return &Permutation{order: rng.Perm(p), seed: seed}
}

// Order returns the destination visiting order for this epoch.
func (pm *Permutation) Order() []int { return pm.order }
