package exstack2

// nextPow2 returns the smallest power of two >= n, n >= 1.
func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// A message-queue slot packs (count, sender, last) into one 64-bit word so
// it can travel in a single atomic Put (§4.3.3). emptySlot is the sentinel a
// receiver uses to tell "not yet posted" apart from a genuine zero-count
// message, since the reserve-then-write split (FetchAdd to claim a slot,
// then Put the word) means a receiver can observe a claimed-but-not-yet-
// written slot.
const (
	countBits  = 24
	senderBits = 24

	emptySlot int64 = -1
)

func encodeMsg(count, sender int, last bool) int64 {
	v := int64(count) | int64(sender)<<countBits
	if last {
		v |= 1 << (countBits + senderBits)
	}
	return v
}

func decodeMsg(w int64) (count, sender int, last bool) {
	count = int(w & (1<<countBits - 1))
	sender = int((w >> countBits) & (1<<senderBits - 1))
	last = (w>>(countBits+senderBits))&1 == 1
	return
}
