package engine

import (
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/ais-hpc/exstack/cmn/cos"
	"github.com/ais-hpc/exstack/cmn/nlog"
	"github.com/ais-hpc/exstack/transport"
)

// uuidBufLen is sized for a cos.GenUUID result (cos.LenShortID, plus the
// occasional tie-break character) with room to spare.
const uuidBufLen = 32

// CheckParams performs the collective equality check §7 requires at init:
// every peer broadcasts its (capacity, item_size) into a shared vector,
// a barrier guarantees every write has landed, and every peer verifies all
// entries match its own. A mismatch is a programming error, not a runtime
// race, so every peer deterministically observes the same outcome.
//
// It also mints the session's correlation id: peer 0 generates one via
// cos.GenUUID and broadcasts it into every peer's copy of a shared buffer,
// so every peer's log lines and transport.Stats can be tagged with the same
// id regardless of which peer minted it.
func CheckParams(cap transport.Capability, params Params) (string, error) {
	if err := params.Validate(); err != nil {
		return "", err
	}
	p := cap.NumPeers()
	self := cap.SelfPeer()
	words := cap.AllocWords(2 * p) // [0,p) = capacity, [p,2p) = item_size

	for d := 0; d < p; d++ {
		words.Put(d, self, int64(params.Capacity))
		words.Put(d, p+self, int64(params.ItemSize))
	}
	cap.Barrier()

	for i := 0; i < p; i++ {
		if words.Load(i) != int64(params.Capacity) || words.Load(p+i) != int64(params.ItemSize) {
			return "", pkgerrors.Wrapf(ErrParamMismatch, "peer %d: local params %s, peer %d reported (%d, %d)",
				self, params, i, words.Load(i), words.Load(p+i))
		}
	}

	idBuf := cap.AllocBytes(uuidBufLen)
	if self == 0 {
		cos.InitShortID(uint64(time.Now().UnixNano()))
		b := make([]byte, uuidBufLen)
		copy(b, cos.GenUUID())
		for d := 0; d < p; d++ {
			idBuf.Put(d, 0, b)
		}
	}
	cap.Barrier()
	id := strings.TrimRight(string(idBuf.Local()), "\x00")

	nlog.Infof("session init: id=%s, %d peers, params %s", id, p, params)
	return id, nil
}
