package book

import "golang.org/x/crypto/sha3"

// Meter counts abstract work units consumed by a mutating invocation and
// pads the total up to a fixed envelope before the call returns. Without the
// padding, an observer who cannot read any state could still tell "order
// matched" from "order rested" by metering execution cost alone.
//
// Unit prices are flat: one unit per index entry visited, plus fixed charges
// for store writes and the sealing step. The envelope is sized in params to
// the worst-case scan at maximum book depth.
type Meter struct {
	envelope uint64
	spent    uint64
	sink     [32]byte
}

const (
	costStoreWrite uint64 = 16
	costSeal       uint64 = 256
)

func NewMeter(envelope uint64) *Meter {
	return &Meter{envelope: envelope}
}

func (m *Meter) Tick(units uint64) {
	m.spent += units
}

// Spent reports units consumed so far, padding included once Pad has run.
func (m *Meter) Spent() uint64 {
	return m.spent
}

// Pad burns keccak permutations until the meter reaches its envelope, so the
// invocation's total cost is the envelope regardless of the path taken. The
// chained digest keeps the loop from being optimized away.
func (m *Meter) Pad() {
	for m.spent < m.envelope {
		h := sha3.NewLegacyKeccak256()
		h.Write(m.sink[:])
		copy(m.sink[:], h.Sum(nil))
		m.spent++
	}
}
