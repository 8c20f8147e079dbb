package host

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// EntropySource draws from the operating system's CSPRNG and binds every draw
// to its domain-separation tag by keccak expansion, so that draws under
// different tags can never collide or replay.
type EntropySource struct{}

func (EntropySource) Draw(tag []byte, n int) []byte {
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		panic(fmt.Errorf("host: entropy source failed: %w", err))
	}
	return expand(seed, tag, n)
}

// expand derives n bytes as keccak256(seed || tag || counter) blocks.
func expand(seed, tag []byte, n int) []byte {
	out := make([]byte, 0, n)
	var ctr [8]byte
	for i := uint64(0); len(out) < n; i++ {
		binary.BigEndian.PutUint64(ctr[:], i)
		h := sha3.NewLegacyKeccak256()
		h.Write(seed)
		h.Write(tag)
		h.Write(ctr[:])
		out = append(out, h.Sum(nil)...)
	}
	return out[:n]
}
