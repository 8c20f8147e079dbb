package host

import (
	"github.com/ethereum/go-ethereum/common"
)

// The engine runs on top of three host capabilities it treats as trusted
// primitives: caller-identity resolution, verifiable randomness, and a
// confidential key-value store. Production wiring injects the real
// implementations; tests inject the deterministic fakes in fakes.go.

// Call is the opaque per-invocation envelope handed to the engine alongside
// every operation. The engine never looks inside it; only the
// IdentityResolver understands its contents.
type Call interface {
	isCall()
}

// SignedCall carries a caller-signed digest, possibly delivered by a relayer
// on the signer's behalf. Attribution always follows the signature, never the
// delivery path, which is what makes gasless relay submission safe.
type SignedCall struct {
	Digest    [32]byte // digest the caller signed (EIP-712 typed data hash)
	Signature []byte   // 65-byte [R || S || V] secp256k1 signature
	Relayer   common.Address
}

// AnonymousCall is an unsigned invocation. Reads made this way must resolve
// to empty results, never to an error that reveals whether data exists.
type AnonymousCall struct{}

func (SignedCall) isCall()    {}
func (AnonymousCall) isCall() {}

// IdentityResolver yields the identity behind a Call.
type IdentityResolver interface {
	// TrueSubmitter resolves the real submitter of a state-mutating call,
	// unwrapping any relay indirection. Fails if the call carries no valid
	// signature: writes are never anonymous.
	TrueSubmitter(call Call) (common.Address, error)

	// AuthenticatedCaller resolves the identity behind a read. Returns
	// false for anonymous or unverifiable calls; callers must map that to
	// empty results.
	AuthenticatedCaller(call Call) (common.Address, bool)
}

// RandomSource returns unpredictable bytes, domain-separated by tag. Draws
// under distinct tags are independent; no party, operator included, can
// predict or influence the output.
type RandomSource interface {
	Draw(tag []byte, n int) []byte
}

// KV is ordinary mutable key-value storage. Confidentiality of the contents
// at rest is the store's responsibility, not the engine's; the engine only
// relies on plain get/set/scan semantics.
type KV interface {
	Get(key []byte) ([]byte, bool)
	Set(key, value []byte)
	Delete(key []byte)
	// Ascend visits all keys with the given prefix in lexicographic order,
	// stopping early when fn returns false.
	Ascend(prefix []byte, fn func(key, value []byte) bool)
}
