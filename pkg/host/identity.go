package host

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/havona/darkbook/pkg/crypto"
)

var ErrUnsigned = errors.New("host: call carries no valid signature")

// SigResolver attributes calls by secp256k1 signature recovery. A relayed
// call resolves to the address that signed the digest, not the relayer that
// delivered it; an unsigned or malformed call resolves to no identity.
type SigResolver struct{}

func (SigResolver) TrueSubmitter(call Call) (common.Address, error) {
	sc, ok := call.(SignedCall)
	if !ok {
		return common.Address{}, ErrUnsigned
	}
	addr, err := crypto.RecoverAddress(sc.Digest[:], sc.Signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("host: recover submitter: %w", err)
	}
	return addr, nil
}

func (SigResolver) AuthenticatedCaller(call Call) (common.Address, bool) {
	sc, ok := call.(SignedCall)
	if !ok {
		return common.Address{}, false
	}
	addr, err := crypto.RecoverAddress(sc.Digest[:], sc.Signature)
	if err != nil {
		// Default deny: a bad signature reads the same as no signature.
		return common.Address{}, false
	}
	return addr, true
}
