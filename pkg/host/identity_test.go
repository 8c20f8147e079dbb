package host

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/havona/darkbook/pkg/crypto"
)

func signedCall(t *testing.T, digest [32]byte, relayer common.Address) (SignedCall, common.Address) {
	t.Helper()
	signer, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	sig, err := signer.Sign(digest[:])
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return SignedCall{Digest: digest, Signature: sig, Relayer: relayer}, signer.Address()
}

func TestSigResolverAttributesToSigner(t *testing.T) {
	digest := [32]byte{1, 2, 3}
	relayer := common.HexToAddress("0xdddddddddddddddddddddddddddddddddddddddd")
	call, signerAddr := signedCall(t, digest, relayer)

	var r SigResolver

	got, err := r.TrueSubmitter(call)
	if err != nil {
		t.Fatalf("TrueSubmitter: %v", err)
	}
	if got != signerAddr {
		t.Fatalf("TrueSubmitter = %s, want signer %s", got.Hex(), signerAddr.Hex())
	}
	if got == relayer {
		t.Fatal("call attributed to the relayer instead of the signer")
	}

	addr, ok := r.AuthenticatedCaller(call)
	if !ok || addr != signerAddr {
		t.Fatalf("AuthenticatedCaller = %s,%v, want %s,true", addr.Hex(), ok, signerAddr.Hex())
	}
}

func TestSigResolverRejectsAnonymous(t *testing.T) {
	var r SigResolver

	if _, err := r.TrueSubmitter(AnonymousCall{}); !errors.Is(err, ErrUnsigned) {
		t.Fatalf("TrueSubmitter err = %v, want ErrUnsigned", err)
	}
	if _, ok := r.AuthenticatedCaller(AnonymousCall{}); ok {
		t.Fatal("anonymous call resolved to an identity")
	}
}

func TestSigResolverRejectsBadSignature(t *testing.T) {
	digest := [32]byte{9}
	call, _ := signedCall(t, digest, common.Address{})

	// Flip a byte so recovery yields a different (or no) key.
	call.Signature[10] ^= 0xff
	call.Signature[64] = 5 // invalid recovery id

	var r SigResolver
	if _, err := r.TrueSubmitter(call); err == nil {
		t.Fatal("corrupted signature accepted")
	}
	if _, ok := r.AuthenticatedCaller(call); ok {
		t.Fatal("corrupted signature authenticated a caller")
	}
}
