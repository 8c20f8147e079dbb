package crypto

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// EIP-712 typed envelopes for every call that needs an attributed caller.
// Traders sign these in their wallets; a relayer may deliver the signed
// envelope on their behalf, and the engine attributes the call to the signer.
// Reads are signed too (Sapphire-style authenticated views): an unsigned read
// simply resolves to no identity.

// EIP712Domain is the domain separator, preventing cross-protocol and
// cross-chain replay of signed envelopes.
type EIP712Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

// DefaultDomain returns the production signing domain.
func DefaultDomain() EIP712Domain {
	return EIP712Domain{
		Name:              "HavonaDarkbook",
		Version:           "1",
		ChainID:           big.NewInt(23295), // Sapphire testnet
		VerifyingContract: common.Address{},
	}
}

// PlaceEnvelope is the typed data a trader signs to place an order.
type PlaceEnvelope struct {
	Commodity  common.Hash
	Quantity   *big.Int
	PriceLimit *big.Int
	Side       uint8 // 0 = buy, 1 = sell
	Nonce      *big.Int
}

// CancelEnvelope is the typed data a trader signs to cancel an order.
type CancelEnvelope struct {
	OrderID *big.Int
	Nonce   *big.Int
}

// QueryEnvelope is the typed data a trader signs for an authenticated read.
// Method names the view ("myOrders", "myOpenOrders", "matchKey"); Param
// carries the match id where one applies.
type QueryEnvelope struct {
	Method string
	Param  *big.Int
	Nonce  *big.Int
}

// EnvelopeSigner hashes and signs call envelopes under a fixed domain.
type EnvelopeSigner struct {
	domain EIP712Domain
}

func NewEnvelopeSigner(domain EIP712Domain) *EnvelopeSigner {
	return &EnvelopeSigner{domain: domain}
}

func (e *EnvelopeSigner) typedDomain() apitypes.TypedDataDomain {
	return apitypes.TypedDataDomain{
		Name:              e.domain.Name,
		Version:           e.domain.Version,
		ChainId:           (*math.HexOrDecimal256)(e.domain.ChainID),
		VerifyingContract: e.domain.VerifyingContract.Hex(),
	}
}

var domainType = []apitypes.Type{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
}

// digest computes keccak256("\x19\x01" || domainSeparator || structHash).
func (e *EnvelopeSigner) digest(typedData apitypes.TypedData) ([32]byte, error) {
	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return [32]byte{}, fmt.Errorf("hash domain: %w", err)
	}
	structHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return [32]byte{}, fmt.Errorf("hash %s: %w", typedData.PrimaryType, err)
	}
	raw := append([]byte("\x19\x01"), append(domainSeparator, structHash...)...)
	return crypto.Keccak256Hash(raw), nil
}

// HashPlace returns the signing digest for a place-order envelope.
func (e *EnvelopeSigner) HashPlace(env *PlaceEnvelope) ([32]byte, error) {
	return e.digest(apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": domainType,
			"Place": []apitypes.Type{
				{Name: "commodity", Type: "bytes32"},
				{Name: "quantity", Type: "uint256"},
				{Name: "priceLimit", Type: "uint256"},
				{Name: "side", Type: "uint8"},
				{Name: "nonce", Type: "uint256"},
			},
		},
		PrimaryType: "Place",
		Domain:      e.typedDomain(),
		Message: apitypes.TypedDataMessage{
			"commodity":  env.Commodity.Hex(),
			"quantity":   env.Quantity.String(),
			"priceLimit": env.PriceLimit.String(),
			"side":       fmt.Sprintf("%d", env.Side),
			"nonce":      env.Nonce.String(),
		},
	})
}

// HashCancel returns the signing digest for a cancel envelope.
func (e *EnvelopeSigner) HashCancel(env *CancelEnvelope) ([32]byte, error) {
	return e.digest(apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": domainType,
			"Cancel": []apitypes.Type{
				{Name: "orderId", Type: "uint256"},
				{Name: "nonce", Type: "uint256"},
			},
		},
		PrimaryType: "Cancel",
		Domain:      e.typedDomain(),
		Message: apitypes.TypedDataMessage{
			"orderId": env.OrderID.String(),
			"nonce":   env.Nonce.String(),
		},
	})
}

// HashQuery returns the signing digest for an authenticated-read envelope.
func (e *EnvelopeSigner) HashQuery(env *QueryEnvelope) ([32]byte, error) {
	return e.digest(apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": domainType,
			"Query": []apitypes.Type{
				{Name: "method", Type: "string"},
				{Name: "param", Type: "uint256"},
				{Name: "nonce", Type: "uint256"},
			},
		},
		PrimaryType: "Query",
		Domain:      e.typedDomain(),
		Message: apitypes.TypedDataMessage{
			"method": env.Method,
			"param":  env.Param.String(),
			"nonce":  env.Nonce.String(),
		},
	})
}

// SignPlace signs a place-order envelope, returning digest and signature.
func (e *EnvelopeSigner) SignPlace(s *Signer, env *PlaceEnvelope) ([32]byte, []byte, error) {
	digest, err := e.HashPlace(env)
	if err != nil {
		return [32]byte{}, nil, err
	}
	sig, err := s.Sign(digest[:])
	if err != nil {
		return [32]byte{}, nil, err
	}
	return digest, sig, nil
}

// SignCancel signs a cancel envelope, returning digest and signature.
func (e *EnvelopeSigner) SignCancel(s *Signer, env *CancelEnvelope) ([32]byte, []byte, error) {
	digest, err := e.HashCancel(env)
	if err != nil {
		return [32]byte{}, nil, err
	}
	sig, err := s.Sign(digest[:])
	if err != nil {
		return [32]byte{}, nil, err
	}
	return digest, sig, nil
}

// SignQuery signs a read envelope, returning digest and signature.
func (e *EnvelopeSigner) SignQuery(s *Signer, env *QueryEnvelope) ([32]byte, []byte, error) {
	digest, err := e.HashQuery(env)
	if err != nil {
		return [32]byte{}, nil, err
	}
	sig, err := s.Sign(digest[:])
	if err != nil {
		return [32]byte{}, nil, err
	}
	return digest, sig, nil
}
