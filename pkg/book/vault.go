package book

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/havona/darkbook/pkg/host"
)

// payloadContext distinguishes match-payload encryptions from any other use
// of the AEAD scheme.
const payloadContext = "darkbook/match-payload/v1"

// Key and nonce draws are domain-separated from each other and from the
// tie-break draws, and bound to the match id, so no two draws ever share a
// tag.
var (
	tagMatchKey   = []byte("darkbook/match-key/")
	tagMatchNonce = []byte("darkbook/match-nonce/")
)

// MatchKeySize is the size of the symmetric key disclosed to counterparties.
const MatchKeySize = chacha20poly1305.KeySize

// Vault owns match records and match keys. On every successful match it
// draws a fresh key and nonce, seals the trade detail, and stores the key
// out of reach of everything except the counterparty-gated read on the
// engine.
type Vault struct {
	rand  host.RandomSource
	kv    host.KV
	count uint64
	recs  map[uint64]*MatchRecord
}

func NewVault(rand host.RandomSource, kv host.KV) *Vault {
	v := &Vault{rand: rand, kv: kv, recs: make(map[uint64]*MatchRecord)}
	v.reload()
	return v
}

func (v *Vault) reload() {
	if raw, ok := v.kv.Get([]byte(keyMatchCount)); ok && len(raw) == 8 {
		v.count = binary.BigEndian.Uint64(raw)
	}
	v.kv.Ascend([]byte(prefixMatchRec), func(_, value []byte) bool {
		var rec MatchRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			panic(fmt.Errorf("book: corrupt match record: %w", err))
		}
		v.recs[rec.ID] = &rec
		return true
	})
}

// Count is the number of matches sealed so far; public by design.
func (v *Vault) Count() uint64 {
	return v.count
}

func (v *Vault) record(id uint64) (*MatchRecord, bool) {
	rec, ok := v.recs[id]
	return rec, ok
}

func (v *Vault) key(id uint64) ([]byte, bool) {
	raw, ok := v.kv.Get(matchKeyKey(id))
	if !ok || len(raw) != MatchKeySize {
		return nil, false
	}
	return raw, true
}

// seal allocates the next match id, encrypts the trade detail under a fresh
// key and nonce, and commits the record and key. Called by the matching pass
// only; the caller holds the engine lock.
func (v *Vault) seal(buyID, sellID uint64, price, qty int64, buyer, seller common.Address, now int64) *MatchRecord {
	id := v.count

	key := v.rand.Draw(append(tagMatchKey, u64be(id)...), MatchKeySize)
	nonce := v.rand.Draw(append(tagMatchNonce, u64be(id)...), chacha20poly1305.NonceSize)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		panic(fmt.Errorf("book: aead init: %w", err))
	}
	plaintext := encodePayload(price, qty, buyer, seller)
	sealed := aead.Seal(nonce, nonce, plaintext, []byte(payloadContext))

	rec := &MatchRecord{
		ID:          id,
		BuyOrderID:  buyID,
		SellOrderID: sellID,
		Price:       price,
		Quantity:    qty,
		Sealed:      sealed,
		CreatedAt:   now,
	}

	data, err := json.Marshal(rec)
	if err != nil {
		panic(err)
	}
	v.kv.Set(matchRecKey(id), data)
	v.kv.Set(matchKeyKey(id), key)
	v.count++
	v.kv.Set([]byte(keyMatchCount), u64be(v.count))
	v.recs[id] = rec

	return rec
}

// encodePayload lays out (price, quantity, buyer, seller) as a fixed
// 56-byte big-endian record.
func encodePayload(price, qty int64, buyer, seller common.Address) []byte {
	out := make([]byte, 0, 16+2*common.AddressLength)
	out = append(out, u64be(uint64(price))...)
	out = append(out, u64be(uint64(qty))...)
	out = append(out, buyer.Bytes()...)
	out = append(out, seller.Bytes()...)
	return out
}

// OpenSealed decrypts a published trade-matched ciphertext with the key a
// counterparty fetched through the gated read. This runs on the
// counterparty's side, off the engine's critical path.
func OpenSealed(key, sealed []byte) (price, qty int64, buyer, seller common.Address, err error) {
	if len(key) != MatchKeySize {
		return 0, 0, common.Address{}, common.Address{}, fmt.Errorf("book: bad key length %d", len(key))
	}
	if len(sealed) < chacha20poly1305.NonceSize {
		return 0, 0, common.Address{}, common.Address{}, fmt.Errorf("book: sealed blob too short")
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return 0, 0, common.Address{}, common.Address{}, err
	}
	nonce, ct := sealed[:chacha20poly1305.NonceSize], sealed[chacha20poly1305.NonceSize:]
	plaintext, err := aead.Open(nil, nonce, ct, []byte(payloadContext))
	if err != nil {
		return 0, 0, common.Address{}, common.Address{}, fmt.Errorf("book: open sealed payload: %w", err)
	}
	if len(plaintext) != 16+2*common.AddressLength {
		return 0, 0, common.Address{}, common.Address{}, fmt.Errorf("book: bad payload length %d", len(plaintext))
	}
	price = int64(binary.BigEndian.Uint64(plaintext[0:8]))
	qty = int64(binary.BigEndian.Uint64(plaintext[8:16]))
	buyer = common.BytesToAddress(plaintext[16 : 16+common.AddressLength])
	seller = common.BytesToAddress(plaintext[16+common.AddressLength:])
	return price, qty, buyer, seller, nil
}
