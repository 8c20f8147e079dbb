package book

import "encoding/binary"

// Confidential-store key schema. All engine state lives behind these
// prefixes; indices are not persisted because submission order equals id
// order, so they are rebuilt from the order records on open.
//
//	ord:<id8>   → Order (JSON)
//	mrec:<id8>  → MatchRecord (JSON)
//	mkey:<id8>  → 32-byte match key (raw)
//	evt:<seq8>  → Notice (JSON)
//	cnt:order   → next order id (8 bytes BE)
//	cnt:match   → match count (8 bytes BE)
const (
	prefixOrder    = "ord:"
	prefixMatchRec = "mrec:"
	prefixMatchKey = "mkey:"
	prefixNotice   = "evt:"
	keyOrderCount  = "cnt:order"
	keyMatchCount  = "cnt:match"
)

func u64be(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

func orderKey(id uint64) []byte    { return append([]byte(prefixOrder), u64be(id)...) }
func matchRecKey(id uint64) []byte { return append([]byte(prefixMatchRec), u64be(id)...) }
func matchKeyKey(id uint64) []byte { return append([]byte(prefixMatchKey), u64be(id)...) }
func noticeKey(seq uint64) []byte  { return append([]byte(prefixNotice), u64be(seq)...) }
