package host

import (
	"bytes"
	"encoding/binary"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// Test doubles for the three host capabilities. These live in the package
// rather than a _test file so that every consumer's tests can share them.

// AuthenticatedCall attributes a call to a fixed identity without a real
// signature. Understood only by StaticResolver.
type AuthenticatedCall struct {
	Submitter common.Address
}

func (AuthenticatedCall) isCall() {}

// StaticResolver resolves AuthenticatedCall directly and treats everything
// else as anonymous.
type StaticResolver struct{}

func (StaticResolver) TrueSubmitter(call Call) (common.Address, error) {
	ac, ok := call.(AuthenticatedCall)
	if !ok {
		return common.Address{}, ErrUnsigned
	}
	return ac.Submitter, nil
}

func (StaticResolver) AuthenticatedCaller(call Call) (common.Address, bool) {
	ac, ok := call.(AuthenticatedCall)
	if !ok {
		return common.Address{}, false
	}
	return ac.Submitter, true
}

// SeededSource is a deterministic RandomSource: same seed, same tags, same
// bytes. Each draw advances an internal counter so repeated draws under one
// tag still differ.
type SeededSource struct {
	mu   sync.Mutex
	seed []byte
	ctr  uint64
}

func NewSeededSource(seed []byte) *SeededSource {
	h := sha3.NewLegacyKeccak256()
	h.Write(seed)
	return &SeededSource{seed: h.Sum(nil)}
}

func (s *SeededSource) Draw(tag []byte, n int) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ctr [8]byte
	binary.BigEndian.PutUint64(ctr[:], s.ctr)
	s.ctr++
	return expand(append(s.seed, ctr[:]...), tag, n)
}

// MemKV is an in-memory KV with the same scan semantics as the pebble store.
type MemKV struct {
	mu sync.RWMutex
	m  map[string][]byte
}

func NewMemKV() *MemKV {
	return &MemKV{m: make(map[string][]byte)}
}

func (kv *MemKV) Get(key []byte) ([]byte, bool) {
	kv.mu.RLock()
	defer kv.mu.RUnlock()
	v, ok := kv.m[string(key)]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true
}

func (kv *MemKV) Set(key, value []byte) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	kv.m[string(key)] = v
}

func (kv *MemKV) Delete(key []byte) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	delete(kv.m, string(key))
}

func (kv *MemKV) Ascend(prefix []byte, fn func(key, value []byte) bool) {
	kv.mu.RLock()
	keys := make([]string, 0, len(kv.m))
	for k := range kv.m {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	kv.mu.RUnlock()

	sort.Strings(keys)
	for _, k := range keys {
		v, ok := kv.Get([]byte(k))
		if !ok {
			continue
		}
		if !fn([]byte(k), v) {
			return
		}
	}
}
