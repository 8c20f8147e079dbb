package storage

import (
	"fmt"

	"github.com/cockroachdb/pebble"
)

// PebbleKV backs the engine's confidential store with a Pebble database. On a
// Sapphire-style deployment the state tree itself is encrypted at rest; here
// the same contract holds by keeping the database inside the node's protected
// data directory and exposing reads only through the engine's gated API.
//
// The engine's execution model is fully serialized, so methods do not retry:
// an I/O failure under a half-applied operation has no safe continuation, and
// panicking is the structural-atomicity escape hatch.
type PebbleKV struct {
	db *pebble.DB
}

func OpenPebble(path string) (*PebbleKV, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble db at %s: %w", path, err)
	}
	return &PebbleKV{db: db}, nil
}

func (s *PebbleKV) Close() error { return s.db.Close() }

func (s *PebbleKV) Get(key []byte) ([]byte, bool) {
	data, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, false
	}
	if err != nil {
		panic(fmt.Errorf("storage: get %q: %w", key, err))
	}
	defer closer.Close()

	out := make([]byte, len(data))
	copy(out, data)
	return out, true
}

func (s *PebbleKV) Set(key, value []byte) {
	if err := s.db.Set(key, value, pebble.Sync); err != nil {
		panic(fmt.Errorf("storage: set %q: %w", key, err))
	}
}

func (s *PebbleKV) Delete(key []byte) {
	if err := s.db.Delete(key, pebble.Sync); err != nil {
		panic(fmt.Errorf("storage: delete %q: %w", key, err))
	}
}

func (s *PebbleKV) Ascend(prefix []byte, fn func(key, value []byte) bool) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		panic(fmt.Errorf("storage: iter %q: %w", prefix, err))
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		k := append([]byte(nil), iter.Key()...)
		v := append([]byte(nil), iter.Value()...)
		if !fn(k, v) {
			return
		}
	}
}

// keyUpperBound returns the exclusive upper bound for a prefix scan: the
// prefix with its last byte incremented.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	for i := len(bound) - 1; i >= 0; i-- {
		if bound[i] < 0xff {
			bound[i]++
			return bound[:i+1]
		}
	}
	return nil // prefix is all 0xff; scan to the end
}
