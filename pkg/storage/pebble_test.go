package storage

import (
	"bytes"
	"testing"
)

func openTestKV(t *testing.T) *PebbleKV {
	t.Helper()
	kv, err := OpenPebble(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { kv.Close() })
	return kv
}

func TestPebbleSetGetDelete(t *testing.T) {
	kv := openTestKV(t)

	if _, ok := kv.Get([]byte("k")); ok {
		t.Fatal("empty db reported a hit")
	}

	kv.Set([]byte("k"), []byte("v"))
	v, ok := kv.Get([]byte("k"))
	if !ok || !bytes.Equal(v, []byte("v")) {
		t.Fatalf("Get = %q,%v", v, ok)
	}

	kv.Delete([]byte("k"))
	if _, ok := kv.Get([]byte("k")); ok {
		t.Fatal("Get after Delete reported a hit")
	}
}

func TestPebbleAscend(t *testing.T) {
	kv := openTestKV(t)
	kv.Set([]byte("ord:\x00\x02"), []byte("b"))
	kv.Set([]byte("ord:\x00\x01"), []byte("a"))
	kv.Set([]byte("px:\x00\x01"), []byte("x"))

	var keys []string
	kv.Ascend([]byte("ord:"), func(k, _ []byte) bool {
		keys = append(keys, string(k))
		return true
	})
	if len(keys) != 2 || keys[0] != "ord:\x00\x01" || keys[1] != "ord:\x00\x02" {
		t.Fatalf("Ascend visited %q", keys)
	}

	n := 0
	kv.Ascend([]byte("ord:"), func(_, _ []byte) bool {
		n++
		return false
	})
	if n != 1 {
		t.Fatalf("early stop visited %d keys", n)
	}
}

func TestKeyUpperBound(t *testing.T) {
	tests := []struct {
		in, want []byte
	}{
		{[]byte("ord:"), []byte("ord;")},
		{[]byte{0x01, 0xff}, []byte{0x02}},
		{[]byte{0xff, 0xff}, nil},
	}
	for _, tt := range tests {
		if got := keyUpperBound(tt.in); !bytes.Equal(got, tt.want) {
			t.Errorf("keyUpperBound(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
