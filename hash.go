package grank

import (
	"encoding/binary"

	"github.com/dgryski/go-jump"
)

// RootFor maps an operation name onto a coordinator identity in [0, size)
// using jump consistent hashing. When the group shrinks, names that mapped
// below the new size keep their coordinator. It returns -1 if size is not
// positive.
func RootFor(name string, size int) int {
	return rootFor(defaultHasher, name, size)
}

func rootFor(h hasher, name string, size int) int {
	if size <= 0 {
		return -1
	}

	// go-jump takes a 64-bit key; use the last 8 bytes of the digest
	hh := h()
	_, _ = hh.Write([]byte(name))
	b := hh.Sum(nil)
	key := binary.BigEndian.Uint64(b[len(b)-8:])

	return int(jump.Hash(key, size))
}
