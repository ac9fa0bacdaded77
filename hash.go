// Checksum implementations for the manifest.
//
// The manifest carries a 16 hex character checksum of its own encoding so
// that a torn or hand-edited manifest is detected on open. Three algorithms
// are supported, selectable via WithHashAlgorithm; the one used is recorded
// in the manifest itself.
package shardb

import (
	"fmt"
	"hash/fnv"

	"github.com/zeebo/xxh3"
	"golang.org/x/crypto/blake2b"
)

// checksum returns a 16 hex character digest of data using alg, or "" for
// an unknown algorithm.
func checksum(data []byte, alg int) string {
	switch alg {
	case AlgXXHash3:
		return fmt.Sprintf("%016x", xxh3.Hash(data))
	case AlgFNV1a:
		h := fnv.New64a()
		h.Write(data)
		return fmt.Sprintf("%016x", h.Sum64())
	case AlgBlake2b:
		h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
		h.Write(data)
		return fmt.Sprintf("%016x", h.Sum(nil))
	default:
		return ""
	}
}
