// Checksum tests.
//
// The manifest stores a 16 hex character digest of its own encoding and
// the algorithm that produced it. The algorithm constants are persisted,
// so their values must never change.
package shardb

import (
	"regexp"
	"testing"
)

var hexPattern = regexp.MustCompile(`^[0-9a-f]{16}$`)

func TestChecksumFormat(t *testing.T) {
	for _, alg := range []int{AlgXXHash3, AlgFNV1a, AlgBlake2b} {
		for _, data := range []string{"", "manifest", `{"lines":3}`} {
			if got := checksum([]byte(data), alg); !hexPattern.MatchString(got) {
				t.Errorf("alg %d: checksum(%q) = %q, want 16 hex chars", alg, data, got)
			}
		}
	}
}

func TestChecksumDeterministic(t *testing.T) {
	for _, alg := range []int{AlgXXHash3, AlgFNV1a, AlgBlake2b} {
		if checksum([]byte("foo"), alg) != checksum([]byte("foo"), alg) {
			t.Errorf("alg %d: not deterministic", alg)
		}
		if checksum([]byte("foo"), alg) == checksum([]byte("bar"), alg) {
			t.Errorf("alg %d: different inputs collided", alg)
		}
	}
}

func TestChecksumAlgorithmsDiffer(t *testing.T) {
	h1 := checksum([]byte("foo"), AlgXXHash3)
	h2 := checksum([]byte("foo"), AlgFNV1a)
	h3 := checksum([]byte("foo"), AlgBlake2b)
	if h1 == h2 || h1 == h3 || h2 == h3 {
		t.Errorf("algorithms agree: xxh3=%q fnv=%q blake2b=%q", h1, h2, h3)
	}
}

func TestChecksumInvalidAlgorithm(t *testing.T) {
	if got := checksum([]byte("test"), 99); got != "" {
		t.Errorf("invalid alg = %q, want empty", got)
	}
}

func TestAlgorithmConstants(t *testing.T) {
	if AlgXXHash3 != 1 || AlgFNV1a != 2 || AlgBlake2b != 3 {
		t.Errorf("constants changed: %d %d %d", AlgXXHash3, AlgFNV1a, AlgBlake2b)
	}
}
