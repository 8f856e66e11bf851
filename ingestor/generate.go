package ingestor

import (
	"fmt"
	"math/rand"
	"unsafe"

	"golang.org/x/exp/constraints"
)

// Permutation returns the keys begin..begin+n-1 in a shuffled order that
// depends only on seed. Every key must fit in keyBits.
func Permutation[K constraints.Unsigned](begin uint64, n, keyBits int, seed int64) ([]K, error) {
	if n < 0 {
		return nil, fmt.Errorf("ingestor: negative key count %d", n)
	}
	var zero K
	if typeBits := int(unsafe.Sizeof(zero)) * 8; keyBits < 1 || keyBits > typeBits {
		return nil, fmt.Errorf("%w: keyBits %d for a %d-bit key", ErrKeyRange, keyBits, typeBits)
	}
	limit := keyMask(keyBits)
	if n > 0 && (begin > limit || uint64(n-1) > limit-begin) {
		return nil, fmt.Errorf("%w: %d keys from %d do not fit %d bits", ErrKeyRange, n, begin, keyBits)
	}

	keys := make([]K, n)
	for i := range keys {
		keys[i] = K(begin + uint64(i))
	}
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(n, func(i, j int) {
		keys[i], keys[j] = keys[j], keys[i]
	})
	return keys, nil
}

// Uniform returns n keys drawn uniformly from [0, 2^keyBits).
func Uniform[K constraints.Unsigned](n, keyBits int, seed int64) ([]K, error) {
	if n < 0 {
		return nil, fmt.Errorf("ingestor: negative key count %d", n)
	}
	var zero K
	if typeBits := int(unsafe.Sizeof(zero)) * 8; keyBits < 1 || keyBits > typeBits {
		return nil, fmt.Errorf("%w: keyBits %d for a %d-bit key", ErrKeyRange, keyBits, typeBits)
	}
	mask := keyMask(keyBits)
	rng := rand.New(rand.NewSource(seed))
	keys := make([]K, n)
	for i := range keys {
		keys[i] = K(rng.Uint64() & mask)
	}
	return keys, nil
}
