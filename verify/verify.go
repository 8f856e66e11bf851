// Package verify checks sort output: order, and that the output holds exactly
// the input keys.
package verify

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/alphadose/haxmap"
	"github.com/cespare/xxhash/v2"
	"golang.org/x/exp/constraints"
	"golang.org/x/sync/errgroup"
)

// IsSorted reports whether keys ascend on their low keyBits. When they do not,
// the index of the first key smaller than its predecessor is returned.
func IsSorted[K constraints.Unsigned](keys []K, keyBits int) (bool, int) {
	mask := mask(keyBits)
	for i := 1; i < len(keys); i++ {
		if uint64(keys[i])&mask < uint64(keys[i-1])&mask {
			return false, i
		}
	}
	return true, -1
}

func mask(keyBits int) uint64 {
	if keyBits <= 0 || keyBits >= 64 {
		return ^uint64(0)
	}
	return 1<<uint(keyBits) - 1
}

// Fingerprint is an order independent digest of a key multiset.
type Fingerprint struct {
	Count int    `json:"count"`
	Sum   uint64 `json:"sum"`
	Xor   uint64 `json:"xor"`
}

func hashKey(v uint64) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return xxhash.Sum64(buf[:])
}

func FingerprintOf[K constraints.Unsigned](keys []K) Fingerprint {
	fp := Fingerprint{Count: len(keys)}
	for _, k := range keys {
		h := hashKey(uint64(k))
		fp.Sum += h
		fp.Xor ^= h
	}
	return fp
}

// Histogram counts occurrences per key value. It is safe for concurrent use.
type Histogram struct {
	counts *haxmap.Map[uint64, *atomic.Int64]
}

func NewHistogram(sizeHint int) *Histogram {
	if sizeHint < 8 {
		sizeHint = 8
	}
	return &Histogram{counts: haxmap.New[uint64, *atomic.Int64](uintptr(sizeHint))}
}

// Add adds delta occurrences of key.
func (h *Histogram) Add(key uint64, delta int64) {
	c, _ := h.counts.GetOrCompute(key, func() *atomic.Int64 {
		return new(atomic.Int64)
	})
	c.Add(delta)
}

// Count returns the occurrences of key.
func (h *Histogram) Count(key uint64) int64 {
	if c, ok := h.counts.Get(key); ok {
		return c.Load()
	}
	return 0
}

// Distinct returns the number of distinct keys seen.
func (h *Histogram) Distinct() int {
	return int(h.counts.Len())
}

// ForEach calls fn for every key until fn returns false.
func (h *Histogram) ForEach(fn func(key uint64, count int64) bool) {
	h.counts.ForEach(func(k uint64, c *atomic.Int64) bool {
		return fn(k, c.Load())
	})
}

// chunkSize keeps the goroutine count sensible for small inputs.
const chunkSize = 1 << 14

// addAll adds sign for every key, fanning out over workers goroutines.
func (h *Histogram) addAll(keys []uint64, sign int64, workers int) error {
	if workers < 1 {
		workers = 1
	}
	var g errgroup.Group
	g.SetLimit(workers)
	for lo := 0; lo < len(keys); lo += chunkSize {
		part := keys[lo:min(lo+chunkSize, len(keys))]
		g.Go(func() error {
			for _, k := range part {
				h.Add(k, sign)
			}
			return nil
		})
	}
	return g.Wait()
}

func widen[K constraints.Unsigned](keys []K) []uint64 {
	out := make([]uint64, len(keys))
	for i, k := range keys {
		out[i] = uint64(k)
	}
	return out
}

// BuildHistogram counts keys with up to workers goroutines.
func BuildHistogram[K constraints.Unsigned](keys []K, workers int) (*Histogram, error) {
	h := NewHistogram(len(keys))
	if err := h.addAll(widen(keys), 1, workers); err != nil {
		return nil, err
	}
	return h, nil
}

// SameMultiset reports whether a and b hold the same keys with the same
// multiplicities.
func SameMultiset[K constraints.Unsigned](a, b []K, workers int) (bool, error) {
	if len(a) != len(b) {
		return false, nil
	}
	if FingerprintOf(a) != FingerprintOf(b) {
		return false, nil
	}
	h, err := BuildHistogram(a, workers)
	if err != nil {
		return false, err
	}
	if err := h.addAll(widen(b), -1, workers); err != nil {
		return false, err
	}
	same := true
	h.ForEach(func(_ uint64, count int64) bool {
		if count != 0 {
			same = false
		}
		return same
	})
	return same, nil
}

// Result is the outcome of checking one sort.
type Result struct {
	Sorted        bool        `json:"sorted"`
	FirstUnsorted int         `json:"first_unsorted"`
	SameKeys      bool        `json:"same_keys"`
	Input         Fingerprint `json:"input"`
	Output        Fingerprint `json:"output"`
}

// OK reports whether the output is sorted and holds the input keys.
func (r Result) OK() bool {
	return r.Sorted && r.SameKeys
}

// Check verifies output against the fingerprint of the input it was sorted
// from.
func Check[K constraints.Unsigned](input Fingerprint, output []K, keyBits int) Result {
	r := Result{Input: input, Output: FingerprintOf(output)}
	r.Sorted, r.FirstUnsorted = IsSorted(output, keyBits)
	r.SameKeys = r.Input == r.Output
	return r
}
