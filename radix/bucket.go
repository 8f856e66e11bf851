package radix

import (
	"fmt"
	"unsafe"

	"golang.org/x/exp/constraints"
)

// bucketStore holds one growable bucket per digit value. Capacity is the
// capacity of each slice and every byte of it is reserved in the budget.
type bucketStore[K constraints.Unsigned] struct {
	buckets  [][]K
	budget   Budget
	elemSize int64
	reserved int64
	growths  int
}

// initialBucketCapacity is max(n/B, B).
func initialBucketCapacity(n, numBuckets int) int {
	c := n / numBuckets
	if c < numBuckets {
		c = numBuckets
	}
	return c
}

func newBucketStore[K constraints.Unsigned](numBuckets, capacity int, budget Budget) (*bucketStore[K], error) {
	var zero K
	s := &bucketStore[K]{
		budget:   budget,
		elemSize: int64(unsafe.Sizeof(zero)),
	}
	total := int64(numBuckets) * int64(capacity) * s.elemSize
	if err := budget.Reserve(total); err != nil {
		return nil, fmt.Errorf("%w: allocating %d buckets of %d keys: %w", ErrAllocation, numBuckets, capacity, err)
	}
	s.reserved = total

	s.buckets = make([][]K, numBuckets)
	for j := range s.buckets {
		s.buckets[j] = make([]K, 0, capacity)
	}
	return s, nil
}

// reset empties every bucket and keeps its storage.
func (s *bucketStore[K]) reset() {
	for j := range s.buckets {
		s.buckets[j] = s.buckets[j][:0]
	}
}

// append adds v to bucket j, doubling the bucket when it is full.
func (s *bucketStore[K]) append(j int, v K) error {
	b := s.buckets[j]
	if len(b) == cap(b) {
		grown, err := s.grow(b)
		if err != nil {
			return fmt.Errorf("bucket %d: %w", j, err)
		}
		b = grown
	}
	s.buckets[j] = append(b, v)
	return nil
}

func (s *bucketStore[K]) grow(b []K) ([]K, error) {
	newCap := 2 * cap(b)
	if newCap == 0 {
		newCap = 1
	}
	delta := int64(newCap-cap(b)) * s.elemSize
	if err := s.budget.Reserve(delta); err != nil {
		return nil, fmt.Errorf("%w: growing from %d to %d keys: %w", ErrAllocation, cap(b), newCap, err)
	}
	s.reserved += delta
	s.growths++

	grown := make([]K, len(b), newCap)
	copy(grown, b)
	return grown, nil
}

// contents returns bucket j. Callers must not modify it.
func (s *bucketStore[K]) contents(j int) []K {
	return s.buckets[j]
}

// release drops every bucket and returns its reservation to the budget.
func (s *bucketStore[K]) release() {
	s.buckets = nil
	s.budget.Release(s.reserved)
	s.reserved = 0
}
