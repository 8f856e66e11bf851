package radix

import (
	"errors"
	"fmt"

	"github.com/ChristianF88/pradix/pools"
	"golang.org/x/exp/constraints"
)

var ErrPlacement = errors.New("radix: scatter ranges overlap")

// plan is the count table and prefix-sum table of one pass.
type plan struct {
	counts  []int
	offsets []int
	total   int
}

// newPlan checks out zeroed tables; release returns them.
func newPlan(numBuckets int) *plan {
	return &plan{
		counts:  pools.Pools.GetTable(numBuckets),
		offsets: pools.Pools.GetTable(numBuckets),
	}
}

func (p *plan) release() {
	pools.Pools.ReturnTable(p.counts)
	pools.Pools.ReturnTable(p.offsets)
	p.counts, p.offsets = nil, nil
}

// fillBuckets is the single-threaded counting step: every key of work is
// counted under its digit and appended to that bucket in input order.
func fillBuckets[K constraints.Unsigned](work []K, shift uint, mask uint64, store *bucketStore[K], p *plan) error {
	for _, v := range work {
		d := int((uint64(v) >> shift) & mask)
		p.counts[d]++
		if err := store.append(d, v); err != nil {
			return err
		}
	}
	p.prefixSums()
	return nil
}

// prefixSums converts counts into starting offsets and sets total.
func (p *plan) prefixSums() {
	total := 0
	for j, c := range p.counts {
		p.offsets[j] = total
		total += c
	}
	p.total = total
}

// checkPlacement verifies that the ranges [offset[j], offset[j]+count[j])
// tile [0, total) without overlap, fit into dstLen keys, and that every
// bucket holds exactly count[j] keys. Scatter tasks write without locks, so
// this must hold before any of them starts.
func checkPlacement[K constraints.Unsigned](p *plan, store *bucketStore[K], dstLen int) error {
	next := 0
	for j, c := range p.counts {
		if p.offsets[j] != next {
			return fmt.Errorf("%w: bucket %d starts at %d, expected %d", ErrPlacement, j, p.offsets[j], next)
		}
		if got := len(store.contents(j)); got != c {
			return fmt.Errorf("%w: bucket %d holds %d keys, counted %d", ErrPlacement, j, got, c)
		}
		next += c
	}
	if next != p.total {
		return fmt.Errorf("%w: ranges end at %d, total is %d", ErrPlacement, next, p.total)
	}
	if p.total > dstLen {
		return fmt.Errorf("%w: %d keys do not fit a destination of %d", ErrPlacement, p.total, dstLen)
	}
	return nil
}
