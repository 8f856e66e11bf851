package radix

import (
	"golang.org/x/exp/constraints"
	"golang.org/x/sync/errgroup"
)

const (
	// Below this many keys the copy is cheaper than starting goroutines.
	parallelScatterMin = 1 << 14
	// Every worker gets several bucket ranges so skewed buckets balance out.
	tasksPerWorker = 4
)

// scatter copies every bucket j into dst[offset[j] : offset[j]+count[j]].
//
// The destination ranges are disjoint by construction, which checkPlacement
// verifies first, so tasks write to dst without synchronization. Buckets are
// only read. scatter returns once every task finished.
func scatter[K constraints.Unsigned](dst []K, store *bucketStore[K], p *plan, workers int) error {
	if err := checkPlacement(p, store, len(dst)); err != nil {
		return err
	}

	numBuckets := len(p.counts)
	if workers <= 1 || p.total < parallelScatterMin {
		copyBuckets(dst, store, p, 0, numBuckets)
		return nil
	}

	chunk := numBuckets / (workers * tasksPerWorker)
	if chunk < 1 {
		chunk = 1
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for lo := 0; lo < numBuckets; lo += chunk {
		lo := lo
		hi := min(lo+chunk, numBuckets)
		g.Go(func() error {
			copyBuckets(dst, store, p, lo, hi)
			return nil
		})
	}
	return g.Wait()
}

// copyBuckets copies buckets [lo, hi) into their ranges of dst.
func copyBuckets[K constraints.Unsigned](dst []K, store *bucketStore[K], p *plan, lo, hi int) {
	for j := lo; j < hi; j++ {
		c := p.counts[j]
		if c == 0 {
			continue
		}
		off := p.offsets[j]
		copy(dst[off:off+c], store.contents(j))
	}
}
