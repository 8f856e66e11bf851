package radix

import (
	"fmt"
	"slices"
	"time"
	"unsafe"

	"golang.org/x/exp/constraints"
	"k8s.io/klog/v2"
)

// State is the lifecycle of one Sort call.
type State int

const (
	StateIdle State = iota
	StatePass
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePass:
		return "pass"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// PassStats describes one completed pass.
type PassStats struct {
	Pass            int
	Shift           uint
	Keys            int
	NonEmptyBuckets int
	LargestBucket   int
	BucketGrowths   int
	Counts          []int // copy of the count table
	Duration        time.Duration
}

// Stats describes the last Sort call of a Sorter.
type Stats struct {
	Config        Config
	Keys          int
	Passes        []PassStats
	BucketGrowths int
	ArrayGrowths  int
	PeakReserved  int64
	SmallInput    bool
	Duration      time.Duration
}

type options struct {
	budget   Budget
	passHook func(PassStats)
}

// Option configures a Sorter.
type Option func(*options)

// WithBudget makes the sorter reserve its memory from b instead of a private
// budget built from Config.MemoryLimit.
func WithBudget(b Budget) Option {
	return func(o *options) { o.budget = b }
}

// WithPassHook calls fn after every completed pass, on the sorting goroutine.
func WithPassHook(fn func(PassStats)) Option {
	return func(o *options) { o.passHook = fn }
}

// Sorter is an LSD radix sorter for keys of type K.
//
// A Sorter runs one Sort at a time; Stats and State describe the last call.
type Sorter[K constraints.Unsigned] struct {
	cfg      Config
	budget   Budget
	passHook func(PassStats)
	elemSize int64

	shifts []uint
	masks  []uint64

	state         State
	pass          int
	stats         Stats
	arrayReserved int64
}

// NewSorter validates cfg against the width of K.
func NewSorter[K constraints.Unsigned](cfg Config, opts ...Option) (*Sorter[K], error) {
	var zero K
	elemSize := int64(unsafe.Sizeof(zero))
	if err := cfg.Validate(int(elemSize) * 8); err != nil {
		return nil, err
	}
	cfg.Workers = cfg.workers()

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.budget == nil {
		o.budget = NewMemoryBudget(cfg.MemoryLimit)
	}

	s := &Sorter[K]{
		cfg:      cfg,
		budget:   o.budget,
		passHook: o.passHook,
		elemSize: elemSize,
		shifts:   make([]uint, cfg.Passes()),
		masks:    make([]uint64, cfg.Passes()),
	}
	for p := range s.shifts {
		s.shifts[p], s.masks[p] = cfg.window(p)
	}
	return s, nil
}

// Config returns the resolved configuration.
func (s *Sorter[K]) Config() Config { return s.cfg }

// State returns the state of the last Sort call.
func (s *Sorter[K]) State() State { return s.state }

// Pass returns the pass the last Sort call was in when it stopped.
func (s *Sorter[K]) Pass() int { return s.pass }

// Stats returns the statistics of the last Sort call.
func (s *Sorter[K]) Stats() Stats {
	st := s.stats
	st.Passes = slices.Clone(s.stats.Passes)
	return st
}

// Sort sorts data ascending on the low KeyBits of each key and returns the
// sorted keys. The sorter takes ownership of data: the result may share its
// backing array. On error data is left in an unspecified order and must be
// discarded; every reservation made during the call has been released.
func (s *Sorter[K]) Sort(data []K) ([]K, error) {
	start := time.Now()
	s.state = StateIdle
	s.pass = 0
	s.stats = Stats{Config: s.cfg, Keys: len(data)}
	defer func() {
		s.stats.Duration = time.Since(start)
	}()

	if len(data) <= 1 {
		s.state = StateDone
		return data, nil
	}

	if len(data) <= s.cfg.SmallCutoff {
		insertionSort(data, s.cfg.KeyMask())
		s.stats.SmallInput = true
		s.state = StateDone
		return data, nil
	}

	sorted, err := s.sortPasses(data)
	if err != nil {
		s.state = StateFailed
		klog.V(2).Infof("radix: sort of %d keys failed in pass %d: %v", len(data), s.pass, err)
		return nil, err
	}
	s.state = StateDone
	klog.V(2).Infof("radix: sorted %d keys in %d passes (%s)", len(sorted), len(s.stats.Passes), time.Since(start))
	return sorted, nil
}

func (s *Sorter[K]) sortPasses(work []K) ([]K, error) {
	n := len(work)
	numBuckets := s.cfg.Buckets()

	s.state = StatePass
	store, err := newBucketStore[K](numBuckets, initialBucketCapacity(n, numBuckets), s.budget)
	if err != nil {
		return nil, err
	}
	defer func() {
		s.stats.BucketGrowths = store.growths
		store.release()
		s.releaseArray()
	}()
	s.observeReserved(store)

	for pass := 0; pass < s.cfg.Passes(); pass++ {
		s.pass = pass
		passStart := time.Now()
		growthsBefore := store.growths

		store.reset()
		p := newPlan(numBuckets)
		work, n, err = s.runPass(work, n, pass, store, p)
		if err != nil {
			p.release()
			return nil, fmt.Errorf("pass %d: %w", pass, err)
		}

		ps := summarizePass(p, pass, s.shifts[pass])
		ps.BucketGrowths = store.growths - growthsBefore
		ps.Duration = time.Since(passStart)
		p.release()

		s.stats.Passes = append(s.stats.Passes, ps)
		klog.V(4).Infof("radix: pass %d shift=%d keys=%d buckets=%d largest=%d growths=%d in %s",
			pass, ps.Shift, ps.Keys, ps.NonEmptyBuckets, ps.LargestBucket, ps.BucketGrowths, ps.Duration)
		if s.passHook != nil {
			s.passHook(ps)
		}
	}
	return work[:n], nil
}

// runPass plans one pass, grows the working array if the plan needs more
// room, and scatters the buckets back into it.
func (s *Sorter[K]) runPass(work []K, n, pass int, store *bucketStore[K], p *plan) ([]K, int, error) {
	if err := fillBuckets(work[:n], s.shifts[pass], s.masks[pass], store, p); err != nil {
		return nil, 0, err
	}
	s.observeReserved(store)

	if p.total > len(work) {
		grown, err := s.growWork(work, n, p.total)
		if err != nil {
			return nil, 0, err
		}
		work = grown
		s.observeReserved(store)
	}

	if err := scatter(work, store, p, s.cfg.Workers); err != nil {
		return nil, 0, err
	}
	return work, p.total, nil
}

// growWork replaces work with a zero-filled array of newSize keys holding
// the first n keys of work. The scatter that follows rewrites
// [0, newSize), so no key past n is ever read uninitialized.
func (s *Sorter[K]) growWork(work []K, n, newSize int) ([]K, error) {
	if newSize <= len(work) {
		return work, nil
	}
	need := int64(newSize) * s.elemSize
	if err := s.budget.Reserve(need); err != nil {
		return nil, fmt.Errorf("%w: growing working array from %d to %d keys: %w", ErrCapacity, len(work), newSize, err)
	}
	grown := make([]K, newSize)
	copy(grown, work[:n])

	// The previous array, if the engine allocated it, ends its life here.
	s.budget.Release(s.arrayReserved)
	s.arrayReserved = need
	s.stats.ArrayGrowths++
	return grown, nil
}

func (s *Sorter[K]) releaseArray() {
	s.budget.Release(s.arrayReserved)
	s.arrayReserved = 0
}

func (s *Sorter[K]) observeReserved(store *bucketStore[K]) {
	if r := store.reserved + s.arrayReserved; r > s.stats.PeakReserved {
		s.stats.PeakReserved = r
	}
}

func summarizePass(p *plan, pass int, shift uint) PassStats {
	ps := PassStats{
		Pass:   pass,
		Shift:  shift,
		Keys:   p.total,
		Counts: slices.Clone(p.counts),
	}
	for _, c := range p.counts {
		if c > 0 {
			ps.NonEmptyBuckets++
		}
		if c > ps.LargestBucket {
			ps.LargestBucket = c
		}
	}
	return ps
}

// Sort sorts data with a one-off Sorter built from cfg.
func Sort[K constraints.Unsigned](data []K, cfg Config) ([]K, error) {
	s, err := NewSorter[K](cfg)
	if err != nil {
		return nil, err
	}
	return s.Sort(data)
}

// SortUint32 sorts data with DefaultConfig: 4 passes of 8 bits.
func SortUint32(data []uint32) ([]uint32, error) {
	return Sort(data, DefaultConfig())
}

// insertionSort for inputs where radix overhead isn't worthwhile. It is
// stable and compares only the bits under keyMask, so it orders keys exactly
// like the radix passes would.
func insertionSort[K constraints.Unsigned](data []K, keyMask uint64) {
	for i := 1; i < len(data); i++ {
		key := data[i]
		k := uint64(key) & keyMask
		j := i - 1
		for j >= 0 && uint64(data[j])&keyMask > k {
			data[j+1] = data[j]
			j--
		}
		data[j+1] = key
	}
}
