package radix

import (
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// radixOnly disables the insertion-sort shortcut so every input runs the passes.
func radixOnly(keyBits, digitBits int) Config {
	return Config{KeyBits: keyBits, DigitBits: digitBits, Workers: 4}
}

func mustSort[K ~uint8 | ~uint16 | ~uint32 | ~uint64](t *testing.T, data []K, cfg Config) []K {
	t.Helper()
	out, err := Sort(data, cfg)
	require.NoError(t, err)
	return out
}

func randomUint32s(seed int64, n int) []uint32 {
	rng := rand.New(rand.NewSource(seed))
	data := make([]uint32, n)
	for i := range data {
		data[i] = rng.Uint32()
	}
	return data
}

func TestSortUint32_Empty(t *testing.T) {
	var data []uint32
	out, err := SortUint32(data)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestSortUint32_Single(t *testing.T) {
	out, err := SortUint32([]uint32{42})
	require.NoError(t, err)
	assert.Equal(t, []uint32{42}, out)
}

func TestSort_SmallExamples(t *testing.T) {
	cfg := radixOnly(8, 4)
	assert.Equal(t, []uint32{1, 2, 3}, mustSort(t, []uint32{3, 1, 2}, cfg))
	assert.Equal(t, []uint32{1, 4, 4, 4}, mustSort(t, []uint32{4, 4, 1, 4}, cfg))
	assert.Equal(t, []uint32{0, 255}, mustSort(t, []uint32{255, 0}, cfg))
	assert.Equal(t, []uint32{0, 255}, mustSort(t, []uint32{0, 255}, cfg))
}

func TestSort_Reversed(t *testing.T) {
	out := mustSort(t, []uint32{5, 4, 3, 2, 1}, radixOnly(32, 8))
	assert.Equal(t, []uint32{1, 2, 3, 4, 5}, out)
}

func TestSort_AllSame(t *testing.T) {
	out := mustSort(t, []uint32{7, 7, 7, 7, 7}, radixOnly(32, 8))
	assert.Equal(t, []uint32{7, 7, 7, 7, 7}, out)
}

func TestSort_LargeValues(t *testing.T) {
	out := mustSort(t, []uint32{0xFFFFFFFF, 0, 0x80000000, 1, 0x7FFFFFFF}, radixOnly(32, 8))
	assert.Equal(t, []uint32{0, 1, 0x7FFFFFFF, 0x80000000, 0xFFFFFFFF}, out)
}

func TestSort_BitsAboveKeyWidthAreIgnored(t *testing.T) {
	// Only the low 8 bits order the keys; ties keep input order.
	in := []uint32{0x102, 0x001, 0x002}
	want := []uint32{0x001, 0x102, 0x002}

	assert.Equal(t, want, mustSort(t, slices.Clone(in), radixOnly(8, 4)))

	withCutoff := radixOnly(8, 4)
	withCutoff.SmallCutoff = 64
	assert.Equal(t, want, mustSort(t, slices.Clone(in), withCutoff))
}

func TestSort_Stable(t *testing.T) {
	// The low 8 bits are the key, the upper bits record the input position.
	rng := rand.New(rand.NewSource(9))
	data := make([]uint32, 3000)
	for i := range data {
		data[i] = uint32(i)<<8 | uint32(rng.Intn(256))
	}

	out := mustSort(t, data, radixOnly(8, 3))
	for i := 1; i < len(out); i++ {
		lo, hi := out[i-1]&0xFF, out[i]&0xFF
		require.LessOrEqual(t, lo, hi, "not sorted at index %d", i)
		if lo == hi {
			require.Less(t, out[i-1]>>8, out[i]>>8, "equal keys reordered at index %d", i)
		}
	}
}

func TestSort_RandomData(t *testing.T) {
	sizes := []int{100, 1000, 10000, 100000}
	for _, size := range sizes {
		t.Run(fmt.Sprintf("size_%d", size), func(t *testing.T) {
			data := randomUint32s(42, size)
			out, err := SortUint32(data)
			require.NoError(t, err)
			require.Len(t, out, size)
			for i := 1; i < len(out); i++ {
				if out[i] < out[i-1] {
					t.Fatalf("not sorted at index %d: %d < %d", i, out[i], out[i-1])
				}
			}
		})
	}
}

func TestSort_MatchesStdSort(t *testing.T) {
	layouts := []Config{
		radixOnly(32, 8),
		radixOnly(32, 11),
		radixOnly(32, 16),
		radixOnly(32, 1),
		radixOnly(32, 5),
	}
	for _, cfg := range layouts {
		t.Run(fmt.Sprintf("G=%d", cfg.DigitBits), func(t *testing.T) {
			data := randomUint32s(123, 50000)
			want := slices.Clone(data)
			sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })

			got := mustSort(t, data, cfg)
			for i := range want {
				if got[i] != want[i] {
					t.Fatalf("mismatch at index %d: radix=%d, std=%d", i, got[i], want[i])
				}
			}
		})
	}
}

func TestSort_WorkerCountDoesNotChangeResult(t *testing.T) {
	base := randomUint32s(77, 200000)
	var first []uint32
	for _, workers := range []int{1, 2, 7, 16} {
		cfg := radixOnly(32, 8)
		cfg.Workers = workers
		got := mustSort(t, slices.Clone(base), cfg)
		if first == nil {
			first = got
			continue
		}
		require.Equal(t, first, got, "workers=%d", workers)
	}
}

func TestSort_Idempotent(t *testing.T) {
	once := mustSort(t, randomUint32s(1, 20000), radixOnly(32, 8))
	twice := mustSort(t, slices.Clone(once), radixOnly(32, 8))
	assert.Equal(t, once, twice)
}

func TestSort_SmallSlices(t *testing.T) {
	// Sizes 2 through 64 run the insertion-sort path with the default config.
	for size := 2; size <= DefaultSmallCutoff; size++ {
		data := randomUint32s(int64(size), size)
		want := slices.Clone(data)
		slices.Sort(want)

		s, err := NewSorter[uint32](DefaultConfig())
		require.NoError(t, err)
		got, err := s.Sort(data)
		require.NoError(t, err)
		require.Equal(t, want, got, "size %d", size)
		assert.True(t, s.Stats().SmallInput)
		assert.Empty(t, s.Stats().Passes)
	}
}

func TestSort_KeyTypes(t *testing.T) {
	rng := rand.New(rand.NewSource(21))

	t.Run("uint64", func(t *testing.T) {
		data := make([]uint64, 30000)
		for i := range data {
			data[i] = rng.Uint64()
		}
		want := slices.Clone(data)
		slices.Sort(want)
		assert.Equal(t, want, mustSort(t, data, radixOnly(64, 16)))
	})

	t.Run("uint16 with uneven last digit", func(t *testing.T) {
		data := make([]uint16, 5000)
		for i := range data {
			data[i] = uint16(rng.Intn(1 << 16))
		}
		want := slices.Clone(data)
		slices.Sort(want)
		assert.Equal(t, want, mustSort(t, data, radixOnly(16, 5)))
	})

	t.Run("uint8", func(t *testing.T) {
		data := make([]uint8, 1000)
		for i := range data {
			data[i] = uint8(rng.Intn(256))
		}
		want := slices.Clone(data)
		slices.Sort(want)
		assert.Equal(t, want, mustSort(t, data, radixOnly(8, 3)))
	})

	t.Run("uint32 key narrower than type", func(t *testing.T) {
		data := make([]uint32, 4000)
		for i := range data {
			data[i] = uint32(rng.Intn(1 << 20))
		}
		want := slices.Clone(data)
		slices.Sort(want)
		assert.Equal(t, want, mustSort(t, data, radixOnly(20, 6)))
	})
}

func TestNewSorter_RejectsBadConfig(t *testing.T) {
	_, err := NewSorter[uint16](Config{KeyBits: 32, DigitBits: 8})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	_, err = Sort([]uint32{1, 2}, Config{KeyBits: 32, DigitBits: 0})
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestSorter_StateAndStats(t *testing.T) {
	cfg := radixOnly(32, 8)
	s, err := NewSorter[uint32](cfg)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, 4, s.Config().Workers)

	data := randomUint32s(5, 10000)
	_, err = s.Sort(data)
	require.NoError(t, err)

	assert.Equal(t, StateDone, s.State())
	assert.Equal(t, 3, s.Pass())

	st := s.Stats()
	assert.Equal(t, 10000, st.Keys)
	assert.False(t, st.SmallInput)
	require.Len(t, st.Passes, 4)
	for i, ps := range st.Passes {
		assert.Equal(t, i, ps.Pass)
		assert.Equal(t, uint(8*i), ps.Shift)
		assert.Equal(t, 10000, ps.Keys)
		assert.Len(t, ps.Counts, 256)
		sum := 0
		for _, c := range ps.Counts {
			sum += c
		}
		assert.Equal(t, 10000, sum)
		assert.Greater(t, ps.NonEmptyBuckets, 0)
		assert.GreaterOrEqual(t, ps.LargestBucket, 10000/256)
	}
	assert.Greater(t, st.PeakReserved, int64(0))
	assert.Equal(t, 0, st.ArrayGrowths)
}

func TestSorter_PassHook(t *testing.T) {
	var seen []PassStats
	s, err := NewSorter[uint32](radixOnly(16, 4), WithPassHook(func(ps PassStats) {
		seen = append(seen, ps)
	}))
	require.NoError(t, err)

	_, err = s.Sort(randomUint32s(8, 500))
	require.NoError(t, err)
	require.Len(t, seen, 4)
	for i, ps := range seen {
		assert.Equal(t, i, ps.Pass)
		assert.Equal(t, 500, ps.Keys)
	}
}

func TestSorter_BucketGrowthOnSkewedInput(t *testing.T) {
	// Every key falls into bucket 0, so that bucket must grow past max(n/B, B).
	budget := NewMemoryBudget(0)
	s, err := NewSorter[uint32](radixOnly(32, 8), WithBudget(budget))
	require.NoError(t, err)

	data := make([]uint32, 5000)
	out, err := s.Sort(data)
	require.NoError(t, err)
	assert.Len(t, out, 5000)
	assert.Greater(t, s.Stats().BucketGrowths, 0)
	assert.Greater(t, s.Stats().Passes[0].BucketGrowths, 0)
	assert.Equal(t, 0, s.Stats().Passes[1].BucketGrowths, "storage survives between passes")
	assert.Equal(t, int64(0), budget.Used())
}

func TestSorter_AllocationFailure(t *testing.T) {
	// Enough for the initial 256 buckets of 256 keys and not one growth.
	budget := NewMemoryBudget(256 * 256 * 4)
	s, err := NewSorter[uint32](radixOnly(32, 8), WithBudget(budget))
	require.NoError(t, err)

	data := make([]uint32, 1000)
	out, err := s.Sort(data)
	require.Error(t, err)
	assert.Nil(t, out)
	assert.True(t, errors.Is(err, ErrAllocation))
	assert.True(t, errors.Is(err, ErrBudgetExceeded))
	assert.Equal(t, StateFailed, s.State())
	assert.Equal(t, 0, s.Pass())
	assert.Equal(t, int64(0), budget.Used(), "every reservation is released on failure")
}

func TestSorter_InitialAllocationFailure(t *testing.T) {
	cfg := radixOnly(32, 8)
	cfg.MemoryLimit = 1024
	s, err := NewSorter[uint32](cfg)
	require.NoError(t, err)

	_, err = s.Sort(randomUint32s(2, 100))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAllocation))
	assert.Equal(t, StateFailed, s.State())
}

func TestSorter_ReusableAfterFailure(t *testing.T) {
	budget := &failingBudget{grants: 0}
	s, err := NewSorter[uint32](radixOnly(32, 8), WithBudget(budget))
	require.NoError(t, err)

	_, err = s.Sort(randomUint32s(3, 100))
	require.Error(t, err)
	assert.Equal(t, StateFailed, s.State())

	budget.grants = 1000
	out, err := s.Sort([]uint32{3, 1, 2})
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 2, 3}, out)
	assert.Equal(t, StateDone, s.State())
	assert.Equal(t, int64(0), budget.used)
}

func TestSorter_GrowWork(t *testing.T) {
	budget := NewMemoryBudget(0)
	s, err := NewSorter[uint32](radixOnly(32, 8), WithBudget(budget))
	require.NoError(t, err)

	grown, err := s.growWork([]uint32{1, 2, 3}, 3, 5)
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 2, 3, 0, 0}, grown)
	assert.Equal(t, int64(5*4), budget.Used())

	grown, err = s.growWork(grown, 5, 8)
	require.NoError(t, err)
	assert.Len(t, grown, 8)
	assert.Equal(t, int64(8*4), budget.Used(), "the replaced array is released")
	assert.Equal(t, 2, s.stats.ArrayGrowths)

	same, err := s.growWork(grown, 8, 4)
	require.NoError(t, err)
	assert.Len(t, same, 8)

	s.releaseArray()
	assert.Equal(t, int64(0), budget.Used())
}

func TestSorter_GrowWorkFailure(t *testing.T) {
	cfg := radixOnly(32, 8)
	cfg.MemoryLimit = 8
	s, err := NewSorter[uint32](cfg)
	require.NoError(t, err)

	grown, err := s.growWork([]uint32{1}, 1, 16)
	require.Error(t, err)
	assert.Nil(t, grown)
	assert.True(t, errors.Is(err, ErrCapacity))
	assert.True(t, errors.Is(err, ErrBudgetExceeded))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "pass", StatePass.String())
	assert.Equal(t, "done", StateDone.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "State(9)", State(9).String())
}

// Benchmarks

func BenchmarkRadixVsStdSort(b *testing.B) {
	sizes := []int{1000, 10000, 100000, 500000, 1000000}

	for _, size := range sizes {
		original := randomUint32s(42, size)

		b.Run(fmt.Sprintf("RadixSort_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				data := make([]uint32, size)
				copy(data, original)
				if _, err := SortUint32(data); err != nil {
					b.Fatal(err)
				}
			}
		})

		b.Run(fmt.Sprintf("StdSort_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				data := make([]uint32, size)
				copy(data, original)
				slices.Sort(data)
			}
		})
	}
}

func BenchmarkDigitBits(b *testing.B) {
	original := randomUint32s(42, 1000000)
	for _, g := range []int{4, 8, 11, 16} {
		b.Run(fmt.Sprintf("G=%d", g), func(b *testing.B) {
			cfg := DefaultConfig()
			cfg.DigitBits = g
			s, err := NewSorter[uint32](cfg)
			if err != nil {
				b.Fatal(err)
			}
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				data := make([]uint32, len(original))
				copy(data, original)
				if _, err := s.Sort(data); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
