package radix

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScatter_PlacesBucketsAtOffsets(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	cfg := Config{KeyBits: 16, DigitBits: 4}
	data := make([]uint32, 2000)
	for i := range data {
		data[i] = uint32(rng.Intn(1 << 16))
	}

	for _, workers := range []int{1, 4} {
		store, p := fillForPass(t, cfg, data, 1)
		dst := make([]uint32, len(data))
		require.NoError(t, scatter(dst, store, p, workers))

		for j, c := range p.counts {
			off := p.offsets[j]
			assert.Equal(t, store.contents(j), dst[off:off+c])
			for _, v := range dst[off : off+c] {
				require.Equal(t, j, cfg.Digit(uint64(v), 1))
			}
		}
		p.release()
		store.release()
	}
}

func TestScatter_ParallelMatchesSequential(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	cfg := Config{KeyBits: 32, DigitBits: 8}
	data := make([]uint32, parallelScatterMin*4)
	for i := range data {
		data[i] = rng.Uint32()
	}

	store, p := fillForPass(t, cfg, data, 2)
	defer store.release()
	defer p.release()

	seq := make([]uint32, len(data))
	par := make([]uint32, len(data))
	require.NoError(t, scatter(seq, store, p, 1))
	require.NoError(t, scatter(par, store, p, 16))
	assert.Equal(t, seq, par)
}

func TestScatter_ManyWorkersFewBuckets(t *testing.T) {
	cfg := Config{KeyBits: 2, DigitBits: 2}
	data := make([]uint32, parallelScatterMin+10)
	for i := range data {
		data[i] = uint32(i % 4)
	}

	store, p := fillForPass(t, cfg, data, 0)
	defer store.release()
	defer p.release()

	dst := make([]uint32, len(data))
	require.NoError(t, scatter(dst, store, p, 32))
	for i := 1; i < len(dst); i++ {
		require.LessOrEqual(t, dst[i-1], dst[i])
	}
}

func TestScatter_RefusesOverlappingPlan(t *testing.T) {
	cfg := Config{KeyBits: 8, DigitBits: 4}
	data := []uint32{1, 2, 2, 3}
	store, p := fillForPass(t, cfg, data, 0)
	defer store.release()
	defer p.release()

	p.offsets[3] = 1
	dst := []uint32{9, 9, 9, 9}
	err := scatter(dst, store, p, 4)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPlacement))
	assert.Equal(t, []uint32{9, 9, 9, 9}, dst, "nothing is written when the plan is rejected")
}
