package radix

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_PassesAndBuckets(t *testing.T) {
	tests := []struct {
		keyBits, digitBits int
		passes, buckets    int
	}{
		{32, 8, 4, 256},
		{8, 4, 2, 16},
		{32, 11, 3, 2048},
		{16, 5, 4, 32},
		{64, 16, 4, 65536},
		{1, 1, 1, 2},
		{7, 8, 1, 256},
	}
	for _, tt := range tests {
		cfg := Config{KeyBits: tt.keyBits, DigitBits: tt.digitBits}
		assert.Equal(t, tt.passes, cfg.Passes(), "passes for W=%d G=%d", tt.keyBits, tt.digitBits)
		assert.Equal(t, tt.buckets, cfg.Buckets(), "buckets for W=%d G=%d", tt.keyBits, tt.digitBits)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		keyType int
		wantErr bool
	}{
		{"default", DefaultConfig(), 32, false},
		{"key wider than type", Config{KeyBits: 33, DigitBits: 8}, 32, true},
		{"zero key bits", Config{KeyBits: 0, DigitBits: 8}, 32, true},
		{"zero digit bits", Config{KeyBits: 32, DigitBits: 0}, 32, true},
		{"digit too wide", Config{KeyBits: 32, DigitBits: 17}, 32, true},
		{"negative cutoff", Config{KeyBits: 32, DigitBits: 8, SmallCutoff: -1}, 32, true},
		{"negative memory", Config{KeyBits: 32, DigitBits: 8, MemoryLimit: -1}, 32, true},
		{"digit wider than key", Config{KeyBits: 4, DigitBits: 8}, 8, false},
		{"full uint64", Config{KeyBits: 64, DigitBits: 16}, 64, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate(tt.keyType)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidConfig))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConfig_DefaultWorkers(t *testing.T) {
	w := DefaultWorkers()
	assert.GreaterOrEqual(t, w, 1)
	assert.LessOrEqual(t, w, maxDefaultWorkers)
}

func TestDigit_Known(t *testing.T) {
	cfg := Config{KeyBits: 32, DigitBits: 8}
	v := uint64(0xAABBCCDD)
	assert.Equal(t, 0xDD, cfg.Digit(v, 0))
	assert.Equal(t, 0xCC, cfg.Digit(v, 1))
	assert.Equal(t, 0xBB, cfg.Digit(v, 2))
	assert.Equal(t, 0xAA, cfg.Digit(v, 3))
}

func TestDigit_BitsBeyondKeyWidthReadAsZero(t *testing.T) {
	// W=10, G=4: passes read bits [0,4), [4,8), [8,10).
	cfg := Config{KeyBits: 10, DigitBits: 4}
	require.Equal(t, 3, cfg.Passes())

	v := uint64(0xFFFF)
	assert.Equal(t, 0xF, cfg.Digit(v, 0))
	assert.Equal(t, 0xF, cfg.Digit(v, 1))
	assert.Equal(t, 0x3, cfg.Digit(v, 2), "only bits 8 and 9 are inside W")

	// A window that starts at W contributes nothing.
	assert.Equal(t, 0, cfg.Digit(v, 3))
}

func TestDigit_MatchesBitWindow(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	layouts := []Config{
		{KeyBits: 32, DigitBits: 8},
		{KeyBits: 32, DigitBits: 11},
		{KeyBits: 16, DigitBits: 5},
		{KeyBits: 64, DigitBits: 16},
		{KeyBits: 64, DigitBits: 7},
		{KeyBits: 3, DigitBits: 2},
	}
	for _, cfg := range layouts {
		for i := 0; i < 1000; i++ {
			v := rng.Uint64()
			for pass := 0; pass < cfg.Passes(); pass++ {
				want := 0
				for bit := 0; bit < cfg.DigitBits; bit++ {
					pos := pass*cfg.DigitBits + bit
					if pos >= cfg.KeyBits {
						break
					}
					if v>>uint(pos)&1 == 1 {
						want |= 1 << uint(bit)
					}
				}
				got := cfg.Digit(v, pass)
				if got != want {
					t.Fatalf("W=%d G=%d value=%#x pass=%d: got %#x want %#x", cfg.KeyBits, cfg.DigitBits, v, pass, got, want)
				}
				if got < 0 || got >= cfg.Buckets() {
					t.Fatalf("digit %d outside [0, %d)", got, cfg.Buckets())
				}
			}
		}
	}
}

func TestKeyMask(t *testing.T) {
	assert.Equal(t, uint64(0xFF), Config{KeyBits: 8}.KeyMask())
	assert.Equal(t, uint64(0xFFFFFFFF), Config{KeyBits: 32}.KeyMask())
	assert.Equal(t, ^uint64(0), Config{KeyBits: 64}.KeyMask())
}
