package radix

import (
	"errors"
	"fmt"
	"runtime"
)

const (
	DefaultKeyBits     = 32
	DefaultDigitBits   = 8
	DefaultSmallCutoff = 64

	// MaxDigitBits bounds the bucket count at 65536 so count tables stay small.
	MaxDigitBits = 16
	// maxDefaultWorkers matches the thread count the scatter was tuned for.
	maxDefaultWorkers = 16
)

var ErrInvalidConfig = errors.New("radix: invalid config")

// Config describes the key layout and the scatter pool of a Sorter.
type Config struct {
	KeyBits     int   // W: only the low KeyBits of every key are sorted
	DigitBits   int   // G: bits consumed per pass
	Workers     int   // scatter pool width, <= 0 means DefaultWorkers()
	SmallCutoff int   // inputs with n <= SmallCutoff use insertion sort
	MemoryLimit int64 // bytes the engine may reserve, 0 means unlimited
}

// DefaultConfig returns the 32-bit / 8-bit layout: 4 passes over 256 buckets.
func DefaultConfig() Config {
	return Config{
		KeyBits:     DefaultKeyBits,
		DigitBits:   DefaultDigitBits,
		Workers:     DefaultWorkers(),
		SmallCutoff: DefaultSmallCutoff,
	}
}

// DefaultWorkers sizes the pool to the hardware, capped at 16.
func DefaultWorkers() int {
	n := runtime.NumCPU()
	if n > maxDefaultWorkers {
		n = maxDefaultWorkers
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Validate checks the config against a key type of keyTypeBits bits.
func (c Config) Validate(keyTypeBits int) error {
	if c.KeyBits < 1 || c.KeyBits > keyTypeBits {
		return fmt.Errorf("%w: keyBits must be in [1, %d], got %d", ErrInvalidConfig, keyTypeBits, c.KeyBits)
	}
	if c.DigitBits < 1 || c.DigitBits > MaxDigitBits {
		return fmt.Errorf("%w: digitBits must be in [1, %d], got %d", ErrInvalidConfig, MaxDigitBits, c.DigitBits)
	}
	if c.SmallCutoff < 0 {
		return fmt.Errorf("%w: smallCutoff must be >= 0, got %d", ErrInvalidConfig, c.SmallCutoff)
	}
	if c.MemoryLimit < 0 {
		return fmt.Errorf("%w: memoryLimit must be >= 0, got %d", ErrInvalidConfig, c.MemoryLimit)
	}
	return nil
}

// Buckets returns B = 2^G.
func (c Config) Buckets() int {
	return 1 << c.DigitBits
}

// Passes returns P = ceil(W / G).
func (c Config) Passes() int {
	return (c.KeyBits + c.DigitBits - 1) / c.DigitBits
}

// workers resolves the pool width.
func (c Config) workers() int {
	if c.Workers <= 0 {
		return DefaultWorkers()
	}
	return c.Workers
}

// KeyMask selects the low W bits.
func (c Config) KeyMask() uint64 {
	if c.KeyBits >= 64 {
		return ^uint64(0)
	}
	return 1<<uint(c.KeyBits) - 1
}

// window returns the shift and mask of pass. The mask is clipped to the bits
// below W, and is 0 for a window that starts at or beyond W.
func (c Config) window(pass int) (uint, uint64) {
	shift := pass * c.DigitBits
	if shift >= c.KeyBits {
		return 0, 0
	}
	width := c.DigitBits
	if shift+width > c.KeyBits {
		width = c.KeyBits - shift
	}
	return uint(shift), 1<<uint(width) - 1
}

// Digit returns the bucket index of value in pass: bits
// [pass*G, pass*G+G) intersected with [0, W).
func (c Config) Digit(value uint64, pass int) int {
	shift, mask := c.window(pass)
	return int((value >> shift) & mask)
}
