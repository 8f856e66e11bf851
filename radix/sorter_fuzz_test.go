package radix

import (
	"encoding/binary"
	"slices"
	"testing"
)

func FuzzSortUint32(f *testing.F) {
	f.Add([]byte{}, uint8(32), uint8(8))
	f.Add([]byte{3, 0, 0, 0, 1, 0, 0, 0, 2, 0, 0, 0}, uint8(8), uint8(4))
	f.Add([]byte{0xff, 0xff, 0xff, 0xff, 0, 0, 0, 0}, uint8(32), uint8(11))
	f.Add([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13}, uint8(10), uint8(3))

	f.Fuzz(func(t *testing.T, raw []byte, keyBits, digitBits uint8) {
		cfg := Config{
			KeyBits:   int(keyBits%32) + 1,
			DigitBits: int(digitBits%MaxDigitBits) + 1,
			Workers:   3,
		}
		data := make([]uint32, len(raw)/4)
		for i := range data {
			data[i] = binary.LittleEndian.Uint32(raw[i*4:])
		}

		mask := uint32(cfg.KeyMask())
		want := slices.Clone(data)
		slices.SortStableFunc(want, func(a, b uint32) int {
			return int(int64(a&mask) - int64(b&mask))
		})

		got, err := Sort(data, cfg)
		if err != nil {
			t.Fatalf("sort failed: %v", err)
		}
		if !slices.Equal(got, want) {
			t.Fatalf("W=%d G=%d: got %v want %v", cfg.KeyBits, cfg.DigitBits, got, want)
		}
	})
}
