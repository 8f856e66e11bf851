package output

import (
	"github.com/dustin/go-humanize"
)

// FormatNumber formats an integer with thousands separators
func FormatNumber(n int) string {
	return humanize.Comma(int64(n))
}

// FormatBytes formats a byte count with binary units
func FormatBytes(n int64) string {
	if n < 0 {
		return "-" + humanize.IBytes(uint64(-n))
	}
	return humanize.IBytes(uint64(n))
}
