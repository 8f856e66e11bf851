package pools

import (
	"sync"
)

// maxPooledTable keeps tables for up to 16-bit digits; anything larger is
// left to the garbage collector.
const maxPooledTable = 1 << 16

// GlobalPools provides centralized pooling of the per-pass tables
type GlobalPools struct {
	Tables sync.Pool
}

// Pools is the global instance of memory pools
var Pools = &GlobalPools{
	Tables: sync.Pool{
		New: func() interface{} {
			table := make([]int, 0, 256)
			return &table
		},
	},
}

// GetTable returns a zeroed table of n ints.
// Count and offset tables are rebuilt every pass, so a checked out table never
// carries counts from a previous pass.
func (gp *GlobalPools) GetTable(n int) []int {
	tablePtr := gp.Tables.Get().(*[]int)
	table := *tablePtr
	if cap(table) < n {
		table = make([]int, n)
		return table
	}
	table = table[:n]
	clear(table)
	return table
}

// ReturnTable returns a table to the pool
func (gp *GlobalPools) ReturnTable(table []int) {
	if cap(table) <= maxPooledTable { // Prevent memory bloat
		emptyTable := table[:0]
		gp.Tables.Put(&emptyTable)
	}
}
