package pools

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetTable_Zeroed(t *testing.T) {
	gp := &GlobalPools{}
	gp.Tables.New = Pools.Tables.New

	table := gp.GetTable(256)
	assert.Len(t, table, 256)
	for i := range table {
		table[i] = i + 1
	}
	gp.ReturnTable(table)

	again := gp.GetTable(256)
	assert.Len(t, again, 256)
	for i, v := range again {
		if v != 0 {
			t.Fatalf("slot %d carries %d from a previous checkout", i, v)
		}
	}
}

func TestGetTable_GrowsPastPooledCapacity(t *testing.T) {
	table := Pools.GetTable(4096)
	assert.Len(t, table, 4096)
	Pools.ReturnTable(table)
}

func TestReturnTable_DropsOversized(t *testing.T) {
	// Oversized tables must not panic and are simply not pooled.
	Pools.ReturnTable(make([]int, 0, maxPooledTable+1))
	assert.Len(t, Pools.GetTable(16), 16)
}
