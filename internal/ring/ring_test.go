// ABOUTME: Tests for the fixed-capacity ring buffer
// ABOUTME: Covers ordering, eviction at capacity, and Last(n) windows

package ring

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuffer_PushBelowCapacity(t *testing.T) {
	b := New[int](3)

	assert.False(t, b.Push(1))
	assert.False(t, b.Push(2))

	assert.Equal(t, 2, b.Len())
	assert.Equal(t, []int{1, 2}, b.All())
}

func TestBuffer_EvictsOldest(t *testing.T) {
	b := New[string](1000)

	for i := range 1001 {
		b.Push(fmt.Sprintf("line-%d", i))
	}

	require.Equal(t, 1000, b.Len())
	all := b.All()
	assert.Equal(t, "line-1", all[0], "oldest entry should have been evicted")
	assert.Equal(t, "line-1000", all[len(all)-1])
	assert.NotContains(t, all, "line-0")
}

func TestBuffer_Last(t *testing.T) {
	b := New[int](4)
	for i := 1; i <= 6; i++ {
		b.Push(i)
	}

	tests := []struct {
		name string
		n    int
		want []int
	}{
		{"zero", 0, nil},
		{"negative", -3, nil},
		{"two most recent", 2, []int{5, 6}},
		{"exactly len", 4, []int{3, 4, 5, 6}},
		{"more than len", 10, []int{3, 4, 5, 6}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, b.Last(tt.n))
		})
	}
}

func TestBuffer_LastReturnsCopy(t *testing.T) {
	b := New[int](2)
	b.Push(1)
	b.Push(2)

	got := b.Last(2)
	got[0] = 99

	assert.Equal(t, []int{1, 2}, b.All())
}

func TestNew_PanicsOnZeroCapacity(t *testing.T) {
	assert.Panics(t, func() { New[int](0) })
}
