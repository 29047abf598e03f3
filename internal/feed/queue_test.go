package feed

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sumLens(q *PendingQueue) int {
	total := 0
	for _, c := range q.chunks {
		total += len(c)
	}
	return total
}

func TestPendingQueue_FIFO(t *testing.T) {
	var q PendingQueue
	assert.True(t, q.IsEmpty())

	q.Push([]byte{1})
	q.Push([]byte{2, 2})
	q.Push([]byte{3, 3, 3})
	assert.Equal(t, 3, q.Len())
	assert.Equal(t, 6, q.LenBytes())

	for _, want := range [][]byte{{1}, {2, 2}, {3, 3, 3}} {
		got, ok := q.PopFront()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}

	_, ok := q.PopFront()
	assert.False(t, ok)
	assert.Equal(t, 0, q.LenBytes())
}

func TestPendingQueue_EvictToBudget(t *testing.T) {
	var q PendingQueue
	q.Push(make([]byte, 4))
	q.Push(make([]byte, 3))
	q.Push(make([]byte, 2))

	dropped := q.EvictToBudget(5)
	assert.Equal(t, []int{4, 3}, dropped)
	assert.Equal(t, 2, q.LenBytes())
	assert.Equal(t, 1, q.Len())
}

func TestPendingQueue_EvictAtExactBudget(t *testing.T) {
	var q PendingQueue
	q.Push(make([]byte, 5))

	dropped := q.EvictToBudget(5)
	assert.Equal(t, []int{5}, dropped)
	assert.True(t, q.IsEmpty())
}

func TestPendingQueue_EvictUnderBudget(t *testing.T) {
	var q PendingQueue
	q.Push(make([]byte, 4))

	assert.Empty(t, q.EvictToBudget(5))
	assert.Equal(t, 1, q.Len())
}

func TestPendingQueue_InvariantUnderRandomOps(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	var q PendingQueue
	const budget = 1000

	for i := 0; i < 5000; i++ {
		switch rng.Intn(3) {
		case 0, 1:
			q.Push(make([]byte, rng.Intn(300)))
			q.EvictToBudget(budget)
			assert.True(t, q.LenBytes() < budget || q.IsEmpty())
		case 2:
			q.PopFront()
		}
		require.Equal(t, sumLens(&q), q.LenBytes())
	}
}
