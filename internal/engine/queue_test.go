package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNodes(n int) []*node {
	out := make([]*node, n)
	for i := range out {
		out[i] = &node{id: NodeID(i + 1)}
	}
	return out
}

func TestWakeQueue_OrdersByWakeTime(t *testing.T) {
	q := newWakeQueue()
	nodes := testNodes(3)

	q.schedule(nodes[0], 3)
	q.schedule(nodes[1], 1)
	q.schedule(nodes[2], 2)

	var got []NodeID
	for q.Len() > 0 {
		e, ok := q.next()
		require.True(t, ok)
		got = append(got, e.node.id)
	}
	assert.Equal(t, []NodeID{2, 3, 1}, got)
}

func TestWakeQueue_TiesPopInPushOrder(t *testing.T) {
	q := newWakeQueue()
	nodes := testNodes(4)
	for _, n := range []int{2, 0, 3, 1} {
		q.schedule(nodes[n], 5)
	}

	var got []NodeID
	for {
		e, ok := q.next()
		if !ok {
			break
		}
		got = append(got, e.node.id)
	}
	assert.Equal(t, []NodeID{3, 1, 4, 2}, got)
}

func TestWakeQueue_RescheduleKeepsSeq(t *testing.T) {
	q := newWakeQueue()
	nodes := testNodes(2)

	q.schedule(nodes[0], 10)
	q.schedule(nodes[1], 4)
	q.reschedule(nodes[0], 4)

	first, ok := q.next()
	require.True(t, ok)
	assert.Equal(t, NodeID(1), first.node.id, "earlier push wins the tie")
	assert.Nil(t, nodes[0].entry)
}

func TestWakeQueue_Cancel(t *testing.T) {
	q := newWakeQueue()
	nodes := testNodes(3)
	for i, n := range nodes {
		q.schedule(n, float64(i))
	}

	q.cancel(nodes[0])
	q.cancel(nodes[0]) // no-op once removed
	assert.Equal(t, 2, q.Len())

	e, ok := q.peek()
	require.True(t, ok)
	assert.Equal(t, NodeID(2), e.node.id)
}

func TestWakeQueue_EmptyQueue(t *testing.T) {
	q := newWakeQueue()
	_, ok := q.next()
	assert.False(t, ok)
	_, ok = q.peek()
	assert.False(t, ok)
}
