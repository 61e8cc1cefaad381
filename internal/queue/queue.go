// Package queue provides a value-based binary heap used as the frontier and
// result structures during graph traversal.
package queue

import "container/heap"

// Compile time check to ensure PriorityQueue satisfies the heap interface.
var _ heap.Interface = (*PriorityQueue)(nil)

// Item is an entry in the priority queue: a node offset and its distance to
// whatever target vector the traversal is driven by.
type Item struct {
	Offset   uint64  // Offset is the internal vector-store offset of the node.
	Distance float32 // Distance is the priority of the item in the queue.
}

// PriorityQueue implements heap.Interface and holds Items.
// A single queue type backs both the min-heap frontier (closest offset on
// top) and the max-heap result/candidate sets (farthest offset on top, so it
// can be evicted in O(log n) as better candidates arrive).
type PriorityQueue struct {
	isMaxHeap bool
	items     []Item
}

// NewMin creates a priority queue that keeps the smallest distance on top.
func NewMin(capacity int) *PriorityQueue {
	return &PriorityQueue{isMaxHeap: false, items: make([]Item, 0, capacity)}
}

// NewMax creates a priority queue that keeps the largest distance on top.
func NewMax(capacity int) *PriorityQueue {
	return &PriorityQueue{isMaxHeap: true, items: make([]Item, 0, capacity)}
}

// Len returns the number of elements in the priority queue.
func (pq *PriorityQueue) Len() int { return len(pq.items) }

// TopItem returns the top element without removing it.
func (pq *PriorityQueue) TopItem() (Item, bool) {
	if len(pq.items) == 0 {
		return Item{}, false
	}
	return pq.items[0], true
}

// PushItem inserts an item while maintaining the heap invariant.
func (pq *PriorityQueue) PushItem(item Item) {
	pq.items = append(pq.items, item)
	pq.siftUp(len(pq.items) - 1)
}

// PopItem removes and returns the top element while maintaining the heap invariant.
func (pq *PriorityQueue) PopItem() (Item, bool) {
	n := len(pq.items)
	if n == 0 {
		return Item{}, false
	}
	root := pq.items[0]
	last := pq.items[n-1]
	pq.items[n-1] = Item{}
	pq.items = pq.items[:n-1]
	if n-1 > 0 {
		pq.items[0] = last
		pq.siftDown(0)
	}
	return root, true
}

// Reset clears the queue for reuse, keeping its backing array.
func (pq *PriorityQueue) Reset() {
	pq.items = pq.items[:0]
}

func (pq *PriorityQueue) less(i, j int) bool {
	if pq.isMaxHeap {
		return pq.items[i].Distance > pq.items[j].Distance
	}
	return pq.items[i].Distance < pq.items[j].Distance
}

func (pq *PriorityQueue) siftUp(i int) {
	for i > 0 {
		p := (i - 1) / 2
		if !pq.less(i, p) {
			return
		}
		pq.items[i], pq.items[p] = pq.items[p], pq.items[i]
		i = p
	}
}

func (pq *PriorityQueue) siftDown(i int) {
	n := len(pq.items)
	for {
		l := 2*i + 1
		if l >= n {
			return
		}
		best := l
		if r := l + 1; r < n && pq.less(r, l) {
			best = r
		}
		if !pq.less(best, i) {
			return
		}
		pq.items[i], pq.items[best] = pq.items[best], pq.items[i]
		i = best
	}
}

// heap.Interface plumbing, so *PriorityQueue can also be driven via
// container/heap if a caller needs heap.Fix-style semantics.

// Less reports whether the element with index i should sort before j.
func (pq *PriorityQueue) Less(i, j int) bool { return pq.less(i, j) }

// Swap swaps the elements with indexes i and j.
func (pq *PriorityQueue) Swap(i, j int) { pq.items[i], pq.items[j] = pq.items[j], pq.items[i] }

// Push adds x (an Item) to the priority queue. Part of heap.Interface; prefer PushItem.
func (pq *PriorityQueue) Push(x any) {
	pq.items = append(pq.items, x.(Item))
}

// Pop removes and returns the last element of the backing slice (heap.Pop
// moves the top there first). Part of heap.Interface; prefer PopItem.
func (pq *PriorityQueue) Pop() any {
	n := len(pq.items)
	if n == 0 {
		return Item{}
	}
	item := pq.items[n-1]
	pq.items[n-1] = Item{}
	pq.items = pq.items[:n-1]
	return item
}
