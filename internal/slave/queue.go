// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package slave

// RequestQueue is a bounded FIFO of pending requests. One slot is always kept
// free, so at most capacity-1 requests are held. It is not safe for concurrent
// use; the engine lock guards it.
type RequestQueue struct {
	slots []PendingRequest
	head  int
	tail  int
	count int
}

// NewRequestQueue allocates a queue of capacity slots (minimum 2).
func NewRequestQueue(capacity int) *RequestQueue {
	if capacity < 2 {
		capacity = 2
	}
	return &RequestQueue{slots: make([]PendingRequest, capacity)}
}

func (q *RequestQueue) Cap() int { return len(q.slots) }
func (q *RequestQueue) Len() int { return q.count }

// Create appends req at the tail and returns the stored copy. It fails when
// only the reserved slot is left.
func (q *RequestQueue) Create(req PendingRequest) (*PendingRequest, bool) {
	if q.count >= len(q.slots)-1 {
		return nil, false
	}
	slot := &q.slots[q.tail]
	*slot = req
	q.tail = (q.tail + 1) % len(q.slots)
	q.count++
	return slot, true
}

// Head returns the oldest request, or nil.
func (q *RequestQueue) Head() *PendingRequest {
	if q.count == 0 {
		return nil
	}
	return &q.slots[q.head]
}

// DiscardHead removes the oldest request.
func (q *RequestQueue) DiscardHead() {
	if q.count == 0 {
		return
	}
	q.slots[q.head] = PendingRequest{}
	q.head = (q.head + 1) % len(q.slots)
	q.count--
}

// DiscardTail removes the most recently created request.
func (q *RequestQueue) DiscardTail() {
	if q.count == 0 {
		return
	}
	q.tail = (q.tail - 1 + len(q.slots)) % len(q.slots)
	q.slots[q.tail] = PendingRequest{}
	q.count--
}
