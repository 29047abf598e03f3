package feed

// PendingQueue is a FIFO of chunks bounded by a byte budget. It is owned by
// the controller and not safe for concurrent use.
type PendingQueue struct {
	chunks [][]byte
	total  int
}

// Push appends a chunk to the tail.
func (q *PendingQueue) Push(chunk []byte) {
	q.chunks = append(q.chunks, chunk)
	q.total += len(chunk)
}

// EvictToBudget drops chunks from the head while the queue holds maxBytes or
// more. It returns the sizes of the dropped chunks, oldest first.
func (q *PendingQueue) EvictToBudget(maxBytes int) []int {
	var dropped []int
	for q.total >= maxBytes && len(q.chunks) > 0 {
		chunk, _ := q.PopFront()
		dropped = append(dropped, len(chunk))
	}
	return dropped
}

// PopFront removes and returns the oldest chunk.
func (q *PendingQueue) PopFront() ([]byte, bool) {
	if len(q.chunks) == 0 {
		return nil, false
	}
	chunk := q.chunks[0]
	q.chunks[0] = nil
	q.chunks = q.chunks[1:]
	q.total -= len(chunk)
	if len(q.chunks) == 0 {
		q.chunks = nil
	}
	return chunk, true
}

// IsEmpty reports whether no chunks are queued.
func (q *PendingQueue) IsEmpty() bool {
	return len(q.chunks) == 0
}

// LenBytes is the total size of queued chunks.
func (q *PendingQueue) LenBytes() int {
	return q.total
}

// Len is the number of queued chunks.
func (q *PendingQueue) Len() int {
	return len(q.chunks)
}
