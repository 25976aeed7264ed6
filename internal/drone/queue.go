package drone

import "github.com/labfleet/fleetwatch/internal/drone/calls"

// CallQueue is the FIFO of calls waiting for the next flush of a
// drone. It is not safe for concurrent use; drones guard it.
type CallQueue struct {
	calls []calls.Call
}

func (q *CallQueue) Push(c calls.Call) {
	q.calls = append(q.calls, c)
}

// Drain returns the queued calls in order and empties the queue.
func (q *CallQueue) Drain() []calls.Call {
	batch := q.calls
	q.calls = nil
	return batch
}

func (q *CallQueue) Len() int {
	return len(q.calls)
}
