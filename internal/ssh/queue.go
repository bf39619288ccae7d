package ssh

import "sync"

// OutputQueue is an unbounded FIFO of sanitized text chunks shared by one
// producer (the reader) and one consumer (the dispatcher).
type OutputQueue struct {
	mu    sync.Mutex
	items []string
}

func NewOutputQueue() *OutputQueue {
	return &OutputQueue{}
}

func (q *OutputQueue) Push(text string) {
	q.mu.Lock()
	q.items = append(q.items, text)
	q.mu.Unlock()
}

// Drain removes and returns everything queued so far without waiting.
func (q *OutputQueue) Drain() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.items
	q.items = nil
	return items
}

func (q *OutputQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
