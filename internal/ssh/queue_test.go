package ssh

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutputQueueDrainIsFIFO(t *testing.T) {
	q := NewOutputQueue()
	q.Push("a")
	q.Push("b")
	q.Push("c")

	assert.Equal(t, 3, q.Len())
	assert.Equal(t, []string{"a", "b", "c"}, q.Drain())
	assert.Empty(t, q.Drain())
	assert.Zero(t, q.Len())
}

func TestOutputQueueConcurrentPushKeepsEveryItem(t *testing.T) {
	q := NewOutputQueue()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				q.Push(fmt.Sprintf("%d-%d", w, i))
			}
		}(w)
	}

	var got []string
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for draining := true; draining; {
		select {
		case <-done:
			draining = false
		default:
		}
		got = append(got, q.Drain()...)
	}

	assert.Len(t, got, 400)
}
