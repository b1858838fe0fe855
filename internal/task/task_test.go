package task

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTryRecvEmpty(t *testing.T) {
	_, h := New[int]()

	_, ok := h.TryRecv()
	assert.False(t, ok, "empty channel should yield nothing")
}

func TestSendOrderPreserved(t *testing.T) {
	s, h := New[int]()
	for i := 0; i < 10; i++ {
		s.Send(i)
	}
	s.Close()

	for i := 0; i < 10; i++ {
		msg, ok := h.TryRecv()
		assert.True(t, ok)
		assert.Equal(t, i, msg)
	}
	_, ok := h.TryRecv()
	assert.False(t, ok)
}

func TestRecvBlocksUntilMessage(t *testing.T) {
	s, h := New[string]()

	go func() {
		s.Send("done")
		s.Close()
	}()

	msg, ok := h.Recv()
	assert.True(t, ok)
	assert.Equal(t, "done", msg)

	_, ok = h.Recv()
	assert.False(t, ok, "closed channel should report ok=false")
}

func TestMultipleProducersEachInOrder(t *testing.T) {
	s, h := New[int]()

	// Two producers: one sends evens, one sends odds. Interleaving between
	// the two is unspecified, but each producer's own sequence must hold.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i += 2 {
			s.Send(i)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 1; i < 100; i += 2 {
			s.Send(i)
		}
	}()
	go func() {
		wg.Wait()
		s.Close()
	}()

	lastEven, lastOdd := -2, -1
	count := 0
	for {
		msg, ok := h.Recv()
		if !ok {
			break
		}
		count++
		if msg%2 == 0 {
			assert.Equal(t, lastEven+2, msg, "even stream out of order")
			lastEven = msg
		} else {
			assert.Equal(t, lastOdd+2, msg, "odd stream out of order")
			lastOdd = msg
		}
	}
	assert.Equal(t, 100, count)
}

func TestHandleHasID(t *testing.T) {
	_, h1 := New[int]()
	_, h2 := New[int]()
	assert.NotEmpty(t, h1.ID())
	assert.NotEqual(t, h1.ID(), h2.ID())
}
